package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/infrawatch/infrawatch/internal/model"
	"github.com/infrawatch/infrawatch/internal/store"
	"github.com/infrawatch/infrawatch/internal/validation"
)

// envelope is the body of every JSON response.
type envelope struct {
	Success    bool        `json:"success"`
	Data       any         `json:"data,omitempty"`
	Error      string      `json:"error,omitempty"`
	Pagination *pagination `json:"pagination,omitempty"`
}

type pagination struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Count  int `json:"count"`
}

func writeJSON(w http.ResponseWriter, code int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

func writeData(w http.ResponseWriter, code int, data any) {
	writeJSON(w, code, envelope{Success: true, Data: data})
}

func writeList[T any](w http.ResponseWriter, items []T, page model.Page) {
	if items == nil {
		items = []T{}
	}
	writeJSON(w, http.StatusOK, envelope{
		Success:    true,
		Data:       items,
		Pagination: &pagination{Limit: page.Limit, Offset: page.Offset, Count: len(items)},
	})
}

// writeError is the single error path for everything that is not a schema
// violation.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var malformed *validation.MalformedJSONError
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, envelope{Error: "Not found"})
	case errors.Is(err, store.ErrConflict):
		writeJSON(w, http.StatusConflict, envelope{Error: "Already exists"})
	case errors.As(err, &malformed):
		writeJSON(w, http.StatusBadRequest, envelope{Error: "Malformed JSON body"})
	case errors.Is(err, validation.ErrBodyTooLarge):
		writeJSON(w, http.StatusRequestEntityTooLarge, envelope{Error: "Request body too large"})
	default:
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, envelope{Error: "Internal server error"})
	}
}
