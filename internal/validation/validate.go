package validation

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/google/uuid"
)

var (
	awsRegionPattern = regexp.MustCompile(`^[a-z]{2}-[a-z]+-\d$`)
	commitSHAPattern = regexp.MustCompile(`^[0-9a-f]{7,40}$`)

	timeType = reflect.TypeOf(time.Time{})
)

// validate is safe for concurrent use; it caches struct metadata internally.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(fieldName)

	mustRegister(v, "awsregion", func(fl validator.FieldLevel) bool {
		return awsRegionPattern.MatchString(fl.Field().String())
	})
	mustRegister(v, "commitsha", func(fl validator.FieldLevel) bool {
		return commitSHAPattern.MatchString(fl.Field().String())
	})
	// The built-in uuid tag only accepts lowercase hex.
	mustRegister(v, "uuid", func(fl validator.FieldLevel) bool {
		return IsUUID(fl.Field().String())
	})

	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register %s validation: %v", tag, err))
	}
}

// IsAWSRegion reports whether s looks like an AWS region code such as "us-east-1".
func IsAWSRegion(s string) bool {
	return awsRegionPattern.MatchString(s)
}

// IsUUID reports whether s is a UUID in the canonical 8-4-4-4-12 form.
// Hex digits may be upper or lower case.
func IsUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

// Validate decodes input into a new T and checks it against T's constraints.
//
// input is normally a map[string]any produced from JSON or from string maps.
// When coerce is true, strings are converted to the field types (query and
// path parameters). Schema violations are returned as *Error; anything else
// is an internal failure.
func Validate[T any](input any, coerce bool) (T, error) {
	var out T

	rv := reflect.ValueOf(&out).Elem()
	if rv.Kind() != reflect.Struct {
		return out, fmt.Errorf("schema %T is not a struct", out)
	}

	obj, ok := input.(map[string]any)
	if !ok {
		if input == nil {
			obj = map[string]any{}
		} else {
			return out, &Error{Fields: []FieldError{{
				Path:    "",
				Message: fmt.Sprintf("Expected object, received %s", received(input)),
			}}}
		}
	}

	d := &decoder{
		coerce:  coerce,
		order:   make(map[string]int),
		present: make(map[string]bool),
		failed:  make(map[string]bool),
	}
	if err := d.decodeStruct("", obj, rv); err != nil {
		return out, err
	}

	if err := validate.Struct(out); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return out, fmt.Errorf("validate %T: %w", out, err)
		}
		for _, fe := range verrs {
			path := fieldPath(fe.Namespace())
			if d.failed[path] {
				// Already reported as a type mismatch.
				continue
			}
			d.errs = append(d.errs, FieldError{Path: path, Message: message(fe, d.present[path])})
		}
	}

	if len(d.errs) > 0 {
		sort.SliceStable(d.errs, func(i, j int) bool {
			return d.rank(d.errs[i].Path) < d.rank(d.errs[j].Path)
		})
		return out, &Error{Fields: d.errs}
	}
	return out, nil
}

// decoder copies raw values into a schema struct one field at a time so that
// type mismatches can be attributed to a path.
type decoder struct {
	coerce  bool
	order   map[string]int  // path -> declaration ordinal
	present map[string]bool // paths supplied in the input
	failed  map[string]bool // paths with a type mismatch
	errs    []FieldError
}

func (d *decoder) rank(path string) int {
	if r, ok := d.order[path]; ok {
		return r
	}
	// Unknown paths (slice elements) sort after their closest known parent.
	for p := path; p != ""; {
		i := strings.LastIndexByte(p, '.')
		if i < 0 {
			break
		}
		p = p[:i]
		if r, ok := d.order[p]; ok {
			return r
		}
	}
	return math.MaxInt
}

func (d *decoder) decodeStruct(prefix string, in map[string]any, dst reflect.Value) error {
	t := dst.Type()
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		name := fieldName(sf)
		if name == "" {
			continue
		}

		path := joinPath(prefix, name)
		d.order[path] = len(d.order)

		raw, ok := in[name]
		if !ok || raw == nil {
			d.registerNested(path, sf.Type)
			continue
		}
		d.present[path] = true

		fv := dst.Field(i)
		if st, isStruct := nestedStruct(sf.Type); isStruct {
			m, ok := raw.(map[string]any)
			if !ok {
				d.typeMismatch(path, sf.Type, raw)
				d.registerNested(path, sf.Type)
				continue
			}
			target := reflect.New(st).Elem()
			if err := d.decodeStruct(path, m, target); err != nil {
				return err
			}
			if fv.Kind() == reflect.Ptr {
				ptr := reflect.New(st)
				ptr.Elem().Set(target)
				fv.Set(ptr)
			} else {
				fv.Set(target)
			}
			continue
		}

		if isInteger(sf.Type) {
			if f, ok := d.number(raw); ok {
				if msg := integerProblem(sf.Type, f); msg != "" {
					d.errs = append(d.errs, FieldError{Path: path, Message: msg})
					d.failed[path] = true
				} else {
					setInteger(fv, f)
				}
				continue
			}
		}

		if err := d.decodeValue(raw, fv); err != nil {
			d.typeMismatch(path, sf.Type, raw)
		}
	}
	return nil
}

// registerNested records ordinals for fields of an absent nested struct so
// their errors still sort correctly.
func (d *decoder) registerNested(prefix string, t reflect.Type) {
	st, ok := nestedStruct(t)
	if !ok {
		return
	}
	for i := 0; i < st.NumField(); i++ {
		sf := st.Field(i)
		if !sf.IsExported() {
			continue
		}
		if name := fieldName(sf); name != "" {
			path := joinPath(prefix, name)
			d.order[path] = len(d.order)
			d.registerNested(path, sf.Type)
		}
	}
}

// number returns raw as a finite float when it is a JSON number, or a numeric
// string while coercing.
func (d *decoder) number(raw any) (float64, bool) {
	var f float64
	switch v := raw.(type) {
	case float64:
		f = v
	case string:
		if !d.coerce {
			return 0, false
		}
		p, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		f = p
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// integerProblem returns the violation for storing f in an integer of type t,
// or "" when f fits.
func integerProblem(t reflect.Type, f float64) string {
	if f != math.Trunc(f) {
		return "Expected integer, received float"
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	bits := t.Bits()

	switch t.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if f < 0 {
			return "Number must be greater than or equal to 0"
		}
		if f >= math.Ldexp(1, bits) {
			return "Number must be less than or equal to " + strconv.FormatUint(^uint64(0)>>(64-bits), 10)
		}
	default:
		hi := int64(uint64(1)<<(bits-1) - 1)
		if f >= math.Ldexp(1, bits-1) {
			return "Number must be less than or equal to " + strconv.FormatInt(hi, 10)
		}
		if f < -math.Ldexp(1, bits-1) {
			return "Number must be greater than or equal to " + strconv.FormatInt(-hi-1, 10)
		}
	}
	return ""
}

func setInteger(fv reflect.Value, f float64) {
	if fv.Kind() == reflect.Ptr {
		p := reflect.New(fv.Type().Elem())
		fv.Set(p)
		fv = p.Elem()
	}
	if fv.CanInt() {
		fv.SetInt(int64(f))
		return
	}
	fv.SetUint(uint64(f))
}

func (d *decoder) decodeValue(raw any, fv reflect.Value) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: d.coerce,
		TagName:          "json",
		Result:           fv.Addr().Interface(),
	})
	if err != nil {
		return err
	}
	return dec.Decode(raw)
}

func (d *decoder) typeMismatch(path string, t reflect.Type, raw any) {
	d.errs = append(d.errs, FieldError{
		Path:    path,
		Message: fmt.Sprintf("Expected %s, received %s", expected(t), received(raw)),
	})
	d.failed[path] = true
}

// fieldName returns the json name of a struct field, or "" when the field is skipped.
func fieldName(sf reflect.StructField) string {
	name, _, _ := strings.Cut(sf.Tag.Get("json"), ",")
	switch name {
	case "-":
		return ""
	case "":
		return sf.Name
	}
	return name
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

// fieldPath converts a validator namespace ("CreateServiceRequest.health_check.path",
// "Req.tags[0]") to a dot path without the root type name.
func fieldPath(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		ns = rest
	}
	ns = strings.ReplaceAll(ns, "[", ".")
	return strings.ReplaceAll(ns, "]", "")
}

func nestedStruct(t reflect.Type) (reflect.Type, bool) {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() == reflect.Struct && t != timeType {
		return t, true
	}
	return nil, false
}

func isInteger(t reflect.Type) bool {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

func expected(t reflect.Type) string {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.String:
		return "string"
	case reflect.Bool:
		return "boolean"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return "number"
	case reflect.Slice, reflect.Array:
		return "array"
	case reflect.Map, reflect.Struct:
		return "object"
	}
	return t.Kind().String()
}

func received(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, float32, int, int64, int32:
		return "number"
	case []any, []string:
		return "array"
	case map[string]any:
		return "object"
	}
	return reflect.TypeOf(v).Kind().String()
}
