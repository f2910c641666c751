package model

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestDeploymentStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status DeploymentStatus
		want   bool
	}{
		{DeploymentPending, false},
		{DeploymentInProgress, false},
		{DeploymentSucceeded, true},
		{DeploymentFailed, true},
		{DeploymentRolledBack, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.IsTerminal(); got != tt.want {
				t.Errorf("IsTerminal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPageOf(t *testing.T) {
	ten, five := 10, 5

	t.Run("defaults", func(t *testing.T) {
		p := PageOf(nil, nil)
		if p.Limit != DefaultPageLimit || p.Offset != 0 {
			t.Errorf("PageOf(nil, nil) = %+v, want limit %d offset 0", p, DefaultPageLimit)
		}
	})

	t.Run("explicit", func(t *testing.T) {
		p := PageOf(&ten, &five)
		if p.Limit != 10 || p.Offset != 5 {
			t.Errorf("PageOf(10, 5) = %+v", p)
		}
	})
}

func TestService_JSONOmitsEmptyOptionals(t *testing.T) {
	s := Service{
		ID:          uuid.MustParse("6f1c2a3b-4d5e-4f60-8a7b-9c0d1e2f3a4b"),
		Name:        "checkout",
		Environment: EnvProduction,
		AWSRegion:   "us-east-1",
		Status:      ServiceHealthy,
	}

	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	out := string(data)
	for _, key := range []string{`"description"`, `"repository_url"`, `"team_id"`} {
		if strings.Contains(out, key) {
			t.Errorf("marshalled service contains %s: %s", key, out)
		}
	}
	if !strings.Contains(out, `"aws_region":"us-east-1"`) {
		t.Errorf("marshalled service missing aws_region: %s", out)
	}
}
