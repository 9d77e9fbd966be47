package policy

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/cloudcycle/cloudcycle/pkg/engine"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	eng, err := NewEngine(zerolog.Nop(), WithEnvironment("test"), WithProvider("memory"))
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	return eng
}

func validSpec() engine.RunSpec {
	return engine.RunSpec{
		Region: "us-east-1",
		Compute: &engine.ComputeSpec{
			ImageID:      "ami-0123456789abcdef0",
			InstanceType: "t2.micro",
			KeyName:      "my_key",
			Tags:         map[string]string{"Name": "App Tier Worker"},
		},
		Storage: &engine.StorageSpec{Name: "cloudcycle-bucket-20240102030405-abcd1234", Region: "us-east-1"},
		Queue:   &engine.QueueSpec{Name: "app-tier-queue"},
	}
}

func TestNewEngine(t *testing.T) {
	eng := newTestEngine(t)

	policies := eng.ListPolicies()
	expected := []string{"bucket-naming", "image-id", "instance-type", "queue-naming", "required-tags"}
	if len(policies) != len(expected) {
		t.Fatalf("loaded %d built-in policies, want %d", len(policies), len(expected))
	}
	for i, name := range expected {
		if policies[i].Name != name {
			t.Errorf("policy %d = %s, want %s", i, policies[i].Name, name)
		}
	}
}

func TestCheckValidSpec(t *testing.T) {
	eng := newTestEngine(t)

	warnings, err := eng.Check(context.Background(), validSpec())
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("Check() warnings = %v, want none", warnings)
	}
}

func TestCheckViolations(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*engine.RunSpec)
		wantDenied bool
		wantPolicy string
	}{
		{
			name:       "uppercase bucket",
			mutate:     func(s *engine.RunSpec) { s.Storage.Name = "My-Bucket" },
			wantDenied: true,
			wantPolicy: "bucket-naming",
		},
		{
			name:       "short bucket",
			mutate:     func(s *engine.RunSpec) { s.Storage.Name = "ab" },
			wantDenied: true,
			wantPolicy: "bucket-naming",
		},
		{
			name:       "ip address bucket",
			mutate:     func(s *engine.RunSpec) { s.Storage.Name = "192.168.1.10" },
			wantDenied: true,
			wantPolicy: "bucket-naming",
		},
		{
			name:       "queue with spaces",
			mutate:     func(s *engine.RunSpec) { s.Queue.Name = "my queue" },
			wantDenied: true,
			wantPolicy: "queue-naming",
		},
		{
			name:       "fifo queue",
			mutate:     func(s *engine.RunSpec) { s.Queue.Name = "orders.fifo" },
			wantDenied: false,
		},
		{
			name:       "malformed image",
			mutate:     func(s *engine.RunSpec) { s.Compute.ImageID = "image-123" },
			wantDenied: true,
			wantPolicy: "image-id",
		},
		{
			name:       "missing name tag",
			mutate:     func(s *engine.RunSpec) { s.Compute.Tags = map[string]string{"team": "x"} },
			wantDenied: true,
			wantPolicy: "required-tags",
		},
		{
			name:       "empty name tag",
			mutate:     func(s *engine.RunSpec) { s.Compute.Tags["Name"] = "" },
			wantDenied: true,
			wantPolicy: "required-tags",
		},
		{
			name:       "no compute skips compute policies",
			mutate:     func(s *engine.RunSpec) { s.Compute = nil },
			wantDenied: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := newTestEngine(t)
			spec := validSpec()
			tt.mutate(&spec)

			_, err := eng.Check(context.Background(), spec)
			if (err != nil) != tt.wantDenied {
				t.Fatalf("Check() error = %v, wantDenied %v", err, tt.wantDenied)
			}
			if !tt.wantDenied {
				return
			}

			var denied *engine.PolicyDeniedError
			if !errors.As(err, &denied) {
				t.Fatalf("error type = %T, want *engine.PolicyDeniedError", err)
			}
			found := false
			for _, v := range denied.Violations {
				if strings.HasPrefix(v, tt.wantPolicy+":") {
					found = true
				}
			}
			if !found {
				t.Errorf("violations %v do not mention %s", denied.Violations, tt.wantPolicy)
			}
		})
	}
}

func TestCheckWarningDoesNotDeny(t *testing.T) {
	eng := newTestEngine(t)
	spec := validSpec()
	spec.Compute.InstanceType = "m5.large"

	warnings, err := eng.Check(context.Background(), spec)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "m5.large") {
		t.Errorf("warnings = %v", warnings)
	}
}

func TestDisablePolicy(t *testing.T) {
	eng := newTestEngine(t)
	spec := validSpec()
	spec.Compute.ImageID = "bogus"

	if err := eng.DisablePolicy("image-id"); err != nil {
		t.Fatalf("DisablePolicy() error = %v", err)
	}
	if _, err := eng.Check(context.Background(), spec); err != nil {
		t.Errorf("Check() with disabled policy error = %v", err)
	}

	if err := eng.ReplacePolicies(context.Background(), nil); err != nil {
		t.Fatalf("ReplacePolicies() error = %v", err)
	}
	if _, err := eng.Check(context.Background(), spec); err == nil {
		t.Error("Check() passed after reloading the built-ins")
	}

	if err := eng.DisablePolicy("nope"); err == nil {
		t.Error("DisablePolicy() accepted an unknown policy")
	}
}

func TestAddPoliciesUsesContext(t *testing.T) {
	eng := newTestEngine(t)

	err := eng.AddPolicies(context.Background(), []Policy{{
		Name:     "no-production",
		Severity: SeverityCritical,
		Enabled:  true,
		Rego: `package custom.env

import rego.v1

deny contains "runs against memory are blocked in test" if {
	input.context.environment == "test"
	input.context.provider == "memory"
}
`,
	}})
	if err != nil {
		t.Fatalf("AddPolicies() error = %v", err)
	}

	result, err := eng.Evaluate(context.Background(), validSpec())
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if result.Allowed {
		t.Fatal("Evaluate() allowed a run denied by a critical policy")
	}
	if len(result.Violations) != 1 || result.Violations[0].Severity != SeverityCritical {
		t.Errorf("violations = %+v", result.Violations)
	}
	if len(result.EvaluatedPolicies) != 6 {
		t.Errorf("evaluated %d policies, want 6", len(result.EvaluatedPolicies))
	}
}

func TestAddPoliciesRejectsInvalidRego(t *testing.T) {
	eng := newTestEngine(t)

	err := eng.AddPolicies(context.Background(), []Policy{{Name: "broken", Rego: "package x\n\ndeny contains if {"}})
	if err == nil {
		t.Fatal("AddPolicies() accepted invalid Rego")
	}
}

func TestViolationOverridesSeverity(t *testing.T) {
	eng := newTestEngine(t)

	err := eng.AddPolicies(context.Background(), []Policy{{
		Name:     "soft",
		Severity: SeverityError,
		Enabled:  true,
		Rego: `package custom.soft

import rego.v1

deny contains {"message": "just so you know", "severity": "info"} if {
	input.region == "us-east-1"
}
`,
	}})
	if err != nil {
		t.Fatalf("AddPolicies() error = %v", err)
	}

	warnings, err := eng.Check(context.Background(), validSpec())
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if len(warnings) != 1 || warnings[0] != "soft: just so you know" {
		t.Errorf("warnings = %v", warnings)
	}
}
