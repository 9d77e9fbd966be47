package policy

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

const homeRegionPolicy = `# Blocks runs outside the home region.
# severity: error
package custom.region

import rego.v1

deny contains msg if {
	input.region != "eu-west-1"
	msg := sprintf("region %s is not allowed", [input.region])
}
`

func TestLoadFromFile_Rego(t *testing.T) {
	loader := NewLoader(zerolog.Nop())

	policyFile := filepath.Join(t.TempDir(), "home-region.rego")
	if err := os.WriteFile(policyFile, []byte(homeRegionPolicy), 0o644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	policy, err := loader.loadFromFile(context.Background(), policyFile)
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}

	if policy.Name != "home-region" {
		t.Errorf("Expected name 'home-region', got '%s'", policy.Name)
	}
	if policy.Rego != homeRegionPolicy {
		t.Error("Rego content doesn't match")
	}
	if policy.Severity != SeverityError {
		t.Errorf("Expected severity error from comment, got %s", policy.Severity)
	}
	if policy.Description != "Blocks runs outside the home region." {
		t.Errorf("Unexpected description %q", policy.Description)
	}
	if !policy.Enabled {
		t.Error("Policy should be enabled by default")
	}
}

func TestLoadFromFile_JSON(t *testing.T) {
	loader := NewLoader(zerolog.Nop())
	dir := t.TempDir()

	data, _ := json.Marshal(Policy{Name: "from-json", Rego: homeRegionPolicy, Enabled: true})
	path := filepath.Join(dir, "p.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	policy, err := loader.loadFromFile(context.Background(), path)
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}
	if policy.Name != "from-json" || policy.Severity != SeverityWarning {
		t.Errorf("policy = %+v", policy)
	}

	if err := os.WriteFile(path+".bad.json", []byte(`{"rego": "x"}`), 0o644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}
	if _, err := loader.loadFromFile(context.Background(), path+".bad.json"); err == nil {
		t.Error("expected error for JSON policy without a name")
	}
}

func TestLoadFromDirectorySkipsOtherFiles(t *testing.T) {
	loader := NewLoader(zerolog.Nop())
	dir := t.TempDir()

	files := map[string]string{
		"a.rego":        homeRegionPolicy,
		"nested/b.rego": homeRegionPolicy,
		"README.md":     "# not a policy",
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	policies, err := loader.LoadFromPaths(context.Background(), []string{dir})
	if err != nil {
		t.Fatalf("LoadFromPaths() error = %v", err)
	}
	if len(policies) != 2 {
		t.Errorf("loaded %d policies, want 2", len(policies))
	}

	if _, err := loader.LoadFromPaths(context.Background(), []string{filepath.Join(dir, "missing")}); err == nil {
		t.Error("expected error for missing path")
	}
}

func TestEngineLoadPolicies(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "home-region.rego"), []byte(homeRegionPolicy), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	eng := newTestEngine(t)
	if err := eng.LoadPolicies(context.Background(), []string{dir}); err != nil {
		t.Fatalf("LoadPolicies() error = %v", err)
	}

	if _, err := eng.Check(context.Background(), validSpec()); err == nil {
		t.Error("Check() passed a us-east-1 spec despite the region policy")
	}
}

func TestWatchReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "home-region.rego")
	if err := os.WriteFile(path, []byte(homeRegionPolicy), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	loader := NewLoader(zerolog.Nop())
	loader.ReloadDelay = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan []Policy, 4)
	err := loader.Watch(ctx, []string{dir}, func(p []Policy) error {
		reloaded <- p
		return nil
	})
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "second.rego"), []byte(homeRegionPolicy), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case p := <-reloaded:
		if len(p) != 2 {
			t.Errorf("reload saw %d policies, want 2", len(p))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after writing a policy file")
	}
}
