package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestE2EFeaturesWithoutElement(t *testing.T) {
	app := newTestApp(t, testConfig())
	result := app.Evaluate(context.Background(), `(hole :id "h1" :diameter 10)`)

	if len(result.Errors) != 1 || result.Errors[0].Message != errNoElement.Error() {
		t.Fatalf("expected %q, got %v", errNoElement, result.Errors)
	}
	if result.Features != 1 {
		t.Errorf("expected 1 feature counted, got %d", result.Features)
	}
}

func TestE2EZeroDimensionElement(t *testing.T) {
	app := newTestApp(t, testConfig())
	result := app.Evaluate(context.Background(), `(element "z" :length 0 :thickness 10 :width 10)`)

	if len(result.Errors) == 0 {
		t.Fatal("expected an error for a zero-length element")
	}
	if !strings.HasPrefix(result.Errors[0].Message, "tessellation failed") {
		t.Errorf("unexpected error: %s", result.Errors[0].Message)
	}
	if len(result.Meshes) != 0 {
		t.Errorf("expected 0 meshes, got %d", len(result.Meshes))
	}
}

func TestE2ENegativeDimension(t *testing.T) {
	app := newTestApp(t, testConfig())
	result := app.Evaluate(context.Background(), `(element "n" :profile :tube :length 100 :height -50 :width 50 :thickness 4)`)
	if !result.Failed() {
		t.Fatal("expected an error for a negative height")
	}
}

// TestE2EPartialSuccess ensures one bad feature does not discard the
// others: the hole without a diameter fails, the good hole is applied.
func TestE2EPartialSuccess(t *testing.T) {
	app := newTestApp(t, testConfig())
	source := `
(element "p1" :length 200 :thickness 10 :width 100)
(hole :id "good" :at (vec3 -50 0 0) :diameter 12)
(hole :id "bad" :at (vec3 50 0 0))
`
	result := app.Evaluate(context.Background(), source)

	if len(result.Errors) != 1 {
		t.Fatalf("expected 1 error, got %v", result.Errors)
	}
	if !strings.HasPrefix(result.Errors[0].Message, "feature bad (hole)") {
		t.Errorf("error should name the failing feature: %s", result.Errors[0].Message)
	}
	if result.Apply.Success {
		t.Error("apply with errors should not report success")
	}
	if len(result.Meshes) != 1 || len(result.Meshes[0].Indices)/3 <= 12 {
		t.Error("expected the good hole to be carved into the returned mesh")
	}
}

func TestE2EOverlappingHolesWarn(t *testing.T) {
	app := newTestApp(t, testConfig())
	source := `
(element "p1" :length 200 :thickness 10 :width 100)
(hole :id "h1" :at (vec3 0 0 0) :diameter 5)
(hole :id "h2" :at (vec3 3 0 0) :diameter 5)
`
	result := app.Evaluate(context.Background(), source)
	if result.Failed() {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
	if len(result.Warnings) != 1 || !strings.Contains(result.Warnings[0].Message, "holes overlap") {
		t.Errorf("expected one overlap warning, got %v", result.Warnings)
	}
}

func TestE2ERapidEvaluation(t *testing.T) {
	app := newTestApp(t, testConfig())
	// Sequential evaluations each get the latest generation, so none is
	// superseded.
	for i := 0; i < 10; i++ {
		result := app.Evaluate(context.Background(), `(element "p" :length 100 :thickness 5 :width 50)`)
		if result.Failed() {
			t.Fatalf("iteration %d: %v", i, result.Errors)
		}
		if len(result.Meshes) != 1 {
			t.Fatalf("iteration %d: expected 1 mesh, got %d", i, len(result.Meshes))
		}
	}
}

func TestE2EEvaluateFilesKeepsOrder(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
		return path
	}
	paths := []string{
		write("a.kerf", `(element "a" :length 100 :thickness 5 :width 50)`),
		write("broken.kerf", `(element "b"`),
		write("c.yaml", "element: {id: c, dimensions: {length: 80, thickness: 4, width: 40}}\n"),
	}

	app := newTestApp(t, testConfig())
	results := app.EvaluateFiles(context.Background(), paths, 2)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Element != "a" || results[0].Failed() {
		t.Errorf("first result: %+v", results[0])
	}
	if !results[1].Failed() || results[1].Apply != nil {
		t.Errorf("second result should fail before apply: %+v", results[1])
	}
	if results[2].Element != "c" || results[2].Failed() || len(results[2].Meshes) != 1 {
		t.Errorf("third result: %+v", results[2])
	}
	for i, r := range results {
		if r.Source != paths[i] {
			t.Errorf("result %d source = %s, want %s", i, r.Source, paths[i])
		}
	}
}

func TestE2EPersistentStoreSurvivesRestart(t *testing.T) {
	cfg := testConfig()
	cfg.Store.Path = filepath.Join(t.TempDir(), "db")
	source := `(element "p1" :length 200 :thickness 10 :width 100) (hole :id "h" :diameter 10)`

	first, err := NewApp(cfg, nil)
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	if r := first.Evaluate(context.Background(), source); r.Failed() || r.Apply.CacheHit {
		t.Fatalf("first run: %+v", r)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	second := newTestApp(t, cfg)
	r := second.Evaluate(context.Background(), source)
	if r.Failed() {
		t.Fatalf("second run: %v", r.Errors)
	}
	if !r.Apply.CacheHit {
		t.Error("expected the reopened store to serve the mesh")
	}
}

func TestTypesListsEveryType(t *testing.T) {
	app := newTestApp(t, testConfig())
	types := app.Types()
	if len(types) != 32 {
		t.Fatalf("expected 32 types, got %d", len(types))
	}
	for i, ti := range types {
		if ti.Priority != i+1 {
			t.Errorf("type %s has priority %d, want %d", ti.Name, ti.Priority, i+1)
		}
		if !ti.Processor {
			t.Errorf("type %s has no processor", ti.Name)
		}
	}
	if types[0].Name != "contour" || types[7].Name != "hole" {
		t.Errorf("unexpected order: %s, %s", types[0].Name, types[7].Name)
	}
}

// ---------------------------------------------------------------------------
// CLI
// ---------------------------------------------------------------------------

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(&stdout, &stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kerf.yaml")
	if err := os.WriteFile(path, []byte("pipeline:\n  tool_resolution: 24\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCLITypesJSON(t *testing.T) {
	out, _, err := runCLI(t, "types", "--json")
	if err != nil {
		t.Fatalf("types: %v", err)
	}
	var types []TypeInfo
	if err := json.Unmarshal([]byte(out), &types); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	if len(types) != 32 {
		t.Errorf("expected 32 types, got %d", len(types))
	}
}

func TestCLIApplyJSON(t *testing.T) {
	cfg := writeConfig(t)
	out, _, err := runCLI(t, "apply", "--config", cfg, "--json", "examples/beam.yaml")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	var results []EvalResult
	if err := json.Unmarshal([]byte(out), &results); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	if len(results) != 1 || results[0].Element != "B1" {
		t.Fatalf("unexpected results: %s", out)
	}
	if len(results[0].Meshes) != 0 {
		t.Error("mesh buffers should be omitted without --mesh")
	}
	if results[0].Apply == nil || !results[0].Apply.Success {
		t.Errorf("expected success: %s", out)
	}
}

func TestCLIStrictFailsOnErrors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.kerf")
	if err := os.WriteFile(bad, []byte(`(element "p" :length 100 :thickness 5 :width 50) (hole :id "x")`), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := writeConfig(t)

	out, _, err := runCLI(t, "apply", "--config", cfg, bad)
	if err != nil {
		t.Fatalf("non-strict apply should succeed: %v", err)
	}
	if !strings.Contains(out, "error: feature x (hole)") {
		t.Errorf("expected the feature error in the output:\n%s", out)
	}

	_, _, err = runCLI(t, "apply", "--config", cfg, "--strict", bad)
	if !errors.Is(err, errStrict) {
		t.Errorf("expected errStrict, got %v", err)
	}
}

func TestCLIRejectsBadLogLevel(t *testing.T) {
	_, _, err := runCLI(t, "types", "--log-level", "loud")
	if err == nil || !strings.Contains(err.Error(), "Level") {
		t.Errorf("expected a validation error, got %v", err)
	}
}

func TestCLITelemetryWritesSpans(t *testing.T) {
	cfg := writeConfig(t)
	_, stderr, err := runCLI(t, "apply", "--config", cfg, "--telemetry", "examples/beam.yaml")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !strings.Contains(stderr, "pipeline.apply") {
		t.Errorf("expected the apply span on stderr:\n%s", stderr)
	}
	if !strings.Contains(stderr, "kerf.apply.total") {
		t.Errorf("expected the apply counter on stderr:\n%s", stderr)
	}
}
