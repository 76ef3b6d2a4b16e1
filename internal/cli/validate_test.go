package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestValidateCommandAcceptsManifest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "warden.yaml")
	manifest := `
server:
  command: ["python", "-m", "app"]
  count: 2
watch:
  paths: ["."]
`
	if err := os.WriteFile(path, []byte(manifest), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	out, err := runCommand(t, "validate", "-f", path)
	if err != nil {
		t.Fatalf("validate returned error: %v", err)
	}
	if !strings.Contains(out, "is valid") {
		t.Fatalf("unexpected output: %q", out)
	}
	if !strings.Contains(out, "2") {
		t.Fatalf("worker count missing from summary: %q", out)
	}
}

func TestValidateCommandRejectsZeroWorkers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "warden.yaml")
	manifest := `
server:
  command: ["app"]
  count: -1
`
	if err := os.WriteFile(path, []byte(manifest), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	_, err := runCommand(t, "validate", "-f", path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "cannot serve with no workers") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateCommandMissingManifest(t *testing.T) {
	_, err := runCommand(t, "validate", "-f", filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("expected error for missing manifest")
	}
}
