package internal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pmbridge/pmbridge/pkg/models"
)

func TestNewApp_DefaultsWhenNoConfig(t *testing.T) {
	app, err := NewApp(t.TempDir())
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	defer app.Close()

	if app.Config.Role != models.RoleEngineer {
		t.Errorf("role = %s, want engineer", app.Config.Role)
	}
	if app.Engine == nil || app.Broker == nil || app.Gate == nil || app.Recorder == nil {
		t.Fatal("services not wired")
	}
	if app.AlertEngine == nil || app.MetricsCalc == nil {
		t.Fatal("observability not wired")
	}
}

func TestNewApp_InvalidConfigRejected(t *testing.T) {
	dir := t.TempDir()
	content := "role: manager\n"
	if err := os.WriteFile(filepath.Join(dir, ".pmbridge.yaml"), []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	if _, err := NewApp(dir); err == nil {
		t.Fatal("expected validation error for invalid role")
	}
}

func TestNewApp_SystemPromptFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "reviewer.md"), []byte("be strict"), 0o600); err != nil {
		t.Fatalf("writing prompt: %v", err)
	}
	content := "reviewer:\n  system_prompt_file: reviewer.md\n"
	if err := os.WriteFile(filepath.Join(dir, ".pmbridge.yaml"), []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	app, err := NewApp(dir)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	defer app.Close()
}

func TestNewApp_MissingSystemPromptFileFails(t *testing.T) {
	dir := t.TempDir()
	content := "reviewer:\n  system_prompt_file: nope.md\n"
	if err := os.WriteFile(filepath.Join(dir, ".pmbridge.yaml"), []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	if _, err := NewApp(dir); err == nil {
		t.Fatal("expected error for missing system prompt file")
	}
}

func TestResolveBasePath_EnvOverride(t *testing.T) {
	t.Setenv("PMBRIDGE_HOME", "/tmp/somewhere")
	if got := ResolveBasePath(); got != "/tmp/somewhere" {
		t.Errorf("base path = %s", got)
	}
}

func TestResolveBasePath_FindsConfigUpward(t *testing.T) {
	t.Setenv("PMBRIDGE_HOME", "")
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, ".pmbridge.yaml"), []byte(""), 0o600); err != nil {
		t.Fatalf("seeding config: %v", err)
	}
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	t.Chdir(nested)

	got := ResolveBasePath()
	// TempDir may traverse symlinks; compare resolved paths.
	wantResolved, _ := filepath.EvalSymlinks(root)
	gotResolved, _ := filepath.EvalSymlinks(got)
	if gotResolved != wantResolved {
		t.Errorf("base path = %s, want %s", got, root)
	}
}
