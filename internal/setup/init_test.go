package setup

import (
	"os"
	"path/filepath"
	"testing"

	yamlv3 "gopkg.in/yaml.v3"

	"github.com/msageha/voxplan/internal/model"
)

func TestRun_CreatesDirectoryStructure(t *testing.T) {
	dir := t.TempDir()

	if err := Run(dir, ""); err != nil {
		t.Fatalf("Run: %v", err)
	}

	base := filepath.Join(dir, ".voxplan")
	for _, d := range []string{
		"plans/inbox",
		"rejected",
		"state/trees",
		"locks",
		"logs",
		"quarantine",
	} {
		info, err := os.Stat(filepath.Join(base, d))
		if err != nil {
			t.Errorf("missing directory %s: %v", d, err)
			continue
		}
		if !info.IsDir() {
			t.Errorf("%s is not a directory", d)
		}
	}

	for _, f := range []string{"config.yaml", "planner.md", "locks/daemon.lock"} {
		if _, err := os.Stat(filepath.Join(base, f)); err != nil {
			t.Errorf("missing file %s: %v", f, err)
		}
	}
}

func TestRun_ConfigDefaults(t *testing.T) {
	dir := t.TempDir()

	if err := Run(dir, "castle-build"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, ".voxplan", "config.yaml"))
	if err != nil {
		t.Fatalf("read config: %v", err)
	}

	var cfg model.Config
	if err := yamlv3.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("parse config: %v", err)
	}

	// The written file round-trips to exactly the in-code defaults.
	if want := model.DefaultConfig("castle-build"); cfg != want {
		t.Errorf("config: got %+v, want %+v", cfg, want)
	}
}

func TestRun_DefaultsProjectNameFromDir(t *testing.T) {
	parent := t.TempDir()
	dir := filepath.Join(parent, "fortress")
	if err := os.Mkdir(dir, 0755); err != nil {
		t.Fatal(err)
	}

	if err := Run(dir, ""); err != nil {
		t.Fatalf("Run: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, ".voxplan", "config.yaml"))
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	var cfg model.Config
	if err := yamlv3.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Project.Name != "fortress" {
		t.Errorf("project name: got %q", cfg.Project.Name)
	}
}

func TestRun_RefusesExistingDir(t *testing.T) {
	dir := t.TempDir()

	if err := Run(dir, ""); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if err := Run(dir, ""); err == nil {
		t.Fatal("expected error when .voxplan already exists")
	}
}
