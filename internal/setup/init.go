// Package setup handles voxplan project initialization.
package setup

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/msageha/voxplan/internal/model"
	"github.com/msageha/voxplan/internal/yaml"
	"github.com/msageha/voxplan/templates"
)

const voxplanDir = ".voxplan"

// Run initializes the .voxplan/ directory structure in the given project
// directory. projectName overrides the auto-detected name (defaults to the
// directory basename if empty).
func Run(projectDir, projectName string) error {
	absDir, err := filepath.Abs(projectDir)
	if err != nil {
		return fmt.Errorf("resolve project dir: %w", err)
	}

	base := filepath.Join(absDir, voxplanDir)

	if _, err := os.Stat(base); err == nil {
		return fmt.Errorf("%s already exists", base)
	}

	dirs := []string{
		"plans/inbox",
		"rejected",
		"state/trees",
		"locks",
		"logs",
		"quarantine",
	}
	for _, d := range dirs {
		if err := os.MkdirAll(filepath.Join(base, d), 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", d, err)
		}
	}

	if err := copyTemplateFile("planner.md", filepath.Join(base, "planner.md")); err != nil {
		return err
	}

	if projectName == "" {
		projectName = filepath.Base(absDir)
	}
	cfg := model.DefaultConfig(projectName)
	if err := yaml.AtomicWrite(filepath.Join(base, "config.yaml"), cfg); err != nil {
		return fmt.Errorf("write config.yaml: %w", err)
	}

	// Create daemon.lock (empty)
	if err := os.WriteFile(filepath.Join(base, "locks", "daemon.lock"), nil, 0600); err != nil {
		return fmt.Errorf("create daemon.lock: %w", err)
	}

	return nil
}

func copyTemplateFile(name, dst string) error {
	data, err := fs.ReadFile(templates.FS, name)
	if err != nil {
		return fmt.Errorf("read template %s: %w", name, err)
	}
	if err := os.WriteFile(dst, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", dst, err)
	}
	return nil
}
