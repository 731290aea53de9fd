package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nao1215/fisgon/internal/config"
)

func TestNewInitCmd(t *testing.T) {
	t.Parallel()

	cmd := NewInitCmd()

	t.Run("has output flag", func(t *testing.T) {
		t.Parallel()
		flag := cmd.Flags().Lookup("output")
		if flag == nil {
			t.Fatal("expected output flag")
		}
		if flag.Shorthand != "o" {
			t.Errorf("expected shorthand 'o', got %q", flag.Shorthand)
		}
		if flag.DefValue != configFileName {
			t.Errorf("expected default %q, got %q", configFileName, flag.DefValue)
		}
	})

	t.Run("has force flag", func(t *testing.T) {
		t.Parallel()
		flag := cmd.Flags().Lookup("force")
		if flag == nil {
			t.Fatal("expected force flag")
		}
		if flag.Shorthand != "f" {
			t.Errorf("expected shorthand 'f', got %q", flag.Shorthand)
		}
	})
}

func runInit(t *testing.T, args ...string) error {
	t.Helper()

	cmd := NewInitCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs(args)
	return cmd.Execute()
}

func TestRunInitCmd(t *testing.T) {
	t.Parallel()

	t.Run("creates a loadable config file", func(t *testing.T) {
		t.Parallel()

		outputPath := filepath.Join(t.TempDir(), ".fisgon")
		if err := runInit(t, "-o", outputPath); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		content, err := os.ReadFile(outputPath)
		if err != nil {
			t.Fatalf("failed to read file: %v", err)
		}
		for _, key := range []string{"defaults:", "sites:"} {
			if !strings.Contains(string(content), key) {
				t.Errorf("expected config to contain %q", key)
			}
		}

		cf, err := config.LoadConfigFile(outputPath)
		if err != nil {
			t.Fatalf("template must be valid YAML: %v", err)
		}
		if len(cf.Sites) != 0 {
			t.Errorf("template must not configure sites, got %v", cf.Sites)
		}

		info, err := os.Stat(outputPath)
		if err != nil {
			t.Fatalf("failed to stat file: %v", err)
		}
		if info.Mode().Perm() != 0600 {
			t.Errorf("expected mode 0600, got %o", info.Mode().Perm())
		}
	})

	t.Run("fails if file exists without force", func(t *testing.T) {
		t.Parallel()

		outputPath := filepath.Join(t.TempDir(), ".fisgon")
		if err := os.WriteFile(outputPath, []byte("existing"), 0600); err != nil {
			t.Fatalf("failed to create test file: %v", err)
		}

		err := runInit(t, "-o", outputPath)
		if err == nil || !strings.Contains(err.Error(), "already exists") {
			t.Errorf("expected 'already exists' error, got %v", err)
		}
	})

	t.Run("overwrites file with force flag", func(t *testing.T) {
		t.Parallel()

		outputPath := filepath.Join(t.TempDir(), ".fisgon")
		if err := os.WriteFile(outputPath, []byte("existing"), 0600); err != nil {
			t.Fatalf("failed to create test file: %v", err)
		}

		if err := runInit(t, "-o", outputPath, "-f"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		content, err := os.ReadFile(outputPath)
		if err != nil {
			t.Fatalf("failed to read file: %v", err)
		}
		if string(content) == "existing" {
			t.Error("expected file to be overwritten")
		}
	})

	t.Run("creates parent directories", func(t *testing.T) {
		t.Parallel()

		outputPath := filepath.Join(t.TempDir(), "subdir", "nested", ".fisgon")
		if err := runInit(t, "-o", outputPath); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := os.Stat(outputPath); err != nil {
			t.Errorf("expected config file to be created in nested directory: %v", err)
		}
	})
}
