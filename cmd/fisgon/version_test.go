package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestVersionCmd(t *testing.T) {
	t.Parallel()

	cmd := NewVersionCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs(nil)

	if err := cmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := out.String()
	for _, want := range []string{"fisgon version", "commit:", "built:"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected output to contain %q, got %q", want, output)
		}
	}
}

func TestGetVersionFallbacks(t *testing.T) {
	t.Parallel()

	if getVersion() == "" {
		t.Error("getVersion must never be empty")
	}
	if getCommit() == "" {
		t.Error("getCommit must never be empty")
	}
	if c := getCommit(); c != "unknown" && len(c) > 7 {
		t.Errorf("expected a short commit hash, got %q", c)
	}
	if getDate() == "" {
		t.Error("getDate must never be empty")
	}
}
