package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// execute runs the root command with args and returns its error.
func execute(t *testing.T, args ...string) error {
	t.Helper()
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	return cmd.Execute()
}

func TestRoot_InvalidLogLevel(t *testing.T) {
	err := execute(t, "--data-dir", t.TempDir(), "--logging", "loud", "init")
	if GetExitCode(err) != ExitCommandError {
		t.Fatalf("invalid log level: err = %v, want command error", err)
	}
}

func TestRoot_CreatesDataDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), ".stride")
	if err := execute(t, "--data-dir", dir, "init"); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "config.json")); err != nil {
		t.Fatalf("config.json not written: %v", err)
	}
}

func TestInit_RefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	if err := execute(t, "--data-dir", dir, "init"); err != nil {
		t.Fatalf("first init failed: %v", err)
	}
	err := execute(t, "--data-dir", dir, "init")
	if GetExitCode(err) != ExitCommandError {
		t.Fatalf("second init: err = %v, want command error", err)
	}
	if err := execute(t, "--data-dir", dir, "init", "--force"); err != nil {
		t.Fatalf("forced init failed: %v", err)
	}
}

func TestRun_MissingMetadataIsActionable(t *testing.T) {
	err := execute(t, "--data-dir", t.TempDir(),
		"run", "-b", "/bin/sh", "-T", "1", "-G", "1", "-w", "1=1")
	if err == nil {
		t.Fatal("run without metadata.db succeeded, want error")
	}
	if GetExitCode(err) != ExitCommandError {
		t.Fatalf("exit code = %d, want %d", GetExitCode(err), ExitCommandError)
	}
}
