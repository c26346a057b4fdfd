package shell

import (
	"context"
	"testing"
)

func TestRunCapturesStdout(t *testing.T) {
	ctx, cancel := ProbeContext(context.Background())
	defer cancel()

	r := NewRunner()
	res, err := r.Run(ctx, "", "echo", "hello")
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if res.Stdout != "hello" {
		t.Errorf("Stdout = %q, want %q", res.Stdout, "hello")
	}
	if res.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", res.ExitCode)
	}
}

func TestRunNonZeroExit(t *testing.T) {
	ctx, cancel := StatusContext(context.Background())
	defer cancel()

	r := NewRunner()
	res, err := r.Run(ctx, "", "sh", "-c", "exit 7")
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if res.ExitCode != 7 {
		t.Errorf("ExitCode = %d, want 7", res.ExitCode)
	}
}

func TestRunMissingBinary(t *testing.T) {
	ctx, cancel := ProbeContext(context.Background())
	defer cancel()

	r := NewRunner()
	_, err := r.Run(ctx, "", "jacques-definitely-not-a-real-binary")
	if err == nil {
		t.Error("expected error for missing binary")
	}
}

func TestCommandExists(t *testing.T) {
	if !CommandExists("sh") {
		t.Error("expected sh to exist on PATH")
	}
	if CommandExists("jacques-definitely-not-a-real-binary") {
		t.Error("expected nonexistent binary to report false")
	}
}
