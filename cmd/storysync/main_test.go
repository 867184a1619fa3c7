package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/kettleworks/storysync/internal/cli"
)

// runHelp runs the CLI with stdout captured.
func runHelp(t *testing.T, args []string) (string, error) {
	t.Helper()

	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	ctx := context.Background()
	err := cli.Run(ctx, args)

	if closeErr := w.Close(); closeErr != nil {
		t.Fatalf("failed to close pipe writer: %v", closeErr)
	}
	os.Stdout = old

	var buf bytes.Buffer
	if _, copyErr := io.Copy(&buf, r); copyErr != nil {
		t.Fatalf("failed to read captured output: %v", copyErr)
	}
	return buf.String(), err
}

func TestCLIInitialization(t *testing.T) {
	output, err := runHelp(t, []string{"storysync", "--help"})
	if err != nil {
		t.Fatalf("CLI initialization failed: %v", err)
	}

	if !strings.Contains(output, "storysync") {
		t.Errorf("expected help output to contain 'storysync', got: %q", output)
	}
	if !strings.Contains(output, "USAGE") || !strings.Contains(output, "COMMANDS") {
		t.Errorf("expected help output to contain USAGE and COMMANDS sections, got: %q", output)
	}
}

func TestVersionFlag(t *testing.T) {
	output, err := runHelp(t, []string{"storysync", "--version"})
	if err != nil {
		t.Fatalf("--version flag failed: %v", err)
	}

	if !strings.Contains(output, "storysync") {
		t.Errorf("expected version output to contain 'storysync', got: %q", output)
	}
}

func TestGlobalFlagsRecognized(t *testing.T) {
	tests := map[string]struct {
		args    []string
		wantErr bool
	}{
		"verbose flag": {
			args:    []string{"storysync", "--verbose", "version"},
			wantErr: false,
		},
		"debug flag": {
			args:    []string{"storysync", "--debug", "version"},
			wantErr: false,
		},
		"no-color flag": {
			args:    []string{"storysync", "--no-color", "version"},
			wantErr: false,
		},
		"combined flags": {
			args:    []string{"storysync", "--verbose", "--no-color", "version"},
			wantErr: false,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := runHelp(t, tt.args)
			if (err != nil) != tt.wantErr {
				t.Errorf("Run() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAllCommandsRegistered(t *testing.T) {
	output, err := runHelp(t, []string{"storysync", "--help"})
	if err != nil {
		t.Fatalf("help command failed: %v", err)
	}

	expectedCommands := []string{
		"version",
		"sync",
		"watch",
		"status",
		"settings",
		"device",
	}

	for _, cmd := range expectedCommands {
		if !strings.Contains(output, cmd) {
			t.Errorf("expected command %q to be registered, help output: %q", cmd, output)
		}
	}
}
