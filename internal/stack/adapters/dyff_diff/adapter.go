// Package dyffdiff compares values trees semantically with the dyff CLI.
package dyffdiff

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/nathantilsley/chart-stack/internal/stack/ports"
)

// Adapter implements ports.DiffPort. When dyff is missing or fails, the
// fallback computes the diff instead.
type Adapter struct {
	bin      string
	fallback ports.DiffPort
}

// New looks dyff up on PATH. fallback must not be nil.
func New(fallback ports.DiffPort) *Adapter {
	bin, err := exec.LookPath("dyff")
	if err != nil {
		bin = ""
	}
	return NewWithBinary(bin, fallback)
}

// NewWithBinary uses an explicit dyff binary; an empty path always falls back.
func NewWithBinary(bin string, fallback ports.DiffPort) *Adapter {
	return &Adapter{bin: bin, fallback: fallback}
}

// ComputeDiff returns "" when the documents are semantically equal.
func (a *Adapter) ComputeDiff(baseName, headName string, base, head []byte) string {
	if a.bin == "" {
		return a.fallback.ComputeDiff(baseName, headName, base, head)
	}
	out, changed, err := a.between(base, head)
	if err != nil {
		return a.fallback.ComputeDiff(baseName, headName, base, head)
	}
	if !changed {
		return ""
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "--- %s\n", baseName)
	fmt.Fprintf(&sb, "+++ %s\n\n", headName)
	sb.WriteString(out)
	return strings.TrimSpace(sb.String())
}

// between runs `dyff between`; exit code 1 means differences were found.
func (a *Adapter) between(base, head []byte) (string, bool, error) {
	tmpDir, err := os.MkdirTemp("", "chart-stack-dyff-*")
	if err != nil {
		return "", false, err
	}
	defer os.RemoveAll(tmpDir)

	baseFile := filepath.Join(tmpDir, "installed.yaml")
	headFile := filepath.Join(tmpDir, "desired.yaml")
	if err := os.WriteFile(baseFile, base, 0o600); err != nil {
		return "", false, err
	}
	if err := os.WriteFile(headFile, head, 0o600); err != nil {
		return "", false, err
	}

	cmd := exec.Command(a.bin, "between", "--color=off", "--omit-header", "--set-exit-code", baseFile, headFile)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return "", false, nil
	case errors.As(err, &exitErr) && exitErr.ExitCode() == 1:
		return cleanOutput(stdout.String(), tmpDir), true, nil
	default:
		return "", false, fmt.Errorf("dyff: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
}

// cleanOutput drops lines that mention the temp files so output is stable.
func cleanOutput(output, tmpDir string) string {
	var cleaned []string
	for _, line := range strings.Split(output, "\n") {
		if strings.Contains(line, tmpDir) {
			continue
		}
		if len(cleaned) == 0 && strings.TrimSpace(line) == "" {
			continue
		}
		cleaned = append(cleaned, line)
	}
	return strings.Join(cleaned, "\n")
}
