package dyffdiff

import (
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

type recordingDiff struct{ calls int }

func (r *recordingDiff) ComputeDiff(_, _ string, base, head []byte) string {
	r.calls++
	if string(base) == string(head) {
		return ""
	}
	return "line diff"
}

// fakeDyff writes a script standing in for dyff that exits with code.
func fakeDyff(t *testing.T, output string, code int) string {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	path := filepath.Join(t.TempDir(), "dyff")
	script := "#!/bin/sh\nprintf '" + output + "'\nexit " + strconv.Itoa(code) + "\n"
	if err := os.WriteFile(path, []byte(script), 0o700); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestComputeDiff_NoBinaryFallsBack(t *testing.T) {
	fallback := &recordingDiff{}
	a := NewWithBinary("", fallback)

	if got := a.ComputeDiff("a", "b", []byte("x: 1"), []byte("x: 2")); got != "line diff" {
		t.Errorf("ComputeDiff() = %q, want fallback output", got)
	}
	if fallback.calls != 1 {
		t.Errorf("fallback called %d times, want 1", fallback.calls)
	}
}

func TestComputeDiff_Differences(t *testing.T) {
	fallback := &recordingDiff{}
	a := NewWithBinary(fakeDyff(t, "replicaCount\\n  ± value change\\n    - 1\\n    + 2\\n", 1), fallback)

	got := a.ComputeDiff("galaxy/default (installed)", "galaxy/default (desired)", []byte("replicaCount: 1"), []byte("replicaCount: 2"))
	for _, want := range []string{"--- galaxy/default (installed)", "+++ galaxy/default (desired)", "± value change"} {
		if !strings.Contains(got, want) {
			t.Errorf("diff missing %q:\n%s", want, got)
		}
	}
	if fallback.calls != 0 {
		t.Error("fallback used although dyff succeeded")
	}
}

func TestComputeDiff_SemanticallyEqual(t *testing.T) {
	fallback := &recordingDiff{}
	a := NewWithBinary(fakeDyff(t, "", 0), fallback)

	if got := a.ComputeDiff("a", "b", []byte("{a: 1, b: 2}"), []byte("b: 2\na: 1\n")); got != "" {
		t.Errorf("ComputeDiff() = %q, want empty", got)
	}
}

func TestComputeDiff_ErrorFallsBack(t *testing.T) {
	fallback := &recordingDiff{}
	a := NewWithBinary(fakeDyff(t, "", 2), fallback)

	if got := a.ComputeDiff("a", "b", []byte("x: 1"), []byte("x: 2")); got != "line diff" {
		t.Errorf("ComputeDiff() = %q, want fallback output", got)
	}
}

func TestComputeDiff_RealDyff(t *testing.T) {
	if _, err := exec.LookPath("dyff"); err != nil {
		t.Skip("dyff not available on PATH")
	}
	a := New(&recordingDiff{})

	same := []byte("ingress:\n  path: /galaxy\n")
	if got := a.ComputeDiff("a", "b", same, same); got != "" {
		t.Errorf("identical documents produced a diff:\n%s", got)
	}
	if got := a.ComputeDiff("a", "b", same, []byte("ingress:\n  path: /gxy\n")); got == "" {
		t.Error("expected a diff for changed values")
	}
}
