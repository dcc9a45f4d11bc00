// Package linediff provides unified diffs of rendered values.
package linediff

import (
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Adapter implements ports.DiffPort using a line-by-line unified diff.
type Adapter struct {
	context int
}

// New creates a diff adapter showing contextLines around each change.
func New(contextLines int) *Adapter {
	if contextLines < 0 {
		contextLines = 3
	}
	return &Adapter{context: contextLines}
}

// ComputeDiff returns "" when base and head are identical.
func (a *Adapter) ComputeDiff(baseName, headName string, base, head []byte) string {
	if string(base) == string(head) {
		return ""
	}
	ud := difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(base)),
		B:        difflib.SplitLines(string(head)),
		FromFile: baseName,
		ToFile:   headName,
		Context:  a.context,
	}
	text, err := difflib.GetUnifiedDiffString(ud)
	if err != nil {
		return fmt.Sprintf("error computing diff: %s", err)
	}
	return strings.TrimSpace(text)
}
