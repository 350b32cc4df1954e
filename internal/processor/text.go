package processor

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/andresmejia3/textmask/internal/types"
)

// TextAccumulator is an ordered set of unique recognised lines for one folder run.
type TextAccumulator struct {
	lines []string
	seen  map[string]struct{}
}

func NewTextAccumulator() *TextAccumulator {
	return &TextAccumulator{seen: make(map[string]struct{})}
}

// Add trims line and appends it unless it is empty or already present.
func (a *TextAccumulator) Add(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if _, dup := a.seen[line]; dup {
		return false
	}
	a.seen[line] = struct{}{}
	a.lines = append(a.lines, line)
	return true
}

// WriteFile writes the lines newline-joined with no trailing newline.
func (a *TextAccumulator) WriteFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strings.Join(a.lines, "\n")), 0644)
}

// JoinText builds the single text line for one image from its detections.
func JoinText(dets []types.Detection) string {
	parts := make([]string, 0, len(dets))
	for _, d := range dets {
		if t := strings.TrimSpace(d.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}
