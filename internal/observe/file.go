package observe

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// FileSink persists metrics under one output directory: scalars as
// append-only JSON lines in scalars.jsonl, and alignment artifacts as
// self-contained HTML heatmaps under alignments/. Heatmaps use plain
// HTML/CSS so they open anywhere without external assets.
type FileSink struct {
	dir string

	mu      sync.Mutex
	scalars *os.File
	enc     *json.Encoder
}

type scalarLine struct {
	Tag       string  `json:"tag"`
	Value     float64 `json:"value"`
	Step      int     `json:"step"`
	Timestamp string  `json:"timestamp"`
}

// NewFileSink creates the sink's directory layout and opens the scalar log
// for appending, so a resumed run extends the existing series.
func NewFileSink(dir string) (*FileSink, error) {
	if err := os.MkdirAll(filepath.Join(dir, "alignments"), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create metric directory: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, "scalars.jsonl"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open scalar log: %w", err)
	}
	return &FileSink{dir: dir, scalars: f, enc: json.NewEncoder(f)}, nil
}

func (s *FileSink) LogScalar(tag string, value float64, step int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(scalarLine{
		Tag:       tag,
		Value:     value,
		Step:      step,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *FileSink) LogArtifact(tag string, alignment [][]float64, step int) error {
	name := fmt.Sprintf("%s_step_%d.html", sanitizeTag(tag), step)
	path := filepath.Join(s.dir, "alignments", name)
	return os.WriteFile(path, []byte(renderHeatmap(tag, alignment, step)), 0o644)
}

// Close flushes and closes the scalar log.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scalars.Close()
}

// Dir returns the sink's output directory.
func (s *FileSink) Dir() string {
	return s.dir
}

// sanitizeTag makes a metric tag safe to use as a file name.
func sanitizeTag(tag string) string {
	return strings.NewReplacer("/", "_", "\\", "_", " ", "_").Replace(tag)
}

// renderHeatmap builds a dependency-free HTML page showing the alignment
// matrix as a grid of shaded cells, frames down, text positions across.
func renderHeatmap(tag string, alignment [][]float64, step int) string {
	maxVal := 0.0
	for _, row := range alignment {
		for _, v := range row {
			if v > maxVal {
				maxVal = v
			}
		}
	}
	if maxVal == 0 {
		maxVal = 1
	}

	var rows strings.Builder
	for _, row := range alignment {
		rows.WriteString("<tr>")
		for _, v := range row {
			intensity := int(255 * (1 - v/maxVal))
			fmt.Fprintf(&rows, `<td style="background:rgb(%d,%d,255)" title="%.4f"></td>`,
				intensity, intensity, v)
		}
		rows.WriteString("</tr>\n")
	}

	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>%s (step %d)</title>
    <style>
        body { font-family: monospace; margin: 20px; }
        table { border-collapse: collapse; }
        td { width: 6px; height: 6px; padding: 0; }
        .meta { color: #555; margin-bottom: 10px; }
    </style>
</head>
<body>
    <h2>%s</h2>
    <div class="meta">step %d &middot; %d frames &times; %d text positions</div>
    <table>
%s    </table>
</body>
</html>
`, tag, step, tag, step, len(alignment), alignmentWidth(alignment), rows.String())
}

func alignmentWidth(alignment [][]float64) int {
	if len(alignment) == 0 {
		return 0
	}
	return len(alignment[0])
}
