package data

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
)

// exampleRecord is the on-disk form of one example: JSON lines, one object
// per line, produced by the feature-extraction step upstream of training.
type exampleRecord struct {
	Text []int64     `json:"text"`
	Mel  [][]float64 `json:"mel"`
}

// LoadFile reads a JSONL dataset file into memory. Examples keep file
// order, so the validation split taken from the head is stable across runs.
func LoadFile(path string) (Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()

	var ds Dataset
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 64*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var rec exampleRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("bad example at line %d: %w", line, err)
		}
		ds = append(ds, Example{Text: rec.Text, Mel: rec.Mel})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read dataset: %w", err)
	}
	if len(ds) == 0 {
		return nil, fmt.Errorf("dataset %s holds no examples", path)
	}
	return ds, nil
}
