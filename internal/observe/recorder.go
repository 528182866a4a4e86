package observe

import "sync"

// ScalarRecord is one captured scalar metric.
type ScalarRecord struct {
	Tag   string
	Value float64
	Step  int
}

// ArtifactRecord is one captured alignment artifact.
type ArtifactRecord struct {
	Tag       string
	Alignment [][]float64
	Step      int
}

// Recorder is an in-memory channel that keeps every record it receives,
// in arrival order. It backs test assertions about what the runner emits.
type Recorder struct {
	mu        sync.Mutex
	scalars   []ScalarRecord
	artifacts []ArtifactRecord
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) LogScalar(tag string, value float64, step int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scalars = append(r.scalars, ScalarRecord{Tag: tag, Value: value, Step: step})
	return nil
}

func (r *Recorder) LogArtifact(tag string, alignment [][]float64, step int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.artifacts = append(r.artifacts, ArtifactRecord{Tag: tag, Alignment: alignment, Step: step})
	return nil
}

// Scalars returns a copy of every scalar received so far.
func (r *Recorder) Scalars() []ScalarRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ScalarRecord(nil), r.scalars...)
}

// Artifacts returns a copy of every artifact received so far.
func (r *Recorder) Artifacts() []ArtifactRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ArtifactRecord(nil), r.artifacts...)
}

// ScalarsByTag returns the received scalars with the given tag, in order.
func (r *Recorder) ScalarsByTag(tag string) []ScalarRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ScalarRecord
	for _, s := range r.scalars {
		if s.Tag == tag {
			out = append(out, s)
		}
	}
	return out
}
