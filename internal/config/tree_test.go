package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cadenza-ml/cadenza/internal/errors"
)

func writeOverrideFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "override.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing override file: %v", err)
	}
	return path
}

func TestDefaultsAreIndependent(t *testing.T) {
	a := Defaults()
	if err := a.Set("training.lr", 0.5); err != nil {
		t.Fatalf("Set: %v", err)
	}

	b := Defaults()
	if got := b.Get("training.lr"); got != 1e-3 {
		t.Errorf("second Defaults() tree saw %v for training.lr, want 0.001", got)
	}
}

func TestMergeFromFile(t *testing.T) {
	path := writeOverrideFile(t, "data:\n  batch_size: 2\ntraining:\n  lr: 0.01\n")

	tree := Defaults()
	if err := tree.MergeFromFile(path); err != nil {
		t.Fatalf("MergeFromFile: %v", err)
	}

	if got := tree.Get("data.batch_size"); got != 2 {
		t.Errorf("data.batch_size = %v, want 2", got)
	}
	if got := tree.Get("training.lr"); got != 0.01 {
		t.Errorf("training.lr = %v, want 0.01", got)
	}
	// Keys absent from the file keep their defaults.
	if got := tree.Get("data.n_mels"); got != 80 {
		t.Errorf("data.n_mels = %v, want 80", got)
	}
}

func TestMergeFromFileUnknownKey(t *testing.T) {
	path := writeOverrideFile(t, "training:\n  lrr: 0.01\n")

	tree := Defaults()
	err := tree.MergeFromFile(path)
	if err == nil {
		t.Fatal("expected error for unknown key")
	}
	if !errors.Is(err, errors.ErrUnknownKey) {
		t.Errorf("error should match ErrUnknownKey, got %v", err)
	}

	var cfgErr *errors.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatal("error should be a *ConfigError")
	}
	if cfgErr.Key != "training.lrr" {
		t.Errorf("Key = %q, want training.lrr", cfgErr.Key)
	}
}

func TestMergeFromFileTypeMismatch(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"string for int", "data:\n  batch_size: many\n"},
		{"fractional for int", "data:\n  batch_size: 2.5\n"},
		{"string for float", "training:\n  lr: fast\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeOverrideFile(t, tt.content)
			err := Defaults().MergeFromFile(path)
			if err == nil {
				t.Fatal("expected type mismatch error")
			}
			if !errors.Is(err, errors.ErrTypeMismatch) {
				t.Errorf("error should match ErrTypeMismatch, got %v", err)
			}
		})
	}
}

func TestMergeFromList(t *testing.T) {
	tree := Defaults()
	err := tree.MergeFromList([]string{
		"training.lr", "0.02",
		"data.batch_size", "16",
	})
	if err != nil {
		t.Fatalf("MergeFromList: %v", err)
	}

	if got := tree.Get("training.lr"); got != 0.02 {
		t.Errorf("training.lr = %v, want 0.02", got)
	}
	if got := tree.Get("data.batch_size"); got != 16 {
		t.Errorf("data.batch_size = %v, want 16", got)
	}
}

func TestMergeFromListOddLength(t *testing.T) {
	err := Defaults().MergeFromList([]string{"training.lr"})
	if err == nil {
		t.Fatal("expected error for odd-length list")
	}
	var cfgErr *errors.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Error("error should be a *ConfigError")
	}
}

// Later overrides win on shared keys; untouched keys keep defaults.
func TestListAfterFileWins(t *testing.T) {
	path := writeOverrideFile(t, "training:\n  lr: 0.01\n  weight_decay: 0.0001\n")

	tree := Defaults()
	if err := tree.MergeFromFile(path); err != nil {
		t.Fatalf("MergeFromFile: %v", err)
	}
	if err := tree.MergeFromList([]string{"training.lr", "0.5"}); err != nil {
		t.Fatalf("MergeFromList: %v", err)
	}

	if got := tree.Get("training.lr"); got != 0.5 {
		t.Errorf("training.lr = %v, want 0.5 (list override should win)", got)
	}
	if got := tree.Get("training.weight_decay"); got != 0.0001 {
		t.Errorf("training.weight_decay = %v, want 0.0001 (file override retained)", got)
	}
	if got := tree.Get("training.grad_clip_thresh"); got != 1.0 {
		t.Errorf("training.grad_clip_thresh = %v, want default 1.0", got)
	}
}

func TestFreezeRejectsAllWrites(t *testing.T) {
	path := writeOverrideFile(t, "training:\n  lr: 0.01\n")

	tree := Defaults()
	tree.Freeze()

	if !tree.Frozen() {
		t.Fatal("Frozen() should be true after Freeze()")
	}

	if err := tree.Set("training.lr", 0.5); !errors.Is(err, errors.ErrFrozen) {
		t.Errorf("Set after freeze = %v, want ErrFrozen", err)
	}
	if err := tree.MergeFromFile(path); !errors.Is(err, errors.ErrFrozen) {
		t.Errorf("MergeFromFile after freeze = %v, want ErrFrozen", err)
	}
	if err := tree.MergeFromList([]string{"training.lr", "0.5"}); !errors.Is(err, errors.ErrFrozen) {
		t.Errorf("MergeFromList after freeze = %v, want ErrFrozen", err)
	}

	// No override after freeze is ever silently accepted.
	if got := tree.Get("training.lr"); got != 1e-3 {
		t.Errorf("training.lr = %v after rejected writes, want default 0.001", got)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	tree := Defaults()
	if err := tree.Set("data.batch_size", 4); err != nil {
		t.Fatalf("Set: %v", err)
	}
	tree.Freeze()

	clone := tree.Clone()
	if clone.Frozen() {
		t.Error("clone should be unfrozen")
	}
	if got := clone.Get("data.batch_size"); got != 4 {
		t.Errorf("clone data.batch_size = %v, want 4", got)
	}

	if err := clone.Set("data.batch_size", 32); err != nil {
		t.Fatalf("Set on clone: %v", err)
	}
	if got := tree.Get("data.batch_size"); got != 4 {
		t.Errorf("original data.batch_size = %v after clone mutation, want 4", got)
	}
}

func TestLoad(t *testing.T) {
	tree := Defaults()
	if err := tree.MergeFromList([]string{"data.batch_size", "2", "data.valid_size", "2"}); err != nil {
		t.Fatalf("MergeFromList: %v", err)
	}
	tree.Freeze()

	cfg, err := Load(tree)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Data.BatchSize != 2 {
		t.Errorf("Data.BatchSize = %d, want 2", cfg.Data.BatchSize)
	}
	if cfg.Training.GradClipThresh != 1.0 {
		t.Errorf("Training.GradClipThresh = %f, want 1.0", cfg.Training.GradClipThresh)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tree := Defaults()
	if err := tree.Set("training.lr", -1.0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	tree.Freeze()

	if _, err := Load(tree); err == nil {
		t.Fatal("Load should reject a non-positive learning rate")
	}
}

func TestVocoderDefaults(t *testing.T) {
	tree := VocoderDefaults()
	tree.Freeze()

	cfg, err := LoadVocoder(tree)
	if err != nil {
		t.Fatalf("LoadVocoder: %v", err)
	}

	if cfg.Data.ClipFrames != 65 {
		t.Errorf("Data.ClipFrames = %d, want 65", cfg.Data.ClipFrames)
	}
	if cfg.Model.NFlows != 8 {
		t.Errorf("Model.NFlows = %d, want 8", cfg.Model.NFlows)
	}
	if got := cfg.Model.UpsampleFactors; len(got) != 2 || got[0] != 16 || got[1] != 16 {
		t.Errorf("Model.UpsampleFactors = %v, want [16 16]", got)
	}
	if cfg.Model.Sigma != 1.0 {
		t.Errorf("Model.Sigma = %f, want 1.0", cfg.Model.Sigma)
	}
	if cfg.Training.MaxIteration != 3000000 {
		t.Errorf("Training.MaxIteration = %d, want 3000000", cfg.Training.MaxIteration)
	}
}

func TestVocoderListOverride(t *testing.T) {
	tree := VocoderDefaults()
	if err := tree.MergeFromList([]string{"model.upsample_factors", "8,32"}); err != nil {
		t.Fatalf("MergeFromList: %v", err)
	}

	cfg, err := LoadVocoder(tree)
	if err != nil {
		t.Fatalf("LoadVocoder: %v", err)
	}
	if got := cfg.Model.UpsampleFactors; len(got) != 2 || got[0] != 8 || got[1] != 32 {
		t.Errorf("Model.UpsampleFactors = %v, want [8 32]", got)
	}
}

func TestDumpRoundTrip(t *testing.T) {
	tree := Defaults()
	if err := tree.Set("training.lr", 0.02); err != nil {
		t.Fatalf("Set: %v", err)
	}
	tree.Freeze()

	raw, err := tree.Dump()
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}

	path := filepath.Join(t.TempDir(), "dumped.yaml")
	if err := os.WriteFile(path, raw, 0644); err != nil {
		t.Fatalf("writing dump: %v", err)
	}

	reloaded := Defaults()
	if err := reloaded.MergeFromFile(path); err != nil {
		t.Fatalf("re-merging dump: %v", err)
	}
	for _, key := range tree.Keys() {
		if !equalValue(tree.Get(key), reloaded.Get(key)) {
			t.Errorf("key %s: dump %v, reload %v", key, tree.Get(key), reloaded.Get(key))
		}
	}
}
