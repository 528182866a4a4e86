package checkpoint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cadenza-ml/cadenza/internal/model"
)

func testParams() []*model.Param {
	a := model.NewParam("embedding", 4)
	b := model.NewParam("decoder.bias", 2)
	copy(a.Value, []float64{1, 2, 3, 4})
	copy(b.Value, []float64{-1, -2})
	return []*model.Param{a, b}
}

func TestCaptureApplyRoundTrip(t *testing.T) {
	params := testParams()
	opt := model.NewAdam(params, 1e-3, 0.9, 0.999, 1e-8, 0)

	// Accumulate some optimizer state.
	params[0].Grad[0] = 1
	opt.Step(params)

	snap := Capture(500, params, opt)
	if snap.Iteration != 500 {
		t.Errorf("Iteration = %d, want 500", snap.Iteration)
	}

	// Mutating the live parameters must not touch the snapshot.
	params[0].Value[0] = 99
	if snap.Params[0].Value[0] == 99 {
		t.Errorf("snapshot shares memory with live parameters")
	}

	fresh := testParams()
	freshOpt := model.NewAdam(fresh, 1e-3, 0.9, 0.999, 1e-8, 0)
	if err := snap.Apply(fresh, freshOpt); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if fresh[1].Value[0] != -1 || fresh[1].Value[1] != -2 {
		t.Errorf("restored decoder.bias = %v", fresh[1].Value)
	}
	if freshOpt.StepCount() != 1 {
		t.Errorf("restored optimizer StepCount() = %d, want 1", freshOpt.StepCount())
	}
}

func TestApplyRejectsMismatchedModel(t *testing.T) {
	params := testParams()
	opt := model.NewAdam(params, 1e-3, 0.9, 0.999, 1e-8, 0)
	snap := Capture(1, params, opt)

	// Missing parameter.
	other := []*model.Param{model.NewParam("unknown", 4)}
	if err := snap.Apply(other, nil); err == nil {
		t.Errorf("Apply accepted a model with an unknown parameter")
	}

	// Size mismatch must not partially write.
	resized := []*model.Param{model.NewParam("embedding", 4), model.NewParam("decoder.bias", 3)}
	if err := snap.Apply(resized, nil); err == nil {
		t.Errorf("Apply accepted a mis-sized parameter")
	}
	for _, v := range resized[0].Value {
		if v != 0 {
			t.Errorf("failed Apply partially wrote parameter values: %v", resized[0].Value)
		}
	}
}

func TestStoreSaveLoad(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "checkpoints"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	params := testParams()
	opt := model.NewAdam(params, 1e-3, 0.9, 0.999, 1e-8, 0)

	path, err := store.Save(Capture(1000, params, opt))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if filepath.Base(path) != "checkpoint_1000.json" {
		t.Errorf("snapshot path = %s", path)
	}

	params[0].Value[0] = 42
	if _, err := store.Save(Capture(2000, params, opt)); err != nil {
		t.Fatalf("Save: %v", err)
	}

	snap, err := store.Load(1000)
	if err != nil {
		t.Fatalf("Load(1000): %v", err)
	}
	if snap.Iteration != 1000 || snap.Params[0].Value[0] != 1 {
		t.Errorf("Load(1000) = iteration %d, embedding[0] %v", snap.Iteration, snap.Params[0].Value[0])
	}

	latest, err := store.LoadLatest()
	if err != nil {
		t.Fatalf("LoadLatest: %v", err)
	}
	if latest.Iteration != 2000 || latest.Params[0].Value[0] != 42 {
		t.Errorf("LoadLatest = iteration %d, embedding[0] %v", latest.Iteration, latest.Params[0].Value[0])
	}
}

func TestLoadLatestEmptyStore(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	snap, err := store.LoadLatest()
	if err != nil {
		t.Fatalf("LoadLatest on empty store: %v", err)
	}
	if snap != nil {
		t.Errorf("empty store returned a snapshot: %+v", snap)
	}
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	params := testParams()
	opt := model.NewAdam(params, 1e-3, 0.9, 0.999, 1e-8, 0)
	if _, err := store.Save(Capture(1, params, opt)); err != nil {
		t.Fatalf("Save: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}
