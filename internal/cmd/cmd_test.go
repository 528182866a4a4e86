package cmd

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/cadenza-ml/cadenza/internal/config"
)

func TestParseOpts(t *testing.T) {
	pairs, err := parseOpts([]string{"training.lr=0.001", "data.batch_size=16"})
	if err != nil {
		t.Fatalf("parseOpts: %v", err)
	}
	want := []string{"training.lr", "0.001", "data.batch_size", "16"}
	if !reflect.DeepEqual(pairs, want) {
		t.Errorf("parseOpts = %v, want %v", pairs, want)
	}

	for _, bad := range []string{"training.lr", "=0.001"} {
		if _, err := parseOpts([]string{bad}); err == nil {
			t.Errorf("parseOpts accepted %q", bad)
		}
	}

	pairs, err = parseOpts(nil)
	if err != nil {
		t.Fatalf("parseOpts(nil): %v", err)
	}
	if len(pairs) != 0 {
		t.Errorf("parseOpts(nil) = %v", pairs)
	}
}

func TestResolveTreeAppliesFileThenOpts(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "override.yaml")
	yaml := "training:\n  lr: 0.01\n  max_iteration: 100\n"
	if err := os.WriteFile(file, []byte(yaml), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	tree, err := resolveTree(config.Defaults(), file, []string{"training.lr=0.5"})
	if err != nil {
		t.Fatalf("resolveTree: %v", err)
	}

	// The list override lands after the file and wins.
	if got := tree.Get("training.lr"); got != 0.5 {
		t.Errorf("training.lr = %v, want 0.5", got)
	}
	if got := tree.Get("training.max_iteration"); got != 100 {
		t.Errorf("training.max_iteration = %v, want 100", got)
	}
}

func TestResolveTreeRejectsUnknownKey(t *testing.T) {
	if _, err := resolveTree(config.Defaults(), "", []string{"training.lrr=0.5"}); err == nil {
		t.Errorf("resolveTree accepted an unknown override key")
	}
}

func TestDumpConfigRoundTrips(t *testing.T) {
	tree := config.Defaults()
	if err := tree.MergeFromList([]string{"data.batch_size", "32"}); err != nil {
		t.Fatalf("MergeFromList: %v", err)
	}
	tree.Freeze()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := dumpConfig(tree, path); err != nil {
		t.Fatalf("dumpConfig: %v", err)
	}

	reloaded, err := resolveTree(config.Defaults(), path, nil)
	if err != nil {
		t.Fatalf("resolveTree on dump: %v", err)
	}
	if got := reloaded.Get("data.batch_size"); got != 32 {
		t.Errorf("reloaded data.batch_size = %v, want 32", got)
	}
}
