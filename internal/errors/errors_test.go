package errors

import (
	"fmt"
	"testing"
)

func TestConfigErrorFormatting(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "bare",
			err:  NewConfigError("merge failed", nil),
			want: "config error: merge failed",
		},
		{
			name: "with cause",
			err:  NewConfigError("merge failed", ErrUnknownKey),
			want: "config error: merge failed: unknown config key",
		},
		{
			name: "with key",
			err:  NewConfigError("merge failed", ErrUnknownKey).WithKey("training.lrr"),
			want: "config error [key=training.lrr]: merge failed: unknown config key",
		},
		{
			name: "with key and file",
			err:  NewConfigError("merge failed", ErrTypeMismatch).WithKey("data.batch_size").WithFile("override.yaml"),
			want: "config error [key=data.batch_size, file=override.yaml]: merge failed: config value type mismatch",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConfigErrorIs(t *testing.T) {
	err := NewConfigError("write after freeze", ErrFrozen).WithKey("training.lr")

	if !Is(err, ErrFrozen) {
		t.Error("ConfigError wrapping ErrFrozen should match ErrFrozen")
	}
	if Is(err, ErrUnknownKey) {
		t.Error("ConfigError wrapping ErrFrozen should not match ErrUnknownKey")
	}

	var cfgErr *ConfigError
	if !As(err, &cfgErr) {
		t.Fatal("As should extract *ConfigError")
	}
	if cfgErr.Key != "training.lr" {
		t.Errorf("Key = %q, want %q", cfgErr.Key, "training.lr")
	}
}

func TestConfigErrorThroughWrap(t *testing.T) {
	inner := NewConfigError("merge failed", ErrUnknownKey)
	wrapped := Wrapf(inner, "loading %s", "override.yaml")

	if !Is(wrapped, ErrUnknownKey) {
		t.Error("wrapped error should still match ErrUnknownKey")
	}

	var cfgErr *ConfigError
	if !As(wrapped, &cfgErr) {
		t.Error("wrapped error should still extract *ConfigError")
	}
}

func TestDataShapeError(t *testing.T) {
	err := NewDataShapeError("text length exceeds padded width").
		WithField("texts").
		WithIndex(3).
		WithCause(ErrLengthExceedsWidth)

	want := "data shape error [field=texts, example=3]: text length exceeds padded width: true length exceeds padded width"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	if !Is(err, ErrLengthExceedsWidth) {
		t.Error("should match ErrLengthExceedsWidth")
	}

	// Index zero is valid context and must render.
	zero := NewDataShapeError("bad").WithIndex(0)
	if got := zero.Error(); got != "data shape error [example=0]: bad" {
		t.Errorf("Error() = %q", got)
	}
}

func TestLaunchError(t *testing.T) {
	cause := fmt.Errorf("out of device memory")
	err := NewLaunchError("worker failed to start", cause).WithRank(2).WithWorkerCount(4)

	want := "launch error [rank=2, nprocs=4]: worker failed to start: out of device memory"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	var launchErr *LaunchError
	if !As(err, &launchErr) {
		t.Fatal("As should extract *LaunchError")
	}
	if launchErr.Rank != 2 {
		t.Errorf("Rank = %d, want 2", launchErr.Rank)
	}
}

func TestGetSeverity(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Severity
	}{
		{"nil", nil, SeverityWarning},
		{"config", NewConfigError("x", nil), SeverityFatal},
		{"data shape", NewDataShapeError("x"), SeverityFatal},
		{"launch", NewLaunchError("x", nil), SeverityFatal},
		{"plain", fmt.Errorf("boom"), SeverityError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetSeverity(tt.err); got != tt.want {
				t.Errorf("GetSeverity() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSeverityString(t *testing.T) {
	if SeverityFatal.String() != "fatal" {
		t.Errorf("SeverityFatal.String() = %q", SeverityFatal.String())
	}
	if Severity(99).String() != "unknown" {
		t.Errorf("unknown severity should stringify to %q", "unknown")
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil, "context") != nil {
		t.Error("Wrap(nil) should return nil")
	}
	if Wrapf(nil, "context %d", 1) != nil {
		t.Error("Wrapf(nil) should return nil")
	}
}
