package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "training.grad_clip_thresh")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Validate checks the Config for invalid values and returns all validation
// errors found. An empty result means the config is usable for training.
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError

	if c.Data.BatchSize <= 0 {
		errs = append(errs, ValidationError{
			Field: "data.batch_size", Value: c.Data.BatchSize,
			Message: "must be positive",
		})
	}
	if c.Data.ValidSize < 0 {
		errs = append(errs, ValidationError{
			Field: "data.valid_size", Value: c.Data.ValidSize,
			Message: "must be non-negative",
		})
	}
	if c.Data.NMels <= 0 {
		errs = append(errs, ValidationError{
			Field: "data.n_mels", Value: c.Data.NMels,
			Message: "must be positive",
		})
	}
	if c.Data.PaddingIdx < 0 {
		errs = append(errs, ValidationError{
			Field: "data.padding_idx", Value: c.Data.PaddingIdx,
			Message: "must be non-negative",
		})
	}
	if c.Data.SampleRate <= 0 {
		errs = append(errs, ValidationError{
			Field: "data.sample_rate", Value: c.Data.SampleRate,
			Message: "must be positive",
		})
	}
	if c.Data.HopLength <= 0 {
		errs = append(errs, ValidationError{
			Field: "data.hop_length", Value: c.Data.HopLength,
			Message: "must be positive",
		})
	}

	if c.Model.VocabSize <= 0 {
		errs = append(errs, ValidationError{
			Field: "model.vocab_size", Value: c.Model.VocabSize,
			Message: "must be positive",
		})
	}
	if c.Model.ReductionFactor < 1 {
		errs = append(errs, ValidationError{
			Field: "model.reduction_factor", Value: c.Model.ReductionFactor,
			Message: "must be at least 1",
		})
	}
	for field, p := range map[string]float64{
		"model.p_encoder_dropout":   c.Model.PEncoderDropout,
		"model.p_prenet_dropout":    c.Model.PPrenetDropout,
		"model.p_attention_dropout": c.Model.PAttentionDropout,
		"model.p_decoder_dropout":   c.Model.PDecoderDropout,
		"model.p_postnet_dropout":   c.Model.PPostnetDropout,
	} {
		if p < 0 || p >= 1 {
			errs = append(errs, ValidationError{
				Field: field, Value: p,
				Message: "must be in [0, 1)",
			})
		}
	}

	if c.Training.LR <= 0 {
		errs = append(errs, ValidationError{
			Field: "training.lr", Value: c.Training.LR,
			Message: "must be positive",
		})
	}
	if c.Training.WeightDecay < 0 {
		errs = append(errs, ValidationError{
			Field: "training.weight_decay", Value: c.Training.WeightDecay,
			Message: "must be non-negative",
		})
	}
	if c.Training.GradClipThresh <= 0 {
		errs = append(errs, ValidationError{
			Field: "training.grad_clip_thresh", Value: c.Training.GradClipThresh,
			Message: "must be positive",
		})
	}
	if c.Training.ValidInterval <= 0 {
		errs = append(errs, ValidationError{
			Field: "training.valid_interval", Value: c.Training.ValidInterval,
			Message: "must be positive",
		})
	}
	if c.Training.SaveInterval <= 0 {
		errs = append(errs, ValidationError{
			Field: "training.save_interval", Value: c.Training.SaveInterval,
			Message: "must be positive",
		})
	}
	if c.Training.MaxIteration <= 0 {
		errs = append(errs, ValidationError{
			Field: "training.max_iteration", Value: c.Training.MaxIteration,
			Message: "must be positive",
		})
	}

	return errs
}

// Validate checks the VocoderConfig for invalid values.
func (c *VocoderConfig) Validate() []ValidationError {
	var errs []ValidationError

	if c.Data.BatchSize <= 0 {
		errs = append(errs, ValidationError{
			Field: "data.batch_size", Value: c.Data.BatchSize,
			Message: "must be positive",
		})
	}
	if c.Data.ClipFrames <= 0 {
		errs = append(errs, ValidationError{
			Field: "data.clip_frames", Value: c.Data.ClipFrames,
			Message: "must be positive",
		})
	}
	if len(c.Model.UpsampleFactors) == 0 {
		errs = append(errs, ValidationError{
			Field: "model.upsample_factors", Value: c.Model.UpsampleFactors,
			Message: "must not be empty",
		})
	} else {
		product := 1
		for _, f := range c.Model.UpsampleFactors {
			product *= f
		}
		// The conditioning spectrogram must upsample exactly to audio rate.
		if c.Data.HopLength > 0 && product != c.Data.HopLength {
			errs = append(errs, ValidationError{
				Field: "model.upsample_factors", Value: c.Model.UpsampleFactors,
				Message: fmt.Sprintf("product must equal data.hop_length (%d)", c.Data.HopLength),
			})
		}
	}
	if c.Model.NFlows <= 0 {
		errs = append(errs, ValidationError{
			Field: "model.n_flows", Value: c.Model.NFlows,
			Message: "must be positive",
		})
	}
	if c.Model.NGroup <= 0 {
		errs = append(errs, ValidationError{
			Field: "model.n_group", Value: c.Model.NGroup,
			Message: "must be positive",
		})
	}
	if c.Model.Sigma <= 0 {
		errs = append(errs, ValidationError{
			Field: "model.sigma", Value: c.Model.Sigma,
			Message: "must be positive",
		})
	}
	if c.Training.LR <= 0 {
		errs = append(errs, ValidationError{
			Field: "training.lr", Value: c.Training.LR,
			Message: "must be positive",
		})
	}
	if c.Training.MaxIteration <= 0 {
		errs = append(errs, ValidationError{
			Field: "training.max_iteration", Value: c.Training.MaxIteration,
			Message: "must be positive",
		})
	}

	return errs
}
