package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/cadenza-ml/cadenza/internal/errors"
)

// Tree is a hierarchical key-value store of hyperparameters backed by viper.
// It supports override-by-file and override-by-list against a compiled
// default schema, then freezing to prevent further mutation.
//
// A Tree is obtained from Defaults or VocoderDefaults; each call returns an
// independent copy, so mutating one tree never affects another. All merges
// must happen strictly before Freeze.
type Tree struct {
	v        *viper.Viper
	schema   map[string]any // dotted key -> compiled default (type reference)
	register func(*viper.Viper)
	frozen   bool
}

// Defaults returns a fresh, independent tree of the compiled acoustic-model
// defaults.
func Defaults() *Tree {
	return newTree(registerDefaults)
}

// VocoderDefaults returns a fresh, independent tree of the compiled vocoder
// defaults.
func VocoderDefaults() *Tree {
	return newTree(registerVocoderDefaults)
}

func newTree(register func(*viper.Viper)) *Tree {
	v := viper.New()
	register(v)

	schema := make(map[string]any)
	for _, key := range v.AllKeys() {
		schema[key] = v.Get(key)
	}

	return &Tree{v: v, schema: schema, register: register}
}

// registerDefaults registers the acoustic-model default values with viper.
func registerDefaults(v *viper.Viper) {
	defaults := Default()

	// Data defaults
	v.SetDefault("data.batch_size", defaults.Data.BatchSize)
	v.SetDefault("data.valid_size", defaults.Data.ValidSize)
	v.SetDefault("data.sample_rate", defaults.Data.SampleRate)
	v.SetDefault("data.n_fft", defaults.Data.NFFT)
	v.SetDefault("data.win_length", defaults.Data.WinLength)
	v.SetDefault("data.hop_length", defaults.Data.HopLength)
	v.SetDefault("data.f_max", defaults.Data.FMax)
	v.SetDefault("data.n_mels", defaults.Data.NMels)
	v.SetDefault("data.padding_idx", defaults.Data.PaddingIdx)

	// Model defaults
	v.SetDefault("model.vocab_size", defaults.Model.VocabSize)
	v.SetDefault("model.d_encoder", defaults.Model.DEncoder)
	v.SetDefault("model.encoder_conv_layers", defaults.Model.EncoderConvLayers)
	v.SetDefault("model.encoder_kernel_size", defaults.Model.EncoderKernelSize)
	v.SetDefault("model.d_prenet", defaults.Model.DPrenet)
	v.SetDefault("model.d_attention_rnn", defaults.Model.DAttentionRNN)
	v.SetDefault("model.d_decoder_rnn", defaults.Model.DDecoderRNN)
	v.SetDefault("model.attention_filters", defaults.Model.AttentionFilters)
	v.SetDefault("model.attention_kernel_size", defaults.Model.AttentionKernelSize)
	v.SetDefault("model.d_attention", defaults.Model.DAttention)
	v.SetDefault("model.d_postnet", defaults.Model.DPostnet)
	v.SetDefault("model.postnet_kernel_size", defaults.Model.PostnetKernelSize)
	v.SetDefault("model.postnet_conv_layers", defaults.Model.PostnetConvLayers)
	v.SetDefault("model.reduction_factor", defaults.Model.ReductionFactor)
	v.SetDefault("model.p_encoder_dropout", defaults.Model.PEncoderDropout)
	v.SetDefault("model.p_prenet_dropout", defaults.Model.PPrenetDropout)
	v.SetDefault("model.p_attention_dropout", defaults.Model.PAttentionDropout)
	v.SetDefault("model.p_decoder_dropout", defaults.Model.PDecoderDropout)
	v.SetDefault("model.p_postnet_dropout", defaults.Model.PPostnetDropout)

	// Training defaults
	v.SetDefault("training.lr", defaults.Training.LR)
	v.SetDefault("training.weight_decay", defaults.Training.WeightDecay)
	v.SetDefault("training.grad_clip_thresh", defaults.Training.GradClipThresh)
	v.SetDefault("training.valid_interval", defaults.Training.ValidInterval)
	v.SetDefault("training.save_interval", defaults.Training.SaveInterval)
	v.SetDefault("training.max_iteration", defaults.Training.MaxIteration)
}

// registerVocoderDefaults registers the vocoder default values with viper.
func registerVocoderDefaults(v *viper.Viper) {
	defaults := VocoderDefault()

	// Data defaults
	v.SetDefault("data.batch_size", defaults.Data.BatchSize)
	v.SetDefault("data.valid_size", defaults.Data.ValidSize)
	v.SetDefault("data.sample_rate", defaults.Data.SampleRate)
	v.SetDefault("data.n_fft", defaults.Data.NFFT)
	v.SetDefault("data.win_length", defaults.Data.WinLength)
	v.SetDefault("data.hop_length", defaults.Data.HopLength)
	v.SetDefault("data.f_max", defaults.Data.FMax)
	v.SetDefault("data.n_mels", defaults.Data.NMels)
	v.SetDefault("data.clip_frames", defaults.Data.ClipFrames)

	// Model defaults
	v.SetDefault("model.upsample_factors", defaults.Model.UpsampleFactors)
	v.SetDefault("model.n_flows", defaults.Model.NFlows)
	v.SetDefault("model.n_layers", defaults.Model.NLayers)
	v.SetDefault("model.n_group", defaults.Model.NGroup)
	v.SetDefault("model.channels", defaults.Model.Channels)
	v.SetDefault("model.kernel_size", defaults.Model.KernelSize)
	v.SetDefault("model.sigma", defaults.Model.Sigma)

	// Training defaults
	v.SetDefault("training.lr", defaults.Training.LR)
	v.SetDefault("training.valid_interval", defaults.Training.ValidInterval)
	v.SetDefault("training.save_interval", defaults.Training.SaveInterval)
	v.SetDefault("training.max_iteration", defaults.Training.MaxIteration)
}

// Set applies a single override. The key must exist in the compiled schema
// and the value must be coercible to the schema type of that key. Returns a
// ConfigError on a frozen tree, an unknown key, or an incompatible value.
func (t *Tree) Set(key string, value any) error {
	if t.frozen {
		return errors.NewConfigError("write attempted after freeze", errors.ErrFrozen).WithKey(key)
	}

	def, ok := t.schema[key]
	if !ok {
		return errors.NewConfigError("override key not in default schema", errors.ErrUnknownKey).WithKey(key)
	}

	coerced, err := coerce(def, value)
	if err != nil {
		return errors.NewConfigError(err.Error(), errors.ErrTypeMismatch).WithKey(key)
	}

	t.v.Set(key, coerced)
	return nil
}

// MergeFromFile overlays values from a YAML file onto the tree, key by key.
// Keys absent from the file are left untouched. Fails with a ConfigError if
// a file key does not exist in the default schema or has an incompatible
// type. Must be called before Freeze.
func (t *Tree) MergeFromFile(path string) error {
	if t.frozen {
		return errors.NewConfigError("merge attempted after freeze", errors.ErrFrozen).WithFile(path)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return errors.NewConfigError("cannot read override file", err).WithFile(path)
	}

	var nested map[string]any
	if err := yaml.Unmarshal(raw, &nested); err != nil {
		return errors.NewConfigError("cannot parse override file", err).WithFile(path)
	}

	flat := make(map[string]any)
	flatten("", nested, flat)

	// Apply in sorted order so the first offending key is deterministic.
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if err := t.Set(k, flat[k]); err != nil {
			var cfgErr *errors.ConfigError
			if errors.As(err, &cfgErr) {
				return cfgErr.WithFile(path)
			}
			return err
		}
	}
	return nil
}

// MergeFromList applies [key, value, key, value, ...] overrides with the
// same validation as MergeFromFile. Values arrive as strings (typically from
// the command line) and are coerced to the schema type of their key. Must be
// called before Freeze.
func (t *Tree) MergeFromList(pairs []string) error {
	if t.frozen {
		return errors.NewConfigError("merge attempted after freeze", errors.ErrFrozen)
	}
	if len(pairs)%2 != 0 {
		return errors.NewConfigError(
			fmt.Sprintf("override list must have an even number of entries, got %d", len(pairs)), nil)
	}

	for i := 0; i < len(pairs); i += 2 {
		if err := t.Set(pairs[i], pairs[i+1]); err != nil {
			return err
		}
	}
	return nil
}

// Freeze finalizes the tree. Any write attempt afterwards fails with a
// ConfigError. Freezing twice is a no-op.
func (t *Tree) Freeze() {
	t.frozen = true
}

// Frozen reports whether the tree has been frozen.
func (t *Tree) Frozen() bool {
	return t.frozen
}

// Clone returns an independent, unfrozen deep copy of the tree with all
// current overrides applied. Mutating the clone never affects the original.
func (t *Tree) Clone() *Tree {
	clone := newTree(t.register)
	for key, def := range t.schema {
		cur := t.v.Get(key)
		if !equalValue(def, cur) {
			clone.v.Set(key, cur)
		}
	}
	return clone
}

// Get returns the current value for a dotted key, or nil if the key is not
// in the schema.
func (t *Tree) Get(key string) any {
	if _, ok := t.schema[key]; !ok {
		return nil
	}
	return t.v.Get(key)
}

// Keys returns all dotted keys in the schema, sorted.
func (t *Tree) Keys() []string {
	keys := make([]string, 0, len(t.schema))
	for k := range t.schema {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Unmarshal decodes the tree into the given typed schema struct.
func (t *Tree) Unmarshal(rawVal any) error {
	if err := t.v.Unmarshal(rawVal); err != nil {
		return errors.NewConfigError("cannot decode config tree", err)
	}
	return nil
}

// Dump renders the tree's current settings as YAML, sections in data /
// model / training order.
func (t *Tree) Dump() ([]byte, error) {
	return yaml.Marshal(t.v.AllSettings())
}

// Load decodes and validates an acoustic-model tree. Validation failures
// surface as a ConfigError before any training occurs.
func Load(t *Tree) (*Config, error) {
	var cfg Config
	if err := t.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, errors.NewConfigError(ValidationErrors(errs).Error(), nil)
	}
	return &cfg, nil
}

// LoadVocoder decodes and validates a vocoder tree.
func LoadVocoder(t *Tree) (*VocoderConfig, error) {
	var cfg VocoderConfig
	if err := t.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, errors.NewConfigError(ValidationErrors(errs).Error(), nil)
	}
	return &cfg, nil
}

// flatten converts a nested map into dotted keys.
func flatten(prefix string, nested map[string]any, out map[string]any) {
	for k, v := range nested {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if child, ok := v.(map[string]any); ok {
			flatten(key, child, out)
			continue
		}
		out[strings.ToLower(key)] = v
	}
}

// coerce converts an override value to the type of the schema default it
// replaces. Strings are parsed; floats are not silently truncated to ints.
func coerce(def, val any) (any, error) {
	switch def.(type) {
	case int:
		// Reject fractional floats rather than truncating.
		if f, ok := val.(float64); ok && f != float64(int(f)) {
			return nil, fmt.Errorf("expected integer, got %v", val)
		}
		return cast.ToIntE(val)
	case float64:
		return cast.ToFloat64E(val)
	case bool:
		return cast.ToBoolE(val)
	case string:
		s, ok := val.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", val)
		}
		return s, nil
	case []int:
		return coerceIntSlice(val)
	default:
		return nil, fmt.Errorf("unsupported schema type %T", def)
	}
}

// coerceIntSlice accepts []int, []any of ints, or a comma-separated string
// (the flat-list override syntax for list-valued keys).
func coerceIntSlice(val any) ([]int, error) {
	switch v := val.(type) {
	case []int:
		return v, nil
	case string:
		parts := strings.Split(v, ",")
		out := make([]int, 0, len(parts))
		for _, p := range parts {
			n, err := cast.ToIntE(strings.TrimSpace(p))
			if err != nil {
				return nil, fmt.Errorf("expected integer list, got %q", val)
			}
			out = append(out, n)
		}
		return out, nil
	default:
		return cast.ToIntSliceE(val)
	}
}

// equalValue compares a schema default against a current value well enough
// to detect overrides. Slices are compared elementwise.
func equalValue(a, b any) bool {
	if as, ok := a.([]int); ok {
		bs, err := cast.ToIntSliceE(b)
		if err != nil || len(as) != len(bs) {
			return false
		}
		for i := range as {
			if as[i] != bs[i] {
				return false
			}
		}
		return true
	}
	return a == b
}
