// Package config holds the compiled hyperparameter schemas and the Tree
// lifecycle used to override and freeze them.
//
// Two schemas are compiled in: the acoustic (sequence-to-spectrogram) model
// experiment and the companion vocoder. Both share the same section layout
// (data, model, training) and the same lifecycle: obtain a fresh tree of
// defaults, optionally merge a YAML file and/or flat key-value overrides,
// freeze, then read for the rest of the process.
package config

// Config represents the complete acoustic-model experiment configuration.
type Config struct {
	Data     DataConfig     `mapstructure:"data"`
	Model    ModelConfig    `mapstructure:"model"`
	Training TrainingConfig `mapstructure:"training"`
}

// DataConfig controls the dataset and feature extraction parameters.
type DataConfig struct {
	// BatchSize is the number of examples per training batch
	BatchSize int `mapstructure:"batch_size"`
	// ValidSize reserves the first N examples for validation
	ValidSize int `mapstructure:"valid_size"`
	// SampleRate is the audio sample rate in Hz
	SampleRate int `mapstructure:"sample_rate"`
	// NFFT is the FFT frame size
	NFFT int `mapstructure:"n_fft"`
	// WinLength is the analysis window size
	WinLength int `mapstructure:"win_length"`
	// HopLength is the hop size between adjacent frames
	HopLength int `mapstructure:"hop_length"`
	// FMax is the maximum frequency (Hz) when converting to mel
	FMax int `mapstructure:"f_max"`
	// NMels is the number of mel bands
	NMels int `mapstructure:"n_mels"`
	// PaddingIdx is the index used to pad variable-length text sequences
	PaddingIdx int `mapstructure:"padding_idx"`
}

// ModelConfig controls the acoustic model dimensions. The harness treats the
// model as opaque; these values are consumed only by the model constructor.
type ModelConfig struct {
	VocabSize           int     `mapstructure:"vocab_size"`
	DEncoder            int     `mapstructure:"d_encoder"`
	EncoderConvLayers   int     `mapstructure:"encoder_conv_layers"`
	EncoderKernelSize   int     `mapstructure:"encoder_kernel_size"`
	DPrenet             int     `mapstructure:"d_prenet"`
	DAttentionRNN       int     `mapstructure:"d_attention_rnn"`
	DDecoderRNN         int     `mapstructure:"d_decoder_rnn"`
	AttentionFilters    int     `mapstructure:"attention_filters"`
	AttentionKernelSize int     `mapstructure:"attention_kernel_size"`
	DAttention          int     `mapstructure:"d_attention"`
	DPostnet            int     `mapstructure:"d_postnet"`
	PostnetKernelSize   int     `mapstructure:"postnet_kernel_size"`
	PostnetConvLayers   int     `mapstructure:"postnet_conv_layers"`
	ReductionFactor     int     `mapstructure:"reduction_factor"`
	PEncoderDropout     float64 `mapstructure:"p_encoder_dropout"`
	PPrenetDropout      float64 `mapstructure:"p_prenet_dropout"`
	PAttentionDropout   float64 `mapstructure:"p_attention_dropout"`
	PDecoderDropout     float64 `mapstructure:"p_decoder_dropout"`
	PPostnetDropout     float64 `mapstructure:"p_postnet_dropout"`
}

// TrainingConfig controls the optimization schedule.
type TrainingConfig struct {
	// LR is the learning rate
	LR float64 `mapstructure:"lr"`
	// WeightDecay is the L2 regularization coefficient
	WeightDecay float64 `mapstructure:"weight_decay"`
	// GradClipThresh clips the global gradient norm before each step
	GradClipThresh float64 `mapstructure:"grad_clip_thresh"`
	// ValidInterval runs a validation pass every N training steps
	ValidInterval int `mapstructure:"valid_interval"`
	// SaveInterval writes a checkpoint every N training steps
	SaveInterval int `mapstructure:"save_interval"`
	// MaxIteration stops training after N steps
	MaxIteration int `mapstructure:"max_iteration"`
}

// Default returns a Config with the compiled default values for the
// acoustic-model experiment.
func Default() *Config {
	return &Config{
		Data: DataConfig{
			BatchSize:  8,
			ValidSize:  64,
			SampleRate: 22050,
			NFFT:       1024,
			WinLength:  1024,
			HopLength:  256,
			FMax:       8000,
			NMels:      80,
			PaddingIdx: 0,
		},
		Model: ModelConfig{
			VocabSize:           256,
			DEncoder:            512,
			EncoderConvLayers:   3,
			EncoderKernelSize:   5,
			DPrenet:             256,
			DAttentionRNN:       1024,
			DDecoderRNN:         1024,
			AttentionFilters:    32,
			AttentionKernelSize: 31,
			DAttention:          128,
			DPostnet:            512,
			PostnetKernelSize:   5,
			PostnetConvLayers:   5,
			ReductionFactor:     1,
			PEncoderDropout:     0.5,
			PPrenetDropout:      0.5,
			PAttentionDropout:   0.1,
			PDecoderDropout:     0.1,
			PPostnetDropout:     0.5,
		},
		Training: TrainingConfig{
			LR:             1e-3,
			WeightDecay:    1e-6,
			GradClipThresh: 1.0,
			ValidInterval:  1000,
			SaveInterval:   1000,
			MaxIteration:   500000,
		},
	}
}

// VocoderConfig represents the companion vocoder configuration. Only the
// schema is defined here; the vocoder training loop lives elsewhere.
type VocoderConfig struct {
	Data     VocoderDataConfig     `mapstructure:"data"`
	Model    VocoderModelConfig    `mapstructure:"model"`
	Training VocoderTrainingConfig `mapstructure:"training"`
}

// VocoderDataConfig controls the vocoder's audio feature parameters.
type VocoderDataConfig struct {
	BatchSize  int `mapstructure:"batch_size"`
	ValidSize  int `mapstructure:"valid_size"`
	SampleRate int `mapstructure:"sample_rate"`
	NFFT       int `mapstructure:"n_fft"`
	WinLength  int `mapstructure:"win_length"`
	HopLength  int `mapstructure:"hop_length"`
	FMax       int `mapstructure:"f_max"`
	NMels      int `mapstructure:"n_mels"`
	// ClipFrames is the number of mel frames per training clip
	ClipFrames int `mapstructure:"clip_frames"`
}

// VocoderModelConfig controls the flow-based vocoder dimensions.
type VocoderModelConfig struct {
	// UpsampleFactors upsample the conditioning spectrogram to audio rate
	UpsampleFactors []int `mapstructure:"upsample_factors"`
	// NFlows is the number of flows
	NFlows int `mapstructure:"n_flows"`
	// NLayers is the number of conv blocks in each flow
	NLayers int `mapstructure:"n_layers"`
	// NGroup is the folding factor of audio and spectrogram
	NGroup int `mapstructure:"n_group"`
	// Channels is the residual channel count in each flow
	Channels int `mapstructure:"channels"`
	// KernelSize is the conv kernel size in each block
	KernelSize []int `mapstructure:"kernel_size"`
	// Sigma is the stddev of the latent noise
	Sigma float64 `mapstructure:"sigma"`
}

// VocoderTrainingConfig controls the vocoder optimization schedule.
type VocoderTrainingConfig struct {
	LR            float64 `mapstructure:"lr"`
	ValidInterval int     `mapstructure:"valid_interval"`
	SaveInterval  int     `mapstructure:"save_interval"`
	MaxIteration  int     `mapstructure:"max_iteration"`
}

// VocoderDefault returns a VocoderConfig with the compiled default values.
func VocoderDefault() *VocoderConfig {
	return &VocoderConfig{
		Data: VocoderDataConfig{
			BatchSize:  8,
			ValidSize:  64,
			SampleRate: 22050,
			NFFT:       1024,
			WinLength:  1024,
			HopLength:  256,
			FMax:       8000,
			NMels:      80,
			ClipFrames: 65,
		},
		Model: VocoderModelConfig{
			UpsampleFactors: []int{16, 16},
			NFlows:          8,
			NLayers:         8,
			NGroup:          16,
			Channels:        128,
			KernelSize:      []int{3, 3},
			Sigma:           1.0,
		},
		Training: VocoderTrainingConfig{
			LR:            1e-4,
			ValidInterval: 1000,
			SaveInterval:  10000,
			MaxIteration:  3000000,
		},
	}
}
