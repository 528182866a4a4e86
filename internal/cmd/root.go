package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "cadenza",
	Short: "Training harness for text-to-spectrogram acoustic models",
	Long: `Cadenza drives checkpoint-resumable training runs for
sequence-to-spectrogram acoustic models: frozen hyperparameter trees,
deterministic data sharding across workers, synchronized gradient
averaging, and rank-0 metric emission.`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initEnv)
}

func initEnv() {
	viper.AutomaticEnv()
	viper.SetEnvPrefix("CADENZA")
	// Replace dots with underscores for nested keys in env vars
	// e.g., CADENZA_TRAINING_LR for training.lr
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
}
