package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cadenza-ml/cadenza/internal/config"
)

var configFlags struct {
	configFile string
	opts       []string
	vocoder    bool
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the resolved configuration",
	Long: `Resolve the compiled defaults against --config and --opts overrides and
print the result as YAML, exactly as a training run would see it. Use
--vocoder for the vocoder schema instead of the acoustic one.`,
	RunE: runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)

	configCmd.Flags().StringVarP(&configFlags.configFile, "config", "c", "", "YAML config overriding the compiled defaults")
	configCmd.Flags().StringSliceVar(&configFlags.opts, "opts", nil, "config overrides as key=value, applied after --config")
	configCmd.Flags().BoolVar(&configFlags.vocoder, "vocoder", false, "print the vocoder schema")
}

func runConfig(cmd *cobra.Command, args []string) error {
	defaults := config.Defaults
	validate := func(t *config.Tree) error {
		_, err := config.Load(t)
		return err
	}
	if configFlags.vocoder {
		defaults = config.VocoderDefaults
		validate = func(t *config.Tree) error {
			_, err := config.LoadVocoder(t)
			return err
		}
	}

	tree, err := resolveTree(defaults(), configFlags.configFile, configFlags.opts)
	if err != nil {
		return err
	}
	tree.Freeze()
	if err := validate(tree); err != nil {
		return err
	}

	raw, err := tree.Dump()
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), string(raw))
	return nil
}
