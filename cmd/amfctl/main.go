package main

import (
	"fmt"
	"os"

	"github.com/danmuck/amfgate/internal/gateway"
	"github.com/danmuck/amfgate/internal/logging"
	"github.com/spf13/cobra"
)

var (
	configPath string
	cliCfg     = defaultCLIConfig()
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "amfctl",
		Short: "Decode and inspect AMF remoting envelopes",
		Long: `amfctl decodes Flash/Flex AMF remoting envelopes.

It renders envelopes as JSON, YAML or msgpack, writes sample requests
and runs an HTTP inspection gateway.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logging.ConfigureRuntime()
			if configPath == "" {
				return nil
			}
			cfg, err := loadCLIConfig(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			cliCfg = cfg
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "amfctl TOML config file")

	rootCmd.AddCommand(
		decodeCmd(),
		sampleCmd(),
		serveCmd(),
		configCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the amfctl version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "amfctl %s\n", gateway.Version)
		},
	}
}
