package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/amfgate/internal/config"
	"github.com/danmuck/amfgate/internal/gateway"
	"github.com/danmuck/amfgate/internal/inspect"
	"github.com/danmuck/amfgate/internal/observability"
	"github.com/danmuck/amfgate/internal/protocol"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func decodeCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "decode [file|-]",
		Short: "Decode an AMF envelope and print it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := cliCfg.Format
			if format != "" {
				parsed, err := inspect.ParseFormat(format)
				if err != nil {
					return err
				}
				f = parsed
			}
			src := "-"
			if len(args) == 1 {
				src = args[0]
			}
			raw, err := readInput(cmd.InOrStdin(), src)
			if err != nil {
				return err
			}
			return decode(cmd.OutOrStdout(), raw, f)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "output format: json, yaml or msgpack")
	return cmd
}

func decode(w io.Writer, raw []byte, f inspect.Format) error {
	reg, err := gateway.BuildRegistry(cliCfg.MessageClasses)
	if err != nil {
		return err
	}
	reader := protocol.NewReader(
		protocol.WithLimits(cliCfg.Limits),
		protocol.WithRegistry(reg),
	)
	env, err := reader.Parse(raw)
	if err != nil {
		return err
	}
	return inspect.Render(w, f, inspect.Build(env, reg))
}

func readInput(stdin io.Reader, src string) ([]byte, error) {
	if src == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(src)
}

func sampleCmd() *cobra.Command {
	var (
		out         string
		destination string
		operation   string
	)
	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Write a sample Flex request envelope",
		Long: `Write a sample AMF3 request envelope.

Without --operation the envelope carries a CommandMessage client ping,
the first request a Flex client sends. With --operation it carries a
RemotingMessage calling that operation on --destination.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			env := pingEnvelope()
			if operation != "" {
				env = remotingEnvelope(destination, operation)
			}
			var buf bytes.Buffer
			if err := protocol.Encode(&buf, env); err != nil {
				return err
			}
			if out == "" || out == "-" {
				_, err := cmd.OutOrStdout().Write(buf.Bytes())
				return err
			}
			if err := os.WriteFile(out, buf.Bytes(), 0o644); err != nil {
				return err
			}
			log.Info().Str("path", out).Int("bytes", buf.Len()).Msg("amfctl sample written")
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	cmd.Flags().StringVar(&destination, "destination", "userService", "remoting destination")
	cmd.Flags().StringVar(&operation, "operation", "", "remoting operation; empty writes a ping")
	return cmd
}

func serveCmd() *cobra.Command {
	var gatewayPath, mode string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP inspection gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := gatewayConfig(gatewayPath)
			if err != nil {
				return err
			}
			if mode != "" {
				cfg.Mode = mode
				if err := config.ValidateGatewayConfig(cfg); err != nil {
					return err
				}
			}
			observability.InitLogger("amfctl")
			g, err := gateway.New(cfg, nil)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return g.Run(ctx)
		},
	}
	cmd.Flags().StringVarP(&gatewayPath, "gateway-config", "g", "", "gateway TOML config file")
	cmd.Flags().StringVar(&mode, "mode", "", "override the gateway mode (inspect or routes)")
	return cmd
}

// gatewayConfig resolves the flag, then the amfctl config entry, then
// built-in defaults. CLI message classes are added to the gateway's.
func gatewayConfig(path string) (config.GatewayConfig, error) {
	if path == "" {
		path = cliCfg.GatewayConfig
	}
	cfg := config.DefaultGatewayConfig()
	if path != "" {
		loaded, err := config.LoadGatewayConfig(path)
		if err != nil {
			return config.GatewayConfig{}, err
		}
		cfg = loaded
	}
	cfg.MessageClasses = append(cfg.MessageClasses, cliCfg.MessageClasses...)
	if err := config.ValidateGatewayConfig(cfg); err != nil {
		return config.GatewayConfig{}, err
	}
	return cfg, nil
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Write or validate config files",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init <gateway|amfctl> <path>",
		Short: "Write a config template",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.WriteTemplate(args[1], args[0], force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s config template to %s\n", args[0], args[1])
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	validateCmd := &cobra.Command{
		Use:   "validate <gateway|amfctl> <path>",
		Short: "Validate a config file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			switch args[0] {
			case "gateway":
				_, err = config.LoadGatewayConfig(args[1])
			case "amfctl", "cli":
				_, err = loadCLIConfig(args[1])
			default:
				err = fmt.Errorf("unknown config kind: %s", args[0])
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "validated %s config at %s\n", args[0], args[1])
			return nil
		},
	}

	cmd.AddCommand(initCmd, validateCmd)
	return cmd
}
