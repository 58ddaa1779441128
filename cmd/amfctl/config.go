package main

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/amfgate/internal/config"
	"github.com/danmuck/amfgate/internal/inspect"
	"github.com/danmuck/amfgate/internal/protocol/stream"
)

type fileConfig struct {
	Format           string                `toml:"format"`
	MaxDepth         int                   `toml:"max_depth"`
	MaxPayloadBytes  uint64                `toml:"max_payload_bytes"`
	MaxCollectionLen uint32                `toml:"max_collection_len"`
	MessageClasses   []config.MessageClass `toml:"message_classes"`
	GatewayConfig    string                `toml:"gateway_config"`
}

type cliConfig struct {
	Format         inspect.Format
	Limits         stream.Limits
	MessageClasses []config.MessageClass
	GatewayConfig  string
}

func defaultCLIConfig() cliConfig {
	return cliConfig{
		Format: inspect.FormatJSON,
		Limits: stream.DefaultLimits(),
	}
}

func loadCLIConfig(path string) (cliConfig, error) {
	cfg := defaultCLIConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return cliConfig{}, fmt.Errorf("load amfctl config: %w", err)
	}

	if meta.IsDefined("format") {
		f, err := inspect.ParseFormat(raw.Format)
		if err != nil {
			return cliConfig{}, fmt.Errorf("parse format: %w", err)
		}
		cfg.Format = f
	}

	if meta.IsDefined("max_depth") {
		if raw.MaxDepth <= 0 {
			return cliConfig{}, fmt.Errorf("max_depth must be positive: %d", raw.MaxDepth)
		}
		cfg.Limits.MaxDepth = raw.MaxDepth
	}

	if meta.IsDefined("max_payload_bytes") {
		cfg.Limits.MaxPayloadBytes = raw.MaxPayloadBytes
	}

	if meta.IsDefined("max_collection_len") {
		cfg.Limits.MaxCollectionLen = raw.MaxCollectionLen
	}

	if meta.IsDefined("message_classes") {
		cfg.MessageClasses = normalizeClasses(raw.MessageClasses)
	}

	if meta.IsDefined("gateway_config") {
		cfg.GatewayConfig = strings.TrimSpace(raw.GatewayConfig)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return cliConfig{}, fmt.Errorf("unknown amfctl config key %q", undecoded[0].String())
	}
	return cfg, nil
}

func normalizeClasses(in []config.MessageClass) []config.MessageClass {
	out := make([]config.MessageClass, 0, len(in))
	for _, mc := range in {
		class := strings.TrimSpace(mc.Class)
		if class == "" {
			continue
		}
		out = append(out, config.MessageClass{Class: class, Kind: strings.TrimSpace(mc.Kind)})
	}
	return out
}
