package config

import (
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/danmuck/amfgate/internal/protocol/stream"
	"github.com/pelletier/go-toml/v2"
)

// GatewayConfig configures the HTTP inspection gateway. Zero limits fall back
// to the decoder defaults.
type GatewayConfig struct {
	Name             string         `toml:"name"`
	Addr             string         `toml:"addr"`
	Path             string         `toml:"path"`
	Format           string         `toml:"format"`
	Mode             string         `toml:"mode"`
	CorsOrigins      []string       `toml:"cors_origins"`
	TLSCertFile      string         `toml:"tls_cert_file"`
	TLSKeyFile       string         `toml:"tls_key_file"`
	AuthToken        string         `toml:"auth_token"`
	MaxPayloadBytes  uint64         `toml:"max_payload_bytes"`
	MaxStringBytes   uint32         `toml:"max_string_bytes"`
	MaxCollectionLen uint32         `toml:"max_collection_len"`
	MaxDepth         int            `toml:"max_depth"`
	MessageClasses   []MessageClass `toml:"message_classes"`
	Destinations     []Destination  `toml:"destinations"`
}

// Gateway modes select what answers a parsed envelope.
const (
	ModeInspect = "inspect"
	ModeRoutes  = "routes"
)

// Destination declares a remoting service for route resolution. No
// operations means any operation resolves.
type Destination struct {
	Name       string   `toml:"name"`
	Operations []string `toml:"operations"`
}

// MessageClass registers an extra class as a recognized message.
type MessageClass struct {
	Class string `toml:"class"`
	Kind  string `toml:"kind"`
}

func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		Name:        "amfgate",
		Addr:        ":9400",
		Path:        "/amf",
		Format:      "json",
		Mode:        ModeInspect,
		CorsOrigins: []string{"http://localhost:3000"},
	}
}

func LoadGatewayConfig(path string) (GatewayConfig, error) {
	var cfg GatewayConfig
	if err := loadToml(path, &cfg); err != nil {
		return GatewayConfig{}, err
	}
	applyGatewayDefaults(&cfg)
	if err := ValidateGatewayConfig(cfg); err != nil {
		return GatewayConfig{}, err
	}
	return cfg, nil
}

func applyGatewayDefaults(cfg *GatewayConfig) {
	def := DefaultGatewayConfig()
	if cfg.Name == "" {
		cfg.Name = def.Name
	}
	if cfg.Addr == "" {
		cfg.Addr = def.Addr
	}
	if cfg.Path == "" {
		cfg.Path = def.Path
	}
	if cfg.Format == "" {
		cfg.Format = def.Format
	}
	if cfg.Mode == "" {
		cfg.Mode = def.Mode
	}
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateGatewayConfig(cfg GatewayConfig) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("gateway config missing name")
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		return fmt.Errorf("gateway config missing addr")
	}
	if !strings.HasPrefix(cfg.Path, "/") {
		return fmt.Errorf("gateway path must start with /: %q", cfg.Path)
	}
	switch strings.ToLower(cfg.Format) {
	case "json", "yaml", "msgpack":
	default:
		return fmt.Errorf("gateway format must be json, yaml or msgpack: %q", cfg.Format)
	}
	switch cfg.Mode {
	case ModeInspect, ModeRoutes:
	default:
		return fmt.Errorf("gateway mode must be inspect or routes: %q", cfg.Mode)
	}
	// the gateway reads one byte past the limit to detect oversize bodies
	if cfg.MaxPayloadBytes > math.MaxInt64-1 {
		return fmt.Errorf("gateway max_payload_bytes must not exceed %d", int64(math.MaxInt64-1))
	}
	if cfg.MaxDepth < 0 {
		return fmt.Errorf("gateway max_depth must not be negative")
	}
	if (cfg.TLSCertFile == "") != (cfg.TLSKeyFile == "") {
		return fmt.Errorf("gateway tls requires both tls_cert_file and tls_key_file")
	}
	for _, f := range []string{cfg.TLSCertFile, cfg.TLSKeyFile} {
		if f == "" {
			continue
		}
		if _, err := os.Stat(f); err != nil {
			return fmt.Errorf("gateway tls file: %w", err)
		}
	}
	for i, mc := range cfg.MessageClasses {
		if strings.TrimSpace(mc.Class) == "" {
			return fmt.Errorf("message_classes[%d] missing class", i)
		}
	}
	seen := make(map[string]bool, len(cfg.Destinations))
	for i, d := range cfg.Destinations {
		if strings.TrimSpace(d.Name) == "" {
			return fmt.Errorf("destinations[%d] missing name", i)
		}
		if seen[d.Name] {
			return fmt.Errorf("destination %q declared twice", d.Name)
		}
		seen[d.Name] = true
	}
	return nil
}

// TLS reports whether the gateway serves HTTPS.
func (c GatewayConfig) TLS() bool {
	return c.TLSCertFile != "" && c.TLSKeyFile != ""
}

// Limits merges the configured limits over the decoder defaults.
func (c GatewayConfig) Limits() stream.Limits {
	l := stream.DefaultLimits()
	if c.MaxPayloadBytes > 0 {
		l.MaxPayloadBytes = c.MaxPayloadBytes
	}
	if c.MaxStringBytes > 0 {
		l.MaxStringBytes = c.MaxStringBytes
	}
	if c.MaxCollectionLen > 0 {
		l.MaxCollectionLen = c.MaxCollectionLen
	}
	if c.MaxDepth > 0 {
		l.MaxDepth = c.MaxDepth
	}
	return l
}
