package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danmuck/amfgate/internal/config"
	"github.com/danmuck/amfgate/internal/gateway"
	"github.com/danmuck/amfgate/internal/inspect"
	"github.com/danmuck/amfgate/internal/protocol"
	"github.com/danmuck/amfgate/internal/services"
)

func encodeSample(t *testing.T, env *protocol.Envelope) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := protocol.Encode(&buf, env); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func TestDecodeSamplePing(t *testing.T) {
	var out bytes.Buffer
	if err := decode(&out, encodeSample(t, pingEnvelope()), inspect.FormatJSON); err != nil {
		t.Fatalf("decode: %v", err)
	}
	var doc inspect.Document
	if err := json.Unmarshal(out.Bytes(), &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(doc.Bodies) != 1 || doc.Bodies[0].Message == nil {
		t.Fatalf("expected one message body, got %+v", doc.Bodies)
	}
	msg := doc.Bodies[0].Message
	if msg.Operation != "client_ping" || !msg.Valid {
		t.Fatalf("unexpected ping summary: %+v", msg)
	}
	if len(msg.MessageID) != 36 || strings.ToUpper(msg.MessageID) != msg.MessageID {
		t.Fatalf("unexpected message id %q", msg.MessageID)
	}
}

func TestDecodeSampleRemoting(t *testing.T) {
	var out bytes.Buffer
	raw := encodeSample(t, remotingEnvelope("userService", "getUsers"))
	if err := decode(&out, raw, inspect.FormatYAML); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, want := range []string{"kind: remoting", "destination: userService", "operation: getUsers", "valid: true"} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("missing %q in:\n%s", want, out.String())
		}
	}
}

func TestSampleResolvesAgainstTemplateDestinations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.toml")
	if err := config.WriteTemplate(path, "gateway", false); err != nil {
		t.Fatalf("write template: %v", err)
	}
	cfg, err := config.LoadGatewayConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	env, err := protocol.Parse(encodeSample(t, remotingEnvelope("userService", "getUser")))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	out, err := services.NewRouter(gateway.BuildServices(cfg.Destinations), nil).Dispatch(context.Background(), env)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	route := out.(services.Response).Routes[0]
	if !route.Resolved() || route.Via != services.ViaMessage || route.Operation != "getUser" {
		t.Fatalf("unexpected route: %#v", route)
	}
}

func TestDecodeRejectsBadEnvelope(t *testing.T) {
	var out bytes.Buffer
	if err := decode(&out, []byte{0x00, 0x07, 0x00, 0x00, 0x00, 0x00}, inspect.FormatJSON); err == nil {
		t.Fatalf("expected version error")
	}
}

func TestReadInputFromFileAndStdin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "req.amf")
	if err := os.WriteFile(path, []byte{1, 2, 3}, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := readInput(nil, path)
	if err != nil || len(got) != 3 {
		t.Fatalf("file input: %v %v", got, err)
	}
	got, err = readInput(bytes.NewReader([]byte{9}), "-")
	if err != nil || len(got) != 1 {
		t.Fatalf("stdin input: %v %v", got, err)
	}
}

func TestGatewayConfigMergesCLIClasses(t *testing.T) {
	prev := cliCfg
	t.Cleanup(func() { cliCfg = prev })
	cfg, err := loadCLIConfig("ex.config.toml")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	cfg.GatewayConfig = ""
	cliCfg = cfg

	gw, err := gatewayConfig("")
	if err != nil {
		t.Fatalf("gateway config: %v", err)
	}
	if gw.Path != "/amf" || len(gw.MessageClasses) != 1 {
		t.Fatalf("unexpected gateway config: %+v", gw)
	}
}
