package gateway

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"math"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/amfgate/internal/config"
	"github.com/danmuck/amfgate/internal/protocol"
	"github.com/danmuck/amfgate/internal/protocol/schema"
	"github.com/danmuck/amfgate/internal/protocol/value"
	"github.com/danmuck/amfgate/internal/testutil/testlog"
	"github.com/danmuck/amfgate/internal/testutil/tlstest"
	"github.com/gin-gonic/gin"
)

func newGateway(t *testing.T, cfg config.GatewayConfig, d Dispatcher) *Gateway {
	t.Helper()
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	g, err := New(cfg, d)
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}
	return g
}

func pingEnvelope(t *testing.T) []byte {
	t.Helper()
	env := protocol.NewEnvelope(protocol.VersionAMF3)
	env.SetObjectEncoding(value.EncodingAMF3)
	env.AddBody(protocol.Body{
		TargetURI:   "null",
		ResponseURI: "/1",
		Data: value.Object(schema.ClassCommand,
			value.F(schema.FieldMessageID, value.String("ping-1")),
			value.F(schema.FieldOperation, value.Integer(schema.OpClientPing)),
		),
	})
	var buf bytes.Buffer
	if err := protocol.Encode(&buf, env); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func post(g *Gateway, target string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", ContentTypeAMF)
	rr := httptest.NewRecorder()
	g.Handler().ServeHTTP(rr, req)
	return rr
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v body=%s", err, rr.Body.String())
	}
	return body
}

func TestPostEnvelopeInspects(t *testing.T) {
	g := newGateway(t, config.DefaultGatewayConfig(), nil)
	rr := post(g, "/amf", pingEnvelope(t))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	body := decodeJSON(t, rr)
	if body["encoding"] != "amf3" || body["received"] == "" {
		t.Fatalf("unexpected document: %#v", body)
	}
	bodies := body["bodies"].([]any)
	msg := bodies[0].(map[string]any)["message"].(map[string]any)
	if msg["kind"] != "command" || msg["operation"] != "client_ping" {
		t.Fatalf("unexpected message summary: %#v", msg)
	}
}

func TestPostEnvelopeFormatQuery(t *testing.T) {
	g := newGateway(t, config.DefaultGatewayConfig(), nil)
	rr := post(g, "/amf?format=yaml", pingEnvelope(t))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/yaml" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if !strings.Contains(rr.Body.String(), "version: amf3") {
		t.Fatalf("expected yaml document, got %s", rr.Body.String())
	}

	rr = post(g, "/amf?format=xml", pingEnvelope(t))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown format, got %d", rr.Code)
	}
}

func TestPostEnvelopeParseFailures(t *testing.T) {
	g := newGateway(t, config.DefaultGatewayConfig(), nil)

	rr := post(g, "/amf", []byte{0x00, 0x07, 0x00, 0x00, 0x00, 0x00})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	body := decodeJSON(t, rr)
	if body["reason"] != "version" || body["marker"] != float64(7) {
		t.Fatalf("unexpected version error body: %#v", body)
	}

	// one header whose data marker is unknown
	raw := []byte{0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 'h', 0x00, 0xff, 0xff, 0xff, 0xff, 0x42}
	rr = post(g, "/amf", raw)
	body = decodeJSON(t, rr)
	if rr.Code != http.StatusBadRequest || body["phase"] != "header" || body["name"] != "h" {
		t.Fatalf("unexpected header error: %d %#v", rr.Code, body)
	}
}

func TestPostEnvelopePayloadLimit(t *testing.T) {
	cfg := config.DefaultGatewayConfig()
	cfg.MaxPayloadBytes = 8
	g := newGateway(t, cfg, nil)
	rr := post(g, "/amf", pingEnvelope(t))
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d body=%s", rr.Code, rr.Body.String())
	}
}

type failingDispatcher struct{}

func (failingDispatcher) Dispatch(context.Context, *protocol.Envelope) (any, error) {
	return nil, errors.New("backend down")
}

func TestDispatcherErrorSurfaces(t *testing.T) {
	g := newGateway(t, config.DefaultGatewayConfig(), failingDispatcher{})
	rr := post(g, "/amf", pingEnvelope(t))
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rr.Code)
	}
}

func TestConfiguredMessageClassUnwraps(t *testing.T) {
	cfg := config.DefaultGatewayConfig()
	cfg.MessageClasses = []config.MessageClass{{Class: "com.acme.Audit"}}
	g := newGateway(t, cfg, nil)

	env := protocol.NewEnvelope(protocol.VersionAMF3)
	env.SetObjectEncoding(value.EncodingAMF3)
	env.AddBody(protocol.Body{TargetURI: "null", ResponseURI: "/1", Data: value.Object("com.acme.Audit")})
	var buf bytes.Buffer
	if err := protocol.Encode(&buf, env); err != nil {
		t.Fatalf("encode: %v", err)
	}

	body := decodeJSON(t, post(g, "/amf", buf.Bytes()))
	first := body["bodies"].([]any)[0].(map[string]any)
	data := first["data"].(map[string]any)
	if data["$class"] != "com.acme.Audit" {
		t.Fatalf("configured class must unwrap, got %#v", first)
	}
}

func TestNewRejectsUnreadablePayloadLimit(t *testing.T) {
	testlog.Start(t)
	cfg := config.DefaultGatewayConfig()
	cfg.MaxPayloadBytes = math.MaxUint64
	if _, err := New(cfg, nil); err == nil {
		t.Fatalf("expected payload limit to be rejected")
	}
}

func TestBuildRegistryRejectsUnknownKind(t *testing.T) {
	if _, err := BuildRegistry([]config.MessageClass{{Class: "x", Kind: "telepathy"}}); err == nil {
		t.Fatalf("expected unknown kind error")
	}
}

func TestHealthAndReady(t *testing.T) {
	g := newGateway(t, config.DefaultGatewayConfig(), nil)

	for path, want := range map[string]int{"/health": http.StatusOK, "/ready": http.StatusServiceUnavailable} {
		rr := httptest.NewRecorder()
		g.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != want {
			t.Fatalf("%s: expected %d, got %d", path, want, rr.Code)
		}
	}

	g.SetReady(true)
	rr := httptest.NewRecorder()
	g.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected ready, got %d", rr.Code)
	}
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := l.Addr().String()
	_ = l.Close()
	return addr
}

func TestRunServesTLSAndShutsDown(t *testing.T) {
	ca := tlstest.NewAuthority(t, "amfgate-test-ca")
	cert, key := ca.ServerPair(t, t.TempDir())
	cfg := config.DefaultGatewayConfig()
	cfg.Addr = freeAddr(t)
	cfg.TLSCertFile, cfg.TLSKeyFile = cert, key
	g := newGateway(t, cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- g.Run(ctx) }()

	client := &http.Client{
		Timeout:   time.Second,
		Transport: &http.Transport{TLSClientConfig: &tls.Config{RootCAs: ca.Pool()}},
	}
	url := "https://" + cfg.Addr + "/amf"
	deadline := time.Now().Add(5 * time.Second)
	var resp *http.Response
	for {
		var err error
		resp, err = client.Post(url, ContentTypeAMF, bytes.NewReader(pingEnvelope(t)))
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("gateway never came up: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 over tls, got %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("gateway did not shut down")
	}
}

func TestAuthTokenGuardsEnvelopePath(t *testing.T) {
	cfg := config.DefaultGatewayConfig()
	cfg.AuthToken = "s3cret"
	g := newGateway(t, cfg, nil)

	if rr := post(g, "/amf", pingEnvelope(t)); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/amf", bytes.NewReader(pingEnvelope(t)))
	req.Header.Set("Authorization", "Bearer s3cret")
	rr := httptest.NewRecorder()
	g.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	g.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("health must stay open, got %d", rr.Code)
	}
}

func TestRoutesModeResolvesBodies(t *testing.T) {
	cfg := config.DefaultGatewayConfig()
	cfg.Mode = config.ModeRoutes
	cfg.Destinations = []config.Destination{{Name: "userService", Operations: []string{"getUser"}}}
	g := newGateway(t, cfg, nil)

	env := protocol.NewEnvelope(protocol.VersionAMF0)
	env.AddBody(protocol.Body{TargetURI: "userService.getUser", ResponseURI: "/1", Data: value.Array(value.Number(7))})
	env.AddBody(protocol.Body{TargetURI: "billing.charge", ResponseURI: "/2"})
	var buf bytes.Buffer
	if err := protocol.Encode(&buf, env); err != nil {
		t.Fatalf("encode: %v", err)
	}

	rr := post(g, "/amf", buf.Bytes())
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	routes := decodeJSON(t, rr)["routes"].([]any)
	first := routes[0].(map[string]any)
	if first["destination"] != "userService" || first["operation"] != "getUser" || first["fault_code"] != nil {
		t.Fatalf("unexpected first route: %#v", first)
	}
	if second := routes[1].(map[string]any); second["fault_code"] != "Server.NoDestination" {
		t.Fatalf("unexpected second route: %#v", second)
	}
}
