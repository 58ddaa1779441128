package observability

import (
	"testing"
	"time"

	"github.com/danmuck/amfgate/internal/testutil/testlog"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)
	RegisterMetrics()
	RegisterMetrics()

	RecordHTTPRequest("gw-a", "POST", "/amf", 200, 12*time.Millisecond)
	RecordEnvelope("gw-a", "amf3", "amf3", 512, 1)
	RecordEnvelopeFailure("gw-a", "version", 6)
	RecordEnvelopeFailure("gw-a", "version", 6)

	if got := testutil.ToFloat64(envelopeFailures.WithLabelValues("gw-a", "version")); got != 2 {
		t.Fatalf("expected 2 version failures, got %v", got)
	}
	if got := testutil.ToFloat64(envelopesParsed.WithLabelValues("gw-a", "amf3", "amf3")); got != 1 {
		t.Fatalf("expected 1 parsed envelope, got %v", got)
	}
}
