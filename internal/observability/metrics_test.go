package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestUnaryInterceptorRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}

	interceptor := collector.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/orrery.v1.EphemerisService/GetEphemeris"}

	_, err = interceptor(context.Background(), struct{}{}, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		time.Sleep(5 * time.Millisecond)
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("interceptor handler returned error: %v", err)
	}

	if got := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("EphemerisService", "GetEphemeris", "OK")); got != 1 {
		t.Fatalf("orrery_rpc_requests_total = %v, want 1", got)
	}

	if count := histogramSampleCount(t, reg, "orrery_rpc_request_duration_seconds", map[string]string{
		"service": "EphemerisService",
		"method":  "GetEphemeris",
	}); count != 1 {
		t.Fatalf("orrery_rpc_request_duration_seconds sample_count = %d, want 1", count)
	}
}

func TestUnaryInterceptorRecordsErrorCode(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}

	interceptor := collector.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/orrery.v1.EphemerisService/GetSystem"}

	_, _ = interceptor(context.Background(), struct{}{}, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, status.Error(codes.NotFound, "boom")
	})

	if got := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("EphemerisService", "GetSystem", "NotFound")); got != 1 {
		t.Fatalf("orrery_rpc_requests_total error label = %v, want 1", got)
	}
}

func TestNewCollectorReusesRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("first NewCollector: %v", err)
	}
	second, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("second NewCollector: %v", err)
	}
	if first.RPCRequests != second.RPCRequests {
		t.Fatalf("expected second collector to reuse the registered counter")
	}
}

func TestMetricsHandlerExposesSystemGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	collector.SetSystemCounts("sol", 37, 3, 2)
	collector.WebsocketConnected(1)
	collector.WebsocketConnected(1)
	collector.WebsocketConnected(-1)
	collector.RPCRequests.WithLabelValues("svc", "method", "OK").Inc()
	collector.RPCDurations.WithLabelValues("svc", "method").Observe(0.01)

	if got := testutil.ToFloat64(collector.SystemNodes.WithLabelValues("sol", "barycenter")); got != 3 {
		t.Fatalf("barycenter gauge = %v, want 3", got)
	}
	if got := testutil.ToFloat64(collector.WebsocketClients); got != 1 {
		t.Fatalf("websocket gauge = %v, want 1", got)
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		"orrery_rpc_requests_total",
		"orrery_rpc_request_duration_seconds",
		`orrery_system_nodes{kind="body",system="sol"} 37`,
		`orrery_system_nodes{kind="craft",system="sol"} 2`,
		"orrery_websocket_clients 1",
	} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in /metrics output:\n%s", metric, body)
		}
	}
}

func TestEngineCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewEngineCollector(reg)
	if err != nil {
		t.Fatalf("NewEngineCollector: %v", err)
	}

	collector.ObserveTick(2*time.Millisecond, 40)
	collector.ObserveTick(3*time.Millisecond, 40)
	collector.IncPublishError("nats")

	if got := testutil.ToFloat64(collector.Ticks); got != 2 {
		t.Fatalf("orrery_ticks_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(collector.Propagations); got != 80 {
		t.Fatalf("orrery_propagations_total = %v, want 80", got)
	}
	if got := testutil.ToFloat64(collector.PublishErrors.WithLabelValues("nats")); got != 1 {
		t.Fatalf("orrery_publish_errors_total = %v, want 1", got)
	}
	if count := histogramSampleCount(t, collector.Gatherer(), "orrery_tick_duration_seconds", nil); count != 2 {
		t.Fatalf("orrery_tick_duration_seconds sample_count = %d, want 2", count)
	}
}

func TestNilCollectorsAreSafe(t *testing.T) {
	var c *Collector
	c.SetSystemCounts("x", 1, 2, 3)
	c.WebsocketConnected(1)

	var e *EngineCollector
	e.ObserveTick(time.Second, 1)
	e.IncPublishError("store")
	if e.Gatherer() != nil {
		t.Fatalf("nil collector should have nil gatherer")
	}
}

func TestSplitMethod(t *testing.T) {
	cases := []struct {
		in, service, method string
	}{
		{"", "unknown", "unknown"},
		{"bogus", "unknown", "unknown"},
		{"/orrery.v1.EphemerisService/GetSystem", "EphemerisService", "GetSystem"},
		{"/grpc.health.v1.Health/Check", "Health", "Check"},
	}
	for _, tc := range cases {
		service, method := SplitMethod(tc.in)
		if service != tc.service || method != tc.method {
			t.Fatalf("SplitMethod(%q) = %q, %q; want %q, %q", tc.in, service, method, tc.service, tc.method)
		}
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) < len(want) {
		return false
	}
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
