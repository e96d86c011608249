package telemetry

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestHandlerExposesPipelineMetrics(t *testing.T) {
	Rollbacks.Inc()
	StageMoves.WithLabelValues("confirmed").Inc()
	Exports.WithLabelValues("csv", "delivered").Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{
		"pipeline_rollbacks_total",
		`pipeline_stage_moves_total{outcome="confirmed"}`,
		`pipeline_exports_total{format="csv",outcome="delivered"}`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics output missing %s", want)
		}
	}
	// a second call must not re-register
	Handler()
}

func TestInitTracingNone(t *testing.T) {
	shutdown, err := InitTracing("pipeline-test", "none", "")
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	_, span := StartSpan(context.Background(), "test.span", attribute.String("k", "v"))
	span.End()
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestInitTracingKeepsFirstError(t *testing.T) {
	var setup tracerSetup
	if _, err := setup.init("pipeline-test", "carrier-pigeon", ""); err == nil {
		t.Fatalf("expected unknown exporter to fail")
	}
	shutdown, err := setup.init("pipeline-test", "none", "")
	if err == nil || !strings.Contains(err.Error(), "carrier-pigeon") {
		t.Fatalf("expected first failure on later calls, got %v", err)
	}
	if shutdown == nil || shutdown(context.Background()) != nil {
		t.Fatalf("expected no-op shutdown after failed init")
	}
}
