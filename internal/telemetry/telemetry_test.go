package telemetry

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

func TestInitNone(t *testing.T) {
	p, err := Init(context.Background(), Config{Exporter: "none"})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	_, span := p.Tracer("test").Start(context.Background(), "noop")
	if span.SpanContext().IsValid() {
		t.Error("no-op provider produced a valid span")
	}
	span.End()
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestInitStdout(t *testing.T) {
	var buf bytes.Buffer
	p, err := Init(context.Background(), Config{
		ServiceName: "srasm-test",
		Exporter:    "stdout",
		Writer:      &buf,
	})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	_, span := p.Tracer("test").Start(context.Background(), "store.update")
	span.End()
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "store.update") || !strings.Contains(out, "srasm-test") {
		t.Errorf("span not exported:\n%s", out)
	}
}

func TestInitUnknownExporter(t *testing.T) {
	_, err := Init(context.Background(), Config{Exporter: "zipkin"})
	if !errors.Is(err, ErrUnknownExporter) {
		t.Errorf("err = %v, want ErrUnknownExporter", err)
	}
}
