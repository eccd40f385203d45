package config

import (
	"bytes"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/vango-dev/srasm/internal/errors"
	"github.com/vango-dev/srasm/pkg/explain"
	"github.com/vango-dev/srasm/pkg/reports"
	"github.com/vango-dev/srasm/pkg/store"
)

// clearEnv keeps the test environment from leaking into loaded configs.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"OPENAI_API_KEY", "AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY", "AWS_REGION", "SRASM_ADDRESS", "SRASM_LOG_LEVEL", "OTEL_TRACES_EXPORTER", "OTEL_EXPORTER_OTLP_ENDPOINT"} {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func codeOf(t *testing.T, err error) string {
	t.Helper()
	var se *errors.SrasmError
	if !stderrors.As(err, &se) {
		t.Fatalf("error %v is not a SrasmError", err)
	}
	return se.Code
}

func TestNew(t *testing.T) {
	cfg := New()

	if cfg.Server.Address != DefaultAddress {
		t.Errorf("Server.Address = %q, want %q", cfg.Server.Address, DefaultAddress)
	}
	if cfg.Explain.Provider != "static" {
		t.Errorf("Explain.Provider = %q, want static", cfg.Explain.Provider)
	}
	if cfg.Explain.Model != explain.DefaultModel {
		t.Errorf("Explain.Model = %q, want %q", cfg.Explain.Model, explain.DefaultModel)
	}
	if cfg.Equality() != store.Reference {
		t.Errorf("Equality() = %v, want reference", cfg.Equality())
	}
	if cfg.History.Path != DefaultHistoryDir {
		t.Errorf("History.Path = %q, want %q", cfg.History.Path, DefaultHistoryDir)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoad(t *testing.T) {
	clearEnv(t)
	tmpDir := t.TempDir()

	_, err := Load(tmpDir)
	if err == nil {
		t.Fatal("Expected error for missing config")
	}
	if code := codeOf(t, err); code != "S100" {
		t.Errorf("code = %s, want S100", code)
	}

	writeFile(t, tmpDir, JSONFileName, `{
  "server": {"address": ":8080", "rateLimit": 0, "shutdownTimeout": "5s"},
  "explain": {"provider": "proxy", "proxyURL": "http://explain.internal", "timeout": "3s"},
  "store": {"defaultEquality": "structural"},
  "offload": {"enabled": true, "threshold": 100, "workers": 2},
  "history": {"path": "data/history", "gcInterval": "1m"},
  "log": {"level": "debug", "format": "json"}
}
`)

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	sc := cfg.ServerConfig()
	if sc.Address != ":8080" {
		t.Errorf("Address = %q, want :8080", sc.Address)
	}
	if sc.RateLimit != 0 {
		t.Errorf("RateLimit = %v, want 0 (disabled)", sc.RateLimit)
	}
	if sc.ShutdownTimeout != 5*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 5s", sc.ShutdownTimeout)
	}
	if sc.ExplainTimeout != 3*time.Second {
		t.Errorf("ExplainTimeout = %v, want 3s", sc.ExplainTimeout)
	}
	if cfg.Equality() != store.Structural {
		t.Errorf("Equality() = %v, want structural", cfg.Equality())
	}

	hc := cfg.HistoryConfig(nil)
	if want := filepath.Join(tmpDir, "data/history"); hc.Path != want {
		t.Errorf("History path = %q, want %q", hc.Path, want)
	}
	if hc.GCInterval != time.Minute {
		t.Errorf("GCInterval = %v, want 1m", hc.GCInterval)
	}

	d := cfg.Dispatcher(nil)
	if d == nil {
		t.Fatal("Dispatcher() = nil with offload enabled")
	}
	defer d.Close()

	e, err := cfg.Explainer(nil)
	if err != nil {
		t.Fatalf("Explainer: %v", err)
	}
	if _, ok := e.(*explain.Client); !ok {
		t.Errorf("Explainer() = %T, want *explain.Client", e)
	}
	if cfg.Path() != filepath.Join(tmpDir, JSONFileName) {
		t.Errorf("Path() = %q", cfg.Path())
	}
}

func TestLoadYAML(t *testing.T) {
	clearEnv(t)
	tmpDir := t.TempDir()
	writeFile(t, tmpDir, YAMLFileName, `
server:
  address: ":9000"
reports:
  sink: disk
  maxAge: 24h
`)

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Address != ":9000" {
		t.Errorf("Address = %q, want :9000", cfg.Server.Address)
	}
	if cfg.Reports.Dir != DefaultReportsDir {
		t.Errorf("Reports.Dir = %q, want %q", cfg.Reports.Dir, DefaultReportsDir)
	}
	if cfg.ReportMaxAge() != 24*time.Hour {
		t.Errorf("ReportMaxAge() = %v, want 24h", cfg.ReportMaxAge())
	}

	sink, err := cfg.ReportSink()
	if err != nil {
		t.Fatalf("ReportSink: %v", err)
	}
	if _, ok := sink.(*reports.DiskSink); !ok {
		t.Errorf("ReportSink() = %T, want *reports.DiskSink", sink)
	}
	if _, err := os.Stat(filepath.Join(tmpDir, DefaultReportsDir)); err != nil {
		t.Errorf("reports dir not created next to the config: %v", err)
	}
}

func TestLoadFileErrors(t *testing.T) {
	clearEnv(t)
	tmpDir := t.TempDir()

	tests := []struct {
		name     string
		file     string
		content  string
		wantCode string
	}{
		{"invalid json", "bad.json", `{"server": `, "S102"},
		{"invalid yaml", "bad.yaml", "server: [", "S102"},
		{"bad duration", "dur.json", `{"explain": {"timeout": "soon"}}`, "S101"},
		{"unknown provider", "prov.json", `{"explain": {"provider": "oracle"}}`, "S101"},
		{"proxy without url", "proxy.json", `{"explain": {"provider": "proxy"}}`, "S101"},
		{"bad equality", "eq.json", `{"store": {"defaultEquality": "fuzzy"}}`, "S101"},
		{"s3 without bucket", "s3.json", `{"reports": {"sink": "s3"}}`, "S101"},
		{"unknown sink", "sink.json", `{"reports": {"sink": "ftp"}}`, "S101"},
		{"bad log level", "log.json", `{"log": {"level": "loud"}}`, "S101"},
		{"negative rate", "rate.json", `{"server": {"rateLimit": -1}}`, "S101"},
		{"unknown exporter", "otel.json", `{"telemetry": {"traceExporter": "zipkin"}}`, "S101"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, tmpDir, tt.file, tt.content)
			_, err := LoadFile(path)
			if err == nil {
				t.Fatal("expected error")
			}
			if code := codeOf(t, err); code != tt.wantCode {
				t.Errorf("code = %s, want %s (%v)", code, tt.wantCode, err)
			}
		})
	}

	_, err := LoadFile(filepath.Join(tmpDir, "missing.json"))
	if code := codeOf(t, err); code != "S100" {
		t.Errorf("missing file code = %s, want S100", code)
	}
}

func TestApplyEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("AWS_ACCESS_KEY_ID", "AKID")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "secret")
	t.Setenv("AWS_REGION", "eu-west-1")
	t.Setenv("OTEL_TRACES_EXPORTER", "otlp")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4317")

	tmpDir := t.TempDir()
	path := writeFile(t, tmpDir, JSONFileName, `{"reports": {"sink": "s3", "bucket": "b"}}`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Explain.Provider != "openai" {
		t.Errorf("Provider = %q, want openai when a key is set", cfg.Explain.Provider)
	}
	if cfg.OpenAIConfig().APIKey != "sk-test" {
		t.Errorf("APIKey not taken from the environment")
	}
	if cfg.Reports.AccessKeyID != "AKID" || cfg.Reports.SecretAccessKey != "secret" {
		t.Errorf("AWS credentials not taken from the environment")
	}
	if cfg.Reports.Region != "eu-west-1" {
		t.Errorf("Region = %q, want eu-west-1", cfg.Reports.Region)
	}
	tc := cfg.TelemetryConfig("v1")
	if tc.Exporter != "otlp" || tc.OTLPEndpoint != "collector:4317" || tc.ServiceName != "srasm" {
		t.Errorf("TelemetryConfig() = %+v", tc)
	}
	if cfg.Reports.Prefix != "reports/" {
		t.Errorf("Prefix = %q, want reports/", cfg.Reports.Prefix)
	}

	sink, err := cfg.ReportSink()
	if err != nil {
		t.Fatalf("ReportSink: %v", err)
	}
	if _, ok := sink.(*reports.S3Sink); !ok {
		t.Errorf("ReportSink() = %T, want *reports.S3Sink", sink)
	}

	e, err := cfg.Explainer(nil)
	if err != nil {
		t.Fatalf("Explainer: %v", err)
	}
	if _, ok := e.(*explain.OpenAI); !ok {
		t.Errorf("Explainer() = %T, want *explain.OpenAI", e)
	}
}

func TestExplainerMissingKey(t *testing.T) {
	cfg := New()
	cfg.Explain.Provider = "openai"

	_, err := cfg.Explainer(nil)
	if err == nil {
		t.Fatal("expected error without an API key")
	}
	if code := codeOf(t, err); code != "S103" {
		t.Errorf("code = %s, want S103", code)
	}
}

func TestSaveTo(t *testing.T) {
	clearEnv(t)
	tmpDir := t.TempDir()

	for _, name := range []string{JSONFileName, YAMLFileName} {
		t.Run(name, func(t *testing.T) {
			cfg := New()
			cfg.Server.Address = ":4000"
			cfg.Offload.Enabled = true

			path := filepath.Join(tmpDir, name)
			if err := cfg.SaveTo(path); err != nil {
				t.Fatalf("SaveTo: %v", err)
			}
			loaded, err := LoadFile(path)
			if err != nil {
				t.Fatalf("LoadFile: %v", err)
			}
			if loaded.Server.Address != ":4000" || !loaded.Offload.Enabled {
				t.Errorf("round trip lost values: %+v", loaded.Server)
			}
		})
	}
}

func TestDispatcherDisabled(t *testing.T) {
	if d := New().Dispatcher(nil); d != nil {
		t.Errorf("Dispatcher() = %v, want nil when offload is disabled", d)
	}
	if sink, err := New().ReportSink(); sink != nil || err != nil {
		t.Errorf("ReportSink() = %v, %v, want nil, nil", sink, err)
	}
}

func TestLogger(t *testing.T) {
	cfg := New()
	cfg.Log.Level = "warn"
	cfg.Log.Format = "json"

	var buf bytes.Buffer
	logger := cfg.Logger(&buf)
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info record written at warn level: %s", out)
	}
	if !strings.Contains(out, `"msg":"shown"`) || !strings.Contains(out, `"k":"v"`) {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestFindProjectRoot(t *testing.T) {
	tmpDir := t.TempDir()
	subDir := filepath.Join(tmpDir, "a", "b", "c")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatal(err)
	}

	if _, err := FindProjectRoot(subDir); err == nil {
		t.Error("expected error without a config file")
	}

	writeFile(t, tmpDir, YMLFileName, "log:\n  level: info\n")

	root, err := FindProjectRoot(subDir)
	if err != nil {
		t.Fatalf("FindProjectRoot: %v", err)
	}
	want, _ := filepath.Abs(tmpDir)
	if root != want {
		t.Errorf("root = %q, want %q", root, want)
	}
}

func TestLoadFromWorkingDir(t *testing.T) {
	clearEnv(t)
	tmpDir := t.TempDir()
	t.Chdir(tmpDir)

	cfg, err := LoadFromWorkingDir()
	if err != nil {
		t.Fatalf("LoadFromWorkingDir: %v", err)
	}
	if cfg.Path() != "" {
		t.Errorf("Path() = %q, want empty for defaults", cfg.Path())
	}

	writeFile(t, tmpDir, JSONFileName, `{"server": {"address": ":7000"}}`)
	cfg, err = LoadFromWorkingDir()
	if err != nil {
		t.Fatalf("LoadFromWorkingDir: %v", err)
	}
	if cfg.Server.Address != ":7000" {
		t.Errorf("Address = %q, want :7000", cfg.Server.Address)
	}
}
