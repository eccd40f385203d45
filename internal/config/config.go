package config

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vango-dev/srasm/internal/errors"
	"github.com/vango-dev/srasm/internal/telemetry"
	"github.com/vango-dev/srasm/pkg/chathistory"
	"github.com/vango-dev/srasm/pkg/explain"
	"github.com/vango-dev/srasm/pkg/offload"
	"github.com/vango-dev/srasm/pkg/reports"
	"github.com/vango-dev/srasm/pkg/server"
	"github.com/vango-dev/srasm/pkg/store"
)

// Config file names, in lookup order.
const (
	JSONFileName = "srasm.json"
	YAMLFileName = "srasm.yaml"
	YMLFileName  = "srasm.yml"
)

// Defaults.
const (
	DefaultAddress    = ":3000"
	DefaultHistoryDir = ".srasm/history"
	DefaultReportsDir = ".srasm/reports"
	DefaultLogLevel   = "info"
	DefaultLogFormat  = "text"
)

// Config is the complete srasm configuration.
type Config struct {
	Server  ServerConfig  `json:"server" yaml:"server"`
	Explain ExplainConfig `json:"explain" yaml:"explain"`
	Store   StoreConfig   `json:"store" yaml:"store"`
	Offload OffloadConfig `json:"offload" yaml:"offload"`
	History HistoryConfig `json:"history" yaml:"history"`
	Reports ReportsConfig `json:"reports" yaml:"reports"`
	Log     LogConfig     `json:"log" yaml:"log"`

	Telemetry TelemetryConfig `json:"telemetry" yaml:"telemetry"`

	// configPath is the file the config was loaded from.
	configPath string
}

// ServerConfig configures the explanation proxy.
type ServerConfig struct {
	Address       string `json:"address,omitempty" yaml:"address,omitempty"`
	AllowedOrigin string `json:"allowedOrigin,omitempty" yaml:"allowedOrigin,omitempty"`

	// RateLimit is explanation requests per second. Nil means the server
	// default; 0 disables limiting.
	RateLimit *float64 `json:"rateLimit,omitempty" yaml:"rateLimit,omitempty"`
	RateBurst int      `json:"rateBurst,omitempty" yaml:"rateBurst,omitempty"`

	MaxBodyBytes    int64  `json:"maxBodyBytes,omitempty" yaml:"maxBodyBytes,omitempty"`
	ShutdownTimeout string `json:"shutdownTimeout,omitempty" yaml:"shutdownTimeout,omitempty"`

	Metrics bool `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Tracing bool `json:"tracing,omitempty" yaml:"tracing,omitempty"`
}

// ExplainConfig selects and configures the explanation backend.
type ExplainConfig struct {
	// Provider is "openai", "proxy" or "static".
	Provider string `json:"provider,omitempty" yaml:"provider,omitempty"`

	APIKey      string  `json:"apiKey,omitempty" yaml:"apiKey,omitempty"`
	BaseURL     string  `json:"baseURL,omitempty" yaml:"baseURL,omitempty"`
	Model       string  `json:"model,omitempty" yaml:"model,omitempty"`
	Temperature float32 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxTokens   int     `json:"maxTokens,omitempty" yaml:"maxTokens,omitempty"`

	// ProxyURL is the base URL of a remote explanation proxy, used by the
	// "proxy" provider.
	ProxyURL string `json:"proxyURL,omitempty" yaml:"proxyURL,omitempty"`

	Timeout string `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// StoreConfig configures stores built by the CLI.
type StoreConfig struct {
	// DefaultEquality is "reference" or "structural".
	DefaultEquality string `json:"defaultEquality,omitempty" yaml:"defaultEquality,omitempty"`
}

// OffloadConfig configures the heavy-update dispatcher.
type OffloadConfig struct {
	Enabled   bool   `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Threshold int    `json:"threshold,omitempty" yaml:"threshold,omitempty"`
	Timeout   string `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Workers   int64  `json:"workers,omitempty" yaml:"workers,omitempty"`
}

// HistoryConfig configures the chat history database.
type HistoryConfig struct {
	Path       string `json:"path,omitempty" yaml:"path,omitempty"`
	InMemory   bool   `json:"inMemory,omitempty" yaml:"inMemory,omitempty"`
	SyncWrites *bool  `json:"syncWrites,omitempty" yaml:"syncWrites,omitempty"`
	GCInterval string `json:"gcInterval,omitempty" yaml:"gcInterval,omitempty"`
}

// ReportsConfig configures where failure reports are archived.
type ReportsConfig struct {
	// Sink is "", "disk" or "s3". Empty disables archiving.
	Sink    string `json:"sink,omitempty" yaml:"sink,omitempty"`
	Dir     string `json:"dir,omitempty" yaml:"dir,omitempty"`
	MaxSize int64  `json:"maxSize,omitempty" yaml:"maxSize,omitempty"`
	MaxAge  string `json:"maxAge,omitempty" yaml:"maxAge,omitempty"`

	Bucket          string `json:"bucket,omitempty" yaml:"bucket,omitempty"`
	Prefix          string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	Region          string `json:"region,omitempty" yaml:"region,omitempty"`
	Endpoint        string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	UsePathStyle    bool   `json:"usePathStyle,omitempty" yaml:"usePathStyle,omitempty"`
	AccessKeyID     string `json:"accessKeyID,omitempty" yaml:"accessKeyID,omitempty"`
	SecretAccessKey string `json:"secretAccessKey,omitempty" yaml:"secretAccessKey,omitempty"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	// Level is "debug", "info", "warn" or "error".
	Level string `json:"level,omitempty" yaml:"level,omitempty"`

	// Format is "text" or "json".
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
}

// TelemetryConfig selects the trace exporter used when server.tracing is on.
type TelemetryConfig struct {
	// TraceExporter is "otlp", "stdout" or "none".
	TraceExporter string `json:"traceExporter,omitempty" yaml:"traceExporter,omitempty"`
	OTLPEndpoint  string `json:"otlpEndpoint,omitempty" yaml:"otlpEndpoint,omitempty"`
	OTLPInsecure  bool   `json:"otlpInsecure,omitempty" yaml:"otlpInsecure,omitempty"`
	ServiceName   string `json:"serviceName,omitempty" yaml:"serviceName,omitempty"`
}

// New creates a Config with default values.
func New() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load loads the configuration file in dir.
func Load(dir string) (*Config, error) {
	path, ok := find(dir)
	if !ok {
		return nil, errors.New("S100").
			WithDetail("No srasm.json or srasm.yaml found in " + dir).
			WithSuggestion("Run 'srasm init' to write a default configuration")
	}
	return LoadFile(path)
}

// LoadFile loads a configuration file. Files ending in .yaml or .yml are
// parsed as YAML, anything else as JSON. Environment overrides and defaults
// are applied after parsing.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("S100").
				WithDetail("No configuration file at " + path)
		}
		return nil, errors.New("S102").Wrap(err)
	}

	cfg := &Config{}
	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, errors.New("S102").
			Wrap(err).
			WithLocationFromError(path, err).
			WithSuggestion("Check that " + filepath.Base(path) + " is valid " + format(path))
	}

	cfg.configPath = path
	cfg.ApplyEnv(os.LookupEnv)
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		var se *errors.SrasmError
		if stderrors.As(err, &se) && se.Location == nil {
			se.Location = &errors.Location{File: path}
		}
		return nil, err
	}
	return cfg, nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func format(path string) string {
	if isYAML(path) {
		return "YAML"
	}
	return "JSON"
}

func find(dir string) (string, bool) {
	for _, name := range []string{JSONFileName, YAMLFileName, YMLFileName} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
	}
	return "", false
}

// Exists reports whether dir holds a configuration file.
func Exists(dir string) bool {
	_, ok := find(dir)
	return ok
}

// SaveTo writes the configuration to path as JSON or YAML by extension.
func (c *Config) SaveTo(path string) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
		data = append(data, '\n')
	}
	if err != nil {
		return errors.New("S102").Wrap(err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.New("S102").Wrap(err)
	}
	c.configPath = path
	return nil
}

// Path returns the file the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// Dir returns the directory of the config file.
func (c *Config) Dir() string {
	if c.configPath == "" {
		return ""
	}
	return filepath.Dir(c.configPath)
}

// resolve makes a relative path relative to the config file.
func (c *Config) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || c.Dir() == "" {
		return path
	}
	return filepath.Join(c.Dir(), path)
}

// ApplyEnv overrides secrets and deployment settings from the environment.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup("OPENAI_API_KEY"); ok && v != "" {
		c.Explain.APIKey = v
	}
	if v, ok := lookup("AWS_ACCESS_KEY_ID"); ok && v != "" {
		c.Reports.AccessKeyID = v
	}
	if v, ok := lookup("AWS_SECRET_ACCESS_KEY"); ok && v != "" {
		c.Reports.SecretAccessKey = v
	}
	if v, ok := lookup("AWS_REGION"); ok && v != "" && c.Reports.Region == "" {
		c.Reports.Region = v
	}
	if v, ok := lookup("SRASM_ADDRESS"); ok && v != "" {
		c.Server.Address = v
	}
	if v, ok := lookup("SRASM_LOG_LEVEL"); ok && v != "" {
		c.Log.Level = v
	}
	if v, ok := lookup("OTEL_TRACES_EXPORTER"); ok && v != "" {
		c.Telemetry.TraceExporter = v
	}
	if v, ok := lookup("OTEL_EXPORTER_OTLP_ENDPOINT"); ok && v != "" {
		c.Telemetry.OTLPEndpoint = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = DefaultAddress
	}
	if c.Server.AllowedOrigin == "" {
		c.Server.AllowedOrigin = "*"
	}
	if c.Explain.Provider == "" {
		if c.Explain.APIKey != "" {
			c.Explain.Provider = "openai"
		} else {
			c.Explain.Provider = "static"
		}
	}
	if c.Explain.Model == "" {
		c.Explain.Model = explain.DefaultModel
	}
	if c.Explain.Timeout == "" {
		c.Explain.Timeout = explain.DefaultTimeout.String()
	}
	if c.Store.DefaultEquality == "" {
		c.Store.DefaultEquality = store.Reference.String()
	}
	if c.Offload.Threshold == 0 {
		c.Offload.Threshold = offload.DefaultThreshold
	}
	if c.Offload.Timeout == "" {
		c.Offload.Timeout = offload.DefaultTimeout.String()
	}
	if c.History.Path == "" {
		c.History.Path = DefaultHistoryDir
	}
	if c.Reports.Sink == "disk" && c.Reports.Dir == "" {
		c.Reports.Dir = DefaultReportsDir
	}
	if c.Reports.Sink == "s3" && c.Reports.Prefix == "" {
		c.Reports.Prefix = "reports/"
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
	if c.Telemetry.TraceExporter == "" {
		c.Telemetry.TraceExporter = "none"
	}
	if c.Telemetry.OTLPEndpoint == "" {
		c.Telemetry.OTLPEndpoint = "localhost:4317"
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "srasm"
	}
}

// Validate checks every section and reports the first invalid value.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return errors.New("S101").WithSuggestion(fmt.Sprintf(format, args...))
	}

	if c.Server.RateLimit != nil && *c.Server.RateLimit < 0 {
		return invalid("server.rateLimit must not be negative")
	}
	if c.Server.RateBurst < 0 || c.Server.MaxBodyBytes < 0 {
		return invalid("server.rateBurst and server.maxBodyBytes must not be negative")
	}
	for name, d := range map[string]string{
		"server.shutdownTimeout": c.Server.ShutdownTimeout,
		"explain.timeout":        c.Explain.Timeout,
		"offload.timeout":        c.Offload.Timeout,
		"history.gcInterval":     c.History.GCInterval,
		"reports.maxAge":         c.Reports.MaxAge,
	} {
		if d == "" {
			continue
		}
		if _, err := time.ParseDuration(d); err != nil {
			return invalid("%s must be a duration like \"30s\", got %q", name, d)
		}
	}

	switch c.Explain.Provider {
	case "openai", "static":
	case "proxy":
		if c.Explain.ProxyURL == "" {
			return invalid("explain.proxyURL is required for the proxy provider")
		}
	default:
		return invalid("explain.provider must be openai, proxy or static, got %q", c.Explain.Provider)
	}

	if _, err := store.ParseEqualityMode(c.Store.DefaultEquality); err != nil {
		return invalid("store.defaultEquality must be reference or structural, got %q", c.Store.DefaultEquality)
	}
	if c.Offload.Threshold < 0 || c.Offload.Workers < 0 {
		return invalid("offload.threshold and offload.workers must not be negative")
	}

	switch c.Reports.Sink {
	case "", "disk":
	case "s3":
		if c.Reports.Bucket == "" {
			return invalid("reports.bucket is required for the s3 sink")
		}
	default:
		return invalid("reports.sink must be disk or s3, got %q", c.Reports.Sink)
	}

	if _, err := parseLevel(c.Log.Level); err != nil {
		return invalid("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return invalid("log.format must be text or json, got %q", c.Log.Format)
	}
	switch c.Telemetry.TraceExporter {
	case "none", "stdout", "otlp":
	default:
		return invalid("telemetry.traceExporter must be otlp, stdout or none, got %q", c.Telemetry.TraceExporter)
	}
	return nil
}

// duration parses a validated duration, falling back to def when unset.
func duration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

// ServerConfig returns the server configuration.
func (c *Config) ServerConfig() *server.Config {
	sc := server.DefaultConfig()
	sc.Address = c.Server.Address
	sc.AllowedOrigin = c.Server.AllowedOrigin
	sc.ExplainTimeout = duration(c.Explain.Timeout, sc.ExplainTimeout)
	if c.Server.RateLimit != nil {
		sc.RateLimit = *c.Server.RateLimit
	}
	if c.Server.RateBurst > 0 {
		sc.RateBurst = c.Server.RateBurst
	}
	if c.Server.MaxBodyBytes > 0 {
		sc.MaxBodyBytes = c.Server.MaxBodyBytes
	}
	sc.ShutdownTimeout = duration(c.Server.ShutdownTimeout, sc.ShutdownTimeout)
	return sc
}

// Explainer builds the configured explanation backend.
func (c *Config) Explainer(logger *slog.Logger) (explain.Explainer, error) {
	switch c.Explain.Provider {
	case "openai":
		e, err := explain.NewOpenAI(c.OpenAIConfig(), logger)
		if err != nil {
			return nil, errors.New("S103").Wrap(err).
				WithExample("export OPENAI_API_KEY=sk-...")
		}
		return e, nil
	case "proxy":
		return explain.NewClient(c.Explain.ProxyURL, explain.WithClientLogger(logger)), nil
	default:
		return explain.Static{}, nil
	}
}

// OpenAIConfig returns the OpenAI backend configuration.
func (c *Config) OpenAIConfig() explain.OpenAIConfig {
	return explain.OpenAIConfig{
		APIKey:      c.Explain.APIKey,
		BaseURL:     c.Explain.BaseURL,
		Model:       c.Explain.Model,
		Temperature: c.Explain.Temperature,
		MaxTokens:   c.Explain.MaxTokens,
	}
}

// ExplainTimeout returns the bound on one explanation call.
func (c *Config) ExplainTimeout() time.Duration {
	return duration(c.Explain.Timeout, explain.DefaultTimeout)
}

// Equality returns the store default equality mode.
func (c *Config) Equality() store.EqualityMode {
	mode, err := store.ParseEqualityMode(c.Store.DefaultEquality)
	if err != nil {
		return store.Reference
	}
	return mode
}

// Dispatcher returns the offload dispatcher, or nil when offloading is off.
func (c *Config) Dispatcher(logger *slog.Logger) *offload.Dispatcher {
	if !c.Offload.Enabled {
		return nil
	}
	return offload.New(offload.Config{
		Threshold: c.Offload.Threshold,
		Timeout:   duration(c.Offload.Timeout, offload.DefaultTimeout),
		Workers:   c.Offload.Workers,
	}, logger)
}

// HistoryConfig returns the chat history database configuration.
func (c *Config) HistoryConfig(logger *slog.Logger) chathistory.Config {
	if c.History.InMemory {
		cfg := chathistory.InMemoryConfig()
		cfg.Logger = logger
		return cfg
	}
	cfg := chathistory.DefaultConfig(c.resolve(c.History.Path))
	if c.History.SyncWrites != nil {
		cfg.SyncWrites = *c.History.SyncWrites
	}
	cfg.GCInterval = duration(c.History.GCInterval, cfg.GCInterval)
	cfg.Logger = logger
	return cfg
}

// ReportSink builds the configured report sink. It returns nil when
// archiving is off.
func (c *Config) ReportSink() (reports.Sink, error) {
	switch c.Reports.Sink {
	case "disk":
		sink, err := reports.NewDiskSink(c.resolve(c.Reports.Dir), c.Reports.MaxSize)
		if err != nil {
			return nil, errors.New("S140").Wrap(err)
		}
		return sink, nil
	case "s3":
		client := reports.NewS3Client(reports.S3Config{
			Region:          c.Reports.Region,
			Endpoint:        c.Reports.Endpoint,
			UsePathStyle:    c.Reports.UsePathStyle,
			AccessKeyID:     c.Reports.AccessKeyID,
			SecretAccessKey: c.Reports.SecretAccessKey,
		})
		return reports.NewS3Sink(client, c.Reports.Bucket, c.Reports.Prefix, c.Reports.MaxSize), nil
	}
	return nil, nil
}

// ReportMaxAge returns how long reports are kept; 0 keeps them forever.
func (c *Config) ReportMaxAge() time.Duration {
	return duration(c.Reports.MaxAge, 0)
}

// TelemetryConfig returns the tracer provider configuration.
func (c *Config) TelemetryConfig(version string) telemetry.Config {
	return telemetry.Config{
		ServiceName:    c.Telemetry.ServiceName,
		ServiceVersion: version,
		Exporter:       c.Telemetry.TraceExporter,
		OTLPEndpoint:   c.Telemetry.OTLPEndpoint,
		OTLPInsecure:   c.Telemetry.OTLPInsecure,
	}
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	err := level.UnmarshalText([]byte(s))
	return level, err
}

// Logger builds the process logger writing to w.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// FindProjectRoot walks up from startDir to the first directory holding a
// configuration file.
func FindProjectRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	for {
		if Exists(dir) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("S100").
				WithDetail("No srasm.json or srasm.yaml found in " + startDir + " or any parent directory").
				WithSuggestion("Run 'srasm init' to write a default configuration")
		}
		dir = parent
	}
}

// LoadFromWorkingDir loads the configuration of the enclosing project, or
// the defaults when there is none.
func LoadFromWorkingDir() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	root, err := FindProjectRoot(wd)
	if err != nil {
		cfg := New()
		cfg.ApplyEnv(os.LookupEnv)
		cfg.applyDefaults()
		return cfg, nil
	}
	return Load(root)
}
