package server

import (
	"errors"
	"net/http"
	"net/url"
	"time"
)

// Config holds configuration for the explanation proxy.
type Config struct {
	// Address is the address to listen on (e.g., ":3000").
	// Default: ":3000".
	Address string

	// AllowedOrigin is sent as Access-Control-Allow-Origin.
	// Default: "*".
	AllowedOrigin string

	// ExplainTimeout bounds one call to the explanation backend.
	// Default: 30 seconds.
	ExplainTimeout time.Duration

	// RateLimit is the sustained number of explanation requests per second.
	// 0 disables rate limiting.
	// Default: 2.
	RateLimit float64

	// RateBurst is the number of explanation requests allowed in a burst.
	// Default: 5.
	RateBurst int

	// MaxBodyBytes caps the request body of POST /explain-error.
	// Default: 1MB.
	MaxBodyBytes int64

	// CheckOrigin validates the origin of /inspect WebSocket requests.
	// Default: SameOriginCheck.
	CheckOrigin func(r *http.Request) bool

	// InspectWriteTimeout is the deadline for one inspector frame.
	// Default: 10 seconds.
	InspectWriteTimeout time.Duration

	// InspectQueue is the number of pending inspector frames per client.
	// A client that falls further behind is disconnected.
	// Default: 64.
	InspectQueue int

	// ReadHeaderTimeout, ReadTimeout, WriteTimeout and IdleTimeout are passed
	// to http.Server.
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	// Default: 30 seconds.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Address:             ":3000",
		AllowedOrigin:       "*",
		ExplainTimeout:      30 * time.Second,
		RateLimit:           2,
		RateBurst:           5,
		MaxBodyBytes:        1 << 20,
		CheckOrigin:         SameOriginCheck,
		InspectWriteTimeout: 10 * time.Second,
		InspectQueue:        64,
		ReadHeaderTimeout:   5 * time.Second,
		ReadTimeout:         30 * time.Second,
		WriteTimeout:        60 * time.Second,
		IdleTimeout:         120 * time.Second,
		ShutdownTimeout:     30 * time.Second,
	}
}

// withDefaults fills unset fields from DefaultConfig. RateLimit is left as
// given, so 0 keeps rate limiting off.
func (c *Config) withDefaults() *Config {
	d := DefaultConfig()
	if c == nil {
		return d
	}
	out := *c
	if out.Address == "" {
		out.Address = d.Address
	}
	if out.AllowedOrigin == "" {
		out.AllowedOrigin = d.AllowedOrigin
	}
	if out.ExplainTimeout == 0 {
		out.ExplainTimeout = d.ExplainTimeout
	}
	if out.RateBurst == 0 {
		out.RateBurst = d.RateBurst
	}
	if out.MaxBodyBytes == 0 {
		out.MaxBodyBytes = d.MaxBodyBytes
	}
	if out.CheckOrigin == nil {
		out.CheckOrigin = d.CheckOrigin
	}
	if out.InspectWriteTimeout == 0 {
		out.InspectWriteTimeout = d.InspectWriteTimeout
	}
	if out.InspectQueue == 0 {
		out.InspectQueue = d.InspectQueue
	}
	if out.ReadHeaderTimeout == 0 {
		out.ReadHeaderTimeout = d.ReadHeaderTimeout
	}
	if out.ReadTimeout == 0 {
		out.ReadTimeout = d.ReadTimeout
	}
	if out.WriteTimeout == 0 {
		out.WriteTimeout = d.WriteTimeout
	}
	if out.IdleTimeout == 0 {
		out.IdleTimeout = d.IdleTimeout
	}
	if out.ShutdownTimeout == 0 {
		out.ShutdownTimeout = d.ShutdownTimeout
	}
	return &out
}

// Validate reports configuration values that cannot work.
func (c *Config) Validate() error {
	var errs []error
	if c.RateLimit < 0 {
		errs = append(errs, errors.New("server: RateLimit must not be negative"))
	}
	if c.RateBurst < 0 {
		errs = append(errs, errors.New("server: RateBurst must not be negative"))
	}
	if c.MaxBodyBytes < 0 {
		errs = append(errs, errors.New("server: MaxBodyBytes must not be negative"))
	}
	if c.InspectQueue < 0 {
		errs = append(errs, errors.New("server: InspectQueue must not be negative"))
	}
	return errors.Join(errs...)
}

// SameOriginCheck validates that the WebSocket request origin matches the host.
// SECURITY: Uses proper URL parsing to avoid edge cases with string manipulation.
func SameOriginCheck(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		// No Origin header (e.g., same-origin request or curl)
		return true
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}

	host := r.Host
	if host == "" {
		return false
	}
	return originURL.Host == host
}
