package network

import (
	"net/http"
	"time"
)

// ClientConfig holds configuration for HTTP client
type ClientConfig struct {
	Timeout               time.Duration
	MaxIdleConns          int
	MaxIdleConnsPerHost   int
	MaxConnsPerHost       int
	IdleConnTimeout       time.Duration
	TLSHandshakeTimeout   time.Duration
	ResponseHeaderTimeout time.Duration
	ExpectContinueTimeout time.Duration
	DisableKeepAlives     bool
}

// DefaultClientConfig returns the default client configuration
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Timeout:               30 * time.Second,
		MaxIdleConns:          50,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		DisableKeepAlives:     false,
	}
}

// NewClient creates a new HTTP client with pooled connections
func NewClient(config *ClientConfig) *http.Client {
	if config == nil {
		config = DefaultClientConfig()
	}

	transport := &http.Transport{
		MaxIdleConns:        config.MaxIdleConns,
		MaxIdleConnsPerHost: config.MaxIdleConnsPerHost,
		MaxConnsPerHost:     config.MaxConnsPerHost,
		IdleConnTimeout:     config.IdleConnTimeout,

		DisableKeepAlives: config.DisableKeepAlives,

		TLSHandshakeTimeout:   config.TLSHandshakeTimeout,
		ResponseHeaderTimeout: config.ResponseHeaderTimeout,
		ExpectContinueTimeout: config.ExpectContinueTimeout,
	}

	return &http.Client{
		Timeout:   config.Timeout,
		Transport: transport,
	}
}

// GetStreamClient returns an HTTP client tuned for long-running audio
// stream downloads. The overall timeout is disabled so large files on
// slow links are not cut off; stalls are still bounded by the response
// header timeout and the caller's context.
func GetStreamClient(headerTimeout time.Duration) *http.Client {
	config := DefaultClientConfig()
	config.Timeout = 0
	config.IdleConnTimeout = 120 * time.Second
	if headerTimeout > 0 {
		config.ResponseHeaderTimeout = headerTimeout
	}

	return NewClient(config)
}
