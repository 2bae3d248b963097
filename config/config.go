// Package config loads the TOML configuration of ETP servers and clients.
package config

import (
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"github.com/Zereker/etp"
	"github.com/Zereker/etp/websocket"
)

// Config is the configuration of one ETP endpoint.
type Config struct {
	// Addr is the address a server listens on.
	Addr string
	// Path is the URL path of the WebSocket endpoint.
	Path string
	// URL is the endpoint a client dials.
	URL string
	// Encoding is the encoding a client asks for.
	Encoding string

	ApplicationName    string
	ApplicationVersion string

	BufferSize      int
	MaxPayloadBytes int
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	MaxParts             int
	MaxMessageID         int64
	WrapMessageIDs       bool
	StrictCorrelation    bool
	CompressionThreshold int
	DisconnectOnError    bool
}

type fileConfig struct {
	Addr                 string `toml:"addr"`
	Path                 string `toml:"path"`
	URL                  string `toml:"url"`
	Encoding             string `toml:"encoding"`
	ApplicationName      string `toml:"application_name"`
	ApplicationVersion   string `toml:"application_version"`
	BufferSize           int    `toml:"buffer_size"`
	MaxPayloadBytes      int    `toml:"max_payload_bytes"`
	WriteTimeout         string `toml:"write_timeout"`
	ShutdownTimeout      string `toml:"shutdown_timeout"`
	MaxParts             int    `toml:"max_parts"`
	MaxMessageID         int64  `toml:"max_message_id"`
	WrapMessageIDs       bool   `toml:"wrap_message_ids"`
	StrictCorrelation    bool   `toml:"strict_correlation"`
	CompressionThreshold int    `toml:"compression_threshold"`
	DisconnectOnError    bool   `toml:"disconnect_on_error"`
}

// DefaultConfig returns the configuration used for keys a file leaves out.
func DefaultConfig() Config {
	return Config{
		Addr:               "127.0.0.1:9000",
		Path:               "/etp",
		URL:                "ws://127.0.0.1:9000/etp",
		Encoding:           etp.EncodingBinary,
		ApplicationName:    "etp",
		ApplicationVersion: "0.1.0",
		BufferSize:         64,
		MaxPayloadBytes:    16 * 1024 * 1024,
		WriteTimeout:       5 * time.Second,
		ShutdownTimeout:    5 * time.Second,
		MaxParts:           10000,
	}
}

// Load reads the TOML file at path over DefaultConfig and validates the result.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, errors.Wrapf(err, "load etp config %s", path)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, errors.Errorf("load etp config %s: unknown key %q", path, undecoded[0].String())
	}

	if meta.IsDefined("addr") {
		cfg.Addr = strings.TrimSpace(raw.Addr)
	}
	if meta.IsDefined("path") {
		cfg.Path = strings.TrimSpace(raw.Path)
	}
	if meta.IsDefined("url") {
		cfg.URL = strings.TrimSpace(raw.URL)
	}
	if meta.IsDefined("encoding") {
		cfg.Encoding = strings.ToLower(strings.TrimSpace(raw.Encoding))
	}
	if meta.IsDefined("application_name") {
		cfg.ApplicationName = strings.TrimSpace(raw.ApplicationName)
	}
	if meta.IsDefined("application_version") {
		cfg.ApplicationVersion = strings.TrimSpace(raw.ApplicationVersion)
	}
	if meta.IsDefined("buffer_size") {
		cfg.BufferSize = raw.BufferSize
	}
	if meta.IsDefined("max_payload_bytes") {
		cfg.MaxPayloadBytes = raw.MaxPayloadBytes
	}
	if meta.IsDefined("write_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.WriteTimeout))
		if err != nil {
			return Config{}, errors.Wrap(err, "parse write_timeout")
		}
		cfg.WriteTimeout = d
	}
	if meta.IsDefined("shutdown_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.ShutdownTimeout))
		if err != nil {
			return Config{}, errors.Wrap(err, "parse shutdown_timeout")
		}
		cfg.ShutdownTimeout = d
	}
	if meta.IsDefined("max_parts") {
		cfg.MaxParts = raw.MaxParts
	}
	if meta.IsDefined("max_message_id") {
		cfg.MaxMessageID = raw.MaxMessageID
	}
	if meta.IsDefined("wrap_message_ids") {
		cfg.WrapMessageIDs = raw.WrapMessageIDs
	}
	if meta.IsDefined("strict_correlation") {
		cfg.StrictCorrelation = raw.StrictCorrelation
	}
	if meta.IsDefined("compression_threshold") {
		cfg.CompressionThreshold = raw.CompressionThreshold
	}
	if meta.IsDefined("disconnect_on_error") {
		cfg.DisconnectOnError = raw.DisconnectOnError
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, errors.WithMessagef(err, "load etp config %s", path)
	}
	return cfg, nil
}

// Validate rejects settings that cannot work together.
func (c Config) Validate() error {
	switch c.Encoding {
	case etp.EncodingBinary, etp.EncodingJSON:
	default:
		return errors.Errorf("encoding must be %q or %q, got %q", etp.EncodingBinary, etp.EncodingJSON, c.Encoding)
	}
	if c.CompressionThreshold > 0 && c.Encoding == etp.EncodingJSON {
		return errors.New("compression requires the binary encoding")
	}
	if c.CompressionThreshold < 0 || c.MaxParts < 0 || c.MaxMessageID < 0 {
		return errors.New("compression_threshold, max_parts and max_message_id must not be negative")
	}
	if c.BufferSize < 0 || c.MaxPayloadBytes < 0 {
		return errors.New("buffer_size and max_payload_bytes must not be negative")
	}
	if c.Path != "" && !strings.HasPrefix(c.Path, "/") {
		return errors.Errorf("path %q must start with /", c.Path)
	}
	return nil
}

// SessionOptions returns the session options the configuration sets.
func (c Config) SessionOptions(logger etp.Logger) []etp.Option {
	opts := []etp.Option{
		etp.LoggerOption(logger),
		etp.MaxPartsOption(c.MaxParts),
		etp.MaxMessageIDOption(c.MaxMessageID),
		etp.WrapMessageIDsOption(c.WrapMessageIDs),
		etp.StrictCorrelationOption(c.StrictCorrelation),
		etp.CompressionOption(c.CompressionThreshold),
	}
	if c.DisconnectOnError {
		opts = append(opts, etp.OnErrorOption(func(error) etp.ErrorAction { return etp.Disconnect }))
	}
	return opts
}

// TransportOptions returns the WebSocket options the configuration sets.
func (c Config) TransportOptions(logger etp.Logger) []websocket.Option {
	return []websocket.Option{
		websocket.LoggerOption(logger),
		websocket.PathOption(c.Path),
		websocket.EncodingOption(c.Encoding),
		websocket.BufferSizeOption(c.BufferSize),
		websocket.MaxPayloadOption(c.MaxPayloadBytes),
		websocket.WriteTimeoutOption(c.WriteTimeout),
		websocket.ShutdownTimeoutOption(c.ShutdownTimeout),
	}
}
