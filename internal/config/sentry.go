// Package config loads sentry runtime parameters from a JSON file.
//
// Every field is optional: a missing key falls back to the built-in default
// returned by the matching Get method.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultConfigPath is the canonical defaults file, relative to the repo root.
const DefaultConfigPath = "config/sentry.defaults.json"

// Built-in defaults.
const (
	DefaultSensorPort         = "/dev/ttyUSB0"
	DefaultActuatorPort       = "/dev/ttyUSB1"
	DefaultBaudRate           = 9600
	DefaultReadTimeout        = time.Second
	DefaultWriteTimeout       = 500 * time.Millisecond
	DefaultWarmupFrames       = 30
	DefaultSafetyMargin       = 10
	DefaultMaxThreshold       = 1000
	DefaultSyncMode           = "linear"
	DefaultProjectionRounding = "round"
)

// SentryConfig holds runtime parameters. Pointer fields distinguish "not set"
// from a zero value.
type SentryConfig struct {
	SensorPort       *string `json:"sensor_port,omitempty"`
	ActuatorPort     *string `json:"actuator_port,omitempty"`
	SensorBaudRate   *int    `json:"sensor_baud_rate,omitempty"`
	ActuatorBaudRate *int    `json:"actuator_baud_rate,omitempty"`

	ReadTimeout  *string `json:"read_timeout,omitempty"`  // duration string like "1s"
	WriteTimeout *string `json:"write_timeout,omitempty"` // duration string like "500ms"

	WarmupFrames *int `json:"warmup_frames,omitempty"`
	SafetyMargin *int `json:"safety_margin,omitempty"`
	MaxThreshold *int `json:"max_threshold,omitempty"`

	SyncMode           *string `json:"sync_mode,omitempty"` // "linear" or "backtracking"
	HeaderTrailerBytes *int    `json:"header_trailer_bytes,omitempty"`
	ProjectionRounding *string `json:"projection_rounding,omitempty"` // "round" or "truncate"

	Handshake *bool   `json:"handshake,omitempty"`
	DBPath    *string `json:"db_path,omitempty"`
}

func ptrString(v string) *string { return &v }
func ptrInt(v int) *int          { return &v }
func ptrBool(v bool) *bool       { return &v }

// EmptySentryConfig returns a config with every field unset.
func EmptySentryConfig() *SentryConfig {
	return &SentryConfig{}
}

// DefaultSentryConfig returns a config with every field set to its default.
func DefaultSentryConfig() *SentryConfig {
	return &SentryConfig{
		SensorPort:         ptrString(DefaultSensorPort),
		ActuatorPort:       ptrString(DefaultActuatorPort),
		SensorBaudRate:     ptrInt(DefaultBaudRate),
		ActuatorBaudRate:   ptrInt(DefaultBaudRate),
		ReadTimeout:        ptrString(DefaultReadTimeout.String()),
		WriteTimeout:       ptrString(DefaultWriteTimeout.String()),
		WarmupFrames:       ptrInt(DefaultWarmupFrames),
		SafetyMargin:       ptrInt(DefaultSafetyMargin),
		MaxThreshold:       ptrInt(DefaultMaxThreshold),
		SyncMode:           ptrString(DefaultSyncMode),
		HeaderTrailerBytes: ptrInt(0),
		ProjectionRounding: ptrString(DefaultProjectionRounding),
		Handshake:          ptrBool(true),
		DBPath:             ptrString(""),
	}
}

// LoadSentryConfig reads and validates a JSON config file.
func LoadSentryConfig(path string) (*SentryConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptySentryConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks every field that is set.
func (c *SentryConfig) Validate() error {
	for name, v := range map[string]*int{
		"sensor_baud_rate":   c.SensorBaudRate,
		"actuator_baud_rate": c.ActuatorBaudRate,
		"warmup_frames":      c.WarmupFrames,
		"max_threshold":      c.MaxThreshold,
	} {
		if v != nil && *v <= 0 {
			return fmt.Errorf("%s must be positive, got %d", name, *v)
		}
	}
	if c.SafetyMargin != nil && *c.SafetyMargin < 0 {
		return fmt.Errorf("safety_margin must be non-negative, got %d", *c.SafetyMargin)
	}
	if c.HeaderTrailerBytes != nil && *c.HeaderTrailerBytes < 0 {
		return fmt.Errorf("header_trailer_bytes must be non-negative, got %d", *c.HeaderTrailerBytes)
	}

	for name, v := range map[string]*string{
		"read_timeout":  c.ReadTimeout,
		"write_timeout": c.WriteTimeout,
	} {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must be non-negative, got %s", name, *v)
		}
	}

	if c.SyncMode != nil {
		switch strings.ToLower(*c.SyncMode) {
		case "", "linear", "backtracking", "kmp":
		default:
			return fmt.Errorf("sync_mode must be linear or backtracking, got %q", *c.SyncMode)
		}
	}
	if c.ProjectionRounding != nil {
		switch strings.ToLower(*c.ProjectionRounding) {
		case "", "round", "nearest", "truncate", "trunc":
		default:
			return fmt.Errorf("projection_rounding must be round or truncate, got %q", *c.ProjectionRounding)
		}
	}
	return nil
}

// Merge copies every field set in o over c.
func (c *SentryConfig) Merge(o *SentryConfig) {
	if o == nil {
		return
	}
	if o.SensorPort != nil {
		c.SensorPort = o.SensorPort
	}
	if o.ActuatorPort != nil {
		c.ActuatorPort = o.ActuatorPort
	}
	if o.SensorBaudRate != nil {
		c.SensorBaudRate = o.SensorBaudRate
	}
	if o.ActuatorBaudRate != nil {
		c.ActuatorBaudRate = o.ActuatorBaudRate
	}
	if o.ReadTimeout != nil {
		c.ReadTimeout = o.ReadTimeout
	}
	if o.WriteTimeout != nil {
		c.WriteTimeout = o.WriteTimeout
	}
	if o.WarmupFrames != nil {
		c.WarmupFrames = o.WarmupFrames
	}
	if o.SafetyMargin != nil {
		c.SafetyMargin = o.SafetyMargin
	}
	if o.MaxThreshold != nil {
		c.MaxThreshold = o.MaxThreshold
	}
	if o.SyncMode != nil {
		c.SyncMode = o.SyncMode
	}
	if o.HeaderTrailerBytes != nil {
		c.HeaderTrailerBytes = o.HeaderTrailerBytes
	}
	if o.ProjectionRounding != nil {
		c.ProjectionRounding = o.ProjectionRounding
	}
	if o.Handshake != nil {
		c.Handshake = o.Handshake
	}
	if o.DBPath != nil {
		c.DBPath = o.DBPath
	}
}

func (c *SentryConfig) GetSensorPort() string {
	if c.SensorPort == nil || *c.SensorPort == "" {
		return DefaultSensorPort
	}
	return *c.SensorPort
}

func (c *SentryConfig) GetActuatorPort() string {
	if c.ActuatorPort == nil || *c.ActuatorPort == "" {
		return DefaultActuatorPort
	}
	return *c.ActuatorPort
}

func (c *SentryConfig) GetSensorBaudRate() int {
	if c.SensorBaudRate == nil {
		return DefaultBaudRate
	}
	return *c.SensorBaudRate
}

func (c *SentryConfig) GetActuatorBaudRate() int {
	if c.ActuatorBaudRate == nil {
		return DefaultBaudRate
	}
	return *c.ActuatorBaudRate
}

func (c *SentryConfig) GetReadTimeout() time.Duration {
	return parseDurationOr(c.ReadTimeout, DefaultReadTimeout)
}

func (c *SentryConfig) GetWriteTimeout() time.Duration {
	return parseDurationOr(c.WriteTimeout, DefaultWriteTimeout)
}

func parseDurationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def // default on parse error
	}
	return d
}

func (c *SentryConfig) GetWarmupFrames() int {
	if c.WarmupFrames == nil {
		return DefaultWarmupFrames
	}
	return *c.WarmupFrames
}

func (c *SentryConfig) GetSafetyMargin() int {
	if c.SafetyMargin == nil {
		return DefaultSafetyMargin
	}
	return *c.SafetyMargin
}

func (c *SentryConfig) GetMaxThreshold() int {
	if c.MaxThreshold == nil {
		return DefaultMaxThreshold
	}
	return *c.MaxThreshold
}

func (c *SentryConfig) GetSyncMode() string {
	if c.SyncMode == nil || *c.SyncMode == "" {
		return DefaultSyncMode
	}
	return *c.SyncMode
}

func (c *SentryConfig) GetHeaderTrailerBytes() int {
	if c.HeaderTrailerBytes == nil {
		return 0
	}
	return *c.HeaderTrailerBytes
}

func (c *SentryConfig) GetProjectionRounding() string {
	if c.ProjectionRounding == nil || *c.ProjectionRounding == "" {
		return DefaultProjectionRounding
	}
	return *c.ProjectionRounding
}

func (c *SentryConfig) GetHandshake() bool {
	if c.Handshake == nil {
		return true // default
	}
	return *c.Handshake
}

// GetDBPath returns the detection log path; empty disables the log.
func (c *SentryConfig) GetDBPath() string {
	if c.DBPath == nil {
		return ""
	}
	return *c.DBPath
}

// JSON returns the effective config, with defaults filled in, as JSON.
func (c *SentryConfig) JSON() string {
	eff := DefaultSentryConfig()
	eff.Merge(c)
	b, err := json.Marshal(eff)
	if err != nil {
		return "{}"
	}
	return string(b)
}
