package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestEmptySentryConfig_Defaults(t *testing.T) {
	cfg := EmptySentryConfig()

	if got := cfg.GetSensorPort(); got != "/dev/ttyUSB0" {
		t.Errorf("GetSensorPort() = %q", got)
	}
	if got := cfg.GetActuatorPort(); got != "/dev/ttyUSB1" {
		t.Errorf("GetActuatorPort() = %q", got)
	}
	if cfg.GetSensorBaudRate() != 9600 || cfg.GetActuatorBaudRate() != 9600 {
		t.Errorf("baud rates = %d/%d, want 9600/9600", cfg.GetSensorBaudRate(), cfg.GetActuatorBaudRate())
	}
	if cfg.GetReadTimeout() != time.Second {
		t.Errorf("GetReadTimeout() = %v", cfg.GetReadTimeout())
	}
	if cfg.GetWriteTimeout() != 500*time.Millisecond {
		t.Errorf("GetWriteTimeout() = %v", cfg.GetWriteTimeout())
	}
	if cfg.GetWarmupFrames() != 30 {
		t.Errorf("GetWarmupFrames() = %d, want 30", cfg.GetWarmupFrames())
	}
	if cfg.GetSafetyMargin() != 10 {
		t.Errorf("GetSafetyMargin() = %d, want 10", cfg.GetSafetyMargin())
	}
	if cfg.GetMaxThreshold() != 1000 {
		t.Errorf("GetMaxThreshold() = %d, want 1000", cfg.GetMaxThreshold())
	}
	if cfg.GetSyncMode() != "linear" {
		t.Errorf("GetSyncMode() = %q", cfg.GetSyncMode())
	}
	if cfg.GetHeaderTrailerBytes() != 0 {
		t.Errorf("GetHeaderTrailerBytes() = %d", cfg.GetHeaderTrailerBytes())
	}
	if cfg.GetProjectionRounding() != "round" {
		t.Errorf("GetProjectionRounding() = %q", cfg.GetProjectionRounding())
	}
	if !cfg.GetHandshake() {
		t.Error("GetHandshake() = false, want true")
	}
	if cfg.GetDBPath() != "" {
		t.Errorf("GetDBPath() = %q, want empty", cfg.GetDBPath())
	}
}

func TestDefaultSentryConfig_MatchesGetters(t *testing.T) {
	def := DefaultSentryConfig()
	empty := EmptySentryConfig()
	if err := def.Validate(); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}
	if def.GetReadTimeout() != empty.GetReadTimeout() || def.GetWriteTimeout() != empty.GetWriteTimeout() {
		t.Error("default timeouts differ from getter fallbacks")
	}
	if def.JSON() != empty.JSON() {
		t.Errorf("effective JSON differs:\n%s\n%s", def.JSON(), empty.JSON())
	}
}

func TestLoadSentryConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "sentry.json")

	testJSON := `{
  "sensor_port": "/dev/ttyAMA0",
  "read_timeout": "250ms",
  "warmup_frames": 50,
  "safety_margin": 0,
  "sync_mode": "backtracking",
  "header_trailer_bytes": 1,
  "projection_rounding": "truncate",
  "handshake": false
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := LoadSentryConfig(configPath)
	if err != nil {
		t.Fatalf("LoadSentryConfig() error = %v", err)
	}

	if cfg.GetSensorPort() != "/dev/ttyAMA0" {
		t.Errorf("GetSensorPort() = %q", cfg.GetSensorPort())
	}
	if cfg.GetActuatorPort() != DefaultActuatorPort {
		t.Errorf("unset actuator_port should default, got %q", cfg.GetActuatorPort())
	}
	if cfg.GetReadTimeout() != 250*time.Millisecond {
		t.Errorf("GetReadTimeout() = %v", cfg.GetReadTimeout())
	}
	if cfg.GetWarmupFrames() != 50 || cfg.GetSafetyMargin() != 0 {
		t.Errorf("warmup/margin = %d/%d", cfg.GetWarmupFrames(), cfg.GetSafetyMargin())
	}
	if cfg.GetSyncMode() != "backtracking" || cfg.GetHeaderTrailerBytes() != 1 {
		t.Errorf("sync = %q trailer = %d", cfg.GetSyncMode(), cfg.GetHeaderTrailerBytes())
	}
	if cfg.GetProjectionRounding() != "truncate" || cfg.GetHandshake() {
		t.Errorf("rounding = %q handshake = %v", cfg.GetProjectionRounding(), cfg.GetHandshake())
	}
}

func TestLoadSentryConfig_Errors(t *testing.T) {
	tmpDir := t.TempDir()
	write := func(name, body string) string {
		p := filepath.Join(tmpDir, name)
		if err := os.WriteFile(p, []byte(body), 0644); err != nil {
			t.Fatal(err)
		}
		return p
	}

	tests := []struct {
		name    string
		path    string
		wantErr string
	}{
		{"wrong extension", write("sentry.yaml", "{}"), ".json extension"},
		{"missing", filepath.Join(tmpDir, "absent.json"), "failed to stat"},
		{"bad json", write("bad.json", "{"), "failed to parse"},
		{"negative margin", write("margin.json", `{"safety_margin": -1}`), "safety_margin"},
		{"zero warmup", write("warmup.json", `{"warmup_frames": 0}`), "warmup_frames"},
		{"bad duration", write("timeout.json", `{"write_timeout": "soon"}`), "write_timeout"},
		{"negative duration", write("neg.json", `{"read_timeout": "-1s"}`), "read_timeout"},
		{"bad sync mode", write("sync.json", `{"sync_mode": "fuzzy"}`), "sync_mode"},
		{"bad rounding", write("round.json", `{"projection_rounding": "ceil"}`), "projection_rounding"},
		{"too large", write("big.json", `{"db_path": "`+strings.Repeat("a", 1024*1024)+`"}`), "too large"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadSentryConfig(tt.path)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("LoadSentryConfig() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestMerge(t *testing.T) {
	base := DefaultSentryConfig()
	base.Merge(&SentryConfig{SensorPort: ptrString("/dev/ttyS3"), Handshake: ptrBool(false)})
	base.Merge(nil)

	if base.GetSensorPort() != "/dev/ttyS3" || base.GetHandshake() {
		t.Errorf("Merge did not apply overrides: port=%q handshake=%v", base.GetSensorPort(), base.GetHandshake())
	}
	if base.GetMaxThreshold() != DefaultMaxThreshold {
		t.Errorf("Merge clobbered unset field: %d", base.GetMaxThreshold())
	}
}

func TestDefaultsFileMatchesBuiltins(t *testing.T) {
	cfg, err := LoadSentryConfig("../../" + DefaultConfigPath)
	if err != nil {
		t.Fatalf("LoadSentryConfig: %v", err)
	}

	var disk, def map[string]any
	if err := json.Unmarshal([]byte(cfg.JSON()), &disk); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal([]byte(DefaultSentryConfig().JSON()), &def); err != nil {
		t.Fatal(err)
	}
	for k, v := range def {
		if disk[k] != v {
			t.Errorf("%s: defaults file has %v, built-in default is %v", k, disk[k], v)
		}
	}
}
