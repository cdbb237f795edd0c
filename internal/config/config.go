package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
	"github.com/tarkov-map/tracker/internal/capture"
	"github.com/tarkov-map/tracker/internal/detect"
	"github.com/tarkov-map/tracker/internal/tracker"
	"github.com/tarkov-map/tracker/pkg/core"
)

// FileName is the config file looked up in the config directory.
const FileName = "tracker.cfg.json"

// MemoryConfig holds in-memory/JSON storage backend settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SQLiteConfig holds settings for the in-memory SQLite backend.
type SQLiteConfig struct {
	DumpPath     string
	DumpInterval time.Duration
}

// WebSocketConfig holds settings for forwarding sessions to a remote server.
type WebSocketConfig struct {
	URL    string
	Secret string
}

// StorageConfig selects where recorded sessions go.
type StorageConfig struct {
	Type         string // "memory", "sqlite", "postgres" or "websocket"
	Enabled      bool
	RecordRateHz float64
	MinMove      float64 // world units a position must move to be recorded
	FlushEvery   time.Duration
	Memory       MemoryConfig
	SQLite       SQLiteConfig
	WebSocket    WebSocketConfig
}

// UploadConfig holds settings for uploading finished session files to a
// web viewer.
type UploadConfig struct {
	Enabled bool
	URL     string
	APIKey  string
}

// DBConfig holds postgres connection settings.
type DBConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
}

// DSN returns the postgres connection string.
func (c DBConfig) DSN() string {
	return fmt.Sprintf(`host=%s port=%s user=%s password=%s dbname=%s sslmode=disable`,
		c.Host, c.Port, c.Username, c.Password, c.Database)
}

// PublishConfig tunes the position publisher.
type PublishConfig struct {
	StaleAfter time.Duration
}

// StreamConfig configures the WebSocket position feed.
type StreamConfig struct {
	Enabled bool
	Listen  string
	Path    string
	RateHz  float64
}

// InfluxConfig holds InfluxDB settings.
type InfluxConfig struct {
	Enabled    bool
	URL        string
	Token      string
	Org        string
	Bucket     string
	BackupPath string
	RateHz     float64
}

// OTelConfig holds OpenTelemetry settings.
type OTelConfig struct {
	Enabled        bool
	ServiceName    string
	BatchTimeout   time.Duration
	MetricInterval time.Duration
	Endpoint       string
	Insecure       bool
}

// GraylogConfig holds GELF log shipping settings.
type GraylogConfig struct {
	Enabled bool
	Address string
}

// ScreenshotConfig controls the screenshot folder watcher.
type ScreenshotConfig struct {
	Enabled bool
	Dir     string // empty means the game's default folder
}

// HotkeyConfig holds global hotkey bindings.
type HotkeyConfig struct {
	Enabled bool
	Pause   []string
}

// MonitorConfig controls the status monitor.
type MonitorConfig struct {
	Enabled    bool
	Interval   time.Duration
	StatusFile string
}

// OverlayConfig sizes the debug overlay window.
type OverlayConfig struct {
	Width  int
	Height int
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	SetDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	return nil
}

// SetDefaults registers the default for every key.
func SetDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./logs")
	viper.SetDefault("logsKeep", 20)
	viper.SetDefault("mapsFile", "./maps.json")
	viper.SetDefault("defaultMap", "")

	cc := capture.DefaultConfig()
	viper.SetDefault("capture.backend", cc.Backend)
	viper.SetDefault("capture.source", "")
	viper.SetDefault("capture.rateHz", cc.RateHz)
	viper.SetDefault("capture.timeout", cc.Timeout.String())
	viper.SetDefault("capture.failureNotifyAfter", cc.FailureNotifyAfter)
	viper.SetDefault("capture.region.monitor", 0)
	viper.SetDefault("capture.region.x", 0)
	viper.SetDefault("capture.region.y", 0)
	viper.SetDefault("capture.region.width", 256)
	viper.SetDefault("capture.region.height", 256)

	dc := detect.DefaultConfig()
	viper.SetDefault("detector.strategy", dc.Strategy)
	viper.SetDefault("detector.confidenceThreshold", dc.ConfidenceThreshold)
	viper.SetDefault("detector.markerSize", dc.MarkerSize)
	viper.SetDefault("detector.templatePath", "")
	viper.SetDefault("detector.angleStepDeg", dc.AngleStepDeg)
	viper.SetDefault("detector.stride", dc.Stride)
	viper.SetDefault("detector.candidates", dc.Candidates)
	viper.SetDefault("detector.markerHue", dc.MarkerHue)
	viper.SetDefault("detector.hueTolerance", dc.HueTolerance)
	viper.SetDefault("detector.minSaturation", dc.MinSaturation)
	viper.SetDefault("detector.minValue", dc.MinValue)
	viper.SetDefault("detector.autoValue", dc.AutoValue)

	tc := tracker.DefaultConfig()
	viper.SetDefault("tracker.maxMisses", tc.MaxMisses)
	viper.SetDefault("tracker.maxSpeed", tc.MaxSpeed)
	viper.SetDefault("tracker.jitterAllowance", tc.JitterAllowance)
	viper.SetDefault("tracker.maxExtrapolation", tc.MaxExtrapolation.String())
	viper.SetDefault("tracker.processNoisePos", tc.ProcessNoisePos)
	viper.SetDefault("tracker.processNoiseVel", tc.ProcessNoiseVel)
	viper.SetDefault("tracker.measurementNoise", tc.MeasurementNoise)
	viper.SetDefault("tracker.maxPredictDt", tc.MaxPredictDt.String())
	viper.SetDefault("tracker.maxCovarianceDiag", tc.MaxCovarianceDiag)
	viper.SetDefault("tracker.headingAlpha", tc.HeadingAlpha)

	viper.SetDefault("publish.staleAfter", "500ms")

	viper.SetDefault("stream.enabled", false)
	viper.SetDefault("stream.listen", "127.0.0.1:8765")
	viper.SetDefault("stream.path", "/ws")
	viper.SetDefault("stream.rateHz", 10)

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.enabled", true)
	viper.SetDefault("storage.recordRateHz", 2)
	viper.SetDefault("storage.minMove", 0.5)
	viper.SetDefault("storage.flushEvery", "2s")
	viper.SetDefault("storage.memory.outputDir", "./recordings")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.sqlite.dumpPath", "./recordings/sessions.db")
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")
	viper.SetDefault("storage.websocket.url", "ws://localhost:5000/api/tracker")
	viper.SetDefault("storage.websocket.secret", "")

	viper.SetDefault("upload.enabled", false)
	viper.SetDefault("upload.url", "http://localhost:5000")
	viper.SetDefault("upload.apiKey", "")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "tracker")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.url", "http://localhost:8086")
	viper.SetDefault("influx.token", "")
	viper.SetDefault("influx.org", "tarkov-map")
	viper.SetDefault("influx.bucket", "tracking")
	viper.SetDefault("influx.backupPath", "./logs/influx_backup.lp.gz")
	viper.SetDefault("influx.rateHz", 2)

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "tarkov-map-tracker")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.metricInterval", "30s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("screenshots.enabled", true)
	viper.SetDefault("screenshots.dir", "")

	viper.SetDefault("hotkeys.enabled", true)
	viper.SetDefault("hotkeys.pause", []string{"p", "ctrl", "shift"})

	viper.SetDefault("monitor.enabled", true)
	viper.SetDefault("monitor.interval", "10s")
	viper.SetDefault("monitor.statusFile", "status.txt")

	viper.SetDefault("overlay.width", 900)
	viper.SetDefault("overlay.height", 900)
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetCaptureConfig returns the capture stage settings.
func GetCaptureConfig() capture.Config {
	return capture.Config{
		Backend:            viper.GetString("capture.backend"),
		Source:             viper.GetString("capture.source"),
		RateHz:             viper.GetFloat64("capture.rateHz"),
		Timeout:            viper.GetDuration("capture.timeout"),
		FailureNotifyAfter: viper.GetInt("capture.failureNotifyAfter"),
	}
}

// GetCaptureRegion returns the initial capture region.
func GetCaptureRegion() core.Region {
	return core.Region{
		Monitor: viper.GetInt("capture.region.monitor"),
		X:       viper.GetInt("capture.region.x"),
		Y:       viper.GetInt("capture.region.y"),
		Width:   viper.GetInt("capture.region.width"),
		Height:  viper.GetInt("capture.region.height"),
	}
}

// GetDetectorConfig returns the detector settings.
func GetDetectorConfig() detect.Config {
	return detect.Config{
		Strategy:            viper.GetString("detector.strategy"),
		ConfidenceThreshold: viper.GetFloat64("detector.confidenceThreshold"),
		MarkerSize:          viper.GetInt("detector.markerSize"),
		TemplatePath:        viper.GetString("detector.templatePath"),
		AngleStepDeg:        viper.GetFloat64("detector.angleStepDeg"),
		Stride:              viper.GetInt("detector.stride"),
		Candidates:          viper.GetInt("detector.candidates"),
		MarkerHue:           viper.GetFloat64("detector.markerHue"),
		HueTolerance:        viper.GetFloat64("detector.hueTolerance"),
		MinSaturation:       viper.GetFloat64("detector.minSaturation"),
		MinValue:            viper.GetFloat64("detector.minValue"),
		AutoValue:           viper.GetBool("detector.autoValue"),
	}
}

// GetTrackerConfig returns the tracker settings. The confidence threshold
// is shared with the detector.
func GetTrackerConfig() tracker.Config {
	return tracker.Config{
		MaxMisses:           viper.GetInt("tracker.maxMisses"),
		ConfidenceThreshold: viper.GetFloat64("detector.confidenceThreshold"),
		MaxSpeed:            viper.GetFloat64("tracker.maxSpeed"),
		JitterAllowance:     viper.GetFloat64("tracker.jitterAllowance"),
		MaxExtrapolation:    viper.GetDuration("tracker.maxExtrapolation"),
		ProcessNoisePos:     viper.GetFloat64("tracker.processNoisePos"),
		ProcessNoiseVel:     viper.GetFloat64("tracker.processNoiseVel"),
		MeasurementNoise:    viper.GetFloat64("tracker.measurementNoise"),
		MaxPredictDt:        viper.GetDuration("tracker.maxPredictDt"),
		MaxCovarianceDiag:   viper.GetFloat64("tracker.maxCovarianceDiag"),
		HeadingAlpha:        viper.GetFloat64("tracker.headingAlpha"),
	}
}

// GetPublishConfig returns the publisher settings.
func GetPublishConfig() PublishConfig {
	return PublishConfig{StaleAfter: viper.GetDuration("publish.staleAfter")}
}

// GetStreamConfig returns the WebSocket feed settings.
func GetStreamConfig() StreamConfig {
	return StreamConfig{
		Enabled: viper.GetBool("stream.enabled"),
		Listen:  viper.GetString("stream.listen"),
		Path:    viper.GetString("stream.path"),
		RateHz:  viper.GetFloat64("stream.rateHz"),
	}
}

// GetStorageConfig returns the session storage settings.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type:         viper.GetString("storage.type"),
		Enabled:      viper.GetBool("storage.enabled"),
		RecordRateHz: viper.GetFloat64("storage.recordRateHz"),
		MinMove:      viper.GetFloat64("storage.minMove"),
		FlushEvery:   viper.GetDuration("storage.flushEvery"),
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
		},
		SQLite: SQLiteConfig{
			DumpPath:     viper.GetString("storage.sqlite.dumpPath"),
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
		},
		WebSocket: WebSocketConfig{
			URL:    viper.GetString("storage.websocket.url"),
			Secret: viper.GetString("storage.websocket.secret"),
		},
	}
}

// GetUploadConfig returns the session upload settings.
func GetUploadConfig() UploadConfig {
	return UploadConfig{
		Enabled: viper.GetBool("upload.enabled"),
		URL:     viper.GetString("upload.url"),
		APIKey:  viper.GetString("upload.apiKey"),
	}
}

// GetDBConfig returns the postgres connection settings.
func GetDBConfig() DBConfig {
	return DBConfig{
		Host:     viper.GetString("db.host"),
		Port:     viper.GetString("db.port"),
		Username: viper.GetString("db.username"),
		Password: viper.GetString("db.password"),
		Database: viper.GetString("db.database"),
	}
}

// GetInfluxConfig returns the InfluxDB settings.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:    viper.GetBool("influx.enabled"),
		URL:        viper.GetString("influx.url"),
		Token:      viper.GetString("influx.token"),
		Org:        viper.GetString("influx.org"),
		Bucket:     viper.GetString("influx.bucket"),
		BackupPath: viper.GetString("influx.backupPath"),
		RateHz:     viper.GetFloat64("influx.rateHz"),
	}
}

// GetOTelConfig returns the OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:        viper.GetBool("otel.enabled"),
		ServiceName:    viper.GetString("otel.serviceName"),
		BatchTimeout:   viper.GetDuration("otel.batchTimeout"),
		MetricInterval: viper.GetDuration("otel.metricInterval"),
		Endpoint:       viper.GetString("otel.endpoint"),
		Insecure:       viper.GetBool("otel.insecure"),
	}
}

// GetGraylogConfig returns the GELF settings.
func GetGraylogConfig() GraylogConfig {
	return GraylogConfig{
		Enabled: viper.GetBool("graylog.enabled"),
		Address: viper.GetString("graylog.address"),
	}
}

// GetScreenshotConfig returns the screenshot watcher settings.
func GetScreenshotConfig() ScreenshotConfig {
	return ScreenshotConfig{
		Enabled: viper.GetBool("screenshots.enabled"),
		Dir:     viper.GetString("screenshots.dir"),
	}
}

// GetHotkeyConfig returns the hotkey bindings.
func GetHotkeyConfig() HotkeyConfig {
	return HotkeyConfig{
		Enabled: viper.GetBool("hotkeys.enabled"),
		Pause:   viper.GetStringSlice("hotkeys.pause"),
	}
}

// GetMonitorConfig returns the status monitor settings.
func GetMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Enabled:    viper.GetBool("monitor.enabled"),
		Interval:   viper.GetDuration("monitor.interval"),
		StatusFile: viper.GetString("monitor.statusFile"),
	}
}

// GetOverlayConfig returns the overlay window settings.
func GetOverlayConfig() OverlayConfig {
	return OverlayConfig{
		Width:  viper.GetInt("overlay.width"),
		Height: viper.GetInt("overlay.height"),
	}
}
