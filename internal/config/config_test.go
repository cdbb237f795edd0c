package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tarkov-map/tracker/internal/capture"
	"github.com/tarkov-map/tracker/internal/detect"
	"github.com/tarkov-map/tracker/internal/tracker"
	"github.com/tarkov-map/tracker/pkg/core"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(body), 0644))
	return dir
}

func TestLoad_WithValidConfigFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := writeConfig(t, `{
		"logLevel": "debug",
		"defaultMap": "customs",
		"db": { "host": "10.0.0.1", "port": "5433" }
	}`)

	require.NoError(t, Load(dir))

	assert.Equal(t, "debug", viper.GetString("logLevel"))
	assert.Equal(t, "customs", viper.GetString("defaultMap"))
	assert.Equal(t, "10.0.0.1", viper.GetString("db.host"))
	assert.Equal(t, "5433", viper.GetString("db.port"))
}

func TestLoad_DefaultValues(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{}`)))

	assert.Equal(t, "info", viper.GetString("logLevel"))
	assert.Equal(t, "./logs", viper.GetString("logsDir"))
	assert.Equal(t, "./maps.json", viper.GetString("mapsFile"))
	assert.Equal(t, "", viper.GetString("defaultMap"))
	assert.Equal(t, "localhost", viper.GetString("db.host"))
	assert.Equal(t, "tracker", viper.GetString("db.database"))
	assert.Equal(t, false, viper.GetBool("graylog.enabled"))
	assert.Equal(t, "localhost:12201", viper.GetString("graylog.address"))
	assert.Equal(t, "memory", viper.GetString("storage.type"))
	assert.Equal(t, "3m", viper.GetString("storage.sqlite.dumpInterval"))
	assert.Equal(t, "500ms", viper.GetString("publish.staleAfter"))
	assert.Equal(t, false, viper.GetBool("stream.enabled"))
}

func TestLoad_MissingFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	err := Load("/nonexistent/path")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestGetString(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testKey", "testValue")
	assert.Equal(t, "testValue", GetString("testKey"))
}

func TestGetInt(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testInt", 42)
	assert.Equal(t, 42, GetInt("testInt"))
}

func TestGetBool(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testBool", true)
	assert.Equal(t, true, GetBool("testBool"))
}

func TestPipelineConfigs_DefaultsMatchPackages(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{}`)))

	assert.Equal(t, capture.DefaultConfig(), GetCaptureConfig())
	assert.Equal(t, detect.DefaultConfig(), GetDetectorConfig())
	assert.Equal(t, tracker.DefaultConfig(), GetTrackerConfig())
	assert.Equal(t, 500*time.Millisecond, GetPublishConfig().StaleAfter)
	assert.Equal(t, core.Region{Width: 256, Height: 256}, GetCaptureRegion())

	require.NoError(t, GetCaptureConfig().Validate())
	require.NoError(t, GetTrackerConfig().Validate())
}

func TestPipelineConfigs_Override(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{
		"capture": {
			"backend": "replay",
			"source": "./frames",
			"rateHz": 8,
			"timeout": "150ms",
			"region": { "monitor": 2, "x": 1600, "y": 40, "width": 300, "height": 300 }
		},
		"detector": { "strategy": "signature", "confidenceThreshold": 0.75, "autoValue": true },
		"tracker": { "maxMisses": 7, "maxExtrapolation": "2s" }
	}`)))

	cc := GetCaptureConfig()
	assert.Equal(t, "replay", cc.Backend)
	assert.Equal(t, "./frames", cc.Source)
	assert.Equal(t, 8.0, cc.RateHz)
	assert.Equal(t, 150*time.Millisecond, cc.Timeout)
	assert.Equal(t, core.Region{Monitor: 2, X: 1600, Y: 40, Width: 300, Height: 300}, GetCaptureRegion())

	dc := GetDetectorConfig()
	assert.Equal(t, "signature", dc.Strategy)
	assert.Equal(t, 0.75, dc.ConfidenceThreshold)
	assert.True(t, dc.AutoValue)

	tc := GetTrackerConfig()
	assert.Equal(t, 7, tc.MaxMisses)
	assert.Equal(t, 0.75, tc.ConfidenceThreshold)
	assert.Equal(t, 2*time.Second, tc.MaxExtrapolation)
}

func TestGetStorageConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{}`)))

	cfg := GetStorageConfig()
	assert.Equal(t, "memory", cfg.Type)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, "./recordings", cfg.Memory.OutputDir)
	assert.Equal(t, true, cfg.Memory.CompressOutput)
	assert.Equal(t, 3*time.Minute, cfg.SQLite.DumpInterval)
	assert.Equal(t, 2*time.Second, cfg.FlushEvery)
}

func TestGetStorageConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{
		"storage": {
			"type": "sqlite",
			"memory": { "outputDir": "/tmp/out", "compressOutput": false },
			"sqlite": { "dumpInterval": "10m" }
		}
	}`)))

	sc := GetStorageConfig()
	assert.Equal(t, "sqlite", sc.Type)
	assert.Equal(t, "/tmp/out", sc.Memory.OutputDir)
	assert.Equal(t, false, sc.Memory.CompressOutput)
	assert.Equal(t, 10*time.Minute, sc.SQLite.DumpInterval)
}

func TestGetDBConfig_DSN(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{"db": {"host": "db", "password": "pw"}}`)))

	assert.Equal(t,
		"host=db port=5432 user=postgres password=pw dbname=tracker sslmode=disable",
		GetDBConfig().DSN())
}

func TestGetUploadConfig(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{"upload": {"enabled": true, "apiKey": "k"}}`)))

	assert.Equal(t, UploadConfig{Enabled: true, URL: "http://localhost:5000", APIKey: "k"}, GetUploadConfig())
}

func TestGetOTelConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{}`)))

	cfg := GetOTelConfig()
	assert.Equal(t, false, cfg.Enabled)
	assert.Equal(t, "tarkov-map-tracker", cfg.ServiceName)
	assert.Equal(t, 5*time.Second, cfg.BatchTimeout)
	assert.Equal(t, 30*time.Second, cfg.MetricInterval)
	assert.Equal(t, "", cfg.Endpoint)
	assert.Equal(t, true, cfg.Insecure)
}

func TestGetOTelConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{
		"otel": {
			"enabled": true,
			"serviceName": "my-service",
			"batchTimeout": "30s",
			"endpoint": "localhost:4317",
			"insecure": false
		}
	}`)))

	oc := GetOTelConfig()
	assert.Equal(t, true, oc.Enabled)
	assert.Equal(t, "my-service", oc.ServiceName)
	assert.Equal(t, 30*time.Second, oc.BatchTimeout)
	assert.Equal(t, "localhost:4317", oc.Endpoint)
	assert.Equal(t, false, oc.Insecure)
}

func TestAuxiliaryConfigs_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{}`)))

	assert.Equal(t, StreamConfig{Listen: "127.0.0.1:8765", Path: "/ws", RateHz: 10}, GetStreamConfig())
	assert.Equal(t, ScreenshotConfig{Enabled: true}, GetScreenshotConfig())
	assert.Equal(t, HotkeyConfig{Enabled: true, Pause: []string{"p", "ctrl", "shift"}}, GetHotkeyConfig())
	assert.Equal(t, MonitorConfig{Enabled: true, Interval: 10 * time.Second, StatusFile: "status.txt"}, GetMonitorConfig())
	assert.Equal(t, GraylogConfig{Address: "localhost:12201"}, GetGraylogConfig())

	ic := GetInfluxConfig()
	assert.False(t, ic.Enabled)
	assert.Equal(t, "tracking", ic.Bucket)
	assert.Equal(t, 2.0, ic.RateHz)

	assert.Equal(t, OverlayConfig{Width: 900, Height: 900}, GetOverlayConfig())
}
