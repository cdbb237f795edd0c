// Package influx writes tracking telemetry to InfluxDB, falling back to a
// gzipped line-protocol file when the server is unreachable.
package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/rs/zerolog"
	"github.com/tarkov-map/tracker/internal/config"
	"github.com/tarkov-map/tracker/pkg/core"
)

// Measurement names.
const (
	MeasurementPosition = "position"
	MeasurementStatus   = "pipeline_status"
)

// retention applied to a bucket the manager creates
const retentionSeconds = 60 * 60 * 24 * 90

// Manager handles InfluxDB connections and writes.
type Manager struct {
	Client       influxdb2.Client
	Writer       influxdb2_api.WriteAPI
	BackupWriter *gzip.Writer
	IsValid      bool
	Logger       zerolog.Logger

	cfg        config.InfluxConfig
	backupFile *os.File
	mu         sync.Mutex
}

// NewManager creates a new InfluxDB manager.
func NewManager(log zerolog.Logger, cfg config.InfluxConfig) *Manager {
	return &Manager{
		Logger: log,
		cfg:    cfg,
	}
}

// Connect establishes a connection to InfluxDB. When the server does not
// answer a ping, points go to the backup file instead.
func (m *Manager) Connect(ctx context.Context) error {
	if !m.cfg.Enabled {
		return errors.New("influx.enabled is false")
	}

	m.Client = influxdb2.NewClientWithOptions(
		m.cfg.URL,
		m.cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(2500).
			SetFlushInterval(1000),
	)

	running, err := m.Client.Ping(ctx)
	if err != nil || !running {
		m.IsValid = false
		m.Logger.Info().Str("backupPath", m.cfg.BackupPath).
			Msg("Failed to initialize InfluxDB client, writing to backup file")
		return m.openBackup()
	}

	if err := m.setupOrganizationAndBucket(ctx); err != nil {
		return err
	}
	m.createWriter()
	m.IsValid = true
	m.Logger.Info().Str("bucket", m.cfg.Bucket).Msg("InfluxDB client initialized")
	return nil
}

func (m *Manager) openBackup() error {
	if m.BackupWriter != nil {
		return nil
	}
	if m.cfg.BackupPath == "" {
		return errors.New("influx backup path not set")
	}
	if err := os.MkdirAll(filepath.Dir(m.cfg.BackupPath), 0755); err != nil {
		return fmt.Errorf("error creating backup directory: %w", err)
	}
	file, err := os.OpenFile(m.cfg.BackupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("error creating backup file: %w", err)
	}
	m.backupFile = file
	m.BackupWriter = gzip.NewWriter(file)
	return nil
}

func (m *Manager) setupOrganizationAndBucket(ctx context.Context) error {
	orgName := m.cfg.Org

	org, err := m.Client.OrganizationsAPI().FindOrganizationByName(ctx, orgName)
	if err != nil {
		m.Logger.Info().Str("org", orgName).Msg("Organization not found, creating")
		org, err = m.Client.OrganizationsAPI().CreateOrganizationWithName(ctx, orgName)
		if err != nil {
			m.Logger.Error().Err(err).Str("org", orgName).Msg("Error creating organization")
			return err
		}
	}

	if _, err = m.Client.BucketsAPI().FindBucketByName(ctx, m.cfg.Bucket); err != nil {
		m.Logger.Info().Str("bucket", m.cfg.Bucket).Msg("Bucket not found, creating")
		rule := domain.RetentionRuleTypeExpire
		_, err = m.Client.BucketsAPI().CreateBucketWithName(ctx, org, m.cfg.Bucket, domain.RetentionRule{
			Type:         &rule,
			EverySeconds: retentionSeconds,
		})
		if err != nil {
			m.Logger.Error().Err(err).Str("bucket", m.cfg.Bucket).Msg("Error creating bucket")
			return err
		}
	}
	return nil
}

func (m *Manager) createWriter() {
	m.Writer = m.Client.WriteAPI(m.cfg.Org, m.cfg.Bucket)
	go func(errorsCh <-chan error) {
		for writeErr := range errorsCh {
			m.Logger.Error().Err(writeErr).Str("bucket", m.cfg.Bucket).
				Msg("Error sending data to InfluxDB")
		}
	}(m.Writer.Errors())
	m.Logger.Debug().Msg("InfluxDB writer initialized")
}

// WritePoint writes a point to InfluxDB or the backup file.
func (m *Manager) WritePoint(point *influxdb2_write.Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.IsValid {
		m.Writer.WritePoint(point)
		return nil
	}
	if m.BackupWriter == nil {
		return errors.New("influxDB client not initialized and backup writer not available")
	}
	// PointToLineProtocol terminates the line itself
	line := influxdb2_write.PointToLineProtocol(point, time.Nanosecond)
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	if _, err := m.BackupWriter.Write([]byte(line)); err != nil {
		return fmt.Errorf("error writing to InfluxDB backup file: %w", err)
	}
	return nil
}

// WritePosition records a published position.
func (m *Manager) WritePosition(p core.TrackedPosition) error {
	return m.WritePoint(PositionPoint(p))
}

// WriteStatus records a pipeline snapshot.
func (m *Manager) WriteStatus(s core.PipelineStatus) error {
	return m.WritePoint(StatusPoint(s))
}

// PositionSource is the position poll API.
type PositionSource interface {
	Latest(now time.Time) (core.TrackedPosition, bool)
}

// Poll writes the published position at rateHz until ctx is cancelled.
// A position is written once; repeats of the same update are skipped.
func (m *Manager) Poll(ctx context.Context, source PositionSource, rateHz float64) error {
	if rateHz <= 0 {
		return fmt.Errorf("influx poll rate must be positive, got %v", rateHz)
	}
	ticker := time.NewTicker(time.Duration(float64(time.Second) / rateHz))
	defer ticker.Stop()

	var last core.TrackedPosition
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			pos, ok := source.Latest(now)
			if !ok || sameUpdate(pos, last) {
				continue
			}
			if err := m.WritePosition(pos); err != nil {
				m.Logger.Debug().Err(err).Msg("writing position")
				continue
			}
			last = pos
		}
	}
}

func sameUpdate(a, b core.TrackedPosition) bool {
	return a.Timestamp.Equal(b.Timestamp) && a.Epoch == b.Epoch && a.State == b.State && a.Stale == b.Stale
}

// PositionPoint converts a position to a point tagged by map and state.
func PositionPoint(p core.TrackedPosition) *influxdb2_write.Point {
	return influxdb2.NewPoint(MeasurementPosition,
		map[string]string{
			"map":   p.MapID,
			"state": p.State.String(),
		},
		map[string]any{
			"x":            p.World.X,
			"y":            p.World.Y,
			"heading":      p.WorldHeading,
			"vx":           p.Velocity.X,
			"vy":           p.Velocity.Y,
			"confidence":   p.Confidence,
			"stale":        p.Stale,
			"extrapolated": p.Extrapolated,
			"epoch":        int64(p.Epoch),
		},
		p.Timestamp)
}

// StatusPoint converts a pipeline snapshot to a point.
func StatusPoint(s core.PipelineStatus) *influxdb2_write.Point {
	t := s.Time
	if t.IsZero() {
		t = time.Now()
	}
	return influxdb2.NewPoint(MeasurementStatus,
		map[string]string{
			"map":   s.MapID,
			"state": s.State,
		},
		map[string]any{
			"paused":     s.Paused,
			"captured":   int64(s.Captured),
			"dropped":    int64(s.Dropped),
			"detections": int64(s.Detections),
			"misses":     int64(s.Misses),
			"outliers":   int64(s.Outliers),
			"published":  int64(s.Published),
			"fixes":      int64(s.Fixes),
			"recorded":   int64(s.Recorded),
			"queue_len":  s.QueueLen,
		},
		t)
}

// Close flushes pending writes and closes the client and backup file.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Writer != nil {
		m.Writer.Flush()
	}
	if m.Client != nil {
		m.Client.Close()
	}
	var errs []error
	if m.BackupWriter != nil {
		errs = append(errs, m.BackupWriter.Close())
		m.BackupWriter = nil
	}
	if m.backupFile != nil {
		errs = append(errs, m.backupFile.Close())
		m.backupFile = nil
	}
	return errors.Join(errs...)
}
