// Package monitor periodically snapshots pipeline counters to a status
// file, the recording backend and InfluxDB.
package monitor

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/tarkov-map/tracker/internal/storage"
	"github.com/tarkov-map/tracker/pkg/core"
)

// StatusSink receives every snapshot, e.g. the InfluxDB manager.
type StatusSink interface {
	WriteStatus(s core.PipelineStatus) error
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Logger     *slog.Logger
	Snapshot   func() core.PipelineStatus
	Storage    storage.Backend
	Sink       StatusSink
	StatusFile string
	Interval   time.Duration
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Interval <= 0 {
		deps.Interval = 10 * time.Second
	}
	return &Service{deps: deps}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetProgramStatus takes a snapshot and renders it for the status file.
func (s *Service) GetProgramStatus() (output []string, status core.PipelineStatus) {
	status = s.deps.Snapshot()
	if p, ok := s.deps.Storage.(storage.Pending); ok {
		status.QueueLen = p.QueueLen()
	}

	raw, err := sonic.ConfigDefault.MarshalIndent(status, "", "  ")
	if err != nil {
		raw = []byte(fmt.Sprintf(`{"error": "%s"}`, err))
	}
	output = append(output,
		fmt.Sprintf("map=%s state=%s paused=%t", status.MapID, status.State, status.Paused),
		string(raw),
	)
	return output, status
}

// Tick takes one snapshot and writes it everywhere.
func (s *Service) Tick() {
	lines, status := s.GetProgramStatus()

	if s.deps.StatusFile != "" {
		if err := writeStatusFile(s.deps.StatusFile, lines); err != nil {
			s.deps.Logger.Error("Error writing status file", "error", err)
		}
	}
	if s.deps.Storage != nil {
		// storage rejects snapshots outside a session
		_ = s.deps.Storage.RecordStatus(&status)
	}
	if s.deps.Sink != nil {
		if err := s.deps.Sink.WriteStatus(status); err != nil {
			s.deps.Logger.Debug("Error writing status to sink", "error", err)
		}
	}
}

func writeStatusFile(path string, lines []string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	for _, line := range lines {
		if _, err := f.WriteString(line + "\n"); err != nil {
			f.Close()
			return err
		}
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return nil
	}
	if s.deps.Snapshot == nil {
		return fmt.Errorf("monitor needs a snapshot source")
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})

	go func(stop <-chan struct{}, done chan<- struct{}) {
		defer close(done)
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
		}()

		s.deps.Logger.Debug("Starting status monitor", "interval", s.deps.Interval, "file", s.deps.StatusFile)
		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.Tick()
			}
		}
	}(s.stopChan, s.done)

	return nil
}

// Stop stops the status monitor and waits for it to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	close(s.stopChan)
	done := s.done
	s.mu.Unlock()
	<-done
}
