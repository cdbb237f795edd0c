package memory

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/tarkov-map/tracker/internal/geo"
	"github.com/tarkov-map/tracker/pkg/core"
)

// ExportVersion is written into every export.
const ExportVersion = 1

// Export is the root JSON structure of a session file.
type Export struct {
	Version   int                    `json:"version"`
	Session   core.Session           `json:"session"`
	Summary   Summary                `json:"summary"`
	Positions []core.TrackedPosition `json:"positions"`
	Events    []core.SessionEvent    `json:"events"`
	Status    []core.PipelineStatus  `json:"status,omitempty"`
}

// Summary holds derived session figures.
type Summary struct {
	Duration     float64 `json:"duration"`   // seconds
	PathLength   float64 `json:"pathLength"` // world units over fresh positions
	Positions    int     `json:"positions"`
	Fresh        int     `json:"fresh"`
	Extrapolated int     `json:"extrapolated"`
	Lost         int     `json:"lost"`
}

// Summarize computes the summary of positions between start and end.
func Summarize(positions []core.TrackedPosition, start, end time.Time) Summary {
	s := Summary{Positions: len(positions)}
	if !end.IsZero() && end.After(start) {
		s.Duration = end.Sub(start).Seconds()
	}
	path := make([]core.Point, 0, len(positions))
	for _, p := range positions {
		switch {
		case p.State == core.StateLost:
			s.Lost++
		case p.Extrapolated:
			s.Extrapolated++
		default:
			s.Fresh++
			path = append(path, p.World)
		}
	}
	s.PathLength = geo.PathLength(path)
	return s
}

// FileName returns the export file name for a session.
func FileName(s core.Session, compress bool) string {
	name := s.MapID
	if name == "" {
		name = "session"
	}
	name = strings.NewReplacer(" ", "_", ":", "_", "/", "_").Replace(name)
	ext := ".json"
	if compress {
		ext = ".json.gz"
	}
	return fmt.Sprintf("%s_%s%s", name, s.StartedAt.Format("20060102_150405"), ext)
}

// exportJSON writes the session data to a (gzipped) JSON file
func (b *Backend) exportJSON() error {
	export := b.buildExport()

	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	outputPath := filepath.Join(b.cfg.OutputDir, FileName(*b.session, b.cfg.CompressOutput))
	if err := WriteExport(outputPath, export, b.cfg.CompressOutput); err != nil {
		return err
	}

	b.lastExportPath = outputPath
	return nil
}

func (b *Backend) buildExport() Export {
	export := Export{
		Version:   ExportVersion,
		Session:   *b.session,
		Positions: b.positions,
		Events:    b.events,
		Status:    b.statuses,
	}
	if export.Positions == nil {
		export.Positions = []core.TrackedPosition{}
	}
	if export.Events == nil {
		export.Events = []core.SessionEvent{}
	}
	export.Summary = Summarize(b.positions, b.session.StartedAt, b.session.EndedAt)
	return export
}

// WriteExport writes export to path as JSON, gzipped when compress is set.
func WriteExport(path string, export Export, compress bool) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer f.Close()

	var w io.Writer = f
	var gz *gzip.Writer
	if compress {
		gz = gzip.NewWriter(f)
		w = gz
	}
	bw := bufio.NewWriter(w)

	if err := sonic.ConfigDefault.NewEncoder(bw).Encode(export); err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			return fmt.Errorf("failed to close gzip writer: %w", err)
		}
	}
	return f.Close()
}

// ReadExport loads a session file written by the memory backend. Gzip
// input is detected from the file header.
func ReadExport(path string) (*Export, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open session file: %w", err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	var r io.Reader = br
	if magic, err := br.Peek(2); err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		defer gz.Close()
		r = gz
	}

	var export Export
	if err := sonic.ConfigDefault.NewDecoder(r).Decode(&export); err != nil {
		return nil, fmt.Errorf("failed to decode session file %s: %w", path, err)
	}
	if export.Version != ExportVersion {
		return nil, fmt.Errorf("unsupported session file version %d", export.Version)
	}
	return &export, nil
}
