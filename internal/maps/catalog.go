package maps

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/tarkov-map/tracker/internal/calibration"
	"github.com/tarkov-map/tracker/pkg/core"
)

// ErrUnknownMap is returned for map ids missing from the catalog.
var ErrUnknownMap = errors.New("unknown map")

// Catalog is the set of maps loaded from maps.json, keyed by normalized name.
type Catalog struct {
	maps []core.Map
	byID map[string]int
}

// Load reads and decodes a maps.json file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading maps file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a maps.json document (an array of map records).
func Parse(data []byte) (*Catalog, error) {
	var maps []core.Map
	if err := sonic.Unmarshal(data, &maps); err != nil {
		return nil, fmt.Errorf("decoding maps: %w", err)
	}
	c := &Catalog{maps: maps, byID: make(map[string]int, len(maps))}
	for i, m := range maps {
		if m.NormalizedName == "" {
			return nil, fmt.Errorf("map %d (%q) has no normalizedName", i, m.Name)
		}
		if _, dup := c.byID[m.NormalizedName]; dup {
			return nil, fmt.Errorf("duplicate map %q", m.NormalizedName)
		}
		c.byID[m.NormalizedName] = i
	}
	return c, nil
}

// Encode serializes maps back to maps.json form.
func Encode(maps []core.Map) ([]byte, error) {
	return sonic.ConfigStd.MarshalIndent(maps, "", "  ")
}

// Get returns the map with the given normalized name.
func (c *Catalog) Get(id string) (*core.Map, error) {
	i, ok := c.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMap, id)
	}
	return &c.maps[i], nil
}

// IDs returns the normalized names in sorted order.
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.byID))
	for id := range c.byID {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Len returns the number of maps.
func (c *Catalog) Len() int { return len(c.maps) }

// ReferencePairs implements calibration.Source. Reference points given in
// game coordinates are projected onto the map image first. The extent is
// the full map image.
func (c *Catalog) ReferencePairs(mapID string) ([]calibration.Pair, []core.Point, error) {
	m, err := c.Get(mapID)
	if err != nil {
		return nil, nil, err
	}
	if len(m.Calibration) == 0 {
		return nil, nil, fmt.Errorf("no reference points: %w", core.ErrCalibrationMissing)
	}

	pairs := make([]calibration.Pair, 0, len(m.Calibration))
	for i, ref := range m.Calibration {
		var world core.Point
		switch {
		case ref.World != nil:
			world = core.Point{X: ref.World[0], Y: ref.World[1]}
		case ref.Game != nil:
			w, ok := GameToImage(m, core.Point{X: ref.Game[0], Y: ref.Game[1]})
			if !ok {
				return nil, nil, fmt.Errorf("reference %d: map has no bounds for game coordinates: %w", i, core.ErrCalibrationMissing)
			}
			world = w
		default:
			return nil, nil, fmt.Errorf("reference %d has neither world nor game position: %w", i, core.ErrCalibrationMissing)
		}
		pairs = append(pairs, calibration.Pair{
			Pixel: core.Point{X: ref.Pixel[0], Y: ref.Pixel[1]},
			World: world,
		})
	}

	var extent []core.Point
	if m.ImageSize[0] > 0 && m.ImageSize[1] > 0 {
		extent = []core.Point{{X: 0, Y: 0}, {X: m.ImageSize[0], Y: m.ImageSize[1]}}
	}
	return pairs, extent, nil
}

// ResolveImage returns the local raster file for m's imagePath, resolved
// against baseDir. Remote and vector images resolve to "".
func ResolveImage(m *core.Map, baseDir string) string {
	p := m.ImagePath
	if p == "" || strings.Contains(p, "://") {
		return ""
	}
	switch strings.ToLower(filepath.Ext(p)) {
	case ".png", ".jpg", ".jpeg":
	default:
		return ""
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(baseDir, p)
	}
	if _, err := os.Stat(p); err != nil {
		return ""
	}
	return p
}
