// pkg/core/maps.go
package core

// Map is one interactive map record from maps.json.
type Map struct {
	NormalizedName     string           `json:"normalizedName"`
	Name               string           `json:"name"`
	ImagePath          string           `json:"imagePath"`
	ImageSize          [2]float64       `json:"imageSize"`
	LogicalSize        [2]float64       `json:"logicalSize"`
	AltMaps            []string         `json:"altMaps,omitempty"`
	Author             string           `json:"author,omitempty"`
	AuthorLink         string           `json:"authorLink,omitempty"`
	Transform          *[4]float64      `json:"transform,omitempty"`
	CoordinateRotation *float64         `json:"coordinateRotation,omitempty"`
	Bounds             *[2][2]float64   `json:"bounds,omitempty"`
	HeightRange        *[2]float64      `json:"heightRange,omitempty"`
	Layers             []Layer          `json:"layers,omitempty"`
	Labels             []Label          `json:"labels,omitempty"`
	Spawns             []Spawn          `json:"spawns,omitempty"`
	Extracts           []Extract        `json:"extracts,omitempty"`
	Calibration        []ReferencePoint `json:"calibration,omitempty"`
}

// Rotation returns the coordinate rotation in degrees, 0 when unset.
func (m *Map) Rotation() float64 {
	if m.CoordinateRotation == nil {
		return 0
	}
	return *m.CoordinateRotation
}

// Layer is a floor or area overlay.
type Layer struct {
	Name     string   `json:"name"`
	SvgLayer string   `json:"svgLayer,omitempty"`
	TilePath string   `json:"tilePath,omitempty"`
	Show     bool     `json:"show"`
	Extents  []Extent `json:"extents,omitempty"`
}

// Extent defines when a layer becomes visible.
type Extent struct {
	Height [2]float64    `json:"height"`
	Bounds []ExtentBound `json:"bounds,omitempty"`
}

// ExtentBound is a rectangle inside an extent.
type ExtentBound struct {
	Point1 [2]float64 `json:"point1"`
	Point2 [2]float64 `json:"point2"`
	Name   string     `json:"name"`
}

// Label is a text annotation in game coordinates.
type Label struct {
	Position [2]float64 `json:"position"`
	Text     string     `json:"text"`
	Rotation *float64   `json:"rotation,omitempty"`
	Size     *int       `json:"size,omitempty"`
	Top      *float64   `json:"top,omitempty"`
	Bottom   *float64   `json:"bottom,omitempty"`
}

// Spawn is a spawn point, position is [x, y, z] with y as height.
type Spawn struct {
	Position   [3]float64 `json:"position"`
	Sides      []string   `json:"sides"`
	Categories []string   `json:"categories"`
}

// Extract is an extraction point.
type Extract struct {
	Name     string      `json:"name"`
	Faction  string      `json:"faction"`
	Position *[3]float64 `json:"position,omitempty"`
}

// ReferencePoint pairs a captured pixel with a known map location. The map
// location is given either directly in world (map image) space or in game
// coordinates [x, z], which are projected with the map's transform.
type ReferencePoint struct {
	Pixel [2]float64  `json:"pixel"`
	World *[2]float64 `json:"world,omitempty"`
	Game  *[2]float64 `json:"game,omitempty"`
}
