// Package geo validates GeoJSON geometries and evaluates the spherical
// within/near predicates used by the asset geo endpoints.
package geo

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

// EarthRadiusKm is the radius used to turn a kilometre radius into radians
// for center-sphere queries.
const EarthRadiusKm = 6378.1

// Kind is a GeoJSON geometry type name.
type Kind string

const (
	KindPoint      Kind = "Point"
	KindLineString Kind = "LineString"
	KindPolygon    Kind = "Polygon"
)

// Parse decodes raw GeoJSON and checks it against the expected kind and
// [longitude, latitude] ranges.
func Parse(raw []byte, kind Kind) (orb.Geometry, error) {
	g, err := geojson.UnmarshalGeometry(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid GeoJSON: %w", err)
	}
	if Kind(g.Type) != kind {
		return nil, fmt.Errorf("expected %s geometry, got %q", kind, g.Type)
	}
	geom := g.Geometry()
	if geom == nil {
		return nil, fmt.Errorf("missing coordinates")
	}
	if err := checkShape(geom); err != nil {
		return nil, err
	}
	return geom, nil
}

// ParseValue is Parse for an already decoded JSON value.
func ParseValue(v interface{}, kind Kind) (orb.Geometry, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("invalid GeoJSON: %w", err)
	}
	return Parse(raw, kind)
}

// Marshal encodes g as a GeoJSON geometry object.
func Marshal(g orb.Geometry) ([]byte, error) {
	return geojson.NewGeometry(g).MarshalJSON()
}

func checkShape(g orb.Geometry) error {
	switch v := g.(type) {
	case orb.Point:
		return checkPoint(v)
	case orb.LineString:
		if len(v) < 2 {
			return fmt.Errorf("line string needs at least 2 positions")
		}
		for _, p := range v {
			if err := checkPoint(p); err != nil {
				return err
			}
		}
	case orb.Polygon:
		if len(v) == 0 {
			return fmt.Errorf("polygon needs an outer ring")
		}
		for _, ring := range v {
			if len(ring) < 4 {
				return fmt.Errorf("polygon ring needs at least 4 positions")
			}
			if !ring.Closed() {
				return fmt.Errorf("polygon ring must be closed")
			}
			for _, p := range ring {
				if err := checkPoint(p); err != nil {
					return err
				}
			}
		}
	default:
		return fmt.Errorf("unsupported geometry %s", g.GeoJSONType())
	}
	return nil
}

func checkPoint(p orb.Point) error {
	if math.IsNaN(p.Lon()) || p.Lon() < -180 || p.Lon() > 180 {
		return fmt.Errorf("longitude %v out of range", p.Lon())
	}
	if math.IsNaN(p.Lat()) || p.Lat() < -90 || p.Lat() > 90 {
		return fmt.Errorf("latitude %v out of range", p.Lat())
	}
	return nil
}

// Bound is the bounding box of g.
func Bound(g orb.Geometry) orb.Bound {
	return g.Bound()
}

// SearchBound returns a box that contains every point within meters of
// center. ok is false when the box would wrap the antimeridian or a pole,
// in which case callers must not prefilter on longitude.
func SearchBound(center orb.Point, meters float64) (b orb.Bound, ok bool) {
	dLat := meters / orb.EarthRadius * 180 / math.Pi
	minLat, maxLat := center.Lat()-dLat, center.Lat()+dLat
	if minLat <= -90 || maxLat >= 90 {
		return orb.Bound{}, false
	}
	cos := math.Cos(math.Max(math.Abs(minLat), math.Abs(maxLat)) * math.Pi / 180)
	dLon := dLat / cos
	minLon, maxLon := center.Lon()-dLon, center.Lon()+dLon
	if minLon < -180 || maxLon > 180 {
		return orb.Bound{}, false
	}
	return orb.Bound{Min: orb.Point{minLon, minLat}, Max: orb.Point{maxLon, maxLat}}, true
}

// CentralAngle is the great-circle angle between a and b in radians.
func CentralAngle(a, b orb.Point) float64 {
	return orbgeo.DistanceHaversine(a, b) / orb.EarthRadius
}

// WithinSphere reports whether every position of g lies inside the
// spherical cap of radiusKm around center.
func WithinSphere(g orb.Geometry, center orb.Point, radiusKm float64) bool {
	limit := radiusKm / EarthRadiusKm
	inside := true
	eachPoint(g, func(p orb.Point) {
		if CentralAngle(center, p) > limit {
			inside = false
		}
	})
	return inside
}

// DistanceMeters is the great-circle distance from p to the closest point
// of g, measured along line segments and ring edges, or 0 when p lies
// inside a polygon.
func DistanceMeters(g orb.Geometry, p orb.Point) float64 {
	switch v := g.(type) {
	case orb.Point:
		return orbgeo.DistanceHaversine(p, v)
	case orb.LineString:
		return pathDistance(v, p)
	case orb.Polygon:
		if planar.PolygonContains(v, p) {
			return 0
		}
		best := math.Inf(1)
		for _, ring := range v {
			best = math.Min(best, pathDistance(orb.LineString(ring), p))
		}
		return best
	}
	return math.Inf(1)
}

func pathDistance(path orb.LineString, p orb.Point) float64 {
	if len(path) == 1 {
		return orbgeo.DistanceHaversine(p, path[0])
	}
	best := math.Inf(1)
	for i := 1; i < len(path); i++ {
		best = math.Min(best, segmentDistance(path[i-1], path[i], p))
	}
	return best
}

// segmentDistance is the cross-track distance from p to the great-circle
// segment a-b, clamped to the nearer endpoint when the foot of the
// perpendicular falls outside the segment.
func segmentDistance(a, b, p orb.Point) float64 {
	dAP := CentralAngle(a, p)
	dAB := CentralAngle(a, b)
	if dAB == 0 || dAP == 0 {
		return dAP * orb.EarthRadius
	}
	delta := (orbgeo.Bearing(a, p) - orbgeo.Bearing(a, b)) * math.Pi / 180
	if math.Cos(delta) <= 0 {
		return dAP * orb.EarthRadius
	}
	xt := math.Asin(clamp(math.Sin(dAP) * math.Sin(delta)))
	along := math.Acos(clamp(math.Cos(dAP) / math.Cos(xt)))
	if along >= dAB {
		return CentralAngle(b, p) * orb.EarthRadius
	}
	return math.Abs(xt) * orb.EarthRadius
}

func clamp(x float64) float64 {
	return math.Max(-1, math.Min(1, x))
}

// Ranked pairs an index into a candidate slice with its distance.
type Ranked struct {
	Index  int
	Meters float64
}

// Nearest ranks geoms by distance from p, keeping those within maxMeters.
// The result is sorted ascending; ties keep input order.
func Nearest(geoms []orb.Geometry, p orb.Point, maxMeters float64) []Ranked {
	out := make([]Ranked, 0, len(geoms))
	for i, g := range geoms {
		if g == nil {
			continue
		}
		if d := DistanceMeters(g, p); d <= maxMeters {
			out = append(out, Ranked{Index: i, Meters: d})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Meters < out[j].Meters })
	return out
}

func eachPoint(g orb.Geometry, fn func(orb.Point)) {
	switch v := g.(type) {
	case orb.Point:
		fn(v)
	case orb.LineString:
		for _, p := range v {
			fn(p)
		}
	case orb.Polygon:
		for _, ring := range v {
			for _, p := range ring {
				fn(p)
			}
		}
	}
}
