package geo

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		kind    Kind
		wantErr bool
	}{
		{name: "point", raw: `{"type":"Point","coordinates":[10,20]}`, kind: KindPoint},
		{name: "line", raw: `{"type":"LineString","coordinates":[[10,20],[11,21]]}`, kind: KindLineString},
		{name: "polygon", raw: `{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}`, kind: KindPolygon},
		{name: "kind mismatch", raw: `{"type":"Point","coordinates":[10,20]}`, kind: KindPolygon, wantErr: true},
		{name: "latitude out of range", raw: `{"type":"Point","coordinates":[10,95]}`, kind: KindPoint, wantErr: true},
		{name: "single position line", raw: `{"type":"LineString","coordinates":[[10,20]]}`, kind: KindLineString, wantErr: true},
		{name: "open ring", raw: `{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1]]]}`, kind: KindPolygon, wantErr: true},
		{name: "garbage", raw: `{"type":`, kind: KindPoint, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := Parse([]byte(tt.raw), tt.kind)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, string(tt.kind), g.GeoJSONType())
		})
	}
}

func TestWithinSphere(t *testing.T) {
	center := orb.Point{10, 20}

	// One degree of latitude is roughly 111 km.
	assert.True(t, WithinSphere(orb.Point{10, 20}, center, 0.001))
	assert.True(t, WithinSphere(orb.Point{10, 20.4}, center, 50))
	assert.False(t, WithinSphere(orb.Point{10, 20.5}, center, 50))

	line := orb.LineString{{10, 20}, {10, 20.4}}
	assert.True(t, WithinSphere(line, center, 50))
	assert.False(t, WithinSphere(append(line, orb.Point{10, 21}), center, 50))
}

func TestNearest_SortedAndCapped(t *testing.T) {
	p := orb.Point{0, 0}
	geoms := []orb.Geometry{
		orb.Point{0, 2},
		orb.Point{0, 0.5},
		nil,
		orb.Point{0, 1},
		orb.Point{0, 10},
	}

	ranked := Nearest(geoms, p, 300_000)

	require.Len(t, ranked, 3)
	assert.Equal(t, []int{1, 3, 0}, []int{ranked[0].Index, ranked[1].Index, ranked[2].Index})
	for i := 1; i < len(ranked); i++ {
		assert.LessOrEqual(t, ranked[i-1].Meters, ranked[i].Meters)
	}
}

func TestDistanceMeters(t *testing.T) {
	// 0.01 degree of arc on the earth radius orb uses.
	const hundredth = 1113.19
	line := orb.LineString{{0, 0}, {10, 0}}
	poly := orb.Polygon{{{0, 0}, {2, 0}, {2, 2}, {0, 2}, {0, 0}}}

	tests := []struct {
		name string
		g    orb.Geometry
		p    orb.Point
		want float64
	}{
		{name: "point", g: orb.Point{0, 0}, p: orb.Point{0, 0.01}, want: hundredth},
		{name: "line beside a segment", g: line, p: orb.Point{5, 0.01}, want: hundredth},
		{name: "line south of a segment", g: line, p: orb.Point{7.5, -0.01}, want: hundredth},
		{name: "line past the end", g: line, p: orb.Point{10.01, 0}, want: hundredth},
		{name: "line before the start", g: line, p: orb.Point{-0.01, 0}, want: hundredth},
		{name: "polygon edge", g: poly, p: orb.Point{1, -0.01}, want: hundredth},
		{name: "polygon east edge", g: poly, p: orb.Point{2.01, 1}, want: hundredth},
		{name: "inside polygon", g: poly, p: orb.Point{1, 1}, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, DistanceMeters(tt.g, tt.p), 1)
		})
	}
}

func TestNearest_RanksLinesByClosestSegment(t *testing.T) {
	p := orb.Point{5, 0.01}
	geoms := []orb.Geometry{
		orb.Point{5, 0.025},
		orb.LineString{{0, 0}, {10, 0}},
	}

	ranked := Nearest(geoms, p, 5_000)

	require.Len(t, ranked, 2)
	assert.Equal(t, 1, ranked[0].Index)
	assert.Equal(t, 0, ranked[1].Index)
}

func TestSearchBound(t *testing.T) {
	b, ok := SearchBound(orb.Point{10, 20}, 50_000)
	require.True(t, ok)
	assert.True(t, b.Contains(orb.Point{10, 20.4}))
	assert.False(t, b.Contains(orb.Point{10, 21}))

	_, ok = SearchBound(orb.Point{179.9, 0}, 50_000)
	assert.False(t, ok)

	_, ok = SearchBound(orb.Point{0, 89.9}, 50_000)
	assert.False(t, ok)
}
