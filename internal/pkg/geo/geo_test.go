package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

var (
	bangkok    = Point{Lat: 13.7563, Lng: 100.5018}
	nearby     = Point{Lat: 13.75, Lng: 100.49}
	chiangMai  = Point{Lat: 18.7883, Lng: 98.9853}
	antipodeBK = Point{Lat: -13.7563, Lng: -79.4982}
)

func TestDistanceKnownPairs(t *testing.T) {
	assert.InDelta(t, 1.5, Distance(bangkok, nearby), 0.2)
	assert.InDelta(t, 582.5, Distance(bangkok, chiangMai), 1)
	assert.InDelta(t, math.Pi*EarthRadiusKm, Distance(bangkok, antipodeBK), 0.5)
}

func TestDistanceIsSymmetricAndZeroOnSelf(t *testing.T) {
	points := []Point{bangkok, nearby, chiangMai, antipodeBK, {Lat: 90, Lng: 0}, {Lat: -90, Lng: 180}, {}}
	for _, a := range points {
		assert.Equal(t, 0.0, Distance(a, a))
		for _, b := range points {
			assert.Equal(t, Distance(a, b), Distance(b, a), "a=%v b=%v", a, b)
		}
	}
}

func TestBetweenMissingCoordinates(t *testing.T) {
	assert.True(t, math.IsInf(Between(nil, &bangkok), 1))
	assert.True(t, math.IsInf(Between(&bangkok, nil), 1))
	assert.InDelta(t, Distance(bangkok, nearby), Between(&bangkok, &nearby), 1e-9)
}

func TestFinite(t *testing.T) {
	assert.Nil(t, Finite(math.Inf(1)))
	assert.Nil(t, Finite(math.NaN()))
	if d := Finite(1.25); assert.NotNil(t, d) {
		assert.Equal(t, 1.25, *d)
	}
}
