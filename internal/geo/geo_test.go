package geo_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"place-discovery-service/internal/geo"
)

func TestDistanceMeters_SymmetricAndZero(t *testing.T) {
	points := []geo.Point{
		{Lat: 41.9, Lng: 12.5},
		{Lat: 41.9001, Lng: 12.5001},
		{Lat: -33.8688, Lng: 151.2093},
		{Lat: 0, Lng: 0},
		{Lat: 89.9, Lng: -179.9},
	}

	for _, a := range points {
		assert.Equal(t, 0.0, geo.DistanceMeters(a, a))
		for _, b := range points {
			assert.InDelta(t, geo.DistanceMeters(a, b), geo.DistanceMeters(b, a), 1e-9)
		}
	}
}

func TestDistanceMeters_KnownDistances(t *testing.T) {
	// one thousandth of a degree of latitude is ~111 m
	d := geo.DistanceMeters(geo.Point{Lat: 41.9, Lng: 12.5}, geo.Point{Lat: 41.901, Lng: 12.5})
	assert.InDelta(t, 111.19, d, 0.5)

	// Rome -> Milan ~477 km
	d = geo.DistanceMeters(geo.Point{Lat: 41.9028, Lng: 12.4964}, geo.Point{Lat: 45.4642, Lng: 9.19})
	assert.InDelta(t, 477000, d, 3000)
}

func TestSpatialBucket(t *testing.T) {
	assert.Equal(t, "41.900,12.500", geo.SpatialBucket(geo.Point{Lat: 41.90004, Lng: 12.49996}))
	assert.Equal(t, "41.901,12.500", geo.SpatialBucket(geo.Point{Lat: 41.9006, Lng: 12.5}))
	assert.Equal(t, geo.SpatialBucket(geo.Point{Lat: -0.0001, Lng: 0.0001}), geo.SpatialBucket(geo.Point{}))
}

func TestNameSimilarity(t *testing.T) {
	t.Run("identical after normalization", func(t *testing.T) {
		for _, s := range []string{"Bakery", "Forno  Campo de' Fiori", " x ", "Caffè Sant'Eustachio"} {
			assert.Equal(t, 1.0, geo.NameSimilarity(s, s))
		}
		assert.Equal(t, 1.0, geo.NameSimilarity("  Forno Roscioli", "forno   roscioli "))
	})

	t.Run("empty is zero", func(t *testing.T) {
		assert.Equal(t, 0.0, geo.NameSimilarity("", "bakery"))
		assert.Equal(t, 0.0, geo.NameSimilarity("bakery", "   "))
		assert.Equal(t, 0.0, geo.NameSimilarity("", ""))
	})

	t.Run("classic jaro-winkler values", func(t *testing.T) {
		assert.InDelta(t, 0.961, geo.NameSimilarity("MARTHA", "MARHTA"), 0.001)
		assert.InDelta(t, 0.813, geo.NameSimilarity("DIXON", "DICKSONX"), 0.001)
		assert.InDelta(t, 0.840, geo.NameSimilarity("DWAYNE", "DUANE"), 0.001)
	})

	t.Run("symmetric", func(t *testing.T) {
		pairs := [][2]string{
			{"Panificio Bonci", "Pannificio Bonci"},
			{"abc", "cba"},
			{"Pizzeria da Remo", "Remo Pizzeria"},
			{"ab", "ba"},
		}
		for _, p := range pairs {
			assert.Equal(t, geo.NameSimilarity(p[0], p[1]), geo.NameSimilarity(p[1], p[0]), p)
		}
	})

	t.Run("bounded", func(t *testing.T) {
		s := geo.NameSimilarity("Antico Forno", "Totally Different")
		require.GreaterOrEqual(t, s, 0.0)
		require.LessOrEqual(t, s, 1.0)
		assert.Less(t, s, 0.88)
	})
}
