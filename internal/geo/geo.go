package geo

import (
	"fmt"
	"math"
	"strings"
)

const earthRadiusMeters = 6371000.0

type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// DistanceMeters returns the haversine great-circle distance between a and b.
func DistanceMeters(a, b Point) float64 {
	lat1 := toRad(a.Lat)
	lat2 := toRad(b.Lat)
	dLat := toRad(b.Lat - a.Lat)
	dLng := toRad(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	if h > 1 {
		h = 1
	}
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(h))
}

// SpatialBucket rounds both coordinates to 3 decimals (~110 m cell) and
// returns them as "lat,lng".
func SpatialBucket(p Point) string {
	lat := math.Round(p.Lat*1000) / 1000
	lng := math.Round(p.Lng*1000) / 1000
	// -0.000 and 0.000 must land in the same cell
	if lat == 0 {
		lat = 0
	}
	if lng == 0 {
		lng = 0
	}
	return fmt.Sprintf("%.3f,%.3f", lat, lng)
}

// Normalize lower-cases s, trims it and collapses inner whitespace runs.
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// NameSimilarity is the Jaro-Winkler similarity of the normalized names.
func NameSimilarity(a, b string) float64 {
	ra := []rune(Normalize(a))
	rb := []rune(Normalize(b))
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}
	// the match set depends on which side drives the scan; fix the order
	if string(ra) > string(rb) {
		ra, rb = rb, ra
	}

	j := jaro(ra, rb)

	prefix := 0
	for i := 0; i < len(ra) && i < len(rb) && i < 4; i++ {
		if ra[i] != rb[i] {
			break
		}
		prefix++
	}
	return j + float64(prefix)*0.1*(1-j)
}

func jaro(a, b []rune) float64 {
	if string(a) == string(b) {
		return 1
	}

	window := max(len(a), len(b))/2 - 1
	if window < 0 {
		window = 0
	}

	aMatched := make([]bool, len(a))
	bMatched := make([]bool, len(b))
	matches := 0
	for i := range a {
		lo := max(0, i-window)
		hi := min(len(b), i+window+1)
		for k := lo; k < hi; k++ {
			if bMatched[k] || a[i] != b[k] {
				continue
			}
			aMatched[i] = true
			bMatched[k] = true
			matches++
			break
		}
	}
	if matches == 0 {
		return 0
	}

	transpositions := 0
	k := 0
	for i := range a {
		if !aMatched[i] {
			continue
		}
		for !bMatched[k] {
			k++
		}
		if a[i] != b[k] {
			transpositions++
		}
		k++
	}

	m := float64(matches)
	return (m/float64(len(a)) + m/float64(len(b)) + (m-float64(transpositions)/2)/m) / 3
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
