package dedup_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"place-discovery-service/internal/dedup"
	"place-discovery-service/internal/entity"
	"place-discovery-service/internal/geo"
)

func rec(name, address string, lat, lng float64, source, id string) entity.PlaceRecord {
	return entity.PlaceRecord{
		Name:      name,
		Address:   address,
		Location:  &geo.Point{Lat: lat, Lng: lng},
		SourceIDs: map[string]string{source: id},
		Sources:   []string{source},
	}
}

func TestDedupe_DropsUnkeyableRecords(t *testing.T) {
	in := []entity.PlaceRecord{
		{Name: "No Location", Address: "Via Roma 1"},
		{Name: "", Address: "Via Roma 2", Location: &geo.Point{Lat: 41.9, Lng: 12.5}},
		{Name: "No Address", Address: "  ", Location: &geo.Point{Lat: 41.9, Lng: 12.5}},
		rec("Kept", "Via Roma 3", 41.9, 12.5, "google", "a"),
	}

	out := dedup.Dedupe(in)

	require.Len(t, out, 1)
	assert.Equal(t, "Kept", out[0].Name)
}

func TestDedupe_ExactPassMergesSameKey(t *testing.T) {
	a := rec("Forno Roscioli", "Via dei Chiavari 34", 41.89420, 12.47360, "google", "g1")
	a.Phone = "+39 06 686 4045"
	a.Rating = 4.3
	b := rec("  forno   ROSCIOLI ", "via dei chiavari 34", 41.89430, 12.47370, "yelp", "y1")
	b.Website = "https://roscioli.example"
	b.Phone = "+39 000"
	b.Rating = 4.6

	out := dedup.Dedupe([]entity.PlaceRecord{a, b})

	require.Len(t, out, 1)
	got := out[0]
	assert.Equal(t, "Forno Roscioli", got.Name)
	assert.Equal(t, "+39 06 686 4045", got.Phone, "phone kept from canonical")
	assert.Equal(t, "https://roscioli.example", got.Website, "website filled from duplicate")
	assert.Equal(t, 4.6, got.Rating)
	assert.Equal(t, []string{"google", "yelp"}, got.Sources)
	assert.Equal(t, map[string]string{"google": "g1", "yelp": "y1"}, got.SourceIDs)
}

func TestDedupe_FuzzyPassMergesNearbySimilarNames(t *testing.T) {
	// ~10 m apart, different address formatting, near-identical names
	a := rec("Panificio Bonci", "Via Trionfale 36, Roma", 41.9100, 12.4500, "google", "g1")
	b := rec("Panificio Bonci.", "Via Trionfale, 36", 41.91009, 12.4500, "google", "g2")

	out := dedup.Dedupe([]entity.PlaceRecord{a, b})

	require.Len(t, out, 1)
	assert.Equal(t, "Panificio Bonci", out[0].Name)
	assert.Equal(t, "g1", out[0].SourceIDs["google"], "canonical id wins on provider collision")
}

func TestDedupe_FuzzyPassRespectsDistance(t *testing.T) {
	a := rec("Panificio Bonci", "Via Trionfale 36", 41.9100, 12.4500, "google", "g1")
	b := rec("Panificio Bonci", "Via Trionfale 120", 41.9110, 12.4500, "google", "g2") // ~111 m

	out := dedup.Dedupe([]entity.PlaceRecord{a, b})

	assert.Len(t, out, 2)
}

func TestDedupe_FirstSeenWinsIsOrderSensitive(t *testing.T) {
	// b is within range of both a and c, but a and c are ~60 m apart.
	a := rec("Bar Centrale", "Piazza A", 41.90000, 12.5, "google", "a")
	b := rec("Bar Centrale", "Piazza B", 41.90027, 12.5, "google", "b")
	c := rec("Bar Centrale", "Piazza C", 41.90054, 12.5, "google", "c")

	out := dedup.Dedupe([]entity.PlaceRecord{a, b, c})
	require.Len(t, out, 2)
	assert.Equal(t, "Piazza A", out[0].Address)
	assert.Equal(t, "Piazza C", out[1].Address)

	out = dedup.Dedupe([]entity.PlaceRecord{b, a, c})
	require.Len(t, out, 1)
	assert.Equal(t, "Piazza B", out[0].Address)
	assert.Equal(t, "b", out[0].SourceIDs["google"])
}

func TestDedupe_NoSpuriousMerging(t *testing.T) {
	in := []entity.PlaceRecord{
		rec("Antico Forno", "Via A 1", 41.9000, 12.5000, "google", "1"),
		rec("Pasticceria Regoli", "Via B 2", 41.9000, 12.5010, "google", "2"),
		rec("Antico Forno", "Via A 1", 41.9100, 12.5000, "google", "3"),
		rec("Biscottificio Innocenti", "Via C 3", 41.9003, 12.5000, "google", "4"),
	}

	out := dedup.Dedupe(in)

	assert.Len(t, out, len(in))
}

func TestDedupe_Idempotent(t *testing.T) {
	in := []entity.PlaceRecord{
		rec("Forno Campo de' Fiori", "Campo de' Fiori 22", 41.8956, 12.4722, "google", "1"),
		rec("Forno Campo de Fiori", "Campo de' Fiori 22", 41.89562, 12.47221, "google", "2"),
		rec("Roscioli Caffè", "Piazza Benedetto Cairoli 16", 41.8940, 12.4745, "yelp", "3"),
		rec("roscioli caffè", "piazza benedetto cairoli 16", 41.8940, 12.4745, "google", "4"),
		rec("Bar del Fico", "Piazza del Fico 26", 41.8996, 12.4708, "google", "5"),
	}

	once := dedup.Dedupe(in)
	twice := dedup.Dedupe(once)

	assert.Equal(t, once, twice)
	assert.Len(t, once, 3)
}

func TestDedupe_DoesNotMutateInput(t *testing.T) {
	a := rec("Same", "Addr", 41.9, 12.5, "google", "1")
	b := rec("Same", "Addr", 41.9, 12.5, "yelp", "2")
	in := []entity.PlaceRecord{a, b}

	_ = dedup.Dedupe(in)

	assert.Equal(t, []string{"google"}, in[0].Sources)
	assert.Equal(t, map[string]string{"google": "1"}, in[0].SourceIDs)
}

func TestMerge_CategoriesAndCounts(t *testing.T) {
	dst := entity.PlaceRecord{Categories: []string{"bakery", "food"}, ReviewCount: 10, Rating: 4.9}
	src := entity.PlaceRecord{
		Categories:   []string{"cafe", "bakery"},
		ReviewCount:  25,
		Rating:       4.1,
		OpeningHours: []string{"Mon: 7-19"},
		Locality:     "Roma",
	}

	dedup.Merge(&dst, src)

	assert.Equal(t, []string{"bakery", "food", "cafe"}, dst.Categories)
	assert.Equal(t, 25, dst.ReviewCount)
	assert.Equal(t, 4.9, dst.Rating)
	assert.Equal(t, []string{"Mon: 7-19"}, dst.OpeningHours)
	assert.Equal(t, "Roma", dst.Locality)
}
