package entity

import (
	"strings"

	"place-discovery-service/internal/geo"
)

// PlaceRecord is a single business as returned by a provider or produced
// by merging several provider records.
type PlaceRecord struct {
	Name         string
	Address      string
	Location     *geo.Point
	Locality     string
	Phone        string
	Website      string
	Rating       float64
	ReviewCount  int
	OpeningHours []string
	Categories   []string
	SourceIDs    map[string]string
	Sources      []string
}

// Keyable reports whether the record has everything dedup needs.
func (r PlaceRecord) Keyable() bool {
	return strings.TrimSpace(r.Name) != "" &&
		strings.TrimSpace(r.Address) != "" &&
		r.Location != nil
}

// Clone returns a deep copy so merges never alias the caller's slices.
func (r PlaceRecord) Clone() PlaceRecord {
	c := r
	if r.Location != nil {
		p := *r.Location
		c.Location = &p
	}
	c.OpeningHours = append([]string(nil), r.OpeningHours...)
	c.Categories = append([]string(nil), r.Categories...)
	c.Sources = append([]string(nil), r.Sources...)
	if r.SourceIDs != nil {
		c.SourceIDs = make(map[string]string, len(r.SourceIDs))
		for k, v := range r.SourceIDs {
			c.SourceIDs[k] = v
		}
	}
	return c
}
