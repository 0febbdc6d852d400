// Package dedup merges near-duplicate place records.
//
// Dedupe runs two passes. The exact pass groups records by normalized name,
// normalized address and spatial bucket. The fuzzy pass then folds each
// remaining record into the first accepted record that lies within
// MaxDistanceMeters and whose name similarity reaches MinNameSimilarity.
// The first record seen is always the canonical one, so the output depends
// on input order.
package dedup

import (
	"sort"

	"place-discovery-service/internal/entity"
	"place-discovery-service/internal/geo"
)

const (
	MaxDistanceMeters = 50.0
	MinNameSimilarity = 0.88
)

// ExactKey is the exact-pass grouping key of a keyable record.
func ExactKey(r entity.PlaceRecord) string {
	return geo.Normalize(r.Name) + "|" + geo.Normalize(r.Address) + "|" + geo.SpatialBucket(*r.Location)
}

// Duplicate reports whether candidate should be folded into canonical
// during the fuzzy pass.
func Duplicate(canonical, candidate entity.PlaceRecord) bool {
	if canonical.Location == nil || candidate.Location == nil {
		return false
	}
	if geo.DistanceMeters(*canonical.Location, *candidate.Location) > MaxDistanceMeters {
		return false
	}
	return geo.NameSimilarity(canonical.Name, candidate.Name) >= MinNameSimilarity
}

// Dedupe returns the merged records in first-seen order. Records missing a
// name, an address or a location are dropped. The input is not modified.
func Dedupe(records []entity.PlaceRecord) []entity.PlaceRecord {
	exact := make([]entity.PlaceRecord, 0, len(records))
	byKey := make(map[string]int, len(records))

	for _, r := range records {
		if !r.Keyable() {
			continue
		}
		key := ExactKey(r)
		if i, ok := byKey[key]; ok {
			Merge(&exact[i], r)
			continue
		}
		byKey[key] = len(exact)
		exact = append(exact, canonical(r))
	}

	out := make([]entity.PlaceRecord, 0, len(exact))
	for _, r := range exact {
		folded := false
		for i := range out {
			if Duplicate(out[i], r) {
				Merge(&out[i], r)
				folded = true
				break
			}
		}
		if !folded {
			out = append(out, r)
		}
	}
	return out
}

// Merge folds src into dst. Identity fields of dst are kept; sources and
// source ids are unioned, phone, website, locality and opening hours are
// only filled when dst has none, rating and review count take the maximum
// and categories keep dst's order with src's new entries appended.
func Merge(dst *entity.PlaceRecord, src entity.PlaceRecord) {
	dst.Sources = unionSorted(dst.Sources, src.Sources)

	if len(src.SourceIDs) > 0 {
		if dst.SourceIDs == nil {
			dst.SourceIDs = make(map[string]string, len(src.SourceIDs))
		}
		for provider, id := range src.SourceIDs {
			if _, ok := dst.SourceIDs[provider]; !ok {
				dst.SourceIDs[provider] = id
			}
		}
	}

	if dst.Website == "" {
		dst.Website = src.Website
	}
	if dst.Phone == "" {
		dst.Phone = src.Phone
	}
	if dst.Locality == "" {
		dst.Locality = src.Locality
	}
	if len(dst.OpeningHours) == 0 && len(src.OpeningHours) > 0 {
		dst.OpeningHours = append([]string(nil), src.OpeningHours...)
	}

	if src.Rating > dst.Rating {
		dst.Rating = src.Rating
	}
	if src.ReviewCount > dst.ReviewCount {
		dst.ReviewCount = src.ReviewCount
	}

	for _, c := range src.Categories {
		if !contains(dst.Categories, c) {
			dst.Categories = append(dst.Categories, c)
		}
	}
}

func canonical(r entity.PlaceRecord) entity.PlaceRecord {
	c := r.Clone()
	c.Sources = unionSorted(nil, c.Sources)
	return c
}

func unionSorted(a, b []string) []string {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, s := range list {
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
