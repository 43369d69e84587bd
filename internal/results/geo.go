package results

import "github.com/ignite/phishsim-monitor/internal/domain"

// Marker is one deduplicated map bubble. Weight counts the recipients
// contributing to the marker's network origin.
type Marker struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Origin    string  `json:"origin"`
	Weight    int     `json:"weight"`
}

// AggregateGeo deduplicates recipient geolocations into map markers.
// Recipients without a resolved location are skipped; recipients sharing a
// network origin (IP) merge into one marker whose coordinates come from
// the first contributor, on the assumption that same-origin recipients are
// co-located. Output order follows first appearance in the input, so
// re-aggregating an unchanged recipient set yields identical markers.
func AggregateGeo(recipients []domain.Result) []Marker {
	var markers []Marker
	byOrigin := make(map[string]int)

	for _, r := range recipients {
		if !r.HasLocation() {
			continue
		}
		if i, ok := byOrigin[r.IP]; ok {
			markers[i].Weight++
			continue
		}
		byOrigin[r.IP] = len(markers)
		markers = append(markers, Marker{
			Latitude:  r.Latitude,
			Longitude: r.Longitude,
			Origin:    r.IP,
			Weight:    1,
		})
	}

	return markers
}
