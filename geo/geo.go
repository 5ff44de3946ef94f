// Package geo implements the nearby-post geometry: a cheap rectangular pre-filter and
// exact great-circle distance ranking.
package geo

import (
	"math"
	"sort"
)

const (
	// EarthRadiusMeters is the mean Earth radius used by Haversine.
	EarthRadiusMeters = 6371000.0
	// MetersPerDegree is the fixed latitude conversion used for the bounding box.
	MetersPerDegree = 111000.0

	minMetersPerDegreeLng = 1e-6
)

// Point is a WGS84 coordinate in degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the point lies inside the latitude/longitude ranges.
func (p Point) Valid() bool {
	return ValidLatLng(p.Lat, p.Lng)
}

// ValidLatLng reports whether lat is in [-90,90] and lng in [-180,180]. NaN is never valid.
func ValidLatLng(lat, lng float64) bool {
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// LngRange is an inclusive longitude interval.
type LngRange struct {
	Min, Max float64
}

// Box is an approximate rectangle around a center. It is a superset of the circle, so
// candidates inside it still need an exact distance check. When the rectangle crosses the
// antimeridian its longitude extent is split into two ranges.
type Box struct {
	MinLat, MaxLat float64
	Lng            []LngRange
}

// BoundingBox returns the search rectangle for a radius in meters around center.
func BoundingBox(center Point, radiusMeters float64) Box {
	dLat := radiusMeters / MetersPerDegree
	metersPerDegLng := MetersPerDegree * math.Cos(center.Lat*math.Pi/180)
	dLng := radiusMeters / math.Max(minMetersPerDegreeLng, metersPerDegLng)

	box := Box{
		MinLat: math.Max(-90, center.Lat-dLat),
		MaxLat: math.Min(90, center.Lat+dLat),
	}

	minLng, maxLng := center.Lng-dLng, center.Lng+dLng
	switch {
	case maxLng-minLng >= 360:
		box.Lng = []LngRange{{Min: -180, Max: 180}}
	case minLng < -180:
		box.Lng = []LngRange{{Min: -180, Max: maxLng}, {Min: minLng + 360, Max: 180}}
	case maxLng > 180:
		box.Lng = []LngRange{{Min: minLng, Max: 180}, {Min: -180, Max: maxLng - 360}}
	default:
		box.Lng = []LngRange{{Min: minLng, Max: maxLng}}
	}
	return box
}

// Contains reports whether p falls inside the box.
func (b Box) Contains(p Point) bool {
	if p.Lat < b.MinLat || p.Lat > b.MaxLat {
		return false
	}
	for _, r := range b.Lng {
		if p.Lng >= r.Min && p.Lng <= r.Max {
			return true
		}
	}
	return false
}

// Haversine returns the great-circle distance between a and b in meters.
func Haversine(a, b Point) float64 {
	phi1 := a.Lat * math.Pi / 180
	phi2 := b.Lat * math.Pi / 180
	dPhi := (b.Lat - a.Lat) * math.Pi / 180
	dLambda := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	// Rounding can push h a hair outside [0,1] for antipodal points.
	h = math.Min(1, math.Max(0, h))
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusMeters * c
}

// Ranked pairs an item with its truncated distance from the search center.
type Ranked[T any] struct {
	Item     T
	Distance int
}

// Rank keeps the items within radiusMeters of center and orders them by ascending distance.
// Items at the same whole-meter distance keep their input order.
func Rank[T any](center Point, radiusMeters float64, items []T, locate func(T) Point) []Ranked[T] {
	out := make([]Ranked[T], 0, len(items))
	for _, it := range items {
		d := Haversine(center, locate(it))
		if d > radiusMeters {
			continue
		}
		out = append(out, Ranked[T]{Item: it, Distance: int(d)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	return out
}
