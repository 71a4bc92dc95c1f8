package services

import (
	"context"
	"math"
	"time"
)

type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (p LatLng) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// Route is what the Maps port knows about a leg.
type Route struct {
	DistanceKm float64
	Duration   time.Duration
}

type Maps interface {
	Route(ctx context.Context, from, to LatLng) (Route, error)
}

const earthRadiusKm = 6371.0

// HaversineMaps estimates great-circle distance at a constant average speed.
type HaversineMaps struct {
	SpeedKmh float64
}

func NewHaversineMaps(speedKmh float64) *HaversineMaps {
	if speedKmh <= 0 {
		speedKmh = 30
	}
	return &HaversineMaps{SpeedKmh: speedKmh}
}

func (m *HaversineMaps) Route(ctx context.Context, from, to LatLng) (Route, error) {
	if err := ctx.Err(); err != nil {
		return Route{}, err
	}
	d := HaversineKm(from, to)
	secs := d / m.SpeedKmh * 3600
	return Route{DistanceKm: d, Duration: time.Duration(secs * float64(time.Second))}, nil
}

func HaversineKm(a, b LatLng) float64 {
	rad := math.Pi / 180
	dLat := (b.Lat - a.Lat) * rad
	dLng := (b.Lng - a.Lng) * rad
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(a.Lat*rad)*math.Cos(b.Lat*rad)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}

func roundKm(v float64) float64 { return math.Round(v*100) / 100 }
