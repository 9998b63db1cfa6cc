package geo

import (
	"math"
	"testing"
)

func TestDistanceKm(t *testing.T) {
	// Jakarta (-6.2, 106.816) to Bandung (-6.9175, 107.6191) ~ 115-120 km
	d := DistanceKm(-6.2, 106.816, -6.9175, 107.6191)
	if d < 100 || d > 140 {
		t.Fatalf("unexpected distance: %v", d)
	}
}

func TestDistanceSymmetry(t *testing.T) {
	pairs := [][4]float64{
		{0, 0, 0, 0},
		{-6.2, 106.816, -6.9175, 107.6191},
		{89.9, -179.9, -89.9, 179.9},
		{48.8566, 2.3522, 51.5074, -0.1278},
	}
	for _, p := range pairs {
		ab := DistanceM(p[0], p[1], p[2], p[3])
		ba := DistanceM(p[2], p[3], p[0], p[1])
		if ab < 0 {
			t.Fatalf("negative distance: %v", ab)
		}
		if math.Abs(ab-ba) > 1e-6 {
			t.Fatalf("asymmetric distance: %v vs %v", ab, ba)
		}
	}
}

func TestDistanceCoincidentPoints(t *testing.T) {
	if d := DistanceM(47.37, 8.54, 47.37, 8.54); d > 1e-9 {
		t.Fatalf("expected zero distance, got %v", d)
	}
}

func TestDistanceKnownValue(t *testing.T) {
	// Paris to London, roughly 343-344 km great-circle.
	d := DistanceKm(48.8566, 2.3522, 51.5074, -0.1278)
	if d < 335 || d > 355 {
		t.Fatalf("unexpected Paris-London distance: %v", d)
	}
}
