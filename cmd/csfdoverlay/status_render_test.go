package main

import (
	"strings"
	"testing"

	"csfdoverlay/internal/api"
)

func TestRatingStatusCell(t *testing.T) {
	tests := []struct {
		status string
		want   string
	}{
		{status: "Resolved", want: ansiGreen + "Resolved" + ansiReset},
		{status: "NotFound", want: ansiYellow + "NotFound" + ansiReset},
		{status: "ErrorTransient", want: ansiRed + "ErrorTransient" + ansiReset},
		{status: "ErrorPermanent", want: ansiRed + "ErrorPermanent" + ansiReset},
		{status: "Unknown", want: ansiBlue + "Unknown" + ansiReset},
		{status: "", want: ""},
	}
	for _, tt := range tests {
		if got := ratingStatusCell(tt.status, true); got != tt.want {
			t.Fatalf("ratingStatusCell(%q) = %q, want %q", tt.status, got, tt.want)
		}
		if got := ratingStatusCell(tt.status, false); got != tt.status {
			t.Fatalf("plain ratingStatusCell(%q) = %q", tt.status, got)
		}
	}
}

func TestRenderRatingsColorsStatus(t *testing.T) {
	ratings := api.BatchResponse{"m1": {ItemID: "m1", Status: "NotFound"}}

	colored := renderRatings(ratings, true)
	if !strings.Contains(colored, ansiYellow+"NotFound"+ansiReset) {
		t.Fatalf("expected colored status, got:\n%s", colored)
	}
	plain := renderRatings(ratings, false)
	if strings.Contains(plain, "\x1b[") || !strings.Contains(plain, "NotFound") {
		t.Fatalf("expected plain status, got:\n%s", plain)
	}
}
