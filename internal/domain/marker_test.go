package domain

import "testing"

func TestMarker_IsZero(t *testing.T) {
	if !(Marker{}).IsZero() {
		t.Error("IsZero() = false for an empty marker, want true")
	}

	m := Marker{LastTimestamp: 1000, LastTxHash: "0xabc"}
	if m.IsZero() {
		t.Errorf("IsZero() = true for %+v, want false", m)
	}

	// A row that recorded a hash but no timestamp still counts as populated.
	partial := Marker{LastTxHash: "0xabc"}
	if partial.IsZero() {
		t.Errorf("IsZero() = true for %+v, want false", partial)
	}
}
