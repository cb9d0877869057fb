package lifecycle

import "testing"

func TestValidSessionAction(t *testing.T) {
	cases := []struct {
		action string
		from   string
		valid  bool
	}{
		{"pause", "active", true},
		{"pause", "paused", false},
		{"pause", "completed", false},
		{"resume", "paused", true},
		{"resume", "active", false},
		{"resume", "completed", false},
		{"complete", "active", true},
		{"complete", "paused", true},
		{"complete", "completed", false},
		{"unknown", "active", false},
	}

	for _, tt := range cases {
		if got := ValidSessionAction(tt.action, tt.from); got != tt.valid {
			t.Fatalf("ValidSessionAction(%q, %q)=%v, want %v", tt.action, tt.from, got, tt.valid)
		}
	}
}

func TestValidRoomTransition(t *testing.T) {
	cases := []struct {
		from  string
		to    string
		valid bool
	}{
		{"dirty", "cleaning", true},
		{"cleaning", "inspection", true},
		{"inspection", "clean", true},
		{"clean", "occupied", true},
		{"occupied", "dirty", true},
		{"dirty", "dirty", true},
		{"inspection", "approved", true},
		{"clean", "approved", true},
		{"approved", "approved", true},
		{"dirty", "approved", false},
		{"cleaning", "approved", false},
		{"occupied", "approved", false},
	}

	for _, tt := range cases {
		if got := ValidRoomTransition(tt.from, tt.to); got != tt.valid {
			t.Fatalf("ValidRoomTransition(%q, %q)=%v, want %v", tt.from, tt.to, got, tt.valid)
		}
	}
}
