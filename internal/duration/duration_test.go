package duration

import (
	"testing"
	"time"
)

func TestIncrement_FromAbsent(t *testing.T) {
	if got := Increment("", 5000*time.Millisecond, "HH:mm:ss"); got != "00:00:05" {
		t.Errorf("Increment = %q, want 00:00:05", got)
	}
}

func TestIncrement_FromExisting(t *testing.T) {
	if got := Increment("00:59:58", 3*time.Second, "HH:mm:ss"); got != "01:00:01" {
		t.Errorf("Increment = %q, want 01:00:01", got)
	}
}

func TestIncrement_UnparseableCountsAsZero(t *testing.T) {
	if got := Increment("yesterday", 2*time.Second, "HH:mm:ss"); got != "00:00:02" {
		t.Errorf("Increment = %q", got)
	}
}

func TestIncrement_Associative(t *testing.T) {
	layout := "HH:mm:ss"
	ticks := []time.Duration{3 * time.Second, 7 * time.Second, 50 * time.Second, 2 * time.Hour}
	stepwise := ""
	var sum time.Duration
	for _, tick := range ticks {
		stepwise = Increment(stepwise, tick, layout)
		sum += tick
	}
	if once := Increment("", sum, layout); once != stepwise {
		t.Errorf("stepwise = %q, once = %q", stepwise, once)
	}
}

func TestValid(t *testing.T) {
	cases := map[string]bool{
		"":           true,
		"00:00:05":   true,
		" 01:00:00 ": true,
		"5 minutes":  false,
		"00:00":      false,
	}
	for in, want := range cases {
		if got := Valid(in, "HH:mm:ss"); got != want {
			t.Errorf("Valid(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestZero(t *testing.T) {
	if got := Zero("HH:mm:ss"); got != "00:00:00" {
		t.Errorf("Zero = %q", got)
	}
}

func TestIncrement_NearLimit(t *testing.T) {
	if Valid("3000000:00:00", "HH:mm:ss") {
		t.Error("out of range value reported valid")
	}
	if got := Increment("2562047:47:16", time.Hour, "HH:mm:ss"); got != "2562047:47:16" {
		t.Errorf("Increment at limit = %q, want saturated 2562047:47:16", got)
	}
}
