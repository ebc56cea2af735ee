package env

import (
	"testing"
	"time"
)

func TestStr(t *testing.T) {
	t.Setenv("RELAY_TEST_STR", "")
	if got := Str("RELAY_TEST_STR", "x"); got != "x" {
		t.Fatalf("empty value: got %q", got)
	}
	t.Setenv("RELAY_TEST_STR", "y")
	if got := Str("RELAY_TEST_STR", "x"); got != "y" {
		t.Fatalf("set value: got %q", got)
	}
}

func TestInt(t *testing.T) {
	t.Setenv("RELAY_TEST_INT", "42")
	if got := Int("RELAY_TEST_INT", 1); got != 42 {
		t.Fatalf("got %d", got)
	}
	t.Setenv("RELAY_TEST_INT", "forty")
	if got := Int("RELAY_TEST_INT", 1); got != 1 {
		t.Fatalf("invalid value should fall back, got %d", got)
	}
}

func TestBool(t *testing.T) {
	t.Setenv("RELAY_TEST_BOOL", "true")
	if !Bool("RELAY_TEST_BOOL", false) {
		t.Fatalf("want true")
	}
	t.Setenv("RELAY_TEST_BOOL", "maybe")
	if Bool("RELAY_TEST_BOOL", false) {
		t.Fatalf("invalid value should fall back")
	}
}

func TestDuration(t *testing.T) {
	cases := []struct {
		val  string
		want time.Duration
	}{
		{"", 3 * time.Second},
		{"250ms", 250 * time.Millisecond},
		{"5", 5 * time.Second},
		{"0.5", 500 * time.Millisecond},
		{"soon", 3 * time.Second},
	}
	for _, tc := range cases {
		t.Setenv("RELAY_TEST_DUR", tc.val)
		if got := Duration("RELAY_TEST_DUR", 3*time.Second); got != tc.want {
			t.Errorf("Duration(%q) = %v, want %v", tc.val, got, tc.want)
		}
	}
}
