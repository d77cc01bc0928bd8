package util

import (
	"testing"
	"time"
)

func TestParseBoolEnv(t *testing.T) {
	tests := []struct {
		val  string
		def  bool
		want bool
	}{
		{"", true, true},
		{"", false, false},
		{"yes", false, true},
		{"ON", false, true},
		{"0", true, false},
		{"off", true, false},
		{"maybe", true, true},
	}
	for _, tt := range tests {
		t.Setenv("VETBOT_TEST_BOOL", tt.val)
		if got := ParseBoolEnv("VETBOT_TEST_BOOL", tt.def); got != tt.want {
			t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", tt.val, tt.def, got, tt.want)
		}
	}
}

func TestParseDurationEnv(t *testing.T) {
	def := 30 * time.Minute
	tests := []struct {
		val  string
		want time.Duration
	}{
		{"", def},
		{"5m", 5 * time.Minute},
		{" 90s ", 90 * time.Second},
		{"soon", def},
		{"-1m", def},
		{"0s", def},
	}
	for _, tt := range tests {
		t.Setenv("VETBOT_TEST_DURATION", tt.val)
		if got := ParseDurationEnv("VETBOT_TEST_DURATION", def); got != tt.want {
			t.Errorf("ParseDurationEnv(%q) = %v, want %v", tt.val, got, tt.want)
		}
	}
}
