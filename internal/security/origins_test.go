package security

import (
	"slices"
	"testing"
)

func TestParseOrigins(t *testing.T) {
	got := ParseOrigins(" https://a.example/, ,http://localhost:3000")
	want := Origins{"https://a.example", "http://localhost:3000"}
	if !slices.Equal(got, want) {
		t.Errorf("ParseOrigins = %v, want %v", got, want)
	}
	if len(ParseOrigins("")) != 0 {
		t.Error("empty input should yield no origins")
	}
}

func TestOrigins_Allows(t *testing.T) {
	o := ParseOrigins("https://app.example.com,http://localhost:3000")

	tests := []struct {
		origin string
		want   bool
	}{
		{"https://app.example.com", true},
		{"HTTPS://APP.EXAMPLE.COM/", true},
		{"http://localhost:3000", true},
		{"https://evil.example", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := o.Allows(tt.origin); got != tt.want {
			t.Errorf("Allows(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}
