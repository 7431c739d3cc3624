package main

import (
	"testing"
	"time"
	"unicode/utf8"
)

func TestTruncateKeepsRunesIntact(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"short stays whole", "fits", 10, "fits"},
		{"exact length stays whole", "exact", 5, "exact"},
		{"ascii cut", "abcdefgh", 4, "abcd..."},
		{"multibyte cut on rune boundary", "héllo wörld", 6, "héllo ..."},
		{"cjk cut on rune boundary", "テスト失敗の理由", 3, "テスト..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.in, tt.n)
			if got != tt.want {
				t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("truncate(%q, %d) produced invalid UTF-8", tt.in, tt.n)
			}
		})
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{45 * time.Second, "45s"},
		{3 * time.Minute, "3m"},
		{2 * time.Hour, "2h"},
		{2*time.Hour + 30*time.Minute, "2h30m"},
		{48 * time.Hour, "2d"},
	}

	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
