package export

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSanitizeName(t *testing.T) {
	cases := []struct {
		name   string
		in     string
		maxLen int
		want   string
	}{
		{"plain command", "cut to the beach", 60, "cut to the beach"},
		{"allowed punctuation", "Day 3 - beach (v2), final_cut.v1", 60, "Day 3 - beach (v2), final_cut.v1"},
		{"shell metacharacters", "rm -rf / && echo done", 60, "rm -rf _ __ echo done"},
		{"quotes and brackets", `make it "snappy" [please]`, 60, "make it _snappy_ _please_"},
		{"truncated to rune budget", "a very long editing instruction that keeps going", 11, "a very long"},
		{"leading and trailing space trimmed", "   trim me   ", 60, "trim me"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeName(tc.in, tc.maxLen); got != tc.want {
				t.Errorf("SanitizeName(%q, %d) = %q, want %q", tc.in, tc.maxLen, got, tc.want)
			}
		})
	}
}

func TestSanitizeName_DropsControlChars(t *testing.T) {
	got := SanitizeName("title\nwith\rcontrol\tchars\x00", 100)
	if strings.ContainsAny(got, "\n\r\t\x00") {
		t.Fatalf("control chars survived sanitization: %q", got)
	}
	if got != "titlewithcontrolchars" {
		t.Errorf("SanitizeName() = %q, want control chars dropped not replaced", got)
	}
}

func TestSanitizeName_TruncatesRunesNotBytes(t *testing.T) {
	got := SanitizeName("héééééééééé", 5)
	if n := len([]rune(got)); n != 5 {
		t.Errorf("got %d runes (%q), want 5", n, got)
	}
}

func TestValidateOutputDir(t *testing.T) {
	existing := t.TempDir()

	notADir := filepath.Join(existing, "render.mp4")
	if err := os.WriteFile(notADir, []byte("mp4"), 0644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	cases := []struct {
		name    string
		dir     string
		wantErr bool
	}{
		{"existing directory", existing, false},
		{"empty", "", true},
		{"whitespace only", "   ", true},
		{"path traversal", "/tmp/../etc", true},
		{"unclean path", existing + "//renders", true},
		{"missing directory", filepath.Join(existing, "missing"), true},
		{"regular file", notADir, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateOutputDir(tc.dir)
			if tc.wantErr && err == nil {
				t.Errorf("ValidateOutputDir(%q) = nil, want error", tc.dir)
			}
			if !tc.wantErr && err != nil {
				t.Errorf("ValidateOutputDir(%q) error = %v", tc.dir, err)
			}
		})
	}
}
