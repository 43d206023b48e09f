package media

import (
	"errors"
	"testing"
)

func TestResolveSource(t *testing.T) {
	sources := map[string]string{
		"beach.mp4":   "/clips/beach.mp4",
		"Sunset.MOV":  "/clips/Sunset.MOV",
		"opening.mkv": "/clips/opening.mkv",
	}

	cases := []struct {
		name     string
		query    string
		wantPath string
	}{
		{name: "exact", query: "beach.mp4", wantPath: "/clips/beach.mp4"},
		{name: "case insensitive", query: "sunset.mov", wantPath: "/clips/Sunset.MOV"},
		{name: "extension mismatch", query: "opening.mp4", wantPath: "/clips/opening.mkv"},
		{name: "stem case and extension", query: "BEACH.MOV", wantPath: "/clips/beach.mp4"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path, err := ResolveSource(tc.query, sources)
			if err != nil {
				t.Fatalf("ResolveSource(%q) error = %v", tc.query, err)
			}
			if path != tc.wantPath {
				t.Errorf("ResolveSource(%q) = %s, want %s", tc.query, path, tc.wantPath)
			}
		})
	}
}

func TestResolveSource_Unresolved(t *testing.T) {
	sources := map[string]string{"beach.mp4": "/clips/beach.mp4"}

	_, err := ResolveSource("missing.mp4", sources)
	if err == nil {
		t.Fatal("ResolveSource() should fail for unknown source")
	}

	var unresolved *UnresolvedSourceError
	if !errors.As(err, &unresolved) {
		t.Fatalf("error = %T, want *UnresolvedSourceError", err)
	}
	if unresolved.SourceVideo != "missing.mp4" {
		t.Errorf("SourceVideo = %q, want missing.mp4", unresolved.SourceVideo)
	}
}

func TestDefaultExportSettings(t *testing.T) {
	s := DefaultExportSettings()
	if s.CRF != 18 || s.Preset != "veryfast" {
		t.Errorf("unexpected defaults: %+v", s)
	}
}
