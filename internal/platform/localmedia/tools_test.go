package localmedia

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func pngOf(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.Black)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func TestDownscale(t *testing.T) {
	cases := []struct {
		name         string
		w, h, max    int
		wantW, wantH int
	}{
		{name: "landscape", w: 400, h: 200, max: 100, wantW: 100, wantH: 50},
		{name: "portrait", w: 200, h: 400, max: 100, wantW: 50, wantH: 100},
		{name: "within bounds", w: 80, h: 60, max: 100, wantW: 80, wantH: 60},
		{name: "disabled", w: 400, h: 200, max: 0, wantW: 400, wantH: 200},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, w, h, err := Downscale(pngOf(t, tc.w, tc.h), tc.max)
			if err != nil {
				t.Fatalf("Downscale: %v", err)
			}
			if w != tc.wantW || h != tc.wantH {
				t.Fatalf("got %dx%d want %dx%d", w, h, tc.wantW, tc.wantH)
			}
			cfg, err := png.DecodeConfig(bytes.NewReader(out))
			if err != nil || cfg.Width != tc.wantW || cfg.Height != tc.wantH {
				t.Fatalf("encoded image is %dx%d (%v)", cfg.Width, cfg.Height, err)
			}
		})
	}
}

func TestRenderArgs(t *testing.T) {
	got := renderArgs("/tmp/a.pdf", "/tmp/page", PDFRenderOptions{FirstPage: 1, LastPage: 1})
	want := []string{"-r", "150", "-png", "-f", "1", "-l", "1", "/tmp/a.pdf", "/tmp/page"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestGlobSorted(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"page-2.png", "page-1.png", "menu.pdf", "other.png"} {
		if err := os.WriteFile(filepath.Join(dir, n), []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	got, err := globSorted(dir, `^page-\d+\.png$`)
	if err != nil {
		t.Fatalf("globSorted: %v", err)
	}
	want := []string{filepath.Join(dir, "page-1.png"), filepath.Join(dir, "page-2.png")}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}
