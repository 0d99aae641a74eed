// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package imgsrc

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_LocalPNG(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.png")

	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.SetRGBA(0, 0, color.RGBA{R: 255, A: 255})

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	f.Close()

	loaded, err := Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Bounds().Dx() != 2 || loaded.Bounds().Dy() != 2 {
		t.Fatalf("unexpected bounds: %v", loaded.Bounds())
	}
	r, _, _, _ := loaded.At(0, 0).RGBA()
	if r>>8 != 255 {
		t.Fatalf("expected red pixel at (0,0), got %v", loaded.At(0, 0))
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(context.Background(), "/nonexistent/path/nope.png")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestParseS3URI(t *testing.T) {
	bucket, key, err := parseS3URI("s3://my-bucket/path/to/image.png")
	if err != nil {
		t.Fatalf("parseS3URI: %v", err)
	}
	if bucket != "my-bucket" || key != "path/to/image.png" {
		t.Fatalf("got bucket=%q key=%q", bucket, key)
	}
}

func TestParseS3URI_Malformed(t *testing.T) {
	cases := []string{"s3://bucket-only", "s3://", "s3://bucket/"}
	for _, c := range cases {
		if _, _, err := parseS3URI(c); err == nil {
			t.Errorf("expected error for malformed uri %q", c)
		}
	}
}
