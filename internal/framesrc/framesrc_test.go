// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package framesrc

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"io"
	"log/slog"
	"testing"

	"github.com/nishisan-dev/flut/internal/ferrors"
	"golang.org/x/image/bmp"
)

func encodeBitmap(t *testing.T, w, h int, c color.RGBA) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := bmp.Encode(&buf, img); err != nil {
		t.Fatalf("encoding test bitmap: %v", err)
	}
	return buf.Bytes()
}

func TestNextFrame_DiscardsJunkBeforeMagic(t *testing.T) {
	frame := encodeBitmap(t, 2, 2, color.RGBA{R: 255, A: 255})

	var stream bytes.Buffer
	stream.WriteString("garbage-not-a-bitmap")
	stream.Write(frame)

	fs := New(&stream, slog.New(slog.NewTextHandler(io.Discard, nil)), false, nil)
	img, err := fs.NextFrame()
	if err != nil {
		t.Fatalf("NextFrame: %v", err)
	}
	if img.Bounds().Dx() != 2 || img.Bounds().Dy() != 2 {
		t.Fatalf("unexpected decoded bounds: %v", img.Bounds())
	}
}

func TestNextFrame_ReadsConsecutiveFrames(t *testing.T) {
	frame1 := encodeBitmap(t, 1, 1, color.RGBA{R: 255, A: 255})
	frame2 := encodeBitmap(t, 1, 1, color.RGBA{G: 255, A: 255})

	var stream bytes.Buffer
	stream.Write(frame1)
	stream.Write(frame2)

	fs := New(&stream, slog.New(slog.NewTextHandler(io.Discard, nil)), false, nil)

	img1, err := fs.NextFrame()
	if err != nil {
		t.Fatalf("NextFrame 1: %v", err)
	}
	r, _, _, _ := img1.At(0, 0).RGBA()
	if r>>8 != 255 {
		t.Fatalf("expected red frame first, got %v", img1.At(0, 0))
	}

	img2, err := fs.NextFrame()
	if err != nil {
		t.Fatalf("NextFrame 2: %v", err)
	}
	_, g, _, _ := img2.At(0, 0).RGBA()
	if g>>8 != 255 {
		t.Fatalf("expected green frame second, got %v", img2.At(0, 0))
	}
}

func TestNextFrame_EOFWithoutContinuous(t *testing.T) {
	stream := bytes.NewBufferString("")
	fs := New(stream, slog.New(slog.NewTextHandler(io.Discard, nil)), false, nil)
	_, err := fs.NextFrame()
	if err != io.EOF {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestNextFrame_ContinuousReopensOnEOF(t *testing.T) {
	frame := encodeBitmap(t, 1, 1, color.RGBA{B: 255, A: 255})
	first := bytes.NewBufferString("")

	calls := 0
	reopen := func() (io.Reader, error) {
		calls++
		return bytes.NewReader(frame), nil
	}

	fs := New(first, slog.New(slog.NewTextHandler(io.Discard, nil)), true, reopen)
	img, err := fs.NextFrame()
	if err != nil {
		t.Fatalf("NextFrame: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected reopen to be called once, got %d", calls)
	}
	_, _, b, _ := img.At(0, 0).RGBA()
	if b>>8 != 255 {
		t.Fatalf("expected blue frame after reopen, got %v", img.At(0, 0))
	}
}

func TestCheckMemoryGuard_RunsWithoutError(t *testing.T) {
	// Exercises the gopsutil call path; on any CI/test host this should
	// have well above the 1 GiB floor, but we only assert it doesn't
	// error contacting the OS — not the outcome, which is host-dependent.
	if err := CheckMemoryGuard(); err != nil {
		if errors.Is(err, ferrors.ErrIO) {
			t.Fatalf("memory guard could not read system memory: %v", err)
		}
		t.Logf("memory guard reported: %v (acceptable on memory-constrained hosts)", err)
	}
}
