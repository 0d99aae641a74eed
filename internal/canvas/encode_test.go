// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package canvas

import (
	"bytes"
	"image"
	"image/color"
	"sort"
	"strings"
	"testing"
)

func solidRGBA(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func concatChunks(cmd *Command) []byte {
	var buf bytes.Buffer
	for i := 0; i < cmd.Chunks(); i++ {
		buf.Write(cmd.Chunk(i))
	}
	return buf.Bytes()
}

func sortedLines(b []byte) []string {
	lines := strings.Split(strings.TrimRight(string(b), "\n"), "\n")
	sort.Strings(lines)
	return lines
}

func TestEncodeFull_SolidRed2x2(t *testing.T) {
	img := solidRGBA(2, 2, color.RGBA{R: 0xff, G: 0, B: 0, A: 0xff})
	cfg := ImageConfig{Chunks: 1}

	cmd, err := Encode(img, cfg, nil)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got := sortedLines(concatChunks(cmd))
	want := []string{
		"PX 0 0 ff0000",
		"PX 0 1 ff0000",
		"PX 1 0 ff0000",
		"PX 1 1 ff0000",
	}
	if len(got) != len(want) {
		t.Fatalf("got %d lines, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d: got %q want %q", i, got[i], want[i])
		}
	}
}

func TestEncodeOffset_SolidRed2x2(t *testing.T) {
	img := solidRGBA(2, 2, color.RGBA{R: 0xff, G: 0, B: 0, A: 0xff})
	cfg := ImageConfig{Chunks: 1, OffsetUsage: true}

	cmd, err := Encode(img, cfg, nil)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	out := string(concatChunks(cmd))
	if !strings.HasPrefix(out, "OFFSET 0 0\n") {
		t.Fatalf("expected leading OFFSET 0 0, got %q", out)
	}
	for _, want := range []string{"PX 0 0 ff0000", "PX 1 0 ff0000", "PX 0 1 ff0000", "PX 1 1 ff0000"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing line %q in %q", want, out)
		}
	}
}

func TestEncode_GrayPolicy(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 6, 6))
	img.SetRGBA(5, 5, color.RGBA{R: 0x77, G: 0x77, B: 0x77, A: 0xff})
	cfg := ImageConfig{Chunks: 1, GrayUsage: true}

	cmd, err := Encode(img, cfg, nil)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	out := string(concatChunks(cmd))
	if strings.TrimSpace(out) != "PX 5 5 77" {
		t.Fatalf("got %q, want \"PX 5 5 77\"", out)
	}
}

func TestEncode_AlphaPolicy(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.SetRGBA(0, 0, color.RGBA{R: 1, G: 2, B: 3, A: 255})
	img.SetRGBA(1, 0, color.RGBA{R: 1, G: 2, B: 3, A: 128})

	t.Run("alpha_disabled_never_emits_8_chars", func(t *testing.T) {
		cfg := ImageConfig{Chunks: 1, AlphaUsage: false}
		cmd, err := Encode(img, cfg, nil)
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		for _, line := range sortedLines(concatChunks(cmd)) {
			fields := strings.Fields(line)
			hex := fields[len(fields)-1]
			if len(hex) == 8 {
				t.Errorf("unexpected 8-char hex with alpha disabled: %q", line)
			}
		}
	})

	t.Run("alpha_enabled_opaque_stays_6_chars", func(t *testing.T) {
		cfg := ImageConfig{Chunks: 1, AlphaUsage: true}
		cmd, err := Encode(img, cfg, nil)
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		out := concatChunks(cmd)
		if !strings.Contains(string(out), "PX 0 0 010203\n") {
			t.Errorf("expected opaque pixel with 6-char hex, got %q", out)
		}
		if !strings.Contains(string(out), "PX 1 0 01020380\n") {
			t.Errorf("expected translucent pixel with 8-char hex, got %q", out)
		}
	})
}

func TestEncode_Totality(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	opaque := 0
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			a := uint8(255)
			if (x+y)%3 == 0 {
				a = 0
			} else {
				opaque++
			}
			img.SetRGBA(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 1, A: a})
		}
	}

	cfg := ImageConfig{Chunks: 1}
	cmd, err := Encode(img, cfg, nil)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	lines := sortedLines(concatChunks(cmd))
	if len(lines) != opaque {
		t.Fatalf("got %d drawing commands, want %d opaque pixels", len(lines), opaque)
	}
}

func TestEncode_BinaryCorrectness(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 0x1235, 0x9877))
	img.SetRGBA(0x1234, 0x9876, color.RGBA{R: 0x01, G: 0x23, B: 0x45, A: 0x67})

	binDialect := DialectCoordLERGBA
	cfg := ImageConfig{Chunks: 1, Binary: &binDialect}
	cmd, err := Encode(img, cfg, nil)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	out := concatChunks(cmd)
	want := []byte{0x50, 0x42, 0x34, 0x12, 0x76, 0x98, 0x01, 0x23, 0x45, 0x67}
	if !bytes.Equal(out, want) {
		t.Fatalf("got % x, want % x", out, want)
	}
}

func TestEncode_ChunkPartition(t *testing.T) {
	img := solidRGBA(10, 10, color.RGBA{R: 9, G: 9, B: 9, A: 255})

	single, err := Encode(img, ImageConfig{Chunks: 1}, nil)
	if err != nil {
		t.Fatalf("Encode single: %v", err)
	}
	multi, err := Encode(img, ImageConfig{Chunks: 4}, nil)
	if err != nil {
		t.Fatalf("Encode multi: %v", err)
	}

	if multi.Chunks() != 4 {
		t.Fatalf("got %d chunks, want 4", multi.Chunks())
	}

	singleLines := sortedLines(concatChunks(single))
	multiLines := sortedLines(concatChunks(multi))
	if len(singleLines) != len(multiLines) {
		t.Fatalf("line count mismatch: single=%d multi=%d", len(singleLines), len(multiLines))
	}
	for i := range singleLines {
		if singleLines[i] != multiLines[i] {
			t.Errorf("permutation mismatch at %d: %q vs %q", i, singleLines[i], multiLines[i])
		}
	}
}

func TestEncode_ShuffleIdempotence(t *testing.T) {
	img := solidRGBA(8, 8, color.RGBA{R: 1, G: 2, B: 3, A: 255})
	cfg := ImageConfig{Chunks: 3, Shuffle: false}

	a, err := Encode(img, cfg, nil)
	if err != nil {
		t.Fatalf("Encode a: %v", err)
	}
	b, err := Encode(img, cfg, nil)
	if err != nil {
		t.Fatalf("Encode b: %v", err)
	}

	if !bytes.Equal(concatChunks(a), concatChunks(b)) {
		t.Fatalf("shuffle=false must be byte-identical across runs")
	}
}

func TestAppendDecimal(t *testing.T) {
	cases := []struct {
		in   uint32
		want string
	}{
		{1234, "1234"},
		{123, "123"},
		{12, "12"},
		{1, "1"},
		{0, "0"},
	}
	for _, tc := range cases {
		buf, err := appendDecimal(nil, tc.in)
		if err != nil {
			t.Fatalf("appendDecimal(%d): %v", tc.in, err)
		}
		if string(buf) != tc.want {
			t.Errorf("appendDecimal(%d) = %q, want %q", tc.in, buf, tc.want)
		}
	}

	if _, err := appendDecimal(nil, 10000); err == nil {
		t.Error("expected error for coordinate >= 10000")
	}
}
