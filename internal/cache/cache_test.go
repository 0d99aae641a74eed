// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package cache

import (
	"testing"

	"github.com/nishisan-dev/flut/internal/canvas"
)

func TestCache_PutGetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	c, err := New(dir, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	cmd := canvas.NewCommand([][]byte{
		[]byte("PX 0 0 ff0000\n"),
		{},
		[]byte("PX 1 1 00ff00\n"),
	})

	if err := c.Put(0, cmd); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok, err := c.Get(0)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("expected entry to be present")
	}
	if got.Chunks() != cmd.Chunks() {
		t.Fatalf("chunk count mismatch: got %d want %d", got.Chunks(), cmd.Chunks())
	}
	for i := 0; i < cmd.Chunks(); i++ {
		if string(got.Chunk(i)) != string(cmd.Chunk(i)) {
			t.Errorf("chunk %d mismatch: got %q want %q", i, got.Chunk(i), cmd.Chunk(i))
		}
	}
}

func TestCache_GetMissing(t *testing.T) {
	dir := t.TempDir()
	c, err := New(dir, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	_, ok, err := c.Get(42)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatal("expected no entry for unknown index")
	}
}

func TestCache_EvictsOldestWhenOverBudget(t *testing.T) {
	dir := t.TempDir()
	c, err := New(dir, 1) // tiny budget: every Put evicts all older entries
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	cmd := canvas.NewCommand([][]byte{[]byte("PX 0 0 ffffff\n")})

	if err := c.Put(0, cmd); err != nil {
		t.Fatalf("Put(0): %v", err)
	}
	if err := c.Put(1, cmd); err != nil {
		t.Fatalf("Put(1): %v", err)
	}

	if _, ok, _ := c.Get(0); ok {
		t.Fatal("expected frame 0 to have been evicted")
	}
	if _, ok, _ := c.Get(1); !ok {
		t.Fatal("expected frame 1 (most recent) to still be cached")
	}
}

func TestCache_PutOverwritesExistingIndex(t *testing.T) {
	dir := t.TempDir()
	c, err := New(dir, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	first := canvas.NewCommand([][]byte{[]byte("PX 0 0 000000\n")})
	second := canvas.NewCommand([][]byte{[]byte("PX 0 0 ffffff\n")})

	if err := c.Put(0, first); err != nil {
		t.Fatalf("Put first: %v", err)
	}
	if err := c.Put(0, second); err != nil {
		t.Fatalf("Put second: %v", err)
	}

	got, ok, err := c.Get(0)
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if string(got.Chunk(0)) != "PX 0 0 ffffff\n" {
		t.Fatalf("expected overwritten chunk, got %q", got.Chunk(0))
	}
}
