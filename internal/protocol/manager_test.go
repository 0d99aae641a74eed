// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package protocol

import (
	"bytes"
	"net"
	"testing"
)

func TestTargetRoundTrip(t *testing.T) {
	want := Target{
		Addresses: []net.IP{net.ParseIP("192.0.2.1"), net.ParseIP("2001:db8::1")},
		Port:      1234,
		Threads:   10,
	}

	var buf bytes.Buffer
	if err := WriteTarget(&buf, want); err != nil {
		t.Fatalf("WriteTarget: %v", err)
	}

	got, err := ReadTarget(&buf)
	if err != nil {
		t.Fatalf("ReadTarget: %v", err)
	}
	if got.Port != want.Port || got.Threads != want.Threads {
		t.Fatalf("got %+v, want %+v", got, want)
	}
	if len(got.Addresses) != len(want.Addresses) {
		t.Fatalf("address count mismatch: got %d want %d", len(got.Addresses), len(want.Addresses))
	}
	for i := range want.Addresses {
		if !got.Addresses[i].Equal(want.Addresses[i]) {
			t.Errorf("address %d: got %s want %s", i, got.Addresses[i], want.Addresses[i])
		}
	}
}

func TestCommandRoundTrip(t *testing.T) {
	want := [][]byte{
		[]byte("PX 0 0 ff0000\n"),
		{},
		[]byte("PX 1 1 00ff00\n"),
	}

	var buf bytes.Buffer
	if err := WriteCommand(&buf, want); err != nil {
		t.Fatalf("WriteCommand: %v", err)
	}

	got, err := ReadCommand(&buf)
	if err != nil {
		t.Fatalf("ReadCommand: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("chunk count mismatch: got %d want %d", len(got), len(want))
	}
	for i := range want {
		if !bytes.Equal(got[i], want[i]) {
			t.Errorf("chunk %d: got %q want %q", i, got[i], want[i])
		}
	}
}

func TestReadFrame_RejectsImplausibleLength(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0xff, 0xff, 0xff, 0xff})
	if _, err := ReadFrame(&buf); err == nil {
		t.Fatal("expected error for implausible frame length")
	}
}
