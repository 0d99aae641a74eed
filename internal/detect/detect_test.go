// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package detect

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/nishisan-dev/flut/internal/protocol"
)

func fakeServer(t *testing.T, help string) net.Conn {
	client, server := net.Pipe()
	go func() {
		r := bufio.NewReader(server)
		r.ReadString('\n') // SIZE
		server.Write([]byte("SIZE 800 600\n"))
		r.ReadString('\n') // HELP
		r.ReadString('\n') // PX 0 0
		server.Write([]byte(help))
		server.Write([]byte("PX 0 0 000000\n"))
		io.Copy(io.Discard, r)
	}()
	return client
}

func TestProbe_DetectsAllDialects(t *testing.T) {
	help := "  OFFSET X Y\nPX x y gg\n  PBxyRGBA\n# a comment line\n"
	client := fakeServer(t, help)
	defer client.Close()

	wc := protocol.NewWireClient(client)
	f, err := Probe(wc)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if f.Width != 800 || f.Height != 600 {
		t.Fatalf("unexpected size: %+v", f)
	}
	if !f.Offset || !f.Gray || !f.Binary {
		t.Fatalf("expected all dialects detected, got %+v", f)
	}
	if f.BinaryDialect != "CoordLERGBA" {
		t.Fatalf("unexpected binary dialect: %q", f.BinaryDialect)
	}
}

func TestProbe_IgnoresUnrecognisedLines(t *testing.T) {
	help := "some unrelated help text\nanother line\n"
	client := fakeServer(t, help)
	defer client.Close()

	wc := protocol.NewWireClient(client)
	f, err := Probe(wc)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if f.Offset || f.Gray || f.Binary {
		t.Fatalf("expected no dialects detected, got %+v", f)
	}
}

func TestWatcher_ProbeOnceStoresCurrent(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dial := func() (*protocol.WireClient, error) {
		client := fakeServer(t, "OFFSET X Y\n")
		return protocol.NewWireClient(client), nil
	}

	w := NewWatcher(logger, dial)
	f, err := w.ProbeOnce(context.Background())
	if err != nil {
		t.Fatalf("ProbeOnce: %v", err)
	}
	if !f.Offset {
		t.Fatalf("expected offset detected, got %+v", f)
	}
	if got := w.Current(); !got.Offset {
		t.Fatalf("expected Current() to reflect last probe, got %+v", got)
	}
}

func TestWatcher_StartRedetectRunsOnSchedule(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	calls := make(chan struct{}, 4)
	dial := func() (*protocol.WireClient, error) {
		calls <- struct{}{}
		client := fakeServer(t, "OFFSET X Y\n")
		return protocol.NewWireClient(client), nil
	}

	w := NewWatcher(logger, dial)
	if err := w.StartRedetect("@every 50ms"); err != nil {
		t.Fatalf("StartRedetect: %v", err)
	}
	defer w.StopRedetect()

	select {
	case <-calls:
	case <-time.After(2 * time.Second):
		t.Fatal("expected at least one scheduled redetect call")
	}
}

func TestWatcher_StartRedetectRejectsBadSpec(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	w := NewWatcher(logger, func() (*protocol.WireClient, error) { return nil, nil })
	if err := w.StartRedetect("not a cron spec"); err == nil {
		t.Fatal("expected error for invalid cron spec")
	}
}
