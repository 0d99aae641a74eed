// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package detect implementa o probe de features: um SIZE seguido de um HELP
// cujas linhas são analisadas heuristicamente para descobrir os dialetos
// que o servidor de pixelflut aceita.
package detect

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/nishisan-dev/flut/internal/ferrors"
	"github.com/nishisan-dev/flut/internal/protocol"
	"github.com/robfig/cron/v3"
)

// Features é o resultado de um probe: dimensões da tela e os dialetos que o
// servidor anunciou suportar.
type Features struct {
	Width, Height int
	Offset        bool
	Gray          bool
	Binary        bool
	BinaryDialect string // "CoordLERGBA" quando Binary é true
}

// Probe executa SIZE e HELP sobre conn e retorna as Features detectadas.
// Linhas de HELP não reconhecidas são ignoradas — este é um heurístico
// best-effort, nunca uma falha fatal por si só.
func Probe(wc *protocol.WireClient) (Features, error) {
	var f Features

	w, h, err := wc.ReadScreenSize()
	if err != nil {
		return f, err
	}
	f.Width, f.Height = w, h

	help, err := wc.ReadHelp()
	if err != nil {
		return f, err
	}

	for _, line := range strings.Split(help, "\n") {
		line = strings.ToLower(strings.TrimSpace(line))
		switch {
		case strings.HasPrefix(line, "offset"):
			f.Offset = true
		case strings.HasPrefix(line, "px x y gg"), strings.Contains(line, "grayscale"):
			f.Gray = true
		case strings.Contains(line, "pbxyrgba"), strings.Contains(line, "pbxxyyrgba"):
			f.Binary = true
			f.BinaryDialect = "CoordLERGBA"
		}
	}

	return f, nil
}

// Watcher mantém as Features mais recentes de um host e as re-sonda em um
// cron schedule, para que processos de longa duração notem um restart do
// servidor que mudou suas capacidades.
type Watcher struct {
	logger *slog.Logger
	dial   func() (*protocol.WireClient, error)

	mu       sync.RWMutex
	current  Features
	lastErr  error
	cronJob  *cron.Cron
	cronSpec string
}

// NewWatcher cria um Watcher. dial deve abrir uma nova conexão auxiliar
// adequada para um probe único (a conexão é fechada após cada sonda).
func NewWatcher(logger *slog.Logger, dial func() (*protocol.WireClient, error)) *Watcher {
	return &Watcher{logger: logger, dial: dial}
}

// ProbeOnce executa um probe síncrono e armazena o resultado.
func (w *Watcher) ProbeOnce(ctx context.Context) (Features, error) {
	wc, err := w.dial()
	if err != nil {
		return Features{}, err
	}
	defer wc.Close()

	f, err := Probe(wc)
	w.mu.Lock()
	if err != nil {
		w.lastErr = err
	} else {
		w.current = f
		w.lastErr = nil
	}
	w.mu.Unlock()
	return f, err
}

// Current retorna as últimas Features detectadas com sucesso.
func (w *Watcher) Current() Features {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// StartRedetect agenda re-sondas periódicas conforme um cron expression
// (--redetect-interval). Falhas de re-sonda são logadas e mantêm as
// últimas Features conhecidas em vigor.
func (w *Watcher) StartRedetect(spec string) error {
	c := cron.New()
	if _, err := c.AddFunc(spec, func() {
		if _, err := w.ProbeOnce(context.Background()); err != nil {
			w.logger.Warn("feature redetect failed, keeping previous features", "error", err)
		} else {
			w.logger.Info("feature redetect completed", "features", fmt.Sprintf("%+v", w.Current()))
		}
	}); err != nil {
		return fmt.Errorf("%w: invalid redetect schedule %q: %v", ferrors.ErrConfig, spec, err)
	}
	w.cronJob = c
	w.cronSpec = spec
	c.Start()
	return nil
}

// StopRedetect para o cron de re-sonda, se houver um em execução.
func (w *Watcher) StopRedetect() {
	if w.cronJob != nil {
		w.cronJob.Stop()
	}
}
