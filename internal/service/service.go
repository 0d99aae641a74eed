// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package service implementa a máquina de estados do façade: build,
// start, change-config, send-image, send-command, stop, join.
package service

import (
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/nishisan-dev/flut/internal/canvas"
	"github.com/nishisan-dev/flut/internal/host"
	"github.com/nishisan-dev/flut/internal/paint"
	"github.com/nishisan-dev/flut/internal/pipeline"
	"github.com/nishisan-dev/flut/internal/protocol"
)

// State é o estado do ciclo de vida do façade.
type State int32

const (
	StateBuilt State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateBuilt:
		return "built"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Service reúne o host resolver, a frota de painters e o pipeline de
// frames em uma única máquina de estados com lifecycle Built → Running
// → Stopped.
type Service struct {
	host     *host.Host
	logger   *slog.Logger
	painters []*paint.Painter
	pipeline *pipeline.Pipeline

	mu    sync.Mutex
	state State

	auxMu     sync.Mutex
	auxClient *protocol.WireClient
}

// Options parametriza Build.
type Options struct {
	Host          *host.Host
	PainterCount  int
	Workers       int
	ChannelLimit  int
	InitialConfig canvas.ImageConfig
	FPS           float64
	Logger        *slog.Logger
}

// Build constrói um Service em estado Built: cria a frota de painters
// (ainda não iniciada) e o pipeline de frames. Nenhuma goroutine de
// painter roda até Start.
func Build(opts Options) (*Service, error) {
	if opts.Host == nil {
		return nil, fmt.Errorf("service: host is required")
	}
	if opts.PainterCount < 1 {
		return nil, fmt.Errorf("service: painter count must be >= 1")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	painters := make([]*paint.Painter, opts.PainterCount)
	for i := range painters {
		painters[i] = paint.New(i, opts.Host, logger)
	}

	if opts.InitialConfig.Chunks == 0 {
		opts.InitialConfig.Chunks = opts.PainterCount
	}

	pl := pipeline.New(pipeline.Config{
		Workers:       opts.Workers,
		ChannelLimit:  opts.ChannelLimit,
		InitialConfig: opts.InitialConfig,
		Painters:      painters,
		FPS:           opts.FPS,
		Logger:        logger,
	})

	return &Service{
		host:     opts.Host,
		logger:   logger,
		painters: painters,
		pipeline: pl,
		state:    StateBuilt,
	}, nil
}

// Start transiciona Built → Running, iniciando a goroutine de cada
// painter. Idempotente quando já Running.
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateRunning {
		return
	}
	s.state = StateRunning
	for _, p := range s.painters {
		go p.Run()
	}
	s.logger.Info("service started", "painters", len(s.painters))
}

// SendImage envia um frame bruto ao pipeline (requer Workers > 0).
func (s *Service) SendImage(img *image.RGBA) {
	s.ensureRunning()
	s.pipeline.SendImage(img)
}

// SendCommand injeta um Command pré-codificado diretamente no
// broadcaster.
func (s *Service) SendCommand(cmd *canvas.Command) {
	s.ensureRunning()
	s.pipeline.SendCommand(cmd)
}

// ChangeImageConfig propaga uma nova ImageConfig para os encoder
// workers.
func (s *Service) ChangeImageConfig(cfg canvas.ImageConfig) {
	s.ensureRunning()
	s.pipeline.ChangeConfig(cfg)
}

// ensureRunning promove Built → Running na primeira chamada de
// send_image/send_command/loop_callback, espelhando a semântica do
// §4.7 ("Built → Running on start() or first loop_callback()").
func (s *Service) ensureRunning() {
	s.mu.Lock()
	if s.state == StateBuilt {
		s.mu.Unlock()
		s.Start()
		return
	}
	s.mu.Unlock()
}

// GetClient retorna um wire client auxiliar pooled, criado tardiamente e
// reciclado quando observado em estado de erro — o caminho de leitura
// para read_pixel_multi/read_screen_size usado por chamadores de
// detecção de colisão.
func (s *Service) GetClient() (*protocol.WireClient, error) {
	s.auxMu.Lock()
	defer s.auxMu.Unlock()

	if s.auxClient != nil && !s.auxClient.IsError() {
		return s.auxClient, nil
	}
	if s.auxClient != nil {
		s.auxClient.Close()
	}

	conn, err := s.host.NewStream()
	if err != nil {
		return nil, fmt.Errorf("service: opening auxiliary client: %w", err)
	}
	s.auxClient = protocol.NewWireClient(conn)
	return s.auxClient, nil
}

// LoopCallback chama f(s) repetidamente até Stop liberar a entrada dos
// painters. Promove o serviço para Running na primeira chamada. O
// chamador tipicamente dorme dentro de f para limitar o FPS.
func (s *Service) LoopCallback(f func(*Service)) {
	s.ensureRunning()
	for {
		s.mu.Lock()
		stopped := s.state == StateStopped
		s.mu.Unlock()
		if stopped {
			return
		}
		f(s)
	}
}

// Painters retorna a frota de painters administrados por este serviço.
func (s *Service) Painters() []*paint.Painter {
	return s.painters
}

// State retorna o estado atual do façade.
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stop transiciona Running → Stopped: encerra o pipeline (que fecha os
// canais de entrada e em cascata propaga o shutdown) e então para cada
// painter, aguardando o término de cada um (join).
func (s *Service) Stop() {
	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return
	}
	s.state = StateStopped
	s.mu.Unlock()

	s.pipeline.Stop()

	var wg sync.WaitGroup
	for _, p := range s.painters {
		wg.Add(1)
		go func(p *paint.Painter) {
			defer wg.Done()
			p.Stop()
		}(p)
	}
	wg.Wait()

	s.auxMu.Lock()
	if s.auxClient != nil {
		s.auxClient.Close()
		s.auxClient = nil
	}
	s.auxMu.Unlock()

	s.logger.Info("service stopped")
}

// Join bloqueia até que o serviço transicione para Stopped, verificando
// periodicamente — usado por chamadores que iniciaram Stop() em outra
// goroutine e precisam sincronizar o encerramento.
func (s *Service) Join() {
	for s.State() != StateStopped {
		time.Sleep(10 * time.Millisecond)
	}
}
