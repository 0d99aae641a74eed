// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package pipeline implementa as cinco etapas cooperantes do §4.6:
// distributor, N encoder workers, merger, broadcaster e a frota de
// painters, conectadas por canais FIFO limitados.
package pipeline

import (
	"context"
	"image"
	"log/slog"
	"sync"

	"github.com/nishisan-dev/flut/internal/canvas"
	"github.com/nishisan-dev/flut/internal/paint"
	"golang.org/x/time/rate"
)

// distributorImage carrega um frame bruto e o índice monotônico atribuído
// a ele pelo distribuidor.
type distributorImage struct {
	img *image.RGBA
	idx uint64
}

// encodedFrame é o resultado produzido por um encoder worker para o
// merger: um Command já pronto mais o índice do frame de origem.
type encodedFrame struct {
	cmd *canvas.Command
	idx uint64
}

// Pipeline liga distributor, encoder workers, merger e broadcaster. Zero
// value não é utilizável — construa via New.
type Pipeline struct {
	logger *slog.Logger

	imageCh  chan *image.RGBA
	configCh chan canvas.ImageConfig
	mergeCh  chan encodedFrame
	cmdCh    chan *canvas.Command

	painters []*paint.Painter

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}

	limiter *rate.Limiter // não-nil apenas quando fps > 0 (playback de animação)
}

// Config parametriza a construção de um Pipeline.
type Config struct {
	Workers       int             // converter_threads; 0 desabilita distributor/encoders/merger
	ChannelLimit  int             // capacidade de cada canal FIFO; padrão 10
	InitialConfig canvas.ImageConfig
	Painters      []*paint.Painter
	FPS           float64 // >0 ativa o passo de playback com pacing por token bucket
	Logger        *slog.Logger
}

// New constrói um Pipeline e inicia suas goroutines internas. Se
// cfg.Workers == 0 o distributor/encoders/merger são omitidos — use
// SendCommand diretamente para injetar Commands pré-codificados.
func New(cfg Config) *Pipeline {
	if cfg.ChannelLimit <= 0 {
		cfg.ChannelLimit = 10
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	p := &Pipeline{
		logger:   logger,
		cmdCh:    make(chan *canvas.Command, cfg.ChannelLimit),
		painters: cfg.Painters,
		stopCh:   make(chan struct{}),
	}

	if cfg.FPS > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(cfg.FPS), 1)
	}

	if cfg.Workers > 0 {
		p.imageCh = make(chan *image.RGBA, cfg.ChannelLimit)
		p.configCh = make(chan canvas.ImageConfig, cfg.Workers)
		p.mergeCh = make(chan encodedFrame, cfg.ChannelLimit)

		workerConfigs := make([]chan canvas.ImageConfig, cfg.Workers)
		for i := range workerConfigs {
			workerConfigs[i] = make(chan canvas.ImageConfig, 1)
		}
		p.wg.Add(1)
		go p.fanOutConfig(workerConfigs)

		imageChs := make([]chan distributorImage, cfg.Workers)
		for i := range imageChs {
			imageChs[i] = make(chan distributorImage, cfg.ChannelLimit)
		}
		p.wg.Add(1)
		go p.dispatchImages(imageChs)

		for i := 0; i < cfg.Workers; i++ {
			p.wg.Add(1)
			go p.runEncoderWorker(i, cfg.InitialConfig, imageChs[i], workerConfigs[i])
		}

		p.wg.Add(1)
		go p.runMerger()
	}

	p.wg.Add(1)
	go p.runBroadcaster()

	return p
}

// SendImage empurra um frame bruto para o distributor (caminho ao vivo).
// Bloqueia se o canal de entrada estiver cheio — o chamador controla o
// backpressure na fonte do frame.
func (p *Pipeline) SendImage(img *image.RGBA) {
	if p.imageCh == nil {
		p.logger.Warn("SendImage called with encoder stages disabled (Workers=0)")
		return
	}
	select {
	case p.imageCh <- img:
	case <-p.stopCh:
	}
}

// ChangeConfig empurra uma mudança de ImageConfig para todo encoder
// worker. Pode bloquear brevemente se as filas de worker estiverem cheias.
func (p *Pipeline) ChangeConfig(cfg canvas.ImageConfig) {
	if p.configCh == nil {
		p.logger.Warn("ChangeConfig called with encoder stages disabled (Workers=0)")
		return
	}
	select {
	case p.configCh <- cfg:
	case <-p.stopCh:
	}
}

// SendCommand injeta um Command pré-codificado diretamente no
// broadcaster, ignorando distributor/encoders/merger. É o único caminho
// de entrada quando Workers == 0, e também é usado para animações
// pré-renderizadas e para frames recebidos via protocolo de manager.
func (p *Pipeline) SendCommand(cmd *canvas.Command) {
	select {
	case p.cmdCh <- cmd:
	case <-p.stopCh:
	}
}

// Stop encerra todas as goroutines internas e aguarda seu término.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
		if p.imageCh != nil {
			close(p.imageCh)
		}
	})
	p.wg.Wait()
}

// dispatchImages é o distributor do §4.6: recebe frames brutos de
// SendImage e os distribui round-robin entre os encoder workers.
func (p *Pipeline) dispatchImages(workerChs []chan distributorImage) {
	defer p.wg.Done()
	defer func() {
		for _, ch := range workerChs {
			close(ch)
		}
	}()

	var count uint64
	for {
		select {
		case img, ok := <-p.imageCh:
			if !ok {
				return
			}
			target := workerChs[count%uint64(len(workerChs))]
			select {
			case target <- distributorImage{img: img, idx: count}:
			case <-p.stopCh:
				return
			}
			count++
		case <-p.stopCh:
			return
		}
	}
}

func (p *Pipeline) fanOutConfig(workerChs []chan canvas.ImageConfig) {
	defer p.wg.Done()
	for {
		select {
		case cfg, ok := <-p.configCh:
			if !ok {
				return
			}
			for _, ch := range workerChs {
				select {
				case ch <- cfg:
				case <-p.stopCh:
					return
				}
			}
		case <-p.stopCh:
			return
		}
	}
}

func (p *Pipeline) runEncoderWorker(id int, cfg canvas.ImageConfig, imageCh <-chan distributorImage, configCh <-chan canvas.ImageConfig) {
	defer p.wg.Done()
	logger := p.logger.With("encoder_worker", id)

	for {
		select {
		case newCfg, ok := <-configCh:
			if !ok {
				return
			}
			cfg = newCfg
		case di, ok := <-imageCh:
			if !ok {
				return
			}
			cmd, err := canvas.Encode(di.img, cfg, logger)
			if err != nil {
				logger.Warn("dropping frame, encode failed", "idx", di.idx, "error", err)
				continue
			}
			select {
			case p.mergeCh <- encodedFrame{cmd: cmd, idx: di.idx}:
			case <-p.stopCh:
				return
			}
		case <-p.stopCh:
			return
		}
	}
}

func (p *Pipeline) runMerger() {
	defer p.wg.Done()
	var lastForwardedIdx uint64

	for {
		select {
		case f, ok := <-p.mergeCh:
			if !ok {
				return
			}
			if f.idx <= lastForwardedIdx {
				continue // chegada tardia fora de ordem, descartada silenciosamente
			}
			lastForwardedIdx = f.idx
			select {
			case p.cmdCh <- f.cmd:
			case <-p.stopCh:
				return
			}
		case <-p.stopCh:
			return
		}
	}
}

func (p *Pipeline) runBroadcaster() {
	defer p.wg.Done()
	for {
		select {
		case cmd, ok := <-p.cmdCh:
			if !ok {
				return
			}
			if p.limiter != nil {
				p.limiter.Wait(context.Background())
			}
			for _, painter := range p.painters {
				painter.SetCommand(cmd)
			}
		case <-p.stopCh:
			return
		}
	}
}
