// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package paint implementa o painter: uma goroutine de longa duração que
// possui uma conexão com o servidor de pixelflut, repete o envio do Command
// corrente e reconecta com backoff quando a escrita falha.
package paint

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nishisan-dev/flut/internal/canvas"
	"github.com/nishisan-dev/flut/internal/host"
	"github.com/nishisan-dev/flut/internal/protocol"
)

// reconnectBackoff é o intervalo de espera entre tentativas de reconexão
// de um painter (§4.5).
const reconnectBackoff = 5 * time.Second

// State é o estado público e consultável de um painter, atualizado
// atomicamente a partir da goroutine interna.
type State int32

const (
	StateConnecting State = iota
	StatePainting
	StateReconnecting
	StateStopped
)

// Painter possui uma conexão com o servidor e repete o chunk de índice
// (painterID mod chunkCount) do Command corrente, avançando o índice em
// +1 mod chunkCount a cada ciclo completo — round robin sobre as
// partições do comando.
type Painter struct {
	id      int
	h       *host.Host
	logger  *slog.Logger
	command atomic.Pointer[canvas.Command]
	state   atomic.Int32

	chunkIdx    int
	stopCh      chan struct{}
	doneCh      chan struct{}
	bytesPainted atomic.Uint64
}

// New cria um Painter ainda não iniciado. id determina o deslocamento
// inicial round-robin entre as partições do Command.
func New(id int, h *host.Host, logger *slog.Logger) *Painter {
	p := &Painter{
		id:       id,
		h:        h,
		logger:   logger.With("painter", id),
		chunkIdx: id,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	p.state.Store(int32(StateConnecting))
	return p
}

// SetCommand substitui o Command em desenho. Thread-safe; efetivo no
// próximo ciclo de escrita do painter.
func (p *Painter) SetCommand(cmd *canvas.Command) {
	p.command.Store(cmd)
}

// State retorna o estado atual do painter.
func (p *Painter) State() State {
	return State(p.state.Load())
}

// BytesPainted retorna o total de bytes escritos no socket desde o início.
func (p *Painter) BytesPainted() uint64 {
	return p.bytesPainted.Load()
}

// Run executa o loop principal do painter até Stop ser chamado. Deve ser
// invocado em sua própria goroutine.
func (p *Painter) Run() {
	defer close(p.doneCh)
	defer p.state.Store(int32(StateStopped))

	for {
		select {
		case <-p.stopCh:
			return
		default:
		}

		conn, err := p.h.NewStream()
		if err != nil {
			p.logger.Warn("connect failed, backing off", "error", err, "backoff", reconnectBackoff)
			p.state.Store(int32(StateReconnecting))
			if p.sleepOrStop(reconnectBackoff) {
				return
			}
			continue
		}

		wc := protocol.NewWireClient(conn)
		p.state.Store(int32(StatePainting))
		if p.paintLoop(wc) {
			wc.Close()
			return
		}
		wc.Close()
		p.state.Store(int32(StateReconnecting))
		if p.sleepOrStop(reconnectBackoff) {
			return
		}
	}
}

// paintLoop escreve ciclicamente o chunk corrente até um erro de I/O ou
// sinal de parada. Retorna true se o painter deve parar completamente.
func (p *Painter) paintLoop(wc *protocol.WireClient) (stop bool) {
	for {
		select {
		case <-p.stopCh:
			return true
		default:
		}

		cmd := p.command.Load()
		if cmd == nil || cmd.Chunks() == 0 {
			if p.sleepOrStop(100 * time.Millisecond) {
				return true
			}
			continue
		}

		idx := p.chunkIdx % cmd.Chunks()
		chunk := cmd.Chunk(idx)
		p.chunkIdx = (p.chunkIdx + 1) % cmd.Chunks()

		if len(chunk) > 0 {
			if err := wc.SendPixel(chunk); err != nil {
				p.logger.Warn("write failed, will reconnect", "error", err)
				return false
			}
		}
		if err := wc.Flush(); err != nil {
			p.logger.Warn("flush failed, will reconnect", "error", err)
			return false
		}
		p.bytesPainted.Add(uint64(len(chunk)))
	}
}

// sleepOrStop aguarda d ou o sinal de parada, o que ocorrer primeiro.
// Retorna true se interrompido por Stop.
func (p *Painter) sleepOrStop(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-p.stopCh:
		return true
	case <-t.C:
		return false
	}
}

// Stop sinaliza o painter para parar e bloqueia até que Run retorne.
func (p *Painter) Stop() {
	select {
	case <-p.stopCh:
	default:
		close(p.stopCh)
	}
	<-p.doneCh
}
