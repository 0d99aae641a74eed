// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package manager implementa o protocolo opcional de §4.8: um único nó
// server executa o pipeline de encoding e expõe um listener TCP; cada
// worker conectado recebe primeiro um Target e depois um fluxo de
// Commands já codificados, que injeta diretamente no seu broadcaster
// local via Service.SendCommand.
package manager

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/nishisan-dev/flut/internal/canvas"
	"github.com/nishisan-dev/flut/internal/ferrors"
	"github.com/nishisan-dev/flut/internal/protocol"
	"github.com/nishisan-dev/flut/internal/service"
)

// Server distribui Commands já codificados para uma frota de workers
// conectados, após enviar a cada um o Target recomendado de canvas.
type Server struct {
	logger *slog.Logger
	target protocol.Target

	mu      sync.Mutex
	clients map[net.Conn]struct{}
}

// NewServer cria um Server que anunciará target a cada worker conectado.
func NewServer(target protocol.Target, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		logger:  logger,
		target:  target,
		clients: make(map[net.Conn]struct{}),
	}
}

// Run aceita conexões de workers em ln até ctx ser cancelado, entregando
// a cada um o Target e então encaminhando os Commands lidos de cmdCh.
// Bloqueia até ctx.Done(); ao cancelamento de ctx, Run fecha ln, o que
// libera o Accept em andamento.
func (s *Server) Run(ctx context.Context, ln net.Listener, cmdCh <-chan *canvas.Command) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	go s.broadcastLoop(ctx, cmdCh)

	consecutiveErrors := 0
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				consecutiveErrors++
				s.logger.Error("accepting manager client", "error", err, "consecutive_errors", consecutiveErrors)
				if consecutiveErrors > 5 {
					delay := time.Duration(consecutiveErrors) * 100 * time.Millisecond
					if delay > 5*time.Second {
						delay = 5 * time.Second
					}
					time.Sleep(delay)
				}
				continue
			}
		}
		consecutiveErrors = 0
		go s.onClientAccepted(conn)
	}
}

// onClientAccepted envia o Target de abertura e registra a conexão para
// receber o fluxo de Commands do broadcastLoop.
func (s *Server) onClientAccepted(conn net.Conn) {
	if err := protocol.WriteTarget(conn, s.target); err != nil {
		s.logger.Error("sending target to manager client", "remote", conn.RemoteAddr(), "error", err)
		conn.Close()
		return
	}

	s.mu.Lock()
	s.clients[conn] = struct{}{}
	s.mu.Unlock()

	s.logger.Info("manager client connected", "remote", conn.RemoteAddr())
}

// broadcastLoop lê cmdCh até ser fechado e escreve cada Command em todo
// client conectado, removendo quem falhar a escrita.
func (s *Server) broadcastLoop(ctx context.Context, cmdCh <-chan *canvas.Command) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-cmdCh:
			if !ok {
				return
			}
			chunks := make([][]byte, cmd.Chunks())
			for i := range chunks {
				chunks[i] = cmd.Chunk(i)
			}
			s.forward(chunks)
		}
	}
}

func (s *Server) forward(chunks [][]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.clients {
		if err := protocol.WriteCommand(conn, chunks); err != nil {
			s.logger.Warn("dropping manager client after write error", "remote", conn.RemoteAddr(), "error", err)
			conn.Close()
			delete(s.clients, conn)
		}
	}
}

// Close encerra todas as conexões de cliente atualmente registradas.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.clients {
		conn.Close()
		delete(s.clients, conn)
	}
}

// Client conecta-se a um Server de manager, lê o Target de abertura e em
// seguida injeta cada Command recebido no Service local via
// SendCommand — o lado worker do protocolo de §4.8.
type Client struct {
	conn   net.Conn
	logger *slog.Logger
}

// Dial conecta a addr e lê o Target de abertura.
func Dial(addr string, logger *slog.Logger) (*Client, protocol.Target, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return nil, protocol.Target{}, fmt.Errorf("%w: dialing manager %q: %v", ferrors.ErrIO, addr, err)
	}

	target, err := protocol.ReadTarget(conn)
	if err != nil {
		conn.Close()
		return nil, protocol.Target{}, fmt.Errorf("%w: reading target from manager %q: %v", ferrors.ErrProtocol, addr, err)
	}

	return &Client{conn: conn, logger: logger}, target, nil
}

// Run lê o fluxo de Commands da conexão do manager e injeta cada um no
// Service local via SendCommand, até a conexão ser fechada ou um erro
// de protocolo ocorrer.
func (c *Client) Run(svc *service.Service) error {
	for {
		chunks, err := protocol.ReadCommand(c.conn)
		if err != nil {
			return fmt.Errorf("%w: reading command from manager: %v", ferrors.ErrProtocol, err)
		}
		svc.SendCommand(canvas.NewCommand(chunks))
	}
}

// Close encerra a conexão com o manager.
func (c *Client) Close() error {
	return c.conn.Close()
}
