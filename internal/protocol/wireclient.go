// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package protocol implementa o protocolo de linha (texto/binário) do
// pixelflut sobre TCP, e o formato de quadros do protocolo de manager (§6).
package protocol

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"

	"github.com/nishisan-dev/flut/internal/ferrors"
)

// pxZeroZeroSentinel é o eco usado por read_help para saber onde o texto de
// ajuda termina — o client sempre envia "PX 0 0" logo depois de "HELP".
const pxZeroZeroSentinel = "PX 0 0"

// WireClient possui um socket bidirecional com buffer sobre uma conexão TCP.
// send_pixel/flush formam o caminho quente de escrita; os demais métodos são
// usados pelo feature detector e pelo leitor auxiliar do façade de serviço.
type WireClient struct {
	conn net.Conn
	w    *bufio.Writer
	r    *bufio.Reader

	lastErr error
}

// NewWireClient envolve conn em um WireClient com buffers de escrita/leitura.
func NewWireClient(conn net.Conn) *WireClient {
	return &WireClient{
		conn: conn,
		w:    bufio.NewWriterSize(conn, 256*1024),
		r:    bufio.NewReaderSize(conn, 64*1024),
	}
}

// Conn retorna a conexão TCP subjacente.
func (c *WireClient) Conn() net.Conn {
	return c.conn
}

// SendPixel anexa bytes brutos de comando ao buffer de escrita. Não força
// flush — o chamador decide quando enviar à rede.
func (c *WireClient) SendPixel(b []byte) error {
	if _, err := c.w.Write(b); err != nil {
		c.lastErr = err
		return fmt.Errorf("%w: writing to buffer: %v", ferrors.ErrIO, err)
	}
	return nil
}

// Flush força o buffer de escrita para o socket.
func (c *WireClient) Flush() error {
	if err := c.w.Flush(); err != nil {
		c.lastErr = err
		return fmt.Errorf("%w: flushing socket: %v", ferrors.ErrIO, err)
	}
	return nil
}

// ReadScreenSize escreve "SIZE\n" e interpreta "SIZE <w> <h>\n" em base 10.
func (c *WireClient) ReadScreenSize() (width, height int, err error) {
	if err := c.SendPixel([]byte("SIZE\n")); err != nil {
		return 0, 0, err
	}
	if err := c.Flush(); err != nil {
		return 0, 0, err
	}

	line, err := c.readLine()
	if err != nil {
		return 0, 0, err
	}

	fields := strings.Fields(line)
	if len(fields) != 3 || fields[0] != "SIZE" {
		return 0, 0, fmt.Errorf("%w: unparseable SIZE reply %q", ferrors.ErrProtocol, line)
	}
	width, werr := strconv.Atoi(fields[1])
	height, herr := strconv.Atoi(fields[2])
	if werr != nil || herr != nil {
		return 0, 0, fmt.Errorf("%w: non-numeric SIZE reply %q", ferrors.ErrProtocol, line)
	}
	return width, height, nil
}

// ReadHelp escreve "HELP\nPX 0 0\n" e acumula linhas até encontrar o eco
// sentinela (uma linha começando com "PX 0 0"), retornando o texto acumulado
// (sem incluir a linha sentinela).
func (c *WireClient) ReadHelp() (string, error) {
	if err := c.SendPixel([]byte("HELP\nPX 0 0\n")); err != nil {
		return "", err
	}
	if err := c.Flush(); err != nil {
		return "", err
	}

	var sb strings.Builder
	for {
		line, err := c.readLine()
		if err != nil {
			return "", err
		}
		if strings.HasPrefix(line, pxZeroZeroSentinel) {
			return sb.String(), nil
		}
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
}

// Point é uma coordenada (x,y) para uma leitura de pixel via read_pixel_multi.
type Point struct {
	X, Y int
}

// PixelColor é a cor 24-bit decodificada da resposta de leitura de um pixel
// (o servidor omite alfa na leitura).
type PixelColor struct {
	R, G, B uint8
}

// ReadPixelMulti escreve "PX x y\n" para cada ponto e então interpreta uma
// resposta "PX x y <hex>" por ponto esperado, na mesma ordem.
func (c *WireClient) ReadPixelMulti(points []Point) ([]PixelColor, error) {
	for _, p := range points {
		if err := c.SendPixel([]byte(fmt.Sprintf("PX %d %d\n", p.X, p.Y))); err != nil {
			return nil, err
		}
	}
	if err := c.Flush(); err != nil {
		return nil, err
	}

	out := make([]PixelColor, len(points))
	for i := range points {
		line, err := c.readLine()
		if err != nil {
			return nil, err
		}
		fields := strings.Fields(line)
		if len(fields) != 4 || fields[0] != "PX" {
			return nil, fmt.Errorf("%w: unparseable PX reply %q", ferrors.ErrProtocol, line)
		}
		hex := fields[3]
		if len(hex) < 6 {
			return nil, fmt.Errorf("%w: short color in PX reply %q", ferrors.ErrProtocol, line)
		}
		rgb, err := parseHex24(hex[:6])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ferrors.ErrProtocol, err)
		}
		out[i] = rgb
	}
	return out, nil
}

// IsError reporta se alguma operação anterior observou um erro de I/O no
// socket. Usado pelo façade de serviço para decidir se recicla o client
// auxiliar em vez de reutilizá-lo.
func (c *WireClient) IsError() bool {
	return c.lastErr != nil
}

// Close fecha a conexão subjacente.
func (c *WireClient) Close() error {
	return c.conn.Close()
}

func (c *WireClient) readLine() (string, error) {
	line, err := c.r.ReadString('\n')
	if err != nil {
		if err == io.EOF && line != "" {
			return strings.TrimRight(line, "\r\n"), nil
		}
		c.lastErr = err
		return "", fmt.Errorf("%w: reading line: %v", ferrors.ErrIO, err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func parseHex24(hex string) (PixelColor, error) {
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return PixelColor{}, fmt.Errorf("invalid hex color %q: %w", hex, err)
	}
	return PixelColor{
		R: uint8(v >> 16),
		G: uint8(v >> 8),
		B: uint8(v),
	}, nil
}
