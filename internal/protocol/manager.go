// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"github.com/klauspost/compress/zstd"
	"github.com/nishisan-dev/flut/internal/ferrors"
)

// Message kinds que prefixam o payload descomprimido de um frame de manager.
const (
	KindTarget  byte = 0x01
	KindCommand byte = 0x02
)

// maxFrameLen evita que um length prefix corrompido faça o reader alocar
// um buffer absurdo.
const maxFrameLen = 256 * 1024 * 1024

// Target é enviado pelo server de manager logo após aceitar uma conexão de
// worker: endereços do canvas, porta e contagem recomendada de painters.
type Target struct {
	Addresses []net.IP
	Port      uint16
	Threads   uint64
}

// WriteFrame escreve um frame de manager: [Length uint32 BE][payload
// comprimido com zstd]. payload já deve conter o byte de Kind à frente.
func WriteFrame(w io.Writer, payload []byte) error {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return fmt.Errorf("creating zstd encoder: %w", err)
	}
	defer enc.Close()

	compressed := enc.EncodeAll(payload, nil)

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(compressed)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("%w: writing frame length: %v", ferrors.ErrIO, err)
	}
	if _, err := w.Write(compressed); err != nil {
		return fmt.Errorf("%w: writing frame payload: %v", ferrors.ErrIO, err)
	}
	return nil
}

// ReadFrame lê um frame de manager e retorna o payload descomprimido
// (incluindo o byte de Kind à frente).
func ReadFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("%w: reading frame length: %v", ferrors.ErrIO, err)
	}
	length := binary.BigEndian.Uint32(lenBuf[:])
	if length == 0 || length > maxFrameLen {
		return nil, fmt.Errorf("%w: implausible frame length %d", ferrors.ErrProtocol, length)
	}

	compressed := make([]byte, length)
	if _, err := io.ReadFull(r, compressed); err != nil {
		return nil, fmt.Errorf("%w: reading frame payload: %v", ferrors.ErrIO, err)
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	defer dec.Close()

	payload, err := dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: decompressing frame: %v", ferrors.ErrProtocol, err)
	}
	return payload, nil
}

// EncodeTarget serializa um Target: Kind(1B) AddrCount(1B) then per address
// Len(1B) + bytes(4 or 16), Port(2B BE), Threads(8B BE).
func EncodeTarget(t Target) []byte {
	buf := []byte{KindTarget, byte(len(t.Addresses))}
	for _, ip := range t.Addresses {
		b4 := ip.To4()
		if b4 != nil {
			buf = append(buf, 4)
			buf = append(buf, b4...)
			continue
		}
		b16 := ip.To16()
		buf = append(buf, 16)
		buf = append(buf, b16...)
	}
	var tail [10]byte
	binary.BigEndian.PutUint16(tail[0:2], t.Port)
	binary.BigEndian.PutUint64(tail[2:10], t.Threads)
	return append(buf, tail[:]...)
}

// DecodeTarget interpreta um payload produzido por EncodeTarget.
func DecodeTarget(payload []byte) (Target, error) {
	if len(payload) < 2 || payload[0] != KindTarget {
		return Target{}, fmt.Errorf("%w: not a Target frame", ferrors.ErrProtocol)
	}
	count := int(payload[1])
	pos := 2
	addrs := make([]net.IP, 0, count)
	for i := 0; i < count; i++ {
		if pos >= len(payload) {
			return Target{}, fmt.Errorf("%w: truncated Target address list", ferrors.ErrProtocol)
		}
		l := int(payload[pos])
		pos++
		if pos+l > len(payload) {
			return Target{}, fmt.Errorf("%w: truncated Target address", ferrors.ErrProtocol)
		}
		addrs = append(addrs, net.IP(append([]byte(nil), payload[pos:pos+l]...)))
		pos += l
	}
	if pos+10 > len(payload) {
		return Target{}, fmt.Errorf("%w: truncated Target trailer", ferrors.ErrProtocol)
	}
	port := binary.BigEndian.Uint16(payload[pos : pos+2])
	threads := binary.BigEndian.Uint64(payload[pos+2 : pos+10])
	return Target{Addresses: addrs, Port: port, Threads: threads}, nil
}

// EncodeCommand serializa list<list<u8>>: Kind(1B) ChunkCount(4B BE) then
// per chunk Length(4B BE) + bytes.
func EncodeCommand(chunks [][]byte) []byte {
	total := 1 + 4
	for _, c := range chunks {
		total += 4 + len(c)
	}
	buf := make([]byte, 0, total)
	buf = append(buf, KindCommand)
	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], uint32(len(chunks)))
	buf = append(buf, countBuf[:]...)
	for _, c := range chunks {
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(c)))
		buf = append(buf, lenBuf[:]...)
		buf = append(buf, c...)
	}
	return buf
}

// DecodeCommand interpreta um payload produzido por EncodeCommand.
func DecodeCommand(payload []byte) ([][]byte, error) {
	if len(payload) < 5 || payload[0] != KindCommand {
		return nil, fmt.Errorf("%w: not a Command frame", ferrors.ErrProtocol)
	}
	count := binary.BigEndian.Uint32(payload[1:5])
	pos := 5
	chunks := make([][]byte, 0, count)
	for i := uint32(0); i < count; i++ {
		if pos+4 > len(payload) {
			return nil, fmt.Errorf("%w: truncated Command chunk header", ferrors.ErrProtocol)
		}
		l := binary.BigEndian.Uint32(payload[pos : pos+4])
		pos += 4
		if pos+int(l) > len(payload) {
			return nil, fmt.Errorf("%w: truncated Command chunk body", ferrors.ErrProtocol)
		}
		chunks = append(chunks, append([]byte(nil), payload[pos:pos+int(l)]...))
		pos += int(l)
	}
	return chunks, nil
}

// WriteTarget escreve um frame de Target.
func WriteTarget(w io.Writer, t Target) error {
	return WriteFrame(w, EncodeTarget(t))
}

// ReadTarget lê e decodifica um frame de Target.
func ReadTarget(r io.Reader) (Target, error) {
	payload, err := ReadFrame(r)
	if err != nil {
		return Target{}, err
	}
	return DecodeTarget(payload)
}

// WriteCommand escreve um frame de Command.
func WriteCommand(w io.Writer, chunks [][]byte) error {
	return WriteFrame(w, EncodeCommand(chunks))
}

// ReadCommand lê e decodifica um frame de Command.
func ReadCommand(r io.Reader) ([][]byte, error) {
	payload, err := ReadFrame(r)
	if err != nil {
		return nil, err
	}
	return DecodeCommand(payload)
}
