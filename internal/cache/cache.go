// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package cache implementa um spillover em disco para Commands
// pré-codificados de animações longas demais para caber inteiramente em
// memória (§5). Quadros frios são gravados comprimidos com pgzip e
// recarregados sob demanda (via Get) na próxima passada do chamador sobre
// os frames.
package cache

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/pgzip"
	"github.com/nishisan-dev/flut/internal/canvas"
	"github.com/nishisan-dev/flut/internal/ferrors"
)

// entry descreve um frame admitido no cache: seu arquivo em disco e o
// tamanho comprimido desse arquivo, contado contra maxBytes.
type entry struct {
	path      string
	sizeBytes int64
}

// Cache é um spillover bounded-by-size de Commands pré-codificados,
// indexados por índice de frame. Admissão usa um mutex; o caminho
// quente do broadcaster nunca toca o cache quando o frame já está na
// lista em memória do chamador.
type Cache struct {
	dir      string
	maxBytes int64

	mu        sync.Mutex
	entries   map[int]entry
	order     []int // ordem de admissão, para evicção FIFO
	curBytes  int64
}

// New cria um Cache com spillover em dir, admitindo no máximo maxBytes
// de dados comprimidos antes de começar a evictar as entradas mais
// antigas.
func New(dir string, maxBytes int64) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating cache dir %q: %v", ferrors.ErrConfig, dir, err)
	}
	return &Cache{
		dir:      dir,
		maxBytes: maxBytes,
		entries:  make(map[int]entry),
	}, nil
}

// Put comprime e grava cmd em disco sob idx, evictando as entradas mais
// antigas se necessário para respeitar maxBytes.
func (c *Cache) Put(idx int, cmd *canvas.Command) error {
	data := serializeCommand(cmd)

	path := filepath.Join(c.dir, fmt.Sprintf("frame-%d.gz", idx))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: creating cache file: %v", ferrors.ErrIO, err)
	}
	defer f.Close()

	zw := pgzip.NewWriter(f)
	if _, err := zw.Write(data); err != nil {
		zw.Close()
		return fmt.Errorf("%w: compressing cache entry: %v", ferrors.ErrIO, err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("%w: flushing cache entry: %v", ferrors.ErrIO, err)
	}

	info, statErr := f.Stat()
	var size int64
	if statErr == nil {
		size = info.Size()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.entries[idx]; ok {
		c.curBytes -= old.sizeBytes
		os.Remove(old.path)
	} else {
		c.order = append(c.order, idx)
	}
	c.entries[idx] = entry{path: path, sizeBytes: size}
	c.curBytes += size

	c.evictLocked()
	return nil
}

// evictLocked remove as entradas mais antigas até curBytes <= maxBytes,
// mantendo sempre a entrada mais recente da ordem de admissão.
// O chamador deve segurar c.mu.
func (c *Cache) evictLocked() {
	if c.maxBytes <= 0 {
		return
	}
	for c.curBytes > c.maxBytes && len(c.order) > 1 {
		oldest := c.order[0]
		c.order = c.order[1:]
		if e, ok := c.entries[oldest]; ok {
			c.curBytes -= e.sizeBytes
			os.Remove(e.path)
			delete(c.entries, oldest)
		}
	}
}

// Get recarrega o Command armazenado sob idx, ou (nil, false) se não
// estiver (mais) no cache.
func (c *Cache) Get(idx int) (*canvas.Command, bool, error) {
	c.mu.Lock()
	e, ok := c.entries[idx]
	c.mu.Unlock()
	if !ok {
		return nil, false, nil
	}

	f, err := os.Open(e.path)
	if err != nil {
		return nil, false, fmt.Errorf("%w: opening cache entry: %v", ferrors.ErrIO, err)
	}
	defer f.Close()

	zr, err := pgzip.NewReader(f)
	if err != nil {
		return nil, false, fmt.Errorf("%w: decompressing cache entry: %v", ferrors.ErrIO, err)
	}
	defer zr.Close()

	data, err := io.ReadAll(zr)
	if err != nil {
		return nil, false, fmt.Errorf("%w: reading cache entry: %v", ferrors.ErrIO, err)
	}

	cmd, err := deserializeCommand(data)
	if err != nil {
		return nil, false, err
	}
	return cmd, true, nil
}

// Close remove todas as entradas em disco.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		os.Remove(e.path)
	}
	c.entries = make(map[int]entry)
	c.order = nil
	c.curBytes = 0
	return nil
}

// serializeCommand achata um Command em ChunkCount(4B BE) + por chunk
// Length(4B BE) + bytes — o mesmo esquema usado pelo protocolo de
// manager para listas de chunks.
func serializeCommand(cmd *canvas.Command) []byte {
	var buf bytes.Buffer
	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], uint32(cmd.Chunks()))
	buf.Write(countBuf[:])
	for i := 0; i < cmd.Chunks(); i++ {
		chunk := cmd.Chunk(i)
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(chunk)))
		buf.Write(lenBuf[:])
		buf.Write(chunk)
	}
	return buf.Bytes()
}

func deserializeCommand(data []byte) (*canvas.Command, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("%w: truncated cache entry", ferrors.ErrDecode)
	}
	count := binary.BigEndian.Uint32(data[:4])
	pos := 4
	chunks := make([][]byte, 0, count)
	for i := uint32(0); i < count; i++ {
		if pos+4 > len(data) {
			return nil, fmt.Errorf("%w: truncated cache entry chunk header", ferrors.ErrDecode)
		}
		l := binary.BigEndian.Uint32(data[pos : pos+4])
		pos += 4
		if pos+int(l) > len(data) {
			return nil, fmt.Errorf("%w: truncated cache entry chunk body", ferrors.ErrDecode)
		}
		chunks = append(chunks, append([]byte(nil), data[pos:pos+int(l)]...))
		pos += int(l)
	}
	return canvas.NewCommand(chunks), nil
}
