// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package framesrc reconhece quadros bitmap concatenados em um stream
// (tipicamente stdin) e os decodifica em *image.RGBA, prontos para o
// encoder. Também spawna um transcoder externo para entradas de vídeo e
// monitora memória disponível durante extrações offline.
package framesrc

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os/exec"

	"github.com/nishisan-dev/flut/internal/ferrors"
	"github.com/shirou/gopsutil/v3/mem"
	"golang.org/x/image/bmp"
)

// bmMagic é a assinatura de 2 bytes que abre um arquivo bitmap.
var bmMagic = []byte("BM")

// minRemainingBytes é o piso de memória livre abaixo do qual a extração
// offline de vídeo é abortada (§5: "aborts extraction below 1 GiB
// remaining").
const minRemainingBytes = 1 << 30

// FrameSource emite frames bitmap decodificados a partir de um stream
// bruto (stdin ou a saída de um transcoder externo).
type FrameSource struct {
	r          *bufio.Reader
	logger     *slog.Logger
	continuous bool
	reopen     func() (io.Reader, error)
}

// New envolve r em um FrameSource. continuous controla se, ao encontrar
// EOF, o source tenta reabrir via reopen (--continuous); reopen pode ser
// nil quando continuous é false.
func New(r io.Reader, logger *slog.Logger, continuous bool, reopen func() (io.Reader, error)) *FrameSource {
	return &FrameSource{
		r:          bufio.NewReaderSize(r, 1<<20),
		logger:     logger,
		continuous: continuous,
		reopen:     reopen,
	}
}

// NextFrame localiza a próxima assinatura "BM", lê o tamanho de arquivo
// little-endian no offset 2 do cabeçalho, acumula exatamente esses bytes,
// e decodifica o resultado como uma imagem bitmap. Lixo anterior ao
// próximo "BM" é descartado. Retorna io.EOF quando o stream acaba e
// continuous é false ou reopen é nil; se reopen falha, retorna um erro
// envolvendo ferrors.ErrIO.
func (fs *FrameSource) NextFrame() (*image.RGBA, error) {
	for {
		raw, err := fs.readOneBitmap()
		if err == nil {
			img, decErr := decodeBMP(raw)
			if decErr != nil {
				fs.logger.Warn("discarding frame, bmp decode failed", "error", decErr)
				continue
			}
			return img, nil
		}
		if err != io.EOF {
			return nil, err
		}
		if !fs.continuous || fs.reopen == nil {
			return nil, io.EOF
		}
		next, reopenErr := fs.reopen()
		if reopenErr != nil {
			return nil, fmt.Errorf("%w: reopening stdin: %v", ferrors.ErrIO, reopenErr)
		}
		fs.r = bufio.NewReaderSize(next, 1<<20)
	}
}

// readOneBitmap descarta bytes até achar "BM" e então lê exatamente o
// tamanho declarado no cabeçalho bitmap.
func (fs *FrameSource) readOneBitmap() ([]byte, error) {
	if err := fs.discardUntilMagic(); err != nil {
		return nil, err
	}

	header := make([]byte, 6)
	header[0], header[1] = 'B', 'M'
	if _, err := io.ReadFull(fs.r, header[2:]); err != nil {
		return nil, translateReadErr(err)
	}

	size := binary.LittleEndian.Uint32(header[2:6])
	if size < 6 {
		return nil, fmt.Errorf("%w: implausible bitmap size %d", ferrors.ErrDecode, size)
	}

	buf := make([]byte, size)
	copy(buf, header)
	if _, err := io.ReadFull(fs.r, buf[6:]); err != nil {
		return nil, translateReadErr(err)
	}
	return buf, nil
}

func translateReadErr(err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return io.EOF
	}
	return fmt.Errorf("%w: reading frame stream: %v", ferrors.ErrIO, err)
}

// discardUntilMagic consome bytes do stream até posicionar o leitor logo
// após uma ocorrência de "BM", deixando-o pronto para ler o restante do
// cabeçalho.
func (fs *FrameSource) discardUntilMagic() error {
	matched := 0
	for {
		b, err := fs.r.ReadByte()
		if err != nil {
			return translateReadErr(err)
		}
		if b == bmMagic[matched] {
			matched++
			if matched == len(bmMagic) {
				return nil
			}
		} else {
			matched = 0
			if b == bmMagic[0] {
				matched = 1
			}
		}
	}
}

// decodeBMP decodifica um bitmap bruto em uma *image.RGBA (convertendo
// qualquer formato de pixel de origem para RGBA8).
func decodeBMP(raw []byte) (*image.RGBA, error) {
	img, err := bmp.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ferrors.ErrDecode, err)
	}
	rgba := image.NewRGBA(img.Bounds())
	for y := img.Bounds().Min.Y; y < img.Bounds().Max.Y; y++ {
		for x := img.Bounds().Min.X; x < img.Bounds().Max.X; x++ {
			rgba.Set(x, y, img.At(x, y))
		}
	}
	return rgba, nil
}

// SpawnTranscoder inicia um processo externo que decodifica path (um
// arquivo de vídeo, --video) em um stream de frames bitmap na saída
// padrão, que por sua vez é consumido por New/NextFrame exatamente como
// stdin. O binário do transcoder é localizado via PATH; nenhum é
// embarcado.
func SpawnTranscoder(path string, transcoderBin string, args []string) (io.ReadCloser, *exec.Cmd, error) {
	cmdArgs := append([]string{path}, args...)
	cmd := exec.Command(transcoderBin, cmdArgs...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: creating transcoder stdout pipe: %v", ferrors.ErrConfig, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("%w: starting transcoder %q: %v", ferrors.ErrConfig, transcoderBin, err)
	}
	return stdout, cmd, nil
}

// CheckMemoryGuard reporta um erro se a memória disponível do sistema
// está abaixo de minRemainingBytes, interrompendo extrações offline de
// vídeo antes que o OOM killer intervenha.
func CheckMemoryGuard() error {
	v, err := mem.VirtualMemory()
	if err != nil {
		return fmt.Errorf("%w: reading system memory: %v", ferrors.ErrIO, err)
	}
	if v.Available < minRemainingBytes {
		return fmt.Errorf("%w: only %d bytes available, below the %d byte floor", ferrors.ErrCapacity, v.Available, uint64(minRemainingBytes))
	}
	return nil
}
