// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package canvas implementa o modelo de dados e o encoder do pixelflut:
// Pixel, ImageConfig, Command e os três dialetos de serialização (full,
// offset, binário) descritos no protocolo.
package canvas

import "fmt"

// Pixel é a tupla (x, y, r, g, b, a). a=0 significa "pular este pixel".
type Pixel struct {
	X, Y    uint32
	R, G, B uint8
	A       uint8
}

const hexDigits = "0123456789abcdef"

// appendHex2 escreve um byte como 2 dígitos hex minúsculos em buf, sem alocar.
func appendHex2(buf []byte, v uint8) []byte {
	return append(buf, hexDigits[v>>4], hexDigits[v&0x0f])
}

// appendColor escreve a representação hex da cor de um pixel seguindo a
// política de cinza/alfa: 2 chars (cinza, a=255), 6 chars (rgb) ou 8 chars
// (rgba). Pixels totalmente transparentes (a=0) nunca chegam aqui — são
// descartados antes pelo chamador.
func appendColor(buf []byte, p Pixel, grayUsage, alphaUsage bool) []byte {
	if grayUsage && (!alphaUsage || p.A == 255) && p.R == p.G && p.G == p.B {
		return appendHex2(buf, p.R)
	}
	buf = appendHex2(buf, p.R)
	buf = appendHex2(buf, p.G)
	buf = appendHex2(buf, p.B)
	if alphaUsage && p.A != 255 {
		buf = appendHex2(buf, p.A)
	}
	return buf
}

// maxCoord é o maior valor de coordenada que o formatador decimal aceita.
// Coordenadas >= maxCoord falham per §4.4 (1-4 dígitos).
const maxCoord = 10000

// appendDecimal escreve v em base 10 (1 a 4 dígitos) em buf usando um buffer
// fixo na pilha, sem alocar. Falha para v >= maxCoord.
func appendDecimal(buf []byte, v uint32) ([]byte, error) {
	if v >= maxCoord {
		return buf, fmt.Errorf("canvas: coordinate %d out of range (must be < %d)", v, maxCoord)
	}
	var tmp [4]byte
	n := len(tmp)
	if v == 0 {
		n--
		tmp[n] = '0'
	} else {
		for v > 0 {
			n--
			tmp[n] = byte('0' + v%10)
			v /= 10
		}
	}
	return append(buf, tmp[n:]...), nil
}
