// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package canvas

import "image"

// encodeBinary serializa cada pixel opaco no dialeto CoordLERGBA: 10 bytes
// "P B x_lo x_hi y_lo y_hi r g b a", coordenadas u16 little-endian. Uma
// unidade por pixel.
func encodeBinary(src *image.RGBA, cfg ImageConfig) ([][]byte, error) {
	b := src.Bounds()
	var units [][]byte

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			p := readPixel(src, x, y)
			if p.A == 0 {
				continue
			}

			px := p.X + cfg.XOffset
			py := p.Y + cfg.YOffset
			if px > 0xffff || py > 0xffff {
				continue // fora do alcance de u16, não representável no dialeto binário
			}

			buf := make([]byte, 10)
			buf[0] = 'P'
			buf[1] = 'B'
			buf[2] = byte(px)
			buf[3] = byte(px >> 8)
			buf[4] = byte(py)
			buf[5] = byte(py >> 8)
			buf[6] = p.R
			buf[7] = p.G
			buf[8] = p.B
			buf[9] = p.A

			units = append(units, buf)
		}
	}

	return units, nil
}
