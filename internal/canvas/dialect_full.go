// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package canvas

import "image"

// encodeFull serializa cada pixel opaco como uma unidade independente
// "PX <x+ox> <y+oy> <hex>\n". Usado quando nem binário nem offset estão
// habilitados — coordenadas absolutas em todo pixel.
func encodeFull(src *image.RGBA, cfg ImageConfig) ([][]byte, error) {
	b := src.Bounds()
	var units [][]byte

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			p := readPixel(src, x, y)
			if p.A == 0 {
				continue
			}

			buf := make([]byte, 0, 24)
			buf = append(buf, "PX "...)
			buf, err := appendDecimal(buf, p.X+cfg.XOffset)
			if err != nil {
				return nil, err
			}
			buf = append(buf, ' ')
			buf, err = appendDecimal(buf, p.Y+cfg.YOffset)
			if err != nil {
				return nil, err
			}
			buf = append(buf, ' ')
			buf = appendColor(buf, p, cfg.GrayUsage, cfg.AlphaUsage)
			buf = append(buf, '\n')

			units = append(units, buf)
		}
	}

	return units, nil
}

// readPixel lê um Pixel de img na posição (x,y), relativa às Bounds de img.
func readPixel(img *image.RGBA, x, y int) Pixel {
	o := img.PixOffset(x, y)
	s := img.Pix[o : o+4 : o+4]
	return Pixel{
		X: uint32(x - img.Rect.Min.X),
		Y: uint32(y - img.Rect.Min.Y),
		R: s[0], G: s[1], B: s[2], A: s[3],
	}
}
