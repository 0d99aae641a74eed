// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package canvas

import "image"

// offsetCellSize é o tamanho do lado de uma célula do dialeto OFFSET (10x10
// pixels locais por âncora).
const offsetCellSize = 10

// encodeOffset particiona o canvas em células 10x10. Cada célula não-vazia
// vira uma unidade atômica (âncora OFFSET + suas linhas PX); células vazias
// são descartadas. Tratar a célula inteira como uma unidade garante que o
// embaralhamento/particionamento do passo 3 nunca separe pixels de sua âncora.
//
// Nota de ambiguidade (§9): a matemática da âncora é col*10+ox, row*10+oy —
// não col+ox — conforme a versão correta identificada na especificação.
func encodeOffset(src *image.RGBA, cfg ImageConfig) ([][]byte, error) {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()

	cols := (w + offsetCellSize - 1) / offsetCellSize
	rows := (h + offsetCellSize - 1) / offsetCellSize

	var units [][]byte

	for cellRow := 0; cellRow < rows; cellRow++ {
		for cellCol := 0; cellCol < cols; cellCol++ {
			anchorX := uint32(cellCol*offsetCellSize) + cfg.XOffset
			anchorY := uint32(cellRow*offsetCellSize) + cfg.YOffset

			buf := make([]byte, 0, 24)
			buf = append(buf, "OFFSET "...)
			var err error
			buf, err = appendDecimal(buf, anchorX)
			if err != nil {
				return nil, err
			}
			buf = append(buf, ' ')
			buf, err = appendDecimal(buf, anchorY)
			if err != nil {
				return nil, err
			}
			buf = append(buf, '\n')
			anchorLen := len(buf)

			for dy := 0; dy < offsetCellSize; dy++ {
				y := b.Min.Y + cellRow*offsetCellSize + dy
				if y >= b.Max.Y {
					break
				}
				for dx := 0; dx < offsetCellSize; dx++ {
					x := b.Min.X + cellCol*offsetCellSize + dx
					if x >= b.Max.X {
						break
					}

					p := readPixel(src, x, y)
					if p.A == 0 {
						continue
					}

					buf = append(buf, "PX "...)
					buf, err = appendDecimal(buf, uint32(dx))
					if err != nil {
						return nil, err
					}
					buf = append(buf, ' ')
					buf, err = appendDecimal(buf, uint32(dy))
					if err != nil {
						return nil, err
					}
					buf = append(buf, ' ')
					buf = appendColor(buf, p, cfg.GrayUsage, cfg.AlphaUsage)
					buf = append(buf, '\n')
				}
			}

			if len(buf) == anchorLen {
				continue // célula vazia — sem pixels opacos, descarta
			}

			units = append(units, buf)
		}
	}

	return units, nil
}
