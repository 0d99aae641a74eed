// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package canvas

import (
	"fmt"
	"image"
	"log/slog"
)

// Encode transforma src (já convertida para RGBA8 pelo chamador) em um
// Command pronto para envio, seguindo a política de cfg: geometria (passo
// 1), seleção de dialeto (passo 2) e embaralhamento/particionamento (passo
// 3). logger pode ser nil.
func Encode(src *image.RGBA, cfg ImageConfig, logger *slog.Logger) (*Command, error) {
	if logger == nil {
		logger = slog.Default()
	}

	geo := applyGeometry(src, cfg, logger)

	var (
		units [][]byte
		err   error
	)

	switch cfg.SelectDialect() {
	case DialectBinary:
		units, err = encodeBinary(geo, cfg)
	case DialectOffset:
		units, err = encodeOffset(geo, cfg)
	default:
		units, err = encodeFull(geo, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("canvas: encoding image: %w", err)
	}

	shuffleUnits(units, cfg.Shuffle)
	chunks := chunkUnits(units, cfg.normalizedChunks())

	cmd := NewCommand(chunks)

	bounds := geo.Bounds()
	pixelCount := bounds.Dx() * bounds.Dy()
	if pixelCount > 0 {
		logger.Debug("encoded image",
			"dialect", cfg.SelectDialect(),
			"chunks", len(chunks),
			"bytes", cmd.TotalBytes(),
			"bytes_per_pixel", float64(cmd.TotalBytes())/float64(pixelCount),
		)
	}

	return cmd, nil
}
