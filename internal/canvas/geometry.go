// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package canvas

import (
	"image"
	"log/slog"

	"golang.org/x/image/draw"
)

// applyGeometry implementa o passo 1 do §4.4: recorte ou redimensionamento
// conforme ImageConfig.Width/Height. logger pode ser nil (usa-se
// slog.Default() nesse caso) — é usado apenas para o warning de dimensão
// parcial.
func applyGeometry(src *image.RGBA, cfg ImageConfig, logger *slog.Logger) *image.RGBA {
	if logger == nil {
		logger = slog.Default()
	}

	sb := src.Bounds()
	sw, sh := uint32(sb.Dx()), uint32(sb.Dy())

	if cfg.Width == nil && cfg.Height == nil {
		return src
	}

	if cfg.Width == nil || cfg.Height == nil {
		logger.Warn("imageconfig sets only one of width/height, geometry left unchanged",
			"width_set", cfg.Width != nil, "height_set", cfg.Height != nil)
		return src
	}

	w, h := *cfg.Width, *cfg.Height

	if w == sw && h == sh {
		return src
	}

	if w >= sw && h >= sh && !cfg.Resize {
		return src
	}

	if cfg.Resize {
		return resizeTriangle(src, int(w), int(h))
	}

	return cropTo(src, int(w), int(h))
}

// resizeTriangle redimensiona src para exatamente w x h usando um filtro
// triangular (bilinear aproximado), conforme §4.4 "resize-exact".
func resizeTriangle(src *image.RGBA, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

// cropTo recorta src de (0,0) até (w,h). Se w ou h excedem as dimensões de
// origem, a área fora do limite de origem fica com o zero-value (transparente).
func cropTo(src *image.RGBA, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Src)
	return dst
}
