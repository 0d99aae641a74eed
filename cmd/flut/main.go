// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nishisan-dev/flut/internal/cache"
	"github.com/nishisan-dev/flut/internal/canvas"
	"github.com/nishisan-dev/flut/internal/config"
	"github.com/nishisan-dev/flut/internal/detect"
	"github.com/nishisan-dev/flut/internal/framesrc"
	"github.com/nishisan-dev/flut/internal/host"
	"github.com/nishisan-dev/flut/internal/imgsrc"
	"github.com/nishisan-dev/flut/internal/logging"
	"github.com/nishisan-dev/flut/internal/manager"
	"github.com/nishisan-dev/flut/internal/protocol"
	"github.com/nishisan-dev/flut/internal/service"
)

func main() {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing arguments: %v\n", err)
		os.Exit(1)
	}

	logger, logCloser := logging.NewLogger(cfg.LogLevel, cfg.LogFormat, "")
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.FlutConfig, logger *slog.Logger) error {
	if cfg.ListenManager {
		return runManagerWorker(ctx, cfg, logger)
	}

	h, err := host.Resolve(cfg.Host, cfg.BindAddr)
	if err != nil {
		return fmt.Errorf("resolving host: %w", err)
	}
	if dscp, derr := host.ParseDSCP(cfg.DSCP); derr == nil {
		h.DSCP = dscp
	}

	imgCfg := buildImageConfig(cfg)

	if cfg.FeatureDetection {
		applyDetectedFeatures(ctx, h, cfg, &imgCfg, logger)
	}

	svc, err := service.Build(service.Options{
		Host:          h,
		PainterCount:  cfg.PainterCount,
		Workers:       cfg.Workers,
		ChannelLimit:  0,
		InitialConfig: imgCfg,
		FPS:           cfg.FPS,
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("building service: %w", err)
	}
	svc.Start()

	var mgrServer *manager.Server
	if cfg.ServeManagerPort != 0 {
		mgrServer, err = startManagerServer(ctx, cfg, h, logger)
		if err != nil {
			svc.Stop()
			return err
		}
		defer mgrServer.Close()
	}

	var c *cache.Cache
	if cfg.CacheDir != "" {
		c, err = cache.New(cfg.CacheDir, cfg.CacheMaxBytes)
		if err != nil {
			svc.Stop()
			return fmt.Errorf("opening frame cache: %w", err)
		}
		defer c.Close()
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		svc.Stop()
	}()

	if err := pumpFrames(ctx, cfg, svc, c, imgCfg, logger); err != nil {
		svc.Stop()
		return err
	}

	svc.Join()
	return nil
}

// buildImageConfig traduz as flags de política do encoder de cfg em um
// canvas.ImageConfig inicial, antes de qualquer ajuste vindo da
// detecção de features.
func buildImageConfig(cfg *config.FlutConfig) canvas.ImageConfig {
	ic := canvas.ImageConfig{
		Width:       cfg.Width,
		Height:      cfg.Height,
		XOffset:     cfg.XOffset,
		YOffset:     cfg.YOffset,
		OffsetUsage: cfg.ForceOffset,
		GrayUsage:   cfg.ForceGray,
		AlphaUsage:  cfg.ForceAlpha,
		Shuffle:     cfg.Shuffle,
		Resize:      cfg.Resize,
		Chunks:      cfg.PainterCount,
	}
	if cfg.ForceBinary {
		d := canvas.DialectCoordLERGBA
		ic.Binary = &d
	}
	return ic
}

// applyDetectedFeatures sonda o servidor uma vez e, quando o chamador não
// forçou um dialeto explicitamente via flag, adota o que o probe
// descobriu — e, se --redetect-interval foi fornecido, mantém um
// Watcher re-sondando em background pelo resto do processo.
func applyDetectedFeatures(ctx context.Context, h *host.Host, cfg *config.FlutConfig, imgCfg *canvas.ImageConfig, logger *slog.Logger) {
	dial := func() (*protocol.WireClient, error) {
		conn, err := h.NewStream()
		if err != nil {
			return nil, err
		}
		return protocol.NewWireClient(conn), nil
	}

	watcher := detect.NewWatcher(logger, dial)
	features, err := watcher.ProbeOnce(ctx)
	if err != nil {
		logger.Warn("feature detection failed, using flag-specified policy", "error", err)
		return
	}

	if !cfg.ForceOffset && !cfg.ForceGray && !cfg.ForceBinary {
		imgCfg.OffsetUsage = features.Offset
		imgCfg.GrayUsage = features.Gray
		if features.Binary {
			d := canvas.DialectCoordLERGBA
			imgCfg.Binary = &d
		}
	}

	if cfg.RedetectInterval != "" {
		if err := watcher.StartRedetect(cfg.RedetectInterval); err != nil {
			logger.Warn("invalid redetect-interval, periodic re-probe disabled", "error", err)
		}
	}
}

// pumpFrames decodifica cada fonte de imagem de cfg.Images (ou, em modo
// --video, os frames extraídos por um transcoder externo) e os envia ao
// Service até ctx ser cancelado ou as fontes se esgotarem. Quando um
// Cache foi aberto (--cache-dir), cada frame é codificado uma única vez
// e as passadas seguintes (sob --continuous) reproduzem o Command já
// comprimido em disco em vez de recarregar e recodificar a imagem.
func pumpFrames(ctx context.Context, cfg *config.FlutConfig, svc *service.Service, c *cache.Cache, imgCfg canvas.ImageConfig, logger *slog.Logger) error {
	if cfg.ServeManagerPort != 0 && len(cfg.Images) == 0 {
		// Servidor de manager puro: apenas encaminha os Commands já
		// encodados pelo próprio pipeline local; nenhuma fonte de imagem
		// própria é necessária além do que SendCommand já recebe do
		// broadcaster local.
		<-ctx.Done()
		return nil
	}

	if cfg.Video {
		return pumpVideo(ctx, cfg, svc, logger)
	}

	sendFrame := func(idx int, path string) error {
		if c != nil {
			if cmd, ok, err := c.Get(idx); err == nil && ok {
				svc.SendCommand(cmd)
				return nil
			}
		}

		if err := framesrc.CheckMemoryGuard(); err != nil {
			logger.Warn("memory guard tripped, skipping frame", "error", err)
			return nil
		}

		img, err := imgsrc.Load(ctx, path)
		if err != nil {
			logger.Error("loading image", "path", path, "error", err)
			return nil
		}

		if c == nil {
			svc.SendImage(img)
			return nil
		}

		cmd, err := canvas.Encode(img, imgCfg, logger)
		if err != nil {
			logger.Error("encoding frame for cache", "path", path, "error", err)
			return nil
		}
		if err := c.Put(idx, cmd); err != nil {
			logger.Warn("caching encoded frame", "path", path, "error", err)
		}
		svc.SendCommand(cmd)
		return nil
	}

	for {
		for idx, path := range cfg.Images {
			select {
			case <-ctx.Done():
				return nil
			default:
			}

			if err := sendFrame(idx, path); err != nil {
				return err
			}

			if cfg.FPS > 0 && len(cfg.Images) > 1 {
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(time.Duration(float64(time.Second) / cfg.FPS)):
				}
			}
		}

		if !cfg.Continuous {
			return nil
		}
	}
}

// pumpVideo trata o único argumento de imagem como um caminho de mídia a
// ser transcodificado externamente para um fluxo de bitmaps consecutivos.
func pumpVideo(ctx context.Context, cfg *config.FlutConfig, svc *service.Service, logger *slog.Logger) error {
	if len(cfg.Images) != 1 {
		return fmt.Errorf("--video requires exactly one media source")
	}

	out, _, err := framesrc.SpawnTranscoder(cfg.Images[0], "ffmpeg", nil)
	if err != nil {
		return fmt.Errorf("spawning transcoder: %w", err)
	}
	defer out.Close()

	fs := framesrc.New(out, logger, false, nil)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if err := framesrc.CheckMemoryGuard(); err != nil {
			return fmt.Errorf("aborting video extraction: %w", err)
		}

		img, err := fs.NextFrame()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("reading video frame: %w", err)
		}
		svc.SendImage(img)
	}
}

// startManagerServer abre o listener de manager e começa a encaminhar os
// Commands já codificados pelo pipeline local para cada worker que se
// conectar, anunciando o Target recomendado (endereços do host de
// destino e a contagem de painters configurada).
func startManagerServer(ctx context.Context, cfg *config.FlutConfig, h *host.Host, logger *slog.Logger) (*manager.Server, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.ServeManagerPort))
	if err != nil {
		return nil, fmt.Errorf("listening for manager workers: %w", err)
	}

	target := protocol.Target{
		Addresses: h.Addresses,
		Port:      h.Port,
		Threads:   uint64(cfg.PainterCount),
	}
	srv := manager.NewServer(target, logger)

	cmdCh := make(chan *canvas.Command, 16)
	go srv.Run(ctx, ln, cmdCh)

	logger.Info("manager server listening", "addr", ln.Addr().String())
	return srv, nil
}

// runManagerWorker conecta-se a um nó de manager via cfg.Host (reutilizado
// como endereço host:port do manager, não do alvo pixelflut — o Target
// recebido do manager é quem descreve o alvo real), constrói um Service
// apontando para o endereço recebido e injeta cada Command recebido no
// broadcaster local.
func runManagerWorker(ctx context.Context, cfg *config.FlutConfig, logger *slog.Logger) error {
	client, target, err := manager.Dial(cfg.Host, logger)
	if err != nil {
		return fmt.Errorf("dialing manager: %w", err)
	}
	defer client.Close()

	if len(target.Addresses) == 0 {
		return fmt.Errorf("manager sent an empty target address list")
	}
	addrs := make([]string, len(target.Addresses))
	for i, ip := range target.Addresses {
		addrs[i] = ip.String()
	}
	h, err := host.Resolve(fmt.Sprintf("%s:%d", addrs[0], target.Port), cfg.BindAddr)
	if err != nil {
		return fmt.Errorf("resolving manager target: %w", err)
	}

	painterCount := cfg.PainterCount
	if target.Threads > 0 {
		painterCount = int(target.Threads)
	}

	svc, err := service.Build(service.Options{
		Host:          h,
		PainterCount:  painterCount,
		InitialConfig: canvas.ImageConfig{Chunks: painterCount},
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("building worker service: %w", err)
	}
	svc.Start()

	go func() {
		<-ctx.Done()
		svc.Stop()
	}()

	if err := client.Run(svc); err != nil {
		if strings.Contains(err.Error(), "use of closed network connection") {
			return nil
		}
		logger.Warn("manager connection ended", "error", err)
	}
	svc.Stop()
	svc.Join()
	return nil
}
