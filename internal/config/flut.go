// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package config define a superfície de CLI do flut e o arquivo opcional
// de configuração YAML usado por implantações de longa duração do modo
// manager.
package config

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/nishisan-dev/flut/internal/host"
	"gopkg.in/yaml.v3"
)

// FlutConfig é a configuração completa derivada das flags de linha de
// comando. LoadManagerConfig lê os mesmos campos de um arquivo YAML; o
// caminho passado em --manager-config fica em ManagerConfig, mas cmd/flut
// não chama LoadManagerConfig.
type FlutConfig struct {
	Host   string   `yaml:"host"`
	Images []string `yaml:"images"`

	Width, Height *uint32 `yaml:"-"`
	XOffset       uint32  `yaml:"x_offset"`
	YOffset       uint32  `yaml:"y_offset"`

	PainterCount int     `yaml:"painter_count"`
	FPS          float64 `yaml:"fps"`

	FeatureDetection bool `yaml:"feature_detection"`
	ForceOffset      bool `yaml:"force_offset"`
	ForceGray        bool `yaml:"force_gray"`
	ForceAlpha       bool `yaml:"force_alpha"`
	ForceBinary      bool `yaml:"force_binary"`
	Shuffle          bool `yaml:"shuffle"`
	Resize           bool `yaml:"resize"`

	Video      bool   `yaml:"video"`
	Workers    int    `yaml:"workers"`
	Continuous bool   `yaml:"continuous"`
	BindAddr   string `yaml:"bind_addr"`
	DSCP       string `yaml:"dscp"`

	ServeManagerPort int  `yaml:"serve_manager_port"`
	ListenManager    bool `yaml:"listen_manager"`

	RedetectInterval string `yaml:"redetect_interval"` // cron expression, "" desabilita
	ManagerConfig    string `yaml:"-"`                 // caminho do arquivo, não serializado
	CacheDir         string `yaml:"cache_dir"`
	CacheMaxBytes    int64  `yaml:"cache_max_bytes"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// unsetDim é o default das flags width/height porque flag.Uint não
// distingue "não setado" de "setado como zero"; Parse traduz esse
// sentinela (o maior uint) em nil.
const unsetDim = ^uint(0)

// Parse interpreta os argumentos de linha de comando seguindo a
// superfície de CLI do §6: um host posicional, uma ou mais fontes de
// imagem, e as flags de política de encoder/pipeline/manager.
func Parse(args []string) (*FlutConfig, error) {
	fs := flag.NewFlagSet("flut", flag.ContinueOnError)

	width := fs.Uint("width", uint(unsetDim), "crop/resize target width")
	height := fs.Uint("height", uint(unsetDim), "crop/resize target height")
	xOffset := fs.Uint("x", 0, "canvas x offset")
	yOffset := fs.Uint("y", 0, "canvas y offset")
	count := fs.Int("count", 10, "painter thread count")
	fps := fs.Float64("fps", 1, "animation frame rate")
	noFeatureDetection := fs.Bool("feature-detection", false, "disable the capability probe (enabled by default)")
	forceOffset := fs.Bool("offset", false, "force the OFFSET dialect")
	forceGray := fs.Bool("gray", false, "force the grayscale PX dialect")
	forceAlpha := fs.Bool("alpha", false, "force emitting the alpha byte")
	forceBinary := fs.Bool("le-rgba", false, "force the binary CoordLERGBA dialect")
	noShuffle := fs.Bool("shuffle", false, "disable command unit shuffling")
	resize := fs.Bool("resize", false, "resize instead of cropping")
	video := fs.Bool("video", false, "treat the single input as a video, extracted via an external transcoder")
	workers := fs.Int("workers", 5, "encoder worker count")
	continuous := fs.Bool("continuous", false, "after the last image source, start over from the first instead of stopping (no stdin frame stream is read)")
	bindAddr := fs.String("bind-addr", "", "source IP or interface to bind outgoing connections")
	dscp := fs.String("dscp", "", "DSCP code point name (EF, AF11..AF43, CS0..CS7) applied to painter streams")
	serveManager := fs.Int("serve-manager", 0, "run as manager server on PORT")
	listenManager := fs.Bool("listen-manager", false, "run as manager worker")
	redetectInterval := fs.String("redetect-interval", "", "cron expression for periodic feature re-detection")
	managerConfig := fs.String("manager-config", "", "YAML worker roster path for --serve-manager (stored in the config; flut does not load it)")
	cacheDir := fs.String("cache-dir", "", "disk spillover cache directory for pre-encoded frames")
	cacheSize := fs.String("cache-size", "0", "max bytes of compressed frames admitted to --cache-dir before FIFO eviction (e.g. 256mb, 1gb); 0 disables the bound")
	logLevel := fs.String("log-level", "info", "log level: debug, info, warn, error")
	logFormat := fs.String("log-format", "json", "log format: json or text")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	positional := fs.Args()
	if len(positional) < 1 {
		return nil, fmt.Errorf("missing required positional argument: host:port")
	}

	cacheMaxBytes, err := ParseByteSize(*cacheSize)
	if err != nil {
		return nil, fmt.Errorf("parsing --cache-size: %w", err)
	}

	cfg := &FlutConfig{
		Host:             positional[0],
		Images:           positional[1:],
		XOffset:          uint32(*xOffset),
		YOffset:          uint32(*yOffset),
		PainterCount:     *count,
		FPS:              *fps,
		FeatureDetection: !*noFeatureDetection,
		ForceOffset:      *forceOffset,
		ForceGray:        *forceGray,
		ForceAlpha:       *forceAlpha,
		ForceBinary:      *forceBinary,
		Shuffle:          !*noShuffle,
		Resize:           *resize,
		Video:            *video,
		Workers:          *workers,
		Continuous:       *continuous,
		BindAddr:         *bindAddr,
		DSCP:             *dscp,
		ServeManagerPort: *serveManager,
		ListenManager:    *listenManager,
		RedetectInterval: *redetectInterval,
		ManagerConfig:    *managerConfig,
		CacheDir:         *cacheDir,
		CacheMaxBytes:    cacheMaxBytes,
		LogLevel:         *logLevel,
		LogFormat:        *logFormat,
	}

	if *width != unsetDim {
		w := uint32(*width)
		cfg.Width = &w
	}
	if *height != unsetDim {
		h := uint32(*height)
		cfg.Height = &h
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}
	return cfg, nil
}

func (c *FlutConfig) validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if !strings.Contains(c.Host, ":") {
		return fmt.Errorf("host %q must be host:port", c.Host)
	}
	if len(c.Images) == 0 && c.ServeManagerPort == 0 && !c.ListenManager {
		return fmt.Errorf("at least one image source is required")
	}
	if c.PainterCount < 1 {
		return fmt.Errorf("painter count must be >= 1, got %d", c.PainterCount)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be >= 0, got %d", c.Workers)
	}
	if c.FPS <= 0 {
		return fmt.Errorf("fps must be > 0, got %f", c.FPS)
	}
	if c.ServeManagerPort != 0 && c.ListenManager {
		return fmt.Errorf("--serve-manager and --listen-manager are mutually exclusive")
	}
	if _, err := host.ParseDSCP(c.DSCP); err != nil {
		return err
	}
	return nil
}

// LoadManagerConfig carrega um roster YAML de workers para --serve-manager,
// seguindo a mesma convenção de validação dos carregadores de configuração
// do agent/server.
func LoadManagerConfig(path string) (*FlutConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manager config: %w", err)
	}
	var cfg FlutConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing manager config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating manager config: %w", err)
	}
	return &cfg, nil
}
