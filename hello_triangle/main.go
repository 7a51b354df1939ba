package main

import (
	"embed"
	"flag"
	"log"
	"log/slog"
	"os"
	"runtime"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/vkngwrapper/framepacing/framepacer"
	"github.com/vkngwrapper/framepacing/hello_triangle/headless"
	"github.com/vkngwrapper/framepacing/utils"
)

//go:embed shaders meshes
var fileSystem embed.FS

func newLogger(cfg *utils.Config) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(handler).With("session", uuid.NewString()), nil
}

func main() {
	runtime.LockOSThread()

	cfg, err := utils.LoadConfig(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		utils.Usage(os.Stderr)
		return
	} else if err != nil {
		utils.Usage(os.Stderr)
		log.Fatalf("%+v\n", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("%+v\n", err)
	}
	slog.SetDefault(logger)
	framepacer.SetLogger(logger.With("component", "framepacer"))

	if cfg.Headless {
		_, err = headless.Run(cfg)
	} else {
		app := &HelloTriangleApplication{cfg: cfg, vsync: cfg.VSync}
		err = app.Run()
	}
	if err != nil {
		log.Fatalf("%+v\n", err)
	}
}
