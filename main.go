package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/vkngwrapper/deferred/config"
	"github.com/vkngwrapper/deferred/logging"
)

func main() {
	// SDL and the Vulkan surface must stay on the main thread.
	runtime.LockOSThread()

	configPath := flag.String("config", "deferred.toml", "path to the renderer config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("%+v", err)
	}

	logger, err := logging.New(cfg.Log.Level)
	if err != nil {
		log.Fatalf("%+v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)

	app := NewApp(cfg, logger)
	group.Go(func() error {
		return config.Watch(ctx, *configPath, logger.WithPrefix("config"), app.Reload)
	})

	err = app.Run(ctx)
	stop()
	if werr := group.Wait(); err == nil {
		err = werr
	}
	if err != nil {
		logger.Fatalf("%+v", err)
	}
}
