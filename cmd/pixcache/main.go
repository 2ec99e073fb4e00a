// Runs the pixcache daemon: an image transform cache administered over the Redis protocol.

package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jmgilman/go/exec"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nobletooth/pixcache/pkg/adjust"
	"github.com/nobletooth/pixcache/pkg/cache"
	"github.com/nobletooth/pixcache/pkg/config"
	"github.com/nobletooth/pixcache/pkg/mirror"
	"github.com/nobletooth/pixcache/pkg/port"
	"github.com/nobletooth/pixcache/pkg/utils"
)

var (
	printVersion  = flag.Bool("print_version", false, "Print the version and exit.")
	sweepInterval = flag.Duration("cache_sweep_interval", time.Minute,
		"How often expired entries are purged in the background; non-positive disables the sweeper.")
	mirrorCommand = flag.String("mirror_command", "",
		"Companion program (and leading arguments) told about invalidations and preloads; empty disables mirroring.")
	mirrorTimeout   = flag.Duration("mirror_timeout", 5*time.Second, "Timeout of a single companion invocation.")
	mirrorQueueSize = flag.Int("mirror_queue_size", mirror.DefaultQueueSize,
		"Pending mirror requests kept before new ones are dropped.")
)

// newSynchronizer builds the mirror configured by flags; mirroring is off unless a command is given.
func newSynchronizer() (mirror.Synchronizer, error) {
	command := strings.Fields(*mirrorCommand)
	if len(command) == 0 {
		return mirror.NoOp{}, nil
	}
	companion, err := mirror.NewCompanion(exec.New(exec.WithInheritEnv()), mirror.CompanionConfig{
		Command: command,
		Timeout: *mirrorTimeout,
	})
	if err != nil {
		return nil, err
	}
	return mirror.NewAsync(companion, *mirrorQueueSize), nil
}

func run(ctx context.Context) error {
	synchronizer, err := newSynchronizer()
	if err != nil {
		return err
	}
	imageCache, err := cache.New(cache.ConfigFromFlags(),
		cache.WithTransform(adjust.NewRegistry().Apply),
		cache.WithSynchronizer(synchronizer),
		cache.WithMetrics(prometheus.DefaultRegisterer, "default"))
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := imageCache.Close(); closeErr != nil {
			slog.Warn("Failed to close the cache.", "err", closeErr)
		}
	}()

	imageCache.StartSweeper(ctx, *sweepInterval)
	go func() {
		if err := serveMetrics(ctx); err != nil {
			slog.Error("Metrics server stopped.", "err", err)
		}
	}()
	if err := port.RunAdminServer(ctx, imageCache); err != nil {
		return err
	}
	<-ctx.Done() // The admin port may be disabled; keep serving until terminated.
	return nil
}

func main() {
	config.InitFlags()
	utils.InitLogging()

	if *printVersion {
		slog.Info("Pixcache build info.", "version", utils.Version, "commit", utils.Commit, "build", utils.BuildTime)
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		slog.Error("Pixcache stopped.", "err", err)
		cancel()
		os.Exit(1)
	}
	slog.Info("Pixcache stopped.", "uptime", utils.Uptime())
}
