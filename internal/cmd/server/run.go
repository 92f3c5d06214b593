package serverrun

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	cfgpkg "github.com/rzbill/sift/internal/config"
	httpserver "github.com/rzbill/sift/internal/server/http"
	"github.com/rzbill/sift/internal/runtime"
	logpkg "github.com/rzbill/sift/pkg/log"
)

type Options struct {
	HTTPAddr string
	Config   cfgpkg.Config
	Logger   logpkg.Logger
	// Ready, when set, receives the server once it is built.
	Ready func(*httpserver.Server)
}

// Run opens a runtime, serves the HTTP API and blocks until ctx is
// cancelled. Uncommitted deletes are applied by a final commit before the
// runtime is closed.
func Run(ctx context.Context, opts Options) error {
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if opts.Config.DataDir == "" {
		opts.Config.DataDir = cfgpkg.DefaultDataDir()
	}
	if opts.HTTPAddr == "" {
		opts.HTTPAddr = ":8080"
	}

	rt, err := runtime.Open(runtime.Options{Config: opts.Config, Logger: opts.Logger})
	if err != nil {
		return err
	}
	defer rt.Close()
	logger := rt.Logger()
	cfg := rt.Config()

	logger.Info("Starting sift server",
		logpkg.Str("http", opts.HTTPAddr),
		logpkg.Str("data_dir", cfg.DataDir),
		logpkg.Str("fsync", cfg.Fsync),
		logpkg.Int("max_docs_per_segment", cfg.Indexer.MaxDocsPerSegment),
	)

	hsrv := httpserver.New(rt, logger)
	errCh := make(chan error, 1)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := hsrv.ListenAndServe(sctx, opts.HTTPAddr); err != nil && sctx.Err() == nil {
			logger.Error("http server", logpkg.Err(err))
			errCh <- err
			stop()
		}
	}()
	if opts.Ready != nil {
		opts.Ready(hsrv)
	}

	<-sctx.Done()
	hsrv.Close()
	wg.Wait()

	if res, err := rt.Writer().Commit(context.Background()); err != nil {
		logger.Warn("final commit failed", logpkg.Err(err))
	} else {
		logger.Info("final commit", logpkg.Uint64("opstamp", uint64(res.Opstamp)))
	}

	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}
