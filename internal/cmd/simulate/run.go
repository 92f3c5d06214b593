package simulate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"text/tabwriter"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	cfgpkg "github.com/rzbill/sift/internal/config"
	"github.com/rzbill/sift/internal/operation"
	"github.com/rzbill/sift/internal/runtime"
	"github.com/rzbill/sift/internal/segment"
	logpkg "github.com/rzbill/sift/pkg/log"
)

// Options tunes a simulation.
type Options struct {
	Config          cfgpkg.Config
	Logger          logpkg.Logger
	Producers       int
	DocsPerProducer int
	// DeleteEvery issues one delete per producer after this many additions.
	DeleteEvery    int
	CommitInterval time.Duration
	// Buckets is the number of distinct bucket values per producer. Each
	// delete removes one bucket.
	Buckets int
	// Rate caps each producer at this many operations per second. Zero means
	// unlimited.
	Rate float64
}

func (o *Options) defaults() {
	if o.Producers <= 0 {
		o.Producers = 4
	}
	if o.DocsPerProducer <= 0 {
		o.DocsPerProducer = 1000
	}
	if o.DeleteEvery <= 0 {
		o.DeleteEvery = 100
	}
	if o.CommitInterval <= 0 {
		o.CommitInterval = 50 * time.Millisecond
	}
	if o.Buckets <= 0 {
		o.Buckets = 10
	}
}

// Report summarizes a simulation.
type Report struct {
	Added    int64
	Deletes  int64
	Commits  int64
	Segments []segment.Meta
	Elapsed  time.Duration
}

// Alive returns the number of documents that survived across all segments.
func (r Report) Alive() int64 {
	var n int64
	for _, m := range r.Segments {
		n += int64(m.NumAlive())
	}
	return n
}

// Print renders the report as a table.
func (r Report) Print(w io.Writer) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEGMENT\tMAX_DOC\tDELETED\tALIVE\tDELETE_OPSTAMP")
	for _, m := range r.Segments {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\n", m.ID, m.MaxDoc, m.NumDeleted, m.NumAlive(), m.DeleteOpstamp)
	}
	_ = tw.Flush()
	fmt.Fprintf(w, "added=%d deletes=%d commits=%d alive=%d elapsed=%s\n",
		r.Added, r.Deletes, r.Commits, r.Alive(), r.Elapsed.Round(time.Millisecond))
}

// Run opens a runtime from opts.Config, runs the workload and returns once
// every producer is done and a final commit has been applied.
func Run(ctx context.Context, opts Options) (Report, error) {
	opts.defaults()
	start := time.Now()

	rt, err := runtime.Open(runtime.Options{Config: opts.Config, Logger: opts.Logger})
	if err != nil {
		return Report{}, err
	}
	defer rt.Close()
	logger := rt.Logger().WithComponent("simulate")

	if addr := opts.Config.Metrics.Addr; addr != "" {
		stop, err := serveMetrics(addr, rt.Metrics().Handler(), logger)
		if err != nil {
			return Report{}, err
		}
		defer stop()
	}

	var added, deletes, commits atomic.Int64
	w := rt.Writer()

	g, gctx := errgroup.WithContext(ctx)
	producersDone := make(chan struct{})
	var live atomic.Int32
	live.Store(int32(opts.Producers))

	for p := 0; p < opts.Producers; p++ {
		g.Go(func() error {
			defer func() {
				if live.Add(-1) == 0 {
					close(producersDone)
				}
			}()
			limiter := rate.NewLimiter(rate.Inf, 1)
			if opts.Rate > 0 {
				limiter = rate.NewLimiter(rate.Limit(opts.Rate), 1)
			}
			for i := 0; i < opts.DocsPerProducer; i++ {
				if err := limiter.Wait(gctx); err != nil {
					return err
				}
				doc := operation.Document{"producer": p, "seq": i, "bucket": i % opts.Buckets}
				if _, err := w.AddDocument(doc); err != nil {
					return err
				}
				added.Add(1)
				if (i+1)%opts.DeleteEvery == 0 {
					bucket := (i / opts.DeleteEvery) % opts.Buckets
					expr := fmt.Sprintf("doc.producer == %d && doc.bucket == %d", p, bucket)
					if _, err := w.DeleteQuery(expr); err != nil {
						return err
					}
					deletes.Add(1)
				}
			}
			return nil
		})
	}

	g.Go(func() error {
		t := time.NewTicker(opts.CommitInterval)
		defer t.Stop()
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-producersDone:
				return nil
			case <-t.C:
				if _, err := w.Commit(gctx); err != nil {
					return err
				}
				commits.Add(1)
			}
		}
	})

	if err := g.Wait(); err != nil {
		return Report{}, err
	}
	res, err := w.Commit(ctx)
	if err != nil {
		return Report{}, err
	}
	commits.Add(1)
	logger.Info("simulation done",
		logpkg.Int64("added", added.Load()),
		logpkg.Int64("deletes", deletes.Load()),
		logpkg.Uint64("final_opstamp", uint64(res.Opstamp)),
		logpkg.F("touched", res.Touched.Cardinality()),
	)

	metas, err := rt.Segments().List()
	if err != nil {
		return Report{}, err
	}
	return Report{
		Added:    added.Load(),
		Deletes:  deletes.Load(),
		Commits:  commits.Load(),
		Segments: metas,
		Elapsed:  time.Since(start),
	}, nil
}

// serveMetrics exposes h on addr at /metrics until the returned func is called.
func serveMetrics(addr string, h http.Handler, logger logpkg.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listen %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", logpkg.Err(err))
		}
	}()
	logger.Info("serving metrics", logpkg.Str("addr", ln.Addr().String()))
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
