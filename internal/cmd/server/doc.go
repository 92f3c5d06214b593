// Package serverrun exposes the Run entrypoint used by `sift serve` to open
// the runtime and serve the HTTP API, handling lifecycle and shutdown.
//
// Example:
//
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = serverrun.Run(ctx, serverrun.Options{HTTPAddr: ":8080", Config: config.Default()})
package serverrun
