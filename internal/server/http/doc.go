// Package httpserver exposes the index writer over a small JSON API:
// document additions, deletes by CEL query or term, commits, the persisted
// segment list, a health check and Prometheus metrics.
//
// Example:
//
//	srv := httpserver.New(rt, logger)
//	go srv.ListenAndServe(ctx, ":8080")
//	defer srv.Close()
package httpserver
