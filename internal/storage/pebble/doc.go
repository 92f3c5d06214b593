// Package pebblestore provides a thin wrapper around Pebble with fsync policy,
// batches, prefix scans and minimal metrics hooks.
//
// Usage:
//
//	db, err := pebblestore.Open(pebblestore.Options{
//	    DataDir: "./data",
//	    Fsync:   pebblestore.FsyncModeInterval,
//	})
//	if err != nil { /* handle */ }
//	defer db.Close()
//
//	// Atomic updates with batches
//	b := db.NewBatch()
//	_ = b.Set([]byte("k"), []byte("v"), nil)
//	_ = db.CommitBatch(ctx, b)
//	b.Close()
//
//	// Point ops and scans
//	_ = db.Set(ctx, []byte("k2"), []byte("v2"))
//	v, _ := db.Get([]byte("k2"))
//	_ = db.ScanPrefix([]byte("k"), func(k, v []byte) bool { return true })
package pebblestore
