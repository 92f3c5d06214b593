// Package runtime wires storage, metrics, the delete queue and the index
// writer into a single-node sift instance. It exposes Open/Close, a basic
// health check and accessors for the wired components.
//
// Example:
//
//	cfg := config.Default()
//	cfg.DataDir = "./data"
//	rt, _ := runtime.Open(runtime.Options{Config: cfg})
//	defer rt.Close()
//	w := rt.Writer()
//	_, _ = w.AddDocument(operation.Document{"lang": "go"})
//	_, _ = w.DeleteQuery(`doc.lang == "go"`)
//	_, _ = w.Commit(context.Background())
package runtime
