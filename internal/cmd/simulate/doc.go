// Package simulate drives a runtime with concurrent producers that add
// documents and issue query deletes while a committer periodically applies
// them, then reports per-segment alive counts.
//
// Example:
//
//	rep, err := simulate.Run(ctx, simulate.Options{Config: cfg, Producers: 4, DocsPerProducer: 1000})
//	if err != nil {
//	    return err
//	}
//	rep.Print(os.Stdout)
package simulate
