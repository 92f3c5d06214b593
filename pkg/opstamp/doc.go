// Package opstamp assigns logical write-order stamps to index mutations.
//
// # Ordering
//
// Every add, delete and commit issued by a writer session receives an
// Opstamp from a shared Stamper. Stamps are strictly increasing per Stamper
// and are the only ordering signal consumers of the delete log compare:
// a document is affected by a delete only if the document's stamp is lower
// than the delete's.
//
// Usage
//
//	s := opstamp.NewStamper(0)
//	a := s.Stamp()           // 0
//	r := s.StampRange(3)     // [1, 4)
//	_ = r.Start
//	s.Revert(a)              // rewind after an aborted batch
package opstamp
