// Package indexer is a minimal single-writer indexing session built around
// the delete log.
//
// Additions land in an in-memory active segment. Deletes are stamped and
// pushed to the shared deletequeue.Queue; they are applied lazily at Commit,
// when every segment walks its own cursor up to the commit opstamp and clears
// the alive bit of each matching document that was added before the delete.
//
// Lock order is mu then deleteMu. Delete only takes deleteMu, so producers
// issuing deletes never wait on additions.
package indexer
