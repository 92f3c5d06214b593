// Package operation holds the timestamped mutations a writer session issues
// against the index. Values here are plain data: they are created once and
// never mutated afterwards.
package operation

import (
	"fmt"

	"github.com/rzbill/sift/pkg/opstamp"
)

// Document is a bag of named field values.
type Document map[string]any

// Predicate selects the documents a delete applies to. The delete log only
// carries predicates; segment-level code evaluates them.
type Predicate interface {
	Matches(doc Document) bool
}

// PredicateFunc adapts a plain function to Predicate.
type PredicateFunc func(doc Document) bool

func (f PredicateFunc) Matches(doc Document) bool { return f(doc) }

// DeleteOperation is a timestamped delete.
type DeleteOperation struct {
	// Opstamp assigned to this operation.
	Opstamp opstamp.Opstamp
	// Target selects the documents to delete.
	Target Predicate
}

func (d DeleteOperation) String() string {
	return fmt.Sprintf("delete@%d(%v)", d.Opstamp, d.Target)
}

// AddOperation is a timestamped document addition.
type AddOperation struct {
	Opstamp  opstamp.Opstamp
	Document Document
}

// Kind discriminates UserOperation.
type Kind int

const (
	KindAdd Kind = iota + 1
	KindDelete
)

func (k Kind) String() string {
	switch k {
	case KindAdd:
		return "add"
	case KindDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// UserOperation is an un-stamped add or delete submitted as part of a batch.
type UserOperation struct {
	Kind     Kind
	Document Document  // set for KindAdd
	Target   Predicate // set for KindDelete
}

// Add builds an add UserOperation.
func Add(doc Document) UserOperation { return UserOperation{Kind: KindAdd, Document: doc} }

// Delete builds a delete UserOperation.
func Delete(target Predicate) UserOperation { return UserOperation{Kind: KindDelete, Target: target} }
