package graph

import (
	"errors"
	"fmt"
)

// ErrNodeNotFound is returned by store lookups for keys that do not exist.
var ErrNodeNotFound = errors.New("node not found")

// InvalidIdentityError reports a record whose identity properties are missing
// or empty after normalization. It is fatal for the single record and
// recoverable for the batch.
type InvalidIdentityError struct {
	Type  NodeType
	Field string
}

func (e *InvalidIdentityError) Error() string {
	return fmt.Sprintf("invalid identity for %s node: missing or empty %q", e.Type, e.Field)
}

// DanglingReferenceError reports an edge upsert whose endpoint does not
// correspond to any existing node. Callers skip the single edge and continue;
// a later run may succeed once normalization catches up.
type DanglingReferenceError struct {
	Key string
}

func (e *DanglingReferenceError) Error() string {
	return fmt.Sprintf("dangling reference: no node with key %q", e.Key)
}

// KeyCollisionError reports a node upsert whose derived key already anchors
// a node of a different type. Edge endpoints are resolved by key alone, so a
// key shared across types would make every edge touching it ambiguous. The
// registry-shaped key formats make this unreachable in practice; a collision
// means a source fed garbage identifiers and is surfaced, never merged over.
type KeyCollisionError struct {
	Key       string
	Requested NodeType
	Existing  NodeType
}

func (e *KeyCollisionError) Error() string {
	return fmt.Sprintf("key collision: %q already anchors a %s node, cannot upsert as %s",
		e.Key, e.Existing, e.Requested)
}

// PartitionConflictError reports the same (from, to, relation) triple being
// claimed in both edge partitions. This is a configuration or data error and
// is surfaced to the operator, never auto-resolved.
type PartitionConflictError struct {
	EdgeKey   string
	Existing  Partition
	Requested Partition
}

func (e *PartitionConflictError) Error() string {
	return fmt.Sprintf("partition conflict for edge %q: exists in %s, upserted into %s",
		e.EdgeKey, e.Existing, e.Requested)
}

// IsInvalidIdentity reports whether err is an InvalidIdentityError.
func IsInvalidIdentity(err error) bool {
	var target *InvalidIdentityError
	return errors.As(err, &target)
}

// IsDanglingReference reports whether err is a DanglingReferenceError.
func IsDanglingReference(err error) bool {
	var target *DanglingReferenceError
	return errors.As(err, &target)
}

// IsKeyCollision reports whether err is a KeyCollisionError.
func IsKeyCollision(err error) bool {
	var target *KeyCollisionError
	return errors.As(err, &target)
}

// IsPartitionConflict reports whether err is a PartitionConflictError.
func IsPartitionConflict(err error) bool {
	var target *PartitionConflictError
	return errors.As(err, &target)
}
