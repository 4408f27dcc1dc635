// Package btreeerr defines the tagged error kinds the index raises, built
// on github.com/cockroachdb/errors. Kinds are checked through errors.Is
// against a mark rather than equality against a sentinel, since these
// errors are always produced with extra context.
package btreeerr

import "github.com/cockroachdb/errors"

// Sentinel markers for errors.Is. Never returned directly; always wrapped
// with context via the constructors below.
var (
	NotFound                    = errors.New("btreeerr: not found")
	DuplicateKey                = errors.New("btreeerr: duplicate key")
	IteratorInvalidatedByCommit = errors.New("btreeerr: iterator invalidated by commit")
	ConcurrentModification      = errors.New("btreeerr: concurrent modification")
	Corruption                  = errors.New("btreeerr: corruption")
	InvariantViolation          = errors.New("btreeerr: invariant violation")
)

// NotFoundf marks err as NotFound: raised by delete/search for an absent entry.
func NotFoundf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), NotFound)
}

// DuplicateKeyf marks err as DuplicateKey: unique-mode insert with
// onlyIfNotSet against an existing key.
func DuplicateKeyf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), DuplicateKey)
}

// IteratorInvalidatedByCommitf marks err: iterator used after its
// transaction ended.
func IteratorInvalidatedByCommitf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), IteratorInvalidatedByCommit)
}

// ConcurrentModificationf marks err: iterator used after the tree was
// mutated under it.
func ConcurrentModificationf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ConcurrentModification)
}

// Corruptionf marks err as fatal structural corruption, e.g. an unknown
// page id, or a page that fails its structural checks.
func Corruptionf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), Corruption)
}

// InvariantViolationf marks err as a broken internal contract (programming
// error), e.g. asking a non-leaf to put a raw value.
func InvariantViolationf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), InvariantViolation)
}

// Is reports whether err carries the given mark.
func Is(err, mark error) bool { return errors.Is(err, mark) }
