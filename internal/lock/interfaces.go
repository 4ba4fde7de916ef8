package lock

import "context"

// LockOperations defines the interface for lock management.
type LockOperations interface {
	Acquire(ctx context.Context, name string) (*Lock, error)
	TryAcquire(name string) (*Lock, error)
	IsLocked(name string) (bool, int, error)
}

// Ensure Manager implements LockOperations
var _ LockOperations = (*Manager)(nil)
