package domain

import (
	"errors"
	"fmt"
)

// Domain errors - used across all layers
var (
	// ErrNotFound indicates the requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates the input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized indicates the remote rejected our credentials
	ErrUnauthorized = errors.New("unauthorized")

	// ErrStorage indicates a key-value store read or write was rejected
	ErrStorage = errors.New("storage operation failed")

	// ErrSyncInProgress indicates a drain is already running
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrNoActiveSession indicates no analytics session is running
	ErrNoActiveSession = errors.New("no active session")

	// ErrNotConfigured indicates cloud sync has not been configured
	ErrNotConfigured = errors.New("cloud sync not configured")

	// ErrOffline indicates the remote could not be reached
	ErrOffline = errors.New("offline")
)

// StorageError describes a failed key-value store operation.
// errors.Is(err, ErrStorage) holds for every StorageError.
type StorageError struct {
	Op  string // "get", "set", "remove", "decode", "encode"
	Key string
	Err error
}

// NewStorageError wraps err as a StorageError.
func NewStorageError(op, key string, err error) *StorageError {
	return &StorageError{Op: op, Key: key, Err: err}
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Is reports StorageError as ErrStorage.
func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}
