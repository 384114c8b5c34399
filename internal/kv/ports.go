// Package kv defines the persistence port: a per-user key/value store of
// opaque JSON blobs.
package kv

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("key not found")
	// ErrConflict reports a SetIfVersion whose expected version is stale.
	ErrConflict = errors.New("version conflict")
)

// Ports for outbound adapters.
type (
	Reader interface {
		// Get returns the blob stored under dataKey, or ErrNotFound.
		Get(ctx context.Context, userKey, dataKey string) ([]byte, error)
	}

	Writer interface {
		Set(ctx context.Context, userKey, dataKey string, blob []byte) error
	}

	// Lister returns every blob of a user whose key starts with prefix.
	Lister interface {
		ListByPrefix(ctx context.Context, userKey, prefix string) (map[string][]byte, error)
	}

	// UserLister enumerates users with stored data. Optional; used by batch jobs.
	UserLister interface {
		Users(ctx context.Context) ([]string, error)
	}

	// Versioned supports optimistic read-modify-write. Version 0 means the
	// key does not exist yet; every successful write bumps the version.
	Versioned interface {
		// GetVersioned returns the blob and its version, or ErrNotFound.
		GetVersioned(ctx context.Context, userKey, dataKey string) ([]byte, int64, error)
		// SetIfVersion writes only when the stored version equals version
		// and returns the new one. Otherwise it returns ErrConflict.
		SetIfVersion(ctx context.Context, userKey, dataKey string, blob []byte, version int64) (int64, error)
	}

	Store interface {
		Reader
		Writer
		Lister
		Versioned
	}
)
