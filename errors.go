package meilisync

import (
	"errors"
	"fmt"

	"github.com/kailas-cloud/meilisync/internal/meili"
	"github.com/kailas-cloud/meilisync/internal/query"
)

// Sentinel errors. Use errors.Is() to check.
var (
	// ErrUsage marks a misused query builder call.
	ErrUsage = query.ErrUsage
	// ErrRemoteTask marks a remote task that finished unsuccessfully.
	ErrRemoteTask = meili.ErrTaskFailed
	// ErrNotFound matches unknown registry entries and 404 engine responses.
	ErrNotFound = meili.ErrNotFound
	// ErrConfiguration marks an invalid IndexConfig or entity type.
	ErrConfiguration = errors.New("meilisync: invalid configuration")
)

// Typed errors re-exported for errors.As.
type (
	UsageError      = query.UsageError
	TaskFailedError = meili.TaskFailedError
	APIError        = meili.APIError
)

func configErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}
