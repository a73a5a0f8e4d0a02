package batch

import "errors"

var (
	// ErrBadConcurrency is returned when a Limiter is constructed with a
	// zero or negative capacity.
	ErrBadConcurrency = errors.New("max concurrency must be positive")

	// ErrEmptyID is returned when a work item has an empty id.
	ErrEmptyID = errors.New("work item has no id")

	// ErrDuplicateID is returned when two work items in one batch share an id.
	ErrDuplicateID = errors.New("duplicate work item id")

	// ErrNoTarget is returned when a work item names neither a URL nor an
	// operation.
	ErrNoTarget = errors.New("work item has no url or operation")

	// ErrNoResolver is returned when a work item names an operation but the
	// Runner has no resolver configured.
	ErrNoResolver = errors.New("no resolver configured for named operations")

	// ErrBadMethod is returned when a work item uses an unsupported method.
	ErrBadMethod = errors.New("unsupported method")
)
