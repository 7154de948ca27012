package swgate

import "errors"

var (
	// ErrNotCacheable is returned by Cache.Put for anything but GET requests.
	ErrNotCacheable = errors.New("request is not cacheable")

	// ErrTooLarge is returned by Cache.Put when the body exceeds the entry limit.
	ErrTooLarge = errors.New("response too large to cache")

	// ErrCacheNotFound indicates a named cache does not exist.
	ErrCacheNotFound = errors.New("cache not found")

	// ErrClientNotFound indicates an unknown window client id.
	ErrClientNotFound = errors.New("client not found")

	// ErrNotificationNotFound indicates no visible notification carries the tag.
	ErrNotificationNotFound = errors.New("notification not found")

	// ErrServiceClosed is returned for work that arrives after Close started.
	ErrServiceClosed = errors.New("service closed")

	// ErrNoHandler is returned by Dispatch for an event kind with no handler.
	ErrNoHandler = errors.New("no handler registered")
)

// isSkip reports errors that mean "deliberately not cached" rather than a
// storage failure.
func isSkip(err error) bool {
	return errors.Is(err, ErrNotCacheable) || errors.Is(err, ErrTooLarge)
}
