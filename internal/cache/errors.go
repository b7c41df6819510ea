package cache

import "errors"

var (
	// ErrCacheMiss reports that the key is absent. It is never wrapped in ErrStore.
	ErrCacheMiss = errors.New("cache: miss")
	// ErrStore reports that the backing store failed or was unreachable.
	ErrStore = errors.New("cache: store unavailable")
)
