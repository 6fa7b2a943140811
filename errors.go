package tiercache

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrTierUnavailable: the tier has no backend or its backend failed.
	ErrTierUnavailable = errors.New("tiercache: tier unavailable")
	// ErrEntryTooLarge: the entry exceeds the tier's whole capacity.
	ErrEntryTooLarge = errors.New("tiercache: entry larger than tier capacity")
	// ErrCapacity: eviction did not free enough room for the entry.
	ErrCapacity = errors.New("tiercache: tier full after eviction")
	// ErrClosed is returned by Close when called twice.
	ErrClosed = errors.New("tiercache: cache closed")
)

// StoreError reports why no tier accepted a write. It is never returned by
// the public API; Hooks.WriteRejected and the log receive it.
type StoreError struct {
	Key      string
	Attempts map[Level]error
}

func (e *StoreError) Error() string {
	if len(e.Attempts) == 0 {
		return fmt.Sprintf("store %q: no tier attempted", e.Key)
	}
	levels := e.levels()
	parts := make([]string, 0, len(levels))
	for _, l := range levels {
		parts = append(parts, fmt.Sprintf("%s=%v", l, e.Attempts[l]))
	}
	return fmt.Sprintf("store %q failed on every tier: %s", e.Key, strings.Join(parts, "; "))
}

func (e *StoreError) Unwrap() []error {
	levels := e.levels()
	errs := make([]error, 0, len(levels))
	for _, l := range levels {
		if err := e.Attempts[l]; err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func (e *StoreError) levels() []Level {
	out := make([]Level, 0, len(e.Attempts))
	for l := range e.Attempts {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
