package tiercache

// Hooks are callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking: the cache calls them on
// hot paths, sometimes while holding a tier lock. Wrap slow sinks with
// hooks/async.
type Hooks interface {
	// An entry was removed to make room.
	// reason ∈ {"capacity", "pressure"}
	Evicted(level Level, key, reason string)

	// An expired entry was removed, on read or by the sweep.
	Expired(level Level, key string)

	// An entry moved to a higher-priority tier after a read.
	Promoted(from, to Level, key string)

	// No tier accepted a Set.
	WriteRejected(key string, err error)

	// A backend call failed. op ∈ {"get", "set", "del", "scan", "clear", "sweep", "ping"}
	BackendError(level Level, op string, err error)

	// An unreadable entry was deleted on read.
	// reason ∈ {"corrupt", "decompress", "decode"}
	SelfHeal(level Level, key, reason string)

	// A configured tier could not be opened or stopped answering pings.
	TierUnavailable(level Level, err error)
}

// NopHooks is the default no-op.
type NopHooks struct{}

func (NopHooks) Evicted(Level, string, string)     {}
func (NopHooks) Expired(Level, string)             {}
func (NopHooks) Promoted(Level, Level, string)     {}
func (NopHooks) WriteRejected(string, error)       {}
func (NopHooks) BackendError(Level, string, error) {}
func (NopHooks) SelfHeal(Level, string, string)    {}
func (NopHooks) TierUnavailable(Level, error)      {}
