package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/tiercache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	EvictedEvery  uint64
	ExpiredEvery  uint64
	PromotedEvery uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	evictedCtr  atomic.Uint64
	expiredCtr  atomic.Uint64
	promotedCtr atomic.Uint64
}

var _ tiercache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) Evicted(level tiercache.Level, key, reason string) {
	if h.l == nil || !sample(h.opts.EvictedEvery, &h.evictedCtr) {
		return
	}
	h.l.Debug("tiercache.evicted",
		"level", level.String(),
		"key", h.redact(key),
		"reason", reason)
}

func (h *Hooks) Expired(level tiercache.Level, key string) {
	if h.l == nil || !sample(h.opts.ExpiredEvery, &h.expiredCtr) {
		return
	}
	h.l.Debug("tiercache.expired",
		"level", level.String(),
		"key", h.redact(key))
}

func (h *Hooks) Promoted(from, to tiercache.Level, key string) {
	if h.l == nil || !sample(h.opts.PromotedEvery, &h.promotedCtr) {
		return
	}
	h.l.Debug("tiercache.promoted",
		"from", from.String(),
		"to", to.String(),
		"key", h.redact(key))
}

func (h *Hooks) WriteRejected(key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("tiercache.write_rejected",
		"key", h.redact(key),
		"err", err)
}

func (h *Hooks) BackendError(level tiercache.Level, op string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("tiercache.backend_error",
		"level", level.String(),
		"op", op,
		"err", err)
}

func (h *Hooks) SelfHeal(level tiercache.Level, key, reason string) {
	if h.l == nil {
		return
	}
	h.l.Info("tiercache.self_heal",
		"level", level.String(),
		"key", h.redact(key),
		"reason", reason)
}

func (h *Hooks) TierUnavailable(level tiercache.Level, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("tiercache.tier_unavailable",
		"level", level.String(),
		"err", err)
}
