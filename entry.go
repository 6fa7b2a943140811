package tiercache

import (
	"time"

	"github.com/unkn0wn-root/tiercache/internal/wire"
)

// buildEntry serializes value and compresses it when that pays off.
func (c *cache[V]) buildEntry(value V, o SetOptions, now time.Time) (*wire.Entry, error) {
	payload, err := c.codec.Encode(value)
	if err != nil {
		return nil, err
	}

	compressed := false
	if c.compressAbove >= 0 && len(payload) > c.compressAbove {
		z, err := c.comp.Compress(payload)
		switch {
		case err != nil:
			c.log.Debug("compress failed; storing raw", Fields{"algo": c.comp.Name(), "err": err})
		case len(z) < len(payload):
			payload, compressed = z, true
		}
	}

	e := &wire.Entry{
		Payload:      payload,
		Created:      now,
		LastAccessed: now,
		Compressed:   compressed,
	}
	if ttl := c.resolveTTL(o.TTL); ttl > 0 {
		e.Expires = now.Add(ttl)
	}
	if len(o.Metadata) > 0 {
		e.Metadata = make(map[string]string, len(o.Metadata))
		for k, v := range o.Metadata {
			e.Metadata[k] = v
		}
	}
	return e, nil
}

// resolveTTL maps a requested TTL to an effective one; 0 means no expiry.
func (c *cache[V]) resolveTTL(ttl time.Duration) time.Duration {
	if ttl == 0 {
		ttl = c.defaultTTL
	}
	if ttl < 0 {
		return 0
	}
	return ttl
}

// decodeEntry reverses buildEntry. reason names the failing step.
func (c *cache[V]) decodeEntry(e *wire.Entry) (v V, reason string, err error) {
	p := e.Payload
	if e.Compressed {
		if p, err = c.comp.Decompress(p); err != nil {
			return v, "decompress", err
		}
	}
	if v, err = c.codec.Decode(p); err != nil {
		return v, "decode", err
	}
	return v, "", nil
}
