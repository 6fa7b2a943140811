package util

import "strings"

// KeyPrefix namespaces cache entries inside a shared medium (Redis DB,
// sqlite file, badger dir) so enumeration and clearing never touch
// foreign data.
const KeyPrefix = "cache_"

// StorageKey maps a caller key to its backend key.
func StorageKey(key string) string { return KeyPrefix + key }

// UserKey strips KeyPrefix; ok=false for keys the cache does not own.
func UserKey(storageKey string) (string, bool) {
	if !strings.HasPrefix(storageKey, KeyPrefix) {
		return "", false
	}
	return storageKey[len(KeyPrefix):], true
}

// PrefixEnd returns the smallest string greater than every string with the
// given prefix, for half-open range scans. Empty means unbounded.
func PrefixEnd(prefix string) string {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xFF {
			b[i]++
			return string(b[:i+1])
		}
	}
	return ""
}
