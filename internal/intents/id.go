package intents

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// NewIntentID builds an intent id of the form
// <intentType>_<unixMillis>_<last6OfUserAddr>_<16 random hex>. The embedded
// timestamp lets TTL decisions survive eviction of the context itself.
func NewIntentID(intentType, userAddress string) string {
	suffix := strings.ToLower(userAddress)
	if len(suffix) > 6 {
		suffix = suffix[len(suffix)-6:]
	}

	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms; fall back to a
		// time-derived value rather than panic.
		now := time.Now().UnixNano()
		for i := range buf {
			buf[i] = byte(now >> (8 * i))
		}
	}

	return fmt.Sprintf("%s_%d_%s_%s", intentType, time.Now().UnixMilli(), suffix, hex.EncodeToString(buf))
}

// ParseIntentTimestamp extracts the creation time embedded in an intent id.
func ParseIntentTimestamp(id string) (time.Time, bool) {
	parts := strings.Split(id, "_")
	if len(parts) < 4 {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}
