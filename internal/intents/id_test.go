package intents

import (
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var intentIDRe = regexp.MustCompile(`^dustZap_\d+_[0-9a-f]{6}_[0-9a-f]{16}$`)

func TestNewIntentID(t *testing.T) {
	addr := "0x2a84Ca5ED9F9F9C52F42D44ca9fe4ef962BB2b47"
	id := NewIntentID("dustZap", addr)

	assert.Regexp(t, intentIDRe, id)
	assert.True(t, strings.Contains(id, "_bb2b47_"), "suffix is the lowercased address tail: %s", id)
}

func TestNewIntentIDUnique(t *testing.T) {
	addr := "0x2a84Ca5ED9F9F9C52F42D44ca9fe4ef962BB2b47"
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewIntentID("dustZap", addr)
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestNewIntentIDShortAddress(t *testing.T) {
	id := NewIntentID("dustZap", "0xAB")
	assert.True(t, strings.Contains(id, "_0xab_"), id)
}

func TestParseIntentTimestamp(t *testing.T) {
	addr := "0x2a84Ca5ED9F9F9C52F42D44ca9fe4ef962BB2b47"
	before := time.Now().Add(-time.Second)
	id := NewIntentID("dustZap", addr)
	after := time.Now().Add(time.Second)

	ts, ok := ParseIntentTimestamp(id)
	require.True(t, ok)
	assert.True(t, ts.After(before) && ts.Before(after), "embedded timestamp is creation time")
}

func TestParseIntentTimestampRejectsMalformed(t *testing.T) {
	for _, id := range []string{
		"",
		"dustZap",
		"dustZap_notanumber_bb2b47_0011223344556677",
		"dustZap_-5_bb2b47_0011223344556677",
		"short_123",
	} {
		_, ok := ParseIntentTimestamp(id)
		assert.False(t, ok, id)
	}
}
