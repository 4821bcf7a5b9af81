// Package ledger implements the ordered key-value ledger underneath the
// emission trade state machine: composite keys, a versioned in-memory store,
// snapshot simulation with read/write-set capture, and optimistic commit
// validation.
package ledger

import (
	"fmt"
	"strings"
)

// Key prefixes partition the flat ledger namespace by record type. The
// USER2CROP spelling is part of the persisted layout and must not change.
const (
	PrefixUser         = "USER"
	PrefixCorpApproval = "CORP_APPROVAL"
	PrefixProject      = "PROJECT"
	PrefixUser2Corp    = "USER2CROP"
	PrefixUser2Project = "USER2PROJECT"
	PrefixTransaction  = "TRANSACTION"
)

// keySep delimits the prefix and each segment of a composite key. It may not
// appear inside a prefix or segment.
const keySep = "\x00"

// ComposeKey builds a composite key from a type prefix and an ordered list of
// identifying segments.
func ComposeKey(prefix string, segments ...string) (string, error) {
	if prefix == "" {
		return "", fmt.Errorf("compose key: empty prefix")
	}
	if strings.Contains(prefix, keySep) {
		return "", fmt.Errorf("compose key: prefix contains reserved separator")
	}
	var b strings.Builder
	b.WriteString(keySep)
	b.WriteString(prefix)
	b.WriteString(keySep)
	for _, seg := range segments {
		if strings.Contains(seg, keySep) {
			return "", fmt.Errorf("compose key: segment contains reserved separator")
		}
		b.WriteString(seg)
		b.WriteString(keySep)
	}
	return b.String(), nil
}

// MustComposeKey is ComposeKey for callers with statically valid inputs.
func MustComposeKey(prefix string, segments ...string) string {
	key, err := ComposeKey(prefix, segments...)
	if err != nil {
		panic(err)
	}
	return key
}

// DecomposeKey splits a composite key back into its prefix and segments.
func DecomposeKey(key string) (string, []string, error) {
	if !strings.HasPrefix(key, keySep) {
		return "", nil, fmt.Errorf("decompose key: missing leading separator")
	}
	parts := strings.Split(key, keySep)
	// Split yields a leading and a trailing empty element around the
	// delimited body.
	if len(parts) < 3 || parts[0] != "" || parts[len(parts)-1] != "" {
		return "", nil, fmt.Errorf("decompose key: malformed key %q", key)
	}
	prefix := parts[1]
	if prefix == "" {
		return "", nil, fmt.Errorf("decompose key: empty prefix in %q", key)
	}
	return prefix, parts[2 : len(parts)-1], nil
}

// ScanPrefix returns the key-space prefix covering every composite key with
// the given type prefix.
func ScanPrefix(prefix string) string {
	return keySep + prefix + keySep
}
