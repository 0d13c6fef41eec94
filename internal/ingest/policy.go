package ingest

import (
	"fmt"
	"strings"
)

// ChecksumPolicy decides what happens to a packet whose stored checksum does
// not match the one computed over its bytes.
type ChecksumPolicy string

const (
	// ChecksumIgnore stores the packet silently; the mismatch is still
	// recorded on the row.
	ChecksumIgnore ChecksumPolicy = "ignore"
	// ChecksumFlag stores the packet and logs the mismatch.
	ChecksumFlag ChecksumPolicy = "flag"
	// ChecksumDrop rejects the packet.
	ChecksumDrop ChecksumPolicy = "drop"
)

// ParseChecksumPolicy accepts the policy names case-insensitively. The empty
// string selects ChecksumFlag.
func ParseChecksumPolicy(s string) (ChecksumPolicy, error) {
	switch p := ChecksumPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return ChecksumFlag, nil
	case ChecksumIgnore, ChecksumFlag, ChecksumDrop:
		return p, nil
	default:
		return "", fmt.Errorf("unknown checksum policy %q: expected ignore, flag or drop", s)
	}
}
