package ics

import (
	"crypto/md5"
	"encoding/hex"
)

// UIDSuffix is the domain part appended to every generated UID.
const UIDSuffix = "@discord-events"

// EventUID derives a stable identifier for one calendar entry from its
// content. The hash is a fingerprint, not a security boundary.
func EventUID(start, end, title, discriminator string) string {
	sum := md5.Sum([]byte(start + end + title + discriminator))
	return hex.EncodeToString(sum[:])[:8] + UIDSuffix
}
