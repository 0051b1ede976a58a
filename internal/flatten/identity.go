package flatten

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// aoiKeyLen is the length of the hex-encoded AOI key.
const aoiKeyLen = 16

// Key derives the stable identity of an area of interest from its heading
// context, structural position and a lowercased content prefix. The
// function is pure: identical inputs yield identical keys on any platform.
// Unrelated edits elsewhere in the document do not disturb any of the three
// inputs, which is what keeps telemetry attributed across syncs.
func Key(headingPath []string, blockIndex int, snippet string, prefixChars int) string {
	if prefixChars <= 0 {
		prefixChars = 32
	}
	prefix := strings.ToLower(truncateRunes(Normalize(snippet), prefixChars))
	material := strings.Join(headingPath, "›") + "|" + strconv.Itoa(blockIndex) + "|" + prefix
	sum := sha256.Sum256([]byte(material))
	return hex.EncodeToString(sum[:])[:aoiKeyLen]
}
