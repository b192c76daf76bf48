package domain

import (
	"math/rand"
	"strconv"
	"strings"
	"time"
)

// idSuffixLen is the number of random base-36 digits appended to an ID.
const idSuffixLen = 9

// idSuffixSpace is 36^idSuffixLen.
var idSuffixSpace = func() int64 {
	n := int64(1)
	for i := 0; i < idSuffixLen; i++ {
		n *= 36
	}
	return n
}()

// GenerateID creates an identifier from a base-36 millisecond timestamp and a
// random base-36 suffix. Collisions are unlikely at single-device volumes but
// not impossible.
func GenerateID() string {
	return generateIDAt(time.Now())
}

func generateIDAt(now time.Time) string {
	prefix := strconv.FormatInt(now.UnixMilli(), 36)
	suffix := strconv.FormatInt(rand.Int63n(idSuffixSpace), 36)
	if pad := idSuffixLen - len(suffix); pad > 0 {
		suffix = strings.Repeat("0", pad) + suffix
	}
	return prefix + suffix
}
