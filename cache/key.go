package cache

import (
	"fmt"
	"regexp"
	"strconv"

	"cctv-replay/archive"
)

// keyPattern matches cache filenames: cam<cameraId>_<timestamp>_<hash>.mp4
var keyPattern = regexp.MustCompile(`^cam(\d+)_(\d+)_([a-f0-9]+)\.mp4$`)

// Key derives the cache filename for a remote segment. The convention is
// stable across deployments: cam<cameraId>_<timestamp>_<hash>.mp4, where the
// hash is a short digest of the original archive filename so that the same
// segment always maps to the same cache file regardless of resolution order.
func Key(seg archive.RemoteSegment) string {
	return fmt.Sprintf("cam%d_%d_%s.mp4", seg.CameraID, seg.Timestamp, filenameHash(seg.Filename))
}

// ValidKey reports whether name follows the cache filename convention.
func ValidKey(name string) bool {
	return keyPattern.MatchString(name)
}

// filenameHash computes the hex form of a 31-based string hash over the
// original filename, folded to 32 bits. The exact function is part of the
// on-disk naming convention and must not change.
func filenameHash(name string) string {
	var h int32
	for i := 0; i < len(name); i++ {
		h = h*31 + int32(name[i])
	}
	// Negate in 64 bits: -MinInt32 is not representable in int32 and would
	// wrap back negative.
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return strconv.FormatInt(v, 16)
}
