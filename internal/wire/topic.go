package wire

import (
	"fmt"
	"reflect"

	"github.com/minio/highwayhash"
)

// hashKey is a fixed 32-byte key for highwayhash, analogous to the fixed
// AES key the teacher's shuffle package uses to generate stable hash
// weights: it only needs to be stable across a process's lifetime, not
// secret.
var hashKey = [32]byte{
	0x61, 0x66, 0x73, 0x70, 0x6d, 0x2d, 0x67, 0x6f,
	0x2d, 0x74, 0x6f, 0x70, 0x69, 0x63, 0x2d, 0x68,
	0x61, 0x73, 0x68, 0x2d, 0x6b, 0x65, 0x79, 0x2d,
	0x76, 0x31, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
}

// TypeTopic derives a topic from the fully qualified type name of msg, the
// Publisher's default derivation rule (spec §4.2).
func TypeTopic(msg Message) string {
	t := reflect.TypeOf(msg)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return fmt.Sprintf("%s.%s", t.PkgPath(), t.Name())
}

// ScanTopicPolicy selects how Scan2D topics are derived for the Pub/Sub
// Cache (spec §4.3): either one topic per concrete type, or one topic per
// (type, roi-size) pair so that scans at different zoom levels are cached
// independently.
type ScanTopicPolicy int

const (
	ScanTopicByType ScanTopicPolicy = iota
	ScanTopicByTypeAndROISize
)

// ScanTopic derives the cache topic for a Scan2DMsg under the given policy.
func ScanTopic(policy ScanTopicPolicy, msg *Scan2DMsg) string {
	base := TypeTopic(msg)
	if policy == ScanTopicByType || msg.Roi == nil {
		return base
	}
	h, err := highwayhash.New64(hashKey[:])
	if err != nil {
		// highwayhash.New64 only errors on a malformed key; hashKey is a
		// fixed, known-good 32-byte constant, so this is unreachable.
		panic(fmt.Sprintf("wire: invalid highwayhash key: %v", err))
	}
	fmt.Fprintf(h, "%g/%g", msg.Roi.SizeWidth, msg.Roi.SizeHeight)
	return fmt.Sprintf("%s#%x", base, h.Sum64())
}
