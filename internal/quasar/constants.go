package quasar

import "time"

const (
	// Alpha is the fan-out of every publish, relay and filter exchange
	Alpha = 3

	// K is the number of closest contacts relay candidates are drawn from
	K = 20

	// MaxRelayHops is the initial and maximum publication ttl
	MaxRelayHops = 6

	// LRUCacheSize bounds the publication cache
	LRUCacheSize = 50

	// MaxRepublishCached is how many times a node processes one publication
	MaxRepublishCached = 3

	// FilterDepth is the number of levels in a topic filter
	FilterDepth = 3

	// FilterBits is the width of each filter level
	FilterBits = 1024

	// FilterHashes is the number of hash functions per level
	FilterHashes = 3

	// SoftStateTimeout is the minimum interval between filter pulls, and
	// separately between filter pushes
	SoftStateTimeout = 60 * time.Second
)
