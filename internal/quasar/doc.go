// Package quasar implements topic gossip over attenuated Bloom filters.
//
// Every node keeps a small stack of Bloom filters. Level 0 holds the topics
// the node subscribes to (and its own fingerprint); deeper levels accumulate
// what neighbours advertise. Publications are signed by their origin, bound to
// the origin's proof-of-work fingerprint and flooded with restriction: a
// relaying node pulls each candidate's filter and only forwards where the
// topic looks reachable, falling back to a random contact otherwise. A hop
// budget and an LRU of recently seen publications bound amplification.
package quasar
