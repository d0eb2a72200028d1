// Package contact defines how a quasar node refers to its peers.
//
// This package defines the core abstractions shared by the overlay components:
//   - Contact: the network address of a peer plus the identity triple
//     (public key, proof-of-work nonce and proof) used to validate it
//   - Directory: the read side of the Kademlia peer directory consumed by the
//     gossip engine (closest contacts to a key, size, admission events)
//
// A contact is only trusted after its identity triple has been validated
// against the proof-of-work puzzle; the directory itself performs no checks.
//
// Contacts can be exchanged out of band as URLs of the form
//
//	quasar://<fingerprint>@<host:port>
//
// which are accepted as bootstrap seeds by the node.
package contact
