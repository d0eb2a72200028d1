// Package identity implements proof-of-work backed node identities.
//
// A node's fingerprint is not chosen: it is the Hash160 of an Equihash proof
// seeded by the Hash256 of the node's secp256k1 public key. Creating many
// identities, or one close to a chosen key, therefore costs memory-hard work.
package identity
