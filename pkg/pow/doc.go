// Package pow defines the memory-hard proof-of-work contract used to bind a
// node identity to computational cost.
//
// A Puzzle is parameterised by a Difficulty (Equihash n and k). Solve is
// expensive and is expected to run once per identity lifetime; Verify is
// cheap and is run for every inbound message by the admission middleware.
package pow
