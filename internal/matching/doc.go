// Package matching decides which remote record a library item corresponds to.
//
// Fingerprint captures an item's identity so negative results can be
// invalidated when its metadata changes. PickBest ranks search candidates by
// token overlap with the local titles plus small bonuses for matching year
// and type. It is a heuristic: false positives are possible and ties go to
// the first candidate in search order.
package matching
