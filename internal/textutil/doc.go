// Package textutil provides the text folding used to compare library titles
// with remote search results.
//
// Normalize removes diacritics and punctuation so "Pelíšky" and "pelisky"
// compare equal; Tokens and Jaccard turn normalized titles into token sets and
// score their overlap.
package textutil
