// Package rdedup implements a content-addressed, deduplicating, encrypted
// backup repository.
//
// A caller streams a named "backup" into a Repo (see package repo); the
// stream is split into variable-size, content-defined chunks, each stored
// once under its SHA-256 digest, optionally compressed and sealed behind a
// per-chunk envelope. A root digest recorded under the backup's name allows
// byte-exact reconstruction given the repository's secret key.
//
// This package holds the types shared by every other package in the
// module: the content digest, the chunk kind, the repository keypair, and
// the error kinds callers can match against.
package rdedup
