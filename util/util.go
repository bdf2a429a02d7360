// Package util collects small helpers shared across the transport layers:
// short-term credential generation for ICE (spec.md §4.5) and aggregation
// of the several teardown errors a Connection's layered Close can produce
// (spec.md §4.8's "Close(reason): tears down SCTP -> DTLS -> ICE ->
// session").
package util

import (
	"crypto/rand"
	"strings"
)

const credentialAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// RandSeq generates a random alphanumeric sequence of length n, used to
// mint ICE ufrag/pwd pairs on restart.
func RandSeq(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	out := make([]byte, n)
	for i, v := range b {
		out[i] = credentialAlphabet[int(v)%len(credentialAlphabet)]
	}
	return string(out)
}

// multiError joins several non-nil errors into one, preserving Is-based
// unwrapping against any of them.
type multiError []error

func (me multiError) Error() string {
	parts := make([]string, len(me))
	for i, e := range me {
		parts[i] = e.Error()
	}
	return strings.Join(parts, "; ")
}

func (me multiError) Is(target error) bool {
	for _, e := range me {
		if e == target {
			return true
		}
		if nested, ok := e.(multiError); ok && nested.Is(target) {
			return true
		}
	}
	return false
}

// FlattenErrs collapses a layered teardown's error slice into a single
// error, dropping nils, or nil if everything succeeded.
func FlattenErrs(errs []error) error {
	var kept multiError
	for _, e := range errs {
		if e != nil {
			kept = append(kept, e)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	if len(kept) == 1 {
		return kept[0]
	}
	return kept
}
