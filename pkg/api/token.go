package api

import "sync/atomic"

// TokenSource hands out monotonically increasing request tokens for one
// logical view (a list panel, a detail modal). A response is applied only
// if its token is still the latest issued, which discards slow responses
// that would otherwise overwrite newer state.
type TokenSource struct {
	seq atomic.Uint64
}

// Next issues a new token, invalidating all previously issued ones.
func (t *TokenSource) Next() uint64 {
	return t.seq.Add(1)
}

// Latest reports whether the token is still the most recently issued.
func (t *TokenSource) Latest(token uint64) bool {
	return t.seq.Load() == token
}
