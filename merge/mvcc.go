// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package merge

import "github.com/fjall-rs/lsm-tree-sub003/internal/base"

// mvccItem is one surviving version buffered for emission.
type mvccItem struct {
	key   base.InternalKey
	value []byte
}

// MvccStream wraps a Merger and reconciles one user key's whole version
// chain at a time (spec §4.8). Weak tombstones are first reconciled
// against the full chain by pairing: each weak tombstone cancels exactly
// the one version immediately below it. Only then does the watermark
// collapse run over the survivors: versions newer than GCSeqnoWatermark
// are always preserved individually, since some open snapshot may need
// exactly one of them; among the surviving versions at or below the
// watermark, only the first (newest) survives, since the oldest open
// snapshot — whose seqno is the watermark — is the only reader that could
// still need a version that old, and it needs exactly that one. Pairing
// must run first: collapsing before pairing can delete a weak
// tombstone's one predecessor as an ordinary shadowed duplicate, leaving
// the weak tombstone with nothing left to cancel. EvictTombstones
// optionally drops surviving tombstones (used when compacting into the
// last level).
type MvccStream struct {
	m   *Merger
	cmp func(a, b []byte) int

	gcSeqnoWatermark base.SeqNum
	evictTombstones  bool
	onShadowed       func(key base.InternalKey, value []byte)

	pending []mvccItem // survivors of the current user key's chain, oldest-processed first consumed from the front
	idx     int

	bufferedRaw *base.InternalKey // a raw item already pulled from m but belonging to the next key
	bufferedVal []byte
	haveBuffered bool

	key   base.InternalKey
	value []byte
	valid bool
}

// Options configures an MvccStream.
type Options struct {
	// GCSeqnoWatermark is the oldest open snapshot's sequence number.
	// Only the newest version at or below this watermark is retained per
	// user key; everything above it is preserved individually (spec
	// §4.8, §4.12 step 3: "gc_seqno_watermark = oldest snapshot seqno").
	GCSeqnoWatermark base.SeqNum
	// EvictTombstones suppresses surviving tombstones entirely, used
	// when compacting into the last level (spec §4.8, §4.12 step 3).
	EvictTombstones bool
	// OnShadowed, if set, is called for every version that reconcile
	// drops from a chain (collapsed duplicates below the watermark, and
	// weak-tombstone/predecessor pairs), so a compaction can attribute
	// blob-file fragmentation to whatever the dropped version referenced
	// (spec §4.13, "every input version of a key that is shadowed by a
	// newer version... contributes (1, value_size) to that blob file's
	// stale counters").
	OnShadowed func(key base.InternalKey, value []byte)
}

// NewMvccStream wraps m, reconciling versions per Options.
func NewMvccStream(cmp func(a, b []byte) int, m *Merger, opts Options) *MvccStream {
	return &MvccStream{m: m, cmp: cmp, gcSeqnoWatermark: opts.GCSeqnoWatermark, evictTombstones: opts.EvictTombstones, onShadowed: opts.OnShadowed}
}

// Next advances to the next surviving item.
func (s *MvccStream) Next() (bool, error) {
	for {
		if s.idx < len(s.pending) {
			it := s.pending[s.idx]
			s.idx++
			s.key, s.value, s.valid = it.key, it.value, true
			return true, nil
		}
		ok, err := s.fillNextChain()
		if err != nil {
			return false, err
		}
		if !ok {
			s.valid = false
			return false, nil
		}
		// loop: pending now holds the next key's survivors (possibly empty)
	}
}

// fillNextChain pulls one full user-key chain from the merger (or from a
// single item buffered by the previous call), reconciles it, and leaves
// the result in s.pending/s.idx. It returns false once there is nothing
// left to pull.
func (s *MvccStream) fillNextChain() (bool, error) {
	var chain []mvccItem

	var curKey base.InternalKey
	var haveCur bool
	if s.haveBuffered {
		chain = append(chain, mvccItem{key: *s.bufferedRaw, value: s.bufferedVal})
		curKey = *s.bufferedRaw
		haveCur = true
		s.haveBuffered = false
	} else {
		ok, err := s.m.Next()
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
		k := s.m.Key()
		chain = append(chain, mvccItem{key: k, value: append([]byte(nil), s.m.Value()...)})
		curKey = k
		haveCur = true
	}
	if !haveCur {
		return false, nil
	}

	for {
		ok, err := s.m.Next()
		if err != nil {
			return false, err
		}
		if !ok {
			break
		}
		k := s.m.Key()
		if s.cmp(k.UserKey, curKey.UserKey) != 0 {
			kCopy := k
			val := append([]byte(nil), s.m.Value()...)
			s.bufferedRaw = &kCopy
			s.bufferedVal = val
			s.haveBuffered = true
			break
		}
		chain = append(chain, mvccItem{key: k, value: append([]byte(nil), s.m.Value()...)})
	}

	s.pending = s.reconcile(chain)
	s.idx = 0
	return true, nil
}

// reconcile applies weak-tombstone pairing, the watermark collapse, and
// tombstone eviction to one user key's version chain, in descending-
// seqno (newest first) order as the merger produced it. Pairing runs
// over the full chain before the collapse: collapsing first could erase
// a weak tombstone's one predecessor as an ordinary shadowed duplicate,
// leaving nothing left to pair against (spec §3, §8.8).
func (s *MvccStream) reconcile(chain []mvccItem) []mvccItem {
	// Weak-tombstone pairing: a weak tombstone cancels the very next
	// version in the chain (its immediate predecessor in wall-clock
	// terms, i.e. the next-older version), regardless of where either
	// falls relative to the GC watermark.
	paired := make([]mvccItem, 0, len(chain))
	for i := 0; i < len(chain); i++ {
		it := chain[i]
		if it.key.Kind == base.ValueKindWeakTombstone {
			if i+1 < len(chain) {
				s.shadow(it)
				s.shadow(chain[i+1])
				i++ // drop both the weak tombstone and its predecessor
				continue
			}
			// Unpaired: once compacting into the last level there is no
			// older version left for it to ever cancel, so it is dropped
			// there; otherwise it is retained for a later compaction.
			if s.evictTombstones {
				s.shadow(it)
				continue
			}
			paired = append(paired, it)
			continue
		}
		paired = append(paired, it)
	}

	// Watermark collapse: keep every surviving version above the
	// watermark; among the surviving versions at or below it, keep only
	// the first (newest).
	collapsed := make([]mvccItem, 0, len(paired))
	keptBelowWatermark := false
	for _, it := range paired {
		if it.key.SeqNum > s.gcSeqnoWatermark {
			collapsed = append(collapsed, it)
			continue
		}
		if !keptBelowWatermark {
			collapsed = append(collapsed, it)
			keptBelowWatermark = true
			continue
		}
		s.shadow(it)
	}

	out := make([]mvccItem, 0, len(collapsed))
	for _, it := range collapsed {
		if it.key.Kind == base.ValueKindTombstone && s.evictTombstones {
			s.shadow(it)
			continue
		}
		out = append(out, it)
	}
	return out
}

// shadow reports one dropped version to the configured OnShadowed
// callback, if any.
func (s *MvccStream) shadow(it mvccItem) {
	if s.onShadowed != nil {
		s.onShadowed(it.key, it.value)
	}
}

// Valid reports whether the stream is positioned on a surviving item.
func (s *MvccStream) Valid() bool { return s.valid }

// Key returns the current item's internal key.
func (s *MvccStream) Key() base.InternalKey { return s.key }

// Value returns the current item's value; a tombstone's value is empty.
func (s *MvccStream) Value() []byte { return s.value }
