// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package bloom

// Policy configures which filter variant a table writer builds, and at
// what false-positive rate (spec §4.4, §4.5 writer contract). Tables at
// different levels may use different policies.
type Policy struct {
	// Variant is FilterTypeStandard or FilterTypeBlocked.
	Variant FilterType
	// FalsePositiveRate is the target FPR used to size the filter.
	FalsePositiveRate float64
}

// NoFilter disables filter construction for a level.
var NoFilter = Policy{}

// DefaultPolicy matches the teacher's common default: a blocked filter at
// a 1% target false-positive rate, favoring cache-friendliness over the
// marginal accuracy of the standard variant.
var DefaultPolicy = Policy{Variant: FilterTypeBlocked, FalsePositiveRate: 0.01}

// Enabled reports whether a filter should be built at all.
func (p Policy) Enabled() bool { return p.FalsePositiveRate > 0 }

// Builder constructs the appropriate builder for this policy.
func (p Policy) Builder(expectedItems int) interface {
	Insert(h uint64)
	Finish() *Filter
} {
	switch p.Variant {
	case FilterTypeBlocked:
		return NewBlockedBuilder(expectedItems, p.FalsePositiveRate)
	default:
		return NewStandardBuilder(expectedItems, p.FalsePositiveRate)
	}
}
