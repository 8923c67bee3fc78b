// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package manifest

import "github.com/cockroachdb/errors"

// invariantErrorf panics with an AssertionFailedf-wrapped error: a broken
// structural invariant is a programmer error, not a recoverable condition
// (spec §7, "Invariant | ... | panic (programmer error)").
func invariantErrorf(format string, args ...interface{}) error {
	panic(errors.AssertionFailedf(format, args...))
}
