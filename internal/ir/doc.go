// Package ir provides the term and binding model shared by every stage of the
// deductive query engine.
//
// This package contains value types only. All other internal packages import
// ir; ir imports nothing internal. This keeps the binding model the
// foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Scalar is a sealed interface; only the types in this package implement it
//   - Scalars are totally ordered by Kind first, then by value
//   - Variables compare by ID, never by name
//   - The blank variable (ID 0) matches anything and is never written to a Frame
//   - Frames are copy-on-write: Bind never mutates a frame that may be shared
package ir
