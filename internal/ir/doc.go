// Package ir provides the canonical record types shared by the whitelist
// compiler, the session transport, and the tenant runtime.
//
// This package contains type definitions and pure serialization helpers
// only. All other internal packages import ir; ir imports nothing
// internal. This keeps the canonical record layer free of circular
// dependencies.
//
// Key design constraints:
//   - No float values anywhere in a canonical record - parameter values
//     are string, int, bool, array, or object. Floats would make
//     content-addressed hashing depend on floating point formatting.
//   - All JSON tags use snake_case.
//   - Parameter schemas preserve declaration order; they are never
//     resorted, since slot order is part of a query's identity.
package ir
