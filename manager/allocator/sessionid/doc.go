// Package sessionid assigns session identifiers to tap services.
//
// A session identifier ("taas id") is an integer taken from a configured
// range, by default [3900, 4000). The switch pipeline uses it as the VLAN id
// carrying mirrored traffic through the tap bridge, and as the tunnel id
// carrying it between hosts, so it must be unique across the whole fabric.
//
// The pool lives in the store, as one TapIDAssociation row per identifier. A
// row with no owner is free. The pool is filled lazily: when an acquisition
// finds no free row, the allocator inserts a free row for every identifier
// of the range that has no row yet, and retries once. Only then does it
// report the range as exhausted.
//
// Every acquisition and release runs inside a single store write
// transaction. The store serializes writers, so two concurrent acquisitions
// can never observe the same free row.
package sessionid
