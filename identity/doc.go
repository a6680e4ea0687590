// Package identity provides the identifiers used across tapkit.
//
// Object identifiers (ports, tap services, tap flows, tap mirrors) are
// RFC 4122 UUIDs, matching the identifiers handed out by the network layer
// that owns the ports. Session identifiers for agent connections are random
// 128 bit numbers encoded in Base36, which are shorter and only ever compared
// for equality.
package identity
