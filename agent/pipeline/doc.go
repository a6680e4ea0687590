// Package pipeline compiles mirror sessions into Open vSwitch flow edits.
//
// Three bridges take part. The integration bridge (br-int) copies the
// traffic of source ports, tagged with the session identifier, to the tap
// bridge, and delivers mirrored traffic arriving from the tap bridge to the
// destination port. The tap bridge (br-tap) either hands such traffic back to
// br-int, when the destination is local, or passes it to the tunnel bridge.
// The tunnel bridge (br-tun) carries the session identifier in the tunnel key
// between hosts, classifies what it receives, and learns short-lived return
// paths so unicast traffic need not be flooded to every peer.
//
// The functions in this package are pure. They map resolved port numbers and
// a session to an ordered list of FlowEdits; Apply executes the list against
// a Sink. Every flow a create function adds is removed by the matching delete
// function, keyed by the same table and match.
package pipeline
