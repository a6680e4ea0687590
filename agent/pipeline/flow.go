package pipeline

import (
	"fmt"
	"strings"
)

// Op is the kind of change a FlowEdit makes.
type Op int

// Flow edit operations.
const (
	OpAdd Op = iota
	OpDelete
	OpModify
)

func (o Op) String() string {
	switch o {
	case OpAdd:
		return "add"
	case OpDelete:
		return "delete"
	case OpModify:
		return "modify"
	}
	return fmt.Sprintf("op(%d)", int(o))
}

// MatchField is one key=value pair of a flow match.
type MatchField struct {
	Key   string
	Value string
}

// Match is an ordered flow match.
type Match []MatchField

// String renders the match in ovs-ofctl syntax.
func (m Match) String() string {
	parts := make([]string, 0, len(m))
	for _, f := range m {
		parts = append(parts, f.Key+"="+f.Value)
	}
	return strings.Join(parts, ",")
}

// FlowEdit is a single change to the flow table of one bridge.
type FlowEdit struct {
	Bridge   Bridge
	Op       Op
	Table    int
	Priority int
	Match    Match
	Actions  []string
}

// Flow renders the edit in ovs-ofctl syntax. Deletes carry no priority and
// no actions, so they remove every flow matching loosely.
func (e FlowEdit) Flow() string {
	parts := []string{fmt.Sprintf("table=%d", e.Table)}
	if e.Op == OpAdd {
		parts = append(parts, fmt.Sprintf("priority=%d", e.Priority))
	}
	if len(e.Match) > 0 {
		parts = append(parts, e.Match.String())
	}
	if e.Op != OpDelete {
		parts = append(parts, "actions="+strings.Join(e.Actions, ","))
	}
	return strings.Join(parts, ",")
}

func (e FlowEdit) String() string {
	return fmt.Sprintf("%s %s %s", e.Op, e.Bridge, e.Flow())
}

// key identifies the flows an edit touches.
func (e FlowEdit) key() string {
	return fmt.Sprintf("%s/%d/%s", e.Bridge, e.Table, e.Match)
}

func match(kv ...string) Match {
	m := make(Match, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		m = append(m, MatchField{Key: kv[i], Value: kv[i+1]})
	}
	return m
}

func add(bridge Bridge, table, priority int, m Match, actions ...string) FlowEdit {
	return FlowEdit{Bridge: bridge, Op: OpAdd, Table: table, Priority: priority, Match: m, Actions: actions}
}

func del(bridge Bridge, table int, m Match) FlowEdit {
	return FlowEdit{Bridge: bridge, Op: OpDelete, Table: table, Match: m}
}

func resubmit(table int) string {
	return fmt.Sprintf("resubmit(,%d)", table)
}

func output(port int) string {
	return fmt.Sprintf("output:%d", port)
}
