package store

import (
	"github.com/docker/go-events"
	"github.com/moby/tapkit/api"
)

// EventCreate is published when an object is created.
type EventCreate struct {
	Table  string
	Object api.StoreObject
}

// EventUpdate is published when an object is updated.
type EventUpdate struct {
	Table     string
	Object    api.StoreObject
	OldObject api.StoreObject
}

// EventDelete is published when an object is deleted.
type EventDelete struct {
	Table  string
	Object api.StoreObject
}

// EventCommit is published after the changes of a transaction.
type EventCommit struct {
	Version uint64
}

// MatchTables returns a matcher accepting changes to the named tables. Commit
// events always match.
func MatchTables(tables ...string) events.Matcher {
	return events.MatcherFunc(func(ev events.Event) bool {
		var table string
		switch v := ev.(type) {
		case EventCreate:
			table = v.Table
		case EventUpdate:
			table = v.Table
		case EventDelete:
			table = v.Table
		case EventCommit:
			return true
		default:
			return false
		}
		for _, t := range tables {
			if t == table {
				return true
			}
		}
		return false
	})
}
