package pipeline

import (
	"context"

	"github.com/moby/tapkit/log"
	"github.com/pkg/errors"
)

// Sink executes flow edits against the bridges of a host.
type Sink interface {
	// AddFlow adds or replaces a flow.
	AddFlow(ctx context.Context, bridge Bridge, flow string) error
	// DeleteFlows removes every flow matching loosely.
	DeleteFlows(ctx context.Context, bridge Bridge, match string) error
	// ModFlows rewrites the actions of every flow matching loosely.
	ModFlows(ctx context.Context, bridge Bridge, flow string) error
}

// Apply executes edits in order. It stops at the first failure.
func Apply(ctx context.Context, sink Sink, edits []FlowEdit) error {
	for _, e := range edits {
		var err error
		switch e.Op {
		case OpAdd:
			err = sink.AddFlow(ctx, e.Bridge, e.Flow())
		case OpDelete:
			err = sink.DeleteFlows(ctx, e.Bridge, e.Flow())
		case OpModify:
			err = sink.ModFlows(ctx, e.Bridge, e.Flow())
		default:
			err = errors.Errorf("unknown flow operation %v", e.Op)
		}
		if err != nil {
			return errors.Wrapf(err, "failed to %s", e)
		}
		log.G(ctx).WithField("flow", e.String()).Debug("flow applied")
	}
	return nil
}
