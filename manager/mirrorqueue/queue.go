// Package mirrorqueue serializes the southbound mutations of tunnel mirrors.
//
// Commands are queued without blocking and executed one at a time, in order,
// by a single worker. A failing command is logged and counted; it never stops
// the worker.
package mirrorqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/docker/go-events"
	"github.com/moby/tapkit/log"
	"github.com/sirupsen/logrus"
)

// ErrQueueClosed is returned when a command is queued after Close.
var ErrQueueClosed = errors.New("mirror command queue is closed")

// Kind is the kind of a southbound command.
type Kind int

// Command kinds.
const (
	KindAdd Kind = iota
	KindDelete
)

func (k Kind) String() string {
	switch k {
	case KindAdd:
		return "mirror-add"
	case KindDelete:
		return "mirror-delete"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Mirror filters.
const (
	FilterFromPort = "from-lport"
	FilterToPort   = "to-lport"
)

// Command is a mirror mutation of the southbound store.
type Command struct {
	Kind Kind
	// Name is the name of the southbound mirror.
	Name string
	// PortID is the logical switch port the mirror is attached to.
	PortID string

	// The fields below are only set on KindAdd.
	Filter string
	Sink   string
	Type   string
	Index  uint32
}

// MirrorAdd returns a command creating a mirror and attaching it to portID.
func MirrorAdd(name, filter, sink, mirrorType string, index uint32, portID string) Command {
	return Command{
		Kind:   KindAdd,
		Name:   name,
		PortID: portID,
		Filter: filter,
		Sink:   sink,
		Type:   mirrorType,
		Index:  index,
	}
}

// MirrorDelete returns a command detaching the named mirror from portID and
// deleting it.
func MirrorDelete(name, portID string) Command {
	return Command{
		Kind:   KindDelete,
		Name:   name,
		PortID: portID,
	}
}

// Executor runs commands against the southbound store. Each call is one
// transaction.
type Executor interface {
	MirrorAdd(ctx context.Context, cmd Command) error
	MirrorDel(ctx context.Context, cmd Command) error
}

// Queue is an unbounded FIFO of commands with a single worker.
type Queue struct {
	mu     sync.Mutex
	closed bool
	queue  *events.Queue
}

// New starts a queue executing commands with exec. The context is passed to
// every execution.
func New(ctx context.Context, exec Executor) *Queue {
	ctx = log.WithModule(ctx, "mirrorqueue")
	return &Queue{
		queue: events.NewQueue(&worker{ctx: ctx, exec: exec}),
	}
}

// Enqueue adds a command to the queue. It never blocks.
func (q *Queue) Enqueue(cmd Command) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	if err := q.queue.Write(cmd); err != nil {
		return ErrQueueClosed
	}
	commandsQueued.Inc(1)
	return nil
}

// Close stops accepting commands and waits for the worker to execute every
// command queued before the call.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.mu.Unlock()

	return q.queue.Close()
}

// worker is the sink of the queue; the queue calls Write from one goroutine.
type worker struct {
	ctx  context.Context
	exec Executor
}

func (w *worker) Write(event events.Event) error {
	cmd, ok := event.(Command)
	if !ok {
		log.G(w.ctx).Errorf("unexpected event %T in mirror command queue", event)
		return nil
	}
	commandsQueued.Dec(1)

	logger := log.G(w.ctx).WithFields(logrus.Fields{
		"command": cmd.Kind.String(),
		"mirror":  cmd.Name,
		"port.id": cmd.PortID,
	})

	start := time.Now()
	var err error
	switch cmd.Kind {
	case KindAdd:
		err = w.exec.MirrorAdd(w.ctx, cmd)
	case KindDelete:
		err = w.exec.MirrorDel(w.ctx, cmd)
	default:
		err = fmt.Errorf("unknown command kind %v", cmd.Kind)
	}
	commandLatency.WithValues(cmd.Kind.String()).UpdateSince(start)

	if err != nil {
		commandsTotal.WithValues(cmd.Kind.String(), "failure").Inc(1)
		logger.WithError(err).Error("mirror command failed")
		return nil
	}
	commandsTotal.WithValues(cmd.Kind.String(), "success").Inc(1)
	logger.Debug("mirror command executed")
	return nil
}

func (w *worker) Close() error {
	return nil
}
