package reconcile

import "context"

// Op tracks one optimistic mutation until the server answers.
type Op struct {
	tempID string
	id     string
	err    error
	done   chan struct{}
}

func newOp(entityID string) *Op {
	return &Op{tempID: entityID, id: entityID, done: make(chan struct{})}
}

func failedOp(entityID string, err error) *Op {
	op := newOp(entityID)
	op.finish("", err)
	return op
}

func (o *Op) finish(id string, err error) {
	if id != "" {
		o.id = id
	}
	o.err = err
	close(o.done)
}

// Done is closed once the operation is confirmed or rejected.
func (o *Op) Done() <-chan struct{} { return o.done }

// Wait blocks until the operation completes or ctx ends.
func (o *Op) Wait(ctx context.Context) error {
	select {
	case <-o.done:
		return o.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the failure of a completed operation, or nil while it is in flight.
func (o *Op) Err() error {
	select {
	case <-o.done:
		return o.err
	default:
		return nil
	}
}

// ID returns the server id once the operation succeeded and the local id before.
func (o *Op) ID() string {
	select {
	case <-o.done:
		return o.id
	default:
		return o.tempID
	}
}
