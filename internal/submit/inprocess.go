package submit

import (
	"context"
	"errors"
	"sync"

	"emissiontrade/internal/contract"
	"emissiontrade/internal/ledger"
)

// LocalEndorser simulates proposals against a snapshot of the local ledger.
// It stands in for a remote endorsing peer in single-process deployments and
// doubles as the read path: Query evaluates read-only actions directly.
type LocalEndorser struct {
	backend    ledger.Backend
	dispatcher *contract.Dispatcher
}

// NewLocalEndorser returns an endorser over the given ledger backend.
func NewLocalEndorser(backend ledger.Backend, dispatcher *contract.Dispatcher) *LocalEndorser {
	return &LocalEndorser{backend: backend, dispatcher: dispatcher}
}

// Endorse simulates the proposal on a fresh snapshot and returns one peer
// response carrying the result payload and the captured read-write set.
// Business failures are reported inside the response, not as an error.
func (e *LocalEndorser) Endorse(ctx context.Context, prop Proposal) ([]PeerResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sim := ledger.NewSimulation(e.backend.Snapshot())
	payload, err := e.dispatcher.Invoke(sim, prop.Action, prop.Args)
	if err != nil {
		return []PeerResponse{{Status: 500, Message: err.Error()}}, nil
	}
	return []PeerResponse{{
		Status:       StatusOK,
		Payload:      payload,
		ReadWriteSet: sim.ReadWriteSet(),
	}}, nil
}

// Query evaluates a read-only action against the current snapshot.
func (e *LocalEndorser) Query(ctx context.Context, action contract.Action, args []string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !action.ReadOnly() {
		return nil, errors.New("query only evaluates read-only actions")
	}
	sim := ledger.NewSimulation(e.backend.Snapshot())
	return e.dispatcher.Invoke(sim, action, args)
}

// LocalOrderer serializes envelopes into ledger commits and publishes the
// validation outcome of every envelope to its sinks.
type LocalOrderer struct {
	mu      sync.Mutex
	backend ledger.Backend
	sinks   []EventSink
}

// NewLocalOrderer returns an orderer committing to the given backend and
// publishing commit events to the sinks.
func NewLocalOrderer(backend ledger.Backend, sinks ...EventSink) *LocalOrderer {
	return &LocalOrderer{backend: backend, sinks: sinks}
}

// Broadcast commits the envelope's read-write set. A validation failure is
// not a broadcast error: the envelope was ordered, and the failure is
// reported through the commit event.
func (o *LocalOrderer) Broadcast(ctx context.Context, env Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	o.mu.Lock()
	height, err := o.backend.Commit(env.ReadWriteSet)
	o.mu.Unlock()

	ev := CommitEvent{TxID: env.TxID, Code: ledger.CodeValid, Height: height}
	if err != nil {
		var conflict ledger.ConflictError
		if !errors.As(err, &conflict) {
			return err
		}
		ev.Code = ledger.CodeMVCCConflict
		ev.Height = 0
	}
	for _, sink := range o.sinks {
		sink.Publish(ev)
	}
	return nil
}
