// Package submit drives a transaction through the propose, order, and
// commit-wait pipeline against a replicated ledger. Proposals are simulated
// by an endorser, the resulting read-write set is handed to an ordering
// service, and the caller blocks until the commit event for the transaction
// arrives or the configured timeout elapses.
package submit

import (
	"context"

	"emissiontrade/internal/contract"
	"emissiontrade/internal/ledger"
)

// Proposal is one requested business action, identified by a caller-chosen
// transaction id that follows the transaction through the whole pipeline.
type Proposal struct {
	TxID   string
	Action contract.Action
	Args   []string
}

// PeerResponse is a single peer's simulation result for a proposal. Status
// follows HTTP conventions; StatusOK marks a successful simulation.
type PeerResponse struct {
	Status       int
	Message      string
	Payload      []byte
	ReadWriteSet ledger.ReadWriteSet
}

// StatusOK is the peer response status of a successful simulation.
const StatusOK = 200

// OK reports whether the peer simulated the proposal successfully.
func (r PeerResponse) OK() bool { return r.Status == StatusOK }

// Envelope is the ordered unit: a transaction id plus the read-write set the
// endorsing peer produced for it.
type Envelope struct {
	TxID         string              `json:"tx_id"`
	ReadWriteSet ledger.ReadWriteSet `json:"read_write_set"`
}

// CommitEvent reports the validation outcome of one transaction at commit.
type CommitEvent struct {
	TxID   string                `json:"tx_id"`
	Code   ledger.ValidationCode `json:"code"`
	Height uint64                `json:"height"`
}

// Committed reports whether the transaction was applied to the ledger.
func (e CommitEvent) Committed() bool { return e.Code == ledger.CodeValid }

// Endorser simulates a proposal and returns per-peer responses. The slice is
// never empty on a nil error.
type Endorser interface {
	Endorse(ctx context.Context, prop Proposal) ([]PeerResponse, error)
}

// Orderer accepts an envelope for ordering. A nil return means the envelope
// was accepted, not that it committed; the outcome arrives as a CommitEvent.
type Orderer interface {
	Broadcast(ctx context.Context, env Envelope) error
}

// EventSource delivers commit events for registered transaction ids.
type EventSource interface {
	// Register reserves a delivery channel for the transaction id. It fails
	// if the id is already registered.
	Register(txID string) (<-chan CommitEvent, error)
	// Deregister releases the channel. It is safe to call more than once.
	Deregister(txID string)
}

// EventSink receives commit events as they are produced.
type EventSink interface {
	Publish(ev CommitEvent)
}

// Querier evaluates a read-only action against current ledger state without
// submitting anything for ordering.
type Querier interface {
	Query(ctx context.Context, action contract.Action, args []string) ([]byte, error)
}
