package submit

import (
	"context"
	"fmt"
	"time"
)

// DefaultCommitTimeout bounds how long Submit waits for a commit event.
const DefaultCommitTimeout = 6 * time.Second

// Client submits proposals through the endorse, order, commit-wait pipeline.
type Client struct {
	endorser Endorser
	orderer  Orderer
	events   EventSource
	timeout  time.Duration
	metrics  Recorder
}

// ClientOption adjusts Client construction.
type ClientOption func(*Client)

// WithCommitTimeout overrides the commit wait window. Non-positive values
// keep the default.
func WithCommitTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRecorder attaches a submission metrics recorder.
func WithRecorder(r Recorder) ClientOption {
	return func(c *Client) {
		if r != nil {
			c.metrics = r
		}
	}
}

// NewClient wires a submission client over the given pipeline stages.
func NewClient(endorser Endorser, orderer Orderer, events EventSource, opts ...ClientOption) *Client {
	c := &Client{
		endorser: endorser,
		orderer:  orderer,
		events:   events,
		timeout:  DefaultCommitTimeout,
		metrics:  NopRecorder{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit runs the full pipeline for one proposal and returns the endorsed
// payload once the transaction commits. The commit event channel is
// registered before anything is sent so a fast commit cannot race past the
// waiter, and it is released exactly once on every exit path.
func (c *Client) Submit(ctx context.Context, prop Proposal) ([]byte, error) {
	start := time.Now()
	payload, err := c.submit(ctx, prop)
	c.metrics.ObserveSubmission(outcomeOf(err), time.Since(start))
	return payload, err
}

func (c *Client) submit(ctx context.Context, prop Proposal) ([]byte, error) {
	events, err := c.events.Register(prop.TxID)
	if err != nil {
		return nil, fmt.Errorf("register commit listener: %w", err)
	}
	defer c.events.Deregister(prop.TxID)

	responses, err := c.endorser.Endorse(ctx, prop)
	if err != nil {
		return nil, fmt.Errorf("endorse %s: %w", prop.TxID, err)
	}
	if len(responses) == 0 {
		return nil, fmt.Errorf("endorse %s: no peer responses", prop.TxID)
	}
	first := responses[0]
	if !first.OK() {
		return nil, ProposalRejectedError{TxID: prop.TxID, Status: first.Status, Message: first.Message}
	}

	env := Envelope{TxID: prop.TxID, ReadWriteSet: first.ReadWriteSet}
	if err := c.orderer.Broadcast(ctx, env); err != nil {
		return nil, OrderingError{TxID: prop.TxID, Err: err}
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	select {
	case ev := <-events:
		if !ev.Committed() {
			return nil, CommitFailedError{TxID: prop.TxID, Code: ev.Code}
		}
		return first.Payload, nil
	case <-timer.C:
		return nil, CommitTimeoutError{TxID: prop.TxID, Timeout: c.timeout}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
