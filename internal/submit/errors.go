package submit

import (
	"fmt"
	"time"

	"emissiontrade/internal/ledger"
)

// ProposalRejectedError reports that the endorsing peer refused to simulate
// the proposal. Nothing was ordered; the ledger is untouched.
type ProposalRejectedError struct {
	TxID    string
	Status  int
	Message string
}

func (e ProposalRejectedError) Error() string {
	return fmt.Sprintf("proposal %s rejected (status %d): %s", e.TxID, e.Status, e.Message)
}

// OrderingError reports that the ordering service did not accept the
// envelope. The transaction was not committed.
type OrderingError struct {
	TxID string
	Err  error
}

func (e OrderingError) Error() string {
	return fmt.Sprintf("ordering transaction %s: %v", e.TxID, e.Err)
}

func (e OrderingError) Unwrap() error { return e.Err }

// CommitFailedError reports that the transaction was ordered but failed
// validation at commit, most commonly with an MVCC read conflict.
type CommitFailedError struct {
	TxID string
	Code ledger.ValidationCode
}

func (e CommitFailedError) Error() string {
	return fmt.Sprintf("transaction %s invalidated at commit: %s", e.TxID, e.Code)
}

// Conflict reports whether the failure was an MVCC read conflict, which is
// safe to retry with a fresh simulation.
func (e CommitFailedError) Conflict() bool { return e.Code == ledger.CodeMVCCConflict }

// CommitTimeoutError reports that no commit event arrived within the wait
// window. The outcome is unknown: the transaction may still commit later.
type CommitTimeoutError struct {
	TxID    string
	Timeout time.Duration
}

func (e CommitTimeoutError) Error() string {
	return fmt.Sprintf("no commit event for transaction %s within %s: outcome unknown", e.TxID, e.Timeout)
}
