package contract

import (
	"encoding/json"
	"fmt"
	"strconv"

	"emissiontrade/internal/ledger"
	"emissiontrade/pkg/domain"
)

// Action names one business operation. The wire names match the historical
// invocation names and are part of the external contract.
type Action string

const (
	ActionCreateUser              Action = "createUser"
	ActionGetUserInfo             Action = "getUserInfo"
	ActionGetUserCorpApprovals    Action = "getUserCorpApprovals"
	ActionGetUserProjects         Action = "getUserProjects"
	ActionPostCorpApproval        Action = "postCorpApproval"
	ActionPostProject             Action = "postProject"
	ActionGetCorpApprovals        Action = "getCorpApprovals"
	ActionGetProjects             Action = "getProjects"
	ActionGetCorpApproval         Action = "getCorpApproval"
	ActionGetProject              Action = "getProject"
	ActionSignCorpApproval        Action = "signCorpApproval"
	ActionSignProject             Action = "signProject"
	ActionGetUserAcceptedProjects Action = "getUserAcceptedProjects"
	ActionGetOnSaleProjects       Action = "getOnSaleProjects"
	ActionPurchase                Action = "purchase"
	ActionGetTransaction          Action = "getTransaction"
	ActionConfirm                 Action = "confirm"
)

// AllActions lists every supported action. The dispatcher is validated
// against this list at construction.
var AllActions = []Action{
	ActionCreateUser,
	ActionGetUserInfo,
	ActionGetUserCorpApprovals,
	ActionGetUserProjects,
	ActionPostCorpApproval,
	ActionPostProject,
	ActionGetCorpApprovals,
	ActionGetProjects,
	ActionGetCorpApproval,
	ActionGetProject,
	ActionSignCorpApproval,
	ActionSignProject,
	ActionGetUserAcceptedProjects,
	ActionGetOnSaleProjects,
	ActionPurchase,
	ActionGetTransaction,
	ActionConfirm,
}

// readOnlyActions never write; they may be evaluated against a snapshot
// without submitting for ordering.
var readOnlyActions = map[Action]bool{
	ActionGetUserInfo:             true,
	ActionGetUserCorpApprovals:    true,
	ActionGetUserProjects:         true,
	ActionGetCorpApprovals:        true,
	ActionGetProjects:             true,
	ActionGetCorpApproval:         true,
	ActionGetProject:              true,
	ActionGetUserAcceptedProjects: true,
	ActionGetOnSaleProjects:       true,
	ActionGetTransaction:          true,
}

// ReadOnly reports whether the action performs no writes.
func (a Action) ReadOnly() bool { return readOnlyActions[a] }

// UnknownActionError reports an invocation of an action the dispatcher does
// not know.
type UnknownActionError struct {
	Action Action
}

func (e UnknownActionError) Error() string {
	return fmt.Sprintf("unknown action %q", e.Action)
}

// handler executes one action against the given state, returning the action's
// serialized result payload.
type handler func(st ledger.State, args []string) ([]byte, error)

// Dispatcher maps actions to handlers. Handlers validate argument arity and
// shape before touching the ledger, then delegate to the typed operations.
type Dispatcher struct {
	handlers map[Action]handler
}

// NewDispatcher builds the dispatch table and verifies it covers every
// declared action, so a missing handler fails at construction rather than on
// first use.
func NewDispatcher() *Dispatcher {
	d := &Dispatcher{handlers: map[Action]handler{
		ActionCreateUser:              handleCreateUser,
		ActionGetUserInfo:             handleGetUserInfo,
		ActionGetUserCorpApprovals:    handleGetUserCorpApprovals,
		ActionGetUserProjects:         handleGetUserProjects,
		ActionPostCorpApproval:        handlePostCorpApproval,
		ActionPostProject:             handlePostProject,
		ActionGetCorpApprovals:        handleGetCorpApprovals,
		ActionGetProjects:             handleGetProjects,
		ActionGetCorpApproval:         handleGetCorpApproval,
		ActionGetProject:              handleGetProject,
		ActionSignCorpApproval:        handleSignCorpApproval,
		ActionSignProject:             handleSignProject,
		ActionGetUserAcceptedProjects: handleGetUserAcceptedProjects,
		ActionGetOnSaleProjects:       handleGetOnSaleProjects,
		ActionPurchase:                handlePurchase,
		ActionGetTransaction:          handleGetTransaction,
		ActionConfirm:                 handleConfirm,
	}}
	for _, action := range AllActions {
		if _, ok := d.handlers[action]; !ok {
			panic(fmt.Sprintf("contract: no handler for action %q", action))
		}
	}
	return d
}

// Invoke executes the named action. Unknown actions fail with
// UnknownActionError before any ledger access.
func (d *Dispatcher) Invoke(st ledger.State, action Action, args []string) ([]byte, error) {
	h, ok := d.handlers[action]
	if !ok {
		return nil, UnknownActionError{Action: action}
	}
	return h(st, args)
}

func requireArgs(args []string, n int) error {
	if len(args) != n {
		return domain.ValidationError{Reason: fmt.Sprintf("incorrect number of arguments: expecting %d, got %d", n, len(args))}
	}
	return nil
}

func handleCreateUser(st ledger.State, args []string) ([]byte, error) {
	if err := requireArgs(args, 2); err != nil {
		return nil, err
	}
	return nil, CreateUser(st, args[0], args[1])
}

func handleGetUserInfo(st ledger.State, args []string) ([]byte, error) {
	if err := requireArgs(args, 1); err != nil {
		return nil, err
	}
	user, err := GetUserInfo(st, args[0])
	if err != nil {
		return nil, err
	}
	return json.Marshal(user)
}

func handleGetUserCorpApprovals(st ledger.State, args []string) ([]byte, error) {
	if err := requireArgs(args, 1); err != nil {
		return nil, err
	}
	approvals, err := GetUserCorpApprovals(st, args[0])
	if err != nil {
		return nil, err
	}
	return json.Marshal(approvals)
}

func handleGetUserProjects(st ledger.State, args []string) ([]byte, error) {
	if err := requireArgs(args, 1); err != nil {
		return nil, err
	}
	projects, err := GetUserProjects(st, args[0])
	if err != nil {
		return nil, err
	}
	return json.Marshal(projects)
}

func handlePostCorpApproval(st ledger.State, args []string) ([]byte, error) {
	if err := requireArgs(args, 1); err != nil {
		return nil, err
	}
	var approval domain.CorpApproval
	if err := json.Unmarshal([]byte(args[0]), &approval); err != nil {
		return nil, domain.ValidationError{Reason: fmt.Sprintf("malformed approval: %v", err)}
	}
	stored, err := PostCorpApproval(st, approval)
	if err != nil {
		return nil, err
	}
	return json.Marshal(stored)
}

func handlePostProject(st ledger.State, args []string) ([]byte, error) {
	if err := requireArgs(args, 1); err != nil {
		return nil, err
	}
	var project domain.Project
	if err := json.Unmarshal([]byte(args[0]), &project); err != nil {
		return nil, domain.ValidationError{Reason: fmt.Sprintf("malformed project: %v", err)}
	}
	stored, err := PostProject(st, project)
	if err != nil {
		return nil, err
	}
	return json.Marshal(stored)
}

func handleGetCorpApprovals(st ledger.State, args []string) ([]byte, error) {
	if err := requireArgs(args, 1); err != nil {
		return nil, err
	}
	var statuses []domain.ApprovalStatus
	if err := json.Unmarshal([]byte(args[0]), &statuses); err != nil {
		return nil, domain.ValidationError{Reason: fmt.Sprintf("malformed status set: %v", err)}
	}
	approvals, err := GetCorpApprovals(st, statuses)
	if err != nil {
		return nil, err
	}
	return json.Marshal(approvals)
}

func handleGetProjects(st ledger.State, args []string) ([]byte, error) {
	if err := requireArgs(args, 1); err != nil {
		return nil, err
	}
	var statuses []domain.ProjectStatus
	if err := json.Unmarshal([]byte(args[0]), &statuses); err != nil {
		return nil, domain.ValidationError{Reason: fmt.Sprintf("malformed status set: %v", err)}
	}
	projects, err := GetProjects(st, statuses)
	if err != nil {
		return nil, err
	}
	return json.Marshal(projects)
}

func handleGetCorpApproval(st ledger.State, args []string) ([]byte, error) {
	if err := requireArgs(args, 1); err != nil {
		return nil, err
	}
	approval, err := GetCorpApproval(st, args[0])
	if err != nil {
		return nil, err
	}
	return json.Marshal(approval)
}

func handleGetProject(st ledger.State, args []string) ([]byte, error) {
	if err := requireArgs(args, 1); err != nil {
		return nil, err
	}
	project, err := GetProject(st, args[0])
	if err != nil {
		return nil, err
	}
	return json.Marshal(project)
}

func handleSignCorpApproval(st ledger.State, args []string) ([]byte, error) {
	if err := requireArgs(args, 2); err != nil {
		return nil, err
	}
	return nil, SignCorpApproval(st, args[0], domain.ApprovalStatus(args[1]))
}

func handleSignProject(st ledger.State, args []string) ([]byte, error) {
	if err := requireArgs(args, 2); err != nil {
		return nil, err
	}
	return nil, SignProject(st, args[0], domain.ProjectStatus(args[1]))
}

func handleGetUserAcceptedProjects(st ledger.State, args []string) ([]byte, error) {
	if err := requireArgs(args, 2); err != nil {
		return nil, err
	}
	projects, err := GetUserAcceptedProjects(st, args[0], domain.ProjectType(args[1]))
	if err != nil {
		return nil, err
	}
	return json.Marshal(projects)
}

func handleGetOnSaleProjects(st ledger.State, args []string) ([]byte, error) {
	if err := requireArgs(args, 0); err != nil {
		return nil, err
	}
	projects, err := GetOnSaleProjects(st)
	if err != nil {
		return nil, err
	}
	return json.Marshal(projects)
}

func handlePurchase(st ledger.State, args []string) ([]byte, error) {
	if err := requireArgs(args, 4); err != nil {
		return nil, err
	}
	amount, err := strconv.ParseInt(args[2], 10, 64)
	if err != nil {
		return nil, domain.ValidationError{Reason: fmt.Sprintf("malformed amount %q", args[2])}
	}
	transaction, err := Purchase(st, args[0], args[1], amount, args[3])
	if err != nil {
		return nil, err
	}
	return json.Marshal(transaction)
}

func handleGetTransaction(st ledger.State, args []string) ([]byte, error) {
	if err := requireArgs(args, 1); err != nil {
		return nil, err
	}
	detail, err := GetTransaction(st, args[0])
	if err != nil {
		return nil, err
	}
	return json.Marshal(detail)
}

func handleConfirm(st ledger.State, args []string) ([]byte, error) {
	if err := requireArgs(args, 2); err != nil {
		return nil, err
	}
	return nil, Confirm(st, args[0], domain.TransactionStatus(args[1]))
}
