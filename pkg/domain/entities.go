// Package domain defines the persistent entities, status vocabularies, and
// typed errors shared by the emission trade ledger core.
package domain

// EntityType identifies the type of record stored on the ledger.
type EntityType string

// Supported entity type identifiers used in errors and key prefixes.
const (
	// EntityUser identifies a registered applicant account.
	EntityUser EntityType = "user"
	// EntityCorpApproval identifies a corporation approval application.
	EntityCorpApproval EntityType = "corp_approval"
	// EntityProject identifies an emissions-permit project.
	EntityProject EntityType = "project"
	// EntityTransaction identifies a permit trade between two projects.
	EntityTransaction EntityType = "transaction"
)

// ApprovalStatus enumerates the review states of a corporation approval.
type ApprovalStatus string

// Canonical approval statuses set by posting and signing.
const (
	ApprovalProcessing ApprovalStatus = "processing"
	ApprovalAccepted   ApprovalStatus = "accepted"
	ApprovalRejected   ApprovalStatus = "rejected"
)

// ProjectStatus enumerates the lifecycle states of a project.
type ProjectStatus string

// Canonical project statuses. A project enters trading while a transaction is
// pending and reaches done only when its remaining permits are exhausted.
const (
	ProjectProcessing ProjectStatus = "processing"
	ProjectAccepted   ProjectStatus = "accepted"
	ProjectRejected   ProjectStatus = "rejected"
	ProjectTrading    ProjectStatus = "trading"
	ProjectDone       ProjectStatus = "done"
)

// ProjectType distinguishes permit buyers from permit sellers.
type ProjectType string

const (
	ProjectBuy  ProjectType = "buy"
	ProjectSell ProjectType = "sell"
)

// TransactionStatus enumerates trade confirmation states. A transaction is
// created as processing and moves exactly once to accepted or rejected.
type TransactionStatus string

const (
	TransactionProcessing TransactionStatus = "processing"
	TransactionAccepted   TransactionStatus = "accepted"
	TransactionRejected   TransactionStatus = "rejected"
)

// User is a registered applicant account. Immutable once created.
type User struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// CorpApproval is a corporation's application to participate in permit
// trading. ProjectID is nil until a project referencing the approval is
// posted; the first project to reference it wins.
type CorpApproval struct {
	ID          string         `json:"id"`
	Applicant   string         `json:"applicant"`
	Name        string         `json:"name"`
	Certificate string         `json:"certificate"`
	Status      ApprovalStatus `json:"status"`
	ProjectID   *string        `json:"project_id"`
}

// Project is a permit allocation that can buy or sell emission permits.
// RemainEmissionPermits only decreases, through confirmed trades.
// ProcessingTransaction holds at most one in-flight transaction id;
// CompletedTransactions is an append-only history of trade ids, including
// rejected trades.
type Project struct {
	ID                     string        `json:"id"`
	CorpApprovalID         string        `json:"corp_approval_id"`
	Applicant              string        `json:"applicant"`
	Name                   string        `json:"name"`
	Type                   ProjectType   `json:"type"`
	InitialEmissionPermits int64         `json:"initial_emission_permits"`
	TargetEmissionPermits  int64         `json:"target_emission_permits"`
	RemainEmissionPermits  int64         `json:"remain_emission_permits"`
	Status                 ProjectStatus `json:"status"`
	ProcessingTransaction  *string       `json:"processing_transaction"`
	CompletedTransactions  []string      `json:"completed_transactions"`
}

// Transaction records a pending or settled permit trade between a buyer
// project and a seller project.
type Transaction struct {
	ID              string            `json:"id"`
	BuyProjectID    string            `json:"buy_project_id"`
	SellProjectID   string            `json:"sell_project_id"`
	EmissionPermits int64             `json:"transaction_emission_permits"`
	Status          TransactionStatus `json:"status"`
}

// TransactionDetail is the expanded read model returned for a transaction
// lookup, with the buyer and seller project snapshots inlined.
type TransactionDetail struct {
	EmissionPermits int64             `json:"transaction_emission_permits"`
	Status          TransactionStatus `json:"status"`
	BuyerProject    Project           `json:"buyer_project"`
	SellerProject   Project           `json:"seller_project"`
}

// ValidApprovalStatus reports whether s is a recognised approval status.
func ValidApprovalStatus(s ApprovalStatus) bool {
	switch s {
	case ApprovalProcessing, ApprovalAccepted, ApprovalRejected:
		return true
	}
	return false
}

// ValidProjectStatus reports whether s is a recognised project status.
func ValidProjectStatus(s ProjectStatus) bool {
	switch s {
	case ProjectProcessing, ProjectAccepted, ProjectRejected, ProjectTrading, ProjectDone:
		return true
	}
	return false
}

// ValidProjectType reports whether t is a recognised project type.
func ValidProjectType(t ProjectType) bool {
	return t == ProjectBuy || t == ProjectSell
}
