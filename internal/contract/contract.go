// Package contract implements the emission trade business state machine: one
// transition function per business action, executed against a single
// all-or-nothing view of the ledger. Operations never cache state between
// invocations; every call re-reads what it needs.
package contract

import (
	"encoding/json"
	"fmt"

	"emissiontrade/internal/ledger"
	"emissiontrade/pkg/domain"
)

// getRecord unmarshals the value under key into out. ok is false when the key
// is absent.
func getRecord(st ledger.State, key string, out any) (bool, error) {
	value, err := st.Get(key)
	if err != nil {
		return false, err
	}
	if value == nil {
		return false, nil
	}
	if err := json.Unmarshal(value, out); err != nil {
		return false, fmt.Errorf("decode %q: %w", key, err)
	}
	return true, nil
}

func putRecord(st ledger.State, key string, v any) error {
	value, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	return st.Put(key, value)
}

// readIndex returns the id list stored under the owner's index key. A missing
// list is equivalent to an empty one.
func readIndex(st ledger.State, prefix, owner string) ([]string, error) {
	key, err := ledger.ComposeKey(prefix, owner)
	if err != nil {
		return nil, err
	}
	var ids []string
	if _, err := getRecord(st, key, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// appendIndex appends id to the owner's index list. Read-modify-append: safe
// only because commit-time validation covers the index key.
func appendIndex(st ledger.State, prefix, owner, id string) error {
	ids, err := readIndex(st, prefix, owner)
	if err != nil {
		return err
	}
	key, err := ledger.ComposeKey(prefix, owner)
	if err != nil {
		return err
	}
	return putRecord(st, key, append(ids, id))
}

// CreateUser registers a new applicant account.
func CreateUser(st ledger.State, username, password string) error {
	if username == "" || password == "" {
		return domain.ValidationError{Reason: "username and password required"}
	}
	key, err := ledger.ComposeKey(ledger.PrefixUser, username)
	if err != nil {
		return err
	}
	existing, err := st.Get(key)
	if err != nil {
		return err
	}
	if existing != nil {
		return domain.AlreadyExistsError{Entity: domain.EntityUser, ID: username}
	}
	return putRecord(st, key, domain.User{Username: username, Password: password})
}

// GetUserInfo returns the user record, or nil when the user does not exist.
// Absence is a null result here, not an error.
func GetUserInfo(st ledger.State, username string) (*domain.User, error) {
	key, err := ledger.ComposeKey(ledger.PrefixUser, username)
	if err != nil {
		return nil, err
	}
	var user domain.User
	ok, err := getRecord(st, key, &user)
	if err != nil || !ok {
		return nil, err
	}
	return &user, nil
}

// GetUserCorpApprovals resolves the applicant's approvals through the index.
// Ids whose record is missing are skipped.
func GetUserCorpApprovals(st ledger.State, username string) ([]domain.CorpApproval, error) {
	ids, err := readIndex(st, ledger.PrefixUser2Corp, username)
	if err != nil {
		return nil, err
	}
	approvals := []domain.CorpApproval{}
	for _, id := range ids {
		key, err := ledger.ComposeKey(ledger.PrefixCorpApproval, id)
		if err != nil {
			return nil, err
		}
		var approval domain.CorpApproval
		ok, err := getRecord(st, key, &approval)
		if err != nil {
			return nil, err
		}
		if ok {
			approvals = append(approvals, approval)
		}
	}
	return approvals, nil
}

// GetUserProjects resolves the applicant's projects through the index.
func GetUserProjects(st ledger.State, username string) ([]domain.Project, error) {
	ids, err := readIndex(st, ledger.PrefixUser2Project, username)
	if err != nil {
		return nil, err
	}
	projects := []domain.Project{}
	for _, id := range ids {
		key, err := ledger.ComposeKey(ledger.PrefixProject, id)
		if err != nil {
			return nil, err
		}
		var project domain.Project
		ok, err := getRecord(st, key, &project)
		if err != nil {
			return nil, err
		}
		if ok {
			projects = append(projects, project)
		}
	}
	return projects, nil
}

// PostCorpApproval stores a new approval as processing with no linked project
// and appends it to the applicant's index. Returns the stored record.
func PostCorpApproval(st ledger.State, approval domain.CorpApproval) (domain.CorpApproval, error) {
	if approval.ID == "" || approval.Applicant == "" {
		return domain.CorpApproval{}, domain.ValidationError{Reason: "approval id and applicant required"}
	}
	approval.Status = domain.ApprovalProcessing
	approval.ProjectID = nil
	key, err := ledger.ComposeKey(ledger.PrefixCorpApproval, approval.ID)
	if err != nil {
		return domain.CorpApproval{}, err
	}
	if err := putRecord(st, key, approval); err != nil {
		return domain.CorpApproval{}, err
	}
	if err := appendIndex(st, ledger.PrefixUser2Corp, approval.Applicant, approval.ID); err != nil {
		return domain.CorpApproval{}, err
	}
	return approval, nil
}

// PostProject stores a new project as processing with an empty trade history,
// appends it to the applicant's index, and back-fills the referenced
// approval's project link if the approval exists and is not yet linked
// (first writer wins).
func PostProject(st ledger.State, project domain.Project) (domain.Project, error) {
	if project.ID == "" || project.Applicant == "" {
		return domain.Project{}, domain.ValidationError{Reason: "project id and applicant required"}
	}
	project.Status = domain.ProjectProcessing
	project.ProcessingTransaction = nil
	project.CompletedTransactions = nil
	key, err := ledger.ComposeKey(ledger.PrefixProject, project.ID)
	if err != nil {
		return domain.Project{}, err
	}
	if err := putRecord(st, key, project); err != nil {
		return domain.Project{}, err
	}
	if err := appendIndex(st, ledger.PrefixUser2Project, project.Applicant, project.ID); err != nil {
		return domain.Project{}, err
	}

	if project.CorpApprovalID != "" {
		approvalKey, err := ledger.ComposeKey(ledger.PrefixCorpApproval, project.CorpApprovalID)
		if err != nil {
			return domain.Project{}, err
		}
		var approval domain.CorpApproval
		ok, err := getRecord(st, approvalKey, &approval)
		if err != nil {
			return domain.Project{}, err
		}
		if ok && approval.ProjectID == nil {
			id := project.ID
			approval.ProjectID = &id
			if err := putRecord(st, approvalKey, approval); err != nil {
				return domain.Project{}, err
			}
		}
	}
	return project, nil
}

// GetCorpApprovals scans all approvals and keeps those whose status is in the
// provided set. Linear in the number of approvals; the ledger has no
// secondary index by field.
func GetCorpApprovals(st ledger.State, statuses []domain.ApprovalStatus) ([]domain.CorpApproval, error) {
	want := make(map[domain.ApprovalStatus]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}
	it, err := st.Scan(ledger.PrefixCorpApproval)
	if err != nil {
		return nil, err
	}
	approvals := []domain.CorpApproval{}
	for {
		kv, ok := it.Next()
		if !ok {
			break
		}
		var approval domain.CorpApproval
		if err := json.Unmarshal(kv.Value, &approval); err != nil {
			return nil, fmt.Errorf("decode %q: %w", kv.Key, err)
		}
		if want[approval.Status] {
			approvals = append(approvals, approval)
		}
	}
	return approvals, nil
}

// GetProjects scans all projects and keeps those whose status is in the
// provided set.
func GetProjects(st ledger.State, statuses []domain.ProjectStatus) ([]domain.Project, error) {
	want := make(map[domain.ProjectStatus]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}
	it, err := st.Scan(ledger.PrefixProject)
	if err != nil {
		return nil, err
	}
	projects := []domain.Project{}
	for {
		kv, ok := it.Next()
		if !ok {
			break
		}
		var project domain.Project
		if err := json.Unmarshal(kv.Value, &project); err != nil {
			return nil, fmt.Errorf("decode %q: %w", kv.Key, err)
		}
		if want[project.Status] {
			projects = append(projects, project)
		}
	}
	return projects, nil
}

// GetCorpApproval looks up one approval by id.
func GetCorpApproval(st ledger.State, id string) (domain.CorpApproval, error) {
	key, err := ledger.ComposeKey(ledger.PrefixCorpApproval, id)
	if err != nil {
		return domain.CorpApproval{}, err
	}
	var approval domain.CorpApproval
	ok, err := getRecord(st, key, &approval)
	if err != nil {
		return domain.CorpApproval{}, err
	}
	if !ok {
		return domain.CorpApproval{}, domain.NotFoundError{Entity: domain.EntityCorpApproval, ID: id}
	}
	return approval, nil
}

// GetProject looks up one project by id.
func GetProject(st ledger.State, id string) (domain.Project, error) {
	key, err := ledger.ComposeKey(ledger.PrefixProject, id)
	if err != nil {
		return domain.Project{}, err
	}
	var project domain.Project
	ok, err := getRecord(st, key, &project)
	if err != nil {
		return domain.Project{}, err
	}
	if !ok {
		return domain.Project{}, domain.NotFoundError{Entity: domain.EntityProject, ID: id}
	}
	return project, nil
}

// SignCorpApproval overwrites the approval's status. Any previous status may
// be overwritten; re-signing is allowed.
func SignCorpApproval(st ledger.State, id string, status domain.ApprovalStatus) error {
	if !domain.ValidApprovalStatus(status) {
		return domain.ValidationError{Reason: fmt.Sprintf("invalid approval status %q", status)}
	}
	approval, err := GetCorpApproval(st, id)
	if err != nil {
		return err
	}
	approval.Status = status
	key, err := ledger.ComposeKey(ledger.PrefixCorpApproval, id)
	if err != nil {
		return err
	}
	return putRecord(st, key, approval)
}

// SignProject overwrites the project's status. Any previous status may be
// overwritten.
func SignProject(st ledger.State, id string, status domain.ProjectStatus) error {
	if !domain.ValidProjectStatus(status) {
		return domain.ValidationError{Reason: fmt.Sprintf("invalid project status %q", status)}
	}
	project, err := GetProject(st, id)
	if err != nil {
		return err
	}
	project.Status = status
	key, err := ledger.ComposeKey(ledger.PrefixProject, id)
	if err != nil {
		return err
	}
	return putRecord(st, key, project)
}

// tradableStatuses are the project states visible to the trading center.
var tradableStatuses = map[domain.ProjectStatus]bool{
	domain.ProjectAccepted: true,
	domain.ProjectTrading:  true,
	domain.ProjectDone:     true,
}

// GetUserAcceptedProjects returns the applicant's projects of the given type
// that have passed review.
func GetUserAcceptedProjects(st ledger.State, username string, typ domain.ProjectType) ([]domain.Project, error) {
	if !domain.ValidProjectType(typ) {
		return nil, domain.ValidationError{Reason: fmt.Sprintf("invalid project type %q", typ)}
	}
	all, err := GetUserProjects(st, username)
	if err != nil {
		return nil, err
	}
	projects := []domain.Project{}
	for _, project := range all {
		if project.Type == typ && tradableStatuses[project.Status] {
			projects = append(projects, project)
		}
	}
	return projects, nil
}

// GetOnSaleProjects returns every sell project currently accepted and free
// for trading.
func GetOnSaleProjects(st ledger.State) ([]domain.Project, error) {
	all, err := GetProjects(st, []domain.ProjectStatus{domain.ProjectAccepted})
	if err != nil {
		return nil, err
	}
	projects := []domain.Project{}
	for _, project := range all {
		if project.Type == domain.ProjectSell {
			projects = append(projects, project)
		}
	}
	return projects, nil
}

// Purchase opens a trade of amount permits between a buyer and a seller
// project: both projects move to trading with the transaction id pinned as
// their single in-flight trade, and a processing transaction record is
// created. All three writes land in one atomic batch.
//
// Both projects must hold strictly more than amount remaining permits;
// equality is rejected, so a single trade can never fully drain a project.
func Purchase(st ledger.State, buyProjectID, sellProjectID string, amount int64, transactionID string) (domain.Transaction, error) {
	if amount <= 0 {
		return domain.Transaction{}, domain.ValidationError{Reason: "transaction amount must be positive"}
	}
	if transactionID == "" {
		return domain.Transaction{}, domain.ValidationError{Reason: "transaction id required"}
	}

	buyer, err := GetProject(st, buyProjectID)
	if err != nil {
		return domain.Transaction{}, err
	}
	if buyer.RemainEmissionPermits <= amount {
		return domain.Transaction{}, domain.BusinessRuleError{Reason: "buyer remain emission permits not enough"}
	}
	seller, err := GetProject(st, sellProjectID)
	if err != nil {
		return domain.Transaction{}, err
	}
	if seller.RemainEmissionPermits <= amount {
		return domain.Transaction{}, domain.BusinessRuleError{Reason: "seller remain emission permits not enough"}
	}

	id := transactionID
	buyer.ProcessingTransaction = &id
	buyer.Status = domain.ProjectTrading
	seller.ProcessingTransaction = &id
	seller.Status = domain.ProjectTrading

	transaction := domain.Transaction{
		ID:              transactionID,
		BuyProjectID:    buyProjectID,
		SellProjectID:   sellProjectID,
		EmissionPermits: amount,
		Status:          domain.TransactionProcessing,
	}

	if err := putRecord(st, ledger.MustComposeKey(ledger.PrefixProject, buyProjectID), buyer); err != nil {
		return domain.Transaction{}, err
	}
	if err := putRecord(st, ledger.MustComposeKey(ledger.PrefixProject, sellProjectID), seller); err != nil {
		return domain.Transaction{}, err
	}
	if err := putRecord(st, ledger.MustComposeKey(ledger.PrefixTransaction, transactionID), transaction); err != nil {
		return domain.Transaction{}, err
	}
	return transaction, nil
}

// GetTransaction looks up one transaction and inlines the buyer and seller
// project snapshots.
func GetTransaction(st ledger.State, id string) (domain.TransactionDetail, error) {
	key, err := ledger.ComposeKey(ledger.PrefixTransaction, id)
	if err != nil {
		return domain.TransactionDetail{}, err
	}
	var transaction domain.Transaction
	ok, err := getRecord(st, key, &transaction)
	if err != nil {
		return domain.TransactionDetail{}, err
	}
	if !ok {
		return domain.TransactionDetail{}, domain.NotFoundError{Entity: domain.EntityTransaction, ID: id}
	}
	buyer, err := GetProject(st, transaction.BuyProjectID)
	if err != nil {
		return domain.TransactionDetail{}, err
	}
	seller, err := GetProject(st, transaction.SellProjectID)
	if err != nil {
		return domain.TransactionDetail{}, err
	}
	return domain.TransactionDetail{
		EmissionPermits: transaction.EmissionPermits,
		Status:          transaction.Status,
		BuyerProject:    buyer,
		SellerProject:   seller,
	}, nil
}

// Confirm settles a pending trade. Both projects drop their in-flight
// transaction reference and record the trade id in their history whether the
// trade was accepted or rejected. On accept, both projects' remaining permits
// shrink by the trade amount and a project that reaches exactly zero becomes
// done; on reject, both projects simply return to accepted with their permits
// untouched. Transaction and both projects persist in one atomic batch.
func Confirm(st ledger.State, transactionID string, option domain.TransactionStatus) error {
	if option != domain.TransactionAccepted && option != domain.TransactionRejected {
		return domain.ValidationError{Reason: fmt.Sprintf("invalid confirm option %q", option)}
	}

	txKey, err := ledger.ComposeKey(ledger.PrefixTransaction, transactionID)
	if err != nil {
		return err
	}
	var transaction domain.Transaction
	ok, err := getRecord(st, txKey, &transaction)
	if err != nil {
		return err
	}
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityTransaction, ID: transactionID}
	}
	buyer, err := GetProject(st, transaction.BuyProjectID)
	if err != nil {
		return err
	}
	seller, err := GetProject(st, transaction.SellProjectID)
	if err != nil {
		return err
	}

	buyer.ProcessingTransaction = nil
	buyer.CompletedTransactions = append(buyer.CompletedTransactions, transactionID)
	seller.ProcessingTransaction = nil
	seller.CompletedTransactions = append(seller.CompletedTransactions, transactionID)

	switch option {
	case domain.TransactionAccepted:
		transaction.Status = domain.TransactionAccepted
		buyer.RemainEmissionPermits -= transaction.EmissionPermits
		buyer.Status = settledStatus(buyer.RemainEmissionPermits)
		seller.RemainEmissionPermits -= transaction.EmissionPermits
		seller.Status = settledStatus(seller.RemainEmissionPermits)
	case domain.TransactionRejected:
		transaction.Status = domain.TransactionRejected
		buyer.Status = domain.ProjectAccepted
		seller.Status = domain.ProjectAccepted
	}

	if err := putRecord(st, ledger.MustComposeKey(ledger.PrefixProject, transaction.BuyProjectID), buyer); err != nil {
		return err
	}
	if err := putRecord(st, ledger.MustComposeKey(ledger.PrefixProject, transaction.SellProjectID), seller); err != nil {
		return err
	}
	return putRecord(st, txKey, transaction)
}

func settledStatus(remain int64) domain.ProjectStatus {
	if remain == 0 {
		return domain.ProjectDone
	}
	return domain.ProjectAccepted
}
