package budget_request

import (
	"errors"

	"github.com/RitoIssei/bot-mng-ns/pkg/access"
	"github.com/RitoIssei/bot-mng-ns/pkg/aggregation"
	"github.com/RitoIssei/bot-mng-ns/pkg/ledger"
)

var ErrMissingFields = errors.New("team, codes and amount are required")
var ErrNothingPending = errors.New("no pending entries for budget")
var ErrForbidden = access.ErrForbidden
var ErrLedgerUnavailable = errors.New("ledger did not accept the entries")

// ErrInvalidAmount is the ledger's amount error so callers need only one package.
var ErrInvalidAmount = ledger.ErrInvalidAmount

// Actor is the person acting on a staged proposal.
type Actor struct {
	ID          int64
	Username    string
	DisplayName string
}

func (a Actor) name() string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	return a.Username
}

// Request is an operator's free-text budget request. Codes is a comma separated list where
// a repeated code takes a larger share.
type Request struct {
	Team      string
	Codes     string
	Amount    string
	GroupName string
	ChatID    int64
	Note      string
}

// Line is one distinct code of a proposal with its share and the spend it would lead to.
type Line struct {
	Code      string
	Original  string
	Count     int
	Share     int64
	Current   int64
	Projected int64
	Threshold aggregation.ThresholdResult
}

type Proposal struct {
	Token    string
	BudgetID string
	Team     string
	Amount   int64
	Lines    []Line
	Note     string
}

// Exceeded reports whether any line would go over its configured limit.
func (p Proposal) Exceeded() bool {
	for _, line := range p.Lines {
		if line.Threshold.Exceeded {
			return true
		}
	}
	return false
}

// Approval is the result of committing a staged split.
type Approval struct {
	BudgetID  string
	Team      string
	Timestamp int64
	EntryIDs  []string
	Shares    map[string]int64
}

type Completion struct {
	BudgetID  string
	Team      string
	Completed int
	// Spend is the folded spend per code of the batch after completion.
	Spend map[string]int64
}

// RefundRequest books money back against a single code. Period is "+" or "-" to move the
// refund into the neighbouring month near a month boundary.
type RefundRequest struct {
	Team      string
	Code      string
	Amount    string
	Period    string
	GroupName string
	ChatID    int64
	Note      string
}

type Refund struct {
	ID        string
	Team      string
	Code      string
	Amount    int64
	Timestamp int64
	// Total is the folded spend of Code in the month the refund was booked into.
	Total int64
}
