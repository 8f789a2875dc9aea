package confirmation

type Kind string

const (
	KindBudget  Kind = "budget"
	KindReport  Kind = "report"
	KindHold    Kind = "hold"
	KindDeposit Kind = "deposit"
)

// Kinds lists every kind with its own staging table.
var Kinds = []Kind{KindBudget, KindReport, KindHold, KindDeposit}

func (k Kind) Valid() bool {
	switch k {
	case KindBudget, KindReport, KindHold, KindDeposit:
		return true
	}
	return false
}

func (k Kind) table() string {
	return "confirmation_" + string(k)
}

// Payload is implemented by every staged proposal variant.
type Payload interface {
	Kind() Kind
}

// BudgetSplit is a proposed allocation of Amount across Codes, one share per occurrence.
type BudgetSplit struct {
	BudgetID string `json:"budget_id"`
	Team     string `json:"team"`
	// Codes are normalized and keep request order, repeats included.
	Codes         []string          `json:"codes"`
	OriginalCodes map[string]string `json:"original_codes,omitempty"`
	Amount        int64             `json:"amount"`
	Area          string            `json:"area"`
	GroupName     string            `json:"group_name,omitempty"`
	ChatID        int64             `json:"chat_id,omitempty"`
	Assistant     string            `json:"assistant,omitempty"`
	Note          string            `json:"note,omitempty"`
}

func (BudgetSplit) Kind() Kind { return KindBudget }

// SpendReport is an operator's declared spend for a set of codes awaiting confirmation.
type SpendReport struct {
	Team     string   `json:"team"`
	Codes    []string `json:"codes"`
	Amount   int64    `json:"amount"`
	Area     string   `json:"area"`
	Reporter string   `json:"reporter"`
	ChatID   int64    `json:"chat_id,omitempty"`
	Note     string   `json:"note,omitempty"`
}

func (SpendReport) Kind() Kind { return KindReport }

type Hold struct {
	Team        string `json:"team"`
	Code        string `json:"code"`
	Amount      int64  `json:"amount"`
	Area        string `json:"area"`
	RequestedBy string `json:"requested_by"`
	Reason      string `json:"reason,omitempty"`
}

func (Hold) Kind() Kind { return KindHold }

// Deposit must be approved by the operator named in Operator.
type Deposit struct {
	Team        string `json:"team"`
	Amount      int64  `json:"amount"`
	Area        string `json:"area"`
	Operator    string `json:"operator"`
	RequestedBy string `json:"requested_by"`
	Note        string `json:"note,omitempty"`
}

func (Deposit) Kind() Kind { return KindDeposit }
