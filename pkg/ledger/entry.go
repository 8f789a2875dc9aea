package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var ErrInvalidAmount = errors.New("invalid amount")
var ErrEntryNotFound = errors.New("ledger entry not found")
var ErrInvalidStatus = errors.New("entries can only be created pending or as refund")

type Status string

const (
	StatusPending Status = "pending"
	StatusDone    Status = "done"
	StatusRefund  Status = "refund"
)

// RecordKind tags replicated ledger rows for the downstream subscriber.
const RecordKind = "budget"

type Entry struct {
	ID                   string
	BudgetID             string
	Team                 string
	ContractCode         string
	OriginalContractCode string
	Area                 string
	GroupName            string
	ChatID               int64
	Amount               int64
	Status               Status
	// Timestamp is the accounting time in epoch seconds, not necessarily when the row was written.
	Timestamp int64
	// EndTime stays 0 while the entry is pending.
	EndTime   int64
	Assistant string
	Note      string
}

// NewEntry is the input to Service.Add. Amount is coerced to an integer and rejected with
// ErrInvalidAmount when it cannot be. A zero Timestamp means "now".
type NewEntry struct {
	BudgetID             string
	Team                 string
	ContractCode         string
	OriginalContractCode string
	GroupName            string
	ChatID               int64
	Amount               any
	Status               Status
	Timestamp            int64
	Assistant            string
	Note                 string
}

// Patch holds the fields UpdateFields may change. Nil fields are left untouched.
type Patch struct {
	Team         *string
	ContractCode *string
	GroupName    *string
	Assistant    *string
	Note         *string
	Timestamp    *int64
	Amount       any
}

// FieldUpdate is a validated Patch.
type FieldUpdate struct {
	Team         *string
	ContractCode *string
	GroupName    *string
	Assistant    *string
	Note         *string
	Timestamp    *int64
	Amount       *int64
}

func (u FieldUpdate) empty() bool {
	return u.Team == nil && u.ContractCode == nil && u.GroupName == nil && u.Assistant == nil &&
		u.Note == nil && u.Timestamp == nil && u.Amount == nil
}

// Record renders the entry as the flat key/value map sent to replication subscribers.
func (e Entry) Record() map[string]any {
	return map[string]any{
		"id":                     e.ID,
		"budget_id":              e.BudgetID,
		"team":                   e.Team,
		"contract_code":          e.ContractCode,
		"original_contract_code": e.OriginalContractCode,
		"area":                   e.Area,
		"group_name":             e.GroupName,
		"chat_id":                e.ChatID,
		"amount":                 e.Amount,
		"status":                 string(e.Status),
		"timestamp":              e.Timestamp,
		"end_time":               e.EndTime,
		"assistant":              e.Assistant,
		"note":                   e.Note,
		"key":                    RecordKind,
	}
}

// DeletionRecord tells replication subscribers that every row of a batch is gone.
func DeletionRecord(area string, budgetID string, deleted int64) map[string]any {
	return map[string]any{
		"budget_id": budgetID,
		"area":      area,
		"deleted":   true,
		"count":     deleted,
		"key":       RecordKind,
	}
}

// ParseAmount coerces v to an integer amount. Integral floats and numeric strings are
// accepted; anything else yields ErrInvalidAmount.
func ParseAmount(v any) (int64, error) {
	switch a := v.(type) {
	case int:
		return int64(a), nil
	case int8:
		return int64(a), nil
	case int16:
		return int64(a), nil
	case int32:
		return int64(a), nil
	case int64:
		return a, nil
	case uint8:
		return int64(a), nil
	case uint16:
		return int64(a), nil
	case uint32:
		return int64(a), nil
	case uint:
		if uint64(a) > math.MaxInt64 {
			return 0, fmt.Errorf("%w: %d overflows", ErrInvalidAmount, a)
		}
		return int64(a), nil
	case uint64:
		if a > math.MaxInt64 {
			return 0, fmt.Errorf("%w: %d overflows", ErrInvalidAmount, a)
		}
		return int64(a), nil
	case float32:
		return floatAmount(float64(a))
	case float64:
		return floatAmount(a)
	case json.Number:
		return stringAmount(string(a))
	case string:
		return stringAmount(a)
	}
	return 0, fmt.Errorf("%w: unsupported type %T", ErrInvalidAmount, v)
}

func floatAmount(f float64) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || math.Abs(f) > math.MaxInt64 {
		return 0, fmt.Errorf("%w: %v is not an integer", ErrInvalidAmount, f)
	}
	return int64(f), nil
}

func stringAmount(s string) (int64, error) {
	value, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return value, nil
}
