package budget_request

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/RitoIssei/bot-mng-ns/internal/event_bus"
	"github.com/RitoIssei/bot-mng-ns/internal/utils"
	"github.com/RitoIssei/bot-mng-ns/pkg/access"
	"github.com/RitoIssei/bot-mng-ns/pkg/aggregation"
	"github.com/RitoIssei/bot-mng-ns/pkg/confirmation"
	"github.com/RitoIssei/bot-mng-ns/pkg/ledger"
	"github.com/RitoIssei/bot-mng-ns/pkg/normalizer"
	log "github.com/sirupsen/logrus"
)

type Service interface {
	Propose(ctx context.Context, request Request) (Proposal, error)
	Approve(ctx context.Context, token string, actor Actor) (Approval, error)
	Reject(ctx context.Context, kind confirmation.Kind, token string, actor Actor) error
	Complete(ctx context.Context, budgetID string, amountText string) (Completion, error)
	Refund(ctx context.Context, request RefundRequest, actor Actor) (Refund, error)
	Spend(ctx context.Context, team string, codesText string) map[string]int64
	SpendByPrefix(ctx context.Context, team string, prefix string) map[string]int64
	Delete(ctx context.Context, budgetID string, actor Actor) (int, error)

	StageReport(ctx context.Context, report confirmation.SpendReport) (string, error)
	ApproveReport(ctx context.Context, token string, actor Actor) (confirmation.SpendReport, error)
	StageHold(ctx context.Context, hold confirmation.Hold) (string, error)
	ApproveHold(ctx context.Context, token string, actor Actor) (confirmation.Hold, error)
	StageDeposit(ctx context.Context, deposit confirmation.Deposit) (string, error)
	ApproveDeposit(ctx context.Context, token string, actor Actor) (confirmation.Deposit, error)
}

type ServiceImpl struct {
	ledger     ledger.Service
	engine     *aggregation.Engine
	normalizer *normalizer.Normalizer
	authorizer *access.Authorizer
	splits     *confirmation.Store[confirmation.BudgetSplit]
	reports    *confirmation.Store[confirmation.SpendReport]
	holds      *confirmation.Store[confirmation.Hold]
	deposits   *confirmation.Store[confirmation.Deposit]
	eventBus   *event_bus.EventBus
	clock      utils.Clock
	area       string
}

func NewService(
	ledgerService ledger.Service,
	engine *aggregation.Engine,
	codes *normalizer.Normalizer,
	authorizer *access.Authorizer,
	staging confirmation.Repository,
	eventBus *event_bus.EventBus,
	clock utils.Clock,
	area string,
) *ServiceImpl {
	return &ServiceImpl{
		ledger:     ledgerService,
		engine:     engine,
		normalizer: codes,
		authorizer: authorizer,
		splits:     confirmation.NewStore[confirmation.BudgetSplit](staging, clock),
		reports:    confirmation.NewStore[confirmation.SpendReport](staging, clock),
		holds:      confirmation.NewStore[confirmation.Hold](staging, clock),
		deposits:   confirmation.NewStore[confirmation.Deposit](staging, clock),
		eventBus:   eventBus,
		clock:      clock,
		area:       area,
	}
}

func (s *ServiceImpl) Propose(ctx context.Context, request Request) (Proposal, error) {
	if strings.TrimSpace(request.Team) == "" || strings.TrimSpace(request.Codes) == "" || strings.TrimSpace(request.Amount) == "" {
		return Proposal{}, ErrMissingFields
	}
	amount := abs(normalizer.NormalizeMoney(request.Amount))
	if amount <= 0 {
		return Proposal{}, fmt.Errorf("%w: %q", ErrInvalidAmount, request.Amount)
	}

	codes, originals := s.normalizeCodes(request.Codes)
	if len(codes) == 0 {
		return Proposal{}, ErrMissingFields
	}
	team := normalizer.Team(request.Team)

	budgetID, err := normalizer.BatchCode(team)
	if err != nil {
		err := fmt.Errorf("could not generate batch code: %w", err)
		log.Error(err)
		return Proposal{}, err
	}

	counts := aggregation.CountOccurrences(codes)
	shares := aggregation.AllocateProportionally(amount, counts)
	sums := s.engine.CurrentSpend(ctx, aggregation.ExpandAliases(codes), team, nil)

	lines := make([]Line, 0, len(counts))
	for _, code := range distinct(codes) {
		current := aggregation.FoldAliases(code, sums)
		projected := current + shares[code]
		lines = append(lines, Line{
			Code:      code,
			Original:  originals[code],
			Count:     counts[code],
			Share:     shares[code],
			Current:   current,
			Projected: projected,
			Threshold: s.engine.CheckThreshold(ctx, code, projected),
		})
	}

	token, err := s.splits.Stage(ctx, confirmation.BudgetSplit{
		BudgetID:      budgetID,
		Team:          team,
		Codes:         codes,
		OriginalCodes: originals,
		Amount:        amount,
		Area:          s.area,
		GroupName:     request.GroupName,
		ChatID:        request.ChatID,
		Note:          request.Note,
	})
	if err != nil {
		err := fmt.Errorf("could not stage budget %s: %w", budgetID, err)
		log.Error(err)
		return Proposal{}, err
	}
	log.Infof("staged budget %s for team %s: %d across %v", budgetID, team, amount, codes)

	return Proposal{
		Token:    token,
		BudgetID: budgetID,
		Team:     team,
		Amount:   amount,
		Lines:    lines,
		Note:     request.Note,
	}, nil
}

// Approve books every share of the staged split as a pending entry. A token is applied at
// most once; when the ledger refuses any share nothing is booked and the proposal stays
// staged.
func (s *ServiceImpl) Approve(ctx context.Context, token string, actor Actor) (Approval, error) {
	if !s.authorizer.CanApprove(ctx, actor.ID) {
		log.Warnf("user %d may not approve budget %s", actor.ID, token)
		return Approval{}, ErrForbidden
	}

	var approval Approval
	_, err := s.splits.Commit(ctx, token, func(ctx context.Context, split confirmation.BudgetSplit) error {
		timestamp := s.engine.Calendar().BookingTime(s.clock.Now()).Unix()
		shares := aggregation.AllocateProportionally(split.Amount, aggregation.CountOccurrences(split.Codes))

		codes := distinct(split.Codes)
		entries := make([]ledger.NewEntry, 0, len(codes))
		for _, code := range codes {
			entries = append(entries, ledger.NewEntry{
				BudgetID:             split.BudgetID,
				Team:                 split.Team,
				ContractCode:         code,
				OriginalContractCode: split.OriginalCodes[code],
				GroupName:            split.GroupName,
				ChatID:               split.ChatID,
				Amount:               shares[code],
				Status:               ledger.StatusPending,
				Timestamp:            timestamp,
				Assistant:            actor.name(),
				Note:                 split.Note,
			})
		}
		ids, err := s.ledger.AddBatch(ctx, entries)
		if err == nil && ids == nil {
			err = ErrLedgerUnavailable
		}
		if err != nil {
			return fmt.Errorf("could not book budget %s: %w", split.BudgetID, err)
		}

		approval = Approval{
			BudgetID:  split.BudgetID,
			Team:      split.Team,
			Timestamp: timestamp,
			EntryIDs:  ids,
			Shares:    shares,
		}
		return nil
	})
	if err != nil {
		if !confirmation.IsNotFound(err) {
			log.Errorf("could not approve budget %s: %v", token, err)
		}
		return Approval{}, err
	}
	log.Infof("budget %s approved by %s, booked on %s", approval.BudgetID, actor.name(), s.bookingDay(approval.Timestamp))
	return approval, nil
}

// Reject drops a staged proposal of any kind.
func (s *ServiceImpl) Reject(ctx context.Context, kind confirmation.Kind, token string, actor Actor) error {
	var err error
	switch kind {
	case confirmation.KindBudget:
		if !s.authorizer.CanApprove(ctx, actor.ID) {
			return ErrForbidden
		}
		err = s.splits.Reject(ctx, token)
	case confirmation.KindReport:
		if !s.authorizer.CanApprove(ctx, actor.ID) {
			return ErrForbidden
		}
		err = s.reports.Reject(ctx, token)
	case confirmation.KindHold:
		if !s.authorizer.CanApprove(ctx, actor.ID) {
			return ErrForbidden
		}
		err = s.holds.Reject(ctx, token)
	case confirmation.KindDeposit:
		deposit, getErr := s.deposits.Get(ctx, token)
		if getErr != nil {
			return getErr
		}
		if !s.isDepositOperator(actor, deposit) {
			return ErrForbidden
		}
		err = s.deposits.Reject(ctx, token)
	default:
		return confirmation.ErrUnknownKind
	}
	if err != nil {
		return err
	}
	log.Infof("%s %s rejected by %s", kind, token, actor.name())
	return nil
}

// Complete closes every pending entry of the batch. A non-empty amountText replaces the
// amount of each pending entry first.
func (s *ServiceImpl) Complete(ctx context.Context, budgetID string, amountText string) (Completion, error) {
	budgetID = strings.ToUpper(strings.TrimSpace(budgetID))
	pending := s.ledger.GetPendingByBudgetID(ctx, budgetID)
	if len(pending) == 0 {
		return Completion{}, ErrNothingPending
	}

	if strings.TrimSpace(amountText) != "" {
		amount := abs(normalizer.NormalizeMoney(amountText))
		if amount == 0 {
			return Completion{}, fmt.Errorf("%w: %q", ErrInvalidAmount, amountText)
		}
		for _, entry := range pending {
			if _, err := s.ledger.UpdateFields(ctx, entry.ID, ledger.Patch{Amount: amount}); err != nil {
				return Completion{}, err
			}
		}
	}

	completed := s.ledger.UpdateStatus(ctx, budgetID)
	if completed == 0 {
		return Completion{}, ErrLedgerUnavailable
	}

	team := pending[0].Team
	codes := make([]string, 0, len(pending))
	for _, entry := range pending {
		codes = append(codes, entry.ContractCode)
	}
	return Completion{
		BudgetID:  budgetID,
		Team:      team,
		Completed: completed,
		Spend:     s.foldedSpend(ctx, team, distinct(codes), nil),
	}, nil
}

// Refund books a negative done-at-once entry. Whatever sign the operator types, the stored
// amount is negative.
func (s *ServiceImpl) Refund(ctx context.Context, request RefundRequest, actor Actor) (Refund, error) {
	if !s.authorizer.CanApprove(ctx, actor.ID) {
		log.Warnf("user %d may not book refunds", actor.ID)
		return Refund{}, ErrForbidden
	}
	if strings.TrimSpace(request.Team) == "" || strings.TrimSpace(request.Code) == "" || strings.TrimSpace(request.Amount) == "" {
		return Refund{}, ErrMissingFields
	}
	amount := -abs(normalizer.NormalizeMoney(request.Amount))
	if amount == 0 {
		return Refund{}, fmt.Errorf("%w: %q", ErrInvalidAmount, request.Amount)
	}

	team := normalizer.Team(request.Team)
	code := s.normalizer.RefundContractCode(request.Code)
	calendar := s.engine.Calendar()
	bookedAt := calendar.RefundTime(s.clock.Now(), strings.TrimSpace(request.Period))

	budgetID, err := normalizer.BatchCode(team)
	if err != nil {
		err := fmt.Errorf("could not generate batch code: %w", err)
		log.Error(err)
		return Refund{}, err
	}

	id, err := s.ledger.Add(ctx, ledger.NewEntry{
		BudgetID:             budgetID,
		Team:                 team,
		ContractCode:         code,
		OriginalContractCode: strings.TrimSpace(request.Code),
		GroupName:            request.GroupName,
		ChatID:               request.ChatID,
		Amount:               amount,
		Status:               ledger.StatusRefund,
		Timestamp:            bookedAt.Unix(),
		Assistant:            actor.name(),
		Note:                 request.Note,
	})
	if err != nil {
		return Refund{}, err
	}
	if id == "" {
		return Refund{}, ErrLedgerUnavailable
	}

	window := calendar.ResolveAccountingMonth(bookedAt)
	total := s.foldedSpend(ctx, team, []string{code}, &window)[code]
	log.Infof("refunded %d on %s for team %s", amount, code, team)
	return Refund{
		ID:        id,
		Team:      team,
		Code:      code,
		Amount:    amount,
		Timestamp: bookedAt.Unix(),
		Total:     total,
	}, nil
}

// Spend returns the folded spend in the current accounting month for each requested code.
func (s *ServiceImpl) Spend(ctx context.Context, team string, codesText string) map[string]int64 {
	codes, _ := s.normalizeCodes(codesText)
	return s.foldedSpend(ctx, team, distinct(codes), nil)
}

// SpendByPrefix returns the raw spend of the prefix and its suffixed variants.
func (s *ServiceImpl) SpendByPrefix(ctx context.Context, team string, prefix string) map[string]int64 {
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	if prefix == "" {
		return map[string]int64{}
	}
	return s.engine.CurrentSpendByPrefix(ctx, prefix, team, nil)
}

// Delete removes a whole batch. Only admins may delete.
func (s *ServiceImpl) Delete(ctx context.Context, budgetID string, actor Actor) (int, error) {
	if !s.authorizer.IsAdmin(actor.ID) {
		return 0, ErrForbidden
	}
	return s.ledger.Delete(ctx, strings.ToUpper(strings.TrimSpace(budgetID))), nil
}

func (s *ServiceImpl) StageReport(ctx context.Context, report confirmation.SpendReport) (string, error) {
	report.Team = normalizer.Team(report.Team)
	report.Codes, _ = s.normalizeCodes(strings.Join(report.Codes, ","))
	report.Area = s.area
	if len(report.Codes) == 0 {
		return "", ErrMissingFields
	}
	if report.Amount <= 0 {
		return "", fmt.Errorf("%w: %d", ErrInvalidAmount, report.Amount)
	}
	return s.reports.Stage(ctx, report)
}

func (s *ServiceImpl) ApproveReport(ctx context.Context, token string, actor Actor) (confirmation.SpendReport, error) {
	if !s.authorizer.CanApprove(ctx, actor.ID) {
		return confirmation.SpendReport{}, ErrForbidden
	}
	return confirmRecord(ctx, s, s.reports, token, actor)
}

func (s *ServiceImpl) StageHold(ctx context.Context, hold confirmation.Hold) (string, error) {
	hold.Team = normalizer.Team(hold.Team)
	hold.Code = s.normalizer.NormalizeContractCode(hold.Code)
	hold.Area = s.area
	if hold.Code == "" {
		return "", ErrMissingFields
	}
	if hold.Amount <= 0 {
		return "", fmt.Errorf("%w: %d", ErrInvalidAmount, hold.Amount)
	}
	return s.holds.Stage(ctx, hold)
}

func (s *ServiceImpl) ApproveHold(ctx context.Context, token string, actor Actor) (confirmation.Hold, error) {
	if !s.authorizer.CanApprove(ctx, actor.ID) {
		return confirmation.Hold{}, ErrForbidden
	}
	return confirmRecord(ctx, s, s.holds, token, actor)
}

func (s *ServiceImpl) StageDeposit(ctx context.Context, deposit confirmation.Deposit) (string, error) {
	deposit.Team = normalizer.Team(deposit.Team)
	deposit.Operator = strings.TrimPrefix(strings.TrimSpace(deposit.Operator), "@")
	deposit.Area = s.area
	if deposit.Operator == "" {
		return "", ErrMissingFields
	}
	if deposit.Amount <= 0 {
		return "", fmt.Errorf("%w: %d", ErrInvalidAmount, deposit.Amount)
	}
	return s.deposits.Stage(ctx, deposit)
}

// ApproveDeposit accepts only the operator the deposit names.
func (s *ServiceImpl) ApproveDeposit(ctx context.Context, token string, actor Actor) (confirmation.Deposit, error) {
	deposit, err := s.deposits.Get(ctx, token)
	if err != nil {
		return confirmation.Deposit{}, err
	}
	if !s.isDepositOperator(actor, deposit) {
		log.Warnf("%s may not confirm deposit %s addressed to %s", actor.Username, token, deposit.Operator)
		return confirmation.Deposit{}, ErrForbidden
	}
	return confirmRecord(ctx, s, s.deposits, token, actor)
}

func (s *ServiceImpl) isDepositOperator(actor Actor, deposit confirmation.Deposit) bool {
	return actor.Username != "" && strings.EqualFold(strings.TrimPrefix(actor.Username, "@"), deposit.Operator)
}

// confirmRecord commits a staged record by announcing it for replication.
func confirmRecord[T confirmation.Payload](ctx context.Context, s *ServiceImpl, store *confirmation.Store[T], token string, actor Actor) (T, error) {
	payload, err := store.Commit(ctx, token, func(ctx context.Context, payload T) error {
		record, err := toRecord(payload)
		if err != nil {
			return err
		}
		record["confirmed_by"] = actor.name()
		record["confirmed_at"] = s.clock.Now().Unix()
		if s.eventBus == nil {
			return nil
		}
		return s.eventBus.Publish(event_bus.NewEvent(ctx, event_bus.RecordConfirmed, event_bus.ReplicationRecord{
			Kind:   string(payload.Kind()),
			Record: record,
		}))
	})
	if err != nil {
		if !confirmation.IsNotFound(err) {
			log.Errorf("could not confirm %s %s: %v", store.Kind(), token, err)
		}
		return payload, err
	}
	log.Infof("%s %s confirmed by %s", store.Kind(), token, actor.name())
	return payload, nil
}

// normalizeCodes splits text into allocation-path codes, dropping empties. The returned map
// keeps the first spelling seen for each normalized code.
func (s *ServiceImpl) normalizeCodes(text string) ([]string, map[string]string) {
	raw := normalizer.SplitCodes(text)
	codes := make([]string, 0, len(raw))
	originals := make(map[string]string, len(raw))
	for _, r := range raw {
		code := s.normalizer.NormalizeContractCode(r)
		if code == "" {
			continue
		}
		codes = append(codes, code)
		if _, ok := originals[code]; !ok {
			originals[code] = r
		}
	}
	return codes, originals
}

func (s *ServiceImpl) foldedSpend(ctx context.Context, team string, codes []string, window *aggregation.Window) map[string]int64 {
	sums := s.engine.CurrentSpend(ctx, aggregation.ExpandAliases(codes), team, window)
	folded := make(map[string]int64, len(codes))
	for _, code := range codes {
		folded[code] = aggregation.FoldAliases(code, sums)
	}
	return folded
}

func distinct(codes []string) []string {
	seen := make(map[string]struct{}, len(codes))
	unique := make([]string, 0, len(codes))
	for _, code := range codes {
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		unique = append(unique, code)
	}
	return unique
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// toRecord flattens a payload into the key/value form replication subscribers receive.
func toRecord(payload any) (map[string]any, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("could not encode record: %w", err)
	}
	record := make(map[string]any)
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("could not decode record: %w", err)
	}
	return record, nil
}

func (s *ServiceImpl) bookingDay(ts int64) string {
	return time.Unix(ts, 0).In(s.engine.Calendar().Location()).Format(time.DateOnly)
}
