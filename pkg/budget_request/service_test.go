package budget_request

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/RitoIssei/bot-mng-ns/internal/config"
	"github.com/RitoIssei/bot-mng-ns/internal/event_bus"
	"github.com/RitoIssei/bot-mng-ns/internal/utils"
	"github.com/RitoIssei/bot-mng-ns/pkg/access"
	"github.com/RitoIssei/bot-mng-ns/pkg/aggregation"
	"github.com/RitoIssei/bot-mng-ns/pkg/confirmation"
	"github.com/RitoIssei/bot-mng-ns/pkg/ledger"
	"github.com/RitoIssei/bot-mng-ns/pkg/normalizer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const area = "north"

var (
	admin     = Actor{ID: 1, Username: "boss", DisplayName: "Boss"}
	assistant = Actor{ID: 7, Username: "linh", DisplayName: "Linh"}
	stranger  = Actor{ID: 42, Username: "someone"}
)

type fixture struct {
	ctx        context.Context
	loc        *time.Location
	clock      *utils.MockClock
	ledgerRepo *ledger.RepositoryStub
	ledger     *ledger.ServiceImpl
	thresholds *aggregation.ThresholdRepositoryStub
	staging    *confirmation.RepositoryStub
	eventBus   *event_bus.EventBus
	service    *ServiceImpl
}

func setup(t *testing.T) *fixture {
	loc, err := time.LoadLocation("Asia/Ho_Chi_Minh")
	require.NoError(t, err)
	clock := &utils.MockClock{FixedNow: time.Date(2025, time.March, 10, 9, 0, 0, 0, loc)}
	eventBus := event_bus.NewEventBus()

	ledgerRepo := ledger.NewRepositoryStub()
	ledgerService := ledger.NewLedgerService(ledgerRepo, eventBus, clock, area)
	thresholds := aggregation.NewThresholdRepositoryStub()
	engine := aggregation.NewEngine(ledgerService, thresholds, aggregation.NewCalendar(loc), clock, area)
	staging := confirmation.NewRepositoryStub()

	assistants := func(ctx context.Context) ([]access.Member, error) {
		return []access.Member{{ID: assistant.ID, Name: assistant.DisplayName, Area: area}}, nil
	}
	authorizer := access.NewAuthorizer(access.Loaders{Assistants: assistants}, []int64{admin.ID}, area, time.Minute, clock)

	codes := normalizer.New(config.Contract{
		Families:        []string{"F"},
		CanonicalLength: 5,
		Protected:       []string{"A10", "9", "11", "1"},
	})

	return &fixture{
		ctx:        context.Background(),
		loc:        loc,
		clock:      clock,
		ledgerRepo: ledgerRepo,
		ledger:     ledgerService,
		thresholds: thresholds,
		staging:    staging,
		eventBus:   eventBus,
		service:    NewService(ledgerService, engine, codes, authorizer, staging, eventBus, clock, area),
	}
}

func (f *fixture) book(t *testing.T, code string, amount int64, at time.Time) {
	_, err := f.ledger.Add(f.ctx, ledger.NewEntry{BudgetID: "OLD", Team: "ALPHA", ContractCode: code, Amount: amount, Timestamp: at.Unix()})
	require.NoError(t, err)
}

func (f *fixture) propose(t *testing.T, codes string, amount string) Proposal {
	proposal, err := f.service.Propose(f.ctx, Request{Team: "alpha", Codes: codes, Amount: amount, GroupName: "North room", ChatID: -100123})
	require.NoError(t, err)
	return proposal
}

func TestService_Propose(t *testing.T) {
	t.Run("should split the amount by occurrence and project current spend", func(t *testing.T) {
		// given
		f := setup(t)
		f.book(t, "FD3N11", 100, time.Date(2025, time.March, 2, 10, 0, 0, 0, f.loc))
		require.NoError(t, f.thresholds.UpsertLimit(f.ctx, aggregation.Limit{Key: "FD3N", Limit: 500000}))

		// when
		proposal := f.propose(t, "fd3n1, fd3n2, XY123", "1.000.000")

		// then
		assert.NotEmpty(t, proposal.Token)
		assert.Regexp(t, `^ALPHA-[A-Z0-9]{8}$`, proposal.BudgetID)
		assert.Equal(t, int64(1000000), proposal.Amount)
		require.Len(t, proposal.Lines, 2)

		assert.Equal(t, "FD3N", proposal.Lines[0].Code)
		assert.Equal(t, "FD3N1", proposal.Lines[0].Original)
		assert.Equal(t, 2, proposal.Lines[0].Count)
		assert.Equal(t, int64(666667), proposal.Lines[0].Share)
		assert.Equal(t, int64(100), proposal.Lines[0].Current)
		assert.Equal(t, int64(666767), proposal.Lines[0].Projected)
		assert.Equal(t, aggregation.ThresholdResult{Exceeded: true, Limit: 500000, OverBy: 166767}, proposal.Lines[0].Threshold)

		assert.Equal(t, "XY123", proposal.Lines[1].Code)
		assert.Equal(t, int64(333333), proposal.Lines[1].Share)
		assert.True(t, proposal.Lines[1].Threshold.OK())
		assert.True(t, proposal.Exceeded())
	})

	t.Run("should stage the split without touching the ledger", func(t *testing.T) {
		// given
		f := setup(t)

		// when
		proposal := f.propose(t, "XY123", "500")

		// then
		assert.Empty(t, f.ledger.ListAll(f.ctx))
		record, err := f.staging.Get(f.ctx, confirmation.KindBudget, proposal.Token)
		require.NoError(t, err)
		assert.Contains(t, string(record.Data), proposal.BudgetID)
	})

	t.Run("should take the absolute value of a negative amount", func(t *testing.T) {
		f := setup(t)
		proposal := f.propose(t, "XY123", "-2,500")
		assert.Equal(t, int64(2500), proposal.Amount)
	})

	t.Run("should require team, codes and amount", func(t *testing.T) {
		f := setup(t)
		for _, request := range []Request{
			{Codes: "XY123", Amount: "1"},
			{Team: "alpha", Amount: "1"},
			{Team: "alpha", Codes: "XY123"},
			{Team: "alpha", Codes: ",,", Amount: "1"},
		} {
			_, err := f.service.Propose(f.ctx, request)
			assert.ErrorIs(t, err, ErrMissingFields)
		}
	})

	t.Run("should reject an amount without digits", func(t *testing.T) {
		f := setup(t)
		_, err := f.service.Propose(f.ctx, Request{Team: "alpha", Codes: "XY123", Amount: "abc"})
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})
}

func TestService_Approve(t *testing.T) {
	t.Run("should book every share as a pending entry", func(t *testing.T) {
		// given
		f := setup(t)
		proposal := f.propose(t, "FD3N1,FD3N2,XY123", "900")

		// when
		approval, err := f.service.Approve(f.ctx, proposal.Token, assistant)

		// then
		require.NoError(t, err)
		assert.Equal(t, proposal.BudgetID, approval.BudgetID)
		assert.Equal(t, map[string]int64{"FD3N": 600, "XY123": 300}, approval.Shares)
		assert.Len(t, approval.EntryIDs, 2)

		pending := f.ledger.GetPendingByBudgetID(f.ctx, proposal.BudgetID)
		require.Len(t, pending, 2)
		for _, entry := range pending {
			assert.Equal(t, "ALPHA", entry.Team)
			assert.Equal(t, "Linh", entry.Assistant)
			assert.Equal(t, int64(-100123), entry.ChatID)
			assert.Equal(t, f.clock.Now().Unix(), entry.Timestamp)
		}
	})

	t.Run("should book into next month on the last day of a month", func(t *testing.T) {
		// given
		f := setup(t)
		f.clock.SetNow(time.Date(2025, time.March, 31, 22, 0, 0, 0, f.loc))
		proposal := f.propose(t, "XY123", "900")

		// when
		approval, err := f.service.Approve(f.ctx, proposal.Token, admin)

		// then
		require.NoError(t, err)
		assert.Equal(t, time.Date(2025, time.April, 1, 1, 0, 0, 0, f.loc).Unix(), approval.Timestamp)
	})

	t.Run("should apply a token only once", func(t *testing.T) {
		// given
		f := setup(t)
		proposal := f.propose(t, "XY123", "900")
		_, err := f.service.Approve(f.ctx, proposal.Token, assistant)
		require.NoError(t, err)

		// when
		_, err = f.service.Approve(f.ctx, proposal.Token, admin)

		// then
		assert.ErrorIs(t, err, confirmation.ErrNotFound)
		assert.Len(t, f.ledger.ListAll(f.ctx), 1)
	})

	t.Run("should refuse users who are neither admin nor assistant", func(t *testing.T) {
		// given
		f := setup(t)
		proposal := f.propose(t, "XY123", "900")

		// when
		_, err := f.service.Approve(f.ctx, proposal.Token, stranger)

		// then
		assert.ErrorIs(t, err, ErrForbidden)
		_, err = f.staging.Get(f.ctx, confirmation.KindBudget, proposal.Token)
		assert.NoError(t, err)
	})

	t.Run("should keep the proposal staged when the ledger is unavailable", func(t *testing.T) {
		// given
		f := setup(t)
		proposal := f.propose(t, "XY123,ZZ999", "900")
		f.ledgerRepo.Err = errors.New("connection refused")

		// when
		_, err := f.service.Approve(f.ctx, proposal.Token, assistant)

		// then
		assert.ErrorIs(t, err, ErrLedgerUnavailable)

		// and the retry succeeds once the ledger is back
		f.ledgerRepo.Err = nil
		approval, err := f.service.Approve(f.ctx, proposal.Token, assistant)
		require.NoError(t, err)
		assert.Len(t, f.ledger.GetPendingByBudgetID(f.ctx, approval.BudgetID), 2)
	})
}

func TestService_ApprovePartialFailure(t *testing.T) {
	t.Run("should replicate nothing when a later share is refused and everything on retry", func(t *testing.T) {
		// given
		f := setup(t)
		var replicated []map[string]any
		event_bus.SubscribeTyped(f.eventBus, event_bus.LedgerEntryWritten, func(e event_bus.EventT[event_bus.ReplicationRecord]) error {
			replicated = append(replicated, e.Data.Record)
			return nil
		})
		proposal := f.propose(t, "XY123,ZZ999", "900")
		f.ledgerRepo.FailInsertAfter = 1

		// when
		_, err := f.service.Approve(f.ctx, proposal.Token, assistant)

		// then
		assert.ErrorIs(t, err, ErrLedgerUnavailable)
		assert.Empty(t, f.ledger.ListAll(f.ctx))
		assert.Empty(t, replicated)

		// and the retry books and replicates each share exactly once
		f.ledgerRepo.FailInsertAfter = 0
		approval, err := f.service.Approve(f.ctx, proposal.Token, assistant)
		require.NoError(t, err)
		assert.Len(t, f.ledger.ListAll(f.ctx), 2)
		require.Len(t, replicated, 2)
		for _, record := range replicated {
			assert.Equal(t, approval.BudgetID, record["budget_id"])
		}
	})
}

func TestService_Reject(t *testing.T) {
	t.Run("should drop the staged split", func(t *testing.T) {
		// given
		f := setup(t)
		proposal := f.propose(t, "XY123", "900")

		// when
		err := f.service.Reject(f.ctx, confirmation.KindBudget, proposal.Token, assistant)

		// then
		require.NoError(t, err)
		_, err = f.service.Approve(f.ctx, proposal.Token, assistant)
		assert.ErrorIs(t, err, confirmation.ErrNotFound)
		assert.Empty(t, f.ledger.ListAll(f.ctx))
	})

	t.Run("should refuse strangers", func(t *testing.T) {
		f := setup(t)
		proposal := f.propose(t, "XY123", "900")
		assert.ErrorIs(t, f.service.Reject(f.ctx, confirmation.KindBudget, proposal.Token, stranger), ErrForbidden)
	})

	t.Run("should report unknown kinds", func(t *testing.T) {
		f := setup(t)
		assert.ErrorIs(t, f.service.Reject(f.ctx, confirmation.Kind("invoice"), "token", admin), confirmation.ErrUnknownKind)
	})
}

func TestService_Complete(t *testing.T) {
	t.Run("should close pending entries and report the folded spend", func(t *testing.T) {
		// given
		f := setup(t)
		f.book(t, "FD3N11", 100, time.Date(2025, time.March, 2, 10, 0, 0, 0, f.loc))
		proposal := f.propose(t, "FD3N1", "900")
		_, err := f.service.Approve(f.ctx, proposal.Token, assistant)
		require.NoError(t, err)
		f.clock.Advance(2 * time.Hour)

		// when
		completion, err := f.service.Complete(f.ctx, proposal.BudgetID, "")

		// then
		require.NoError(t, err)
		assert.Equal(t, 1, completion.Completed)
		assert.Equal(t, map[string]int64{"FD3N": 1000}, completion.Spend)
		assert.Empty(t, f.ledger.GetPendingByBudgetID(f.ctx, proposal.BudgetID))
		entry, ok := f.ledger.GetByBudgetID(f.ctx, proposal.BudgetID)
		require.True(t, ok)
		assert.Equal(t, ledger.StatusDone, entry.Status)
		assert.Equal(t, f.clock.Now().Unix(), entry.EndTime)
	})

	t.Run("should replace the amount when one is given", func(t *testing.T) {
		// given
		f := setup(t)
		proposal := f.propose(t, "XY123", "900")
		_, err := f.service.Approve(f.ctx, proposal.Token, assistant)
		require.NoError(t, err)

		// when
		completion, err := f.service.Complete(f.ctx, proposal.BudgetID, "-1.200")

		// then
		require.NoError(t, err)
		assert.Equal(t, map[string]int64{"XY123": 1200}, completion.Spend)
	})

	t.Run("should accept a lower case batch code", func(t *testing.T) {
		f := setup(t)
		proposal := f.propose(t, "XY123", "900")
		_, err := f.service.Approve(f.ctx, proposal.Token, assistant)
		require.NoError(t, err)

		completion, err := f.service.Complete(f.ctx, " "+strings.ToLower(proposal.BudgetID)+" ", "")

		require.NoError(t, err)
		assert.Equal(t, proposal.BudgetID, completion.BudgetID)
	})

	t.Run("should report when nothing is pending", func(t *testing.T) {
		// given
		f := setup(t)
		proposal := f.propose(t, "XY123", "900")
		_, err := f.service.Approve(f.ctx, proposal.Token, assistant)
		require.NoError(t, err)
		_, err = f.service.Complete(f.ctx, proposal.BudgetID, "")
		require.NoError(t, err)

		// when
		_, err = f.service.Complete(f.ctx, proposal.BudgetID, "")

		// then
		assert.ErrorIs(t, err, ErrNothingPending)
	})
}

func TestService_Refund(t *testing.T) {
	t.Run("refund amount is always stored as a negative integer even when the operator types a positive number", func(t *testing.T) {
		for _, typed := range []string{"500", "-500", "5.0.0"} {
			// given
			f := setup(t)

			// when
			refund, err := f.service.Refund(f.ctx, RefundRequest{Team: "alpha", Code: "XY123", Amount: typed}, assistant)

			// then
			require.NoError(t, err)
			assert.Equal(t, int64(-500), refund.Amount)
			entry, ok := f.ledger.GetByID(f.ctx, refund.ID)
			require.True(t, ok)
			assert.Equal(t, int64(-500), entry.Amount)
			assert.Equal(t, ledger.StatusRefund, entry.Status)
			assert.Equal(t, entry.Timestamp, entry.EndTime)
		}
	})

	t.Run("should keep protected suffixes and trim other family codes", func(t *testing.T) {
		f := setup(t)

		kept, err := f.service.Refund(f.ctx, RefundRequest{Team: "alpha", Code: "fd3n11", Amount: "10"}, assistant)
		require.NoError(t, err)
		trimmed, err := f.service.Refund(f.ctx, RefundRequest{Team: "alpha", Code: "fd3n2", Amount: "10"}, assistant)
		require.NoError(t, err)

		assert.Equal(t, "FD3N11", kept.Code)
		assert.Equal(t, "FD3N", trimmed.Code)
	})

	t.Run("should book into next month with + near the month end", func(t *testing.T) {
		// given
		f := setup(t)
		f.clock.SetNow(time.Date(2025, time.March, 28, 15, 0, 0, 0, f.loc))
		f.book(t, "XY123", 2000, time.Date(2025, time.April, 1, 2, 0, 0, 0, f.loc))
		f.book(t, "XY123", 7000, time.Date(2025, time.March, 20, 2, 0, 0, 0, f.loc))

		// when
		refund, err := f.service.Refund(f.ctx, RefundRequest{Team: "alpha", Code: "XY123", Amount: "500", Period: "+"}, assistant)

		// then
		require.NoError(t, err)
		assert.Equal(t, time.Date(2025, time.April, 1, 0, 0, 0, 0, f.loc).Unix(), refund.Timestamp)
		assert.Equal(t, int64(1500), refund.Total)
	})

	t.Run("should book into the previous month with - at the month start", func(t *testing.T) {
		f := setup(t)
		f.clock.SetNow(time.Date(2025, time.April, 3, 15, 0, 0, 0, f.loc))

		refund, err := f.service.Refund(f.ctx, RefundRequest{Team: "alpha", Code: "XY123", Amount: "500", Period: "-"}, assistant)

		require.NoError(t, err)
		assert.Equal(t, time.Date(2025, time.March, 31, 23, 59, 59, 0, f.loc).Unix(), refund.Timestamp)
	})

	t.Run("should refuse refunds from users who are neither admin nor assistant", func(t *testing.T) {
		for _, actor := range []Actor{stranger, {}} {
			// given
			f := setup(t)

			// when
			_, err := f.service.Refund(f.ctx, RefundRequest{Team: "alpha", Code: "XY123", Amount: "500"}, actor)

			// then
			assert.ErrorIs(t, err, ErrForbidden)
			assert.Empty(t, f.ledger.ListAll(f.ctx))
		}
	})

	t.Run("should reject a zero refund", func(t *testing.T) {
		f := setup(t)
		_, err := f.service.Refund(f.ctx, RefundRequest{Team: "alpha", Code: "XY123", Amount: "0"}, assistant)
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})
}

func TestService_Spend(t *testing.T) {
	t.Run("should fold both spellings of a code family", func(t *testing.T) {
		// given
		f := setup(t)
		f.book(t, "FD3N", 300, time.Date(2025, time.March, 2, 10, 0, 0, 0, f.loc))
		f.book(t, "FD3N11", 200, time.Date(2025, time.March, 3, 10, 0, 0, 0, f.loc))
		f.book(t, "XY123", 50, time.Date(2025, time.February, 3, 10, 0, 0, 0, f.loc))

		// when
		spend := f.service.Spend(f.ctx, "Alpha", "fd3n1, xy123")

		// then
		assert.Equal(t, map[string]int64{"FD3N": 500, "XY123": 0}, spend)
	})

	t.Run("should list prefix variants", func(t *testing.T) {
		f := setup(t)
		f.book(t, "FD3N9", 40, time.Date(2025, time.March, 2, 10, 0, 0, 0, f.loc))

		spend := f.service.SpendByPrefix(f.ctx, "alpha", "fd3n")

		assert.Equal(t, map[string]int64{"FD3N9": 40}, spend)
	})
}

func TestService_Delete(t *testing.T) {
	t.Run("should only let admins delete a batch", func(t *testing.T) {
		// given
		f := setup(t)
		proposal := f.propose(t, "XY123,ZZ999", "900")
		_, err := f.service.Approve(f.ctx, proposal.Token, assistant)
		require.NoError(t, err)

		// when
		_, forbidden := f.service.Delete(f.ctx, proposal.BudgetID, assistant)
		deleted, err := f.service.Delete(f.ctx, proposal.BudgetID, admin)

		// then
		assert.ErrorIs(t, forbidden, ErrForbidden)
		require.NoError(t, err)
		assert.Equal(t, 2, deleted)
		assert.Empty(t, f.ledger.ListAll(f.ctx))
	})
}

func TestService_Deposit(t *testing.T) {
	t.Run("should only accept the named operator", func(t *testing.T) {
		// given
		f := setup(t)
		var confirmed []event_bus.ReplicationRecord
		event_bus.SubscribeTyped(f.eventBus, event_bus.RecordConfirmed, func(e event_bus.EventT[event_bus.ReplicationRecord]) error {
			confirmed = append(confirmed, e.Data)
			return nil
		})
		token, err := f.service.StageDeposit(f.ctx, confirmation.Deposit{Team: "alpha", Amount: 5000, Operator: "@Linh", RequestedBy: "boss"})
		require.NoError(t, err)

		// when
		_, forbidden := f.service.ApproveDeposit(f.ctx, token, admin)
		deposit, err := f.service.ApproveDeposit(f.ctx, token, assistant)

		// then
		assert.ErrorIs(t, forbidden, ErrForbidden)
		require.NoError(t, err)
		assert.Equal(t, int64(5000), deposit.Amount)
		assert.Equal(t, area, deposit.Area)
		require.Len(t, confirmed, 1)
		assert.Equal(t, "deposit", confirmed[0].Kind)
		assert.Equal(t, "Linh", confirmed[0].Record["confirmed_by"])
		assert.Equal(t, "ALPHA", confirmed[0].Record["team"])
	})

	t.Run("should restore the deposit when it cannot be announced", func(t *testing.T) {
		// given
		f := setup(t)
		event_bus.SubscribeTyped(f.eventBus, event_bus.RecordConfirmed, func(e event_bus.EventT[event_bus.ReplicationRecord]) error {
			return errors.New("subscriber down")
		})
		token, err := f.service.StageDeposit(f.ctx, confirmation.Deposit{Team: "alpha", Amount: 5000, Operator: "linh"})
		require.NoError(t, err)

		// when
		_, err = f.service.ApproveDeposit(f.ctx, token, assistant)

		// then
		assert.Error(t, err)
		_, err = f.staging.Get(f.ctx, confirmation.KindDeposit, token)
		assert.NoError(t, err)
	})

	t.Run("should require an operator and a positive amount", func(t *testing.T) {
		f := setup(t)
		_, err := f.service.StageDeposit(f.ctx, confirmation.Deposit{Team: "alpha", Amount: 5000})
		assert.ErrorIs(t, err, ErrMissingFields)
		_, err = f.service.StageDeposit(f.ctx, confirmation.Deposit{Team: "alpha", Operator: "linh"})
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})
}

func TestService_ReportsAndHolds(t *testing.T) {
	t.Run("should confirm a report once and announce it", func(t *testing.T) {
		// given
		f := setup(t)
		var kinds []string
		event_bus.SubscribeTyped(f.eventBus, event_bus.RecordConfirmed, func(e event_bus.EventT[event_bus.ReplicationRecord]) error {
			kinds = append(kinds, e.Data.Kind)
			return nil
		})
		token, err := f.service.StageReport(f.ctx, confirmation.SpendReport{Team: "alpha", Codes: []string{"fd3n1", "xy123"}, Amount: 700, Reporter: "linh"})
		require.NoError(t, err)

		// when
		report, err := f.service.ApproveReport(f.ctx, token, assistant)
		_, again := f.service.ApproveReport(f.ctx, token, assistant)

		// then
		require.NoError(t, err)
		assert.Equal(t, []string{"FD3N", "XY123"}, report.Codes)
		assert.ErrorIs(t, again, confirmation.ErrNotFound)
		assert.Equal(t, []string{"report"}, kinds)
	})

	t.Run("should let only approvers confirm holds", func(t *testing.T) {
		// given
		f := setup(t)
		token, err := f.service.StageHold(f.ctx, confirmation.Hold{Team: "alpha", Code: "xy12345", Amount: 300, RequestedBy: "linh"})
		require.NoError(t, err)

		// when
		_, forbidden := f.service.ApproveHold(f.ctx, token, stranger)
		hold, err := f.service.ApproveHold(f.ctx, token, admin)

		// then
		assert.ErrorIs(t, forbidden, ErrForbidden)
		require.NoError(t, err)
		assert.Equal(t, "XY123", hold.Code)
	})
}
