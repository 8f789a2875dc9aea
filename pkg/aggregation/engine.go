package aggregation

import (
	"context"
	"errors"

	"github.com/RitoIssei/bot-mng-ns/internal/utils"
	"github.com/RitoIssei/bot-mng-ns/pkg/normalizer"
	log "github.com/sirupsen/logrus"
)

// SpendSource sums ledger amounts for one area.
type SpendSource interface {
	SumByContractCode(ctx context.Context, team string, codes []string, from, to int64) map[string]int64
	SumByTeam(ctx context.Context, team string, from, to int64) int64
}

type Engine struct {
	spend      SpendSource
	thresholds ThresholdRepository
	calendar   *Calendar
	clock      utils.Clock
	area       string
}

func NewEngine(spend SpendSource, thresholds ThresholdRepository, calendar *Calendar, clock utils.Clock, area string) *Engine {
	return &Engine{spend: spend, thresholds: thresholds, calendar: calendar, clock: clock, area: area}
}

func (e *Engine) Calendar() *Calendar {
	return e.calendar
}

// CurrentWindow is the accounting month for the current time.
func (e *Engine) CurrentWindow() Window {
	return e.calendar.ResolveAccountingMonth(e.clock.Now())
}

// CurrentSpend sums amounts per raw code. A nil window means the current accounting month.
func (e *Engine) CurrentSpend(ctx context.Context, codes []string, team string, window *Window) map[string]int64 {
	w := e.CurrentWindow()
	if window != nil {
		w = *window
	}
	return e.spend.SumByContractCode(ctx, team, codes, w.From(), w.To())
}

// CurrentSpendByPrefix sums the prefix and its 9, 10 and 11 suffixed variants.
func (e *Engine) CurrentSpendByPrefix(ctx context.Context, prefix string, team string, window *Window) map[string]int64 {
	return e.CurrentSpend(ctx, PrefixVariants(prefix), team, window)
}

// CheckThreshold compares projectedTotal with the limit configured for the display code.
// Missing limits, non-positive limits and lookup failures all count as within limit.
func (e *Engine) CheckThreshold(ctx context.Context, code string, projectedTotal int64) ThresholdResult {
	limit, err := e.thresholds.FindLimit(ctx, code)
	if err != nil {
		if !errors.Is(err, ErrLimitNotFound) {
			log.Errorf("could not load limit for %s: %v", code, err)
		}
		return ThresholdResult{}
	}
	if limit.Limit <= 0 {
		return ThresholdResult{}
	}
	if projectedTotal > limit.Limit {
		return ThresholdResult{Exceeded: true, Limit: limit.Limit, OverBy: projectedTotal - limit.Limit}
	}
	return ThresholdResult{Limit: limit.Limit}
}

// TeamMonthlyTotal is the team's spend for the current calendar month plus its additional budget.
func (e *Engine) TeamMonthlyTotal(ctx context.Context, team string) int64 {
	team = normalizer.Team(team)
	w := e.calendar.CalendarMonth(e.clock.Now())
	total := e.spend.SumByTeam(ctx, team, w.From(), w.To())
	if threshold, ok := e.GetTeamThreshold(ctx, team); ok {
		total += threshold.AdditionalBudget
	}
	return total
}

func (e *Engine) GetTeamThreshold(ctx context.Context, team string) (TeamThreshold, bool) {
	threshold, err := e.thresholds.FindTeamThreshold(ctx, e.area, normalizer.Team(team))
	if err != nil {
		if !errors.Is(err, ErrTeamThresholdNotFound) {
			log.Errorf("could not load threshold of team %s: %v", team, err)
		}
		return TeamThreshold{}, false
	}
	return threshold, true
}

func (e *Engine) SetTeamThreshold(ctx context.Context, team string, threshold, additionalBudget int64) bool {
	err := e.thresholds.UpsertTeamThreshold(ctx, TeamThreshold{
		Team:             normalizer.Team(team),
		Area:             e.area,
		Threshold:        threshold,
		AdditionalBudget: additionalBudget,
	})
	if err != nil {
		log.Errorf("could not set threshold of team %s: %v", team, err)
		return false
	}
	log.Infof("set threshold of team %s to %d with additional budget %d", normalizer.Team(team), threshold, additionalBudget)
	return true
}

// SetLimit configures the spending ceiling of a display code. A non-positive limit disables the check.
func (e *Engine) SetLimit(ctx context.Context, code string, limit int64) bool {
	if err := e.thresholds.UpsertLimit(ctx, Limit{Key: code, Limit: limit}); err != nil {
		log.Errorf("could not set limit of %s: %v", code, err)
		return false
	}
	log.Infof("set limit of %s to %d", code, limit)
	return true
}
