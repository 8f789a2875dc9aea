package aggregation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

var ErrLimitNotFound = errors.New("limit not found")
var ErrTeamThresholdNotFound = errors.New("team threshold not found")

// Limit is a configured spending ceiling for a display code.
type Limit struct {
	Key       string
	Limit     int64
	UpdatedAt time.Time
}

type TeamThreshold struct {
	Team             string
	Area             string
	Threshold        int64
	AdditionalBudget int64
}

// ThresholdResult is the outcome of CheckThreshold. It is advisory and never blocks a commit.
type ThresholdResult struct {
	Exceeded bool
	Limit    int64
	OverBy   int64
}

func (r ThresholdResult) OK() bool {
	return !r.Exceeded
}

type ThresholdRepository interface {
	FindLimit(ctx context.Context, key string) (Limit, error)
	UpsertLimit(ctx context.Context, limit Limit) error
	FindTeamThreshold(ctx context.Context, area string, team string) (TeamThreshold, error)
	UpsertTeamThreshold(ctx context.Context, threshold TeamThreshold) error
}

type ThresholdRepositoryImpl struct {
	db *pgxpool.Pool
}

func NewThresholdRepository(db *pgxpool.Pool) *ThresholdRepositoryImpl {
	return &ThresholdRepositoryImpl{db: db}
}

func (r *ThresholdRepositoryImpl) FindLimit(ctx context.Context, key string) (Limit, error) {
	query := `SELECT key, limit_amount, updated_at FROM budget_limits WHERE key = $1`
	var limit Limit
	err := r.db.QueryRow(ctx, query, key).Scan(&limit.Key, &limit.Limit, &limit.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Limit{}, ErrLimitNotFound
		}
		err := fmt.Errorf("could not query limit %s: %w", key, err)
		log.Error(err)
		return Limit{}, err
	}
	return limit, nil
}

func (r *ThresholdRepositoryImpl) UpsertLimit(ctx context.Context, limit Limit) error {
	query := `INSERT INTO budget_limits (key, limit_amount, updated_at) VALUES ($1, $2, now())
			  ON CONFLICT (key) DO UPDATE SET limit_amount = EXCLUDED.limit_amount, updated_at = now()`
	if _, err := r.db.Exec(ctx, query, limit.Key, limit.Limit); err != nil {
		err := fmt.Errorf("could not store limit %s: %w", limit.Key, err)
		log.Error(err)
		return err
	}
	return nil
}

func (r *ThresholdRepositoryImpl) FindTeamThreshold(ctx context.Context, area string, team string) (TeamThreshold, error) {
	query := `SELECT team, area, threshold, additional_budget FROM budget_team_threshold WHERE area = $1 AND team = $2`
	var threshold TeamThreshold
	err := r.db.QueryRow(ctx, query, area, team).Scan(&threshold.Team, &threshold.Area, &threshold.Threshold, &threshold.AdditionalBudget)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TeamThreshold{}, ErrTeamThresholdNotFound
		}
		err := fmt.Errorf("could not query threshold of team %s: %w", team, err)
		log.Error(err)
		return TeamThreshold{}, err
	}
	return threshold, nil
}

func (r *ThresholdRepositoryImpl) UpsertTeamThreshold(ctx context.Context, threshold TeamThreshold) error {
	query := `INSERT INTO budget_team_threshold (team, area, threshold, additional_budget, updated_at)
			  VALUES ($1, $2, $3, $4, now())
			  ON CONFLICT (team, area) DO UPDATE
			  SET threshold = EXCLUDED.threshold, additional_budget = EXCLUDED.additional_budget, updated_at = now()`
	_, err := r.db.Exec(ctx, query, threshold.Team, threshold.Area, threshold.Threshold, threshold.AdditionalBudget)
	if err != nil {
		err := fmt.Errorf("could not store threshold of team %s: %w", threshold.Team, err)
		log.Error(err)
		return err
	}
	return nil
}
