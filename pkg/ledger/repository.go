package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

type Repository interface {
	Insert(ctx context.Context, entry Entry) error
	// MarkDone moves every pending row of the batch to done in a single statement and
	// returns the rows it changed.
	MarkDone(ctx context.Context, area string, budgetID string, now int64) ([]Entry, error)
	UpdateFields(ctx context.Context, area string, id string, update FieldUpdate) (Entry, error)
	FindByID(ctx context.Context, area string, id string) (Entry, error)
	FindByBudgetID(ctx context.Context, area string, budgetID string) ([]Entry, error)
	FindPendingByBudgetID(ctx context.Context, area string, budgetID string) ([]Entry, error)
	FindAll(ctx context.Context, area string) ([]Entry, error)
	ListBudgetIDs(ctx context.Context, area string) ([]string, error)
	DeleteByBudgetID(ctx context.Context, area string, budgetID string) (int64, error)
	SumByContractCode(ctx context.Context, area string, team string, codes []string, from, to int64) (map[string]int64, error)
	SumByTeam(ctx context.Context, area string, team string, from, to int64) (int64, error)
}

const entryColumns = `id, budget_id, team, contract_code, original_contract_code, area, group_name, chat_id,
	amount, status, booked_at, end_time, assistant, note`

type RepositoryImpl struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *RepositoryImpl {
	return &RepositoryImpl{db: db}
}

func (r *RepositoryImpl) Insert(ctx context.Context, entry Entry) error {
	query := `INSERT INTO budget_entry (` + entryColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err := r.db.Exec(ctx, query,
		entry.ID,
		entry.BudgetID,
		entry.Team,
		entry.ContractCode,
		entry.OriginalContractCode,
		entry.Area,
		entry.GroupName,
		entry.ChatID,
		entry.Amount,
		string(entry.Status),
		entry.Timestamp,
		entry.EndTime,
		entry.Assistant,
		entry.Note,
	)
	if err != nil {
		err := fmt.Errorf("could not insert budget entry: %w", err)
		log.Error(err)
		return err
	}
	return nil
}

func (r *RepositoryImpl) MarkDone(ctx context.Context, area string, budgetID string, now int64) ([]Entry, error) {
	query := `UPDATE budget_entry
			  SET status = 'done', end_time = GREATEST($3, booked_at)
			  WHERE area = $1 AND budget_id = $2 AND status = 'pending'
			  RETURNING ` + entryColumns
	return r.queryEntries(ctx, query, area, budgetID, now)
}

func (r *RepositoryImpl) UpdateFields(ctx context.Context, area string, id string, update FieldUpdate) (Entry, error) {
	var sets []string
	args := []any{area, id}
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if update.Team != nil {
		add("team", *update.Team)
	}
	if update.ContractCode != nil {
		add("contract_code", *update.ContractCode)
	}
	if update.GroupName != nil {
		add("group_name", *update.GroupName)
	}
	if update.Assistant != nil {
		add("assistant", *update.Assistant)
	}
	if update.Note != nil {
		add("note", *update.Note)
	}
	if update.Timestamp != nil {
		add("booked_at", *update.Timestamp)
	}
	if update.Amount != nil {
		add("amount", *update.Amount)
	}
	if len(sets) == 0 {
		return r.FindByID(ctx, area, id)
	}

	query := `UPDATE budget_entry SET ` + strings.Join(sets, ", ") + `
			  WHERE area = $1 AND id = $2
			  RETURNING ` + entryColumns
	entry, err := scanEntry(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, ErrEntryNotFound
		}
		err := fmt.Errorf("could not update budget entry %s: %w", id, err)
		log.Error(err)
		return Entry{}, err
	}
	return entry, nil
}

func (r *RepositoryImpl) FindByID(ctx context.Context, area string, id string) (Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM budget_entry WHERE area = $1 AND id = $2`
	entry, err := scanEntry(r.db.QueryRow(ctx, query, area, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, ErrEntryNotFound
		}
		err := fmt.Errorf("could not query budget entry %s: %w", id, err)
		log.Error(err)
		return Entry{}, err
	}
	return entry, nil
}

func (r *RepositoryImpl) FindByBudgetID(ctx context.Context, area string, budgetID string) ([]Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM budget_entry
			  WHERE area = $1 AND budget_id = $2 ORDER BY created, id`
	return r.queryEntries(ctx, query, area, budgetID)
}

func (r *RepositoryImpl) FindPendingByBudgetID(ctx context.Context, area string, budgetID string) ([]Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM budget_entry
			  WHERE area = $1 AND budget_id = $2 AND status = 'pending' ORDER BY created, id`
	return r.queryEntries(ctx, query, area, budgetID)
}

func (r *RepositoryImpl) FindAll(ctx context.Context, area string) ([]Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM budget_entry WHERE area = $1 ORDER BY booked_at, id`
	return r.queryEntries(ctx, query, area)
}

func (r *RepositoryImpl) ListBudgetIDs(ctx context.Context, area string) ([]string, error) {
	query := `SELECT DISTINCT budget_id FROM budget_entry WHERE area = $1 ORDER BY budget_id`
	rows, err := r.db.Query(ctx, query, area)
	if err != nil {
		err := fmt.Errorf("could not query budget ids: %w", err)
		log.Error(err)
		return nil, err
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		err := fmt.Errorf("error scanning budget ids: %w", err)
		log.Error(err)
		return nil, err
	}
	return ids, nil
}

func (r *RepositoryImpl) DeleteByBudgetID(ctx context.Context, area string, budgetID string) (int64, error) {
	query := `DELETE FROM budget_entry WHERE area = $1 AND budget_id = $2`
	tag, err := r.db.Exec(ctx, query, area, budgetID)
	if err != nil {
		err := fmt.Errorf("could not delete budget %s: %w", budgetID, err)
		log.Error(err)
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *RepositoryImpl) SumByContractCode(ctx context.Context, area string, team string, codes []string, from, to int64) (map[string]int64, error) {
	sums := make(map[string]int64)
	if len(codes) == 0 {
		return sums, nil
	}
	query := `SELECT contract_code, COALESCE(SUM(amount), 0)::BIGINT FROM budget_entry
			  WHERE area = $1 AND team = $2 AND contract_code = ANY($3) AND booked_at BETWEEN $4 AND $5
			  GROUP BY contract_code`
	rows, err := r.db.Query(ctx, query, area, team, codes, from, to)
	if err != nil {
		err := fmt.Errorf("could not sum budget by contract code: %w", err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var code string
		var sum int64
		if err := rows.Scan(&code, &sum); err != nil {
			err := fmt.Errorf("error scanning row: %w", err)
			log.Error(err)
			return nil, err
		}
		sums[code] = sum
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sums, nil
}

func (r *RepositoryImpl) SumByTeam(ctx context.Context, area string, team string, from, to int64) (int64, error) {
	query := `SELECT COALESCE(SUM(amount), 0)::BIGINT FROM budget_entry
			  WHERE area = $1 AND team = $2 AND booked_at BETWEEN $3 AND $4`
	var sum int64
	if err := r.db.QueryRow(ctx, query, area, team, from, to).Scan(&sum); err != nil {
		err := fmt.Errorf("could not sum budget by team: %w", err)
		log.Error(err)
		return 0, err
	}
	return sum, nil
}

func (r *RepositoryImpl) queryEntries(ctx context.Context, query string, args ...any) ([]Entry, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		err := fmt.Errorf("could not execute query: %w", err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			err := fmt.Errorf("error scanning row: %w", err)
			log.Error(err)
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		err := fmt.Errorf("error iterating rows: %w", err)
		log.Error(err)
		return nil, err
	}
	return entries, nil
}

func scanEntry(row pgx.Row) (Entry, error) {
	var entry Entry
	var status string
	err := row.Scan(
		&entry.ID,
		&entry.BudgetID,
		&entry.Team,
		&entry.ContractCode,
		&entry.OriginalContractCode,
		&entry.Area,
		&entry.GroupName,
		&entry.ChatID,
		&entry.Amount,
		&status,
		&entry.Timestamp,
		&entry.EndTime,
		&entry.Assistant,
		&entry.Note,
	)
	entry.Status = Status(status)
	return entry, err
}
