package confirmation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
)

var ErrNotFound = errors.New("confirmation not found")
var ErrUnknownKind = errors.New("unknown confirmation kind")

// Record is the persisted form of a staged confirmation.
type Record struct {
	ID        string
	Data      []byte
	CreatedAt int64
}

type Repository interface {
	Insert(ctx context.Context, kind Kind, record Record) error
	Get(ctx context.Context, kind Kind, id string) (Record, error)
	// Take deletes and returns the record in one step; only one caller can take a given id.
	Take(ctx context.Context, kind Kind, id string) (Record, error)
	Delete(ctx context.Context, kind Kind, id string) (bool, error)
	DeleteOlderThan(ctx context.Context, kind Kind, cutoff int64) (int64, error)
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Insert(ctx context.Context, kind Kind, record Record) error {
	if !kind.Valid() {
		return ErrUnknownKind
	}
	query := fmt.Sprintf("INSERT INTO %s (id, data, created_at) VALUES (?, ?, ?)", kind.table())
	_, err := r.db.ExecContext(ctx, query, record.ID, string(record.Data), record.CreatedAt)
	if err != nil {
		err := fmt.Errorf("could not insert %s confirmation: %w", kind, err)
		log.Error(err)
		return err
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, kind Kind, id string) (Record, error) {
	if !kind.Valid() {
		return Record{}, ErrUnknownKind
	}
	query := fmt.Sprintf("SELECT id, data, created_at FROM %s WHERE id = ?", kind.table())
	return r.scan(r.db.QueryRowContext(ctx, query, id), kind)
}

func (r *SQLiteRepository) Take(ctx context.Context, kind Kind, id string) (Record, error) {
	if !kind.Valid() {
		return Record{}, ErrUnknownKind
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE id = ? RETURNING id, data, created_at", kind.table())
	return r.scan(r.db.QueryRowContext(ctx, query, id), kind)
}

func (r *SQLiteRepository) scan(row *sql.Row, kind Kind) (Record, error) {
	var record Record
	var data string
	err := row.Scan(&record.ID, &data, &record.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		err := fmt.Errorf("could not read %s confirmation: %w", kind, err)
		log.Error(err)
		return Record{}, err
	}
	record.Data = []byte(data)
	return record, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, kind Kind, id string) (bool, error) {
	if !kind.Valid() {
		return false, ErrUnknownKind
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE id = ?", kind.table())
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		err := fmt.Errorf("could not delete %s confirmation: %w", kind, err)
		log.Error(err)
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *SQLiteRepository) DeleteOlderThan(ctx context.Context, kind Kind, cutoff int64) (int64, error) {
	if !kind.Valid() {
		return 0, ErrUnknownKind
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE created_at < ?", kind.table())
	result, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		err := fmt.Errorf("could not sweep %s confirmations: %w", kind, err)
		log.Error(err)
		return 0, err
	}
	return result.RowsAffected()
}
