package access

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

// MemberRepository keeps the authorization lists in the ledger database.
type MemberRepository interface {
	FindByRole(ctx context.Context, role Role) ([]Member, error)
	Upsert(ctx context.Context, role Role, member Member) error
	Remove(ctx context.Context, role Role, id int64, area string) (bool, error)
}

type MemberRepositoryImpl struct {
	db *pgxpool.Pool
}

func NewMemberRepository(db *pgxpool.Pool) *MemberRepositoryImpl {
	return &MemberRepositoryImpl{db: db}
}

func (r *MemberRepositoryImpl) FindByRole(ctx context.Context, role Role) ([]Member, error) {
	query := `SELECT member_id, name, area FROM access_member WHERE role = $1 ORDER BY member_id`
	rows, err := r.db.Query(ctx, query, string(role))
	if err != nil {
		err := fmt.Errorf("could not query %s: %w", role, err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()

	members := make([]Member, 0)
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.ID, &m.Name, &m.Area); err != nil {
			err := fmt.Errorf("could not scan %s member: %w", role, err)
			log.Error(err)
			return nil, err
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		err := fmt.Errorf("could not read %s: %w", role, err)
		log.Error(err)
		return nil, err
	}
	return members, nil
}

func (r *MemberRepositoryImpl) Upsert(ctx context.Context, role Role, member Member) error {
	query := `INSERT INTO access_member (role, member_id, name, area) VALUES ($1, $2, $3, $4)
			  ON CONFLICT (role, member_id, area) DO UPDATE SET name = EXCLUDED.name`
	if _, err := r.db.Exec(ctx, query, string(role), member.ID, member.Name, member.Area); err != nil {
		err := fmt.Errorf("could not store %s member %d: %w", role, member.ID, err)
		log.Error(err)
		return err
	}
	return nil
}

func (r *MemberRepositoryImpl) Remove(ctx context.Context, role Role, id int64, area string) (bool, error) {
	query := `DELETE FROM access_member WHERE role = $1 AND member_id = $2 AND area = $3`
	tag, err := r.db.Exec(ctx, query, string(role), id, area)
	if err != nil {
		err := fmt.Errorf("could not remove %s member %d: %w", role, id, err)
		log.Error(err)
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// RepositoryLoaders reads every role list from repo.
func RepositoryLoaders(repo MemberRepository) Loaders {
	load := func(role Role) Loader[[]Member] {
		return func(ctx context.Context) ([]Member, error) {
			return repo.FindByRole(ctx, role)
		}
	}
	return Loaders{
		Rooms:      load(RoleRoom),
		Assistants: load(RoleAssistant),
		Operators:  load(RoleOperator),
	}
}
