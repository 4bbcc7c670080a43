package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/stephenafamo/bob/dialect/psql"
	"github.com/stephenafamo/bob/dialect/psql/dm"
	"github.com/stephenafamo/bob/dialect/psql/im"
	"github.com/stephenafamo/bob/dialect/psql/sm"
	"github.com/stephenafamo/bob/dialect/psql/um"

	"github.com/dkoval/eventhub/internal/db"
)

// TeamMember carries event_id alongside team_id. The denormalization lets a
// unique index on (event_id, user_id) enforce one team per user per event at
// the storage level instead of by cross-table scan.
type TeamMember struct {
	ID       string    `db:"id"`
	TeamID   string    `db:"team_id"`
	EventID  string    `db:"event_id"`
	UserID   string    `db:"user_id"`
	Role     string    `db:"role"`
	JoinedAt time.Time `db:"joined_at"`
}

const (
	RoleLeader = "leader"
	RoleMember = "member"
)

type MemberRepository interface {
	Add(ctx context.Context, member *TeamMember) error
	Get(ctx context.Context, teamID, userID string) (*TeamMember, error)
	Remove(ctx context.Context, teamID, userID string) error
	RemoveAll(ctx context.Context, teamID string) error
	// List returns members ordered by joined_at then id, the same order the
	// auto-promotion on unregister uses.
	List(ctx context.Context, teamID string) ([]*TeamMember, error)
	Count(ctx context.Context, teamID string) (int, error)
	SetRole(ctx context.Context, teamID, userID, role string) error
	ExistsInEvent(ctx context.Context, eventID, userID string) (bool, error)
	CountDistinctByEvent(ctx context.Context, eventID string) (int, error)
}

type pgxMemberRepository struct {
	pool *pgxpool.Pool
}

func NewPgxMemberRepository(pool *pgxpool.Pool) MemberRepository {
	return &pgxMemberRepository{pool: pool}
}

func (p *pgxMemberRepository) Add(ctx context.Context, member *TeamMember) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Insert(
		im.Into("team_members", "id", "team_id", "event_id", "user_id", "role"),
		im.Values(
			psql.Arg(member.ID), psql.Arg(member.TeamID), psql.Arg(member.EventID),
			psql.Arg(member.UserID), psql.Arg(member.Role),
		),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return err
	}

	_, err = e.Exec(ctx, sql, args...)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrAlreadyExists
	}

	return err
}

func (p *pgxMemberRepository) Get(ctx context.Context, teamID, userID string) (*TeamMember, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns("id", "team_id", "event_id", "user_id", "role", "joined_at"),
		sm.From("team_members"),
		sm.Where(psql.Quote("team_id").EQ(psql.Arg(teamID)).
			And(psql.Quote("user_id").EQ(psql.Arg(userID)))),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	member := &TeamMember{}
	if err = e.QueryRow(ctx, sql, args...).Scan(
		&member.ID, &member.TeamID, &member.EventID,
		&member.UserID, &member.Role, &member.JoinedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return member, nil
}

func (p *pgxMemberRepository) Remove(ctx context.Context, teamID, userID string) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Delete(
		dm.From("team_members"),
		dm.Where(psql.Quote("team_id").EQ(psql.Arg(teamID)).
			And(psql.Quote("user_id").EQ(psql.Arg(userID)))),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return err
	}

	commandTag, err := e.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}

	if commandTag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

func (p *pgxMemberRepository) RemoveAll(ctx context.Context, teamID string) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Delete(
		dm.From("team_members"),
		dm.Where(psql.Quote("team_id").EQ(psql.Arg(teamID))),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return err
	}

	if _, err = e.Exec(ctx, sql, args...); err != nil {
		return err
	}

	return nil
}

func (p *pgxMemberRepository) List(ctx context.Context, teamID string) ([]*TeamMember, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns("id", "team_id", "event_id", "user_id", "role", "joined_at"),
		sm.From("team_members"),
		sm.Where(psql.Quote("team_id").EQ(psql.Arg(teamID))),
		sm.OrderBy("joined_at"),
		sm.OrderBy("id"),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := e.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*TeamMember, error) {
		member := &TeamMember{}
		if err := row.Scan(
			&member.ID, &member.TeamID, &member.EventID,
			&member.UserID, &member.Role, &member.JoinedAt,
		); err != nil {
			return nil, err
		}
		return member, nil
	})
	if err != nil {
		return nil, err
	}

	return members, nil
}

func (p *pgxMemberRepository) Count(ctx context.Context, teamID string) (int, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns("count(*)"),
		sm.From("team_members"),
		sm.Where(psql.Quote("team_id").EQ(psql.Arg(teamID))),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return 0, err
	}

	var count int
	if err = e.QueryRow(ctx, sql, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (p *pgxMemberRepository) SetRole(ctx context.Context, teamID, userID, role string) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Update(
		um.Table("team_members"),
		um.SetCol("role").ToArg(role),
		um.Where(psql.Quote("team_id").EQ(psql.Arg(teamID)).
			And(psql.Quote("user_id").EQ(psql.Arg(userID)))),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return err
	}

	commandTag, err := e.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}

	if commandTag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

func (p *pgxMemberRepository) ExistsInEvent(ctx context.Context, eventID, userID string) (bool, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns("1"),
		sm.From("team_members"),
		sm.Where(psql.Quote("event_id").EQ(psql.Arg(eventID)).
			And(psql.Quote("user_id").EQ(psql.Arg(userID)))),
		sm.Limit(1),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return false, err
	}

	var one int
	if err = e.QueryRow(ctx, sql, args...).Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (p *pgxMemberRepository) CountDistinctByEvent(ctx context.Context, eventID string) (int, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns("count(distinct user_id)"),
		sm.From("team_members"),
		sm.Where(psql.Quote("event_id").EQ(psql.Arg(eventID))),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return 0, err
	}

	var count int
	if err = e.QueryRow(ctx, sql, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
