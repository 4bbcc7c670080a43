package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/stephenafamo/bob"
	"github.com/stephenafamo/bob/dialect/psql"
	"github.com/stephenafamo/bob/dialect/psql/dialect"
	"github.com/stephenafamo/bob/dialect/psql/dm"
	"github.com/stephenafamo/bob/dialect/psql/im"
	"github.com/stephenafamo/bob/dialect/psql/sm"
	"github.com/stephenafamo/bob/dialect/psql/um"

	"github.com/dkoval/eventhub/internal/db"
)

type Team struct {
	ID          string    `db:"id"`
	Name        string    `db:"name"`
	Description string    `db:"description"`
	Track       string    `db:"track"`
	EventID     string    `db:"event_id"`
	LeaderID    string    `db:"leader_id"`
	CreatedAt   time.Time `db:"created_at"`
}

type TeamPatch struct {
	ID          string  `db:"id"`
	Name        *string `db:"name"`
	Description *string `db:"description"`
	Track       *string `db:"track"`
}

type TeamRepository interface {
	Create(ctx context.Context, team *Team) error
	Get(ctx context.Context, teamID string) (*Team, error)
	// GetForUpdate locks the team row for the rest of the transaction. Every
	// mutation that reads team size or leadership before writing goes through
	// this lock so concurrent mutations of the same team serialize.
	GetForUpdate(ctx context.Context, teamID string) (*Team, error)
	// GetForShare takes a shared lock: response assembly holds it while reading
	// members so a concurrent leadership transfer cannot interleave.
	GetForShare(ctx context.Context, teamID string) (*Team, error)
	ListByEvent(ctx context.Context, eventID string) ([]*Team, error)
	ListByEventAndUser(ctx context.Context, eventID, userID string) ([]*Team, error)
	Patch(ctx context.Context, patch *TeamPatch) (*Team, error)
	SetLeader(ctx context.Context, teamID, userID string) error
	Delete(ctx context.Context, teamID string) error
	CountByEvent(ctx context.Context, eventID string) (int, error)
	TrackCounts(ctx context.Context, eventID string) (map[string]int, error)
}

type pgxTeamRepository struct {
	pool *pgxpool.Pool
}

func NewPgxTeamRepository(pool *pgxpool.Pool) TeamRepository {
	return &pgxTeamRepository{pool: pool}
}

func (p *pgxTeamRepository) Create(ctx context.Context, team *Team) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Insert(
		im.Into("teams", "id", "name", "description", "track", "event_id", "leader_id"),
		im.Values(
			psql.Arg(team.ID), psql.Arg(team.Name), psql.Arg(team.Description),
			psql.Arg(team.Track), psql.Arg(team.EventID), psql.Arg(team.LeaderID),
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

type teamLock int

const (
	lockNone teamLock = iota
	lockShare
	lockUpdate
)

func (p *pgxTeamRepository) Get(ctx context.Context, teamID string) (*Team, error) {
	return p.get(ctx, teamID, lockNone)
}

func (p *pgxTeamRepository) GetForUpdate(ctx context.Context, teamID string) (*Team, error) {
	return p.get(ctx, teamID, lockUpdate)
}

func (p *pgxTeamRepository) GetForShare(ctx context.Context, teamID string) (*Team, error) {
	return p.get(ctx, teamID, lockShare)
}

func (p *pgxTeamRepository) get(ctx context.Context, teamID string, lock teamLock) (*Team, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	mods := []bob.Mod[*dialect.SelectQuery]{
		sm.Columns("id", "name", "description", "track", "event_id", "leader_id", "created_at"),
		sm.From("teams"),
		sm.Where(psql.Quote("id").EQ(psql.Arg(teamID))),
	}
	switch lock {
	case lockShare:
		mods = append(mods, sm.ForShare())
	case lockUpdate:
		mods = append(mods, sm.ForUpdate())
	}

	q := psql.Select(mods...)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	team := &Team{}
	if err = e.QueryRow(ctx, sql, args...).Scan(
		&team.ID, &team.Name, &team.Description, &team.Track,
		&team.EventID, &team.LeaderID, &team.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return team, nil
}

func (p *pgxTeamRepository) ListByEvent(ctx context.Context, eventID string) ([]*Team, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns("id", "name", "description", "track", "event_id", "leader_id", "created_at"),
		sm.From("teams"),
		sm.Where(psql.Quote("event_id").EQ(psql.Arg(eventID))),
		sm.OrderBy("created_at"),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	return p.collectTeams(ctx, e, sql, args)
}

func (p *pgxTeamRepository) ListByEventAndUser(ctx context.Context, eventID, userID string) ([]*Team, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns("id", "name", "description", "track", "event_id", "leader_id", "created_at"),
		sm.From("teams"),
		sm.Where(psql.Quote("event_id").EQ(psql.Arg(eventID)).And(
			psql.Quote("id").In(psql.Select(
				sm.Columns("team_id"),
				sm.From("team_members"),
				sm.Where(psql.Quote("user_id").EQ(psql.Arg(userID))),
			)),
		)),
		sm.ForUpdate(),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	return p.collectTeams(ctx, e, sql, args)
}

func (p *pgxTeamRepository) collectTeams(ctx context.Context, e db.Executor, sql string, args []any) ([]*Team, error) {
	rows, err := e.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	teams, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Team, error) {
		team := &Team{}
		if err := row.Scan(
			&team.ID, &team.Name, &team.Description, &team.Track,
			&team.EventID, &team.LeaderID, &team.CreatedAt,
		); err != nil {
			return nil, err
		}
		return team, nil
	})
	if err != nil {
		return nil, err
	}

	return teams, nil
}

func (p *pgxTeamRepository) Patch(ctx context.Context, patch *TeamPatch) (*Team, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	sets := make([]bob.Mod[*dialect.UpdateQuery], 0, 3)

	if patch.Name != nil {
		sets = append(sets, um.SetCol("name").ToArg(*patch.Name))
	}
	if patch.Description != nil {
		sets = append(sets, um.SetCol("description").ToArg(*patch.Description))
	}
	if patch.Track != nil {
		sets = append(sets, um.SetCol("track").ToArg(*patch.Track))
	}

	q := psql.Update(
		um.Table("teams"),
		um.Where(psql.Quote("id").EQ(psql.Arg(patch.ID))),
		um.Returning("id", "name", "description", "track", "event_id", "leader_id", "created_at"),
	)

	q.Apply(sets...)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	team := &Team{}
	if err = e.QueryRow(ctx, sql, args...).Scan(
		&team.ID, &team.Name, &team.Description, &team.Track,
		&team.EventID, &team.LeaderID, &team.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return team, nil
}

func (p *pgxTeamRepository) SetLeader(ctx context.Context, teamID, userID string) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Update(
		um.Table("teams"),
		um.SetCol("leader_id").ToArg(userID),
		um.Where(psql.Quote("id").EQ(psql.Arg(teamID))),
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

func (p *pgxTeamRepository) Delete(ctx context.Context, teamID string) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Delete(
		dm.From("teams"),
		dm.Where(psql.Quote("id").EQ(psql.Arg(teamID))),
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

func (p *pgxTeamRepository) CountByEvent(ctx context.Context, eventID string) (int, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns("count(*)"),
		sm.From("teams"),
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

func (p *pgxTeamRepository) TrackCounts(ctx context.Context, eventID string) (map[string]int, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns("track", "count(*)"),
		sm.From("teams"),
		sm.Where(psql.Quote("event_id").EQ(psql.Arg(eventID))),
		sm.GroupBy("track"),
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

	counts := make(map[string]int)
	for rows.Next() {
		var track string
		var count int
		if err = rows.Scan(&track, &count); err != nil {
			return nil, err
		}
		counts[track] = count
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	return counts, nil
}
