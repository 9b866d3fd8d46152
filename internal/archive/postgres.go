// Package archive persists revealed rounds to Postgres. It is optional: the
// rooms themselves never touch the database.
package archive

import (
	"context"
	"embed"
	"fmt"
	"io"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/scythe504/voting-rooms/internal"
	"github.com/sirupsen/logrus"
)

//go:embed migrations/*.sql
var migrations embed.FS

type Postgres struct {
	pool *pgxpool.Pool
	log  *logrus.Entry
}

// Open connects to databaseURL and verifies the connection.
func Open(ctx context.Context, databaseURL string, log *logrus.Entry) (*Postgres, error) {
	if log == nil {
		silent := logrus.New()
		silent.SetOutput(io.Discard)
		log = logrus.NewEntry(silent)
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open archive pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping archive: %w", err)
	}
	return &Postgres{pool: pool, log: log.WithField("component", "archive")}, nil
}

func (p *Postgres) Close() { p.pool.Close() }

// Migrate executes every embedded .sql file in name order.
func (p *Postgres) Migrate(ctx context.Context) error {
	entries, err := migrations.ReadDir("migrations")
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		b, err := migrations.ReadFile("migrations/" + e.Name())
		if err != nil {
			return err
		}
		if _, err := p.pool.Exec(ctx, string(b)); err != nil {
			return fmt.Errorf("migration %s: %w", e.Name(), err)
		}
		p.log.Infof("[Migrate] applied %s", e.Name())
	}
	return nil
}

// SaveRound stores a round and its votes in one transaction.
func (p *Postgres) SaveRound(ctx context.Context, result internal.RoundResult) error {
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		var roundID int64
		err := tx.QueryRow(ctx, `
			INSERT INTO rounds (room_code, room_name, round_number, started_at, revealed_at)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id
		`, result.RoomCode, result.RoomName, result.Round, result.StartedAt, result.RevealedAt).Scan(&roundID)
		if err != nil {
			return fmt.Errorf("insert round: %w", err)
		}

		batch := &pgx.Batch{}
		for i, v := range result.Votes {
			batch.Queue(`
				INSERT INTO votes (round_id, position, voter, name, choice)
				VALUES ($1, $2, $3, $4, $5)
			`, roundID, i, v.Voter, v.Name, v.Choice)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert votes: %w", err)
		}
		return nil
	})
}

// RecentRounds returns up to limit rounds of a room, newest first, each
// with its votes in cast order.
func (p *Postgres) RecentRounds(ctx context.Context, code string, limit int) ([]internal.RoundResult, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, room_code, room_name, round_number, started_at, revealed_at
		FROM rounds
		WHERE room_code = $1
		ORDER BY revealed_at DESC, id DESC
		LIMIT $2
	`, code, limit)
	if err != nil {
		return nil, fmt.Errorf("query rounds: %w", err)
	}
	defer rows.Close()

	var (
		out []internal.RoundResult
		ids []int64
	)
	byID := make(map[int64]int)
	for rows.Next() {
		var (
			id int64
			r  internal.RoundResult
		)
		if err := rows.Scan(&id, &r.RoomCode, &r.RoomName, &r.Round, &r.StartedAt, &r.RevealedAt); err != nil {
			return nil, err
		}
		r.Votes = []internal.Vote{}
		byID[id] = len(out)
		ids = append(ids, id)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return out, nil
	}

	voteRows, err := p.pool.Query(ctx, `
		SELECT round_id, voter, name, choice
		FROM votes
		WHERE round_id = ANY($1)
		ORDER BY round_id, position
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("query votes: %w", err)
	}
	defer voteRows.Close()

	for voteRows.Next() {
		var (
			roundID int64
			v       internal.Vote
		)
		if err := voteRows.Scan(&roundID, &v.Voter, &v.Name, &v.Choice); err != nil {
			return nil, err
		}
		idx := byID[roundID]
		out[idx].Votes = append(out[idx].Votes, v)
	}
	return out, voteRows.Err()
}
