package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres resolves users and channel membership against the relational
// schema owned by the REST backend (users, channel_members).
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects a directory to the given database URL.
func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("directory: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("directory: ping: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// LookupUserDisplay implements UserDirectory.
func (p *Postgres) LookupUserDisplay(ctx context.Context, userID int64) (UserDisplay, error) {
	var d UserDisplay
	err := p.pool.QueryRow(ctx,
		`SELECT username, display_name FROM users WHERE id = $1`,
		userID,
	).Scan(&d.Username, &d.DisplayName)
	if errors.Is(err, pgx.ErrNoRows) {
		return UserDisplay{}, ErrUserNotFound
	}
	if err != nil {
		return UserDisplay{}, fmt.Errorf("directory: lookup user %d: %w", userID, err)
	}
	return d, nil
}

// IsChannelMember implements MembershipChecker.
func (p *Postgres) IsChannelMember(ctx context.Context, userID, channelID int64) (bool, error) {
	var member bool
	err := p.pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM channel_members WHERE user_id = $1 AND channel_id = $2
		)`,
		userID, channelID,
	).Scan(&member)
	if err != nil {
		return false, fmt.Errorf("directory: membership user %d channel %d: %w", userID, channelID, err)
	}
	return member, nil
}
