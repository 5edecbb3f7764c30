package sessionstore

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/jackc/pgconn"
	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/csfam/pawprint/internal/common/uuid"
)

// pgUniqueViolation is the SQLSTATE of a unique constraint violation.
const pgUniqueViolation = "23505"

// PostgresOptions configures OpenPostgres.
type PostgresOptions struct {
	DSN             string
	Schema          string
	Sealer          *Sealer
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectAttempts uint
	ConnectDelay    time.Duration
}

// PostgresStore keeps sessions in a PostgreSQL table. Passwords are stored
// sealed; the triple lookup therefore selects candidates by server and user
// and compares the opened passwords.
type PostgresStore struct {
	db       *sql.DB
	table    string
	sealer   *Sealer
	newToken func() (string, error)
}

var _ Store = (*PostgresStore)(nil)

// OpenPostgres connects to the database, retrying while it comes up.
func OpenPostgres(ctx context.Context, opts PostgresOptions) (*PostgresStore, error) {
	if opts.Sealer == nil {
		return nil, ErrInvalidInput.New("a secret key is required for the postgres store")
	}
	db, err := sql.Open("pgx", opts.DSN)
	if err != nil {
		return nil, ErrDatabase.MsgErr("failed to open database connection", err)
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}
	attempts := opts.ConnectAttempts
	if attempts == 0 {
		attempts = 5
	}
	delay := opts.ConnectDelay
	if delay == 0 {
		delay = time.Second
	}

	err = retry.Do(
		func() error {
			return db.PingContext(ctx)
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Ctx(ctx).Warn().Err(err).Uint("attempt", n+1).Msg("database not reachable, retrying")
		}),
	)
	if err != nil {
		db.Close()
		return nil, ErrDatabase.MsgErr("failed to ping database", err)
	}
	return NewPostgresStore(db, opts.Schema, opts.Sealer), nil
}

// NewPostgresStore wraps an open database handle.
func NewPostgresStore(db *sql.DB, schema string, sealer *Sealer) *PostgresStore {
	if schema == "" {
		schema = "public"
	}
	return &PostgresStore{
		db:       db,
		table:    pq.QuoteIdentifier(schema) + ".sessions",
		sealer:   sealer,
		newToken: uuid.NewToken,
	}
}

func (p *PostgresStore) FindValid(ctx context.Context, serverURL, username, password string, now time.Time) (*Session, error) {
	query := fmt.Sprintf(`
		SELECT token, server_url, username, password_sealed, expires_at, created_at
		FROM %s
		WHERE server_url = $1 AND username = $2 AND expires_at > $3
		ORDER BY expires_at DESC`, p.table)

	rows, err := p.db.QueryContext(ctx, query, serverURL, username, now.UTC())
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to query sessions")
		return nil, ErrDatabase.Err(err)
	}
	defer rows.Close()

	for rows.Next() {
		s, sealed, err := scanSession(rows)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("failed to scan session")
			return nil, ErrDatabase.Err(err)
		}
		plain, err := p.sealer.Open(sealed)
		if err != nil {
			log.Ctx(ctx).Warn().Msg("skipping session sealed under another key")
			continue
		}
		if subtle.ConstantTimeCompare([]byte(plain), []byte(password)) == 1 {
			s.Password = plain
			return s, nil
		}
	}
	if err := rows.Err(); err != nil {
		return nil, ErrDatabase.Err(err)
	}
	return nil, ErrSessionNotFound
}

func (p *PostgresStore) FindByToken(ctx context.Context, token string, now time.Time) (*Session, error) {
	query := fmt.Sprintf(`
		SELECT token, server_url, username, password_sealed, expires_at, created_at
		FROM %s
		WHERE token = $1 AND expires_at > $2`, p.table)

	s, sealed, err := scanSession(p.db.QueryRowContext(ctx, query, token, now.UTC()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to get session")
		return nil, ErrDatabase.Err(err)
	}
	s.Password, err = p.sealer.Open(sealed)
	if err != nil {
		log.Ctx(ctx).Warn().Msg("session sealed under another key")
		return nil, ErrSessionNotFound
	}
	return s, nil
}

func (p *PostgresStore) Create(ctx context.Context, serverURL, username, password string, now time.Time, duration time.Duration) (*Session, error) {
	if duration <= 0 {
		return nil, ErrInvalidInput.New("session duration must be positive")
	}
	sealed, err := p.sealer.Seal(password)
	if err != nil {
		return nil, ErrCredentialSeal.Err(err)
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (token, server_url, username, password_sealed, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`, p.table)

	s := &Session{
		ServerURL: serverURL,
		Username:  username,
		Password:  password,
		Expiry:    now.Add(duration).UTC(),
		CreatedAt: now.UTC(),
	}
	for i := 0; i < tokenAttempts; i++ {
		s.Token, err = p.newToken()
		if err != nil {
			return nil, ErrStore.MsgErr("unable to generate token", err)
		}
		_, err = p.db.ExecContext(ctx, query, s.Token, s.ServerURL, s.Username, sealed, s.Expiry, s.CreatedAt)
		if err == nil {
			return s, nil
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			log.Ctx(ctx).Warn().Msg("token collision, regenerating")
			continue
		}
		log.Ctx(ctx).Error().Err(err).Msg("failed to insert session")
		return nil, ErrDatabase.Err(err)
	}
	return nil, ErrTokenConflict
}

func (p *PostgresStore) Delete(ctx context.Context, s *Session) error {
	if s == nil {
		return nil
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE token = $1`, p.table)
	result, err := p.db.ExecContext(ctx, query, s.Token)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to delete session")
		return ErrDatabase.Err(err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		log.Ctx(ctx).Warn().Str("server_url", s.ServerURL).Msg("tried to delete a session that was not saved")
	}
	return nil
}

func (p *PostgresStore) PurgeExpired(ctx context.Context, now time.Time) ([]string, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE expires_at <= $1 RETURNING token`, p.table)
	rows, err := p.db.QueryContext(ctx, query, now.UTC())
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to purge sessions")
		return nil, ErrDatabase.Err(err)
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, ErrDatabase.Err(err)
		}
		tokens = append(tokens, token)
	}
	if err := rows.Err(); err != nil {
		return nil, ErrDatabase.Err(err)
	}
	return tokens, nil
}

// Ping checks the database connection.
func (p *PostgresStore) Ping(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return ErrDatabase.Err(err)
	}
	return nil
}

func (p *PostgresStore) Close() error {
	return p.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, string, error) {
	var (
		s      Session
		sealed string
	)
	if err := row.Scan(&s.Token, &s.ServerURL, &s.Username, &sealed, &s.Expiry, &s.CreatedAt); err != nil {
		return nil, "", err
	}
	return &s, sealed, nil
}
