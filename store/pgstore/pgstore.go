// Package pgstore is a PostgreSQL twostep.AccountStore on database/sql with
// the pgx driver. The schema ships as embedded goose migrations.
package pgstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/MrEthical07/twostep"
)

//go:embed migrations/*.sql
var migrations embed.FS

// DBTX is the subset of database/sql the store needs. *sql.DB and *sql.Tx
// both satisfy it.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db DBTX
}

func New(db DBTX) *Store {
	return &Store{db: db}
}

// Open connects with the pgx driver, checks the connection and applies
// pending migrations. The caller closes the returned *sql.DB.
func Open(ctx context.Context, dsn string) (*Store, *sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("db ping error: %w", err)
	}
	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("migration error: %w", err)
	}
	return New(db), db, nil
}

// Migrate brings the schema up to date.
func Migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, "migrations")
}

const accountColumns = `email, password_hash, first_name, last_name, phone_number, phone_verified,
		two_factor_method, two_factor_enabled, pending_two_factor_method, totp_secret,
		email_verified, status, last_login_at, created_at, updated_at, pending_phone_number`

func (s *Store) FindByIdentifier(ctx context.Context, identifier string) (*twostep.Account, error) {
	query := `SELECT ` + accountColumns + `
		FROM accounts
		WHERE email = $1`

	acct, err := scanAccount(s.db.QueryRowContext(ctx, query, key(identifier)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, twostep.ErrAccountNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return acct, nil
}

// Save upserts by email. An update only applies when created_at matches the
// stored row, so a second signup racing for the same email gets
// twostep.ErrAccountExists instead of overwriting the first.
func (s *Store) Save(ctx context.Context, acct *twostep.Account) (*twostep.Account, error) {
	if acct == nil || strings.TrimSpace(acct.Email) == "" {
		return nil, errors.New("pgstore: account email is empty")
	}

	query := `INSERT INTO accounts (` + accountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (email) DO UPDATE SET
			password_hash = EXCLUDED.password_hash,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			phone_number = EXCLUDED.phone_number,
			phone_verified = EXCLUDED.phone_verified,
			two_factor_method = EXCLUDED.two_factor_method,
			two_factor_enabled = EXCLUDED.two_factor_enabled,
			pending_two_factor_method = EXCLUDED.pending_two_factor_method,
			totp_secret = EXCLUDED.totp_secret,
			email_verified = EXCLUDED.email_verified,
			status = EXCLUDED.status,
			last_login_at = EXCLUDED.last_login_at,
			updated_at = EXCLUDED.updated_at,
			pending_phone_number = EXCLUDED.pending_phone_number
		WHERE accounts.created_at = EXCLUDED.created_at
		RETURNING ` + accountColumns

	var lastLogin sql.NullTime
	if acct.LastLoginAt != nil {
		lastLogin = sql.NullTime{Time: acct.LastLoginAt.UTC(), Valid: true}
	}

	saved, err := scanAccount(s.db.QueryRowContext(ctx, query,
		key(acct.Email),
		acct.PasswordHash,
		acct.FirstName,
		acct.LastName,
		acct.PhoneNumber,
		acct.PhoneVerified,
		string(orNone(acct.TwoFactorMethod)),
		acct.TwoFactorEnabled,
		string(orNone(acct.PendingTwoFactorMethod)),
		acct.TOTPSecret,
		acct.EmailVerified,
		string(acct.Status),
		lastLogin,
		acct.CreatedAt.UTC().Truncate(time.Microsecond),
		acct.UpdatedAt.UTC(),
		acct.PendingPhoneNumber,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, twostep.ErrAccountExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return saved, nil
}

func (s *Store) ExistsByIdentifier(ctx context.Context, identifier string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM accounts WHERE email = $1)`, key(identifier)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (*twostep.Account, error) {
	var (
		acct                    twostep.Account
		method, pending, status string
		lastLogin               sql.NullTime
	)
	err := row.Scan(
		&acct.Email,
		&acct.PasswordHash,
		&acct.FirstName,
		&acct.LastName,
		&acct.PhoneNumber,
		&acct.PhoneVerified,
		&method,
		&acct.TwoFactorEnabled,
		&pending,
		&acct.TOTPSecret,
		&acct.EmailVerified,
		&status,
		&lastLogin,
		&acct.CreatedAt,
		&acct.UpdatedAt,
		&acct.PendingPhoneNumber,
	)
	if err != nil {
		return nil, err
	}

	acct.TwoFactorMethod = twostep.TwoFactorMethod(method)
	acct.PendingTwoFactorMethod = twostep.TwoFactorMethod(pending)
	acct.Status = twostep.AccountStatus(status)
	if lastLogin.Valid {
		at := lastLogin.Time
		acct.LastLoginAt = &at
	}
	return &acct, nil
}

func key(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

func orNone(m twostep.TwoFactorMethod) twostep.TwoFactorMethod {
	if m == "" {
		return twostep.TwoFactorNone
	}
	return m
}
