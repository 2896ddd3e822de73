package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/rep4rep/steam-commenter/internal/database"
	"github.com/rep4rep/steam-commenter/internal/model"
	"github.com/rep4rep/steam-commenter/internal/util"
)

// ProfileRepository is the durable record of known accounts and their
// comment history.
type ProfileRepository interface {
	// Upsert inserts or updates an account. A known steam id is the key;
	// otherwise the username is.
	Upsert(ctx context.Context, params model.UpsertAccountParams) (*model.Account, error)
	FindAll(ctx context.Context) ([]model.Account, error)
	FindByUsername(ctx context.Context, username string) (*model.Account, error)
	FindBySteamID(ctx context.Context, steamID string) (*model.Account, error)
	// DeleteByUsername returns the number of removed accounts.
	DeleteByUsername(ctx context.Context, username string) (int64, error)
	// RecordComment stamps last_comment_at and appends a comment event.
	RecordComment(ctx context.Context, steamID string) error
	CountCommentsSince(ctx context.Context, steamID string, since time.Time) (int, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) ProfileRepository
}

type profileRepo struct {
	db     database.DBTX
	cipher *util.Cipher
	now    func() time.Time
}

// NewProfileRepository builds the repository. A nil cipher stores secrets
// in plaintext.
func NewProfileRepository(db *sqlx.DB, cipher *util.Cipher) ProfileRepository {
	return &profileRepo{db: db, cipher: cipher, now: time.Now}
}

func (r *profileRepo) WithTx(tx *sqlx.Tx) ProfileRepository {
	return &profileRepo{db: tx, cipher: r.cipher, now: r.now}
}

// profileRow maps steam_profiles; timestamps are unix seconds so the same
// queries work on sqlite and postgres.
type profileRow struct {
	ID            int64          `db:"id"`
	Username      string         `db:"username"`
	Password      string         `db:"password"`
	SharedSecret  string         `db:"shared_secret"`
	SteamID       sql.NullString `db:"steam_id"`
	Cookies       string         `db:"cookies"`
	LastCommentAt sql.NullInt64  `db:"last_comment_at"`
	CreatedAt     int64          `db:"created_at"`
	UpdatedAt     int64          `db:"updated_at"`
}

const profileColumns = `id, username, password, shared_secret, steam_id, cookies, last_comment_at, created_at, updated_at`

func (r *profileRepo) Upsert(ctx context.Context, params model.UpsertAccountParams) (*model.Account, error) {
	password, err := r.cipher.Encrypt(params.Password)
	if err != nil {
		return nil, fmt.Errorf("encrypt password: %w", err)
	}
	secret, err := r.cipher.Encrypt(params.SharedSecret)
	if err != nil {
		return nil, fmt.Errorf("encrypt shared secret: %w", err)
	}
	cookies, err := r.cipher.Encrypt(params.Cookies)
	if err != nil {
		return nil, fmt.Errorf("encrypt cookies: %w", err)
	}
	now := r.now().Unix()

	var row profileRow
	if params.SteamID != "" {
		err = r.db.GetContext(ctx, &row, r.db.Rebind(`
			UPDATE steam_profiles SET
				username = ?,
				password = ?,
				shared_secret = CASE WHEN ? = '' THEN shared_secret ELSE ? END,
				cookies = ?,
				updated_at = ?
			WHERE steam_id = ?
			RETURNING `+profileColumns),
			params.Username, password, secret, secret, cookies, now, params.SteamID)
		if err == nil {
			return r.toDomain(&row)
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("update profile by steam id: %w", err)
		}
	}

	err = r.db.GetContext(ctx, &row, r.db.Rebind(`
		INSERT INTO steam_profiles (username, password, shared_secret, steam_id, cookies, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (username) DO UPDATE SET
			password = excluded.password,
			shared_secret = CASE WHEN excluded.shared_secret = '' THEN steam_profiles.shared_secret ELSE excluded.shared_secret END,
			steam_id = COALESCE(excluded.steam_id, steam_profiles.steam_id),
			cookies = excluded.cookies,
			updated_at = excluded.updated_at
		RETURNING `+profileColumns),
		params.Username, password, secret, nullString(params.SteamID), cookies, now, now)
	if err != nil {
		return nil, fmt.Errorf("upsert profile: %w", err)
	}
	return r.toDomain(&row)
}

func (r *profileRepo) FindAll(ctx context.Context) ([]model.Account, error) {
	var rows []profileRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT `+profileColumns+` FROM steam_profiles
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}

	accounts := make([]model.Account, 0, len(rows))
	for i := range rows {
		acc, err := r.toDomain(&rows[i])
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *acc)
	}
	return accounts, nil
}

func (r *profileRepo) FindByUsername(ctx context.Context, username string) (*model.Account, error) {
	found, err := getOptional[profileRow](ctx, r.db, `
		SELECT `+profileColumns+` FROM steam_profiles WHERE username = ?
	`, username)
	if err != nil || found == nil {
		return nil, err
	}
	return r.toDomain(found)
}

func (r *profileRepo) FindBySteamID(ctx context.Context, steamID string) (*model.Account, error) {
	found, err := getOptional[profileRow](ctx, r.db, `
		SELECT `+profileColumns+` FROM steam_profiles WHERE steam_id = ?
	`, steamID)
	if err != nil || found == nil {
		return nil, err
	}
	return r.toDomain(found)
}

func (r *profileRepo) DeleteByUsername(ctx context.Context, username string) (int64, error) {
	result, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM steam_profiles WHERE username = ?`), username)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// RecordComment stamps the account and appends to the comment log in one
// transaction.
func (r *profileRepo) RecordComment(ctx context.Context, steamID string) error {
	if db, ok := r.db.(*sqlx.DB); ok {
		return database.InTx(ctx, db, func(tx *sqlx.Tx) error {
			return r.WithTx(tx).RecordComment(ctx, steamID)
		})
	}

	now := r.now().Unix()

	if _, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE steam_profiles SET last_comment_at = ?, updated_at = ? WHERE steam_id = ?
	`), now, now, steamID); err != nil {
		return fmt.Errorf("update last comment: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO comments (steam_id, created_at) VALUES (?, ?)
	`), steamID, now); err != nil {
		return fmt.Errorf("insert comment event: %w", err)
	}
	return nil
}

func (r *profileRepo) CountCommentsSince(ctx context.Context, steamID string, since time.Time) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, r.db.Rebind(`
		SELECT COUNT(*) FROM comments WHERE steam_id = ? AND created_at >= ?
	`), steamID, since.Unix())
	return count, err
}

func (r *profileRepo) toDomain(row *profileRow) (*model.Account, error) {
	password, err := r.cipher.Decrypt(row.Password)
	if err != nil {
		return nil, fmt.Errorf("decrypt password for %s: %w", row.Username, err)
	}
	secret, err := r.cipher.Decrypt(row.SharedSecret)
	if err != nil {
		return nil, fmt.Errorf("decrypt shared secret for %s: %w", row.Username, err)
	}
	cookies, err := r.cipher.Decrypt(row.Cookies)
	if err != nil {
		return nil, fmt.Errorf("decrypt cookies for %s: %w", row.Username, err)
	}

	acc := &model.Account{
		ID:           row.ID,
		Username:     row.Username,
		Password:     password,
		SharedSecret: secret,
		SteamID:      row.SteamID.String,
		Cookies:      cookies,
		CreatedAt:    time.Unix(row.CreatedAt, 0),
		UpdatedAt:    time.Unix(row.UpdatedAt, 0),
	}
	if row.LastCommentAt.Valid {
		t := time.Unix(row.LastCommentAt.Int64, 0)
		acc.LastCommentAt = &t
	}
	return acc, nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
