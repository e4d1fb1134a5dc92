package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/microblog/internal/apperror"
	"github.com/sakif/microblog/internal/model"
	"github.com/sakif/microblog/internal/repository"
)

// compile-time check that *DB implements every repository
var _ repository.Store = (*DB)(nil)

const userColumns = `id, username, email, password_hash, about_me, last_seen,
	token, token_expires_at, created_at`

// prefixed qualifies a column list with a table alias for joins.
func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

// rowScanner is the common part of *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanUser reads one row selected with userColumns.
// token_expires_at is stored as unix seconds so the token CAS can compare
// it in SQL.
func scanUser(row rowScanner) (*model.User, error) {
	var (
		u         model.User
		token     sql.NullString
		expiresAt sql.NullInt64
	)
	err := row.Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.PasswordHash,
		&u.AboutMe,
		&u.LastSeen,
		&token,
		&expiresAt,
		&u.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.Token = token.String
	if expiresAt.Valid {
		t := time.Unix(expiresAt.Int64, 0).UTC()
		u.TokenExpiresAt = &t
	}
	return &u, nil
}

// userConflict translates a UNIQUE violation on users into the message the
// registration form shows.
func userConflict(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "users.username"):
		return apperror.Conflict("username", "Please use a different username.")
	case strings.Contains(msg, "users.email"):
		return apperror.Conflict("email", "Please use a different email address.")
	default:
		return apperror.Conflict("user", "User already exists.")
	}
}

// CreateUser inserts a new account. ID, CreatedAt and LastSeen are set here.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.LastSeen = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (id, username, email, password_hash, about_me, last_seen, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.AboutMe,
		user.LastSeen,
		user.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return userConflict(err)
		}
		return fmt.Errorf("sqlite: inserting user %q: %w", user.Username, err)
	}
	return nil
}

func (db *DB) getUserBy(ctx context.Context, column, value string) (*model.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+column+` = ?`, value))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("User", value)
		}
		return nil, fmt.Errorf("sqlite: getting user by %s: %w", column, err)
	}
	return u, nil
}

// GetUserByID retrieves a user by internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return db.getUserBy(ctx, "id", id)
}

// GetUserByUsername matches the username exactly (case-sensitive).
func (db *DB) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return db.getUserBy(ctx, "username", username)
}

func (db *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return db.getUserBy(ctx, "email", email)
}

func (db *DB) GetUserByToken(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, apperror.NotFound("User", "for token")
	}
	u, err := db.getUserBy(ctx, "token", token)
	if errors.Is(err, apperror.ErrNotFound) {
		// never echo a token into an error message
		return nil, apperror.NotFound("User", "for token")
	}
	return u, err
}

// ListUsers returns every account ordered by username.
func (db *DB) ListUsers(ctx context.Context) ([]model.User, error) {
	return db.queryUsers(ctx, db.conn,
		`SELECT `+userColumns+` FROM users ORDER BY username`)
}

func (db *DB) queryUsers(ctx context.Context, q querier, query string, args ...any) ([]model.User, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing users: %w", err)
	}
	defer rows.Close()

	users := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning user: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating users: %w", err)
	}
	return users, nil
}

// updateUser runs an UPDATE against one user row and reports NotFound when
// the row does not exist.
func (db *DB) updateUser(ctx context.Context, id, query string, args ...any) error {
	result, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return userConflict(err)
		}
		return fmt.Errorf("sqlite: updating user %s: %w", id, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rows == 0 {
		return apperror.NotFound("User", id)
	}
	return nil
}

func (db *DB) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return db.updateUser(ctx, id,
		`UPDATE users SET password_hash = ? WHERE id = ?`, passwordHash, id)
}

func (db *DB) UpdateProfile(ctx context.Context, id, username, aboutMe string) error {
	return db.updateUser(ctx, id,
		`UPDATE users SET username = ?, about_me = ? WHERE id = ?`, username, aboutMe, id)
}

func (db *DB) TouchLastSeen(ctx context.Context, id string, at time.Time) error {
	return db.updateUser(ctx, id,
		`UPDATE users SET last_seen = ? WHERE id = ?`, at.UTC(), id)
}

// =========================================================================
// API TOKENS
// =========================================================================

// IssueToken is a compare-and-set: the UPDATE only lands when the stored
// token is missing or expires at or before staleBefore. Whatever token is
// stored afterwards is returned, so a caller that lost the race gets the
// winner's token.
func (db *DB) IssueToken(ctx context.Context, id, token string, expiresAt, staleBefore time.Time) (*model.User, error) {
	var u *model.User
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE users SET token = ?, token_expires_at = ?
			 WHERE id = ? AND (token IS NULL OR token_expires_at IS NULL OR token_expires_at <= ?)`,
			token, expiresAt.Unix(), id, staleBefore.Unix(),
		)
		if err != nil {
			return fmt.Errorf("sqlite: issuing token for user %s: %w", id, err)
		}

		u, err = scanUser(tx.QueryRowContext(ctx,
			`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperror.NotFound("User", id)
			}
			return fmt.Errorf("sqlite: reading issued token for user %s: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

// RevokeToken backdates the expiry; the token string stays until the sweep.
func (db *DB) RevokeToken(ctx context.Context, id string, at time.Time) error {
	return db.updateUser(ctx, id,
		`UPDATE users SET token_expires_at = ? WHERE id = ?`, at.Add(-time.Second).Unix(), id)
}

func (db *DB) ClearExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE users SET token = NULL, token_expires_at = NULL
		 WHERE token IS NOT NULL AND token_expires_at <= ?`, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("sqlite: clearing expired tokens: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return n, nil
}
