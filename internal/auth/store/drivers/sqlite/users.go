package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/quickqr/qrbot/internal/auth/domain"
)

type usersRepo struct {
	q querier
}

const userColumns = `id, username, password_hash, role, active,
	failed_login_count, locked_until, last_login_at, login_count,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (domain.User, error) {
	var (
		u           domain.User
		role        string
		lockedUntil sql.NullTime
		lastLoginAt sql.NullTime
	)
	err := row.Scan(
		&u.ID, &u.Username, &u.PasswordHash, &role, &u.Active,
		&u.FailedLoginCount, &lockedUntil, &lastLoginAt, &u.LoginCount,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return domain.User{}, err
	}
	u.Role = domain.Role(role)
	u.LockedUntil = mapNullTimePtr(lockedUntil)
	u.LastLoginAt = mapNullTimePtr(lastLoginAt)
	return u, nil
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return u, nil
}

func (r *usersRepo) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ?`, username)
	u, err := scanUser(row)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return u, nil
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO users (id, username, password_hash, role, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.PasswordHash, string(u.Role), u.Active,
		u.CreatedAt, u.UpdatedAt,
	)
	return mapConstraint(err)
}

func (r *usersRepo) UpdatePasswordHash(ctx context.Context, userID string, newHash string) error {
	return r.exec(ctx, `
		UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		newHash, time.Now().UTC(), userID)
}

func (r *usersRepo) UpdateRole(ctx context.Context, userID string, role domain.Role) error {
	return r.exec(ctx, `
		UPDATE users SET role = ?, updated_at = ? WHERE id = ?`,
		string(role), time.Now().UTC(), userID)
}

func (r *usersRepo) SetActive(ctx context.Context, userID string, active bool) error {
	return r.exec(ctx, `
		UPDATE users SET active = ?, updated_at = ? WHERE id = ?`,
		active, time.Now().UTC(), userID)
}

// RecordLoginFailure is the whole lockout decision in one statement: the
// increment, the threshold compare and the lock write happen atomically in
// the database, so N concurrent failures always produce count+N and exactly
// one row where the returned count equals the threshold. A failure arriving
// after the lock has expired starts a fresh streak (count restarts at 1 and
// the stale lock is cleared), so each lock cycle has its own unique
// threshold crossing.
func (r *usersRepo) RecordLoginFailure(
	ctx context.Context,
	userID string,
	threshold int,
	lockFor time.Duration,
	now time.Time,
) (domain.User, error) {
	row := r.q.QueryRowContext(ctx, `
		UPDATE users
		SET failed_login_count = CASE
		        WHEN locked_until IS NOT NULL AND locked_until <= ? THEN 1
		        ELSE failed_login_count + 1
		    END,
		    locked_until = CASE
		        WHEN (CASE
		            WHEN locked_until IS NOT NULL AND locked_until <= ? THEN 1
		            ELSE failed_login_count + 1
		        END) >= ? THEN ?
		        WHEN locked_until IS NOT NULL AND locked_until <= ? THEN NULL
		        ELSE locked_until
		    END,
		    updated_at = ?
		WHERE id = ?
		RETURNING `+userColumns,
		now.UTC(), now.UTC(), threshold, now.Add(lockFor).UTC(), now.UTC(), now.UTC(), userID,
	)
	u, err := scanUser(row)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return u, nil
}

func (r *usersRepo) RecordLoginSuccess(ctx context.Context, userID string, now time.Time) error {
	return r.exec(ctx, `
		UPDATE users
		SET failed_login_count = 0,
		    locked_until = NULL,
		    last_login_at = ?,
		    login_count = login_count + 1,
		    updated_at = ?
		WHERE id = ?`,
		now.UTC(), now.UTC(), userID)
}

func (r *usersRepo) ClearLock(ctx context.Context, userID string) error {
	return r.exec(ctx, `
		UPDATE users
		SET failed_login_count = 0, locked_until = NULL, updated_at = ?
		WHERE id = ?`,
		time.Now().UTC(), userID)
}

func (r *usersRepo) IsEmpty(ctx context.Context) (bool, error) {
	var count int64
	err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	if err != nil {
		return false, err
	}
	return count == 0, nil
}

// exec runs an UPDATE that must touch exactly one row, mapping a zero-row
// result to ErrNotFound.
func (r *usersRepo) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return mapNotFound(sql.ErrNoRows)
	}
	return nil
}
