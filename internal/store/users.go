package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

func (s *Store) CreateUser(ctx context.Context, email, name, passwordHash string) (User, error) {
	u := User{ID: uuid.NewString(), Email: normalizeEmail(email), Name: name, PasswordHash: passwordHash}
	err := s.DB.QueryRowContext(ctx, `
INSERT INTO users (id, email, name, password_hash, created_at)
VALUES ($1,$2,$3,$4,NOW())
RETURNING created_at
`, u.ID, u.Email, u.Name, u.PasswordHash).Scan(&u.CreatedAt)
	if err != nil {
		return User{}, mapUserErr(err)
	}
	return u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (User, bool, error) {
	return s.getUser(ctx, `WHERE email=$1`, normalizeEmail(email))
}

func (s *Store) GetUser(ctx context.Context, id string) (User, bool, error) {
	return s.getUser(ctx, `WHERE id=$1`, id)
}

func (s *Store) getUser(ctx context.Context, where string, arg string) (User, bool, error) {
	var u User
	var key sql.NullString
	err := s.DB.QueryRowContext(ctx, `SELECT id, email, name, password_hash, api_key, created_at FROM users `+where, arg).
		Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &key, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, false, nil
		}
		return User{}, false, err
	}
	u.APIKey = key.String
	return u, true, nil
}

func (s *Store) UpdateUser(ctx context.Context, id string, upd UserUpdate) error {
	var sets []string
	var args []interface{}
	add := func(col string, v interface{}) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s=$%d", col, len(args)))
	}
	if upd.Name != nil {
		add("name", *upd.Name)
	}
	if upd.Email != nil {
		add("email", normalizeEmail(*upd.Email))
	}
	if upd.PasswordHash != nil {
		add("password_hash", *upd.PasswordHash)
	}
	if upd.APIKey != nil {
		add("api_key", nullString(strings.TrimSpace(*upd.APIKey)))
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)
	q := fmt.Sprintf(`UPDATE users SET %s WHERE id=$%d`, strings.Join(sets, ", "), len(args))
	res, err := s.DB.ExecContext(ctx, q, args...)
	if err != nil {
		return mapUserErr(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrUserNotFound
	}
	return nil
}

func mapUserErr(err error) error {
	var pgErr *pq.Error
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrEmailTaken
	}
	return err
}

func normalizeEmail(e string) string { return strings.ToLower(strings.TrimSpace(e)) }
