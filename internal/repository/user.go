package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/directchat/internal/logger"
	"github.com/directchat/internal/model"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
)

const userCols = `id, email, full_name, password_hash, profile_pic, created_at`

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func scanUser(s interface{ Scan(dest ...any) error }, u *model.User) error {
	return s.Scan(&u.ID, &u.Email, &u.FullName, &u.PasswordHash, &u.ProfilePic, &u.CreatedAt)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Create inserts u; a taken id or email is skipped so seeding can rerun.
func (r *UserRepository) Create(ctx context.Context, u *model.User) error {
	defer logger.DeferLogDuration("user.Create", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (`+userCols+`)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT DO NOTHING`,
		u.ID, u.Email, u.FullName, u.PasswordHash, u.ProfilePic, u.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("userRepo.Create: %w", err)
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	defer logger.DeferLogDuration("user.GetByID", time.Now())()
	u := &model.User{}
	row := r.pool.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id)
	if err := scanUser(row, u); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("userRepo.GetByID: %w", err)
	}
	return u, nil
}

// GetPublicByIDs loads the public profiles of ids; unknown ids are absent
// from the result.
func (r *UserRepository) GetPublicByIDs(ctx context.Context, ids []string) (map[string]model.UserPublic, error) {
	defer logger.DeferLogDuration("user.GetPublicByIDs", time.Now())()
	rows, err := r.pool.Query(ctx, `SELECT `+userCols+` FROM users WHERE id = ANY($1::uuid[])`, ids)
	if err != nil {
		return nil, fmt.Errorf("userRepo.GetPublicByIDs query: %w", err)
	}
	defer rows.Close()

	out := make(map[string]model.UserPublic, len(ids))
	for rows.Next() {
		var u model.User
		if err := scanUser(rows, &u); err != nil {
			return nil, fmt.Errorf("userRepo.GetPublicByIDs scan: %w", err)
		}
		out[u.ID] = u.ToPublic()
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("userRepo.GetPublicByIDs rows: %w", err)
	}
	return out, nil
}

func (r *UserRepository) ListExcept(ctx context.Context, userID string) ([]model.UserPublic, error) {
	defer logger.DeferLogDuration("user.ListExcept", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+userCols+` FROM users WHERE id <> $1 ORDER BY created_at DESC, id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("userRepo.ListExcept query: %w", err)
	}
	defer rows.Close()

	users := make([]model.UserPublic, 0)
	for rows.Next() {
		var u model.User
		if err := scanUser(rows, &u); err != nil {
			return nil, fmt.Errorf("userRepo.ListExcept scan: %w", err)
		}
		users = append(users, u.ToPublic())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("userRepo.ListExcept rows: %w", err)
	}
	return users, nil
}
