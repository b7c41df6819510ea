package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const pgErrUniqueViolation = "23505"

// Store persists users and roles.
type Store interface {
	UserByEmail(ctx context.Context, email string) (User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	SaveUser(ctx context.Context, u *User) error
	DeleteAllUsers(ctx context.Context) error
	ListUsers(ctx context.Context, q ListQuery) ([]User, int64, error)
	RoleByName(ctx context.Context, name string) (Role, error)
	CreateRole(ctx context.Context, name string) (Role, error)
	Ping(ctx context.Context) error
}

// PGStore implements Store on PostgreSQL through database/sql and pgx.
type PGStore struct {
	db *sql.DB
}

var _ Store = (*PGStore)(nil)

// Open connects with the pgx stdlib driver and tuned pool defaults.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return db, nil
}

// NewPGStore wraps db. The caller owns db.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PGStore) UserByEmail(ctx context.Context, email string) (User, error) {
	var u User
	err := s.db.QueryRowContext(ctx, `
		select id, name, last_name, email, password, created_at, updated_at
		from users
		where email = $1
	`, email).Scan(&u.ID, &u.Name, &u.LastName, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, err
	}
	roles, err := s.rolesFor(ctx, []string{u.ID})
	if err != nil {
		return User{}, err
	}
	u.Roles = roles[u.ID]
	return u, nil
}

func (s *PGStore) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `select exists(select 1 from users where email = $1)`, email).Scan(&exists)
	return exists, err
}

// SaveUser inserts u when it has no ID and updates it otherwise. The stored
// role set is replaced by u.Roles in the same transaction.
func (s *PGStore) SaveUser(ctx context.Context, u *User) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if u.ID == "" {
		id := uuid.NewString()
		err = tx.QueryRowContext(ctx, `
			insert into users (id, name, last_name, email, password, created_at, updated_at)
			values ($1, $2, $3, $4, $5, now(), now())
			returning created_at, updated_at
		`, id, u.Name, u.LastName, u.Email, u.PasswordHash).Scan(&u.CreatedAt, &u.UpdatedAt)
		if err == nil {
			u.ID = id
		}
	} else {
		err = tx.QueryRowContext(ctx, `
			update users
			set name = $2, last_name = $3, email = $4, password = $5, updated_at = now()
			where id = $1
			returning created_at, updated_at
		`, u.ID, u.Name, u.LastName, u.Email, u.PasswordHash).Scan(&u.CreatedAt, &u.UpdatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUserNotFound
		}
	}
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return fmt.Errorf("%w: %s", ErrEmailTaken, u.Email)
		}
		return err
	}

	if _, err := tx.ExecContext(ctx, `delete from user_roles where user_id = $1`, u.ID); err != nil {
		return err
	}
	for _, role := range u.Roles {
		if _, err := tx.ExecContext(ctx, `insert into user_roles (user_id, role_id) values ($1, $2)`, u.ID, role.ID); err != nil {
			return fmt.Errorf("assign role %s: %w", role.Name, err)
		}
	}
	return tx.Commit()
}

// DeleteAllUsers removes every user; user_roles rows cascade.
func (s *PGStore) DeleteAllUsers(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `delete from users`)
	return err
}

func (s *PGStore) ListUsers(ctx context.Context, q ListQuery) ([]User, int64, error) {
	q = q.normalized()
	where, args := listFilter(q)

	var total int64
	if err := s.db.QueryRowContext(ctx, `select count(*) from users u`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return nil, 0, nil
	}

	idx := len(args) + 1
	query := fmt.Sprintf(`
		select u.id, u.name, u.last_name, u.email, u.password, u.created_at, u.updated_at
		from users u%s
		order by u.created_at desc
		limit $%d offset $%d`, where, idx, idx+1)
	rows, err := s.db.QueryContext(ctx, query, append(args, q.Size, q.Page*q.Size)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var (
		result []User
		ids    []string
	)
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Name, &u.LastName, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, 0, err
		}
		result = append(result, u)
		ids = append(ids, u.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	roles, err := s.rolesFor(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range result {
		result[i].Roles = roles[result[i].ID]
	}
	return result, total, nil
}

// listFilter builds the shared where clause for count and page queries.
func listFilter(q ListQuery) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if q.Query != "" {
		args = append(args, "%"+q.Query+"%")
		clauses = append(clauses, fmt.Sprintf("(u.name ilike $%d or u.email ilike $%d)", len(args), len(args)))
	}
	if len(q.RoleIDs) > 0 {
		placeholders := make([]string, 0, len(q.RoleIDs))
		for _, id := range q.RoleIDs {
			args = append(args, id)
			placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
		}
		in := strings.Join(placeholders, ", ")
		if q.Operator == OperatorOr {
			clauses = append(clauses, fmt.Sprintf(
				"exists (select 1 from user_roles ur where ur.user_id = u.id and ur.role_id in (%s))", in))
		} else {
			clauses = append(clauses, fmt.Sprintf(
				"(select count(distinct ur.role_id) from user_roles ur where ur.user_id = u.id and ur.role_id in (%s)) = %d",
				in, len(q.RoleIDs)))
		}
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " where " + strings.Join(clauses, " and "), args
}

func (s *PGStore) rolesFor(ctx context.Context, userIDs []string) (map[string][]Role, error) {
	out := make(map[string][]Role, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	placeholders := make([]string, len(userIDs))
	args := make([]any, len(userIDs))
	for i, id := range userIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx, `
		select ur.user_id, r.id, r.name
		from user_roles ur
		join roles r on r.id = ur.role_id
		where ur.user_id in (`+strings.Join(placeholders, ", ")+`)
		order by r.name`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			userID string
			role   Role
		)
		if err := rows.Scan(&userID, &role.ID, &role.Name); err != nil {
			return nil, err
		}
		out[userID] = append(out[userID], role)
	}
	return out, rows.Err()
}

func (s *PGStore) RoleByName(ctx context.Context, name string) (Role, error) {
	var r Role
	err := s.db.QueryRowContext(ctx, `select id, name from roles where name = $1`, name).Scan(&r.ID, &r.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return Role{}, ErrRoleNotFound
	}
	return r, err
}

// CreateRole is idempotent: an existing role with the same name is returned.
func (s *PGStore) CreateRole(ctx context.Context, name string) (Role, error) {
	var r Role
	err := s.db.QueryRowContext(ctx, `
		insert into roles (id, name) values ($1, $2)
		on conflict (name) do update set name = excluded.name
		returning id, name
	`, uuid.NewString(), name).Scan(&r.ID, &r.Name)
	return r, err
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}
