package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/your-org/facerecog/internal/config"
	"github.com/your-org/facerecog/internal/models"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("already exists")
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, cfg config.DatabaseConfig) (*PostgresStore, error) {
	return Open(ctx, cfg.DSN(), cfg.MaxConns)
}

// Open connects to dsn and pings the server.
func Open(ctx context.Context, dsn string, maxConns int) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Persons ---

const personColumns = `id, name, number, photo_key, embedding, created_at, updated_at`

func scanPerson(row pgx.Row) (*models.Person, error) {
	var (
		p   models.Person
		vec *pgvector.Vector
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Number, &p.PhotoKey, &vec, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if vec != nil {
		p.Embedding = vec.Slice()
	}
	return &p, nil
}

func embeddingParam(embedding []float32) *pgvector.Vector {
	if len(embedding) == 0 {
		return nil
	}
	v := pgvector.NewVector(embedding)
	return &v
}

// CreatePerson inserts p, assigning ID and timestamps.
func (s *PostgresStore) CreatePerson(ctx context.Context, p *models.Person) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO persons (id, name, number, photo_key, embedding) VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at, updated_at`,
		p.ID, p.Name, p.Number, p.PhotoKey, embeddingParam(p.Embedding),
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create person: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPerson(ctx context.Context, id uuid.UUID) (*models.Person, error) {
	p, err := scanPerson(s.pool.QueryRow(ctx,
		`SELECT `+personColumns+` FROM persons WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get person: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) ListPersons(ctx context.Context) ([]models.Person, error) {
	return s.queryPersons(ctx, `SELECT `+personColumns+` FROM persons ORDER BY created_at, id`)
}

// ListPersonsWithEmbedding returns enrolled persons that have an embedding,
// in enrollment order. Recognition matches against this order.
func (s *PostgresStore) ListPersonsWithEmbedding(ctx context.Context) ([]models.Person, error) {
	return s.queryPersons(ctx,
		`SELECT `+personColumns+` FROM persons WHERE embedding IS NOT NULL ORDER BY created_at, id`)
}

// ListPersonsWithoutEmbedding returns persons whose photo never yielded an embedding.
func (s *PostgresStore) ListPersonsWithoutEmbedding(ctx context.Context) ([]models.Person, error) {
	return s.queryPersons(ctx,
		`SELECT `+personColumns+` FROM persons WHERE embedding IS NULL ORDER BY created_at, id`)
}

func (s *PostgresStore) queryPersons(ctx context.Context, query string) ([]models.Person, error) {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list persons: %w", err)
	}
	defer rows.Close()

	var persons []models.Person
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, fmt.Errorf("scan person: %w", err)
		}
		persons = append(persons, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list persons: %w", err)
	}
	return persons, nil
}

// UpdatePerson rewrites the editable fields. The embedding is left as is.
func (s *PostgresStore) UpdatePerson(ctx context.Context, p *models.Person) error {
	err := s.pool.QueryRow(ctx,
		`UPDATE persons SET name = $1, number = $2, photo_key = $3, updated_at = NOW()
		 WHERE id = $4 RETURNING updated_at`,
		p.Name, p.Number, p.PhotoKey, p.ID,
	).Scan(&p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("update person: %w", err)
	}
	return nil
}

// SetPersonEmbedding stores an embedding recomputed from the person's photo.
func (s *PostgresStore) SetPersonEmbedding(ctx context.Context, id uuid.UUID, embedding []float32) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE persons SET embedding = $1, updated_at = NOW() WHERE id = $2`,
		embeddingParam(embedding), id)
	if err != nil {
		return fmt.Errorf("set person embedding: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeletePerson(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM persons WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete person: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Accounts ---

const accountColumns = `id, username, password_hash, name, email, phone_number, photo_key, role, created_at, updated_at`

func scanAccount(row pgx.Row) (*models.Account, error) {
	var a models.Account
	err := row.Scan(&a.ID, &a.Username, &a.PasswordHash, &a.Name, &a.Email,
		&a.PhoneNumber, &a.PhotoKey, &a.Role, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *PostgresStore) CreateAccount(ctx context.Context, a *models.Account) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO accounts (id, username, password_hash, name, email, phone_number, photo_key, role)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING created_at, updated_at`,
		a.ID, a.Username, a.PasswordHash, a.Name, a.Email, a.PhoneNumber, a.PhotoKey, a.Role,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("create account %q: %w", a.Username, ErrDuplicate)
		}
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	a, err := scanAccount(s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) GetAccountByUsername(ctx context.Context, username string) (*models.Account, error) {
	a, err := scanAccount(s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE username = $1`, username))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get account by username: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) ListAccountsByRole(ctx context.Context, role models.Role) ([]models.Account, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE role = $1 ORDER BY username`, role)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

// UpdateAccount rewrites profile fields and role. The password is not touched.
func (s *PostgresStore) UpdateAccount(ctx context.Context, a *models.Account) error {
	a.UpdatedAt = time.Now()
	tag, err := s.pool.Exec(ctx,
		`UPDATE accounts SET username = $1, name = $2, email = $3, phone_number = $4, photo_key = $5,
		 role = $6, updated_at = $7 WHERE id = $8`,
		a.Username, a.Name, a.Email, a.PhoneNumber, a.PhotoKey, a.Role, a.UpdatedAt, a.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("update account %q: %w", a.Username, ErrDuplicate)
		}
		return fmt.Errorf("update account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
