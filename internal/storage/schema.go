package storage

import (
	"context"
	"fmt"
)

const schemaSQL = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS persons (
	id         UUID PRIMARY KEY,
	name       VARCHAR(100) NOT NULL,
	number     VARCHAR(15)  NOT NULL,
	photo_key  TEXT         NOT NULL,
	embedding  vector,
	created_at TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ  NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS persons_created_at_idx ON persons (created_at, id);

CREATE TABLE IF NOT EXISTS accounts (
	id            UUID PRIMARY KEY,
	username      VARCHAR(150) NOT NULL UNIQUE,
	password_hash TEXT         NOT NULL,
	name          VARCHAR(100) NOT NULL DEFAULT '',
	email         VARCHAR(100) NOT NULL DEFAULT '',
	phone_number  VARCHAR(15)  NOT NULL DEFAULT '',
	photo_key     TEXT         NOT NULL DEFAULT '',
	role          VARCHAR(10)  NOT NULL DEFAULT 'cashier' CHECK (role IN ('manager', 'cashier')),
	created_at    TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
	updated_at    TIMESTAMPTZ  NOT NULL DEFAULT NOW()
);
`

// EnsureSchema creates the extension and tables if they don't exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
