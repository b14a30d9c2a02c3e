package db

import (
	"context"
	"database/sql"
)

const profilesMigration = `
CREATE EXTENSION IF NOT EXISTS "pgcrypto";

CREATE TABLE IF NOT EXISTS user_profiles (
    id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
    user_id text NOT NULL,
    role text NOT NULL DEFAULT 'user',
    created_at timestamptz NOT NULL DEFAULT NOW(),
    updated_at timestamptz NOT NULL DEFAULT NOW(),
    CONSTRAINT user_profiles_user_id_unique UNIQUE (user_id)
);

CREATE INDEX IF NOT EXISTS user_profiles_role_idx
ON user_profiles (role);
`

func RunProfilesMigration(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, profilesMigration)
	return err
}
