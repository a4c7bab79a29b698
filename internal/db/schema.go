package db

import (
	"context"
	"fmt"

	"tuition/internal/types"
)

// schemaStatements creates the tables the engine reads and writes. Entity
// CRUD owns students and subjects; the engine only reads them.
//
// payments.due_date is nullable so a corrupt row surfaces as a malformed
// record for that one student instead of failing the whole population load.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS students (
		id                BIGSERIAL PRIMARY KEY,
		registration_date DATE,
		center_id         BIGINT,
		level_id          BIGINT,
		created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS subjects (
		id            BIGSERIAL PRIMARY KEY,
		name          TEXT NOT NULL,
		monthly_price NUMERIC(12,2) NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS student_subjects (
		student_id BIGINT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
		subject_id BIGINT NOT NULL REFERENCES subjects(id) ON DELETE CASCADE,
		PRIMARY KEY (student_id, subject_id)
	)`,

	`CREATE TABLE IF NOT EXISTS payments (
		id           UUID PRIMARY KEY,
		student_id   BIGINT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
		period_label TEXT NOT NULL,
		total_amount NUMERIC(12,2) NOT NULL,
		amount_paid  NUMERIC(12,2) NOT NULL DEFAULT 0,
		amount_due   NUMERIC(12,2) NOT NULL,
		discount     NUMERIC(12,2) NOT NULL DEFAULT 0,
		due_date     DATE,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT payments_student_period_key UNIQUE (student_id, period_label)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_payments_student_created
		ON payments (student_id, created_at DESC)`,

	`CREATE TABLE IF NOT EXISTS job_locks (
		id         TEXT PRIMARY KEY,
		worker_id  TEXT NOT NULL,
		locked_at  TIMESTAMPTZ NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS job_history (
		id          BIGSERIAL PRIMARY KEY,
		job_type    TEXT NOT NULL,
		started_at  TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ,
		status      TEXT NOT NULL,
		items_count INT,
		error       TEXT
	)`,
}

// EnsureSchema creates any missing tables and indexes. Every statement is
// idempotent, so it is safe to run on each start.
func EnsureSchema(ctx context.Context, db DBTX) error {
	for i, stmt := range schemaStatements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return types.NewAppError(types.ErrCodeInternalDB,
				fmt.Sprintf("failed to apply schema statement %d", i+1), err)
		}
	}
	return nil
}
