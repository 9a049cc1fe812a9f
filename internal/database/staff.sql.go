package database

import (
	"context"

	"github.com/google/uuid"
)

const staffColumns = `id, tenant_id, email, hashed_password, full_name, role, is_active, created_at`

func scanStaff(row interface{ Scan(...interface{}) error }) (Staff, error) {
	var i Staff
	err := row.Scan(
		&i.ID,
		&i.TenantID,
		&i.Email,
		&i.HashedPassword,
		&i.FullName,
		&i.Role,
		&i.IsActive,
		&i.CreatedAt,
	)
	return i, err
}

const getStaffByEmail = `-- name: GetStaffByEmail :one
SELECT ` + staffColumns + ` FROM staff WHERE email = $1 AND is_active = true`

func (q *Queries) GetStaffByEmail(ctx context.Context, email string) (Staff, error) {
	return scanStaff(q.db.QueryRow(ctx, getStaffByEmail, email))
}

const getStaff = `-- name: GetStaff :one
SELECT ` + staffColumns + ` FROM staff WHERE id = $1 AND is_active = true`

func (q *Queries) GetStaff(ctx context.Context, id uuid.UUID) (Staff, error) {
	return scanStaff(q.db.QueryRow(ctx, getStaff, id))
}

const createStaff = `-- name: CreateStaff :one
INSERT INTO staff (tenant_id, email, hashed_password, full_name, role)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (email) DO UPDATE SET hashed_password = EXCLUDED.hashed_password
RETURNING ` + staffColumns

type CreateStaffParams struct {
	TenantID       uuid.UUID
	Email          string
	HashedPassword string
	FullName       string
	Role           string
}

func (q *Queries) CreateStaff(ctx context.Context, arg CreateStaffParams) (Staff, error) {
	row := q.db.QueryRow(ctx, createStaff,
		arg.TenantID,
		arg.Email,
		arg.HashedPassword,
		arg.FullName,
		arg.Role,
	)
	return scanStaff(row)
}
