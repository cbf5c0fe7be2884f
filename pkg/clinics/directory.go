package clinics

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// PostgresDirectory reads memberships from PostgreSQL
type PostgresDirectory struct {
	db *sql.DB
}

// NewPostgresDirectory creates a new PostgreSQL-backed directory
func NewPostgresDirectory(db *sql.DB) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

// ValidateClinicAccess checks that subject is an active member of an active clinic
func (d *PostgresDirectory) ValidateClinicAccess(ctx context.Context, subject, clinicID string) (*AccessResult, error) {
	query := `
		SELECT c.id, c.name, c.is_active, m.is_active, m.location_ids
		FROM clinic_members m
		JOIN clinics c ON c.id = m.clinic_id
		WHERE m.user_id = $1 AND m.clinic_id = $2
	`
	var (
		id, name                   string
		clinicActive, memberActive bool
		locationIDs                []string
	)
	err := d.db.QueryRowContext(ctx, query, subject, clinicID).Scan(
		&id, &name, &clinicActive, &memberActive, pq.Array(&locationIDs),
	)
	if errors.Is(err, sql.ErrNoRows) {
		return &AccessResult{Success: false, Error: ErrNotMember.Error()}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to validate clinic access: %w", err)
	}

	if !clinicActive {
		return &AccessResult{Success: false, Error: "clinic is inactive"}, nil
	}
	if !memberActive {
		return &AccessResult{Success: false, Error: "clinic membership is inactive"}, nil
	}

	return &AccessResult{
		Success: true,
		Clinic: &ClinicContext{
			ClinicID:   id,
			ClinicName: name,
			IsValid:    true,
		},
		LocationIDs: locationIDs,
	}, nil
}

// LookupClinic loads an active clinic by id
func (d *PostgresDirectory) LookupClinic(ctx context.Context, clinicID string) (*ClinicContext, error) {
	query := `
		SELECT id, name
		FROM clinics
		WHERE id = $1 AND is_active = TRUE
	`
	clinic := &ClinicContext{}
	err := d.db.QueryRowContext(ctx, query, clinicID).Scan(&clinic.ClinicID, &clinic.ClinicName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("clinic %s: %w", clinicID, ErrClinicNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get clinic: %w", err)
	}

	clinic.IsValid = true
	return clinic, nil
}

// Ping checks database connectivity
func (d *PostgresDirectory) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}
