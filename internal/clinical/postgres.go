package clinical

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NewService returns a postgres-backed service when a pool is supplied,
// otherwise an in-memory one.
func NewService(ctx context.Context, pool *pgxpool.Pool) (Service, error) {
	if pool == nil {
		return NewInMemoryService(), nil
	}
	return NewPostgresService(ctx, pool)
}

// PostgresService persists clinical records in PostgreSQL.
type PostgresService struct {
	pool *pgxpool.Pool
}

func NewPostgresService(ctx context.Context, pool *pgxpool.Pool) (*PostgresService, error) {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS patients (
			id TEXT PRIMARY KEY,
			full_name TEXT NOT NULL,
			phone TEXT NOT NULL DEFAULT '',
			notes TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_patients_full_name ON patients (lower(full_name));`,
		`CREATE TABLE IF NOT EXISTS appointments (
			id TEXT PRIMARY KEY,
			patient_id TEXT NOT NULL REFERENCES patients(id),
			clinician_id TEXT NOT NULL,
			scheduled_at TIMESTAMPTZ NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_appointments_clinician_time ON appointments (clinician_id, scheduled_at);`,
		`CREATE TABLE IF NOT EXISTS history_entries (
			id TEXT PRIMARY KEY,
			patient_id TEXT NOT NULL REFERENCES patients(id),
			clinician_id TEXT NOT NULL,
			note TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_history_patient_created ON history_entries (patient_id, created_at);`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return nil, fmt.Errorf("init clinical schema failed on %q: %w", stmt, err)
		}
	}
	return &PostgresService{pool: pool}, nil
}

func (s *PostgresService) SearchPatients(ctx context.Context, query string) ([]Patient, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, full_name, phone, notes, created_at
		 FROM patients WHERE lower(full_name) LIKE lower($1) ORDER BY full_name LIMIT 20`,
		"%"+query+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("search patients: %w", err)
	}
	defer rows.Close()

	var out []Patient
	for rows.Next() {
		var p Patient
		if err := rows.Scan(&p.ID, &p.FullName, &p.Phone, &p.Notes, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan patient row: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresService) CreatePatient(ctx context.Context, p Patient) (Patient, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO patients (id, full_name, phone, notes, created_at) VALUES ($1, $2, $3, $4, $5)`,
		p.ID, p.FullName, p.Phone, p.Notes, p.CreatedAt,
	)
	if err != nil {
		return Patient{}, fmt.Errorf("create patient: %w", err)
	}
	return p, nil
}

func (s *PostgresService) UpdatePatient(ctx context.Context, p Patient) (Patient, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE patients SET full_name = $2, phone = $3, notes = $4 WHERE id = $1`,
		p.ID, p.FullName, p.Phone, p.Notes,
	)
	if err != nil {
		return Patient{}, fmt.Errorf("update patient: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return Patient{}, ErrNotFound
	}
	return p, nil
}

func (s *PostgresService) ListAppointments(ctx context.Context, clinicianID string, from time.Time) ([]Appointment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, patient_id, clinician_id, scheduled_at, reason, status
		 FROM appointments WHERE clinician_id = $1 AND scheduled_at >= $2
		 ORDER BY scheduled_at LIMIT 50`,
		clinicianID, from,
	)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()

	var out []Appointment
	for rows.Next() {
		var a Appointment
		if err := rows.Scan(&a.ID, &a.PatientID, &a.ClinicianID, &a.ScheduledAt, &a.Reason, &a.Status); err != nil {
			return nil, fmt.Errorf("scan appointment row: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *PostgresService) CreateAppointment(ctx context.Context, a Appointment) (Appointment, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = AppointmentScheduled
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO appointments (id, patient_id, clinician_id, scheduled_at, reason, status)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.PatientID, a.ClinicianID, a.ScheduledAt, a.Reason, a.Status,
	)
	if err != nil {
		return Appointment{}, fmt.Errorf("create appointment: %w", err)
	}
	return a, nil
}

func (s *PostgresService) CancelAppointment(ctx context.Context, appointmentID string) (Appointment, error) {
	var a Appointment
	err := s.pool.QueryRow(ctx,
		`UPDATE appointments SET status = $2 WHERE id = $1
		 RETURNING id, patient_id, clinician_id, scheduled_at, reason, status`,
		appointmentID, AppointmentCancelled,
	).Scan(&a.ID, &a.PatientID, &a.ClinicianID, &a.ScheduledAt, &a.Reason, &a.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return Appointment{}, ErrNotFound
	}
	if err != nil {
		return Appointment{}, fmt.Errorf("cancel appointment: %w", err)
	}
	return a, nil
}

func (s *PostgresService) ListHistory(ctx context.Context, patientID string) ([]HistoryEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, patient_id, clinician_id, note, created_at
		 FROM history_entries WHERE patient_id = $1 ORDER BY created_at DESC LIMIT 50`,
		patientID,
	)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(&e.ID, &e.PatientID, &e.ClinicianID, &e.Note, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresService) AddHistoryEntry(ctx context.Context, e HistoryEntry) (HistoryEntry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO history_entries (id, patient_id, clinician_id, note, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		e.ID, e.PatientID, e.ClinicianID, e.Note, e.CreatedAt,
	)
	if err != nil {
		return HistoryEntry{}, fmt.Errorf("add history entry: %w", err)
	}
	return e, nil
}

func (s *PostgresService) Close() error { return nil }
