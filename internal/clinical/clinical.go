// Package clinical is the data-access layer behind the assistant's tools:
// plain CRUD over patients, appointments, and clinical history entries.
// Business rules (scheduling conflicts, chart validation) live with the
// clinic systems, not here.
package clinical

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("clinical record not found")

// Appointment statuses.
const (
	AppointmentScheduled = "scheduled"
	AppointmentCancelled = "cancelled"
)

type Patient struct {
	ID        string    `json:"id"`
	FullName  string    `json:"full_name"`
	Phone     string    `json:"phone,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Appointment struct {
	ID          string    `json:"id"`
	PatientID   string    `json:"patient_id"`
	ClinicianID string    `json:"clinician_id"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Reason      string    `json:"reason,omitempty"`
	Status      string    `json:"status"`
}

type HistoryEntry struct {
	ID          string    `json:"id"`
	PatientID   string    `json:"patient_id"`
	ClinicianID string    `json:"clinician_id"`
	Note        string    `json:"note"`
	CreatedAt   time.Time `json:"created_at"`
}

// Service is the clinical record surface invoked by the tool dispatcher.
// Every method is one independent operation with its own error handling.
type Service interface {
	SearchPatients(ctx context.Context, query string) ([]Patient, error)
	CreatePatient(ctx context.Context, p Patient) (Patient, error)
	UpdatePatient(ctx context.Context, p Patient) (Patient, error)

	ListAppointments(ctx context.Context, clinicianID string, from time.Time) ([]Appointment, error)
	CreateAppointment(ctx context.Context, a Appointment) (Appointment, error)
	CancelAppointment(ctx context.Context, appointmentID string) (Appointment, error)

	ListHistory(ctx context.Context, patientID string) ([]HistoryEntry, error)
	AddHistoryEntry(ctx context.Context, e HistoryEntry) (HistoryEntry, error)

	Close() error
}
