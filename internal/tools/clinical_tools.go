package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/aruizmd/medassist/internal/clinical"
)

// NewClinicalRegistry builds the fixed tool catalogue over the clinical
// record services.
func NewClinicalRegistry(svc clinical.Service) *Registry {
	r := NewRegistry()

	r.Register(&Tool{
		Name:        "search_patients",
		Description: "Search the clinician's patients by name. Use before creating a patient to avoid duplicates.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Full or partial patient name",
				},
			},
			"required": []string{"query"},
		},
		Handler: func(ctx context.Context, _ string, args map[string]any) (any, error) {
			query, err := requireArg(args, "query")
			if err != nil {
				return nil, err
			}
			return svc.SearchPatients(ctx, query)
		},
	})

	r.Register(&Tool{
		Name:        "create_patient",
		Description: "Register a new patient record.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"full_name": map[string]any{"type": "string", "description": "Patient full name"},
				"phone":     map[string]any{"type": "string", "description": "Contact phone, optional"},
				"notes":     map[string]any{"type": "string", "description": "Free-text notes, optional"},
			},
			"required": []string{"full_name"},
		},
		Handler: func(ctx context.Context, _ string, args map[string]any) (any, error) {
			name, err := requireArg(args, "full_name")
			if err != nil {
				return nil, err
			}
			return svc.CreatePatient(ctx, clinical.Patient{
				FullName: name,
				Phone:    stringArg(args, "phone"),
				Notes:    stringArg(args, "notes"),
			})
		},
	})

	r.Register(&Tool{
		Name:        "update_patient",
		Description: "Update an existing patient record by id.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"patient_id": map[string]any{"type": "string", "description": "Patient id"},
				"full_name":  map[string]any{"type": "string", "description": "New full name"},
				"phone":      map[string]any{"type": "string", "description": "New contact phone"},
				"notes":      map[string]any{"type": "string", "description": "New notes"},
			},
			"required": []string{"patient_id", "full_name"},
		},
		Handler: func(ctx context.Context, _ string, args map[string]any) (any, error) {
			id, err := requireArg(args, "patient_id")
			if err != nil {
				return nil, err
			}
			name, err := requireArg(args, "full_name")
			if err != nil {
				return nil, err
			}
			return svc.UpdatePatient(ctx, clinical.Patient{
				ID:       id,
				FullName: name,
				Phone:    stringArg(args, "phone"),
				Notes:    stringArg(args, "notes"),
			})
		},
	})

	r.Register(&Tool{
		Name:        "list_appointments",
		Description: "List the clinician's upcoming appointments.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		Handler: func(ctx context.Context, clinicianID string, _ map[string]any) (any, error) {
			return svc.ListAppointments(ctx, clinicianID, time.Now().UTC())
		},
	})

	r.Register(&Tool{
		Name:        "create_appointment",
		Description: "Schedule an appointment for a patient. Time must be RFC 3339, e.g. 2026-03-12T15:00:00Z.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"patient_id":   map[string]any{"type": "string", "description": "Patient id"},
				"scheduled_at": map[string]any{"type": "string", "description": "RFC 3339 timestamp"},
				"reason":       map[string]any{"type": "string", "description": "Visit reason, optional"},
			},
			"required": []string{"patient_id", "scheduled_at"},
		},
		Handler: func(ctx context.Context, clinicianID string, args map[string]any) (any, error) {
			patientID, err := requireArg(args, "patient_id")
			if err != nil {
				return nil, err
			}
			rawTime, err := requireArg(args, "scheduled_at")
			if err != nil {
				return nil, err
			}
			at, err := time.Parse(time.RFC3339, rawTime)
			if err != nil {
				return nil, fmt.Errorf("invalid scheduled_at %q: %w", rawTime, err)
			}
			return svc.CreateAppointment(ctx, clinical.Appointment{
				PatientID:   patientID,
				ClinicianID: clinicianID,
				ScheduledAt: at,
				Reason:      stringArg(args, "reason"),
			})
		},
	})

	r.Register(&Tool{
		Name:        "cancel_appointment",
		Description: "Cancel an appointment by id.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"appointment_id": map[string]any{"type": "string", "description": "Appointment id"},
			},
			"required": []string{"appointment_id"},
		},
		Handler: func(ctx context.Context, _ string, args map[string]any) (any, error) {
			id, err := requireArg(args, "appointment_id")
			if err != nil {
				return nil, err
			}
			return svc.CancelAppointment(ctx, id)
		},
	})

	r.Register(&Tool{
		Name:        "list_history",
		Description: "List a patient's clinical history entries, most recent first.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"patient_id": map[string]any{"type": "string", "description": "Patient id"},
			},
			"required": []string{"patient_id"},
		},
		Handler: func(ctx context.Context, _ string, args map[string]any) (any, error) {
			id, err := requireArg(args, "patient_id")
			if err != nil {
				return nil, err
			}
			return svc.ListHistory(ctx, id)
		},
	})

	r.Register(&Tool{
		Name:        "add_history_entry",
		Description: "Append a note to a patient's clinical history.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"patient_id": map[string]any{"type": "string", "description": "Patient id"},
				"note":       map[string]any{"type": "string", "description": "Clinical note text"},
			},
			"required": []string{"patient_id", "note"},
		},
		Handler: func(ctx context.Context, clinicianID string, args map[string]any) (any, error) {
			patientID, err := requireArg(args, "patient_id")
			if err != nil {
				return nil, err
			}
			note, err := requireArg(args, "note")
			if err != nil {
				return nil, err
			}
			return svc.AddHistoryEntry(ctx, clinical.HistoryEntry{
				PatientID:   patientID,
				ClinicianID: clinicianID,
				Note:        note,
			})
		},
	})

	return r
}
