package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/aruizmd/medassist/internal/clinical"
)

func TestDispatchUnknownFunction(t *testing.T) {
	r := NewClinicalRegistry(clinical.NewInMemoryService())
	out := r.Dispatch(context.Background(), "c1", "launch_rocket", `{}`)

	var payload map[string]string
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("result is not JSON: %v", err)
	}
	if !strings.Contains(payload["error"], "unrecognized function") {
		t.Fatalf("error = %q, want unrecognized function", payload["error"])
	}
}

func TestDispatchMalformedArguments(t *testing.T) {
	r := NewClinicalRegistry(clinical.NewInMemoryService())
	out := r.Dispatch(context.Background(), "c1", "search_patients", `{not valid`)

	var payload map[string]string
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("result is not JSON: %v", err)
	}
	// Empty args reach the handler, whose own validation reports the miss.
	if !strings.Contains(payload["error"], "missing required argument") {
		t.Fatalf("error = %q, want missing-argument validation", payload["error"])
	}
}

func TestDispatchCreateAndSearchPatient(t *testing.T) {
	svc := clinical.NewInMemoryService()
	r := NewClinicalRegistry(svc)
	ctx := context.Background()

	out := r.Dispatch(ctx, "c1", "create_patient", `{"full_name": "Ana Diaz", "phone": "+54911"}`)
	if strings.Contains(out, `"error"`) {
		t.Fatalf("create_patient returned error: %s", out)
	}

	out = r.Dispatch(ctx, "c1", "search_patients", `{"query": "diaz"}`)
	var payload struct {
		Result []clinical.Patient `json:"result"`
	}
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("decode search result: %v", err)
	}
	if len(payload.Result) != 1 || payload.Result[0].FullName != "Ana Diaz" {
		t.Fatalf("search result = %+v, want Ana Diaz", payload.Result)
	}
}

func TestDispatchAppointmentFlow(t *testing.T) {
	svc := clinical.NewInMemoryService()
	r := NewClinicalRegistry(svc)
	ctx := context.Background()

	created, err := svc.CreatePatient(ctx, clinical.Patient{FullName: "Ana Diaz"})
	if err != nil {
		t.Fatalf("CreatePatient() error = %v", err)
	}

	out := r.Dispatch(ctx, "c1", "create_appointment",
		`{"patient_id": "`+created.ID+`", "scheduled_at": "2099-03-12T15:00:00Z", "reason": "checkup"}`)
	if strings.Contains(out, `"error"`) {
		t.Fatalf("create_appointment returned error: %s", out)
	}

	out = r.Dispatch(ctx, "c1", "list_appointments", ``)
	var payload struct {
		Result []clinical.Appointment `json:"result"`
	}
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("decode appointments: %v", err)
	}
	if len(payload.Result) != 1 || payload.Result[0].Status != clinical.AppointmentScheduled {
		t.Fatalf("appointments = %+v", payload.Result)
	}
}

func TestDispatchInvalidTimestamp(t *testing.T) {
	r := NewClinicalRegistry(clinical.NewInMemoryService())
	out := r.Dispatch(context.Background(), "c1", "create_appointment",
		`{"patient_id": "p1", "scheduled_at": "tomorrow at noon"}`)
	if !strings.Contains(out, `"error"`) {
		t.Fatalf("expected structured error for bad timestamp, got %s", out)
	}
}

func TestSpecsOrderedAndComplete(t *testing.T) {
	r := NewClinicalRegistry(clinical.NewInMemoryService())
	specs := r.Specs()
	if len(specs) != 8 {
		t.Fatalf("specs = %d, want 8", len(specs))
	}
	if specs[0].Name != "search_patients" {
		t.Fatalf("first spec = %q, want search_patients", specs[0].Name)
	}
	for _, s := range specs {
		if s.Parameters["type"] != "object" {
			t.Fatalf("spec %q parameters missing object schema", s.Name)
		}
	}
}
