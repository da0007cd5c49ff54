package clinical

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryService keeps clinical records in-process for local/dev use.
type InMemoryService struct {
	mu           sync.RWMutex
	patients     map[string]Patient
	appointments map[string]Appointment
	history      map[string][]HistoryEntry
}

func NewInMemoryService() *InMemoryService {
	return &InMemoryService{
		patients:     make(map[string]Patient),
		appointments: make(map[string]Appointment),
		history:      make(map[string][]HistoryEntry),
	}
}

func (s *InMemoryService) SearchPatients(_ context.Context, query string) ([]Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q := strings.ToLower(query)
	var out []Patient
	for _, p := range s.patients {
		if strings.Contains(strings.ToLower(p.FullName), q) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullName < out[j].FullName })
	return out, nil
}

func (s *InMemoryService) CreatePatient(_ context.Context, p Patient) (Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	s.patients[p.ID] = p
	return p, nil
}

func (s *InMemoryService) UpdatePatient(_ context.Context, p Patient) (Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.patients[p.ID]
	if !ok {
		return Patient{}, ErrNotFound
	}
	p.CreatedAt = existing.CreatedAt
	s.patients[p.ID] = p
	return p, nil
}

func (s *InMemoryService) ListAppointments(_ context.Context, clinicianID string, from time.Time) ([]Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Appointment
	for _, a := range s.appointments {
		if a.ClinicianID == clinicianID && !a.ScheduledAt.Before(from) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out, nil
}

func (s *InMemoryService) CreateAppointment(_ context.Context, a Appointment) (Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = AppointmentScheduled
	}
	s.appointments[a.ID] = a
	return a, nil
}

func (s *InMemoryService) CancelAppointment(_ context.Context, appointmentID string) (Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appointments[appointmentID]
	if !ok {
		return Appointment{}, ErrNotFound
	}
	a.Status = AppointmentCancelled
	s.appointments[appointmentID] = a
	return a, nil
}

func (s *InMemoryService) ListHistory(_ context.Context, patientID string) ([]HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.history[patientID]
	out := make([]HistoryEntry, len(src))
	copy(out, src)
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryService) AddHistoryEntry(_ context.Context, e HistoryEntry) (HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	s.history[e.PatientID] = append(s.history[e.PatientID], e)
	return e, nil
}

func (s *InMemoryService) Close() error { return nil }
