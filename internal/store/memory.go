package store

import (
	"sort"
	"sync"
	"time"

	"github.com/labflowhq/labflow/internal/models"
)

// InMemoryStore is a map-backed Store used by tests and local development.
type InMemoryStore struct {
	mu           sync.RWMutex
	users        map[string]models.User    // phone -> user
	patients     map[string]models.Patient // userID -> patient
	intents      []models.Intent
	bookings     map[string]models.BookingCache
	uploads      map[string]models.UploadCache
	retrievals   map[string]models.RetrievalCache
	appointments []models.Appointment
	reports      []models.Report
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		users:      make(map[string]models.User),
		patients:   make(map[string]models.Patient),
		bookings:   make(map[string]models.BookingCache),
		uploads:    make(map[string]models.UploadCache),
		retrievals: make(map[string]models.RetrievalCache),
	}
}

func (s *InMemoryStore) GetUserByPhone(phone string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.users[phone]; ok {
		return &u, nil
	}
	return nil, nil
}

func (s *InMemoryStore) GetUserByID(id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.ID == id {
			return &u, nil
		}
	}
	return nil, nil
}

func (s *InMemoryStore) CreateUser(u models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.Phone] = u
	return nil
}

func (s *InMemoryStore) PatientHasAddress(userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.patients[userID]
	return ok && p.Address != "", nil
}

func (s *InMemoryStore) SavePatient(p models.Patient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patients[p.UserID] = p
	return nil
}

func (s *InMemoryStore) GetLatestIncompleteIntent(phone string) (*models.Intent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var open []models.Intent
	for _, it := range s.intents {
		if it.Phone == phone && !it.Completed {
			open = append(open, it)
		}
	}
	if len(open) == 0 {
		return nil, nil
	}
	sort.Slice(open, func(i, j int) bool { return open[i].UpdatedAt.After(open[j].UpdatedAt) })
	latest := open[0]
	return &latest, nil
}

func (s *InMemoryStore) CreateIntent(intent models.Intent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if intent.UpdatedAt.IsZero() {
		intent.UpdatedAt = time.Now()
	}
	s.intents = append(s.intents, intent)
	return nil
}

func (s *InMemoryStore) CompleteIntent(phone string, kind models.IntentKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.intents {
		if s.intents[i].Phone == phone && s.intents[i].Kind == kind && !s.intents[i].Completed {
			s.intents[i].Completed = true
			s.intents[i].UpdatedAt = time.Now()
		}
	}
	return nil
}

func (s *InMemoryStore) GetBookingCache(userID string) (*models.BookingCache, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.bookings[userID]; ok {
		return &c, nil
	}
	return nil, nil
}

func (s *InMemoryStore) SaveBookingCache(c models.BookingCache) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookings[c.UserID] = c
	return nil
}

func (s *InMemoryStore) DeleteBookingCache(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.bookings, userID)
	return nil
}

func (s *InMemoryStore) GetUploadCache(userID string) (*models.UploadCache, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.uploads[userID]; ok {
		return &c, nil
	}
	return nil, nil
}

func (s *InMemoryStore) SaveUploadCache(c models.UploadCache) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploads[c.UserID] = c
	return nil
}

func (s *InMemoryStore) DeleteUploadCache(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.uploads, userID)
	return nil
}

func (s *InMemoryStore) GetRetrievalCache(userID string) (*models.RetrievalCache, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.retrievals[userID]; ok {
		return &c, nil
	}
	return nil, nil
}

func (s *InMemoryStore) SaveRetrievalCache(c models.RetrievalCache) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retrievals[c.UserID] = c
	return nil
}

func (s *InMemoryStore) DeleteRetrievalCache(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.retrievals, userID)
	return nil
}

func (s *InMemoryStore) CreateAppointment(a models.Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appointments = append(s.appointments, a)
	return nil
}

func (s *InMemoryStore) ListAppointmentsByPatient(patientID string) ([]models.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []models.Appointment
	for _, a := range s.appointments {
		if a.PatientID == patientID {
			result = append(result, a)
		}
	}
	return result, nil
}

func (s *InMemoryStore) ListAppointmentsBetween(from, to time.Time) ([]models.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []models.Appointment
	for _, a := range s.appointments {
		if !a.ScheduledAt.Before(from) && a.ScheduledAt.Before(to) {
			result = append(result, a)
		}
	}
	return result, nil
}

func (s *InMemoryStore) CreateReport(r models.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.UploadedAt.IsZero() {
		r.UploadedAt = time.Now()
	}
	s.reports = append(s.reports, r)
	return nil
}

func (s *InMemoryStore) ListReportsByUser(userID string) ([]models.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []models.Report
	for _, r := range s.reports {
		if r.UserID == userID {
			result = append(result, r)
		}
	}
	return result, nil
}

func (s *InMemoryStore) LatestReportBefore(userID string, reportType models.TestType, before time.Time) (*models.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *models.Report
	for i := range s.reports {
		r := s.reports[i]
		if r.UserID != userID || r.ReportType != reportType || !r.UploadedAt.Before(before) {
			continue
		}
		if latest == nil || r.UploadedAt.After(latest.UploadedAt) {
			latest = &r
		}
	}
	return latest, nil
}

func (s *InMemoryStore) Close() error { return nil }
