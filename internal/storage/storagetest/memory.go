// Package storagetest provides in-memory stand-ins for the Postgres and
// MinIO stores. Persons are kept in insertion order, matching the
// created_at ordering of the real store.
package storagetest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/facerecog/internal/models"
	"github.com/your-org/facerecog/internal/storage"
)

type Store struct {
	mu       sync.Mutex
	persons  []models.Person
	accounts []models.Account

	// Err, when set, is returned by every method.
	Err error
	// ListCalls counts ListPersonsWithEmbedding calls.
	ListCalls int
}

func New() *Store {
	return &Store{}
}

func (s *Store) CreatePerson(_ context.Context, p *models.Person) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now()
	p.CreatedAt, p.UpdatedAt = now, now
	s.persons = append(s.persons, clonePerson(*p))
	return nil
}

func (s *Store) GetPerson(_ context.Context, id uuid.UUID) (*models.Person, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	for _, p := range s.persons {
		if p.ID == id {
			c := clonePerson(p)
			return &c, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *Store) ListPersons(_ context.Context) ([]models.Person, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	out := make([]models.Person, 0, len(s.persons))
	for _, p := range s.persons {
		out = append(out, clonePerson(p))
	}
	return out, nil
}

func (s *Store) ListPersonsWithEmbedding(_ context.Context) ([]models.Person, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ListCalls++
	if s.Err != nil {
		return nil, s.Err
	}
	var out []models.Person
	for _, p := range s.persons {
		if p.HasEmbedding() {
			out = append(out, clonePerson(p))
		}
	}
	return out, nil
}

func (s *Store) ListPersonsWithoutEmbedding(_ context.Context) ([]models.Person, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	var out []models.Person
	for _, p := range s.persons {
		if !p.HasEmbedding() {
			out = append(out, clonePerson(p))
		}
	}
	return out, nil
}

func (s *Store) UpdatePerson(_ context.Context, p *models.Person) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	for i := range s.persons {
		if s.persons[i].ID == p.ID {
			s.persons[i].Name = p.Name
			s.persons[i].Number = p.Number
			s.persons[i].PhotoKey = p.PhotoKey
			s.persons[i].UpdatedAt = time.Now()
			p.UpdatedAt = s.persons[i].UpdatedAt
			return nil
		}
	}
	return storage.ErrNotFound
}

func (s *Store) SetPersonEmbedding(_ context.Context, id uuid.UUID, embedding []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	for i := range s.persons {
		if s.persons[i].ID == id {
			s.persons[i].Embedding = append([]float32(nil), embedding...)
			return nil
		}
	}
	return storage.ErrNotFound
}

func (s *Store) DeletePerson(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	for i := range s.persons {
		if s.persons[i].ID == id {
			s.persons = append(s.persons[:i], s.persons[i+1:]...)
			return nil
		}
	}
	return storage.ErrNotFound
}

func (s *Store) CreateAccount(_ context.Context, a *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	for _, existing := range s.accounts {
		if existing.Username == a.Username {
			return fmt.Errorf("create account %q: %w", a.Username, storage.ErrDuplicate)
		}
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	now := time.Now()
	a.CreatedAt, a.UpdatedAt = now, now
	s.accounts = append(s.accounts, *a)
	return nil
}

func (s *Store) GetAccount(_ context.Context, id uuid.UUID) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	for _, a := range s.accounts {
		if a.ID == id {
			c := a
			return &c, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *Store) GetAccountByUsername(_ context.Context, username string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	for _, a := range s.accounts {
		if a.Username == username {
			c := a
			return &c, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *Store) ListAccountsByRole(_ context.Context, role models.Role) ([]models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	var out []models.Account
	for _, a := range s.accounts {
		if a.Role == role {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *Store) UpdateAccount(_ context.Context, a *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	idx := -1
	for i := range s.accounts {
		if s.accounts[i].ID == a.ID {
			idx = i
		} else if s.accounts[i].Username == a.Username {
			return fmt.Errorf("update account %q: %w", a.Username, storage.ErrDuplicate)
		}
	}
	if idx < 0 {
		return storage.ErrNotFound
	}
	a.PasswordHash = s.accounts[idx].PasswordHash
	a.CreatedAt = s.accounts[idx].CreatedAt
	a.UpdatedAt = time.Now()
	s.accounts[idx] = *a
	return nil
}

func clonePerson(p models.Person) models.Person {
	if p.Embedding != nil {
		p.Embedding = append([]float32(nil), p.Embedding...)
	}
	return p
}
