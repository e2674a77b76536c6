package report

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrFormNotFound возвращается, если форма с указанным идентификатором не открыта.
	ErrFormNotFound = errors.New("form not found")
	// ErrBusy возвращается, пока по форме выполняется отправка.
	ErrBusy = errors.New("form submission in progress")
)

type entry struct {
	form      Form
	busy      bool
	updatedAt time.Time
}

// Store хранит открытые формы в памяти. Безопасен для конкурентного использования.
type Store struct {
	mu    sync.Mutex
	forms map[uuid.UUID]*entry
	now   func() time.Time
}

// NewStore создаёт пустое хранилище форм.
func NewStore() *Store {
	return &Store{
		forms: make(map[uuid.UUID]*entry),
		now:   time.Now,
	}
}

// Create сохраняет форму и возвращает её идентификатор.
func (s *Store) Create(f Form) string {
	id := uuid.New()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.forms[id] = &entry{form: f, updatedAt: s.now()}
	return id.String()
}

// Get возвращает текущее состояние формы.
func (s *Store) Get(id string) (Form, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.lookup(id)
	if err != nil {
		return Form{}, err
	}
	return e.form, nil
}

// Update применяет fn к форме и сохраняет результат. При ошибке fn форма не меняется.
func (s *Store) Update(id string, fn func(Form) (Form, error)) (Form, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.lookup(id)
	if err != nil {
		return Form{}, err
	}
	if e.busy {
		return Form{}, ErrBusy
	}

	next, err := fn(e.form)
	if err != nil {
		return e.form, err
	}

	e.form = next
	e.updatedAt = s.now()
	return next, nil
}

// Acquire помечает форму как отправляемую и возвращает её снимок.
// Пока форма занята, повторная отправка и изменения отклоняются с ErrBusy.
func (s *Store) Acquire(id string) (Form, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.lookup(id)
	if err != nil {
		return Form{}, err
	}
	if e.busy {
		return Form{}, ErrBusy
	}

	e.busy = true
	return e.form, nil
}

// Release снимает пометку отправки. Если next не nil, форма заменяется на него.
func (s *Store) Release(id string, next *Form) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.lookup(id)
	if err != nil {
		return
	}

	e.busy = false
	if next != nil {
		e.form = *next
		e.updatedAt = s.now()
	}
}

// Prune удаляет свободные формы, не менявшиеся с момента before, и возвращает их число.
func (s *Store) Prune(before time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, e := range s.forms {
		if !e.busy && e.updatedAt.Before(before) {
			delete(s.forms, id)
			removed++
		}
	}
	return removed
}

func (s *Store) lookup(id string) (*entry, error) {
	key, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrFormNotFound
	}

	e, ok := s.forms[key]
	if !ok {
		return nil, ErrFormNotFound
	}
	return e, nil
}
