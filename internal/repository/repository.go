// Package repository содержит хранилища черновиков отчётов.
package repository

import (
	"context"
	"sync"
	"time"

	"github.com/mmeshcher/depannfroid-reports/internal/model"
)

// MemoryRepository хранит черновики в памяти процесса. Используется, когда база данных не настроена.
type MemoryRepository struct {
	mu     sync.RWMutex
	drafts []model.Draft
	now    func() time.Time
}

// NewMemoryRepository создаёт пустое хранилище черновиков в памяти.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{now: time.Now}
}

// SaveDraft добавляет черновик и возвращает его с присвоенными идентификатором и временем сохранения.
func (r *MemoryRepository) SaveDraft(_ context.Context, d model.Draft) (model.Draft, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d.ID = int64(len(r.drafts) + 1)
	d.SavedAt = r.now()
	d.Lines = append([]model.InvoiceLine{}, d.Lines...)
	r.drafts = append(r.drafts, d)

	return d, nil
}

// ListDrafts возвращает черновики в порядке сохранения.
func (r *MemoryRepository) ListDrafts(_ context.Context) ([]model.Draft, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res := make([]model.Draft, len(r.drafts))
	copy(res, r.drafts)
	return res, nil
}

// Close ничего не делает.
func (r *MemoryRepository) Close() error {
	return nil
}
