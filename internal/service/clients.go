package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/depannfroid-reports/internal/model"
)

// Clients возвращает справочник клиентов из кэша. Первое обращение загружает его из удалённой системы.
func (s *Service) Clients(ctx context.Context) ([]model.Client, error) {
	s.mu.RLock()
	loaded := s.clientsLoaded
	clients := s.clients
	s.mu.RUnlock()

	if !loaded {
		if err := s.RefreshClients(ctx); err != nil {
			return nil, err
		}
		s.mu.RLock()
		clients = s.clients
		s.mu.RUnlock()
	}

	res := make([]model.Client, len(clients))
	copy(res, clients)
	return res, nil
}

// RefreshClients перечитывает справочник. При ошибке прежний список сохраняется.
func (s *Service) RefreshClients(ctx context.Context) error {
	clients, err := s.workflow.FetchClients(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.clients = clients
	s.clientsLoaded = true
	s.mu.Unlock()

	return nil
}

func (s *Service) findClient(name string) (model.Client, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Client{}, false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.clients {
		if strings.EqualFold(strings.TrimSpace(c.Name), name) {
			return c, true
		}
	}
	return model.Client{}, false
}

// StartBackgroundSync запускает фоновое обновление справочника клиентов и очистку заброшенных форм.
func (s *Service) StartBackgroundSync(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.syncOnce(ctx)
			}
		}
	}()
}

func (s *Service) syncOnce(ctx context.Context) {
	if err := s.RefreshClients(ctx); err != nil {
		s.logger.Warn("refresh clients", zap.Error(err))
	}

	if removed := s.forms.Prune(time.Now().Add(-formTTL)); removed > 0 {
		s.logger.Info("pruned stale forms", zap.Int("count", removed))
	}
}
