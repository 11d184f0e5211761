package services

import (
	"context"
	"io"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/quickvisa/intake-backend/internal/database"
	"github.com/quickvisa/intake-backend/internal/models"
	"github.com/sirupsen/logrus"
)

// memDraftStore is an in-memory DraftStore enforcing one draft per phone
// number the way the partial unique index does.
type memDraftStore struct {
	txMu sync.Mutex
	mu   sync.Mutex
	rows map[uuid.UUID]models.DraftApplication

	// beforeInsert runs once, outside the lock, ahead of the next insert
	beforeInsert func()
}

func newMemDraftStore() *memDraftStore {
	return &memDraftStore{rows: map[uuid.UUID]models.DraftApplication{}}
}

func cloneDraft(d models.DraftApplication) models.DraftApplication {
	files := make(models.FileMap, len(d.Files))
	for k, v := range d.Files {
		files[k] = v
	}
	d.Files = files
	return d
}

func (s *memDraftStore) WithinTx(ctx context.Context, fn func(tx database.DraftTx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	tx := &memDraftTx{store: s, writes: map[uuid.UUID]models.DraftApplication{}}
	if err := fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, row := range tx.writes {
		if tx.inserted[id] {
			for _, existing := range s.rows {
				if existing.PhoneNumber == row.PhoneNumber && existing.IsDraft() && row.IsDraft() {
					return database.ErrDraftConflict
				}
			}
		}
	}
	for id, row := range tx.writes {
		s.rows[id] = cloneDraft(row)
	}
	return nil
}

func (s *memDraftStore) GetByID(ctx context.Context, id uuid.UUID) (*models.DraftApplication, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	clone := cloneDraft(row)
	return &clone, nil
}

func (s *memDraftStore) Update(ctx context.Context, draft *models.DraftApplication) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[draft.ID]; !ok {
		return database.ErrNotFound
	}
	s.rows[draft.ID] = cloneDraft(*draft)
	return nil
}

func (s *memDraftStore) ListByPhone(ctx context.Context, phoneNumber string) ([]models.DraftApplication, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.DraftApplication{}
	for _, row := range s.rows {
		if row.PhoneNumber == phoneNumber {
			out = append(out, cloneDraft(row))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *memDraftStore) put(d models.DraftApplication) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[d.ID] = cloneDraft(d)
}

func (s *memDraftStore) drafts(phone string) []models.DraftApplication {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.DraftApplication
	for _, row := range s.rows {
		if row.PhoneNumber == phone && row.IsDraft() {
			out = append(out, cloneDraft(row))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

type memDraftTx struct {
	store    *memDraftStore
	writes   map[uuid.UUID]models.DraftApplication
	inserted map[uuid.UUID]bool
}

func (t *memDraftTx) LockDrafts(ctx context.Context, phoneNumber string) ([]models.DraftApplication, error) {
	return t.store.drafts(phoneNumber), nil
}

func (t *memDraftTx) Insert(ctx context.Context, draft *models.DraftApplication) error {
	if hook := t.store.beforeInsert; hook != nil {
		t.store.beforeInsert = nil
		hook()
	}
	if t.inserted == nil {
		t.inserted = map[uuid.UUID]bool{}
	}
	t.inserted[draft.ID] = true
	t.writes[draft.ID] = cloneDraft(*draft)
	return nil
}

func (t *memDraftTx) Update(ctx context.Context, draft *models.DraftApplication) error {
	t.writes[draft.ID] = cloneDraft(*draft)
	return nil
}

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
