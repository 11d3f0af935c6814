package job

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/walletscope/backend/internal/db"
)

const keyPrefix = "jobs/"

// PersistentStore keeps one badger record per job id. Badger transactions
// make each write atomic for readers; the per-id locks serialize concurrent
// writers to the same job within this process.
type PersistentStore struct {
	dbStore *db.Store

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewPersistentStore(dbStore *db.Store) *PersistentStore {
	return &PersistentStore{
		dbStore: dbStore,
		locks:   make(map[string]*sync.Mutex),
	}
}

func (s *PersistentStore) lockFor(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

func (s *PersistentStore) Save(j *Job) error {
	data, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	l := s.lockFor(j.ID)
	l.Lock()
	defer l.Unlock()

	if err := s.dbStore.Set(keyPrefix+j.ID, data); err != nil {
		return fmt.Errorf("store job: %w", err)
	}
	return nil
}

func (s *PersistentStore) Get(id string) (*Job, error) {
	data, err := s.dbStore.Get(keyPrefix + id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("get job: %w", err)
	}

	var j Job
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}
	return &j, nil
}

func (s *PersistentStore) Cleanup(maxAge time.Duration) (int, error) {
	keys, err := s.dbStore.List(keyPrefix, 0)
	if err != nil {
		return 0, fmt.Errorf("list jobs: %w", err)
	}

	cutoff := time.Now().UTC().Add(-maxAge)
	deleted := 0

	for _, key := range keys {
		id := strings.TrimPrefix(key, keyPrefix)
		if id == "" {
			continue
		}
		j, err := s.Get(id)
		if err != nil {
			continue
		}
		if j.CompletedAt == nil || !j.CompletedAt.Before(cutoff) {
			continue
		}

		l := s.lockFor(id)
		l.Lock()
		err = s.dbStore.Delete(key)
		l.Unlock()
		if err != nil {
			continue
		}

		s.mu.Lock()
		delete(s.locks, id)
		s.mu.Unlock()
		deleted++
	}

	return deleted, nil
}
