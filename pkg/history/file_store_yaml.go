package history

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// YAMLFileStore keeps the whole history in a single YAML document on disk.
// Every write rewrites the file through a temp file and a rename.
type YAMLFileStore struct {
	mu     sync.RWMutex
	path   string
	store  *InMemoryStore
	closed bool
}

var _ Store = (*YAMLFileStore)(nil)

type yamlDocument struct {
	Conversations map[string]*Conversation `yaml:"conversations"`
}

func NewYAMLFileStore(path string) (*YAMLFileStore, error) {
	if path == "" {
		return nil, errors.New("yaml history store path is required")
	}

	s := &YAMLFileStore{
		path:  path,
		store: NewInMemoryStore(),
	}
	if err := s.loadFromDisk(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *YAMLFileStore) Put(ctx context.Context, id string, c *Conversation) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return "", err
	}
	err := s.store.transact(func() error {
		var err error
		id, err = s.store.Put(ctx, id, c)
		return err
	}, func() error {
		return s.persistLocked(ctx)
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *YAMLFileStore) Get(ctx context.Context, id string) (*Conversation, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpen(); err != nil {
		return nil, false, err
	}
	return s.store.Get(ctx, id)
}

func (s *YAMLFileStore) List(ctx context.Context) (History, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	return s.store.List(ctx)
}

func (s *YAMLFileStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return err
	}
	return s.store.transact(func() error {
		return s.store.Delete(ctx, id)
	}, func() error {
		return s.persistLocked(ctx)
	})
}

func (s *YAMLFileStore) Rename(ctx context.Context, id string, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return err
	}
	return s.store.transact(func() error {
		return s.store.Rename(ctx, id, name)
	}, func() error {
		return s.persistLocked(ctx)
	})
}

func (s *YAMLFileStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return err
	}
	return s.store.transact(func() error {
		return s.store.Clear(ctx)
	}, func() error {
		return s.persistLocked(ctx)
	})
}

func (s *YAMLFileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *YAMLFileStore) loadFromDisk() error {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var doc yamlDocument
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return errors.Wrapf(err, "could not parse history file %s", s.path)
	}

	s.store = NewInMemoryStore()
	for id, c := range doc.Conversations {
		if c == nil {
			continue
		}
		if err := ValidateConversation(c); err != nil {
			return errors.Wrapf(err, "invalid conversation %q in %s", id, s.path)
		}
		s.store.conversations[id] = c
	}
	return nil
}

func (s *YAMLFileStore) persistLocked(ctx context.Context) error {
	conversations, err := s.store.List(ctx)
	if err != nil {
		return err
	}
	b, err := yaml.Marshal(yamlDocument{Conversations: conversations})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpPath, s.path)
}

func (s *YAMLFileStore) ensureOpen() error {
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}
