// Package filestore implements the repository interfaces on a directory of
// JSON files, one file per key. It backs the "local" deployment, where the
// site runs on a single machine with no database.
//
// File names carry a prefix so several sites can share a directory:
// with the default prefix the links record lives in 440_links.json.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sakif/clinic-links/internal/apperror"
	"github.com/sakif/clinic-links/internal/model"
	"github.com/sakif/clinic-links/internal/repository"
)

// AdminKey is the file key holding the local admin credential.
const AdminKey = "admin_config"

var (
	_ repository.ContentRepository = (*Store)(nil)
	_ repository.AdminRepository   = (*Store)(nil)
)

// Store keeps records under BasePath.
type Store struct {
	BasePath string
	Prefix   string

	// mu serialises writes; readers see either the old or the new file
	// because writes go through rename.
	mu sync.Mutex
}

// New creates the base directory if needed and returns a Store.
func New(basePath, prefix string) (*Store, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("filestore: creating directory %s: %w", basePath, err)
	}
	return &Store{BasePath: basePath, Prefix: prefix}, nil
}

func (s *Store) path(key string) string {
	return filepath.Join(s.BasePath, s.Prefix+key+".json")
}

// LoadAll reads every <prefix><key>.json file in the directory. The admin
// credential file is skipped; it is read through GetAdmin only.
func (s *Store) LoadAll(ctx context.Context) (map[string][]byte, error) {
	entries, err := os.ReadDir(s.BasePath)
	if err != nil {
		// A directory removed after start behaves like a fresh install.
		if errors.Is(err, fs.ErrNotExist) {
			return map[string][]byte{}, nil
		}
		return nil, fmt.Errorf("filestore: reading directory %s: %w", s.BasePath, err)
	}

	records := make(map[string][]byte)
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, s.Prefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		key := strings.TrimSuffix(strings.TrimPrefix(name, s.Prefix), ".json")
		if key == AdminKey {
			continue
		}

		data, err := os.ReadFile(filepath.Join(s.BasePath, name))
		if err != nil {
			return nil, fmt.Errorf("filestore: reading %s: %w", name, err)
		}
		records[key] = data
	}

	return records, nil
}

// Upsert replaces the file for key.
func (s *Store) Upsert(ctx context.Context, key string, value []byte) error {
	if key == "" {
		return fmt.Errorf("filestore: key cannot be empty")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.writeFile(key, value)
}

// GetAdmin reads the admin_config file. A missing file means no admin has
// been set up yet.
func (s *Store) GetAdmin(ctx context.Context) (*model.AdminUser, error) {
	data, err := os.ReadFile(s.path(AdminKey))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperror.NotFound("admin", AdminKey)
		}
		return nil, fmt.Errorf("filestore: reading admin credential: %w", err)
	}

	var u model.AdminUser
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("filestore: decoding admin credential: %w", err)
	}
	if u.Username == "" || u.PasswordHash == "" {
		// An emptied file is treated as "not configured" rather than as
		// a credential nobody can match.
		return nil, apperror.NotFound("admin", AdminKey)
	}
	return &u, nil
}

// PutAdmin overwrites the admin_config file.
func (s *Store) PutAdmin(ctx context.Context, user *model.AdminUser) error {
	user.UpdatedAt = time.Now().UTC()

	data, err := json.MarshalIndent(user, "", "  ")
	if err != nil {
		return fmt.Errorf("filestore: encoding admin credential: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.writeFile(AdminKey, data)
}

// writeFile writes to a temp file in the same directory and renames it
// over the target. Caller holds s.mu.
func (s *Store) writeFile(key string, data []byte) error {
	tmp, err := os.CreateTemp(s.BasePath, s.Prefix+key+".*.tmp")
	if err != nil {
		return fmt.Errorf("filestore: creating temp file for %s: %w", key, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("filestore: writing %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("filestore: closing %s: %w", key, err)
	}

	if err := os.Rename(tmpName, s.path(key)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("filestore: replacing %s: %w", key, err)
	}
	return nil
}
