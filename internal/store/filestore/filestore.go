// Package filestore implements the credential store on the local
// filesystem. Each credential is a directory
// Registration/<role>/<username>/ holding the captured image, the
// signature and a metadata file. Records are published atomically by
// staging them in a temporary directory and renaming into place.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kozaktomas/facegate/internal/identity"
	"github.com/kozaktomas/facegate/internal/store"
)

const (
	registrationDir = "Registration"
	stagingDir      = ".staging"

	imageFile     = "captured_image.jpg"
	signatureFile = "signature.json"
	metadataFile  = "metadata.json"
)

// timeLayout is ISO-8601 UTC with a trailing Z.
const timeLayout = "2006-01-02T15:04:05Z"

type metadata struct {
	Username         string `json:"username"`
	Role             string `json:"role"`
	RegistrationTime string `json:"registration_time"`
	LastLoginTime    string `json:"last_login_time,omitempty"`
}

// FileStore is the filesystem-backed credential store.
type FileStore struct {
	root string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

var _ store.Store = (*FileStore)(nil)

// New creates a file store rooted at dir. The registration and staging
// directories are created if missing.
func New(dir string) (*FileStore, error) {
	s := &FileStore{
		root:  dir,
		locks: make(map[string]*sync.Mutex),
	}
	for _, d := range []string{s.registrationPath(), s.stagingPath()} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory %s: %w", d, err)
		}
	}
	return s, nil
}

func (s *FileStore) registrationPath() string {
	return filepath.Join(s.root, registrationDir)
}

func (s *FileStore) stagingPath() string {
	return filepath.Join(s.root, stagingDir)
}

func (s *FileStore) credentialDir(key identity.Key) string {
	return filepath.Join(s.registrationPath(), string(key.Role), key.Username)
}

// keyLock returns the mutex serializing operations on one identity key.
func (s *FileStore) keyLock(key identity.Key) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key.String()
	l, ok := s.locks[k]
	if !ok {
		l = &sync.Mutex{}
		s.locks[k] = l
	}
	return l
}

// Enroll stages the credential files in a temporary directory and
// publishes the record with a single rename. A record is visible only
// once all of its files are complete; a crash mid-write leaves no
// partial record behind.
func (s *FileStore) Enroll(ctx context.Context, cred store.Credential, image []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	lock := s.keyLock(cred.Key)
	lock.Lock()
	defer lock.Unlock()

	dir := s.credentialDir(cred.Key)
	if _, err := os.Stat(filepath.Join(dir, metadataFile)); err == nil {
		return store.ErrAlreadyEnrolled
	}

	tmp, err := os.MkdirTemp(s.stagingPath(), "enroll-*")
	if err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(tmp)

	meta := metadata{
		Username:         cred.Key.Username,
		Role:             string(cred.Key.Role),
		RegistrationTime: cred.RegistrationTime.UTC().Format(timeLayout),
	}

	if err := writeJSON(filepath.Join(tmp, signatureFile), cred.Signature); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(tmp, metadataFile), meta); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(tmp, imageFile), image, 0o644); err != nil {
		return fmt.Errorf("failed to write captured image: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return fmt.Errorf("failed to create role directory: %w", err)
	}
	if err := os.Rename(tmp, dir); err != nil {
		// Rename onto an existing directory means someone got there first.
		if _, statErr := os.Stat(filepath.Join(dir, metadataFile)); statErr == nil {
			return store.ErrAlreadyEnrolled
		}
		return fmt.Errorf("failed to publish credential: %w", err)
	}
	return nil
}

// Lookup reads the credential for the key. A record exists only when
// its metadata parses and the signature is readable.
func (s *FileStore) Lookup(ctx context.Context, key identity.Key) (*store.Credential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dir := s.credentialDir(key)

	meta, err := readMetadata(filepath.Join(dir, metadataFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	var signature []float32
	data, err := os.ReadFile(filepath.Join(dir, signatureFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read signature: %w", err)
	}
	if err := json.Unmarshal(data, &signature); err != nil {
		return nil, fmt.Errorf("failed to parse signature: %w", err)
	}

	return credentialFromMetadata(key, meta, signature)
}

// RecordLogin rewrites metadata.json with the new last login time. The
// update goes through a temp file and rename so readers never observe a
// half-written metadata file.
func (s *FileStore) RecordLogin(ctx context.Context, key identity.Key, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	lock := s.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	path := filepath.Join(s.credentialDir(key), metadataFile)
	meta, err := readMetadata(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return store.ErrNotFound
		}
		return err
	}

	meta.LastLoginTime = at.UTC().Format(timeLayout)

	tmp := path + ".tmp"
	if err := writeJSON(tmp, meta); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to update metadata: %w", err)
	}
	return nil
}

// List walks Registration/<role>/<username> and returns every readable
// credential. Unparseable records are skipped.
func (s *FileStore) List(ctx context.Context) ([]store.Credential, error) {
	roles, err := os.ReadDir(s.registrationPath())
	if err != nil {
		return nil, fmt.Errorf("failed to read registration directory: %w", err)
	}

	var creds []store.Credential
	for _, roleEntry := range roles {
		if !roleEntry.IsDir() {
			continue
		}
		users, err := os.ReadDir(filepath.Join(s.registrationPath(), roleEntry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read role directory: %w", err)
		}
		for _, userEntry := range users {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if !userEntry.IsDir() {
				continue
			}
			key := identity.Key{
				Role:     identity.Role(roleEntry.Name()),
				Username: userEntry.Name(),
			}
			cred, err := s.Lookup(ctx, key)
			if err != nil {
				continue
			}
			creds = append(creds, *cred)
		}
	}
	return creds, nil
}

func (s *FileStore) Close() error {
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func readMetadata(path string) (metadata, error) {
	var meta metadata
	data, err := os.ReadFile(path)
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("failed to parse metadata: %w", err)
	}
	return meta, nil
}

func credentialFromMetadata(key identity.Key, meta metadata, signature []float32) (*store.Credential, error) {
	regTime, err := time.Parse(timeLayout, meta.RegistrationTime)
	if err != nil {
		return nil, fmt.Errorf("failed to parse registration time: %w", err)
	}
	cred := &store.Credential{
		Key:              key,
		Signature:        signature,
		RegistrationTime: regTime,
	}
	if meta.LastLoginTime != "" {
		t, err := time.Parse(timeLayout, meta.LastLoginTime)
		if err != nil {
			return nil, fmt.Errorf("failed to parse last login time: %w", err)
		}
		cred.LastLoginTime = &t
	}
	return cred, nil
}
