package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/facegate/internal/identity"
	"github.com/kozaktomas/facegate/internal/store"
)

// CredentialStore implements store.Store on a PostgreSQL pool. The
// unique (role, username) constraint makes concurrent enrollment safe
// without application-side locking.
type CredentialStore struct {
	pool *Pool
}

var _ store.Store = (*CredentialStore)(nil)

func NewCredentialStore(pool *Pool) *CredentialStore {
	return &CredentialStore{pool: pool}
}

// Enroll inserts the credential. ON CONFLICT DO NOTHING guarantees that
// exactly one of N concurrent enrollments with the same key succeeds;
// the rest observe zero affected rows and report ErrAlreadyEnrolled.
func (s *CredentialStore) Enroll(ctx context.Context, cred store.Credential, image []byte) error {
	query := `
		INSERT INTO credentials (role, username, signature, captured_image, registration_time)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (role, username) DO NOTHING
	`

	vec := pgvector.NewVector(cred.Signature)
	res, err := s.pool.db.ExecContext(ctx, query,
		string(cred.Key.Role), cred.Key.Username, vec, image, cred.RegistrationTime.UTC())
	if err != nil {
		return fmt.Errorf("insert credential: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check insert result: %w", err)
	}
	if affected == 0 {
		return store.ErrAlreadyEnrolled
	}
	return nil
}

// Lookup returns the credential for the key, or store.ErrNotFound.
func (s *CredentialStore) Lookup(ctx context.Context, key identity.Key) (*store.Credential, error) {
	query := `
		SELECT signature, registration_time, last_login_time
		FROM credentials
		WHERE role = $1 AND username = $2
	`

	var vec pgvector.Vector
	var regTime time.Time
	var lastLogin sql.NullTime
	err := s.pool.db.QueryRowContext(ctx, query, string(key.Role), key.Username).
		Scan(&vec, &regTime, &lastLogin)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query credential: %w", err)
	}

	cred := &store.Credential{
		Key:              key,
		Signature:        vec.Slice(),
		RegistrationTime: regTime.UTC(),
	}
	if lastLogin.Valid {
		t := lastLogin.Time.UTC()
		cred.LastLoginTime = &t
	}
	return cred, nil
}

// RecordLogin updates the last login time for the key.
func (s *CredentialStore) RecordLogin(ctx context.Context, key identity.Key, at time.Time) error {
	query := `
		UPDATE credentials
		SET last_login_time = $3
		WHERE role = $1 AND username = $2
	`

	res, err := s.pool.db.ExecContext(ctx, query, string(key.Role), key.Username, at.UTC())
	if err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check update result: %w", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// List returns all enrolled credentials ordered by role and username.
func (s *CredentialStore) List(ctx context.Context) ([]store.Credential, error) {
	query := `
		SELECT role, username, signature, registration_time, last_login_time
		FROM credentials
		ORDER BY role, username
	`

	rows, err := s.pool.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query credentials: %w", err)
	}
	defer rows.Close()

	var creds []store.Credential
	for rows.Next() {
		var role, username string
		var vec pgvector.Vector
		var regTime time.Time
		var lastLogin sql.NullTime
		if err := rows.Scan(&role, &username, &vec, &regTime, &lastLogin); err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		cred := store.Credential{
			Key:              identity.Key{Role: identity.Role(role), Username: username},
			Signature:        vec.Slice(),
			RegistrationTime: regTime.UTC(),
		}
		if lastLogin.Valid {
			t := lastLogin.Time.UTC()
			cred.LastLoginTime = &t
		}
		creds = append(creds, cred)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credentials: %w", err)
	}
	return creds, nil
}

func (s *CredentialStore) Close() error {
	return s.pool.Close()
}
