package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ochronus/storageportal/internal/services/portal"
	"go.etcd.io/bbolt"
)

const bucketName = "sessions"

// Session is a cached login for one API endpoint.
type Session struct {
	Username string    `json:"username"`
	Token    string    `json:"token"`
	SavedAt  time.Time `json:"saved_at"`
}

// Store keeps session tokens in a bbolt file, keyed by API URL.
type Store struct {
	db *bbolt.DB
}

// Open opens or creates the store at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	// The timeout keeps a second process from blocking forever on the file lock.
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create session bucket: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

// Save stores the session for apiURL, replacing any previous one.
func (s *Store) Save(apiURL string, sess Session) error {
	if sess.SavedAt.IsZero() {
		sess.SavedAt = time.Now()
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Put([]byte(apiURL), data)
	})
}

// Load returns the session for apiURL, or nil if there is none.
func (s *Store) Load(apiURL string) (*Session, error) {
	var sess *Session
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(bucketName)).Get([]byte(apiURL))
		if data == nil {
			return nil
		}
		sess = &Session{}
		return json.Unmarshal(data, sess)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	return sess, nil
}

// Clear forgets the session for apiURL.
func (s *Store) Clear(apiURL string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Delete([]byte(apiURL))
	})
}

// Source returns a portal.TokenSource reading the token saved for apiURL on
// every request. A missing session yields an empty token.
func (s *Store) Source(apiURL string) portal.TokenSource {
	return tokenSource{store: s, apiURL: apiURL}
}

type tokenSource struct {
	store  *Store
	apiURL string
}

func (t tokenSource) Token(context.Context) (string, error) {
	sess, err := t.store.Load(t.apiURL)
	if err != nil || sess == nil {
		return "", err
	}
	return sess.Token, nil
}
