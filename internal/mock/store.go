package mock

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/ochronus/storageportal/internal/services/portal"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUnknownUser   = errors.New("user does not exist")
	ErrBadPassword   = errors.New("password is incorrect")
	ErrFileExists    = errors.New("file already exists")
	ErrFileNotExists = errors.New("file does not exist")
)

type account struct {
	name     string
	hash     []byte
	roles    []string
	strategy portal.Document
	files    []*storedFile
}

type storedFile struct {
	entry   portal.FileEntry
	content []byte
}

// Store is the in-memory state behind the mock API. All methods are safe
// for concurrent use.
type Store struct {
	mu       sync.RWMutex
	accounts map[string]*account
	sites    []portal.Site
}

// NewStore creates an empty store offering sites.
func NewStore(sites []portal.Site) *Store {
	return &Store{
		accounts: make(map[string]*account),
		sites:    slices.Clone(sites),
	}
}

// AddUser registers a user with a bcrypt hash of password.
func (s *Store) AddUser(name, password string, roles ...string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password for %s: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[name] = &account{name: name, hash: hash, roles: roles}
	return nil
}

// Authenticate checks a username and password pair.
func (s *Store) Authenticate(name, password string) error {
	s.mu.RLock()
	acc, ok := s.accounts[name]
	s.mu.RUnlock()
	if !ok {
		return ErrUnknownUser
	}
	if bcrypt.CompareHashAndPassword(acc.hash, []byte(password)) != nil {
		return ErrBadPassword
	}
	return nil
}

// ChangePassword replaces the password of name after checking the old one.
func (s *Store) ChangePassword(name, oldPassword, newPassword string) error {
	if err := s.Authenticate(name, oldPassword); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[name]
	if !ok {
		return ErrUnknownUser
	}
	acc.hash = hash
	return nil
}

// Roles returns the roles of name.
func (s *Store) Roles(name string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.accounts[name]
	if !ok {
		return nil, ErrUnknownUser
	}
	return slices.Clone(acc.roles), nil
}

// Files returns a snapshot of the user's file entries.
func (s *Store) Files(name string) ([]portal.FileEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.accounts[name]
	if !ok {
		return nil, ErrUnknownUser
	}

	entries := make([]portal.FileEntry, 0, len(acc.files))
	for _, f := range acc.files {
		entries = append(entries, cloneEntry(f.entry))
	}
	return entries, nil
}

// File returns one entry and its content.
func (s *Store) File(name, filename string) (portal.FileEntry, []byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.accounts[name]
	if !ok {
		return portal.FileEntry{}, nil, ErrUnknownUser
	}
	i := acc.indexOf(filename)
	if i < 0 {
		return portal.FileEntry{}, nil, ErrFileNotExists
	}
	f := acc.files[i]
	return cloneEntry(f.entry), f.content, nil
}

// PutFile adds a new file for the user. Existing names are rejected.
func (s *Store) PutFile(name string, entry portal.FileEntry, content []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[name]
	if !ok {
		return ErrUnknownUser
	}
	if acc.indexOf(entry.Filename) >= 0 {
		return ErrFileExists
	}
	acc.files = append(acc.files, &storedFile{entry: cloneEntry(entry), content: content})
	return nil
}

// RemoveFile deletes filename from the user's files.
func (s *Store) RemoveFile(name, filename string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[name]
	if !ok {
		return ErrUnknownUser
	}
	i := acc.indexOf(filename)
	if i < 0 {
		return ErrFileNotExists
	}
	acc.files = slices.Delete(acc.files, i, i+1)
	return nil
}

// Strategy returns a copy of the user's strategy document, never nil.
func (s *Store) Strategy(name string) (portal.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.accounts[name]
	if !ok {
		return nil, ErrUnknownUser
	}
	if acc.strategy == nil {
		return portal.Document{}, nil
	}
	return maps.Clone(acc.strategy), nil
}

// SetStrategy replaces the user's strategy document.
func (s *Store) SetStrategy(name string, doc portal.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[name]
	if !ok {
		return ErrUnknownUser
	}
	acc.strategy = maps.Clone(doc)
	return nil
}

// Sites returns the offered sites.
func (s *Store) Sites() []portal.Site {
	return slices.Clone(s.sites)
}

// Selected returns the user's active sites: the known site codes listed
// under the "sites" key of the strategy document, or every site.
func (s *Store) Selected(name string) ([]portal.Site, error) {
	doc, err := s.Strategy(name)
	if err != nil {
		return nil, err
	}

	raw, ok := doc["sites"].([]any)
	if !ok {
		return s.Sites(), nil
	}
	selected := make([]portal.Site, 0, len(raw))
	for _, v := range raw {
		code, ok := v.(string)
		if ok && slices.Contains(s.sites, code) && !slices.Contains(selected, code) {
			selected = append(selected, code)
		}
	}
	if len(selected) == 0 {
		return s.Sites(), nil
	}
	return selected, nil
}

func (a *account) indexOf(filename string) int {
	return slices.IndexFunc(a.files, func(f *storedFile) bool {
		return f.entry.Filename == filename
	})
}

func cloneEntry(e portal.FileEntry) portal.FileEntry {
	e.Location = slices.Clone(e.Location)
	return e
}
