package account

import (
	"sort"
	"strings"
	"sync"
)

// Store holds one Account per Apple ID. Lookups are case insensitive on the email.
type Store struct {
	accounts map[string]*Account
	mu       sync.Mutex
}

func NewStore() *Store {
	return &Store{accounts: make(map[string]*Account)}
}

func storeKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Store) Get(email string) *Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accounts[storeKey(email)]
}

// Put adds a, replacing any account stored under the same email.
func (s *Store) Put(a *Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[storeKey(a.Email())] = a
}

// GetOrCreate returns the stored account for email or stores the one built by create.
func (s *Store) GetOrCreate(email string, create func() (*Account, error)) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.accounts[storeKey(email)]; ok {
		return a, nil
	}
	a, err := create()
	if err != nil {
		return nil, err
	}
	s.accounts[storeKey(email)] = a
	return a, nil
}

func (s *Store) Remove(email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.accounts, storeKey(email))
}

func (s *Store) Emails() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a.Email())
	}
	sort.Strings(out)
	return out
}
