package testutil

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/udisondev/gunnet/internal/model"
)

// AccountStore — in-memory хранилище аккаунтов для unit тестов.
// Реализует login.AccountRepository без PostgreSQL.
type AccountStore struct {
	mu       sync.Mutex
	accounts map[string]*model.Account

	// Err, если задан, возвращается из всех методов (имитация сбоя БД).
	Err error

	LastLogins []string
}

// NewAccountStore создаёт пустое хранилище.
func NewAccountStore() *AccountStore {
	return &AccountStore{accounts: make(map[string]*model.Account)}
}

// Put добавляет или заменяет аккаунт.
func (s *AccountStore) Put(acc model.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc.Login = strings.ToLower(acc.Login)
	s.accounts[acc.Login] = &acc
}

// GetAccount возвращает копию аккаунта или nil, nil.
func (s *AccountStore) GetAccount(_ context.Context, login string) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	acc, ok := s.accounts[strings.ToLower(login)]
	if !ok {
		return nil, nil
	}
	cp := *acc
	return &cp, nil
}

// GetOrCreateAccount возвращает существующий аккаунт или создаёт новый.
func (s *AccountStore) GetOrCreateAccount(_ context.Context, login, passwordHash, ip string) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	login = strings.ToLower(login)
	acc, ok := s.accounts[login]
	if !ok {
		acc = &model.Account{Login: login, PasswordHash: passwordHash, LastIP: ip, LastActive: time.Now()}
		s.accounts[login] = acc
	}
	cp := *acc
	return &cp, nil
}

// UpdateLastLogin запоминает логин в LastLogins.
func (s *AccountStore) UpdateLastLogin(_ context.Context, login, ip string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if acc, ok := s.accounts[strings.ToLower(login)]; ok {
		acc.LastIP = ip
		acc.LastActive = time.Now()
	}
	s.LastLogins = append(s.LastLogins, strings.ToLower(login))
	return nil
}

// Logins возвращает копию LastLogins.
func (s *AccountStore) Logins() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.LastLogins...)
}
