package login

import (
	"context"

	"github.com/udisondev/gunnet/internal/model"
)

// AccountRepository is the account storage used by the login handler.
type AccountRepository interface {
	// GetAccount returns the account by login, or nil, nil if it does not exist.
	GetAccount(ctx context.Context, login string) (*model.Account, error)

	// GetOrCreateAccount atomically returns the existing account or creates a new one.
	GetOrCreateAccount(ctx context.Context, login, passwordHash, ip string) (*model.Account, error)

	// UpdateLastLogin records last_active and last_ip after a successful login.
	UpdateLastLogin(ctx context.Context, login, ip string) error
}
