package login

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/udisondev/gunnet/internal/auth"
	"github.com/udisondev/gunnet/internal/crypto"
	"github.com/udisondev/gunnet/internal/db"
	"github.com/udisondev/gunnet/internal/model"
	"github.com/udisondev/gunnet/internal/network"
	"github.com/udisondev/gunnet/internal/protocol"
)

// Rejection reasons. Logged server-side only; the client always gets StatusRejected.
var (
	errUnknownAccount = errors.New("unknown account")
	errWrongPassword  = errors.New("wrong password")
	errBanned         = errors.New("account banned")
)

// Option configures a Handler.
type Option func(*Handler)

// WithAutoCreate creates accounts on first login. Only possible when the key
// material policy is none, since other policies need the stored digest before
// the session block can be read.
func WithAutoCreate(enabled bool) Option {
	return func(h *Handler) {
		h.autoCreate = enabled
	}
}

// WithSessionManager shares a SessionManager (for example with a janitor).
func WithSessionManager(sm *SessionManager) Option {
	return func(h *Handler) {
		h.sessions = sm
	}
}

// WithNext forwards packets of authenticated connections to next.
func WithNext(next network.Handler) Option {
	return func(h *Handler) {
		h.next = next
	}
}

// Handler authenticates connections with the two-stage handshake.
// One Handler serves all connections of a server.
type Handler struct {
	codec      *auth.Codec
	accounts   AccountRepository
	sessions   *SessionManager
	autoCreate bool
	next       network.Handler
}

// NewHandler creates a login handler over codec and accounts.
func NewHandler(codec *auth.Codec, accounts AccountRepository, opts ...Option) *Handler {
	h := &Handler{
		codec:    codec,
		accounts: accounts,
		sessions: NewSessionManager(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Sessions returns the session manager.
func (h *Handler) Sessions() *SessionManager {
	return h.sessions
}

// HandlePacket implements network.Handler.
func (h *Handler) HandlePacket(ctx context.Context, c *network.Connection, pkt protocol.Packet) error {
	if account := c.Account(); account != "" {
		if pkt.Header.ID == OpcodeLoginRequest {
			slog.Warn("repeated login request", "login", account, "remote", c.IP())
			return nil
		}
		if h.next != nil {
			return h.next.HandlePacket(ctx, c, pkt)
		}
		slog.Debug("ignoring packet", "id", fmt.Sprintf("0x%04x", uint16(pkt.Header.ID)), "login", account)
		return nil
	}

	if pkt.Header.ID != OpcodeLoginRequest {
		return fmt.Errorf("packet 0x%04x before login", uint16(pkt.Header.ID))
	}

	acc, err := h.authenticate(ctx, c.IP(), pkt.Body)
	if err != nil {
		slog.Warn("login rejected", "remote", c.IP(), "err", err)
		if err := c.Send(OpcodeLoginResult, LoginResult{Status: StatusRejected}.Marshal()); err != nil {
			slog.Debug("sending login rejection", "remote", c.IP(), "err", err)
		}
		return network.ErrCloseConnection
	}

	sessionID := h.sessions.Store(acc.Login, c.ID(), c.IP())
	c.SetAccount(acc.Login)

	if err := h.accounts.UpdateLastLogin(ctx, acc.Login, c.IP()); err != nil {
		slog.Error("failed to update last login", "login", acc.Login, "err", err)
	}

	slog.Info("login accepted", "login", acc.Login, "remote", c.IP())
	return c.Send(OpcodeLoginResult, LoginResult{Status: StatusAccepted, SessionID: sessionID}.Marshal())
}

// OnDisconnect implements network.DisconnectHandler. Sessions outlive the
// connection and expire through CleanExpired.
func (h *Handler) OnDisconnect(c *network.Connection) {
	if account := c.Account(); account != "" {
		slog.Debug("authenticated client disconnected", "login", account, "remote", c.IP())
	}
}

// authenticate decodes the handshake in body and checks it against the account store.
func (h *Handler) authenticate(ctx context.Context, ip string, body []byte) (*model.Account, error) {
	policy := h.codec.Config().KeyMaterial

	var acc *model.Account
	cred, err := h.codec.Decode(body, func(p auth.Prelude) ([]byte, error) {
		found, err := h.accounts.GetAccount(ctx, p.Username)
		if err != nil {
			return nil, fmt.Errorf("loading account: %w", err)
		}
		acc = found
		if found == nil {
			if h.autoCreate && policy == auth.MaterialNone {
				return nil, nil
			}
			return nil, errUnknownAccount
		}
		if policy == auth.MaterialNone {
			return nil, nil
		}
		digest, err := db.DecodePasswordHash(found.PasswordHash)
		if err != nil {
			return nil, err
		}
		return auth.MaterialFromDigest(policy, digest), nil
	})
	if err != nil {
		return nil, err
	}

	if acc == nil {
		hash := passwordHash(cred)
		if hash == "" {
			return nil, fmt.Errorf("%w: no password to create %q", errUnknownAccount, cred.Username)
		}
		acc, err = h.accounts.GetOrCreateAccount(ctx, cred.Username, hash, ip)
		if err != nil {
			return nil, fmt.Errorf("creating account: %w", err)
		}
		slog.Info("auto-created account", "login", acc.Login)
	}

	if err := verifyPassword(acc, cred); err != nil {
		return nil, fmt.Errorf("%q: %w", cred.Username, err)
	}
	if acc.Banned() {
		return nil, fmt.Errorf("%q: %w", cred.Username, errBanned)
	}
	return acc, nil
}

// passwordHash returns the stored form of the password carried by cred, if any.
func passwordHash(cred auth.Credentials) string {
	switch {
	case cred.Password != "":
		return db.HashPassword(cred.Password)
	case len(cred.PasswordHash) > 0:
		return hex.EncodeToString(cred.PasswordHash)
	default:
		return ""
	}
}

// verifyPassword compares the password carried by cred with the stored digest.
// Roles without a password field only prove the key material.
func verifyPassword(acc *model.Account, cred auth.Credentials) error {
	var got []byte
	switch {
	case cred.Password != "":
		sum := crypto.Hash([]byte(cred.Password))
		got = sum[:]
	case len(cred.PasswordHash) > 0:
		got = cred.PasswordHash
	default:
		return nil
	}

	want, err := db.DecodePasswordHash(acc.PasswordHash)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare(got, want) != 1 {
		return errWrongPassword
	}
	return nil
}
