package db

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/udisondev/gunnet/internal/crypto"
)

// DB wraps a pgx connection pool.
type DB struct {
	pool *pgxpool.Pool
}

// New connects to PostgreSQL and returns a DB handle.
func New(ctx context.Context, dsn string) (*DB, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return &DB{pool: pool}, nil
}

// Close closes the database connection pool.
func (d *DB) Close() {
	d.pool.Close()
}

// Pool returns the underlying pgx pool.
func (d *DB) Pool() *pgxpool.Pool {
	return d.pool
}

// HashPassword returns the hex-encoded digest stored in accounts.password.
// The same digest feeds handshake key derivation, so it must stay unsalted.
func HashPassword(password string) string {
	sum := crypto.Hash([]byte(password))
	return hex.EncodeToString(sum[:])
}

// DecodePasswordHash parses a stored hash back into the raw digest.
func DecodePasswordHash(stored string) ([]byte, error) {
	digest, err := hex.DecodeString(stored)
	if err != nil {
		return nil, fmt.Errorf("decoding password hash: %w", err)
	}
	if len(digest) != len(crypto.Hash(nil)) {
		return nil, fmt.Errorf("decoding password hash: %d bytes", len(digest))
	}
	return digest, nil
}
