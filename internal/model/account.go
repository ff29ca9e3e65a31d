package model

import "time"

// Account represents a player account stored in the database.
type Account struct {
	Login        string
	PasswordHash string // hex of the 20-byte password digest
	AccessLevel  int    // negative = banned
	LastIP       string
	LastActive   time.Time
}

// Banned reports whether the account is locked out.
func (a *Account) Banned() bool {
	return a.AccessLevel < 0
}
