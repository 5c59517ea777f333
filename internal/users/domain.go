package users

import "time"

// User represents an account in usuarios. PasswordHash is a bcrypt hash; the
// clear text is never stored.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	DisplayName  string
	Active       bool
	CreatedAt    time.Time
}
