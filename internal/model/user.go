package model

import "time"

// User represents an identity stored in the `users` table. The ID is the
// normalized identifier the client signed up with: a lower-cased email
// address or an E.164 phone number. Rows are immutable after signup.
//
// Fields:
//  ID           – users.id (email or E.164 phone, primary key).
//  PasswordHash – bcrypt verifier for the password; never returned to clients.
//  CreatedAt    – timestamp of creation.
type User struct {
	ID           string    // users.id
	PasswordHash string    // users.password_hash
	CreatedAt    time.Time // users.created_at
}
