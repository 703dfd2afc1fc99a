// Package service defines interfaces for core, stateless domain logic.
// These services encapsulate business rules that don't naturally fit within
// a single entity.
package service

// PasswordHasher abstracts the hashing algorithm and the password policy,
// keeping the domain pure.
type PasswordHasher interface {
	// Hash generates a salted hash from a plaintext password.
	Hash(password string) (string, error)

	// Check compares a plaintext password with a hash.
	Check(password, hash string) bool

	// ValidatePolicy checks the plaintext against the configured policy and
	// returns an ErrPasswordPolicy detailing the first failed rule.
	ValidatePolicy(password string) error
}
