// Package repository defines the interfaces for the persistence layer.
// These interfaces act as a contract between the domain/application layers
// and the infrastructure layer.
package repository

import "context"

// TransactionManager defines the interface for managing database transactions.
// The use case layer drives transactions without depending on a specific DB
// driver like GORM.
type TransactionManager interface {
	// Execute runs a function within a database transaction. If the function
	// returns an error the transaction is rolled back, otherwise committed.
	// All repository operations obtained from the factory share the same
	// transaction, so row locks taken inside fn are held until it returns.
	Execute(ctx context.Context, fn func(txRepoFactory RepositoryFactory) error) error
}

// RepositoryFactory hands out repository instances bound to one transaction.
type RepositoryFactory interface {
	// UserRepo returns a UserRepository bound to the current transaction.
	UserRepo() UserRepository

	// SessionRepo returns a SessionRepository bound to the current transaction.
	SessionRepo() SessionRepository

	// RefreshTokenRepo returns a RefreshTokenRepository bound to the current transaction.
	RefreshTokenRepo() RefreshTokenRepository

	// PasswordHistoryRepo returns a PasswordHistoryRepository bound to the current transaction.
	PasswordHistoryRepo() PasswordHistoryRepository
}
