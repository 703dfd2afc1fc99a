// Package tenant resolves tenant memberships embedded into access tokens.
package tenant

import (
	"context"
	"sort"

	"keygate/config"
	"keygate/internal/domain/entity"
	"keygate/internal/domain/repository"
	"keygate/internal/domain/service"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// staticResolver reads memberships from configuration. A stand-in for a
// real membership service; the token contents do not change when that
// service arrives.
type staticResolver struct {
	byEmail  map[string][]string
	userRepo repository.UserRepository
}

// NewStaticResolver is the constructor for staticResolver. The config maps
// tenant ID to member emails; the resolver inverts that to email lookups.
func NewStaticResolver(cfg *config.Config, userRepo repository.UserRepository) service.TenantResolver {
	byEmail := make(map[string][]string)
	for tenantID, emails := range cfg.Tenants {
		for _, email := range emails {
			normalized := entity.NormalizeEmail(email)
			byEmail[normalized] = append(byEmail[normalized], tenantID)
		}
	}

	// Deterministic order keeps token payloads stable between issuances.
	for _, tenants := range byEmail {
		sort.Strings(tenants)
	}

	return &staticResolver{byEmail: byEmail, userRepo: userRepo}
}

// TenantsFor returns the tenant IDs the user is a member of.
func (r *staticResolver) TenantsFor(ctx context.Context, userID uuid.UUID) ([]string, error) {
	user, err := r.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve user for tenant lookup")
	}

	return r.byEmail[user.Email], nil
}
