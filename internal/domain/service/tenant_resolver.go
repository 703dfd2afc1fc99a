package service

import (
	"context"

	"github.com/google/uuid"
)

// TenantResolver is the external membership collaborator. Tokens embed the
// memberships it reports at issuance time; this service is consumed, not
// owned, by the authentication core.
type TenantResolver interface {
	// TenantsFor returns the tenant IDs the user is a member of.
	TenantsFor(ctx context.Context, userID uuid.UUID) ([]string, error)
}
