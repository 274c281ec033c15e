package users

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mailcore/mailcore/internal/models"
)

// Service encapsulates user-related business logic. It also serves as the
// identity registry of the draft validator.
type Service struct {
	repo UserRepository
}

func NewService(r UserRepository) *Service {
	return &Service{repo: r}
}

// UpsertFromClaims creates or updates a user using token claims. A new user
// gets a first identity from the email claim.
func (s *Service) UpsertFromClaims(ctx context.Context, claims map[string]interface{}) (*models.User, error) {
	sub, _ := claims["sub"].(string)
	email, _ := claims["email"].(string)
	name, _ := claims["name"].(string)
	if sub == "" {
		return nil, nil
	}
	u := &models.User{
		Sub:   sub,
		Email: email,
		Name:  name,
	}
	if email != "" {
		u.Identities = []models.LocalIdentity{newIdentity(email, name)}
	}
	return s.repo.UpsertBySub(ctx, u)
}

func (s *Service) GetBySub(ctx context.Context, sub string) (*models.User, error) {
	return s.repo.GetBySub(ctx, sub)
}

// Identities returns the sending identities registered for a user. Unknown
// users have none.
func (s *Service) Identities(ctx context.Context, userID string) ([]models.LocalIdentity, error) {
	u, err := s.repo.GetBySub(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("lookup user %s: %w", userID, err)
	}
	if u == nil {
		return nil, nil
	}
	return u.Identities, nil
}

// AddIdentity registers an extra sending address for the user and returns
// the stored identity.
func (s *Service) AddIdentity(ctx context.Context, userID, address, displayName string) (models.LocalIdentity, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return models.LocalIdentity{}, fmt.Errorf("identity address is required")
	}
	id := newIdentity(address, displayName)
	if err := s.repo.AddIdentity(ctx, userID, id); err != nil {
		return models.LocalIdentity{}, err
	}
	// an address registered twice keeps its first identity
	ids, err := s.Identities(ctx, userID)
	if err != nil {
		return models.LocalIdentity{}, err
	}
	for _, cur := range ids {
		if strings.EqualFold(cur.Address, id.Address) {
			return cur, nil
		}
	}
	return id, nil
}

func newIdentity(address, displayName string) models.LocalIdentity {
	return models.LocalIdentity{
		IdentityID:  uuid.NewString(),
		Address:     strings.ToLower(address),
		Protocol:    "email",
		DisplayName: displayName,
	}
}
