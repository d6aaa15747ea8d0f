package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/iliyamo/parking-gate/internal/model"
)

// DefaultCredentials are the accounts a fresh facility starts with: the
// operator card "10" and one parking user "1".
var DefaultCredentials = []model.Credential{
	{ID: "10", Name: "Owner", Role: model.RoleOwner},
	{ID: "1", Name: "User", Role: model.RoleUser},
}

// Seed provisions slots 1..capacity and the default credentials. It is safe
// to run repeatedly: existing slots and credentials are left untouched.
func Seed(ctx context.Context, s Store, capacity int) error {
	if err := s.Slots().EnsureSlots(ctx, capacity); err != nil {
		return fmt.Errorf("provision slots: %w", err)
	}
	for _, c := range DefaultCredentials {
		if err := s.Credentials().Create(ctx, c); err != nil && !errors.Is(err, ErrDuplicateKey) {
			return fmt.Errorf("seed credential %s: %w", c.ID, err)
		}
	}
	return nil
}
