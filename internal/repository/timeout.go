package repository

import (
	"context"
	"time"

	"github.com/iliyamo/parking-gate/internal/model"
)

type boundedCredentials struct {
	next    CredentialRepository
	timeout time.Duration
}

// WithTimeout bounds every call on credentials by timeout. A non-positive
// timeout returns credentials unchanged.
func WithTimeout(credentials CredentialRepository, timeout time.Duration) CredentialRepository {
	if timeout <= 0 {
		return credentials
	}
	return boundedCredentials{next: credentials, timeout: timeout}
}

func (b boundedCredentials) GetByID(ctx context.Context, id string) (model.Credential, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.next.GetByID(ctx, id)
}

func (b boundedCredentials) List(ctx context.Context) ([]model.Credential, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.next.List(ctx)
}

func (b boundedCredentials) Create(ctx context.Context, c model.Credential) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.next.Create(ctx, c)
}

func (b boundedCredentials) Update(ctx context.Context, c model.Credential) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.next.Update(ctx, c)
}

func (b boundedCredentials) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.next.Delete(ctx, id)
}
