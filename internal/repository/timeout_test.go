package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/iliyamo/parking-gate/internal/model"
)

// stalledCredentials blocks every call until its context ends.
type stalledCredentials struct{}

func (stalledCredentials) GetByID(ctx context.Context, _ string) (model.Credential, error) {
	<-ctx.Done()
	return model.Credential{}, ctx.Err()
}

func (stalledCredentials) List(ctx context.Context) ([]model.Credential, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (stalledCredentials) Create(ctx context.Context, _ model.Credential) error {
	<-ctx.Done()
	return ctx.Err()
}

func (stalledCredentials) Update(ctx context.Context, _ model.Credential) error {
	<-ctx.Done()
	return ctx.Err()
}

func (stalledCredentials) Delete(ctx context.Context, _ string) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestWithTimeoutBoundsEveryCall(t *testing.T) {
	creds := WithTimeout(stalledCredentials{}, 20*time.Millisecond)
	ctx := context.Background()
	c := model.Credential{ID: "5", Name: "Guest", Role: model.RoleUser}

	calls := map[string]func() error{
		"get":    func() error { _, err := creds.GetByID(ctx, "1"); return err },
		"list":   func() error { _, err := creds.List(ctx); return err },
		"create": func() error { return creds.Create(ctx, c) },
		"update": func() error { return creds.Update(ctx, c) },
		"delete": func() error { return creds.Delete(ctx, "1") },
	}
	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			start := time.Now()
			assert.ErrorIs(t, call(), context.DeadlineExceeded)
			assert.Less(t, time.Since(start), time.Second)
		})
	}
}

func TestWithTimeoutZeroIsPassThrough(t *testing.T) {
	var creds CredentialRepository = stalledCredentials{}
	assert.Equal(t, creds, WithTimeout(creds, 0))
}
