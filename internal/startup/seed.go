package startup

import (
	"context"
	"fmt"
	"time"

	"github.com/directchat/internal/model"
)

type UserCreator interface {
	Create(ctx context.Context, u *model.User) error
}

// DemoUsers have fixed ids so a dev client can connect as one of them
// with AUTH_MODE=dev.
var DemoUsers = []model.User{
	{ID: "11111111-1111-4111-8111-111111111111", Email: "alice@example.com", FullName: "Alice Example"},
	{ID: "22222222-2222-4222-8222-222222222222", Email: "bob@example.com", FullName: "Bob Example"},
	{ID: "33333333-3333-4333-8333-333333333333", Email: "carol@example.com", FullName: "Carol Example"},
}

// Seed inserts DemoUsers. Existing rows are left alone, so it can run on
// every start.
func Seed(ctx context.Context, users UserCreator) error {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, u := range DemoUsers {
		u.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		if err := users.Create(ctx, &u); err != nil {
			return fmt.Errorf("seed %s: %w", u.Email, err)
		}
	}
	return nil
}
