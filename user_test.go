package deskctl

import (
	"context"
	"testing"
	"time"
)

func TestUsers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	u, err := env.Users.Create(ctx, " Alice <alice@example.com> ")
	if err != nil {
		t.Fatal(err)
	}
	if u.Email != "alice@example.com" {
		t.Fatalf("Unexpected email %q", u.Email)
	}

	_, err = env.Users.Create(ctx, "alice@example.com")
	expectCode(t, err, CodeValidation)

	_, err = env.Users.Create(ctx, "not an email")
	expectCode(t, err, CodeValidation)

	found, err := env.Users.ByEmail(ctx, "alice@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if found.Id != u.Id {
		t.Fatalf("Found user %d, expected %d", found.Id, u.Id)
	}
}

func TestApiKeys(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	u, err := env.Users.Create(ctx, "alice@example.com")
	if err != nil {
		t.Fatal(err)
	}

	key, err := env.Users.CreateApiKey(ctx, u.Id, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	got, err := env.Users.Authenticate(ctx, key.Token)
	if err != nil {
		t.Fatal(err)
	}
	if got.Id != u.Id {
		t.Fatalf("Key resolved to user %d", got.Id)
	}

	_, err = env.Users.Authenticate(ctx, "nope")
	expectCode(t, err, CodeNotAuthorized)

	_, err = env.Users.Authenticate(ctx, "")
	expectCode(t, err, CodeNotAuthorized)

	_, err = env.Users.CreateApiKey(ctx, 4242, time.Hour)
	expectCode(t, err, CodeNotFound)

	env.clock.Set(key.ExpirationTime.Add(time.Second))
	_, err = env.Users.Authenticate(ctx, key.Token)
	expectCode(t, err, CodeNotAuthorized)
}
