package deskctl

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/cmodk/go-simpleflake"
	"github.com/google/uuid"

	"github.com/cmodk/deskctl/app"
)

type User struct {
	Id        uint64    `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type ApiKey struct {
	Id             uint64    `db:"id" json:"id"`
	Token          string    `db:"token" json:"token"`
	ExpirationTime time.Time `db:"expiration_time" json:"expiration_time"`
	UserId         uint64    `db:"user_id" json:"user_id"`
}

type UserCriteria struct {
	Id    uint64 `db:"id"`
	Email string `db:"email"`
}

type ApiKeyCriteria struct {
	Token string `db:"token"`
}

type Users struct {
	d       *Deskctl
	users   *app.DatabaseRepository
	apiKeys *app.DatabaseRepository
}

func NewUsers(d *Deskctl) *Users {
	return &Users{
		d:       d,
		users:   app.NewDatabaseRepository(d.Database, "users"),
		apiKeys: app.NewDatabaseRepository(d.Database, "api_keys"),
	}
}

func (users *Users) Create(ctx context.Context, email string) (*User, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil {
		return nil, &Error{Code: CodeValidation, Message: fmt.Sprintf("invalid email %q", email), Cause: err}
	}

	var existing []User
	if err := users.users.List(ctx, &existing, UserCriteria{Email: addr.Address}); err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, newError(CodeValidation, "user %s already exists", addr.Address)
	}

	u := User{
		Id:        simpleflake.Next(),
		Email:     addr.Address,
		CreatedAt: users.d.Now(),
	}
	if err := users.users.Create(ctx, &u); err != nil {
		return nil, err
	}

	return &u, nil
}

func (users *Users) Get(ctx context.Context, id uint64) (*User, error) {
	var u User
	if err := users.users.Get(ctx, &u, UserCriteria{Id: id}); err != nil {
		return nil, notFound(err, "user %d not found", id)
	}
	return &u, nil
}

func (users *Users) ByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	if err := users.users.Get(ctx, &u, UserCriteria{Email: email}); err != nil {
		return nil, notFound(err, "user %s not found", email)
	}
	return &u, nil
}

// CreateApiKey issues a bearer token for the user valid for ttl.
func (users *Users) CreateApiKey(ctx context.Context, userId uint64, ttl time.Duration) (*ApiKey, error) {
	if ttl <= 0 {
		return nil, newError(CodeValidation, "api key lifetime must be positive")
	}

	if _, err := users.Get(ctx, userId); err != nil {
		return nil, err
	}

	key := ApiKey{
		Id:             simpleflake.Next(),
		Token:          NewToken(),
		ExpirationTime: users.d.Now().Add(ttl),
		UserId:         userId,
	}
	if err := users.apiKeys.Create(ctx, &key); err != nil {
		return nil, err
	}

	return &key, nil
}

// Authenticate resolves an api key token to its user. Unknown and expired
// keys are NotAuthorized.
func (users *Users) Authenticate(ctx context.Context, token string) (*User, error) {
	if token == "" {
		return nil, newError(CodeNotAuthorized, "missing api key")
	}

	var key ApiKey
	if err := users.apiKeys.Get(ctx, &key, ApiKeyCriteria{Token: token}); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, newError(CodeNotAuthorized, "unknown api key")
		}
		return nil, err
	}

	if users.d.Now().After(key.ExpirationTime) {
		return nil, newError(CodeNotAuthorized, "api key expired")
	}

	return users.Get(ctx, key.UserId)
}

// NewToken returns a random opaque credential.
func NewToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "") + strings.ReplaceAll(uuid.NewString(), "-", "")
}
