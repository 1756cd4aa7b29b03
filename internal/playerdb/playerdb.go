package playerdb

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Character is one persisted player character: its packed component
// payloads plus account metadata. Characters key by name.
type Character struct {
	Name       string            `bson:"_id"`
	AccountID  string            `bson:"account_id"`
	Permission int               `bson:"permission"`
	Components map[string][]byte `bson:"components"`
	SavedAt    time.Time         `bson:"saved_at"`
}

// Account is a login identity. Credential bytes are opaque to this layer;
// hashing policy lives with the auth flow, outside the core.
type Account struct {
	ID         string    `bson:"_id"`
	Username   string    `bson:"username"`
	Credential []byte    `bson:"credential"`
	Permission int       `bson:"permission"`
	CreatedAt  time.Time `bson:"created_at"`
}

// NewAccount mints an account with a fresh id.
func NewAccount(username string, credential []byte, permission int) Account {
	return Account{
		ID:         uuid.NewString(),
		Username:   username,
		Credential: credential,
		Permission: permission,
		CreatedAt:  time.Now().UTC(),
	}
}

// Store persists characters and accounts. The simulation thread calls
// SaveCharacter on lingering expiry; everything else belongs to the
// network layer's auth flow.
type Store interface {
	SaveCharacter(name string, permission int, components map[string][]byte) error
	LoadCharacter(ctx context.Context, name string) (Character, bool, error)

	UpsertAccount(ctx context.Context, account Account) error
	FindAccount(ctx context.Context, username string) (Account, bool, error)

	Close(ctx context.Context) error
}
