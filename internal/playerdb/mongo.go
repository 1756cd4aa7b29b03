package playerdb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	charactersCollection = "characters"
	accountsCollection   = "accounts"

	opTimeout = 5 * time.Second
)

// MongoStore persists characters and accounts in MongoDB.
type MongoStore struct {
	client     *mongo.Client
	characters *mongo.Collection
	accounts   *mongo.Collection
}

var _ Store = (*MongoStore)(nil)

// ConnectMongo dials the database and prepares the collections.
func ConnectMongo(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("playerdb: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("playerdb: ping: %w", err)
	}
	db := client.Database(database)
	return &MongoStore{
		client:     client,
		characters: db.Collection(charactersCollection),
		accounts:   db.Collection(accountsCollection),
	}, nil
}

func (s *MongoStore) SaveCharacter(name string, permission int, components map[string][]byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	char := Character{
		Name:       name,
		Permission: permission,
		Components: components,
		SavedAt:    time.Now().UTC(),
	}
	_, err := s.characters.ReplaceOne(ctx,
		bson.M{"_id": name}, char, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("playerdb: save character %q: %w", name, err)
	}
	return nil
}

func (s *MongoStore) LoadCharacter(ctx context.Context, name string) (Character, bool, error) {
	var char Character
	err := s.characters.FindOne(ctx, bson.M{"_id": name}).Decode(&char)
	if err == mongo.ErrNoDocuments {
		return Character{}, false, nil
	}
	if err != nil {
		return Character{}, false, fmt.Errorf("playerdb: load character %q: %w", name, err)
	}
	return char, true, nil
}

func (s *MongoStore) UpsertAccount(ctx context.Context, account Account) error {
	_, err := s.accounts.ReplaceOne(ctx,
		bson.M{"_id": account.ID}, account, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("playerdb: upsert account %q: %w", account.Username, err)
	}
	return nil
}

func (s *MongoStore) FindAccount(ctx context.Context, username string) (Account, bool, error) {
	var account Account
	err := s.accounts.FindOne(ctx, bson.M{"username": username}).Decode(&account)
	if err == mongo.ErrNoDocuments {
		return Account{}, false, nil
	}
	if err != nil {
		return Account{}, false, fmt.Errorf("playerdb: find account %q: %w", username, err)
	}
	return account, true, nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
