package credstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	goOTP "github.com/MrEthical07/goOTP"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	DefaultCollection = "identities"
	uniqueIndexName   = "role_key_unique"
)

var (
	ErrFailedToConnect   = errors.New("credstore: failed to connect to mongo")
	ErrHealthcheckFailed = errors.New("credstore: mongo healthcheck failed")
)

// MongoConfig holds connection settings for Connect.
type MongoConfig struct {
	ConnectionURL   string
	Database        string
	Collection      string
	ConnectTimeout  time.Duration
	MaxPoolSize     uint64
	MinPoolSize     uint64
	MaxConnIdleTime time.Duration
	RetryAttempts   int
	RetryInterval   time.Duration
}

// Connect dials MongoDB, retrying until a ping succeeds or the attempts run
// out.
func Connect(ctx context.Context, cfg MongoConfig) (*mongo.Client, error) {
	attempts := cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		client, err := mongo.Connect(
			options.Client().
				ApplyURI(cfg.ConnectionURL).
				SetConnectTimeout(cfg.ConnectTimeout).
				SetMaxPoolSize(cfg.MaxPoolSize).
				SetMinPoolSize(cfg.MinPoolSize).
				SetMaxConnIdleTime(cfg.MaxConnIdleTime).
				SetRetryWrites(true).
				SetRetryReads(true),
		)
		if err == nil {
			if err = client.Ping(ctx, nil); err == nil {
				return client, nil
			}
			_ = client.Disconnect(ctx)
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrFailedToConnect, ctx.Err())
		case <-time.After(cfg.RetryInterval):
		}
	}

	return nil, errors.Join(ErrFailedToConnect, lastErr)
}

// Healthcheck returns a ping probe suitable for readiness endpoints.
func Healthcheck(client *mongo.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := client.Ping(ctx, nil); err != nil {
			return errors.Join(ErrHealthcheckFailed, err)
		}
		return nil
	}
}

type identityDoc struct {
	ID           string    `bson:"_id"`
	Key          string    `bson:"key"`
	Role         string    `bson:"role"`
	PasswordHash string    `bson:"password_hash"`
	FirstName    string    `bson:"first_name,omitempty"`
	LastName     string    `bson:"last_name,omitempty"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

func (d identityDoc) identity() goOTP.Identity {
	return goOTP.Identity{
		ID:              d.ID,
		EmailOrUsername: d.Key,
		PasswordHash:    d.PasswordHash,
		Role:            goOTP.Role(d.Role),
		FirstName:       d.FirstName,
		LastName:        d.LastName,
		CreatedAt:       d.CreatedAt,
	}
}

// Mongo stores identities in one collection keyed by a UUID _id.
type Mongo struct {
	coll *mongo.Collection
	now  func() time.Time
}

func NewMongo(db *mongo.Database, collection string) *Mongo {
	if collection == "" {
		collection = DefaultCollection
	}
	return &Mongo{
		coll: db.Collection(collection),
		now:  time.Now,
	}
}

// EnsureIndexes creates the unique (role, key) index. It is idempotent.
func (s *Mongo) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "role", Value: 1}, {Key: "key", Value: 1}},
		Options: options.Index().SetUnique(true).SetName(uniqueIndexName),
	})
	if err != nil {
		return fmt.Errorf("credstore: create index: %w", err)
	}
	return nil
}

func (s *Mongo) CreateIdentity(ctx context.Context, in goOTP.NewIdentity) (goOTP.Identity, error) {
	if !in.Role.Valid() || in.EmailOrUsername == "" {
		return goOTP.Identity{}, fmt.Errorf("credstore: invalid identity role=%q", in.Role)
	}

	createdAt := in.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now().UTC()
	}
	doc := identityDoc{
		ID:           uuid.NewString(),
		Key:          in.EmailOrUsername,
		Role:         string(in.Role),
		PasswordHash: in.PasswordHash,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
	}

	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return goOTP.Identity{}, goOTP.ErrDuplicateIdentity
		}
		return goOTP.Identity{}, fmt.Errorf("credstore: insert identity: %w", err)
	}
	return doc.identity(), nil
}

func (s *Mongo) FindByEmailOrUsername(ctx context.Context, role goOTP.Role, key string) (goOTP.Identity, error) {
	var doc identityDoc
	err := s.coll.FindOne(ctx, bson.D{{Key: "role", Value: string(role)}, {Key: "key", Value: key}}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return goOTP.Identity{}, goOTP.ErrIdentityNotFound
		}
		return goOTP.Identity{}, fmt.Errorf("credstore: find identity: %w", err)
	}
	return doc.identity(), nil
}

func (s *Mongo) UpdatePasswordHash(ctx context.Context, id string, hash string) error {
	res, err := s.coll.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: id}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "password_hash", Value: hash},
			{Key: "updated_at", Value: s.now().UTC()},
		}}},
	)
	if err != nil {
		return fmt.Errorf("credstore: update password: %w", err)
	}
	if res.MatchedCount == 0 {
		return goOTP.ErrIdentityNotFound
	}
	return nil
}
