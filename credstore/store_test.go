package credstore

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	goOTP "github.com/MrEthical07/goOTP"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runContract exercises the behavior every CredentialStore must share.
func runContract(t *testing.T, newStore func(t *testing.T) goOTP.CredentialStore) {
	t.Run("create and find", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		created, err := store.CreateIdentity(ctx, goOTP.NewIdentity{
			EmailOrUsername: "alice@example.com",
			PasswordHash:    "hash-1",
			Role:            goOTP.RoleUser,
			FirstName:       "Alice",
			LastName:        "Liddell",
			CreatedAt:       time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)
		_, err = uuid.Parse(created.ID)
		require.NoError(t, err, "ids are UUIDs")

		found, err := store.FindByEmailOrUsername(ctx, goOTP.RoleUser, "alice@example.com")
		require.NoError(t, err)
		assert.Equal(t, created.ID, found.ID)
		assert.Equal(t, "hash-1", found.PasswordHash)
		assert.Equal(t, "Alice", found.FirstName)
		assert.True(t, created.CreatedAt.Equal(found.CreatedAt))
	})

	t.Run("roles partition keys", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		_, err := store.CreateIdentity(ctx, goOTP.NewIdentity{EmailOrUsername: "root", PasswordHash: "h", Role: goOTP.RoleAdmin})
		require.NoError(t, err)

		_, err = store.FindByEmailOrUsername(ctx, goOTP.RoleUser, "root")
		assert.ErrorIs(t, err, goOTP.ErrIdentityNotFound)

		_, err = store.CreateIdentity(ctx, goOTP.NewIdentity{EmailOrUsername: "root", PasswordHash: "h", Role: goOTP.RoleUser})
		assert.NoError(t, err, "the same key may exist once per role")
	})

	t.Run("duplicate", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		in := goOTP.NewIdentity{EmailOrUsername: "bob@example.com", PasswordHash: "h", Role: goOTP.RoleUser}
		_, err := store.CreateIdentity(ctx, in)
		require.NoError(t, err)
		_, err = store.CreateIdentity(ctx, in)
		assert.ErrorIs(t, err, goOTP.ErrDuplicateIdentity)
	})

	t.Run("concurrent create has one winner", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		const callers = 16

		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
			dups int
		)
		wg.Add(callers)
		for i := 0; i < callers; i++ {
			go func() {
				defer wg.Done()
				_, err := store.CreateIdentity(ctx, goOTP.NewIdentity{EmailOrUsername: "race@example.com", PasswordHash: "h", Role: goOTP.RoleUser})
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					wins++
				case assert.ErrorIs(t, err, goOTP.ErrDuplicateIdentity):
					dups++
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, wins)
		assert.Equal(t, callers-1, dups)
	})

	t.Run("update password", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		created, err := store.CreateIdentity(ctx, goOTP.NewIdentity{EmailOrUsername: "carol@example.com", PasswordHash: "old", Role: goOTP.RoleUser})
		require.NoError(t, err)

		require.NoError(t, store.UpdatePasswordHash(ctx, created.ID, "new"))
		found, err := store.FindByEmailOrUsername(ctx, goOTP.RoleUser, "carol@example.com")
		require.NoError(t, err)
		assert.Equal(t, "new", found.PasswordHash)

		assert.ErrorIs(t, store.UpdatePasswordHash(ctx, uuid.NewString(), "x"), goOTP.ErrIdentityNotFound)
	})

	t.Run("invalid role", func(t *testing.T) {
		store := newStore(t)
		_, err := store.CreateIdentity(context.Background(), goOTP.NewIdentity{EmailOrUsername: "x", Role: goOTP.Role("ROOT")})
		assert.Error(t, err)
	})
}

func TestMemoryStore(t *testing.T) {
	runContract(t, func(t *testing.T) goOTP.CredentialStore {
		return NewMemory()
	})
}

func TestMongoStore(t *testing.T) {
	url := os.Getenv("MONGODB_URL")
	if url == "" {
		t.Skip("MONGODB_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := Connect(ctx, MongoConfig{
		ConnectionURL:  url,
		ConnectTimeout: 5 * time.Second,
		RetryAttempts:  3,
		RetryInterval:  time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })
	require.NoError(t, Healthcheck(client)(ctx))

	runContract(t, func(t *testing.T) goOTP.CredentialStore {
		db := client.Database(fmt.Sprintf("gootp_test_%s", uuid.NewString()[:8]))
		t.Cleanup(func() { _ = db.Drop(context.Background()) })

		store := NewMongo(db, "")
		require.NoError(t, store.EnsureIndexes(ctx))
		require.NoError(t, store.EnsureIndexes(ctx), "EnsureIndexes is idempotent")
		return store
	})
}
