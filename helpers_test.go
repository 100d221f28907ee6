package goOTP

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	testEmail    = "alice@example.com"
	testPassword = "correct-horse-battery"
)

func newTestRedis(t testing.TB) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type captureDeliverer struct {
	mu   sync.Mutex
	sent []Delivery
	err  error
}

func (d *captureDeliverer) Send(_ context.Context, msg Delivery) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, msg)
	return d.err
}

func (d *captureDeliverer) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sent)
}

func (d *captureDeliverer) Last(t testing.TB) Delivery {
	t.Helper()

	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.sent) == 0 {
		t.Fatal("expected at least one delivery")
	}
	return d.sent[len(d.sent)-1]
}

type mockCredentialStore struct {
	mu      sync.Mutex
	byID    map[string]Identity
	byKey   map[string]string
	findErr error
	creates int
	updates int
}

func newMockCredentialStore() *mockCredentialStore {
	return &mockCredentialStore{
		byID:  map[string]Identity{},
		byKey: map[string]string{},
	}
}

func mockKey(role Role, key string) string {
	return string(role) + "\x00" + key
}

func (s *mockCredentialStore) CreateIdentity(_ context.Context, in NewIdentity) (Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.creates++
	k := mockKey(in.Role, in.EmailOrUsername)
	if _, exists := s.byKey[k]; exists {
		return Identity{}, ErrDuplicateIdentity
	}
	identity := Identity{
		ID:              uuid.NewString(),
		EmailOrUsername: in.EmailOrUsername,
		PasswordHash:    in.PasswordHash,
		Role:            in.Role,
		FirstName:       in.FirstName,
		LastName:        in.LastName,
		CreatedAt:       in.CreatedAt,
	}
	s.byID[identity.ID] = identity
	s.byKey[k] = identity.ID
	return identity, nil
}

func (s *mockCredentialStore) FindByEmailOrUsername(_ context.Context, role Role, key string) (Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.findErr != nil {
		return Identity{}, s.findErr
	}
	id, ok := s.byKey[mockKey(role, key)]
	if !ok {
		return Identity{}, ErrIdentityNotFound
	}
	return s.byID[id], nil
}

func (s *mockCredentialStore) UpdatePasswordHash(_ context.Context, id string, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity, ok := s.byID[id]
	if !ok {
		return ErrIdentityNotFound
	}
	s.updates++
	identity.PasswordHash = hash
	s.byID[id] = identity
	return nil
}

func (s *mockCredentialStore) get(t testing.TB, role Role, key string) Identity {
	t.Helper()

	identity, err := s.FindByEmailOrUsername(context.Background(), role, key)
	if err != nil {
		t.Fatalf("identity %s/%s not found: %v", role, key, err)
	}
	return identity
}

type testEnv struct {
	engine    *Engine
	mr        *miniredis.Miniredis
	rdb       *redis.Client
	clock     *fakeClock
	deliverer *captureDeliverer
	creds     *mockCredentialStore
	sink      *captureSink
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.OTP.Pepper = []byte("0123456789abcdef0123456789abcdef")
	cfg.Session.PrivateKey = []byte(strings.Repeat("k", 32))
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	return cfg
}

func newTestEnv(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	mr, rdb := newTestRedis(t)
	env := &testEnv{
		mr:        mr,
		rdb:       rdb,
		clock:     newFakeClock(),
		deliverer: &captureDeliverer{},
		creds:     newMockCredentialStore(),
		sink:      newCaptureSink(256),
	}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithCredentialStore(env.creds).
		WithDeliverer(env.deliverer).
		WithAuditSink(env.sink).
		WithClock(env.clock).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	env.engine = engine

	t.Cleanup(func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	})
	return env
}

// fixedCodes makes the engine hand out codes in order.
func (env *testEnv) fixedCodes(codes ...string) {
	var mu sync.Mutex
	env.engine.newCode = func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		code := codes[0]
		if len(codes) > 1 {
			codes = codes[1:]
		}
		return code, nil
	}
}

func (env *testEnv) signupRequest() SignupRequest {
	return SignupRequest{
		Email:     testEmail,
		FirstName: "Alice",
		LastName:  "Liddell",
		Password:  testPassword,
	}
}

// registerUser runs a complete signup and returns the created identity.
func (env *testEnv) registerUser(t *testing.T, email string) SignupResult {
	t.Helper()

	ctx := context.Background()
	req := env.signupRequest()
	req.Email = email
	if _, err := env.engine.RequestSignupCode(ctx, req); err != nil {
		t.Fatalf("RequestSignupCode failed: %v", err)
	}
	code := env.deliverer.Last(t).Code
	result, err := env.engine.VerifySignupCode(ctx, email, code)
	if err != nil {
		t.Fatalf("VerifySignupCode failed: %v", err)
	}
	return result
}

type captureSink struct {
	events chan AuditEvent
}

func newCaptureSink(buffer int) *captureSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &captureSink{
		events: make(chan AuditEvent, buffer),
	}
}

func (s *captureSink) Emit(ctx context.Context, event AuditEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

// drain returns every event delivered so far.
func (s *captureSink) drain() []AuditEvent {
	var out []AuditEvent
	for {
		select {
		case ev := <-s.events:
			out = append(out, ev)
		default:
			return out
		}
	}
}
