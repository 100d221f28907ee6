package stores

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const purposeSignup uint8 = 1

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

func hashOf(b byte) [32]byte {
	var h [32]byte
	for i := range h {
		h[i] = b
	}
	return h
}

func newRecord(now time.Time, hash [32]byte, profile *PendingProfile) *VerificationRecord {
	return &VerificationRecord{
		Purpose:           purposeSignup,
		AttemptsRemaining: 5,
		CreatedAt:         now.UnixMilli(),
		ExpiresAt:         now.Add(10 * time.Minute).UnixMilli(),
		CodeHash:          hash,
		Profile:           profile,
	}
}

func TestVerificationStorePutAndConsume(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := NewVerificationStore(rdb, "")
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	profile := &PendingProfile{FirstName: "Ada", LastName: "Lovelace", PasswordHash: "$argon2id$stub"}
	if err := store.Put(ctx, "a@b.com", newRecord(now, hashOf(7), profile), now, time.Minute); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := store.Consume(ctx, purposeSignup, "a@b.com", hashOf(7), now.Add(time.Second))
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if got.Profile == nil || *got.Profile != *profile {
		t.Fatalf("profile round trip mismatch: %+v", got.Profile)
	}

	if _, err := store.Consume(ctx, purposeSignup, "a@b.com", hashOf(7), now.Add(2*time.Second)); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound on replay, got %v", err)
	}
}

func TestVerificationStoreCooldown(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := NewVerificationStore(rdb, "")
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	if err := store.Put(ctx, "a@b.com", newRecord(now, hashOf(1), nil), now, time.Minute); err != nil {
		t.Fatalf("Put: %v", err)
	}

	later := now.Add(20 * time.Second)
	err := store.Put(ctx, "a@b.com", newRecord(later, hashOf(2), nil), later, time.Minute)
	var cooldown *CooldownError
	if !errors.As(err, &cooldown) {
		t.Fatalf("expected CooldownError, got %v", err)
	}
	if cooldown.Remaining != 40*time.Second {
		t.Fatalf("expected 40s remaining, got %s", cooldown.Remaining)
	}

	after := now.Add(61 * time.Second)
	if err := store.Put(ctx, "a@b.com", newRecord(after, hashOf(3), nil), after, time.Minute); err != nil {
		t.Fatalf("Put after cooldown: %v", err)
	}

	if _, err := store.Consume(ctx, purposeSignup, "a@b.com", hashOf(1), after); !errors.Is(err, ErrCodeMismatch) {
		t.Fatalf("superseded code must not verify, got %v", err)
	}
	if _, err := store.Consume(ctx, purposeSignup, "a@b.com", hashOf(3), after); err != nil {
		t.Fatalf("fresh code should verify: %v", err)
	}
}

func TestVerificationStoreClockSkewKeepsFullCooldown(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := NewVerificationStore(rdb, "")
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	if err := store.Put(ctx, "a@b.com", newRecord(now, hashOf(1), nil), now, time.Minute); err != nil {
		t.Fatalf("Put: %v", err)
	}

	earlier := now.Add(-5 * time.Second)
	err := store.Put(ctx, "a@b.com", newRecord(earlier, hashOf(2), nil), earlier, time.Minute)
	var cooldown *CooldownError
	if !errors.As(err, &cooldown) || cooldown.Remaining != time.Minute {
		t.Fatalf("expected full cooldown, got %v", err)
	}
}

func TestVerificationStoreReissueKeepsProfile(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := NewVerificationStore(rdb, "")
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	profile := &PendingProfile{FirstName: "Ada", LastName: "Lovelace", PasswordHash: "hash"}
	if err := store.Put(ctx, "a@b.com", newRecord(now, hashOf(1), profile), now, time.Minute); err != nil {
		t.Fatalf("Put: %v", err)
	}

	later := now.Add(2 * time.Minute)
	if err := store.Reissue(ctx, "a@b.com", newRecord(later, hashOf(9), nil), later, time.Minute); err != nil {
		t.Fatalf("Reissue: %v", err)
	}

	got, err := store.Consume(ctx, purposeSignup, "a@b.com", hashOf(9), later)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if got.Profile == nil || got.Profile.FirstName != "Ada" {
		t.Fatalf("reissue dropped profile: %+v", got.Profile)
	}
}

func TestVerificationStoreReissueWithoutRecord(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := NewVerificationStore(rdb, "")
	now := time.Unix(1_700_000_000, 0)

	err := store.Reissue(context.Background(), "a@b.com", newRecord(now, hashOf(1), nil), now, time.Minute)
	if !errors.Is(err, ErrNoPendingRecord) {
		t.Fatalf("expected ErrNoPendingRecord, got %v", err)
	}
}

func TestVerificationStoreAttempts(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := NewVerificationStore(rdb, "")
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	if err := store.Put(ctx, "a@b.com", newRecord(now, hashOf(1), nil), now, time.Minute); err != nil {
		t.Fatalf("Put: %v", err)
	}

	for i := 0; i < 5; i++ {
		if _, err := store.Consume(ctx, purposeSignup, "a@b.com", hashOf(2), now); !errors.Is(err, ErrCodeMismatch) {
			t.Fatalf("attempt %d: expected mismatch, got %v", i, err)
		}
	}

	rec, err := store.Get(ctx, purposeSignup, "a@b.com", now)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.AttemptsRemaining != 0 {
		t.Fatalf("expected 0 attempts remaining, got %d", rec.AttemptsRemaining)
	}

	if _, err := store.Consume(ctx, purposeSignup, "a@b.com", hashOf(1), now); !errors.Is(err, ErrAttemptsExhausted) {
		t.Fatalf("expected ErrAttemptsExhausted, got %v", err)
	}
	if _, err := store.Consume(ctx, purposeSignup, "a@b.com", hashOf(1), now); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("exhausted record must be deleted, got %v", err)
	}
}

func TestVerificationStoreExpiredRecordIsDeleted(t *testing.T) {
	mr, rdb := newTestRedis(t)
	store := NewVerificationStore(rdb, "")
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	if err := store.Put(ctx, "a@b.com", newRecord(now, hashOf(1), nil), now, time.Minute); err != nil {
		t.Fatalf("Put: %v", err)
	}

	if _, err := store.Consume(ctx, purposeSignup, "a@b.com", hashOf(1), now.Add(11*time.Minute)); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
	if mr.Exists(store.key(purposeSignup, "a@b.com")) {
		t.Fatal("expired record should have been deleted")
	}
}

func TestVerificationStoreConcurrentConsume(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := NewVerificationStore(rdb, "")
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	if err := store.Put(ctx, "a@b.com", newRecord(now, hashOf(1), nil), now, time.Minute); err != nil {
		t.Fatalf("Put: %v", err)
	}

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Consume(ctx, purposeSignup, "a@b.com", hashOf(1), now)
			if err == nil {
				mu.Lock()
				success++
				mu.Unlock()
				return
			}
			if !errors.Is(err, ErrRecordNotFound) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if success != 1 {
		t.Fatalf("expected exactly one successful consume, got %d", success)
	}
}

func TestVerificationStoreUnavailable(t *testing.T) {
	mr, rdb := newTestRedis(t)
	store := NewVerificationStore(rdb, "")
	now := time.Unix(1_700_000_000, 0)
	mr.Close()

	err := store.Put(context.Background(), "a@b.com", newRecord(now, hashOf(1), nil), now, time.Minute)
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestVerificationStoreConsumeContention(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := NewVerificationStore(rdb, "")
	store.consumeRetries = 0
	now := time.Unix(1_700_000_000, 0)

	if err := store.Put(context.Background(), "a@b.com", newRecord(now, hashOf(1), nil), now, time.Minute); err != nil {
		t.Fatalf("Put: %v", err)
	}

	_, err := store.Consume(context.Background(), purposeSignup, "a@b.com", hashOf(1), now)
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if errors.Is(err, ErrRecordNotFound) {
		t.Fatal("contention must not look like a missing record")
	}
	if _, err := store.Get(context.Background(), purposeSignup, "a@b.com", now); err != nil {
		t.Fatalf("record should still be live: %v", err)
	}
}

func TestVerificationStoreRestore(t *testing.T) {
	mr, rdb := newTestRedis(t)
	store := NewVerificationStore(rdb, "")
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	profile := &PendingProfile{FirstName: "Ada", LastName: "Lovelace", PasswordHash: "$argon2id$stub"}
	original := newRecord(now, hashOf(3), profile)
	original.AttemptsRemaining = 2
	if err := store.Put(ctx, "a@b.com", original, now, time.Minute); err != nil {
		t.Fatalf("Put: %v", err)
	}
	taken, err := store.Consume(ctx, purposeSignup, "a@b.com", hashOf(3), now.Add(time.Minute))
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}

	later := now.Add(2 * time.Minute)
	if err := store.Restore(ctx, "a@b.com", taken, later); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if ttl := mr.TTL(store.key(purposeSignup, "a@b.com")); ttl != 8*time.Minute {
		t.Fatalf("expected ttl 8m, got %v", ttl)
	}

	back, err := store.Get(ctx, purposeSignup, "a@b.com", later)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if back.AttemptsRemaining != 2 || back.ExpiresAt != original.ExpiresAt || back.CreatedAt != original.CreatedAt {
		t.Fatalf("restored header changed: %+v", back)
	}
	if back.Profile == nil || *back.Profile != *profile {
		t.Fatalf("restored profile changed: %+v", back.Profile)
	}
	if _, err := store.Consume(ctx, purposeSignup, "a@b.com", hashOf(3), later); err != nil {
		t.Fatalf("restored code should verify: %v", err)
	}
}

func TestVerificationStoreRestoreKeepsNewerRecord(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := NewVerificationStore(rdb, "")
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	old := newRecord(now, hashOf(1), nil)
	if err := store.Put(ctx, "a@b.com", old, now, time.Minute); err != nil {
		t.Fatalf("Put: %v", err)
	}
	taken, err := store.Consume(ctx, purposeSignup, "a@b.com", hashOf(1), now)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}

	later := now.Add(2 * time.Minute)
	if err := store.Put(ctx, "a@b.com", newRecord(later, hashOf(2), nil), later, time.Minute); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := store.Restore(ctx, "a@b.com", taken, later); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	current, err := store.Get(ctx, purposeSignup, "a@b.com", later)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if current.CodeHash != hashOf(2) {
		t.Fatal("restore must not overwrite a newer record")
	}
}

func TestVerificationStoreRestoreSkipsExpired(t *testing.T) {
	mr, rdb := newTestRedis(t)
	store := NewVerificationStore(rdb, "")
	now := time.Unix(1_700_000_000, 0)

	record := newRecord(now, hashOf(1), nil)
	if err := store.Restore(context.Background(), "a@b.com", record, now.Add(11*time.Minute)); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if mr.Exists(store.key(purposeSignup, "a@b.com")) {
		t.Fatal("expired record must not be written back")
	}
}

func TestVerificationStoreCheckCooldown(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := NewVerificationStore(rdb, "")
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	if err := store.CheckCooldown(ctx, purposeSignup, "a@b.com", now, time.Minute); err != nil {
		t.Fatalf("no record should mean no cooldown, got %v", err)
	}
	if err := store.Put(ctx, "a@b.com", newRecord(now, hashOf(1), nil), now, time.Minute); err != nil {
		t.Fatalf("Put: %v", err)
	}

	var cooldown *CooldownError
	err := store.CheckCooldown(ctx, purposeSignup, "a@b.com", now.Add(15*time.Second), time.Minute)
	if !errors.As(err, &cooldown) || cooldown.Remaining != 45*time.Second {
		t.Fatalf("expected 45s cooldown, got %v", err)
	}
	if err := store.CheckCooldown(ctx, purposeSignup, "a@b.com", now.Add(time.Minute), time.Minute); err != nil {
		t.Fatalf("cooldown should have passed, got %v", err)
	}
}

func TestRevocationStore(t *testing.T) {
	mr, rdb := newTestRedis(t)
	store := NewRevocationStore(rdb, "")
	ctx := context.Background()

	if err := store.Revoke(ctx, "jti-1", time.Minute); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	revoked, err := store.IsRevoked(ctx, "jti-1")
	if err != nil || !revoked {
		t.Fatalf("expected jti-1 revoked, got %v %v", revoked, err)
	}

	if err := store.Revoke(ctx, "jti-2", 0); err != nil {
		t.Fatalf("Revoke with zero ttl: %v", err)
	}
	if revoked, _ := store.IsRevoked(ctx, "jti-2"); revoked {
		t.Fatal("zero ttl must not revoke")
	}

	mr.FastForward(2 * time.Minute)
	if revoked, _ := store.IsRevoked(ctx, "jti-1"); revoked {
		t.Fatal("revocation should be pruned after ttl")
	}
}
