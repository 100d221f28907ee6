package stores

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	verificationRecordVersionV1 = 1

	// version(1) purpose(1) attempts(2) createdAt(8) expiresAt(8) codeHash(32)
	verificationHeaderSize = 52

	issueModeIssue   = "issue"
	issueModeReissue = "reissue"
)

var (
	ErrRecordNotFound     = errors.New("verification record not found")
	ErrCodeMismatch       = errors.New("verification code mismatch")
	ErrAttemptsExhausted  = errors.New("verification attempts exhausted")
	ErrNoPendingRecord    = errors.New("no pending verification record")
	ErrStoreUnavailable   = errors.New("verification store unavailable")
	errMalformedRecord    = errors.New("malformed verification record")
	errUnexpectedScriptRv = errors.New("unexpected issue script reply")
	errContention         = errors.New("verification record contended")
)

const defaultConsumeRetries = 8

// CooldownError reports that a live record for the key was written less than
// the cooldown window ago.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("verification record issued too recently, retry in %s", e.Remaining)
}

// issueVerificationLua performs the cooldown check and the overwrite in one step.
// KEYS[1] = record key
// ARGV[1] = encoded header (52 bytes)
// ARGV[2] = encoded tail (pending profile, may be empty)
// ARGV[3] = now, unix ms
// ARGV[4] = cooldown, ms
// ARGV[5] = key ttl, ms
// ARGV[6] = "issue" | "reissue"
//
// Returns:
//
//	{1, 0}           record written
//	{0, remainingMs} cooldown active, nothing written
//	{2, 0}           reissue requested but no live record exists
var issueVerificationLua = redis.NewScript(`
local function readInt64(s, offset)
  local v = 0
  for i = 0, 7 do
    v = v * 256 + string.byte(s, offset + i)
  end
  return v
end

local current = redis.call('GET', KEYS[1])
local nowMs = tonumber(ARGV[3])
local cooldownMs = tonumber(ARGV[4])
local reissue = ARGV[6] == 'reissue'
local tail = ARGV[2]

local live = false
if current and string.len(current) >= 52 and string.byte(current, 1) == 1 then
  local expiresAt = readInt64(current, 13)
  if nowMs <= expiresAt then
    live = true
    local elapsed = nowMs - readInt64(current, 5)
    if elapsed < 0 then
      return {0, cooldownMs}
    end
    if elapsed < cooldownMs then
      return {0, cooldownMs - elapsed}
    end
    if reissue then
      tail = string.sub(current, 53)
    end
  end
end

if reissue and not live then
  return {2, 0}
end

redis.call('SET', KEYS[1], ARGV[1] .. tail, 'PX', ARGV[5])
return {1, 0}
`)

// PendingProfile is the staged identity carried by a signup record.
type PendingProfile struct {
	FirstName    string
	LastName     string
	PasswordHash string
}

// VerificationRecord is the stored state behind one outstanding code.
// Timestamps are unix milliseconds.
type VerificationRecord struct {
	Purpose           uint8
	AttemptsRemaining uint16
	CreatedAt         int64
	ExpiresAt         int64
	CodeHash          [32]byte
	Profile           *PendingProfile
}

// VerificationStore keeps at most one record per (purpose, email).
type VerificationStore struct {
	redis  redis.UniversalClient
	prefix string

	// consumeRetries bounds optimistic-transaction retries in Consume.
	consumeRetries int
}

func NewVerificationStore(redisClient redis.UniversalClient, prefix string) *VerificationStore {
	if prefix == "" {
		prefix = "gotp:vr"
	}
	return &VerificationStore{
		redis:          redisClient,
		prefix:         prefix,
		consumeRetries: defaultConsumeRetries,
	}
}

func (s *VerificationStore) key(purpose uint8, email string) string {
	return fmt.Sprintf("%s:%d:%s", s.prefix, purpose, email)
}

// Put writes record unless a live record for the same key is still inside
// the cooldown window, in which case a *CooldownError is returned.
func (s *VerificationStore) Put(
	ctx context.Context,
	email string,
	record *VerificationRecord,
	now time.Time,
	cooldown time.Duration,
) error {
	return s.write(ctx, email, record, now, cooldown, issueModeIssue)
}

// Reissue replaces the code of a live record and keeps its pending profile.
// It fails with ErrNoPendingRecord when nothing live exists for the key.
func (s *VerificationStore) Reissue(
	ctx context.Context,
	email string,
	record *VerificationRecord,
	now time.Time,
	cooldown time.Duration,
) error {
	return s.write(ctx, email, record, now, cooldown, issueModeReissue)
}

func (s *VerificationStore) write(
	ctx context.Context,
	email string,
	record *VerificationRecord,
	now time.Time,
	cooldown time.Duration,
	mode string,
) error {
	header := encodeVerificationHeader(record)

	var tail []byte
	if mode == issueModeIssue {
		var err error
		tail, err = encodePendingProfile(record.Profile)
		if err != nil {
			return err
		}
	}

	ttlMs := record.ExpiresAt - now.UnixMilli()
	if ttlMs <= 0 {
		return errors.New("verification record already expired")
	}

	reply, err := issueVerificationLua.Run(
		ctx,
		s.redis,
		[]string{s.key(record.Purpose, email)},
		header,
		tail,
		now.UnixMilli(),
		cooldown.Milliseconds(),
		ttlMs,
		mode,
	).Int64Slice()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(reply) != 2 {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, errUnexpectedScriptRv)
	}

	switch reply[0] {
	case 1:
		return nil
	case 0:
		return &CooldownError{Remaining: time.Duration(reply[1]) * time.Millisecond}
	case 2:
		return ErrNoPendingRecord
	default:
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, errUnexpectedScriptRv)
	}
}

// Consume checks providedHash against the live record for (purpose, email).
// A match deletes the record and returns it. A mismatch spends one attempt.
// Expired and exhausted records are deleted on sight.
func (s *VerificationStore) Consume(
	ctx context.Context,
	purpose uint8,
	email string,
	providedHash [32]byte,
	now time.Time,
) (*VerificationRecord, error) {
	key := s.key(purpose, email)
	nowMs := now.UnixMilli()

	del := func(tx *redis.Tx) error {
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		})
		return err
	}

	for i := 0; i < s.consumeRetries; i++ {
		var matched *VerificationRecord

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					return ErrRecordNotFound
				}
				return err
			}

			record, err := decodeVerificationRecord(data)
			if err != nil || record.Purpose != purpose {
				if err := del(tx); err != nil {
					return err
				}
				return ErrRecordNotFound
			}

			if nowMs > record.ExpiresAt {
				if err := del(tx); err != nil {
					return err
				}
				return ErrRecordNotFound
			}

			if record.AttemptsRemaining == 0 {
				if err := del(tx); err != nil {
					return err
				}
				return ErrAttemptsExhausted
			}

			if subtle.ConstantTimeCompare(record.CodeHash[:], providedHash[:]) != 1 {
				record.AttemptsRemaining--

				ttl, err := tx.PTTL(ctx, key).Result()
				if err != nil {
					return err
				}
				if ttl <= 0 {
					ttl = time.Duration(record.ExpiresAt-nowMs) * time.Millisecond
				}

				updated := append(encodeVerificationHeader(record), data[verificationHeaderSize:]...)
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Set(ctx, key, updated, ttl)
					return nil
				})
				if err != nil {
					return err
				}
				return ErrCodeMismatch
			}

			if err := del(tx); err != nil {
				return err
			}
			matched = record
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, ErrRecordNotFound), errors.Is(err, ErrCodeMismatch), errors.Is(err, ErrAttemptsExhausted):
				return nil, err
			default:
				return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
			}
		}

		return matched, nil
	}

	// Every retry lost the race. The record may still be live, so the caller
	// must not read this as a missing code.
	return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, errContention)
}

// Restore puts a record taken by Consume back under its key with its original
// expiry and attempt budget. It never overwrites a record issued in the
// meantime, and silently does nothing once the record would have expired.
func (s *VerificationStore) Restore(ctx context.Context, email string, record *VerificationRecord, now time.Time) error {
	ttl := time.Duration(record.ExpiresAt-now.UnixMilli()) * time.Millisecond
	if ttl <= 0 {
		return nil
	}

	tail, err := encodePendingProfile(record.Profile)
	if err != nil {
		return err
	}
	data := append(encodeVerificationHeader(record), tail...)

	if err := s.redis.SetNX(ctx, s.key(record.Purpose, email), data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// CheckCooldown reports a *CooldownError when a live record for the key was
// written less than cooldown ago. It reads only; Put still enforces the
// window atomically.
func (s *VerificationStore) CheckCooldown(ctx context.Context, purpose uint8, email string, now time.Time, cooldown time.Duration) error {
	record, err := s.Get(ctx, purpose, email, now)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return nil
		}
		return err
	}

	elapsed := time.Duration(now.UnixMilli()-record.CreatedAt) * time.Millisecond
	if elapsed < 0 {
		return &CooldownError{Remaining: cooldown}
	}
	if elapsed < cooldown {
		return &CooldownError{Remaining: cooldown - elapsed}
	}
	return nil
}

// Get returns the live record without mutating it.
func (s *VerificationStore) Get(ctx context.Context, purpose uint8, email string, now time.Time) (*VerificationRecord, error) {
	data, err := s.redis.Get(ctx, s.key(purpose, email)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	record, err := decodeVerificationRecord(data)
	if err != nil {
		return nil, ErrRecordNotFound
	}
	if now.UnixMilli() > record.ExpiresAt {
		return nil, ErrRecordNotFound
	}
	return record, nil
}

func encodeVerificationHeader(record *VerificationRecord) []byte {
	buf := make([]byte, verificationHeaderSize)
	buf[0] = verificationRecordVersionV1
	buf[1] = record.Purpose
	binary.BigEndian.PutUint16(buf[2:4], record.AttemptsRemaining)
	binary.BigEndian.PutUint64(buf[4:12], uint64(record.CreatedAt))
	binary.BigEndian.PutUint64(buf[12:20], uint64(record.ExpiresAt))
	copy(buf[20:], record.CodeHash[:])
	return buf
}

func encodePendingProfile(profile *PendingProfile) ([]byte, error) {
	if profile == nil {
		return nil, nil
	}

	var buf bytes.Buffer
	for _, field := range []string{profile.FirstName, profile.LastName, profile.PasswordHash} {
		if len(field) > 65535 {
			return nil, errors.New("pending profile field too long")
		}
		if err := binary.Write(&buf, binary.BigEndian, uint16(len(field))); err != nil {
			return nil, err
		}
		buf.WriteString(field)
	}
	return buf.Bytes(), nil
}

func decodeVerificationRecord(data []byte) (*VerificationRecord, error) {
	if len(data) < verificationHeaderSize || data[0] != verificationRecordVersionV1 {
		return nil, errMalformedRecord
	}

	record := &VerificationRecord{
		Purpose:           data[1],
		AttemptsRemaining: binary.BigEndian.Uint16(data[2:4]),
		CreatedAt:         int64(binary.BigEndian.Uint64(data[4:12])),
		ExpiresAt:         int64(binary.BigEndian.Uint64(data[12:20])),
	}
	copy(record.CodeHash[:], data[20:verificationHeaderSize])

	tail := data[verificationHeaderSize:]
	if len(tail) == 0 {
		return record, nil
	}

	reader := bytes.NewReader(tail)
	fields := make([]string, 3)
	for i := range fields {
		var n uint16
		if err := binary.Read(reader, binary.BigEndian, &n); err != nil {
			return nil, errMalformedRecord
		}
		field := make([]byte, n)
		if _, err := io.ReadFull(reader, field); err != nil {
			return nil, errMalformedRecord
		}
		fields[i] = string(field)
	}
	record.Profile = &PendingProfile{
		FirstName:    fields[0],
		LastName:     fields[1],
		PasswordHash: fields[2],
	}

	return record, nil
}
