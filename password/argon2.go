package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTime        uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	phcAlgorithm          = "argon2id"
)

var (
	// ErrEmptyPassword is returned by Hash for a zero-length password.
	ErrEmptyPassword = errors.New("password is empty")
	// ErrMalformedHash is returned when a stored hash is not a valid argon2id PHC string.
	ErrMalformedHash = errors.New("malformed password hash")
)

// Config holds Argon2id cost parameters.
type Config struct {
	Memory      uint32 // KiB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Hasher produces and checks argon2id PHC hashes. It is safe for concurrent use.
type Hasher struct {
	cfg  Config
	rand io.Reader
}

type phc struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

// New validates cfg and returns a Hasher that draws salts from crypto/rand.
func New(cfg Config) (*Hasher, error) {
	return NewWithRand(cfg, rand.Reader)
}

// NewWithRand is New with an explicit salt source.
func NewWithRand(cfg Config, r io.Reader) (*Hasher, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if r == nil {
		r = rand.Reader
	}
	return &Hasher{cfg: cfg, rand: r}, nil
}

// Hash derives a fresh salted hash of plain.
func (h *Hasher) Hash(plain string) (string, error) {
	if plain == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, h.cfg.SaltLength)
	if _, err := io.ReadFull(h.rand, salt); err != nil {
		return "", fmt.Errorf("password salt: %w", err)
	}

	key := argon2.IDKey([]byte(plain), salt, h.cfg.Time, h.cfg.Memory, h.cfg.Parallelism, h.cfg.KeyLength)

	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		phcAlgorithm,
		argon2.Version,
		h.cfg.Memory,
		h.cfg.Time,
		h.cfg.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether plain matches encoded. A malformed hash is an error,
// a mismatch is not.
func (h *Hasher) Verify(plain, encoded string) (bool, error) {
	parsed, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}

	key := argon2.IDKey([]byte(plain), parsed.salt, parsed.time, parsed.memory, parsed.parallelism, uint32(len(parsed.key)))
	return subtle.ConstantTimeCompare(key, parsed.key) == 1, nil
}

// NeedsRehash reports whether encoded was produced with weaker parameters
// than the Hasher's current configuration.
func (h *Hasher) NeedsRehash(encoded string) (bool, error) {
	parsed, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}

	return parsed.memory < h.cfg.Memory ||
		parsed.time < h.cfg.Time ||
		parsed.parallelism < h.cfg.Parallelism ||
		uint32(len(parsed.key)) != h.cfg.KeyLength, nil
}

func parsePHC(encoded string) (*phc, error) {
	fields := strings.Split(encoded, "$")
	if len(fields) != 6 || fields[0] != "" || fields[1] != phcAlgorithm {
		return nil, ErrMalformedHash
	}

	if fields[2] != "v="+strconv.Itoa(argon2.Version) {
		return nil, fmt.Errorf("%w: unsupported version %q", ErrMalformedHash, fields[2])
	}

	out := &phc{}
	seen := 0
	for _, param := range strings.Split(fields[3], ",") {
		name, value, ok := strings.Cut(param, "=")
		if !ok {
			return nil, ErrMalformedHash
		}
		n, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return nil, ErrMalformedHash
		}
		switch name {
		case "m":
			if uint32(n) < minMemoryKB {
				return nil, ErrMalformedHash
			}
			out.memory = uint32(n)
		case "t":
			if uint32(n) < minTime {
				return nil, ErrMalformedHash
			}
			out.time = uint32(n)
		case "p":
			if n < uint64(minParallelism) || n > 255 {
				return nil, ErrMalformedHash
			}
			out.parallelism = uint8(n)
		default:
			return nil, ErrMalformedHash
		}
		seen++
	}
	if seen != 3 {
		return nil, ErrMalformedHash
	}

	var err error
	if out.salt, err = decodeSegment(fields[4]); err != nil || len(out.salt) < int(minSaltLength) {
		return nil, ErrMalformedHash
	}
	if out.key, err = decodeSegment(fields[5]); err != nil || len(out.key) == 0 {
		return nil, ErrMalformedHash
	}

	return out, nil
}

// decodeSegment accepts both padded and unpadded base64; older hashes were
// written with padding.
func decodeSegment(s string) ([]byte, error) {
	if strings.HasSuffix(s, "=") {
		return base64.StdEncoding.DecodeString(s)
	}
	return base64.RawStdEncoding.DecodeString(s)
}

func (c Config) validate() error {
	switch {
	case c.Memory < minMemoryKB:
		return fmt.Errorf("password memory must be >= %d KiB", minMemoryKB)
	case c.Time < minTime:
		return errors.New("password time must be >= 1")
	case c.Parallelism < minParallelism:
		return errors.New("password parallelism must be >= 1")
	case c.SaltLength < minSaltLength:
		return fmt.Errorf("password salt length must be >= %d", minSaltLength)
	case c.KeyLength < minKeyLength:
		return fmt.Errorf("password key length must be >= %d", minKeyLength)
	}
	return nil
}
