package challenge

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/twostep/delivery"
)

const (
	recordVersionV1  = 1
	pendingVersionV1 = 1
	recordSize       = 1 + 1 + 1 + 8 + 32

	// Keys outlive their logical expiry briefly so that a late attempt is
	// reported as expired rather than not found.
	expiryGrace = time.Minute
)

// ErrBackend wraps Redis transport failures.
var ErrBackend = errors.New("challenge: store unavailable")

// consumeCodeLua checks and deletes a code record in one step.
// KEYS[1] = record key
// ARGV[1] = code digest (32 bytes)
// ARGV[2] = expected purpose byte
// ARGV[3] = now, unix milliseconds
//
// Layout: version(1) channel(1) purpose(1) expiresAt ms(8 big-endian) digest(32)
var consumeCodeLua = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
  return {err='not_found'}
end
if string.len(data) ~= 43 or string.byte(data, 1) ~= 1 then
  redis.call('DEL', KEYS[1])
  return {err='not_found'}
end

local expiresAt = 0
for i = 4, 11 do
  expiresAt = expiresAt * 256 + string.byte(data, i)
end
if tonumber(ARGV[3]) >= expiresAt then
  redis.call('DEL', KEYS[1])
  return {err='expired'}
end

if string.byte(data, 3) ~= tonumber(ARGV[2]) or string.sub(data, 12, 43) ~= ARGV[1] then
  return {err='code_mismatch'}
end

redis.call('DEL', KEYS[1])
return 'ok'
`)

// RedisStore keeps challenges in Redis so that every instance behind a load
// balancer sees the same codes and pending logins.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "twostep"
	}
	return &RedisStore{redis: client, prefix: prefix}
}

func (s *RedisStore) codeKey(key string) string { return s.prefix + ":code:" + key }
func (s *RedisStore) loginKey(id string) string { return s.prefix + ":login:" + id }

func (s *RedisStore) Put(ctx context.Context, key string, rec Record, ttl time.Duration) error {
	encoded, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.codeKey(key), encoded, ttl+expiryGrace).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return nil
}

func (s *RedisStore) Consume(ctx context.Context, key string, purpose delivery.Purpose, digest [32]byte, now time.Time) error {
	err := consumeCodeLua.Run(ctx, s.redis,
		[]string{s.codeKey(key)},
		string(digest[:]),
		purposeByte(purpose),
		now.UnixMilli(),
	).Err()
	if err == nil {
		return nil
	}

	switch strings.TrimPrefix(err.Error(), "ERR ") {
	case "not_found":
		return ErrChallengeNotFound
	case "expired":
		return ErrChallengeExpired
	case "code_mismatch":
		return ErrCodeMismatch
	default:
		return fmt.Errorf("%w: %v", ErrBackend, err)
	}
}

func (s *RedisStore) PutPending(ctx context.Context, p PendingLogin, ttl time.Duration) error {
	encoded, err := encodePending(p)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.loginKey(p.ID), encoded, ttl+expiryGrace).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return nil
}

func (s *RedisStore) Pending(ctx context.Context, id string, now time.Time) (*PendingLogin, error) {
	data, err := s.redis.Get(ctx, s.loginKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrChallengeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackend, err)
	}

	p, err := decodePending(data)
	if err != nil {
		_ = s.redis.Del(ctx, s.loginKey(id)).Err()
		return nil, ErrChallengeNotFound
	}
	p.ID = id
	if !now.Before(p.ExpiresAt) {
		_ = s.redis.Del(ctx, s.loginKey(id)).Err()
		return nil, ErrChallengeExpired
	}
	return p, nil
}

func (s *RedisStore) DeletePending(ctx context.Context, id string) (bool, error) {
	n, err := s.redis.Del(ctx, s.loginKey(id)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return n > 0, nil
}

func purposeByte(p delivery.Purpose) int {
	if p == delivery.PurposeLogin {
		return 2
	}
	return 1
}

func encodeRecord(rec Record) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, recordSize))
	buf.WriteByte(recordVersionV1)
	buf.WriteByte(byte(rec.Channel))
	buf.WriteByte(byte(purposeByte(rec.Purpose)))
	if err := binary.Write(buf, binary.BigEndian, rec.ExpiresAt.UnixMilli()); err != nil {
		return nil, err
	}
	buf.Write(rec.Digest[:])
	return buf.Bytes(), nil
}

func encodePending(p PendingLogin) ([]byte, error) {
	if len(p.Method) > 255 {
		return nil, errors.New("challenge: pending method too long")
	}
	if len(p.Subject) > 65535 {
		return nil, errors.New("challenge: pending subject too long")
	}

	var buf bytes.Buffer
	buf.WriteByte(pendingVersionV1)
	if err := binary.Write(&buf, binary.BigEndian, p.ExpiresAt.UnixMilli()); err != nil {
		return nil, err
	}
	buf.WriteByte(byte(len(p.Method)))
	buf.WriteString(p.Method)
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(p.Subject))); err != nil {
		return nil, err
	}
	buf.WriteString(p.Subject)
	return buf.Bytes(), nil
}

func decodePending(data []byte) (*PendingLogin, error) {
	r := bytes.NewReader(data)

	version, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != pendingVersionV1 {
		return nil, errors.New("challenge: unknown pending version")
	}

	var expiresAt int64
	if err := binary.Read(r, binary.BigEndian, &expiresAt); err != nil {
		return nil, err
	}

	methodLen, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	method := make([]byte, methodLen)
	if _, err := io.ReadFull(r, method); err != nil {
		return nil, err
	}

	var subjectLen uint16
	if err := binary.Read(r, binary.BigEndian, &subjectLen); err != nil {
		return nil, err
	}
	subject := make([]byte, subjectLen)
	if _, err := io.ReadFull(r, subject); err != nil {
		return nil, err
	}

	return &PendingLogin{
		Subject:   string(subject),
		Method:    string(method),
		ExpiresAt: time.UnixMilli(expiresAt),
	}, nil
}
