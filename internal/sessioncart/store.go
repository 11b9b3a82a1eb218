package sessioncart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	pkgerrors "github.com/lucasmartinez/tienda-backend/pkg/errors"
	"github.com/lucasmartinez/tienda-backend/pkg/redis"
)

type keyValueStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	SessionKey(sessionID string) string
	UserSessionKey(userID string) string
}

// Store persists session carts in redis as one JSON blob per browser
// session. A missing key reads back as an empty cart.
type Store struct {
	kv  keyValueStore
	ttl time.Duration
}

// NewStore builds a Store with the given blob TTL.
func NewStore(kv keyValueStore, ttl time.Duration) (*Store, error) {
	if kv == nil {
		return nil, fmt.Errorf("key-value store required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("ttl must be positive")
	}
	return &Store{kv: kv, ttl: ttl}, nil
}

// Load reads the cart for a browser session, returning an empty cart when
// none was saved yet.
func (s *Store) Load(ctx context.Context, sessionID string) (*Cart, error) {
	if sessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id required")
	}
	raw, err := s.kv.Get(ctx, s.kv.SessionKey(sessionID))
	if errors.Is(err, redis.Nil) {
		return New(), nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading session cart")
	}
	var cart Cart
	if err := json.Unmarshal([]byte(raw), &cart); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decoding session cart")
	}
	cart.ensure()
	return &cart, nil
}

// Save writes the cart blob back, refreshing the session TTL.
func (s *Store) Save(ctx context.Context, sessionID string, cart *Cart) error {
	if sessionID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "session id required")
	}
	if cart == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "cart required")
	}
	payload, err := json.Marshal(cart)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encoding session cart")
	}
	if err := s.kv.Set(ctx, s.kv.SessionKey(sessionID), string(payload), s.ttl); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "saving session cart")
	}
	return nil
}

// BindUser records which browser session currently belongs to a user, so
// payment confirmation can locate and drop the session cart without a
// request context.
func (s *Store) BindUser(ctx context.Context, userID uint64, sessionID string) error {
	if userID == 0 || sessionID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id and session id required")
	}
	key := s.kv.UserSessionKey(strconv.FormatUint(userID, 10))
	if err := s.kv.Set(ctx, key, sessionID, s.ttl); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "binding user session")
	}
	return nil
}

// DropForUser removes the session cart of the user's last bound browser
// session. A user with no binding is a no-op.
func (s *Store) DropForUser(ctx context.Context, userID uint64) error {
	if userID == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	key := s.kv.UserSessionKey(strconv.FormatUint(userID, 10))
	sessionID, err := s.kv.Get(ctx, key)
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolving user session")
	}
	if err := s.kv.Del(ctx, s.kv.SessionKey(sessionID), key); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "dropping user session cart")
	}
	return nil
}

// Drop removes the session cart blob entirely.
func (s *Store) Drop(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "session id required")
	}
	if err := s.kv.Del(ctx, s.kv.SessionKey(sessionID)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "dropping session cart")
	}
	return nil
}
