package kv

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Verification stores short-lived email verification codes plus the per
// address send reservation that rate limits code requests.
type Verification struct {
	rdb *redis.Client
}

func NewVerification(rdb *redis.Client) *Verification {
	return &Verification{rdb: rdb}
}

func (v *Verification) SetCode(ctx context.Context, email, code string, ttl time.Duration) error {
	return v.rdb.Set(ctx, verifyCodeKey(email), code, ttl).Err()
}

// Code returns the live code for the address, or "" when none is pending.
func (v *Verification) Code(ctx context.Context, email string) (string, error) {
	raw, err := v.rdb.Get(ctx, verifyCodeKey(email)).Result()
	if err == redis.Nil {
		return "", nil
	}
	return raw, err
}

// Delete consumes the code after a successful registration so it cannot be
// replayed.
func (v *Verification) Delete(ctx context.Context, email string) error {
	return v.rdb.Del(ctx, verifyCodeKey(email)).Err()
}

// ReserveSend claims the right to send a code to the address. False means a
// code was sent within the window and the caller should refuse.
func (v *Verification) ReserveSend(ctx context.Context, email string, window time.Duration) (bool, error) {
	return v.rdb.SetNX(ctx, verifySentKey(email), "1", window).Result()
}
