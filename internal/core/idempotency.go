package core

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	gocache "github.com/patrickmn/go-cache"
)

// fingerprint hashes the canonical JSON of a request payload. kind keeps an
// individual and a group payload from ever sharing a fingerprint.
func fingerprint(kind Source, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("fingerprint payload: %w", err)
	}
	h := sha256.New()
	h.Write([]byte(kind))
	h.Write([]byte{0})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// replay returns the stored result for key. Found is false when the key has
// never been committed. A key reused with a different payload is an error.
func (s *Service) replay(ctx context.Context, key, fp string) (*RegistrationResult, bool, error) {
	var rec *IdempotencyRecord
	if v, ok := s.idem.Get(key); ok {
		rec = v.(*IdempotencyRecord)
	} else {
		stored, err := s.store.GetIdempotencyRecord(ctx, key)
		if err != nil {
			if KindOf(err) == KindNotFound {
				return nil, false, nil
			}
			return nil, false, Internal("idempotency lookup", err)
		}
		rec = stored
		s.idem.Set(key, rec, gocache.DefaultExpiration)
	}

	res, err := replayRecord(key, fp, rec)
	if err != nil {
		return nil, false, err
	}
	return res, true, nil
}

// replayInTx is replay against the transaction's own view of the store. A
// caller that lost the race for key finds the winner's record here on its
// first attempt after the winner commits.
func replayInTx(ctx context.Context, q Queries, key, fp string) (*RegistrationResult, bool, error) {
	rec, err := q.GetIdempotencyRecord(ctx, key)
	if err != nil {
		if KindOf(err) == KindNotFound {
			return nil, false, nil
		}
		return nil, false, err
	}
	res, err := replayRecord(key, fp, rec)
	if err != nil {
		return nil, false, err
	}
	return res, true, nil
}

func replayRecord(key, fp string, rec *IdempotencyRecord) (*RegistrationResult, error) {
	if rec.Fingerprint != fp {
		return nil, &Error{
			Kind:    KindIdempotencyMismatch,
			Op:      "idempotency check",
			Message: fmt.Sprintf("idempotency key %q was used with a different payload", key),
		}
	}
	res := rec.Result
	res.Replayed = true
	return &res, nil
}

func (s *Service) remember(key, fp string, res *RegistrationResult) {
	s.idem.Set(key, &IdempotencyRecord{Key: key, Fingerprint: fp, Result: *res, CreatedAt: s.now()}, gocache.DefaultExpiration)
}
