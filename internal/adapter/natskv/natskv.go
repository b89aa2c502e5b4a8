// Package natskv implements the cache, agent registry and notification
// store ports on NATS JetStream key-value buckets so several RepairDesk
// instances share one view of agent load.
package natskv

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/RepairDesk/internal/domain"
)

// maxUpdateRetries bounds optimistic-concurrency retries on a hot key.
const maxUpdateRetries = 16

// encodeKey maps an arbitrary identifier onto the KV key alphabet.
func encodeKey(raw string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// isRevisionConflict reports whether err means another writer won a
// Create or Update race.
func isRevisionConflict(err error) bool {
	if errors.Is(err, jetstream.ErrKeyExists) {
		return true
	}
	var apiErr *jetstream.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence
}

// casUpdate reads key, lets mutate rewrite the value and writes it back
// conditioned on the revision it read. A missing key is passed to mutate as
// nil and created. mutate may return nil bytes to skip the write.
func casUpdate(ctx context.Context, kv jetstream.KeyValue, key string, mutate func(current []byte) ([]byte, error)) error {
	for range maxUpdateRetries {
		var (
			current  []byte
			revision uint64
		)
		entry, err := kv.Get(ctx, key)
		switch {
		case err == nil:
			current, revision = entry.Value(), entry.Revision()
		case errors.Is(err, jetstream.ErrKeyNotFound):
		default:
			return fmt.Errorf("kv get %s: %w", key, err)
		}

		next, err := mutate(current)
		if err != nil {
			return err
		}
		if next == nil {
			return nil
		}

		if revision == 0 {
			_, err = kv.Create(ctx, key, next)
		} else {
			_, err = kv.Update(ctx, key, next, revision)
		}
		if err == nil {
			return nil
		}
		if !isRevisionConflict(err) {
			return fmt.Errorf("kv write %s: %w", key, err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return fmt.Errorf("kv write %s: %w: too many concurrent updates", key, domain.ErrConflict)
}
