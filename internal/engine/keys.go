package engine

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"table1837/internal/domain"
	"table1837/internal/engine/auth"
	"table1837/internal/events"
	"table1837/internal/palette"
	"table1837/internal/repo"
)

const apiKeyPrefix = "t1837_"

// CreateAPIKey issues a key for a device or integration. The plaintext key
// is only returned here; the store keeps its hash.
func (e Engine) CreateAPIKey(ctx context.Context, actorID, name string, roles []string, issuer auth.Principal) (string, domain.APIKey, error) {
	if err := e.require(issuer, auth.ManageKeys); err != nil {
		return "", domain.APIKey{}, err
	}
	if strings.TrimSpace(actorID) == "" {
		return "", domain.APIKey{}, errors.New("actor id is required")
	}
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", domain.APIKey{}, err
	}
	plain := apiKeyPrefix + hex.EncodeToString(buf)
	key := domain.APIKey{
		ID:        uuid.NewString(),
		ActorID:   actorID,
		Name:      name,
		Roles:     strings.Join(roles, ","),
		KeyHash:   repo.HashAPIKey(plain),
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertAPIKey(ctx, tx, key); err != nil {
			return err
		}
		_, err := e.Events.Append(ctx, tx, events.APIKeyCreated, "", "api_key", key.ID, issuer.ActorID, events.EventPayload{
			"actor_id": actorID,
			"name":     name,
			"roles":    roles,
		})
		return err
	})
	if err != nil {
		return "", domain.APIKey{}, err
	}
	return plain, key, nil
}

// APIKeys lists issued keys, optionally for one actor. Hashes are blanked.
func (e Engine) APIKeys(ctx context.Context, actorID string, issuer auth.Principal) ([]domain.APIKey, error) {
	if err := e.require(issuer, auth.ManageKeys); err != nil {
		return nil, err
	}
	keys, err := e.Repo.ListAPIKeys(ctx, actorID)
	if err != nil {
		return nil, err
	}
	for i := range keys {
		keys[i].KeyHash = ""
	}
	return keys, nil
}

// RevokeAPIKey deletes a key. Unknown ids return repo.ErrNotFound.
func (e Engine) RevokeAPIKey(ctx context.Context, id string, issuer auth.Principal) error {
	if err := e.require(issuer, auth.ManageKeys); err != nil {
		return err
	}
	return e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.DeleteAPIKey(ctx, tx, id); err != nil {
			return err
		}
		_, err := e.Events.Append(ctx, tx, events.APIKeyRevoked, "", "api_key", id, issuer.ActorID, nil)
		return err
	})
}

// Palette returns the commands visible to the principal matching query,
// most relevant first.
func (e Engine) Palette(p auth.Principal, query string) ([]domain.Command, error) {
	cfg, err := e.cfg()
	if err != nil {
		return nil, err
	}
	return palette.Rank(cfg.Commands, p.PrimaryRole(cfg), query), nil
}

func (e Engine) LatestEvents(ctx context.Context, f repo.EventFilters) ([]domain.Event, error) {
	return e.Repo.LatestEvents(ctx, f)
}
