package table1837sdk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientSendsCredentialsAndDecodes(t *testing.T) {
	var gotAuth, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotKey = r.Header.Get("X-Api-Key")
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/v1/86-list/items":
			_ = json.NewEncoder(w).Encode(map[string]any{"items": []map[string]any{{"id": "86-1", "name": "Oysters", "category": "food"}}})
		case r.Method == http.MethodDelete && r.URL.Path == "/v1/86-list/items/86-1":
			w.WriteHeader(http.StatusNoContent)
		case r.URL.Path == "/v1/palette":
			assert.Equal(t, "pour cost", r.URL.Query().Get("q"))
			_ = json.NewEncoder(w).Encode(map[string]any{"commands": []map[string]any{{"id": "view-costs"}}})
		default:
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"code":"not_found","message":"item 86-2: not found"}}`))
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	c := New(srv.URL + "/v1/")
	c.BearerToken = "tok"
	items, err := c.Items(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Oysters", items[0].Name)
	assert.Equal(t, "Bearer tok", gotAuth)

	c.BearerToken = ""
	c.APIKey = "t1837_key"
	require.NoError(t, c.RemoveItem(ctx, "86-1"))
	assert.Equal(t, "t1837_key", gotKey)

	cmds, err := c.Palette(ctx, "pour cost")
	require.NoError(t, err)
	require.Len(t, cmds, 1)

	err = c.RemoveItem(ctx, "86-2")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "not_found", apiErr.Code)
}
