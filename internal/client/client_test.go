package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collab-service/internal/apperr"
	"collab-service/internal/models"
)

func TestErrorCodeMapsToTypedError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"users are not connected","code":"not_connected"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, "tok").OpenDirect(context.Background(), 2)

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrNotConnected))
	assert.Equal(t, "users are not connected", err.Error())
}

func TestUnknownErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(srv.URL, "tok").ListRooms(context.Background())

	require.Error(t, err)
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "502")
}

func TestPageQueryAndAuthHeader(t *testing.T) {
	var gotPath, gotQuery, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(map[string]any{"messages": []models.ChatMessage{{ID: 1, Content: "a"}, {ID: 2, Content: "b"}}})
	}))
	defer srv.Close()

	msgs, err := New(srv.URL+"/", "tok").Page(context.Background(), 4, 20, 40)

	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "/rooms/4/messages", gotPath)
	assert.Equal(t, "limit=20&offset=40", gotQuery)
	assert.Equal(t, "Bearer tok", gotAuth)
}

func TestMarkReadNoContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, New(srv.URL, "tok").MarkRead(context.Background(), 4))
}

func TestConnectionStatusDecodesEnum(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"received","connection_type":"friend","is_requester":false,"connection_id":5}`))
	}))
	defer srv.Close()

	view, err := New(srv.URL, "tok").ConnectionStatus(context.Background(), 2)

	require.NoError(t, err)
	assert.Equal(t, models.StatusReceived, view.Status)
	require.NotNil(t, view.ConnectionID)
	assert.Equal(t, 5, *view.ConnectionID)
}
