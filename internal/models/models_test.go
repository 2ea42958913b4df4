package models

import (
	"encoding/json"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatMessageLessBreaksTiesByID(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	msgs := []ChatMessage{
		{ID: 9, CreatedAt: ts},
		{ID: 3, CreatedAt: ts.Add(time.Second)},
		{ID: 4, CreatedAt: ts},
		{ID: 1, CreatedAt: ts.Add(-time.Second)},
	}

	for i := 0; i < 3; i++ {
		sort.Slice(msgs, func(a, b int) bool { return msgs[a].Less(msgs[b]) })
		ids := []int{msgs[0].ID, msgs[1].ID, msgs[2].ID, msgs[3].ID}
		require.Equal(t, []int{1, 4, 9, 3}, ids)
	}

	a := ChatMessage{ID: 1, CreatedAt: ts}
	b := ChatMessage{ID: 2, CreatedAt: ts}
	assert.True(t, a.Less(b))
	assert.False(t, b.Less(a))
	assert.False(t, a.Less(a))
}

func TestDeriveConnectionStatus(t *testing.T) {
	pending := &Connection{ID: 1, RequesterID: 1, AddresseeID: 2, State: StatePending}

	assert.Equal(t, StatusNone, DeriveConnectionStatus(nil, 1))
	assert.Equal(t, StatusPending, DeriveConnectionStatus(pending, 1))
	assert.Equal(t, StatusReceived, DeriveConnectionStatus(pending, 2))

	for state, want := range map[ConnectionState]ConnectionStatus{
		StateAccepted:  StatusAccepted,
		StateDeclined:  StatusDeclined,
		StateBlocked:   StatusBlocked,
		StateCancelled: StatusNone,
	} {
		rec := &Connection{RequesterID: 1, AddresseeID: 2, State: state}
		assert.Equal(t, want, DeriveConnectionStatus(rec, 1), state)
		assert.Equal(t, want, DeriveConnectionStatus(rec, 2), state)
	}
}

func TestSummarizeConnectionsPrefersBlocked(t *testing.T) {
	records := []Connection{
		{ID: 1, RequesterID: 1, AddresseeID: 2, Type: ConnectionFriend, State: StateAccepted},
		{ID: 2, RequesterID: 2, AddresseeID: 1, Type: ConnectionCollaborate, State: StateBlocked},
		{ID: 3, RequesterID: 1, AddresseeID: 2, Type: ConnectionFollow, State: StateCancelled},
	}

	view := SummarizeConnections(records, 1)
	assert.Equal(t, StatusBlocked, view.Status)
	assert.Equal(t, ConnectionCollaborate, view.Type)
	assert.False(t, view.IsRequester)
	require.NotNil(t, view.ConnectionID)
	assert.Equal(t, 2, *view.ConnectionID)

	assert.Equal(t, StatusNone, SummarizeConnections(records[2:], 1).Status)
}

func TestConnectionStatusJSON(t *testing.T) {
	raw, err := json.Marshal(ConnectionView{Status: StatusReceived})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"status":"received"`)

	var view ConnectionView
	require.NoError(t, json.Unmarshal([]byte(`{"status":"accepted"}`), &view))
	assert.Equal(t, StatusAccepted, view.Status)

	assert.Error(t, json.Unmarshal([]byte(`{"status":"friendly"}`), &view))
}

func TestMetadataScan(t *testing.T) {
	var m Metadata
	require.NoError(t, m.Scan([]byte(`{"lang":"go"}`)))
	assert.Equal(t, "go", m["lang"])

	require.NoError(t, m.Scan(nil))
	assert.Empty(t, m)

	val, err := Metadata(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, "{}", val)
}
