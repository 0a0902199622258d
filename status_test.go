package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusServerRoutes(t *testing.T) {
	srv := NewStatusServer(
		func() []QueueStatus { return []QueueStatus{{Name: "q1", Capacity: 8, Produced: 3}} },
		func() []string { return []string{"stage1", "stage2"} },
		func() AttitudeSnapshot { return AttitudeSnapshot{TrueHeading: 45, Have: true} },
		func() []DropStatus { return []DropStatus{{Consumer: "frame_sync", Producer: "cam0", Dropped: 2}} },
	)

	ts := httptest.NewServer(srv)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/queues")
	require.NoError(t, err)
	var queues []QueueStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&queues))
	resp.Body.Close()
	require.Len(t, queues, 1)
	require.Equal(t, "q1", queues[0].Name)

	resp, err = http.Get(ts.URL + "/attitude")
	require.NoError(t, err)
	var snap AttitudeSnapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	resp.Body.Close()
	require.True(t, snap.Have)
	require.Equal(t, 45.0, snap.TrueHeading)

	resp, err = http.Get(ts.URL + "/drops")
	require.NoError(t, err)
	var drops []DropStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&drops))
	resp.Body.Close()
	require.Len(t, drops, 1)
	require.Equal(t, uint64(2), drops[0].Dropped)
}

func TestStatusServerAttitudeNilFn(t *testing.T) {
	srv := NewStatusServer(
		func() []QueueStatus { return nil },
		func() []string { return nil },
		nil,
		nil,
	)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/attitude")
	require.NoError(t, err)
	var snap AttitudeSnapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	resp.Body.Close()
	require.False(t, snap.Have)
}
