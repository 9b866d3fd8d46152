package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/scythe504/voting-rooms/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorExposesCounters(t *testing.T) {
	c := metrics.New()
	c.EventReceived("join-room")
	c.EventReceived("join-room")
	c.Rejected("room-locked")
	c.RoundRevealed()
	c.SetRooms(3)
	c.SetMembers(7)
	c.SetConnections(5)

	count, err := testutil.GatherAndCount(c.Registry(),
		"voting_rooms_events_received_total", "voting_rooms_rooms_active")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `voting_rooms_events_received_total{event="join-room"} 2`)
	assert.Contains(t, string(body), `voting_rooms_rejections_total{kind="room-locked"} 1`)
	assert.Contains(t, string(body), "voting_rooms_members_active 7")
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *metrics.Collector
	assert.NotPanics(t, func() {
		c.EventReceived("x")
		c.Rejected("y")
		c.RoundRevealed()
		c.SetRooms(1)
		c.SetMembers(1)
		c.SetConnections(1)
	})
}
