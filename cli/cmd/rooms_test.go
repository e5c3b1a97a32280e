package cmd

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BioHazard786/Warpcall/cli/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchRooms(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rooms", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"capacity":2,"rooms":[{"id":"amber-wren-harp","members":["a"],"capacity":2}]}`))
	}))
	defer srv.Close()

	list, err := fetchRooms(context.Background(), &config.Config{RoomsURL: srv.URL + "/rooms"})
	require.NoError(t, err)
	assert.Equal(t, 2, list.Capacity)
	require.Len(t, list.Rooms, 1)
	assert.Equal(t, "amber-wren-harp", list.Rooms[0].ID)
}

func TestFetchRooms_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := fetchRooms(context.Background(), &config.Config{RoomsURL: srv.URL + "/rooms"})
	assert.ErrorContains(t, err, "404")
}

func TestPickRoomName_FallsBackWithoutServer(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	name := pickRoomName(context.Background(), &config.Config{RoomsURL: srv.URL + "/rooms"})
	assert.Regexp(t, `^[a-z]+-[a-z]+-[a-z]+$`, name)
}

func TestDisplayName_FlagWins(t *testing.T) {
	flagName = "alice"
	t.Cleanup(func() { flagName = "" })
	assert.Equal(t, "alice", displayName())
}
