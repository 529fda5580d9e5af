package stookalert

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"hubadapters/internal/clock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testFeed = `[
  {"naam": "Utrecht", "waarde": 1},
  {"naam": "Zeeland", "waarde": 0}
]`

func feedServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func TestNew_UnknownProvince(t *testing.T) {
	_, err := New("Atlantis")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownProvince))
}

func TestClient_Refresh(t *testing.T) {
	clk := clock.NewMockClock(time.Date(2021, 10, 15, 9, 0, 0, 0, time.UTC))

	var requestedPath atomic.Value
	server := feedServer(t, func(w http.ResponseWriter, r *http.Request) {
		requestedPath.Store(r.URL.Path)
		fmt.Fprint(w, testFeed)
	})

	tests := []struct {
		province string
		expected int
	}{
		{province: "Utrecht", expected: 1},
		{province: "Zeeland", expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.province, func(t *testing.T) {
			client, err := New(tt.province, WithBaseURL(server.URL+"/"), WithClock(clk))
			require.NoError(t, err)

			require.NoError(t, client.Refresh(context.Background()))
			assert.Equal(t, tt.expected, client.State())
			assert.Equal(t, clk.Now(), client.LastUpdated())
			assert.Equal(t, "/stookalert_20211015.json", requestedPath.Load())
		})
	}
}

func TestClient_RefreshErrorsKeepState(t *testing.T) {
	var fail atomic.Bool
	server := feedServer(t, func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, "maintenance", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, testFeed)
	})

	client, err := New("Utrecht", WithBaseURL(server.URL))
	require.NoError(t, err)
	require.NoError(t, client.Refresh(context.Background()))
	require.Equal(t, 1, client.State())

	fail.Store(true)
	err = client.Refresh(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Equal(t, 1, client.State())
}

func TestClient_RefreshBadPayload(t *testing.T) {
	t.Run("invalid json", func(t *testing.T) {
		server := feedServer(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, "{not json")
		})
		client, err := New("Utrecht", WithBaseURL(server.URL))
		require.NoError(t, err)
		assert.Error(t, client.Refresh(context.Background()))
	})

	t.Run("province missing", func(t *testing.T) {
		server := feedServer(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `[{"naam": "Zeeland", "waarde": 1}]`)
		})
		client, err := New("Utrecht", WithBaseURL(server.URL))
		require.NoError(t, err)

		err = client.Refresh(context.Background())
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrUnknownProvince))
		assert.True(t, client.LastUpdated().IsZero())
	})
}
