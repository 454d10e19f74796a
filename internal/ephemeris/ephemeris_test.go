package ephemeris

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const issJSON = `[{"tle0":"0 ISS (ZARYA)","tle1":"1 25544U 98067A   08264.51782528 -.00002182  00000-0 -11606-4 0  2927","tle2":"2 25544  51.6416 247.4627 0006703 130.5360 325.0288 15.72125391563537","tle_source":"Space-Track.org","norad_cat_id":25544,"updated":"2024-01-01T00:00:00+0000"}]`

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tle/", r.URL.Path)
		assert.Equal(t, "25544", r.URL.Query().Get("norad_cat_id"))
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(issJSON))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, nil)
	tle, err := c.Fetch(context.Background(), 25544)
	require.NoError(t, err)
	assert.Equal(t, "ISS (ZARYA)", tle.Title)
	assert.NoError(t, tle.Validate())
}

func TestFetchRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(issJSON))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, nil)
	_, err := c.Fetch(context.Background(), 25544)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetchErrors(t *testing.T) {
	for _, test := range []struct {
		name   string
		status int
		body   string
		calls  int32
	}{
		{"not found", http.StatusNotFound, `{"detail":"Not found."}`, 1},
		{"empty list", http.StatusOK, `[]`, 1},
		{"bad json", http.StatusOK, `{`, 1},
		{"bad checksum", http.StatusOK, `[{"tle0":"X","tle1":"1 25544U 98067A   08264.51782528 -.00002182  00000-0 -11606-4 0  2920","tle2":"2 25544  51.6416 247.4627 0006703 130.5360 325.0288 15.72125391563537"}]`, 1},
		{"server error", http.StatusInternalServerError, "oops", 2},
	} {
		t.Run(test.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(test.status)
				w.Write([]byte(test.body))
			}))
			defer srv.Close()

			c := New(srv.URL, time.Second, nil)
			c.MaxTries = 2
			_, err := c.Fetch(context.Background(), 25544)
			assert.Error(t, err)
			assert.Equal(t, test.calls, calls.Load())
		})
	}
}

func TestFetchInvalidID(t *testing.T) {
	c := New(DefaultBaseURL, time.Second, nil)
	_, err := c.Fetch(context.Background(), 0)
	assert.Error(t, err)
}

