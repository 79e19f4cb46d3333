package catalog

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rrogntudju/odieux/internal/httpclient"
	"github.com/Rrogntudju/odieux/internal/player"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestClient_FetchPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/emissions/les-annees-lumiere/2.json", r.URL.Path)
		w.Write([]byte(`[{"titre":"Episode un","id":"abc"},{"titre":"Episode deux","id":"def"}]`))
	}))
	defer srv.Close()

	c := &Client{Fetcher: httpclient.NewSimple(discardLogger()), BaseURL: srv.URL}
	episodes, err := c.FetchPage(0, 2, "les-annees-lumiere")
	require.NoError(t, err)
	require.Len(t, episodes, 2)
	assert.Equal(t, player.Episode{Titre: "Episode un", ID: "abc"}, episodes[0])
	assert.Equal(t, player.Episode{Titre: "Episode deux", ID: "def"}, episodes[1])
}

func TestClient_FetchPage_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := &Client{Fetcher: httpclient.NewSimple(discardLogger()), BaseURL: srv.URL}
	_, err := c.FetchPage(0, 1, "missing")
	require.Error(t, err)
}

func TestClient_FetchPage_BadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	c := &Client{Fetcher: httpclient.NewSimple(discardLogger()), BaseURL: srv.URL}
	_, err := c.FetchPage(0, 1, "prog")
	require.Error(t, err)
}

func TestClient_Resolve_Episode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/episodes/abc.json", r.URL.Path)
		w.Write([]byte(`{"master_url":"https://cdn.example.com/abc/master.m3u8"}`))
	}))
	defer srv.Close()

	c := &Client{Fetcher: httpclient.NewSimple(discardLogger()), BaseURL: srv.URL}
	url, err := c.Resolve(player.Episode{Titre: "Episode un", ID: "abc"})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/abc/master.m3u8", url)
}

func TestClient_Resolve_Live(t *testing.T) {
	c := &Client{LiveURL: "https://live.example.com/master.m3u8"}
	url, err := c.Resolve(player.Episode{Titre: player.LiveTitle})
	require.NoError(t, err)
	assert.Equal(t, "https://live.example.com/master.m3u8", url)
}

func TestClient_Resolve_LiveNotConfigured(t *testing.T) {
	c := &Client{}
	_, err := c.Resolve(player.Episode{Titre: player.LiveTitle})
	require.Error(t, err)
}
