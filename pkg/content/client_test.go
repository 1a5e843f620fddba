package content

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/canopy-network/arenax/pkg/arena"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, 2*time.Second)
}

func TestEntries(t *testing.T) {
	c := newStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/roasts/7/content", r.URL.Path)
		_, _ = io.WriteString(w, `[{"author":"0xAa","content":"hello"},{"author":"0xbb","content":"world"}]`)
	})

	got, err := c.Entries(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "0xAa", got[0].Author)
	assert.Equal(t, "hello", got[0].Text)
}

func TestEntriesNotFoundIsEmpty(t *testing.T) {
	c := newStore(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	got, err := c.Entries(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPutEntryTrimsAndValidates(t *testing.T) {
	var body map[string]any
	c := newStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{}`)
	})

	require.NoError(t, c.PutEntry(context.Background(), 3, "0xaa", "  roast  "))
	assert.Equal(t, "roast", body["content"])
	assert.Equal(t, "0xaa", body["author"])

	assert.ErrorIs(t, c.PutEntry(context.Background(), 3, "0xaa", "   "), ErrEmpty)
	assert.ErrorIs(t, c.PutEntry(context.Background(), 3, "0xaa", strings.Repeat("x", MaxEntryRunes+1)), ErrTooLong)
}

func TestValidateEntryCountsRunes(t *testing.T) {
	text, err := ValidateEntry(strings.Repeat("é", MaxEntryRunes))
	require.NoError(t, err)
	assert.Equal(t, MaxEntryRunes, len([]rune(text)))
}

func TestChallengeAbsent(t *testing.T) {
	c := newStore(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	ch, err := c.Challenge(context.Background(), 9)
	require.NoError(t, err)
	assert.Nil(t, ch)
}

func TestChallengeRoundTrip(t *testing.T) {
	var stored challengeWire
	c := newStore(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&stored))
			_, _ = io.WriteString(w, `{}`)
		default:
			assert.NoError(t, json.NewEncoder(w).Encode(stored))
		}
	})

	err := c.PutChallenge(context.Background(), 4, "0xaa", arena.Challenge{Title: " Best pun ", Description: "go", MediaURL: "/uploads/a.png"})
	require.NoError(t, err)
	assert.Equal(t, "Best pun", stored.Title)

	ch, err := c.Challenge(context.Background(), 4)
	require.NoError(t, err)
	require.NotNil(t, ch)
	assert.Equal(t, "/uploads/a.png", ch.MediaURL)

	assert.ErrorIs(t, c.PutChallenge(context.Background(), 4, "0xaa", arena.Challenge{Title: "  "}), ErrEmpty)
}

func TestProfile(t *testing.T) {
	c := newStore(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/profiles/0xknown" {
			_, _ = io.WriteString(w, `{"username":"alice"}`)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})

	p, err := c.Profile(context.Background(), "0xknown")
	require.NoError(t, err)
	assert.Equal(t, "alice", p.Username)
	assert.Equal(t, "0xknown", p.Address)

	p, err = c.Profile(context.Background(), "0xunknown")
	require.NoError(t, err)
	assert.Equal(t, "", p.Username)

	err = c.PutProfile(context.Background(), arena.Profile{Address: "0xa", Username: strings.Repeat("u", MaxUsernameRunes+1)})
	assert.ErrorIs(t, err, ErrTooLong)
}

func TestUploadMedia(t *testing.T) {
	c := newStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/upload", r.URL.Path)
		f, hdr, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "img.png", hdr.Filename)
		assert.Equal(t, "PNG", string(data))
		_, _ = io.WriteString(w, `{"url":"/uploads/img.png"}`)
	})

	ref, err := c.UploadMedia(context.Background(), "/tmp/img.png", []byte("PNG"))
	require.NoError(t, err)
	assert.Equal(t, "/uploads/img.png", ref)
}

func TestRecentAndByUser(t *testing.T) {
	c := newStore(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/roasts":
			assert.Equal(t, "20", r.URL.Query().Get("limit"))
			_, _ = io.WriteString(w, `[{"roast_id":2,"creator":"0xa","state":"VOTING","title":"t"},{"roast_id":1,"state":"bogus"}]`)
		case "/api/profiles/0xa/roasts":
			_, _ = io.WriteString(w, `[{"roast_id":2,"state":"settled"}]`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	rows, err := c.Recent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, rows, 1, "rows with an unknown state are skipped")
	assert.Equal(t, arena.StatusVoting, rows[0].Status)
	assert.Equal(t, uint64(2), rows[0].ID)

	mine, err := c.ByUser(context.Background(), "0xa")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, arena.StatusSettled, mine[0].Status)
}

func TestMediaHelpers(t *testing.T) {
	assert.Equal(t, "http://c:3001/uploads/a.png", ResolveMediaURL("http://c:3001/", "/uploads/a.png"))
	assert.Equal(t, "https://x/y.gif", ResolveMediaURL("http://c", "https://x/y.gif"))
	assert.Equal(t, "", ResolveMediaURL("http://c", ""))

	assert.True(t, IsImage("/uploads/a.JPG"))
	assert.True(t, IsImage("https://x/y.webp?v=1"))
	assert.False(t, IsImage("/uploads/a.mp4"))
}
