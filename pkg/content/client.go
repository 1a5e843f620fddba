package content

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/canopy-network/arenax/pkg/arena"
	"github.com/canopy-network/arenax/pkg/rpc"
)

const (
	MaxEntryRunes    = 500
	MaxUsernameRunes = 32
	MaxTitleRunes    = 120
	DefaultListLimit = 20
)

var (
	ErrEmpty   = errors.New("content is empty")
	ErrTooLong = errors.New("content too long")
)

// Store is the off-chain content service. Nothing in it is authoritative; callers treat
// every failure as non-fatal.
type Store interface {
	Entries(ctx context.Context, arenaID uint64) ([]arena.Entry, error)
	PutEntry(ctx context.Context, arenaID uint64, author, text string) error
	Challenge(ctx context.Context, arenaID uint64) (*arena.Challenge, error)
	PutChallenge(ctx context.Context, arenaID uint64, author string, c arena.Challenge) error
	Profile(ctx context.Context, address string) (*arena.Profile, error)
	PutProfile(ctx context.Context, p arena.Profile) error
	UploadMedia(ctx context.Context, filename string, data []byte) (string, error)
	Recent(ctx context.Context, limit int) ([]arena.Summary, error)
	ByUser(ctx context.Context, address string) ([]arena.Summary, error)
}

// Client talks to the content service over HTTP, reusing the breaker/token-bucket client.
type Client struct {
	http *rpc.HTTPClient
	base string
}

// NewClient returns a content client for baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	base := strings.TrimRight(baseURL, "/")
	return &Client{
		http: rpc.NewHTTPWithOpts(rpc.Opts{Endpoints: []string{base}, Timeout: timeout}),
		base: base,
	}
}

// BaseURL is used to resolve relative media references.
func (c *Client) BaseURL() string {
	return c.base
}

type entryWire struct {
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

type challengeWire struct {
	Author      string `json:"author,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description"`
	MediaURL    string `json:"media_url"`
}

type summaryWire struct {
	ID        uint64 `json:"roast_id"`
	Creator   string `json:"creator"`
	OpenUntil int64  `json:"open_until"`
	VoteUntil int64  `json:"vote_until"`
	State     string `json:"state"`
	Title     string `json:"title,omitempty"`
}

// toSummary fails for rows whose state is not a known status label.
func (w summaryWire) toSummary() (arena.Summary, error) {
	st, err := arena.ParseStatus(w.State)
	if err != nil {
		return arena.Summary{}, err
	}
	return arena.Summary{ID: w.ID, Creator: w.Creator, OpenUntil: w.OpenUntil, VoteUntil: w.VoteUntil, Status: st, Title: w.Title}, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	return c.http.Do(ctx, http.MethodGet, path, "", nil, out)
}

func (c *Client) sendJSON(ctx context.Context, method, path string, payload any, out any) error {
	body, err := jsonBody(payload)
	if err != nil {
		return err
	}
	return c.http.Do(ctx, method, path, "application/json", body, out)
}

// Entries lists the text submitted by participants of an arena.
func (c *Client) Entries(ctx context.Context, arenaID uint64) ([]arena.Entry, error) {
	var rows []entryWire
	if err := c.getJSON(ctx, fmt.Sprintf("/api/roasts/%d/content", arenaID), &rows); err != nil {
		if rpc.IsNotFound(err) {
			return []arena.Entry{}, nil
		}
		return nil, err
	}
	out := make([]arena.Entry, 0, len(rows))
	for _, r := range rows {
		out = append(out, arena.Entry{Author: r.Author, Text: r.Content, CreatedAt: r.CreatedAt})
	}
	return out, nil
}

// PutEntry stores a participant's text after trimming and length checks.
func (c *Client) PutEntry(ctx context.Context, arenaID uint64, author, text string) error {
	text, err := ValidateEntry(text)
	if err != nil {
		return err
	}
	return c.sendJSON(ctx, http.MethodPost, fmt.Sprintf("/api/roasts/%d/content", arenaID), entryWire{Author: author, Content: text}, nil)
}

// Challenge returns the arena description, or nil when none was stored.
func (c *Client) Challenge(ctx context.Context, arenaID uint64) (*arena.Challenge, error) {
	var w challengeWire
	if err := c.getJSON(ctx, fmt.Sprintf("/api/roasts/%d/challenge", arenaID), &w); err != nil {
		if rpc.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &arena.Challenge{Title: w.Title, Description: w.Description, MediaURL: w.MediaURL}, nil
}

func (c *Client) PutChallenge(ctx context.Context, arenaID uint64, author string, ch arena.Challenge) error {
	title := strings.TrimSpace(ch.Title)
	if title == "" {
		return fmt.Errorf("challenge title: %w", ErrEmpty)
	}
	if utf8.RuneCountInString(title) > MaxTitleRunes {
		return fmt.Errorf("challenge title: %w", ErrTooLong)
	}
	return c.sendJSON(ctx, http.MethodPost, fmt.Sprintf("/api/roasts/%d/challenge", arenaID), challengeWire{
		Author:      author,
		Title:       title,
		Description: strings.TrimSpace(ch.Description),
		MediaURL:    ch.MediaURL,
	}, nil)
}

// Profile returns the profile of address. Unknown addresses get an empty profile.
func (c *Client) Profile(ctx context.Context, address string) (*arena.Profile, error) {
	var p arena.Profile
	if err := c.getJSON(ctx, "/api/profiles/"+url.PathEscape(address), &p); err != nil {
		if rpc.IsNotFound(err) {
			return &arena.Profile{Address: address}, nil
		}
		return nil, err
	}
	if p.Address == "" {
		p.Address = address
	}
	return &p, nil
}

func (c *Client) PutProfile(ctx context.Context, p arena.Profile) error {
	p.Username = strings.TrimSpace(p.Username)
	if utf8.RuneCountInString(p.Username) > MaxUsernameRunes {
		return fmt.Errorf("username: %w", ErrTooLong)
	}
	return c.sendJSON(ctx, http.MethodPost, "/api/profiles", p, nil)
}

// UploadMedia stores a file and returns the media reference to put in a challenge.
func (c *Client) UploadMedia(ctx context.Context, filename string, data []byte) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(filename))
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	var out struct {
		URL string `json:"url"`
	}
	if err := c.http.Do(ctx, http.MethodPost, "/api/upload", mw.FormDataContentType(), buf.Bytes(), &out); err != nil {
		return "", err
	}
	if out.URL == "" {
		return "", errors.New("upload returned no media url")
	}
	return out.URL, nil
}

// Recent lists the most recently created arenas.
func (c *Client) Recent(ctx context.Context, limit int) ([]arena.Summary, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	return c.summaries(ctx, fmt.Sprintf("/api/roasts?limit=%d", limit))
}

// ByUser lists arenas an address created or took part in.
func (c *Client) ByUser(ctx context.Context, address string) ([]arena.Summary, error) {
	return c.summaries(ctx, "/api/profiles/"+url.PathEscape(address)+"/roasts")
}

func (c *Client) summaries(ctx context.Context, path string) ([]arena.Summary, error) {
	var rows []summaryWire
	if err := c.getJSON(ctx, path, &rows); err != nil {
		return nil, err
	}
	out := make([]arena.Summary, 0, len(rows))
	for _, r := range rows {
		sum, err := r.toSummary()
		if err != nil {
			continue
		}
		out = append(out, sum)
	}
	return out, nil
}

// ValidateEntry trims text and enforces the entry length limit.
func ValidateEntry(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmpty
	}
	if utf8.RuneCountInString(text) > MaxEntryRunes {
		return "", ErrTooLong
	}
	return text, nil
}

var _ Store = (*Client)(nil)
