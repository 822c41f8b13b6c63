// Package fetcher downloads the community news feed and the game server
// status.
package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mmcdole/gofeed"

	"community_bot/internal/filter"
)

const (
	userAgent    = "CommunityBot/1.0"
	maxBody      = 5 * 1024 * 1024
	summaryLimit = 300
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Post is a news post that passed filtering.
type Post struct {
	Title     string
	Summary   string
	Link      string
	Published time.Time
}

// ServerStatus is the public state of a game server.
type ServerStatus struct {
	Online   bool    `json:"online"`
	Hostname string  `json:"hostname"`
	Version  string  `json:"version"`
	MOTD     MOTD    `json:"motd"`
	Players  Players `json:"players"`
}

// MOTD is the server's message of the day.
type MOTD struct {
	Clean []string `json:"clean"`
}

// Players is the player count and, when the server exposes it, the names.
type Players struct {
	Online int      `json:"online"`
	Max    int      `json:"max"`
	List   []string `json:"list"`
}

// Fetcher performs the HTTP calls behind the news and status commands.
type Fetcher struct {
	client  HTTPClient
	timeout time.Duration
}

// New creates a Fetcher with the given HTTP client.
func New(client HTTPClient) *Fetcher {
	return &Fetcher{
		client:  client,
		timeout: 30 * time.Second,
	}
}

// Fetch downloads and parses a feed from the given URL.
func (f *Fetcher) Fetch(ctx context.Context, feedURL string) (*gofeed.Feed, error) {
	body, err := f.get(ctx, feedURL)
	if err != nil {
		return nil, err
	}

	feed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	return feed, nil
}

// Latest returns up to limit posts of the feed that rules allow, in feed
// order.
func (f *Fetcher) Latest(ctx context.Context, feedURL string, rules *filter.Set, limit int) ([]Post, error) {
	feed, err := f.Fetch(ctx, feedURL)
	if err != nil {
		return nil, err
	}
	posts := FilterItems(feed.Items, rules)
	if limit > 0 && len(posts) > limit {
		posts = posts[:limit]
	}
	return posts, nil
}

// FilterItems applies rules to feed items and returns those that match.
func FilterItems(items []*gofeed.Item, rules *filter.Set) []Post {
	var matched []Post
	for _, item := range items {
		summary := item.Description
		if !rules.Allows(filter.Post{Title: item.Title, Summary: summary}) {
			continue
		}
		p := Post{
			Title:   item.Title,
			Summary: truncate(summary, summaryLimit),
			Link:    item.Link,
		}
		if item.PublishedParsed != nil {
			p.Published = item.PublishedParsed.UTC()
		}
		matched = append(matched, p)
	}
	return matched
}

// ServerStatus queries a mcsrvstat-compatible API for address.
func (f *Fetcher) ServerStatus(ctx context.Context, apiBase, address string) (*ServerStatus, error) {
	endpoint := strings.TrimSuffix(apiBase, "/") + "/" + url.PathEscape(address)
	body, err := f.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var st ServerStatus
	if err := json.Unmarshal(body, &st); err != nil {
		return nil, fmt.Errorf("decode server status: %w", err)
	}
	return &st, nil
}

func (f *Fetcher) get(ctx context.Context, target string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}
