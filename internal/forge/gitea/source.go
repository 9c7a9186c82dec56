// Package gitea lists repositories from Gitea and Gogs instances.
//
// The forge paginates /repos/search and advertises the next page through the
// 'next' relation of the Link header. Listing is incremental: the checkpoint
// remembers the last seen next link and repository id, and a later run
// restarts from the page the link points at.
package gitea

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/originwatch/originwatch/pkg/lister"
)

const (
	visitType    = "git"
	repoListPath = "repos/search"

	defaultPageSize = 50
)

// State is the serialized checkpoint for one instance.
type State struct {
	// LastSeenNextLink is the last Link rel="next" URL observed, possibly
	// already visited.
	LastSeenNextLink string `json:"last_seen_next_link,omitempty"`

	// LastSeenRepoID is the id of the last repository seen.
	LastSeenRepoID int64 `json:"last_seen_repo_id,omitempty"`
}

type Repo struct {
	ID        int64     `json:"id"`
	CloneURL  string    `json:"clone_url"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Page is one /repos/search response.
type Page struct {
	Repos    []Repo
	NextLink string
}

type Source struct {
	baseURL  string
	pageSize int

	client  *http.Client
	limiter *rate.Limiter
	retrier *lister.Retrier
	logger  *zap.Logger

	token   string
	state   State
	nextURL string
	done    bool
}

type SourceOption func(*Source)

func WithPageSize(size int) SourceOption {
	return func(s *Source) {
		s.pageSize = size
	}
}

func WithHTTPClient(client *http.Client) SourceOption {
	return func(s *Source) {
		s.client = client
	}
}

func WithLogger(logger *zap.Logger) SourceOption {
	return func(s *Source) {
		s.logger = logger
	}
}

func WithRetrier(retrier *lister.Retrier) SourceOption {
	return func(s *Source) {
		s.retrier = retrier
	}
}

// WithRateLimit paces requests to at most r per second.
func WithRateLimit(r rate.Limit) SourceOption {
	return func(s *Source) {
		s.limiter = rate.NewLimiter(r, 1)
	}
}

// NewSource builds a source for one instance. baseURL is the API root, e.g.
// https://try.gitea.io/api/v1/.
func NewSource(baseURL string, opts ...SourceOption) *Source {
	s := &Source{
		baseURL:  baseURL,
		pageSize: defaultPageSize,
		client:   &http.Client{Timeout: 30 * time.Second},
		limiter:  rate.NewLimiter(rate.Inf, 1),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.retrier == nil {
		s.retrier = lister.NewRetrier(lister.DefaultRetryPolicy(), lister.RetrierWithLogger(s.logger))
	}
	return s
}

func (s *Source) Connect(ctx context.Context, checkpoint []byte, credentials []lister.Credential) error {
	if checkpoint != nil {
		if err := json.Unmarshal(checkpoint, &s.state); err != nil {
			return fmt.Errorf("decoding checkpoint: %w", err)
		}
	}

	if len(credentials) > 0 {
		cred := credentials[rand.Intn(len(credentials))]
		s.token = cred.Password
		s.logger.Info("Using authentication credentials",
			zap.String("username", cred.Username))
	} else {
		s.logger.Warn("No credentials, listing anonymously")
	}

	page := pageID(s.state.LastSeenNextLink)
	if page == 0 {
		page = 1
	}

	first, err := s.listURL(page)
	if err != nil {
		return err
	}
	s.nextURL = first
	s.done = false

	return nil
}

func (s *Source) Disconnect(ctx context.Context) error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *Source) Next(ctx context.Context) (lister.Page, error) {
	if s.done {
		return nil, lister.ErrEndOfListing
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var page *Page
	err := s.retrier.Do(ctx, "gitea.repos.search", func(ctx context.Context) error {
		p, err := s.fetch(ctx, s.nextURL)
		if err != nil {
			return err
		}
		page = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	if page.NextLink == "" {
		s.done = true
	} else {
		s.nextURL = page.NextLink
	}

	return page, nil
}

func (s *Source) Origins(page lister.Page) ([]lister.Origin, error) {
	p, ok := page.(*Page)
	if !ok {
		return nil, fmt.Errorf("unexpected page type %T", page)
	}

	origins := make([]lister.Origin, 0, len(p.Repos))
	for _, repo := range p.Repos {
		if repo.CloneURL == "" {
			continue
		}
		origin := lister.Origin{
			VisitType: visitType,
			URL:       repo.CloneURL,
		}
		if !repo.UpdatedAt.IsZero() {
			updated := repo.UpdatedAt
			origin.LastUpdate = &updated
		}
		origins = append(origins, origin)
	}
	return origins, nil
}

func (s *Source) Commit(page lister.Page) {
	p, ok := page.(*Page)
	if !ok {
		return
	}

	// Only move the link forward; a resumed run revisits its first page
	// and must not rewind past it.
	if pageID(p.NextLink) > pageID(s.state.LastSeenNextLink) {
		s.state.LastSeenNextLink = p.NextLink
	}
	if len(p.Repos) > 0 {
		s.state.LastSeenRepoID = p.Repos[len(p.Repos)-1].ID
	}
}

func (s *Source) Checkpoint() ([]byte, error) {
	if s.state == (State{}) {
		return nil, nil
	}
	return json.Marshal(s.state)
}

func (s *Source) fetch(ctx context.Context, rawURL string) (*Page, error) {
	s.logger.Debug("Fetching page", zap.String("url", rawURL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "token "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, lister.TransportErrorFromResponse(resp)
	}

	var body struct {
		Data []Repo `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding page %s: %w", rawURL, err)
	}

	return &Page{
		Repos:    body.Data,
		NextLink: nextLink(resp.Header.Get("Link")),
	}, nil
}

func (s *Source) listURL(page int) (string, error) {
	u, err := url.Parse(s.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL %s: %w", s.baseURL, err)
	}
	u = u.JoinPath(repoListPath)

	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(s.pageSize))
	q.Set("sort", "id")
	q.Set("order", "asc")
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// pageID extracts the page query parameter out of a listing URL, 0 when
// absent or unparsable.
func pageID(rawURL string) int {
	if rawURL == "" {
		return 0
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return 0
	}
	id, _ := strconv.Atoi(u.Query().Get("page"))
	return id
}

// nextLink returns the rel="next" target of a Link header, "" when the
// header carries none (the last page).
func nextLink(header string) string {
	for _, part := range strings.Split(header, ",") {
		sections := strings.Split(part, ";")
		if len(sections) < 2 {
			continue
		}
		target := strings.Trim(strings.TrimSpace(sections[0]), "<>")
		for _, param := range sections[1:] {
			if strings.TrimSpace(param) == `rel="next"` {
				return target
			}
		}
	}
	return ""
}
