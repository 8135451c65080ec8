package release

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/steveyegge/torctl/internal/exitcode"
	"github.com/steveyegge/torctl/internal/util"
)

// DefaultBaseURL is the distribution catalog whose listing enumerates releases.
const DefaultBaseURL = "https://dist.torproject.org/torbrowser/"

// DefaultComponent is the archive name prefix of the daemon build.
const DefaultComponent = "tor"

const (
	// UserAgent is sent with every request to the distribution server.
	UserAgent = "torctl/1.0"

	// HTTPTimeout is the timeout for listing and release page requests.
	HTTPTimeout = 30 * time.Second

	// DownloadTimeout is the timeout for streaming a release archive.
	DownloadTimeout = 10 * time.Minute

	// MaxPageSize bounds listing and release page bodies (4MB).
	MaxPageSize = 4 * 1024 * 1024

	// MaxArchiveSize bounds archive downloads (200MB).
	MaxArchiveSize = 200 * 1024 * 1024

	// MaxErrorBodySize bounds the body quoted in HTTP error messages (4KB).
	MaxErrorBodySize = 4 * 1024
)

var (
	// ErrNoMatchingBuild means no release in the listing publishes a build
	// for the requested platform.
	ErrNoMatchingBuild = errors.New("no release publishes a build for this platform")

	// ErrArchiveTooLarge means a download exceeded the archive size bound.
	ErrArchiveTooLarge = errors.New("archive exceeds maximum size")
)

// listingRegex matches directory entries in the catalog's HTML index.
var listingRegex = regexp.MustCompile(`alt="\[DIR\]">\s*<a href="(\d[^"/]*)/"`)

// Platform selects the per-platform build inside a release.
type Platform string

const (
	Win32 Platform = "win32"
	Win64 Platform = "win64"
)

// ParsePlatform validates a platform name.
func ParsePlatform(s string) (Platform, error) {
	switch p := Platform(strings.ToLower(strings.TrimSpace(s))); p {
	case Win32, Win64:
		return p, nil
	default:
		return "", fmt.Errorf("unknown platform %q (want %s or %s)", s, Win32, Win64)
	}
}

// DefaultPlatform picks the build matching the running architecture.
func DefaultPlatform() Platform {
	switch runtime.GOARCH {
	case "386", "arm":
		return Win32
	default:
		return Win64
	}
}

// GOOS is the operating system the platform's builds run on.
func (p Platform) GOOS() string {
	return "windows"
}

// Executable is the daemon binary inside the platform's archive, slash
// separated.
func (p Platform) Executable() string {
	return "Tor/tor.exe"
}

// Release names a release folder and the build version found inside it.
// The zero value means no matching build was found.
type Release struct {
	Name    string
	Version string
}

// IsZero reports whether r is the "nothing found" value.
func (r Release) IsZero() bool {
	return r.Name == "" && r.Version == ""
}

// Resolver fetches the release catalog and per-release pages.
type Resolver struct {
	baseURL        string
	component      string
	client         *http.Client
	downloadClient *http.Client
	maxArchiveSize int64
	retry          util.RetryConfig
	logger         *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithBaseURL overrides the catalog URL.
func WithBaseURL(u string) Option {
	return func(r *Resolver) {
		if u != "" {
			r.baseURL = u
		}
	}
}

// WithComponent overrides the archive name prefix.
func WithComponent(c string) Option {
	return func(r *Resolver) {
		if c != "" {
			r.component = c
		}
	}
}

// WithHTTPClient replaces both the page and download clients.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Resolver) {
		if c != nil {
			r.client = c
			r.downloadClient = c
		}
	}
}

// WithRetry sets the retry policy for catalog and page fetches.
func WithRetry(cfg util.RetryConfig) Option {
	return func(r *Resolver) { r.retry = cfg }
}

// WithMaxArchiveSize overrides MaxArchiveSize.
func WithMaxArchiveSize(n int64) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.maxArchiveSize = n
		}
	}
}

// WithLogger sets the resolver's logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a Resolver.
func New(opts ...Option) *Resolver {
	r := &Resolver{
		baseURL:        DefaultBaseURL,
		component:      DefaultComponent,
		client:         &http.Client{Timeout: HTTPTimeout},
		downloadClient: newDownloadClient(DownloadTimeout),
		maxArchiveSize: MaxArchiveSize,
		retry:          util.DefaultRetryConfig(),
		logger:         slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	if !strings.HasSuffix(r.baseURL, "/") {
		r.baseURL += "/"
	}
	return r
}

// newDownloadClient refuses redirects that downgrade from https.
func newDownloadClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("stopped after 10 redirects")
			}
			if via[0].URL.Scheme == "https" && req.URL.Scheme != "https" {
				return fmt.Errorf("refusing redirect from https to %s", req.URL.Scheme)
			}
			return nil
		},
	}
}

// BaseURL returns the catalog URL, always ending in "/".
func (r *Resolver) BaseURL() string {
	return r.baseURL
}

// statusError is a non-2xx response.
type statusError struct {
	URL    string
	Status int
	Body   string
}

func (e *statusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s returned %d", e.URL, e.Status)
	}
	return fmt.Sprintf("%s returned %d: %s", e.URL, e.Status, e.Body)
}

// FetchListing returns release folder tokens in listing order, without
// duplicates.
func (r *Resolver) FetchListing(ctx context.Context) ([]string, error) {
	body, err := r.fetchPage(ctx, r.baseURL)
	if err != nil {
		return nil, exitcode.Network("fetching release listing", err)
	}

	seen := make(map[string]bool)
	var tokens []string
	for _, m := range listingRegex.FindAllStringSubmatch(string(body), -1) {
		token := m[1]
		if seen[token] {
			continue
		}
		seen[token] = true
		tokens = append(tokens, token)
	}

	r.logger.Debug("fetched release listing", "url", r.baseURL, "releases", len(tokens))
	return tokens, nil
}

// Releases returns the catalog sorted newest first.
func (r *Resolver) Releases(ctx context.Context) ([]Version, error) {
	tokens, err := r.FetchListing(ctx)
	if err != nil {
		return nil, err
	}
	return SortDescending(tokens), nil
}

// ResolveLatest walks releases newest to oldest and returns the first one that
// publishes a build for platform. Releases without such a build are skipped.
// A zero Release with a nil error means nothing matched anywhere.
func (r *Resolver) ResolveLatest(ctx context.Context, platform Platform) (Release, error) {
	versions, err := r.Releases(ctx)
	if err != nil {
		return Release{}, err
	}

	buildRegex := r.buildRegex(platform)
	for _, v := range versions {
		pageURL := r.baseURL + v.Raw + "/"
		body, err := r.fetchPage(ctx, pageURL)
		if err != nil {
			var se *statusError
			if errors.As(err, &se) && se.Status == http.StatusNotFound {
				r.logger.Debug("release page missing, skipping", "release", v.Raw)
				continue
			}
			return Release{}, exitcode.Network("fetching release "+v.Raw, err)
		}

		m := buildRegex.FindSubmatch(body)
		if m == nil {
			r.logger.Debug("release has no build for platform, skipping",
				"release", v.Raw, "platform", string(platform))
			continue
		}

		rel := Release{Name: v.Raw, Version: string(m[1])}
		r.logger.Info("resolved latest release", "release", rel.Name, "version", rel.Version, "platform", string(platform))
		return rel, nil
	}

	return Release{}, nil
}

// ArchiveName is the file name of a release build.
func (r *Resolver) ArchiveName(rel Release, platform Platform) string {
	return fmt.Sprintf("%s-%s-%s.zip", r.component, platform, rel.Version)
}

// ArchiveURL is the download URL of a release build.
func (r *Resolver) ArchiveURL(rel Release, platform Platform) string {
	return r.baseURL + rel.Name + "/" + r.ArchiveName(rel, platform)
}

// DownloadArchive opens a stream over the release archive. The caller must
// close it. Reads fail with ErrArchiveTooLarge past the size bound.
func (r *Resolver) DownloadArchive(ctx context.Context, rel Release, platform Platform) (io.ReadCloser, error) {
	if rel.IsZero() {
		return nil, ErrNoMatchingBuild
	}
	archiveURL := r.ArchiveURL(rel, platform)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, archiveURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := r.downloadClient.Do(req)
	if err != nil {
		return nil, exitcode.Network("downloading "+archiveURL, err)
	}

	if resp.StatusCode != http.StatusOK {
		defer func() { _ = resp.Body.Close() }()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, MaxErrorBodySize))
		return nil, exitcode.Network("downloading archive",
			&statusError{URL: archiveURL, Status: resp.StatusCode, Body: strings.TrimSpace(string(body))})
	}

	if resp.ContentLength > r.maxArchiveSize {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("%w: %d bytes (limit %d)", ErrArchiveTooLarge, resp.ContentLength, r.maxArchiveSize)
	}

	r.logger.Info("downloading archive", "url", archiveURL, "size", resp.ContentLength)
	return &boundedBody{body: resp.Body, remaining: r.maxArchiveSize}, nil
}

func (r *Resolver) buildRegex(platform Platform) *regexp.Regexp {
	return regexp.MustCompile(regexp.QuoteMeta(r.component+"-"+string(platform)+"-") + `(\S+?)\.zip`)
}

// fetchPage GETs a page with retry on transient transport errors. Non-2xx
// statuses are not retried.
func (r *Resolver) fetchPage(ctx context.Context, pageURL string) ([]byte, error) {
	return util.Retry(ctx, r.retry, func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
		if err != nil {
			return nil, util.MarkPermanent(fmt.Errorf("creating request: %w", err))
		}
		req.Header.Set("User-Agent", UserAgent)

		resp, err := r.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetching %s: %w", pageURL, err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, MaxErrorBodySize))
			return nil, util.MarkPermanent(&statusError{
				URL:    pageURL,
				Status: resp.StatusCode,
				Body:   strings.TrimSpace(string(body)),
			})
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, MaxPageSize))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", pageURL, err)
		}
		return body, nil
	})
}

// boundedBody fails reads once more than remaining bytes have been served.
type boundedBody struct {
	body      io.ReadCloser
	remaining int64
}

func (b *boundedBody) Read(p []byte) (int, error) {
	if b.remaining <= 0 {
		var probe [1]byte
		n, err := b.body.Read(probe[:])
		if n > 0 {
			return 0, ErrArchiveTooLarge
		}
		if err == nil {
			return 0, nil
		}
		return 0, err
	}
	if int64(len(p)) > b.remaining {
		p = p[:b.remaining]
	}
	n, err := b.body.Read(p)
	b.remaining -= int64(n)
	return n, err
}

func (b *boundedBody) Close() error {
	return b.body.Close()
}
