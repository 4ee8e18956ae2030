// Package mail polls an IMAP inbox for fulfillment notifications of the
// data service and downloads the archives they link to.
package mail

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	imapclient "github.com/emersion/go-imap/client"
	gomail "github.com/emersion/go-message/mail"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/seismoworks/tdvms-client/pkg/logging"
)

// ParseError reports a notification message whose body does not contain
// the expected archive link. It fails the current polling cycle but
// never affects orchestrator state.
type ParseError struct {
	Snippet string
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("download link not found in message: %s", e.Snippet)
}

// Config holds the harvester configuration.
type Config struct {
	// Sender is the notification sender address to search for.
	Sender string

	// LinkPattern matches archive URLs inside a message body.
	LinkPattern *regexp.Regexp

	// DownloadDir receives the downloaded archives.
	DownloadDir string

	// Checks is how many empty polls to tolerate before giving up the
	// current cycle.
	Checks int

	// Wait is the pause between empty polls.
	Wait time.Duration

	// DownloadConcurrency bounds parallel archive downloads.
	DownloadConcurrency int
}

// DefaultConfig returns the production notification settings.
func DefaultConfig() Config {
	return Config{
		Sender:              "tdvms@afad.gov.tr",
		LinkPattern:         regexp.MustCompile(`https://tdvms\.afad\.gov\.tr/files/[a-zA-Z0-9_]+\.zip`),
		DownloadDir:         ".",
		Checks:              10,
		Wait:                30 * time.Second,
		DownloadConcurrency: 3,
	}
}

// Harvester polls the inbox and downloads linked archives. It
// implements the orchestrator's Notifier boundary.
type Harvester struct {
	settings   Settings
	config     Config
	httpClient *http.Client
	logger     zerolog.Logger
}

// New creates a harvester for the given credentials.
func New(settings Settings, cfg Config) (*Harvester, error) {
	if cfg.Sender == "" || cfg.LinkPattern == nil {
		return nil, fmt.Errorf("sender and link pattern are required")
	}
	if cfg.Checks <= 0 {
		cfg.Checks = 1
	}
	if cfg.DownloadConcurrency <= 0 {
		cfg.DownloadConcurrency = 1
	}

	return &Harvester{
		settings:   settings,
		config:     cfg,
		httpClient: &http.Client{},
		logger:     logging.NewLogger("mail"),
	}, nil
}

// CheckAndDownload performs one polling cycle: connect, wait for unseen
// notification messages, extract their archive links, and download
// every archive not already present locally.
func (h *Harvester) CheckAndDownload(ctx context.Context) error {
	links, err := h.collectLinks(ctx)
	if err != nil {
		return err
	}
	if len(links) == 0 {
		h.logger.Info().Msg("No notification email found")
		return nil
	}
	return h.downloadAll(ctx, links)
}

func (h *Harvester) collectLinks(ctx context.Context) ([]string, error) {
	addr := h.settings.IMAPURL
	if !strings.Contains(addr, ":") {
		addr += ":993"
	}

	c, err := imapclient.DialTLS(addr, nil)
	if err != nil {
		return nil, fmt.Errorf("imap dial %s: %w", addr, err)
	}
	defer c.Logout()

	if err := c.Login(h.settings.Username, h.settings.Password); err != nil {
		return nil, fmt.Errorf("imap login: %w", err)
	}

	for checks := h.config.Checks; checks > 0; checks-- {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if _, err := c.Select("INBOX", false); err != nil {
			return nil, fmt.Errorf("imap select: %w", err)
		}

		criteria := imap.NewSearchCriteria()
		criteria.WithoutFlags = []string{imap.SeenFlag}
		criteria.Header.Add("From", h.config.Sender)

		ids, err := c.Search(criteria)
		if err != nil {
			return nil, fmt.Errorf("imap search: %w", err)
		}

		if len(ids) == 0 {
			h.logger.Info().
				Dur("wait", h.config.Wait).
				Int("checks_left", checks-1).
				Msg("No email found, waiting")
			if err := sleepCtx(ctx, h.config.Wait); err != nil {
				return nil, err
			}
			continue
		}

		// Newest first, like a human checking their inbox.
		for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
			ids[i], ids[j] = ids[j], ids[i]
		}
		return h.fetchLinks(c, ids)
	}
	return nil, nil
}

// fetchLinks downloads the listed messages and extracts one archive
// link from each. Fetching the full body marks the messages seen, so a
// notification is harvested at most once.
func (h *Harvester) fetchLinks(c *imapclient.Client, ids []uint32) ([]string, error) {
	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)

	section := &imap.BodySectionName{}
	messages := make(chan *imap.Message, len(ids))
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqset, []imap.FetchItem{section.FetchItem()}, messages)
	}()

	var links []string
	var parseErr error
	for msg := range messages {
		body := msg.GetBody(section)
		if body == nil {
			continue
		}
		link, err := h.extractLink(body)
		if err != nil {
			// Keep draining the channel; report the first parse error
			// after the fetch completes.
			if parseErr == nil {
				parseErr = err
			}
			continue
		}
		links = append(links, link)
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("imap fetch: %w", err)
	}
	if parseErr != nil {
		return nil, parseErr
	}
	return links, nil
}

// extractLink scans every inline part of the message for the archive
// link pattern.
func (h *Harvester) extractLink(r io.Reader) (string, error) {
	mr, err := gomail.CreateReader(r)
	if err != nil {
		return "", fmt.Errorf("parse message: %w", err)
	}

	var text strings.Builder
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse message part: %w", err)
		}
		if _, ok := p.Header.(*gomail.InlineHeader); ok {
			if _, err := io.Copy(&text, p.Body); err != nil {
				return "", fmt.Errorf("read message part: %w", err)
			}
		}
	}

	if m := h.config.LinkPattern.FindString(text.String()); m != "" {
		return m, nil
	}
	return "", &ParseError{Snippet: snippet(text.String())}
}

// downloadAll fetches every archive link not already on disk.
func (h *Harvester) downloadAll(ctx context.Context, links []string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(h.config.DownloadConcurrency)

	for _, link := range links {
		g.Go(func() error {
			return h.download(ctx, link)
		})
	}
	return g.Wait()
}

func (h *Harvester) download(ctx context.Context, link string) error {
	filename := path.Base(link)
	target := filepath.Join(h.config.DownloadDir, filename)

	if _, err := os.Stat(target); err == nil {
		h.logger.Info().Str("file", filename).Msg("Already downloaded")
		return nil
	}

	h.logger.Info().Str("file", filename).Msg("Downloading archive")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return fmt.Errorf("create download request: %w", err)
	}
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", filename, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: status code %d", filename, resp.StatusCode)
	}

	// Stream into a temp file and rename, so partial downloads never
	// masquerade as finished archives.
	tmp, err := os.CreateTemp(h.config.DownloadDir, filename+".part-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", filename, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close %s: %w", filename, err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("finalize %s: %w", filename, err)
	}

	h.logger.Info().Str("file", filename).Msg("Archive downloaded")
	return nil
}

func snippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 120 {
		return s[:120] + "..."
	}
	return s
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
