// Package fetch downloads backing tracks. Every download is a single attempt:
// source URLs are often signed and short-lived, so a failure is final.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/lrstanley/go-ytdlp"

	"github.com/himanishpuri/VocalMerge/pkg/utils"
)

const DefaultMaxBytes int64 = 512 << 20

var (
	ErrUnsupportedURL = errors.New("unsupported backing track URL")
	ErrTooLarge       = errors.New("backing track exceeds size limit")
	ErrEmptyBody      = errors.New("backing track download was empty")
)

// StatusError reports a non-2xx response.
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: %s", e.URL, e.Status)
}

type Logger interface {
	Infof(format string, args ...any)
	Debugf(format string, args ...any)
}

// Download is a backing track persisted to disk.
type Download struct {
	Path        string
	SourceURL   string
	ContentType string
	SizeBytes   int64
	Elapsed     time.Duration
}

// PageDownloader fetches media behind a video page URL rather than a direct
// file link.
type PageDownloader interface {
	Download(ctx context.Context, pageURL, dest string) error
}

type Retriever struct {
	Client   *http.Client
	Pages    PageDownloader
	MaxBytes int64
	Logger   Logger
}

func NewRetriever() *Retriever {
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: time.Minute,
		}).DialContext,
		MaxIdleConns:          32,
		MaxIdleConnsPerHost:   8,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   30 * time.Second,
		ResponseHeaderTimeout: 2 * time.Minute,
	}
	return &Retriever{
		Client:   &http.Client{Transport: tr, Timeout: 15 * time.Minute},
		Pages:    &YTDLP{},
		MaxBytes: DefaultMaxBytes,
	}
}

// Fetch downloads rawURL to dest with exactly one attempt.
func (r *Retriever) Fetch(ctx context.Context, rawURL, dest string) (*Download, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedURL, rawURL)
	}

	start := time.Now()
	var dl *Download
	if utils.IsYouTubeURL(u.String()) && r.Pages != nil {
		dl, err = r.fetchPage(ctx, u.String(), dest)
	} else {
		dl, err = r.fetchDirect(ctx, u.String(), dest)
	}
	if err != nil {
		return nil, err
	}
	dl.Elapsed = time.Since(start)

	if r.Logger != nil {
		r.Logger.Infof("backing track downloaded: %d bytes in %s", dl.SizeBytes, dl.Elapsed.Round(time.Millisecond))
	}
	return dl, nil
}

func (r *Retriever) fetchDirect(ctx context.Context, src, dest string) (*Download, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedURL, err)
	}

	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", src, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &StatusError{URL: src, StatusCode: resp.StatusCode, Status: resp.Status}
	}
	if r.Logger != nil {
		r.Logger.Debugf("backing track response: %s, content-type=%q, length=%d",
			resp.Status, resp.Header.Get("Content-Type"), resp.ContentLength)
	}

	limit := r.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxBytes
	}
	if resp.ContentLength > limit {
		return nil, fmt.Errorf("%w: %d bytes declared", ErrTooLarge, resp.ContentLength)
	}

	size, err := writeVerbatim(dest, io.LimitReader(resp.Body, limit+1), limit)
	if err != nil {
		return nil, err
	}
	return &Download{
		Path:        dest,
		SourceURL:   src,
		ContentType: resp.Header.Get("Content-Type"),
		SizeBytes:   size,
	}, nil
}

func writeVerbatim(dest string, body io.Reader, limit int64) (int64, error) {
	part := dest + ".part"
	f, err := os.Create(part)
	if err != nil {
		return 0, fmt.Errorf("creating %s: %w", part, err)
	}

	n, copyErr := io.Copy(f, body)
	closeErr := f.Close()
	switch {
	case copyErr != nil:
		utils.RemoveIfExists(part)
		return 0, fmt.Errorf("reading backing track body: %w", copyErr)
	case closeErr != nil:
		utils.RemoveIfExists(part)
		return 0, closeErr
	case n > limit:
		utils.RemoveIfExists(part)
		return 0, ErrTooLarge
	case n == 0:
		utils.RemoveIfExists(part)
		return 0, ErrEmptyBody
	}

	if err := utils.MoveFile(part, dest); err != nil {
		utils.RemoveIfExists(part)
		return 0, err
	}
	return n, nil
}

// fetchPage hands YouTube links to the page downloader. Links are reduced to
// the bare watch URL so playlist and timestamp parameters are dropped.
func (r *Retriever) fetchPage(ctx context.Context, pageURL, dest string) (*Download, error) {
	if id, err := utils.ExtractYouTubeID(pageURL); err == nil {
		pageURL = "https://www.youtube.com/watch?v=" + id
		if r.Logger != nil {
			r.Logger.Debugf("backing track is YouTube video %s", id)
		}
	}
	if err := r.Pages.Download(ctx, pageURL, dest); err != nil {
		utils.RemoveIfExists(dest)
		return nil, fmt.Errorf("downloading %s: %w", pageURL, err)
	}
	size := utils.FileSize(dest)
	if size == 0 {
		return nil, ErrEmptyBody
	}
	return &Download{Path: dest, SourceURL: pageURL, ContentType: "video/mp4", SizeBytes: size}, nil
}

// YTDLP downloads YouTube pages with yt-dlp, merged into a single mp4.
type YTDLP struct{}

func (YTDLP) Download(ctx context.Context, pageURL, dest string) error {
	_, err := ytdlp.New().
		NoPlaylist().
		NoProgress().
		Format("bv*[height<=720]+ba/b[height<=720]/b").
		MergeOutputFormat("mp4").
		Output(dest).
		Run(ctx, pageURL)
	return err
}
