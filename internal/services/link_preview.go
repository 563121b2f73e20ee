package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rdychk/rdychk/internal/config"
	"github.com/rdychk/rdychk/internal/metrics"
	"github.com/rdychk/rdychk/internal/models"
	"github.com/rdychk/rdychk/pkg/logger"
	"github.com/rdychk/rdychk/pkg/response"
	"golang.org/x/net/html"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PageMeta is what a page says about itself in its <head>.
type PageMeta struct {
	Title       string
	Description string
	ImageURL    string
	SiteName    string
}

// LinkPreviewService fetches and caches preview metadata for location links.
type LinkPreviewService struct {
	db     *gorm.DB
	guard  *URLGuard
	client *http.Client
	cfg    config.PreviewConfig
	flight singleflight.Group
	now    func() time.Time
}

func NewLinkPreviewService(db *gorm.DB, guard *URLGuard, cfg config.PreviewConfig) *LinkPreviewService {
	return &LinkPreviewService{
		db:     db,
		guard:  guard,
		client: guard.Client(cfg.Timeout, cfg.MaxRedirects),
		cfg:    cfg,
		now:    time.Now,
	}
}

// Get returns the preview for rawURL, serving the cache while it is fresh.
// A stale entry is returned when refreshing it fails.
func (s *LinkPreviewService) Get(ctx context.Context, rawURL string) (*models.LinkPreview, error) {
	rawURL = strings.TrimSpace(rawURL)
	if len(rawURL) > maxLinkURL {
		metrics.PreviewFetches.WithLabelValues("rejected").Inc()
		return nil, response.NewBadRequest("url is too long")
	}
	u, err := s.guard.Check(ctx, rawURL)
	if err != nil {
		metrics.PreviewFetches.WithLabelValues("rejected").Inc()
		return nil, response.NewUnsafeURL(err.Error())
	}
	u.Fragment = ""
	key := u.String()
	if len(key) > maxLinkURL {
		metrics.PreviewFetches.WithLabelValues("rejected").Inc()
		return nil, response.NewBadRequest("url is too long")
	}

	var cached models.LinkPreview
	err = s.db.WithContext(ctx).Where("url = ?", key).First(&cached).Error
	switch {
	case err == nil && cached.Fresh(s.now(), s.cfg.CacheTTL):
		metrics.PreviewFetches.WithLabelValues("hit").Inc()
		return &cached, nil
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, response.NewServerError(err.Error())
	}
	haveStale := err == nil

	// Every waiter on key shares this fetch; it ignores the first caller's cancellation.
	shared := context.WithoutCancel(ctx)
	v, err, _ := s.flight.Do(key, func() (interface{}, error) {
		return s.refresh(shared, u)
	})
	if err != nil {
		if haveStale && !response.IsCode(err, response.CodeUnsafeURL) {
			logger.Warn().Err(err).Str("host", u.Host).Msg("preview refresh failed, serving stale entry")
			metrics.PreviewFetches.WithLabelValues("stale").Inc()
			return &cached, nil
		}
		return nil, err
	}
	return v.(*models.LinkPreview), nil
}

// Warm refreshes the cache entry for a queued preview task.
func (s *LinkPreviewService) Warm(ctx context.Context, task *PreviewTask) error {
	_, err := s.Get(ctx, task.URL)
	return err
}

// Purge deletes cache entries fetched before now-olderThan.
func (s *LinkPreviewService) Purge(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := s.now().Add(-olderThan)
	result := s.db.WithContext(ctx).Where("fetched_at < ?", cutoff).Delete(&models.LinkPreview{})
	return result.RowsAffected, result.Error
}

func (s *LinkPreviewService) refresh(ctx context.Context, u *url.URL) (*models.LinkPreview, error) {
	meta, err := s.fetch(ctx, u)
	if err != nil {
		if response.IsCode(err, response.CodeUnsafeURL) {
			metrics.PreviewFetches.WithLabelValues("rejected").Inc()
		} else {
			metrics.PreviewFetches.WithLabelValues("error").Inc()
		}
		return nil, err
	}
	metrics.PreviewFetches.WithLabelValues("fetched").Inc()

	preview := &models.LinkPreview{
		URL:         u.String(),
		Title:       truncate(meta.Title, 300),
		Description: truncate(meta.Description, 1000),
		ImageURL:    truncate(meta.ImageURL, 1000),
		SiteName:    truncate(meta.SiteName, 200),
		FetchedAt:   s.now(),
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "url"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "description", "image_url", "site_name", "fetched_at", "updated_at"}),
	}).Create(preview).Error
	if err != nil {
		return nil, response.NewServerError(err.Error())
	}
	return preview, nil
}

func (s *LinkPreviewService) fetch(ctx context.Context, u *url.URL) (*PageMeta, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, response.NewUnsafeURL(err.Error())
	}
	req.Header.Set("User-Agent", s.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.5")

	resp, err := s.client.Do(req)
	if err != nil {
		if errors.Is(err, ErrUnsafeURL) {
			return nil, response.NewUnsafeURL(err.Error())
		}
		return nil, response.NewServerError(fmt.Sprintf("fetch %s: %v", u.Host, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, response.NewServerError(fmt.Sprintf("fetch %s: status %d", u.Host, resp.StatusCode))
	}

	final := resp.Request.URL
	meta := &PageMeta{SiteName: final.Hostname()}
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType != "text/html" && mediaType != "application/xhtml+xml" {
		return meta, nil
	}

	parsed := ParsePageMeta(io.LimitReader(resp.Body, s.cfg.MaxBodyBytes))
	if parsed.SiteName == "" {
		parsed.SiteName = meta.SiteName
	}
	if parsed.ImageURL != "" {
		parsed.ImageURL = resolveImageURL(final, parsed.ImageURL)
	}
	return &parsed, nil
}

// ParsePageMeta reads Open Graph, Twitter card and plain HTML metadata from
// the document head. Open Graph values win over the others.
func ParsePageMeta(r io.Reader) PageMeta {
	var meta, fallback PageMeta
	z := html.NewTokenizer(r)
	inTitle := false

	for {
		switch z.Next() {
		case html.ErrorToken:
			return mergeMeta(meta, fallback)
		case html.EndTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "head":
				return mergeMeta(meta, fallback)
			case "title":
				inTitle = false
			}
		case html.TextToken:
			if inTitle && fallback.Title == "" {
				fallback.Title = strings.TrimSpace(string(z.Text()))
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			switch string(name) {
			case "body":
				return mergeMeta(meta, fallback)
			case "title":
				inTitle = true
			case "meta":
				if !hasAttr {
					continue
				}
				key, content := metaAttrs(z)
				applyMeta(&meta, &fallback, key, strings.TrimSpace(content))
			}
		}
	}
}

func metaAttrs(z *html.Tokenizer) (key, content string) {
	for {
		name, val, more := z.TagAttr()
		switch string(name) {
		case "property", "name":
			if key == "" {
				key = strings.ToLower(string(val))
			}
		case "content":
			content = string(val)
		}
		if !more {
			return key, content
		}
	}
}

func applyMeta(og, fallback *PageMeta, key, content string) {
	if content == "" {
		return
	}
	switch key {
	case "og:title":
		og.Title = content
	case "og:description":
		og.Description = content
	case "og:image", "og:image:url":
		if og.ImageURL == "" {
			og.ImageURL = content
		}
	case "og:site_name":
		og.SiteName = content
	case "twitter:title":
		setIfEmpty(&fallback.Title, content)
	case "description", "twitter:description":
		setIfEmpty(&fallback.Description, content)
	case "twitter:image":
		setIfEmpty(&fallback.ImageURL, content)
	}
}

func mergeMeta(og, fallback PageMeta) PageMeta {
	setIfEmpty(&og.Title, fallback.Title)
	setIfEmpty(&og.Description, fallback.Description)
	setIfEmpty(&og.ImageURL, fallback.ImageURL)
	setIfEmpty(&og.SiteName, fallback.SiteName)
	return og
}

func setIfEmpty(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

// resolveImageURL makes a relative image reference absolute and drops
// anything that is not http(s).
func resolveImageURL(base *url.URL, ref string) string {
	u, err := base.Parse(ref)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return ""
	}
	return u.String()
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
