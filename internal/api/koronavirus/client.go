// Package koronavirus reads the daily case reports published on the news
// pages of koronavirus.gov.hu.
package koronavirus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Alias1177/covid-curve/internal/feedsync"
	"github.com/Alias1177/covid-curve/internal/model"
	httpClient "github.com/Alias1177/covid-curve/internal/platform/http"
	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/unicode/norm"
)

// DefaultBaseURL is the public site
const DefaultBaseURL = "https://koronavirus.gov.hu"

var (
	// ErrBadDate is returned when a report's publication date cannot be read.
	ErrBadDate = errors.New("unrecognised article date")
	// ErrNoMorePages means the page lists no articles at all, i.e. it lies past the oldest news.
	ErrNoMorePages = fmt.Errorf("no article teasers: %w", feedsync.ErrEndOfFeed)
)

// Client is the news feed client
type Client struct {
	baseURL    string
	httpClient *httpClient.Client
	logger     zerolog.Logger
}

// ClientOptions holds options for creating a new feed client
type ClientOptions struct {
	BaseURL         string
	RequestTimeout  time.Duration
	RequestsPerSec  int
	MaxRetries      int
	MaxRetryTimeout time.Duration
	UserAgent       string
}

// NewClient creates a new feed client
func NewClient(options ClientOptions) *Client {
	httpOpts := httpClient.ClientOptions{
		Timeout:         options.RequestTimeout,
		RequestsPerSec:  options.RequestsPerSec,
		MaxRetries:      options.MaxRetries,
		MaxRetryTimeout: options.MaxRetryTimeout,
		UserAgent:       options.UserAgent,
	}

	baseURL := strings.TrimRight(options.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient.NewClient(httpOpts),
		logger:     log.With().Str("component", "koronavirus_client").Logger(),
	}
}

// Page fetches news page index (0 is the newest) and extracts the daily reports on it.
func (c *Client) Page(ctx context.Context, index int) ([]model.FeedRecord, error) {
	url := fmt.Sprintf("%s/hirek?page=%d", c.baseURL, index)
	c.logger.Debug().Str("url", url).Msg("Fetching news page")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.DoRequest(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	records, err := ParsePage(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("page %d: %w", index, err)
	}

	c.logger.Debug().Int("page", index).Int("count", len(records)).Msg("Parsed news page")
	return records, nil
}

// ParsePage extracts the daily report records of one news page in page order.
// Teasers that are not daily reports are ignored, so a page of other news
// yields no records. A page without any teaser yields ErrNoMorePages.
func ParsePage(r io.Reader) ([]model.FeedRecord, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parsing HTML: %w", err)
	}

	teasers := doc.Find(".article-teaser")
	if teasers.Length() == 0 {
		return nil, ErrNoMorePages
	}

	var (
		records  []model.FeedRecord
		parseErr error
	)
	teasers.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		title := strings.TrimSpace(s.Find("h3").First().Text())
		primary, secondary, ok := ParseTitle(title)
		if !ok {
			return true
		}

		dateText := strings.TrimSpace(s.Find("i").First().Text())
		date, err := ParseDate(dateText)
		if err != nil {
			parseErr = fmt.Errorf("report %q: %w", title, err)
			return false
		}

		records = append(records, model.FeedRecord{Date: date, Primary: primary, Secondary: secondary})
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return records, nil
}

// ParseTitle reads the daily increments from a report headline such as
// "4 405 fővel emelkedett a beazonosított fertőzöttek száma, elhunyt 96 beteg".
// Thousands may be split into a separate word. secondary is empty when the
// headline names no deaths.
func ParseTitle(title string) (primary, secondary string, ok bool) {
	words := strings.Fields(norm.NFC.String(title))
	if len(words) <= 6 {
		return "", "", false
	}

	switch {
	case words[1] == "fővel" && words[2] == "emelkedett":
		primary = words[0]
	case words[2] == "fővel" && words[3] == "emelkedett":
		primary = words[0] + words[1]
	default:
		return "", "", false
	}
	if !isNumber(primary) {
		return "", "", false
	}

	for i := 6; i < len(words)-1; i++ {
		if words[i] == "elhunyt" {
			secondary = strings.Trim(words[i+1], ".,")
			break
		}
	}
	if !isNumber(secondary) {
		secondary = ""
	}
	return primary, secondary, true
}

var articleDate = regexp.MustCompile(`(\d{4})\.\s*(\p{L}+)\s+(\d{1,2})\.`)

// ParseDate reads an article date such as "2021. január 12. 08:31".
func ParseDate(text string) (time.Time, error) {
	m := articleDate.FindStringSubmatch(strings.ToLower(norm.NFC.String(text)))
	if m == nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrBadDate, text)
	}

	month, ok := months[m[2]]
	if !ok {
		return time.Time{}, fmt.Errorf("%w: month %q", ErrBadDate, m[2])
	}
	year, _ := strconv.Atoi(m[1])
	day, _ := strconv.Atoi(m[3])
	date := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if date.Day() != day {
		return time.Time{}, fmt.Errorf("%w: %q", ErrBadDate, text)
	}
	return date, nil
}

var months = map[string]time.Month{
	"január":     time.January,
	"február":    time.February,
	"március":    time.March,
	"április":    time.April,
	"május":      time.May,
	"június":     time.June,
	"július":     time.July,
	"augusztus":  time.August,
	"szeptember": time.September,
	"október":    time.October,
	"november":   time.November,
	"december":   time.December,
}

func isNumber(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
