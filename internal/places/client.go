// Package places talks to a Google Places style search provider: a
// paginated nearby-search endpoint plus a per-place details endpoint.
package places

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"place-discovery-service/internal/entity"
	"place-discovery-service/internal/geo"
)

// SourceName is the provider name recorded in PlaceRecord.Sources.
const SourceName = "google"

const detailFields = "name,formatted_address,formatted_phone_number,website,rating," +
	"user_ratings_total,opening_hours,geometry,types,address_components"

// Searcher is what the job processor needs from a provider.
type Searcher interface {
	Search(ctx context.Context, req SearchRequest, credential string) ([]entity.PlaceRecord, error)
}

type SearchRequest struct {
	Query        string
	Center       geo.Point
	RadiusMeters int
	Limit        int
}

type Options struct {
	BaseURL          string
	MaxRetryAttempts int
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration
	PaginationWarmup time.Duration
	HTTPClient       *http.Client
	Logger           logrus.FieldLogger
}

type Client struct {
	baseURL    string
	attempts   int
	baseDelay  time.Duration
	maxDelay   time.Duration
	warmup     time.Duration
	httpClient *http.Client
	log        logrus.FieldLogger

	sleep func(ctx context.Context, d time.Duration) error
}

func NewClient(opts Options) *Client {
	if opts.MaxRetryAttempts <= 0 {
		opts.MaxRetryAttempts = 1
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		attempts:   opts.MaxRetryAttempts,
		baseDelay:  opts.RetryBaseDelay,
		maxDelay:   opts.RetryMaxDelay,
		warmup:     opts.PaginationWarmup,
		httpClient: opts.HTTPClient,
		log:        opts.Logger.WithField("component", "places"),
		sleep:      sleepCtx,
	}
}

// ProviderError is returned when the provider cannot be reached or answers
// with an error. It never carries the request URL or the credential.
type ProviderError struct {
	Op         string
	StatusCode int
	Status     string
	Attempts   int
	Err        error
}

func (e *ProviderError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("places %s: %v", e.Op, e.Err)
	case e.Status != "":
		return fmt.Sprintf("places %s: provider status %s", e.Op, e.Status)
	default:
		return fmt.Sprintf("places %s: http %d after %d attempt(s)", e.Op, e.StatusCode, e.Attempts)
	}
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Search pages through nearby results and looks up details for each
// candidate in provider order until limit records have been fetched.
// An empty credential yields no records and makes no request.
func (c *Client) Search(ctx context.Context, req SearchRequest, credential string) ([]entity.PlaceRecord, error) {
	if credential == "" {
		return nil, nil
	}

	var (
		out   []entity.PlaceRecord
		token string
	)
	for len(out) < req.Limit {
		if token != "" {
			if err := c.sleep(ctx, c.warmup); err != nil {
				return out, err
			}
		}

		page, err := c.nearby(ctx, req, token, credential)
		if err != nil {
			return out, err
		}

		for _, id := range page.ids {
			if len(out) >= req.Limit {
				break
			}
			rec, err := c.details(ctx, id, credential)
			if err != nil {
				return out, err
			}
			out = append(out, rec)
		}

		c.log.WithFields(logrus.Fields{
			"page_results": len(page.ids),
			"fetched":      len(out),
			"has_next":     page.next != "",
		}).Debug("nearby page processed")

		if page.next == "" {
			break
		}
		token = page.next
	}
	return out, nil
}

type nearbyPage struct {
	ids  []string
	next string
}

type nearbyResponse struct {
	Results []struct {
		PlaceID string `json:"place_id"`
	} `json:"results"`
	NextPageToken string `json:"next_page_token"`
	Status        string `json:"status"`
}

func (c *Client) nearby(ctx context.Context, req SearchRequest, token, credential string) (nearbyPage, error) {
	q := url.Values{}
	q.Set("keyword", req.Query)
	q.Set("location", formatCoord(req.Center.Lat)+","+formatCoord(req.Center.Lng))
	q.Set("radius", strconv.Itoa(req.RadiusMeters))
	q.Set("key", credential)
	if token != "" {
		q.Set("pagetoken", token)
	}

	var resp nearbyResponse
	if err := c.getJSON(ctx, "nearby search", "/nearbysearch/json", q, &resp); err != nil {
		return nearbyPage{}, err
	}
	if err := checkStatus("nearby search", resp.Status); err != nil {
		return nearbyPage{}, err
	}

	page := nearbyPage{next: resp.NextPageToken}
	for _, r := range resp.Results {
		if r.PlaceID != "" {
			page.ids = append(page.ids, r.PlaceID)
		}
	}
	return page, nil
}

type detailsResponse struct {
	Result struct {
		Name             string   `json:"name"`
		FormattedAddress string   `json:"formatted_address"`
		Phone            string   `json:"formatted_phone_number"`
		Website          string   `json:"website"`
		Rating           float64  `json:"rating"`
		UserRatingsTotal int      `json:"user_ratings_total"`
		Types            []string `json:"types"`
		OpeningHours     *struct {
			WeekdayText []string `json:"weekday_text"`
		} `json:"opening_hours"`
		Geometry *struct {
			Location *struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
		AddressComponents []struct {
			LongName string   `json:"long_name"`
			Types    []string `json:"types"`
		} `json:"address_components"`
	} `json:"result"`
	Status string `json:"status"`
}

func (c *Client) details(ctx context.Context, placeID, credential string) (entity.PlaceRecord, error) {
	q := url.Values{}
	q.Set("place_id", placeID)
	q.Set("fields", detailFields)
	q.Set("key", credential)

	var resp detailsResponse
	if err := c.getJSON(ctx, "details", "/details/json", q, &resp); err != nil {
		return entity.PlaceRecord{}, err
	}
	if err := checkStatus("details", resp.Status); err != nil {
		return entity.PlaceRecord{}, err
	}

	r := resp.Result
	rec := entity.PlaceRecord{
		Name:        strings.TrimSpace(r.Name),
		Address:     strings.TrimSpace(r.FormattedAddress),
		Phone:       r.Phone,
		Website:     r.Website,
		Rating:      r.Rating,
		ReviewCount: r.UserRatingsTotal,
		Categories:  append([]string(nil), r.Types...),
		SourceIDs:   map[string]string{SourceName: placeID},
		Sources:     []string{SourceName},
	}
	if r.OpeningHours != nil {
		rec.OpeningHours = append([]string(nil), r.OpeningHours.WeekdayText...)
	}
	if r.Geometry != nil && r.Geometry.Location != nil {
		rec.Location = &geo.Point{Lat: r.Geometry.Location.Lat, Lng: r.Geometry.Location.Lng}
	}
	for _, comp := range r.AddressComponents {
		if contains(comp.Types, "locality") {
			rec.Locality = comp.LongName
			break
		}
	}
	if rec.Locality == "" {
		rec.Locality = LocalityFromAddress(rec.Address)
	}
	return rec, nil
}

// LocalityFromAddress returns the comma-separated token before the last
// one ("Via Roma 1, 00100 Roma, Italy" -> "00100 Roma"), or "" when the
// address has fewer than two parts.
func LocalityFromAddress(address string) string {
	parts := strings.Split(address, ",")
	if len(parts) < 2 {
		return ""
	}
	return strings.TrimSpace(parts[len(parts)-2])
}

// getJSON performs a GET with the retry policy: HTTP 429 and 5xx are
// retried up to c.attempts total attempts, waiting min(base*n, max) after
// failed attempt n. Transport errors and other statuses are returned as is.
func (c *Client) getJSON(ctx context.Context, op, path string, q url.Values, out any) error {
	endpoint := c.baseURL + path + "?" + q.Encode()

	for attempt := 1; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return &ProviderError{Op: op, Err: errors.New("build request")}
		}

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.log.WithFields(logrus.Fields{"op": op, "attempt": attempt}).WithError(stripURL(err)).Warn("provider request failed")
			return &ProviderError{Op: op, Attempts: attempt, Err: stripURL(err)}
		}
		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		c.log.WithFields(logrus.Fields{
			"op":          op,
			"attempt":     attempt,
			"http_status": resp.StatusCode,
			"duration_ms": time.Since(start).Milliseconds(),
		}).Debug("provider response")

		if retryable(resp.StatusCode) {
			if attempt >= c.attempts {
				return &ProviderError{Op: op, StatusCode: resp.StatusCode, Attempts: attempt}
			}
			if err := c.sleep(ctx, c.backoff(attempt)); err != nil {
				return err
			}
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &ProviderError{Op: op, StatusCode: resp.StatusCode, Attempts: attempt}
		}
		if readErr != nil {
			return &ProviderError{Op: op, Attempts: attempt, Err: fmt.Errorf("read body: %w", readErr)}
		}
		if err := json.Unmarshal(body, out); err != nil {
			return &ProviderError{Op: op, Attempts: attempt, Err: fmt.Errorf("malformed response: %w", err)}
		}
		return nil
	}
}

// backoff is the wait after failed attempt n (so before attempt n+1):
// min(base*n, max), i.e. 2s, 4s, 6s, 8s with the defaults.
func (c *Client) backoff(attempt int) time.Duration {
	d := c.baseDelay * time.Duration(attempt)
	if c.maxDelay > 0 && d > c.maxDelay {
		return c.maxDelay
	}
	return d
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

func checkStatus(op, status string) error {
	switch status {
	case "OK", "ZERO_RESULTS":
		return nil
	case "":
		return &ProviderError{Op: op, Err: errors.New("malformed response: missing status")}
	default:
		return &ProviderError{Op: op, Status: status}
	}
}

// stripURL drops the *url.Error wrapper, whose message contains the
// request URL and therefore the key.
func stripURL(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return uerr.Err
	}
	return err
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
