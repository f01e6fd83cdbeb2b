// Package trends implements the provider port against the unofficial Google
// Trends widget API: an explore call exchanges the term set and window for
// per-widget tokens, then the multiline and comparedgeo widgets serve the
// time-series and region signals. All three endpoints prefix their JSON with
// an XSSI guard that has to be stripped before decoding.
package trends

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"TrendsCollector/internal/domain"
	"TrendsCollector/internal/ports"
)

const (
	defaultBaseURL = "https://trends.google.com"

	explorePath     = "/trends/api/explore"
	multilinePath   = "/trends/api/widgetdata/multiline"
	comparedGeoPath = "/trends/api/widgetdata/comparedgeo"

	widgetTimeSeries = "TIMESERIES"
	widgetGeoMap     = "GEO_MAP"
)

// Client talks to the trends provider. It owns exactly one live HTTP
// client/cookie-jar handle at a time; Reset replaces it wholesale so no
// server-side session state implicated in a failure is carried forward.
type Client struct {
	baseURL          string
	hl               string
	tz               int
	includeLowVolume bool
	logger           *slog.Logger

	client *http.Client
	primed bool
}

var _ ports.TrendProvider = (*Client)(nil)

// NewClient builds a provider client. baseURL is overridable for tests;
// empty means the public endpoint.
func NewClient(baseURL string, includeLowVolume bool, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL:          strings.TrimSuffix(baseURL, "/"),
		hl:               "en-US",
		tz:               0,
		includeLowVolume: includeLowVolume,
		logger:           logger,
		client:           newHTTPClient(),
	}
}

func newHTTPClient() *http.Client {
	jar, _ := cookiejar.New(nil)
	return &http.Client{Timeout: 30 * time.Second, Jar: jar}
}

// Reset discards the HTTP client and cookie jar and starts over.
func (c *Client) Reset(context.Context) error {
	c.client = newHTTPClient()
	c.primed = false
	return nil
}

// session carries the widget tokens and request payloads obtained from one
// explore call. Both fetches reuse the same built query so the two signals
// stay mutually consistent.
type session struct {
	client     *Client
	terms      []string
	timeSeries widget
	geoMap     widget
}

var _ ports.QuerySession = (*session)(nil)

type widget struct {
	token   string
	request json.RawMessage
}

// BuildQuery performs the explore call for the term set and window and
// returns a session holding the widget tokens for both signals.
func (c *Client) BuildQuery(ctx context.Context, terms []string, window domain.CollectionWindow) (ports.QuerySession, error) {
	if len(terms) == 0 {
		return nil, fmt.Errorf("no terms in query")
	}

	if err := c.prime(ctx); err != nil {
		return nil, err
	}

	type comparisonItem struct {
		Keyword string `json:"keyword"`
		Geo     string `json:"geo"`
		Time    string `json:"time"`
	}

	timeframe := fmt.Sprintf("%s %s",
		window.Start.Format(time.DateOnly), window.End.Format(time.DateOnly))

	items := make([]comparisonItem, 0, len(terms))
	for _, term := range terms {
		items = append(items, comparisonItem{Keyword: term, Geo: "", Time: timeframe})
	}

	reqPayload, err := json.Marshal(map[string]any{
		"comparisonItem": items,
		"category":       0,
		"property":       "",
	})
	if err != nil {
		return nil, fmt.Errorf("marshal explore payload: %w", err)
	}

	params := url.Values{}
	params.Set("hl", c.hl)
	params.Set("tz", strconv.Itoa(c.tz))
	params.Set("req", string(reqPayload))

	body, err := c.get(ctx, explorePath, params)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Widgets []struct {
			ID      string          `json:"id"`
			Token   string          `json:"token"`
			Request json.RawMessage `json:"request"`
		} `json:"widgets"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode explore response: %w", err)
	}

	s := &session{client: c, terms: terms}
	for _, w := range parsed.Widgets {
		switch w.ID {
		case widgetTimeSeries:
			s.timeSeries = widget{token: w.Token, request: w.Request}
		case widgetGeoMap:
			s.geoMap = widget{token: w.Token, request: w.Request}
		}
	}
	if s.timeSeries.token == "" || s.geoMap.token == "" {
		return nil, fmt.Errorf("explore response missing widget tokens")
	}

	return s, nil
}

// FetchTimeSeries retrieves the multiline widget: one row per date with a
// value per term in query order.
func (s *session) FetchTimeSeries(ctx context.Context) ([]domain.SeriesRow, error) {
	body, err := s.client.widgetData(ctx, multilinePath, s.timeSeries)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Default struct {
			TimelineData []struct {
				Time  string `json:"time"`
				Value []int  `json:"value"`
			} `json:"timelineData"`
		} `json:"default"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode timeline response: %w", err)
	}

	rows := make([]domain.SeriesRow, 0, len(parsed.Default.TimelineData))
	for _, entry := range parsed.Default.TimelineData {
		secs, err := strconv.ParseInt(entry.Time, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed timeline timestamp %q: %w", entry.Time, err)
		}
		row := domain.SeriesRow{
			Date:   time.Unix(secs, 0).UTC().Truncate(24 * time.Hour),
			Values: make(map[string]int, len(s.terms)),
		}
		for i, term := range s.terms {
			if i < len(entry.Value) {
				row.Values[term] = entry.Value[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// FetchRegionScores retrieves the comparedgeo widget at country resolution:
// one row per place with a value per term in query order.
func (s *session) FetchRegionScores(ctx context.Context) ([]domain.RegionRow, error) {
	geo := s.geoMap
	request, err := amendGeoRequest(geo.request, s.client.includeLowVolume)
	if err != nil {
		return nil, err
	}
	geo.request = request

	body, err := s.client.widgetData(ctx, comparedGeoPath, geo)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Default struct {
			GeoMapData []struct {
				GeoName string `json:"geoName"`
				GeoCode string `json:"geoCode"`
				Value   []int  `json:"value"`
			} `json:"geoMapData"`
		} `json:"default"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode geo response: %w", err)
	}

	rows := make([]domain.RegionRow, 0, len(parsed.Default.GeoMapData))
	for _, entry := range parsed.Default.GeoMapData {
		row := domain.RegionRow{
			Region: entry.GeoName,
			Code:   entry.GeoCode,
			Values: make(map[string]int, len(s.terms)),
		}
		for i, term := range s.terms {
			if i < len(entry.Value) {
				row.Values[term] = entry.Value[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// amendGeoRequest injects the country resolution and low-volume flag into
// the widget request the explore call handed back.
func amendGeoRequest(raw json.RawMessage, includeLowVolume bool) (json.RawMessage, error) {
	request := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &request); err != nil {
			return nil, fmt.Errorf("decode geo widget request: %w", err)
		}
	}
	request["resolution"] = "COUNTRY"
	request["includeLowSearchVolumeGeos"] = includeLowVolume

	amended, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("marshal geo widget request: %w", err)
	}
	return amended, nil
}

func (c *Client) widgetData(ctx context.Context, path string, w widget) ([]byte, error) {
	params := url.Values{}
	params.Set("hl", c.hl)
	params.Set("tz", strconv.Itoa(c.tz))
	params.Set("req", string(w.request))
	params.Set("token", w.token)
	return c.get(ctx, path, params)
}

// prime issues one plain page request so the jar holds the cookies the
// widget endpoints expect. Runs once per client handle.
func (c *Client) prime(ctx context.Context) error {
	if c.primed {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/?geo=US", nil)
	if err != nil {
		return fmt.Errorf("build prime request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("prime session: %w", err)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
	resp.Body.Close()

	c.primed = true
	return nil
}

const userAgent = "TrendsCollector/1.0"

func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("trends %s returned %s", path, resp.Status)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", path, err)
	}

	if c.logger != nil {
		c.logger.Debug("provider response", "path", path, "bytes", len(raw))
	}

	return stripXSSIPrefix(raw), nil
}

// stripXSSIPrefix drops the )]}' guard (and anything else) before the first
// JSON object; the prefix length differs between endpoints.
func stripXSSIPrefix(raw []byte) []byte {
	for i, b := range raw {
		if b == '{' || b == '[' {
			return raw[i:]
		}
	}
	return raw
}
