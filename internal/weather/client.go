// Package weather fetches current conditions from OpenWeatherMap. When the
// API is not configured or fails, it answers with a fixed mock reading marked
// unavailable.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"farmwatch/internal/config"
	"farmwatch/internal/model"
	"farmwatch/internal/resilience"
)

var ErrNoAPIKey = errors.New("weather: api key not configured")

// Query selects a location by city name or by coordinates. The city wins
// when both are set; an empty query uses the configured default city.
// HasCoords marks Lat and Lon as supplied, so 0,0 is a usable location.
type Query struct {
	City      string
	Lat       float64
	Lon       float64
	HasCoords bool
}

type Client struct {
	http        *http.Client
	apiKey      string
	baseURL     string
	defaultCity string
	cacheTTL    time.Duration
	breaker     *resilience.Breaker
	logger      *slog.Logger
	now         func() time.Time

	mu    sync.Mutex
	cache map[string]cached
}

type cached struct {
	reading model.WeatherReading
	expires time.Time
}

func New(cfg config.WeatherConfig, breaker *resilience.Breaker, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		http:        &http.Client{Timeout: timeout},
		apiKey:      strings.TrimSpace(cfg.APIKey),
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		defaultCity: cfg.DefaultCity,
		cacheTTL:    cfg.CacheTTL,
		breaker:     breaker,
		logger:      logger.With("component", "weather"),
		now:         func() time.Time { return time.Now().UTC() },
		cache:       make(map[string]cached),
	}
}

// Mock is the reading served when the API cannot answer.
func Mock(at time.Time) model.WeatherReading {
	return model.WeatherReading{
		Temperature: 22.5,
		Humidity:    65,
		Description: "partly cloudy",
		WindSpeed:   3.2,
		Pressure:    1013,
		Source:      "mock",
		FetchedAt:   at,
	}
}

// Current returns conditions for q. Only live readings are cached.
func (c *Client) Current(ctx context.Context, q Query) model.Result[model.WeatherReading] {
	if q.City == "" && !q.HasCoords {
		q.City = c.defaultCity
	}
	if c.apiKey == "" {
		return model.Unavailable(Mock(c.now()), ErrNoAPIKey)
	}
	key := c.endpoint(q)
	if r, ok := c.cached(key); ok {
		return model.OK(r)
	}
	reading, err := resilience.Do(ctx, c.breaker, func(ctx context.Context) (model.WeatherReading, error) {
		return c.fetch(ctx, key)
	})
	if err != nil {
		c.logger.Error("weather lookup failed", "city", q.City, "error", err)
		return model.Unavailable(Mock(c.now()), err)
	}
	c.store(key, reading)
	return model.OK(reading)
}

func (c *Client) endpoint(q Query) string {
	v := url.Values{}
	if q.City != "" {
		v.Set("q", q.City)
	} else {
		v.Set("lat", strconv.FormatFloat(q.Lat, 'f', -1, 64))
		v.Set("lon", strconv.FormatFloat(q.Lon, 'f', -1, 64))
	}
	v.Set("appid", c.apiKey)
	v.Set("units", "metric")
	return c.baseURL + "/weather?" + v.Encode()
}

type apiResponse struct {
	Main struct {
		Temp     float64 `json:"temp"`
		Humidity float64 `json:"humidity"`
		Pressure float64 `json:"pressure"`
	} `json:"main"`
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
}

func (c *Client) fetch(ctx context.Context, endpoint string) (model.WeatherReading, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return model.WeatherReading{}, errors.New("weather request could not be built")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		// url.Error carries the request URL, and the URL carries the key.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return model.WeatherReading{}, fmt.Errorf("weather request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return model.WeatherReading{}, fmt.Errorf("weather api status %d", resp.StatusCode)
	}
	var body apiResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return model.WeatherReading{}, fmt.Errorf("decode weather response: %w", err)
	}
	if len(body.Weather) == 0 {
		return model.WeatherReading{}, errors.New("weather response has no conditions")
	}
	return model.WeatherReading{
		Temperature: body.Main.Temp,
		Humidity:    body.Main.Humidity,
		Description: body.Weather[0].Description,
		WindSpeed:   body.Wind.Speed,
		Pressure:    body.Main.Pressure,
		Source:      "openweathermap",
		FetchedAt:   c.now(),
	}, nil
}

func (c *Client) cached(key string) (model.WeatherReading, bool) {
	if c.cacheTTL <= 0 {
		return model.WeatherReading{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.cache[key]
	if !ok || !c.now().Before(e.expires) {
		delete(c.cache, key)
		return model.WeatherReading{}, false
	}
	return e.reading, true
}

func (c *Client) store(key string, r model.WeatherReading) {
	if c.cacheTTL <= 0 {
		return
	}
	c.mu.Lock()
	c.cache[key] = cached{reading: r, expires: c.now().Add(c.cacheTTL)}
	c.mu.Unlock()
}
