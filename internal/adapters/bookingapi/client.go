// Package bookingapi lets a call agent ask the LiveClass server who it is,
// who is booked into a session and which ICE servers to use.
package bookingapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dkeye/LiveClass/internal/config"
	"github.com/dkeye/LiveClass/internal/domain"
	"github.com/rs/zerolog/log"
)

var (
	ErrUnauthorized = errors.New("bookingapi: unauthorized")
	ErrNotFound     = errors.New("bookingapi: not found")
	ErrForbidden    = errors.New("bookingapi: forbidden")
)

type Client struct {
	base  string
	token string
	http  *http.Client
}

// New builds a client; hc may be nil.
func New(baseURL, token string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{base: strings.TrimSuffix(baseURL, "/"), token: token, http: hc}
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return fmt.Errorf("bookingapi: build request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("bookingapi: GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("bookingapi: GET %s: %s: %s", path, resp.Status, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("bookingapi: decode %s: %w", path, err)
	}
	return nil
}

// CurrentUser resolves the token owner.
func (c *Client) CurrentUser(ctx context.Context) (*domain.User, error) {
	var u domain.User
	if err := c.get(ctx, "/api/me", &u); err != nil {
		return nil, err
	}
	if u.ID == "" {
		return nil, ErrUnauthorized
	}
	return &u, nil
}

func (c *Client) Booking(ctx context.Context, id domain.BookingID) (*domain.Booking, error) {
	var b domain.Booking
	if err := c.get(ctx, "/api/bookings/"+url.PathEscape(string(id)), &b); err != nil {
		return nil, err
	}
	log.Debug().Str("module", "bookingapi").Str("booking", string(b.ID)).Int("participants", len(b.Participants)).Msg("booking loaded")
	return &b, nil
}

// ICEServers returns the servers the agent should hand to its peer connection.
func (c *Client) ICEServers(ctx context.Context) ([]config.ICEServer, error) {
	var body struct {
		ICEServers []config.ICEServer `json:"iceServers"`
	}
	if err := c.get(ctx, "/api/ice", &body); err != nil {
		return nil, err
	}
	return body.ICEServers, nil
}
