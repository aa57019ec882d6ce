// Package client talks to the public registration API. It is the backend a
// workflow uses when it runs outside the server process.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"trekreg/internal/dto"
	"trekreg/internal/mailer"
	"trekreg/internal/model"
	"trekreg/internal/repo"
)

const defaultTimeout = 15 * time.Second

// APIError is a non-success envelope that has no matching sentinel.
type APIError struct {
	StatusCode int
	Code       string
	Desc       string
	Fields     map[string]string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d %s: %s", e.StatusCode, e.Code, e.Desc)
}

type Client struct {
	baseURL string
	http    *http.Client
	log     *zerolog.Logger
}

func New(baseURL string, log *zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
		log:     log,
	}
}

// WithHTTPClient swaps the transport, mostly for tests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.http = hc
	return c
}

func (c *Client) CreateRegistration(ctx context.Context, form model.RegistrationForm) (*model.Registration, error) {
	var reg model.Registration
	if err := c.do(ctx, http.MethodPost, "/api/registrations", form, &reg); err != nil {
		return nil, err
	}
	return &reg, nil
}

func (c *Client) UpdateRegistration(ctx context.Context, id string, patch model.RegistrationPatch) (*model.Registration, error) {
	req := dto.UpdateRegistrationRequest{
		ID:            id,
		PaymentStatus: patch.PaymentStatus,
		TicketID:      patch.TicketID,
		Data:          patch.Data,
	}
	var reg model.Registration
	if err := c.do(ctx, http.MethodPut, "/api/registrations", req, &reg); err != nil {
		return nil, err
	}
	return &reg, nil
}

func (c *Client) GetRegistration(ctx context.Context, id string) (*model.Registration, error) {
	var reg model.Registration
	if err := c.do(ctx, http.MethodGet, "/api/registrations/"+url.PathEscape(id), nil, &reg); err != nil {
		return nil, err
	}
	return &reg, nil
}

func (c *Client) SendEmail(ctx context.Context, msg mailer.Message) error {
	req := dto.SendEmailRequest{
		To:      dto.Recipients(msg.To),
		Subject: msg.Subject,
		Text:    msg.Text,
		HTML:    msg.HTML,
	}
	return c.do(ctx, http.MethodPost, "/api/send-email", req, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Error().Err(err).Str("method", method).Str("path", path).Msg("api request failed")
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var env struct {
		Status string          `json:"status"`
		Error  *dto.Error      `json:"error"`
		Data   json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return &APIError{StatusCode: resp.StatusCode, Code: dto.ServiceUnavailable, Desc: strings.TrimSpace(string(raw))}
	}
	if resp.StatusCode >= 300 || env.Status != dto.StatusOK {
		return mapError(resp.StatusCode, env.Error)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func mapError(status int, e *dto.Error) error {
	if e == nil {
		return &APIError{StatusCode: status}
	}
	switch e.Code {
	case dto.RegistrationNotFound:
		return repo.ErrRegistrationNotFound
	case dto.RegistrationDuplicate:
		return repo.ErrDuplicateEmail
	case dto.EmailNotConfigured:
		return mailer.ErrNotConfigured
	}
	return &APIError{StatusCode: status, Code: e.Code, Desc: e.Desc, Fields: e.Fields}
}
