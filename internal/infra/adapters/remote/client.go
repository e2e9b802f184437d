// Package remote - signaling.Store поверх HTTP API сервера рандеву.
// Запись идёт обычными запросами, подписки - через WebSocket watch-стримы.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/qrave1/PairCall/internal/domain/signaling"
	"github.com/qrave1/PairCall/internal/infra/ports/http/dto"
	"github.com/qrave1/PairCall/internal/infra/ports/http/middleware"
)

const apiPrefix = "/api/v1"

// Client ходит в сервер от имени одного участника
type Client struct {
	base     *url.URL
	http     *http.Client
	dialer   *websocket.Dialer
	identity string
	token    string

	reconnectAttempts uint64
	reconnectBase     time.Duration
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithReconnect задаёт, сколько раз и с какой начальной паузой переподключать оборванный watch-стрим
func WithReconnect(attempts uint64, base time.Duration) Option {
	return func(c *Client) {
		c.reconnectAttempts = attempts
		c.reconnectBase = base
	}
}

// WithToken - JWT для серверов с включённой аутентификацией
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func New(serverURL, identity string, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(serverURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("unsupported server url scheme %q", base.Scheme)
	}

	c := &Client{
		base:     base,
		http:     &http.Client{Timeout: 15 * time.Second},
		dialer:   &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		identity: identity,

		reconnectAttempts: defaultReconnectAttempts,
		reconnectBase:     defaultReconnectBase,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

func (c *Client) endpoint(scheme string, parts ...string) string {
	u := *c.base
	if scheme != "" {
		u.Scheme = scheme
	}

	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}

	u.Path = c.base.Path + apiPrefix + "/" + strings.Join(escaped, "/")

	return u.String()
}

func (c *Client) header() http.Header {
	h := make(http.Header)

	if c.identity != "" {
		h.Set(middleware.ParticipantHeader, c.identity)
	}
	if c.token != "" {
		h.Set("Authorization", "Bearer "+c.token)
	}

	return h
}

// APIError - ответ сервера с кодом, который не переводится в доменную ошибку
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("server returned %d %s: %s", e.Status, e.Code, e.Message)
	}

	return fmt.Sprintf("server returned %d %s", e.Status, e.Code)
}

func decodeError(resp *http.Response) error {
	var body dto.ErrorResponse

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(raw, &body); err != nil || body.Error == "" {
		return &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
	}

	if known := dto.ErrorFromCode(body.Error); known != nil {
		return known
	}

	return &APIError{Status: resp.StatusCode, Code: body.Error, Message: body.Message}
}

func (c *Client) do(ctx context.Context, method string, body, out any, parts ...string) error {
	var reader io.Reader

	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint("", parts...), reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	req.Header = c.header()
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}

	return nil
}

// PairingKey просит у сервера свежий ключ комнаты
func (c *Client) PairingKey(ctx context.Context) (string, error) {
	var resp dto.KeyResponse

	if err := c.do(ctx, http.MethodGet, nil, &resp, "pairing-key"); err != nil {
		return "", err
	}

	return resp.Key, nil
}

func (c *Client) ICEServers(ctx context.Context) ([]webrtc.ICEServer, error) {
	var resp dto.ICEResponse

	if err := c.do(ctx, http.MethodGet, nil, &resp, "ice"); err != nil {
		return nil, err
	}

	return resp.ICEServers, nil
}

func (c *Client) ReadRoom(ctx context.Context, key string) (signaling.Room, error) {
	var resp dto.RoomResponse

	if err := c.do(ctx, http.MethodGet, nil, &resp, "rooms", key); err != nil {
		return signaling.Room{}, err
	}

	return resp.Room, nil
}

// CreateRoom - creatorRef на сервере берётся из идентичности запроса
func (c *Client) CreateRoom(ctx context.Context, key string, offer signaling.SessionDescription, _ string) error {
	return c.do(ctx, http.MethodPost, dto.CreateRoomRequest{Offer: offer}, nil, "rooms", key)
}

func (c *Client) SetAnswer(ctx context.Context, key string, answer signaling.SessionDescription, _ string) error {
	return c.do(ctx, http.MethodPut, dto.AnswerRequest{Answer: answer}, nil, "rooms", key, "answer")
}

func (c *Client) PublishCandidate(
	ctx context.Context,
	key, origin string,
	role signaling.Role,
	candidate signaling.Candidate,
) error {
	req := dto.CandidateRequest{Origin: origin, Role: role, Candidate: candidate}

	return c.do(ctx, http.MethodPost, req, nil, "rooms", key, "candidates")
}

func (c *Client) AppendMessage(ctx context.Context, key, text, _ string) (signaling.MessageRecord, error) {
	var resp dto.MessageResponse

	if err := c.do(ctx, http.MethodPost, dto.MessageRequest{Text: text}, &resp, "rooms", key, "messages"); err != nil {
		return signaling.MessageRecord{}, err
	}

	return resp.Message, nil
}

var errUnexpectedScheme = errors.New("unexpected server url scheme")

func (c *Client) wsScheme() (string, error) {
	switch c.base.Scheme {
	case "http":
		return "ws", nil
	case "https":
		return "wss", nil
	default:
		return "", errUnexpectedScheme
	}
}

var _ signaling.Store = (*Client)(nil)
