package remote

import (
	"bufio"
	"bytes"
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

	"go.uber.org/zap"
)

// APIError is a non-retryable rejection from the store.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("remote: status %d: %s", e.Status, e.Message)
}

// PocketBase is a Store backed by a PocketBase server's record API and
// realtime (server-sent events) endpoint.
type PocketBase struct {
	baseURL string
	token   string
	http    *http.Client
	stream  *http.Client
	logger  *zap.Logger
}

func NewPocketBase(baseURL, token string, timeout time.Duration, logger *zap.Logger) *PocketBase {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &PocketBase{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   strings.TrimSpace(token),
		http:    &http.Client{Timeout: timeout},
		stream:  &http.Client{},
		logger:  logger,
	}
}

func (p *PocketBase) recordsURL(collection string) string {
	return fmt.Sprintf("%s/api/collections/%s/records", p.baseURL, url.PathEscape(collection))
}

func (p *PocketBase) GetList(ctx context.Context, collection string, page, perPage int, opts ListOptions) (Page, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("perPage", strconv.Itoa(perPage))
	if opts.Sort != "" {
		q.Set("sort", opts.Sort)
	}
	if opts.Filter != "" {
		q.Set("filter", opts.Filter)
	}
	var out Page
	err := p.do(ctx, http.MethodGet, p.recordsURL(collection)+"?"+q.Encode(), nil, &out)
	return out, err
}

func (p *PocketBase) Create(ctx context.Context, collection string, data Record) (Record, error) {
	var out Record
	err := p.do(ctx, http.MethodPost, p.recordsURL(collection), data, &out)
	return out, err
}

func (p *PocketBase) Update(ctx context.Context, collection, id string, data Record) (Record, error) {
	var out Record
	err := p.do(ctx, http.MethodPatch, p.recordsURL(collection)+"/"+url.PathEscape(id), data, &out)
	return out, err
}

func (p *PocketBase) Delete(ctx context.Context, collection, id string) error {
	return p.do(ctx, http.MethodDelete, p.recordsURL(collection)+"/"+url.PathEscape(id), nil, nil)
}

func (p *PocketBase) do(ctx context.Context, method, target string, body any, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("remote: encode body: %w", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if p.token != "" {
		req.Header.Set("Authorization", p.token)
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return err
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("remote: decode %s %s: %w", method, target, err)
	}
	return nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode < 300 {
		return nil
	}
	var payload struct {
		Message string `json:"message"`
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(b, &payload)
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	default:
		return &APIError{Status: resp.StatusCode, Message: payload.Message}
	}
}

// sseEvent is one server-sent event frame.
type sseEvent struct {
	Name string
	Data string
}

func readEvent(r *bufio.Reader) (sseEvent, error) {
	var ev sseEvent
	var data []string
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return ev, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if ev.Name == "" && len(data) == 0 {
				continue
			}
			ev.Data = strings.Join(data, "\n")
			return ev, nil
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			ev.Name = value
		case "data":
			data = append(data, value)
		}
	}
}

// Subscribe opens a realtime stream, registers collection as its only
// topic and forwards every record event to handler from a background
// goroutine. The stream ends with ctx, Cancel, or the server closing the
// connection; Done reports all three.
func (p *PocketBase) Subscribe(ctx context.Context, collection string, handler func(Event)) (*Subscription, error) {
	ctx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/realtime", nil)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := p.stream.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := checkStatus(resp); err != nil {
		resp.Body.Close()
		cancel()
		return nil, err
	}

	reader := bufio.NewReader(resp.Body)
	first, err := readEvent(reader)
	if err != nil || first.Name != "PB_CONNECT" {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("%w: realtime handshake failed", ErrUnavailable)
	}
	var hello struct {
		ClientID string `json:"clientId"`
	}
	if err := json.Unmarshal([]byte(first.Data), &hello); err != nil || hello.ClientID == "" {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("%w: realtime handshake missing client id", ErrUnavailable)
	}
	body := map[string]any{"clientId": hello.ClientID, "subscriptions": []string{collection}}
	if err := p.do(ctx, http.MethodPost, p.baseURL+"/api/realtime", body, nil); err != nil {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("realtime subscribe %s: %w", collection, err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer resp.Body.Close()
		for {
			ev, err := readEvent(reader)
			if err != nil {
				switch {
				case ctx.Err() != nil:
				case errors.Is(err, io.EOF):
					p.logger.Warn("realtime stream closed by server", zap.String("collection", collection))
				default:
					p.logger.Warn("realtime stream ended", zap.String("collection", collection), zap.Error(err))
				}
				return
			}
			if ev.Name != collection {
				continue
			}
			var payload struct {
				Action Action `json:"action"`
				Record Record `json:"record"`
			}
			if err := json.Unmarshal([]byte(ev.Data), &payload); err != nil {
				p.logger.Warn("realtime event malformed", zap.String("collection", collection), zap.Error(err))
				continue
			}
			handler(Event{Collection: collection, Action: payload.Action, Record: payload.Record})
		}
	}()
	return NewSubscription(cancel, done), nil
}
