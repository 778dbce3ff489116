// Package remote talks to the collection-oriented backend store.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound means the record does not exist remotely.
	ErrNotFound = errors.New("remote: record not found")
	// ErrUnavailable means the store could not be reached.
	ErrUnavailable = errors.New("remote: store unavailable")
)

// Action is the kind of change carried by a subscription event.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Record is one remote row as a JSON object.
type Record map[string]any

func (r Record) ID() string {
	id, _ := r["id"].(string)
	return id
}

// Updated parses the record's modification stamp; zero when absent.
func (r Record) Updated() time.Time {
	s, _ := r["updated"].(string)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.000Z", "2006-01-02 15:04:05Z"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Clone copies the top level of r.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Encode converts any JSON-taggable value into a Record.
func Encode(v any) (Record, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	var r Record
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return r, nil
}

// Decode fills v from r.
func Decode(r Record, v any) error {
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	return nil
}

// Event is one change delivered by Subscribe.
type Event struct {
	Collection string `json:"collection"`
	Action     Action `json:"action"`
	Record     Record `json:"record"`
}

// ListOptions narrows GetList.
type ListOptions struct {
	Sort   string
	Filter string
}

// Page is one GetList result page.
type Page struct {
	Page       int      `json:"page"`
	PerPage    int      `json:"perPage"`
	TotalPages int      `json:"totalPages"`
	TotalItems int      `json:"totalItems"`
	Items      []Record `json:"items"`
}

// Store is the remote collection store.
type Store interface {
	GetList(ctx context.Context, collection string, page, perPage int, opts ListOptions) (Page, error)
	Create(ctx context.Context, collection string, data Record) (Record, error)
	Update(ctx context.Context, collection, id string, data Record) (Record, error)
	Delete(ctx context.Context, collection, id string) error
	// Subscribe delivers events for collection until ctx ends, the
	// subscription is cancelled or the store drops the stream.
	Subscribe(ctx context.Context, collection string, handler func(Event)) (*Subscription, error)
}

// Subscription is one live event stream.
type Subscription struct {
	cancel func()
	done   <-chan struct{}
}

// NewSubscription pairs a cancel func with a channel the stream closes
// when it stops delivering events.
func NewSubscription(cancel func(), done <-chan struct{}) *Subscription {
	return &Subscription{cancel: cancel, done: done}
}

// Cancel stops the stream. It is safe to call more than once.
func (s *Subscription) Cancel() { s.cancel() }

// Done is closed once no more events will be delivered, whether the
// subscription was cancelled or the store ended it.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// DefaultPerPage is the page size ListAll requests.
const DefaultPerPage = 200

// ListAll pages through a collection until exhausted.
func ListAll(ctx context.Context, s Store, collection string, opts ListOptions) ([]Record, error) {
	var out []Record
	for page := 1; ; page++ {
		p, err := s.GetList(ctx, collection, page, DefaultPerPage, opts)
		if err != nil {
			return nil, fmt.Errorf("list %s page %d: %w", collection, page, err)
		}
		out = append(out, p.Items...)
		if len(p.Items) == 0 || page >= p.TotalPages {
			return out, nil
		}
	}
}
