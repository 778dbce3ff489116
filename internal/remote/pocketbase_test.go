package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPocketBaseRecordAPI(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/collections/debts/records", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "secret", r.Header.Get("Authorization"))
		require.Equal(t, "2", r.URL.Query().Get("page"))
		require.Equal(t, "-updated", r.URL.Query().Get("sort"))
		_ = json.NewEncoder(w).Encode(Page{Page: 2, PerPage: 1, TotalPages: 2, TotalItems: 2,
			Items: []Record{{"id": "d2", "name": "Car"}}})
	})
	mux.HandleFunc("POST /api/collections/debts/records", func(w http.ResponseWriter, r *http.Request) {
		var in Record
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		in["id"] = "server-1"
		_ = json.NewEncoder(w).Encode(in)
	})
	mux.HandleFunc("PATCH /api/collections/debts/records/{id}", func(w http.ResponseWriter, r *http.Request) {
		switch r.PathValue("id") {
		case "gone":
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message":"not found"}`))
		case "bad":
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"message":"invalid remaining_amount"}`))
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	})
	mux.HandleFunc("DELETE /api/collections/debts/records/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx := context.Background()
	pb := NewPocketBase(srv.URL+"/", "secret", time.Second, nil)

	page, err := pb.GetList(ctx, "debts", 2, 1, ListOptions{Sort: "-updated"})
	require.NoError(t, err)
	require.Equal(t, 2, page.TotalPages)
	require.Equal(t, "d2", page.Items[0].ID())

	created, err := pb.Create(ctx, "debts", Record{"name": "Visa"})
	require.NoError(t, err)
	require.Equal(t, "server-1", created.ID())

	_, err = pb.Update(ctx, "debts", "gone", Record{})
	require.ErrorIs(t, err, ErrNotFound)

	_, err = pb.Update(ctx, "debts", "bad", Record{})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "invalid remaining_amount", apiErr.Message)

	_, err = pb.Update(ctx, "debts", "other", Record{})
	require.ErrorIs(t, err, ErrUnavailable)

	require.NoError(t, pb.Delete(ctx, "debts", "d1"))
}

func TestPocketBaseUnreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	pb := NewPocketBase(addr, "", 200*time.Millisecond, nil)
	_, err := pb.Create(context.Background(), "debts", Record{})
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestPocketBaseRealtime(t *testing.T) {
	t.Parallel()

	subscribed := make(chan []string, 1)
	release := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/realtime", func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "id:c1\nevent:PB_CONNECT\ndata:{\"clientId\":\"c1\"}\n\n")
		flusher.Flush()
		<-release
		fmt.Fprint(w, "event:other\ndata:{}\n\n")
		fmt.Fprint(w, "event:debts\ndata:{\"action\":\"update\",\"record\":{\"id\":\"d1\",\"remaining_amount\":5}}\n\n")
		flusher.Flush()
		<-r.Context().Done()
	})
	mux.HandleFunc("POST /api/realtime", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			ClientID      string   `json:"clientId"`
			Subscriptions []string `json:"subscriptions"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "c1", body.ClientID)
		subscribed <- body.Subscriptions
		w.WriteHeader(http.StatusNoContent)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	got := make(chan Event, 1)
	pb := NewPocketBase(srv.URL, "", time.Second, nil)
	sub, err := pb.Subscribe(context.Background(), "debts", func(ev Event) { got <- ev })
	require.NoError(t, err)
	defer sub.Cancel()
	require.Equal(t, []string{"debts"}, <-subscribed)
	close(release)

	select {
	case ev := <-got:
		require.Equal(t, ActionUpdate, ev.Action)
		require.Equal(t, "d1", ev.Record.ID())
		require.Equal(t, "debts", ev.Collection)
	case <-time.After(2 * time.Second):
		t.Fatal("no realtime event delivered")
	}
}

func TestPocketBaseRealtimeReportsServerClose(t *testing.T) {
	t.Parallel()

	var conns atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/realtime", func(w http.ResponseWriter, r *http.Request) {
		n := conns.Add(1)
		flusher := w.(http.Flusher)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprintf(w, "id:c%d\nevent:PB_CONNECT\ndata:{\"clientId\":\"c%d\"}\n\n", n, n)
		flusher.Flush()
		if n == 1 {
			// first stream ends once the handshake is done
			time.Sleep(50 * time.Millisecond)
			return
		}
		<-r.Context().Done()
	})
	mux.HandleFunc("POST /api/realtime", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	pb := NewPocketBase(srv.URL, "", time.Second, nil)
	first, err := pb.Subscribe(context.Background(), "debts", func(Event) {})
	require.NoError(t, err)
	select {
	case <-first.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("closed stream not reported")
	}

	second, err := pb.Subscribe(context.Background(), "debts", func(Event) {})
	require.NoError(t, err)
	require.EqualValues(t, 2, conns.Load())
	select {
	case <-second.Done():
		t.Fatal("open stream reported as done")
	case <-time.After(50 * time.Millisecond):
	}
	second.Cancel()
	<-second.Done()
}
