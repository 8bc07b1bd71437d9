package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"offline-sync-service/internal/config"
)

func newTestHTTPClient(t *testing.T, handler http.HandlerFunc) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPClient("primary", config.BackendConnection{
		BaseURL: srv.URL,
		Timeout: "2s",
	})
}

func TestHTTPFetchHit(t *testing.T) {
	c := newTestHTTPClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/items/project:1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"v":1}`))
	})

	payload, err := c.Fetch(context.Background(), "project:1")
	if err != nil {
		t.Fatal(err)
	}
	if string(payload) != `{"v":1}` {
		t.Fatalf("unexpected payload %s", payload)
	}
}

func TestHTTPFetchNotFoundIsClean(t *testing.T) {
	c := newTestHTTPClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	payload, err := c.Fetch(context.Background(), "missing")
	if err != nil {
		t.Fatalf("404 is a clean miss, got %v", err)
	}
	if payload != nil {
		t.Fatalf("want nil payload, got %s", payload)
	}
}

func TestHTTPFetchServerErrorIsTransient(t *testing.T) {
	c := newTestHTTPClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := c.Fetch(context.Background(), "k")
	var te *TransientError
	if !errors.As(err, &te) {
		t.Fatalf("want TransientError, got %v", err)
	}
	if !Retryable(err) {
		t.Fatal("server errors must be retryable")
	}
}

func TestHTTPPushSuccess(t *testing.T) {
	c := newTestHTTPClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req PushRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Error(err)
		}
		if req.Version != 3 {
			t.Errorf("want version 3, got %d", req.Version)
		}
		json.NewEncoder(w).Encode(PushResult{Success: true, NewVersion: 3})
	})

	res, err := c.Push(context.Background(), "k", PushRequest{
		Payload: json.RawMessage(`{"v":1}`),
		Version: 3,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success || res.NewVersion != 3 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestHTTPPushConflict(t *testing.T) {
	c := newTestHTTPClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(PushResult{NewVersion: 7})
	})

	res, err := c.Push(context.Background(), "k", PushRequest{Version: 3})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Conflict || res.Success {
		t.Fatalf("409 must report a conflict, got %+v", res)
	}
	if res.NewVersion != 7 {
		t.Fatalf("remote version must come through, got %d", res.NewVersion)
	}
}

func TestHTTPAuthHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sekrit" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewHTTPClient("primary", config.BackendConnection{
		BaseURL:   srv.URL,
		AuthToken: "sekrit",
		Timeout:   "2s",
	})
	if _, err := c.Fetch(context.Background(), "k"); err != nil {
		t.Fatalf("auth header should be sent: %v", err)
	}
}
