package wolt

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	logx "woltbot/pkg/logx"
)

func nopLogger() logx.Logger { return logx.Nop() }

func newClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := New(Config{BaseURL: srv.URL, Timeout: 2 * time.Second}, nopLogger())
	return c, srv
}

func TestSearchMapsSectionsToRestaurants(t *testing.T) {
	t.Parallel()

	c, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/pages/search" {
			t.Errorf("path = %q, want /v1/pages/search", r.URL.Path)
		}
		if got := r.URL.Query().Get("q"); got != "pizza" {
			t.Errorf("q = %q, want %q", got, "pizza")
		}
		if r.URL.Query().Get("lat") == "" || r.URL.Query().Get("lon") == "" {
			t.Error("lat/lon missing from search query")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"sections":[{"name":"venues","items":[
			{"title":"Pizza Roma","venue":{"slug":"pizza-roma"}},
			{"title":"Pizza Napoli","venue":{"slug":"pizza-napoli"}}
		]}]}`))
	})

	got, err := c.Search(context.Background(), "pizza")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	want := []Restaurant{
		{Name: "Pizza Roma", Slug: "pizza-roma"},
		{Name: "Pizza Napoli", Slug: "pizza-napoli"},
	}
	if len(got) != len(want) {
		t.Fatalf("Search() returned %d results, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("result[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestSearchNoContentMeansZeroMatches(t *testing.T) {
	t.Parallel()

	c, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"sections":[{"name":"no-content","items":[]}]}`))
	})

	got, err := c.Search(context.Background(), "zzzzz")
	if err != nil {
		t.Fatalf("Search() error = %v, want nil", err)
	}
	if len(got) != 0 {
		t.Fatalf("Search() returned %d results, want 0", len(got))
	}
}

func TestSearchMalformedResponses(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{"no sections", `{"sections":[]}`},
		{"missing venue", `{"sections":[{"name":"venues","items":[{"title":"Ghost Kitchen"}]}]}`},
		{"missing slug", `{"sections":[{"name":"venues","items":[{"title":"Ghost Kitchen","venue":{}}]}]}`},
		{"missing title", `{"sections":[{"name":"venues","items":[{"venue":{"slug":"ghost"}}]}]}`},
		{"not json", `<html>maintenance</html>`},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := c.Search(context.Background(), "pizza")
			if err == nil {
				t.Fatal("Search() error = nil, want DirectoryError")
			}
			if !IsDirectoryError(err) {
				t.Fatalf("IsDirectoryError(%v) = false, want true", err)
			}
		})
	}
}

func TestSearchNon2xxIsDirectoryError(t *testing.T) {
	t.Parallel()

	c, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	})

	_, err := c.Search(context.Background(), "pizza")
	if !IsDirectoryError(err) {
		t.Fatalf("IsDirectoryError(%v) = false, want true", err)
	}
}

func TestSearchTransportFailureIsNotDirectoryError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on
	c := New(Config{BaseURL: srv.URL, Timeout: time.Second}, nopLogger())

	_, err := c.Search(context.Background(), "pizza")
	if err == nil {
		t.Fatal("Search() error = nil, want transport error")
	}
	if IsDirectoryError(err) {
		t.Fatalf("IsDirectoryError(%v) = true, want false", err)
	}
}

func TestCheckOnline(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		want    bool
		wantDir bool
	}{
		{
			name: "online and delivering",
			body: `{"results":[{"online":true,"delivery_specs":{"delivery_enabled":true}}]}`,
			want: true,
		},
		{
			name: "online but not delivering",
			body: `{"results":[{"online":true,"delivery_specs":{"delivery_enabled":false}}]}`,
			want: false,
		},
		{
			name: "offline",
			body: `{"results":[{"online":false,"delivery_specs":{"delivery_enabled":true}}]}`,
			want: false,
		},
		{
			name:    "no results",
			body:    `{"results":[]}`,
			wantDir: true,
		},
		{
			name:    "missing online flag",
			body:    `{"results":[{"delivery_specs":{"delivery_enabled":true}}]}`,
			wantDir: true,
		},
		{
			name:    "missing delivery specs",
			body:    `{"results":[{"online":true}]}`,
			wantDir: true,
		},
		{
			name:    "missing delivery_enabled",
			body:    `{"results":[{"online":true,"delivery_specs":{}}]}`,
			wantDir: true,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/v3/venues/slug/pizza-roma" {
					t.Errorf("path = %q, want /v3/venues/slug/pizza-roma", r.URL.Path)
				}
				_, _ = w.Write([]byte(tt.body))
			})
			got, err := c.CheckOnline(context.Background(), Restaurant{Name: "Pizza Roma", Slug: "pizza-roma"})
			if tt.wantDir {
				if !IsDirectoryError(err) {
					t.Fatalf("IsDirectoryError(%v) = false, want true", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("CheckOnline() error = %v", err)
			}
			if got != tt.want {
				t.Fatalf("CheckOnline() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCheckOnlineCanceledContext(t *testing.T) {
	t.Parallel()

	c, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.CheckOnline(ctx, Restaurant{Slug: "pizza-roma"})
	if err != context.Canceled {
		t.Fatalf("CheckOnline() error = %v, want context.Canceled", err)
	}
}

func TestNewDefaults(t *testing.T) {
	t.Parallel()

	c := New(Config{}, nopLogger())
	if c.base != DefaultBaseURL {
		t.Errorf("base = %q, want %q", c.base, DefaultBaseURL)
	}
	if c.lat != "32.075409" || c.lon != "34.775134" {
		t.Errorf("lat/lon = %q/%q, want defaults", c.lat, c.lon)
	}
	if c.hc.Timeout != 10*time.Second {
		t.Errorf("timeout = %v, want 10s", c.hc.Timeout)
	}
}
