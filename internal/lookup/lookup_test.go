package lookup

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/smileynet/countrylookup/internal/country"
)

type recordingObserver struct {
	mu    sync.Mutex
	calls []string
}

func (o *recordingObserver) ObserveLookup(kind, outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, kind+":"+outcome)
}

func newServer(t *testing.T, status int, body string) (*httptest.Server, *[]string) {
	t.Helper()
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.RequestURI())
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &paths
}

func TestURLBuilders(t *testing.T) {
	c := New("https://example.test/v3.1/")

	tests := []struct {
		name string
		got  string
		want string
	}{
		{name: "capital", got: c.CapitalURL("tokyo"), want: "https://example.test/v3.1/capital/tokyo"},
		{name: "name", got: c.NameURL("peru"), want: "https://example.test/v3.1/name/peru?fullText=false"},
		{name: "region", got: c.RegionURL(country.Europe), want: "https://example.test/v3.1/region/Europe"},
		{name: "alpha", got: c.AlphaURL("col"), want: "https://example.test/v3.1/alpha/col"},
		{name: "escaped term", got: c.CapitalURL("buenos aires"), want: "https://example.test/v3.1/capital/buenos%20aires"},
		{name: "slash in term", got: c.NameURL("a/b"), want: "https://example.test/v3.1/name/a%2Fb?fullText=false"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestFetch_Success(t *testing.T) {
	// Given a server returning one country
	srv, paths := newServer(t, http.StatusOK, `[{"name":{"common":"Japan"},"capital":["Tokyo"]}]`)
	obs := &recordingObserver{}
	c := New(srv.URL, WithDelay(0), WithObserver(obs))

	// When Fetch is called
	res := c.Fetch(context.Background(), c.CapitalURL("tokyo"))

	// Then the country is returned without error
	if res.Failed() {
		t.Fatalf("Fetch() Err = %v", res.Err)
	}
	if len(res.Countries) != 1 || res.Countries[0].Name.Common != "Japan" {
		t.Fatalf("Countries = %+v, want [Japan]", res.Countries)
	}
	if len(*paths) != 1 || (*paths)[0] != "/capital/tokyo" {
		t.Errorf("requested paths = %v, want [/capital/tokyo]", *paths)
	}
	if len(obs.calls) != 1 || obs.calls[0] != "capital:ok" {
		t.Errorf("observer calls = %v, want [capital:ok]", obs.calls)
	}
}

func TestFetch_EmptyArrayIsEmptySuccess(t *testing.T) {
	srv, _ := newServer(t, http.StatusOK, `[]`)
	c := New(srv.URL, WithDelay(0))

	res := c.Fetch(context.Background(), c.RegionURL(country.Europe))

	if res.Failed() {
		t.Fatalf("Fetch() Err = %v, want nil", res.Err)
	}
	if res.Countries == nil || len(res.Countries) != 0 {
		t.Errorf("Countries = %#v, want empty non-nil slice", res.Countries)
	}
}

func TestFetch_NotFoundIsEmptySuccess(t *testing.T) {
	// Given the API's "no match" response
	srv, _ := newServer(t, http.StatusNotFound, `{"status":404,"message":"Not Found"}`)
	obs := &recordingObserver{}
	c := New(srv.URL, WithDelay(0), WithObserver(obs))

	// When Fetch is called
	res := c.Fetch(context.Background(), c.NameURL("zzz"))

	// Then it is an empty success, not a failure
	if res.Failed() {
		t.Fatalf("Fetch() Err = %v, want nil", res.Err)
	}
	if len(res.Countries) != 0 {
		t.Errorf("Countries len = %d, want 0", len(res.Countries))
	}
	if len(obs.calls) != 1 || obs.calls[0] != "name:empty" {
		t.Errorf("observer calls = %v, want [name:empty]", obs.calls)
	}
}

func TestFetch_FailuresCollapseToEmpty(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
	}{
		{name: "server error", status: http.StatusInternalServerError, body: `oops`, wantStatus: 500},
		{name: "bad gateway", status: http.StatusBadGateway, body: ``, wantStatus: 502},
		{name: "malformed json", status: http.StatusOK, body: `[{"name":`, wantStatus: 200},
		{name: "empty body", status: http.StatusOK, body: ``, wantStatus: 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given a failing server
			srv, _ := newServer(t, tt.status, tt.body)
			c := New(srv.URL, WithDelay(0))

			// When Fetch is called
			res := c.Fetch(context.Background(), c.CapitalURL("x"))

			// Then the result is empty and marked failed
			if !res.Failed() {
				t.Fatal("Fetch() Failed() = false, want true")
			}
			if res.Countries == nil || len(res.Countries) != 0 {
				t.Errorf("Countries = %#v, want empty non-nil slice", res.Countries)
			}
			var le *LookupError
			if !errors.As(res.Err, &le) {
				t.Fatalf("Err = %T, want *LookupError", res.Err)
			}
			if le.Status != tt.wantStatus {
				t.Errorf("Status = %d, want %d", le.Status, tt.wantStatus)
			}
		})
	}
}

func TestFetch_TransportFailure(t *testing.T) {
	// Given a server that is already closed
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()
	obs := &recordingObserver{}
	c := New(base, WithDelay(0), WithObserver(obs))

	// When Fetch is called
	res := c.Fetch(context.Background(), c.RegionURL(country.Asia))

	// Then the failure is carried in the result, not raised
	if !res.Failed() {
		t.Fatal("Fetch() Failed() = false, want true")
	}
	if len(res.Countries) != 0 {
		t.Errorf("Countries len = %d, want 0", len(res.Countries))
	}
	if len(obs.calls) != 1 || obs.calls[0] != "region:error" {
		t.Errorf("observer calls = %v, want [region:error]", obs.calls)
	}
}

func TestFetch_AppliesDelay(t *testing.T) {
	srv, _ := newServer(t, http.StatusOK, `[]`)
	c := New(srv.URL, WithDelay(50*time.Millisecond))

	start := time.Now()
	_ = c.Fetch(context.Background(), c.CapitalURL("x"))

	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("Fetch returned after %v, want at least 50ms", elapsed)
	}
}

func TestFetch_AppliesDelayToEveryOutcome(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantFailed bool
	}{
		{name: "server error", status: http.StatusInternalServerError, body: `oops`, wantFailed: true},
		{name: "malformed body", status: http.StatusOK, body: `{not json`, wantFailed: true},
		{name: "not found", status: http.StatusNotFound, body: `{"status":404}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given a server that does not return countries
			srv, _ := newServer(t, tt.status, tt.body)
			c := New(srv.URL, WithDelay(50*time.Millisecond))

			// When Fetch runs
			start := time.Now()
			res := c.Fetch(context.Background(), c.CapitalURL("x"))
			elapsed := time.Since(start)

			// Then the delay is still waited out
			if elapsed < 50*time.Millisecond {
				t.Errorf("Fetch returned after %v, want at least 50ms", elapsed)
			}
			if res.Failed() != tt.wantFailed {
				t.Errorf("Failed() = %v, want %v", res.Failed(), tt.wantFailed)
			}
		})
	}
}

func TestFetch_CancelDuringDelay(t *testing.T) {
	// Given a long artificial delay
	srv, _ := newServer(t, http.StatusOK, `[{"name":{"common":"Peru"}}]`)
	c := New(srv.URL, WithDelay(time.Minute))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// When the context ends during the delay
	res := c.Fetch(ctx, c.NameURL("peru"))

	// Then Fetch returns promptly with a failure
	if !res.Failed() {
		t.Fatal("Fetch() Failed() = false, want true")
	}
	if !errors.Is(res.Err, context.DeadlineExceeded) {
		t.Errorf("Err = %v, want DeadlineExceeded", res.Err)
	}
	if len(res.Countries) != 0 {
		t.Errorf("Countries len = %d, want 0", len(res.Countries))
	}
}

func TestFirst(t *testing.T) {
	t.Run("array returns first", func(t *testing.T) {
		srv, _ := newServer(t, http.StatusOK, `[{"name":{"common":"Colombia"}},{"name":{"common":"Other"}}]`)
		c := New(srv.URL, WithDelay(time.Minute))

		start := time.Now()
		got, ok, err := c.First(context.Background(), c.AlphaURL("col"))
		if err != nil || !ok {
			t.Fatalf("First() = (_, %v, %v), want found", ok, err)
		}
		if got.Name.Common != "Colombia" {
			t.Errorf("Name = %q, want Colombia", got.Name.Common)
		}
		if time.Since(start) > 10*time.Second {
			t.Error("First should not apply the artificial delay")
		}
	})

	t.Run("single object", func(t *testing.T) {
		srv, _ := newServer(t, http.StatusOK, `{"name":{"common":"Peru"}}`)
		c := New(srv.URL)

		got, ok, _ := c.First(context.Background(), c.AlphaURL("per"))
		if !ok || got.Name.Common != "Peru" {
			t.Errorf("First() = (%q, %v), want (Peru, true)", got.Name.Common, ok)
		}
	})

	t.Run("no match", func(t *testing.T) {
		srv, _ := newServer(t, http.StatusNotFound, `{"status":404}`)
		c := New(srv.URL)

		_, ok, err := c.First(context.Background(), c.AlphaURL("xx"))
		if ok {
			t.Error("First() found = true, want false")
		}
		if err != nil {
			t.Errorf("First() error = %v, want nil for no match", err)
		}
	})

	t.Run("failure", func(t *testing.T) {
		srv, _ := newServer(t, http.StatusInternalServerError, ``)
		c := New(srv.URL)

		_, ok, err := c.First(context.Background(), c.AlphaURL("xx"))
		if ok {
			t.Error("First() found = true, want false")
		}
		if err == nil {
			t.Error("First() error = nil, want LookupError")
		}
	})
}

func TestKindOf(t *testing.T) {
	c := New("http://api.test/v3.1")
	tests := map[string]string{
		"http://api.test/v3.1/capital/tokyo":            "capital",
		"http://api.test/v3.1/name/peru?fullText=false": "name",
		"http://api.test/v3.1/alpha/col":                "alpha",
		"http://elsewhere.test/x":                       "other",
	}
	for in, want := range tests {
		if got := c.kindOf(in); got != want {
			t.Errorf("kindOf(%q) = %q, want %q", in, got, want)
		}
	}
}
