package rate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/chartsboard/chartsboard/internal/config"
	"github.com/chartsboard/chartsboard/pkg/logger"
)

func newTestProvider(url string, ttl time.Duration) *Provider {
	return NewProvider(Options{
		URL:          url,
		TTL:          ttl,
		FetchTimeout: 2 * time.Second,
		Default:      decimal.RequireFromString("0.002"),
		Rounding:     config.RoundFloor,
	}, logger.NewNop())
}

func TestRateDefaultWithoutURL(t *testing.T) {
	p := newTestProvider("", time.Minute)
	got := p.Rate(context.Background())
	if !got.Equal(decimal.RequireFromString("0.002")) {
		t.Errorf("Rate() = %s, want default 0.002", got)
	}
}

func TestRateFetchAndCache(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(`{"rate": "0.005"}`))
	}))
	defer srv.Close()

	p := newTestProvider(srv.URL, time.Minute)
	want := decimal.RequireFromString("0.005")
	for i := 0; i < 3; i++ {
		if got := p.Rate(context.Background()); !got.Equal(want) {
			t.Fatalf("Rate() = %s, want %s", got, want)
		}
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("rate source called %d times, want 1 (cached)", n)
	}
}

func TestRateRefetchAfterTTL(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(`0.004`))
	}))
	defer srv.Close()

	p := newTestProvider(srv.URL, time.Minute)
	current := time.Now()
	p.now = func() time.Time { return current }

	p.Rate(context.Background())
	current = current.Add(2 * time.Minute)
	p.Rate(context.Background())

	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Errorf("rate source called %d times, want 2 (TTL expired)", n)
	}
}

func TestRateStaleFallback(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"tons_per_star": 0.003}`))
	}))
	defer srv.Close()

	p := newTestProvider(srv.URL, time.Minute)
	current := time.Now()
	p.now = func() time.Time { return current }

	want := decimal.RequireFromString("0.003")
	if got := p.Rate(context.Background()); !got.Equal(want) {
		t.Fatalf("Rate() = %s, want %s", got, want)
	}

	// Expire the cache and break the source: the stale value must win
	// over the default.
	current = current.Add(2 * time.Minute)
	fail.Store(true)
	if got := p.Rate(context.Background()); !got.Equal(want) {
		t.Errorf("Rate() after source failure = %s, want stale %s", got, want)
	}
}

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    string
		wantErr bool
	}{
		{name: "bare number", body: `0.0025`, want: "0.0025"},
		{name: "rate key", body: `{"rate": 0.004}`, want: "0.004"},
		{name: "rate string", body: `{"rate": "0.004"}`, want: "0.004"},
		{name: "tons_per_star", body: `{"tons_per_star": 0.002}`, want: "0.002"},
		{name: "value key", body: `{"value": 0.01}`, want: "0.01"},
		{name: "inverse quote", body: `{"stars_per_ton": 500}`, want: "0.002"},
		{name: "first rule wins", body: `{"rate": 0.004, "value": 9}`, want: "0.004"},
		{name: "zero rate", body: `{"rate": 0}`, wantErr: true},
		{name: "negative rate", body: `{"rate": -1}`, wantErr: true},
		{name: "unknown keys", body: `{"foo": 1}`, wantErr: true},
		{name: "malformed", body: `{`, wantErr: true},
		{name: "non-numeric string", body: `{"rate": "abc"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseResponse([]byte(tt.body))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseResponse(%s) = %s, want error", tt.body, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseResponse(%s) error: %v", tt.body, err)
			}
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("ParseResponse(%s) = %s, want %s", tt.body, got, tt.want)
			}
		})
	}
}

func TestConvertRounding(t *testing.T) {
	rate := decimal.RequireFromString("0.00333")
	tests := []struct {
		rounding string
		stars    int
		want     string
	}{
		{config.RoundFloor, 100, "0.33"},
		{config.RoundCeil, 100, "0.34"},
		{config.RoundHalf, 100, "0.33"},
		{config.RoundFloor, 1, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.rounding, func(t *testing.T) {
			p := NewProvider(Options{Rounding: tt.rounding}, logger.NewNop())
			got := p.Convert(tt.stars, rate)
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("Convert(%d, %s) with %s = %s, want %s", tt.stars, rate, tt.rounding, got, tt.want)
			}
		})
	}
}
