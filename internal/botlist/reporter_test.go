package botlist

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"remindbot/internal/analytics"
	logx "remindbot/pkg/logx"
)

type fixedCounter int

func (f fixedCounter) GetGuildCount(context.Context) (int, error) { return int(f), nil }

type gaugeSink struct {
	analytics.Nop
	guilds int
}

func (g *gaugeSink) SetGuildCount(n int) { g.guilds = n }

func TestReportPostsGuildCount(t *testing.T) {
	t.Parallel()

	var gotAuth string
	var gotBody map[string]int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	sink := &gaugeSink{}
	rep := New(Config{URL: ts.URL, Token: "secret", Interval: time.Hour}, fixedCounter(17), sink, logx.Nop())
	rep.report(context.Background())

	if gotAuth != "secret" {
		t.Fatalf("auth header = %q", gotAuth)
	}
	if gotBody["guildCount"] != 17 {
		t.Fatalf("body = %v, want guildCount 17", gotBody)
	}
	if sink.guilds != 17 {
		t.Fatalf("gauge = %d, want 17", sink.guilds)
	}
}

func TestReportSurvivesEndpointErrors(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	sink := &gaugeSink{}
	rep := New(Config{URL: ts.URL, Token: "secret"}, fixedCounter(3), sink, logx.Nop())
	rep.report(context.Background()) // must not panic or escalate

	// The gauge still updates even when the listing site is down.
	if sink.guilds != 3 {
		t.Fatalf("gauge = %d, want 3", sink.guilds)
	}
}
