package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T, p *Provider) string {
	t.Helper()
	rr := httptest.NewRecorder()
	p.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics status=%d", rr.Code)
	}
	return rr.Body.String()
}

func TestProvider_ExposesDomainMetrics(t *testing.T) {
	p := New("1.2.3")
	p.ObserveQuery("county", nil, 20*time.Millisecond)
	p.ObserveQuery("county", errors.New("boom"), time.Millisecond)
	p.ObserveCache("lru", "hit")
	p.ObserveSelection("select")
	p.SetSessions(3)

	body := scrape(t, p)
	for _, want := range []string{
		`app_build_info{version="1.2.3"} 1`,
		`bcat_query_total{dataset="county",outcome="ok"} 1`,
		`bcat_query_total{dataset="county",outcome="error"} 1`,
		`bcat_query_duration_seconds_bucket{dataset="county"`,
		`bcat_query_cache_total{backend="lru",result="hit"} 1`,
		`panel_selection_total{action="select"} 1`,
		`panel_sessions 3`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("missing %q in scrape:\n%s", want, body)
		}
	}
}

func TestProvider_NilIsNoop(t *testing.T) {
	var p *Provider
	p.ObserveQuery("x", nil, 0)
	p.ObserveCache("lru", "miss")
	p.ObserveSelection("close")
	p.SetSessions(1)
}
