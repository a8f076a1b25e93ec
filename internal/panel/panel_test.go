package panel

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-bcat/internal/bcat"
	"github.com/joeblew999/plat-bcat/internal/metrics"
)

type fakeSource struct {
	mu      sync.Mutex
	calls   int
	fc      *geojson.FeatureCollection
	err     error
	release chan struct{}
}

func (f *fakeSource) FeatureCollection(ctx context.Context, _ bcat.Query) (*geojson.FeatureCollection, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.fc, f.err
}

func (f *fakeSource) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fitCall struct {
	bound orb.Bound
	opts  FitOptions
}

type fakeCamera struct {
	calls []fitCall
	err   error
}

func (c *fakeCamera) FitBounds(_ context.Context, b orb.Bound, opts FitOptions) error {
	c.calls = append(c.calls, fitCall{b, opts})
	return c.err
}

func square(minLng, minLat, maxLng, maxLat float64) orb.Polygon {
	return orb.Polygon{{
		{minLng, minLat}, {maxLng, minLat}, {maxLng, maxLat}, {minLng, maxLat}, {minLng, minLat},
	}}
}

func tennessee() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	tn := geojson.NewFeature(square(-87.0, 35.0, -86.0, 36.0))
	tn.Properties["state_abbr"] = "TN"
	fc.Append(tn)

	bare := geojson.NewFeature(square(-85.0, 34.0, -84.0, 34.5))
	fc.Append(bare)

	noGeom := &geojson.Feature{Type: "Feature", Properties: geojson.Properties{"state_abbr": "KY"}}
	fc.Append(noGeom)

	return fc
}

func loaded(t *testing.T) *Panel {
	t.Helper()
	p := New(&fakeSource{fc: tennessee()}, bcat.Query{Dataset: bcat.DefaultDataset, RegionCode: "TN", BypassCache: true}, nil, nil)
	if err := p.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return p
}

func TestSelect_CenterIsBoundingBoxMidpoint(t *testing.T) {
	p := loaded(t)
	cam := &fakeCamera{}

	sel, err := p.Select(context.Background(), []int{0}, cam)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if sel.Longitude() != -86.5 || sel.Latitude() != 35.5 {
		t.Fatalf("center=(%v, %v) want (-86.5, 35.5)", sel.Longitude(), sel.Latitude())
	}
	if sel.Label != "Feature in TN" {
		t.Fatalf("label=%q", sel.Label)
	}
	if sel.BBox() != [4]float64{-87, 35, -86, 36} {
		t.Fatalf("bbox=%v", sel.BBox())
	}
	if !sel.Valid() {
		t.Fatal("selection should be valid")
	}
	if p.State() != WithSelection {
		t.Fatalf("state=%v", p.State())
	}
}

func TestSelect_FitsCameraWithFixedPaddingAndDuration(t *testing.T) {
	p := loaded(t)
	cam := &fakeCamera{}

	if _, err := p.Select(context.Background(), []int{0}, cam); err != nil {
		t.Fatal(err)
	}
	if len(cam.calls) != 1 {
		t.Fatalf("fit calls=%d want 1", len(cam.calls))
	}
	got := cam.calls[0]
	want := orb.Bound{Min: orb.Point{-87, 35}, Max: orb.Point{-86, 36}}
	if got.bound != want {
		t.Fatalf("bound=%v want %v", got.bound, want)
	}
	if got.opts.Padding != 40 || got.opts.Duration != time.Second {
		t.Fatalf("opts=%+v", got.opts)
	}
}

func TestSelect_LabelFallsBackWithoutRegionCode(t *testing.T) {
	p := loaded(t)
	sel, err := p.Select(context.Background(), []int{1}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if sel.Label != "Feature" {
		t.Fatalf("label=%q want Feature", sel.Label)
	}
}

func TestLabel(t *testing.T) {
	cases := []struct {
		props geojson.Properties
		want  string
	}{
		{geojson.Properties{"state_abbr": "TN"}, "Feature in TN"},
		{geojson.Properties{"state_abbr": ""}, "Feature"},
		{geojson.Properties{"state_abbr": 47}, "Feature"},
		{geojson.Properties{"county": "Rutherford"}, "Feature"},
		{nil, "Feature"},
	}
	for _, c := range cases {
		if got := Label(c.props); got != c.want {
			t.Errorf("Label(%v)=%q want %q", c.props, got, c.want)
		}
	}
}

func TestSelect_TopmostUsableHitWins(t *testing.T) {
	p := loaded(t)

	// 2 has no geometry, 99 is out of range; 1 is the first usable hit.
	sel, err := p.Select(context.Background(), []int{99, 2, 1, 0}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if sel.FeatureID != 1 {
		t.Fatalf("feature=%d want 1", sel.FeatureID)
	}
}

func TestSelect_NoUsableHitLeavesSelection(t *testing.T) {
	p := loaded(t)
	if _, err := p.Select(context.Background(), []int{0}, nil); err != nil {
		t.Fatal(err)
	}
	cam := &fakeCamera{}

	sel, err := p.Select(context.Background(), []int{-1, 2}, cam)
	if err != nil || sel != nil {
		t.Fatalf("sel=%v err=%v want nil, nil", sel, err)
	}
	if len(cam.calls) != 0 {
		t.Fatal("camera moved without a selection")
	}
	if cur := p.Selection(); cur == nil || cur.FeatureID != 0 {
		t.Fatalf("selection changed: %+v", cur)
	}
}

func TestSelect_ReplacesNeverStacks(t *testing.T) {
	p := loaded(t)
	ctx := context.Background()

	if _, err := p.Select(ctx, []int{0}, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Select(ctx, []int{1}, nil); err != nil {
		t.Fatal(err)
	}
	if cur := p.Selection(); cur == nil || cur.FeatureID != 1 {
		t.Fatalf("selection=%+v want feature 1", cur)
	}

	if !p.Close() {
		t.Fatal("Close reported nothing to clear")
	}
	if p.Selection() != nil || p.State() != NoSelection {
		t.Fatalf("after close: state=%v", p.State())
	}
	if p.Close() {
		t.Fatal("second Close cleared something")
	}
}

func TestSelect_BBoxMemberWinsOverGeometry(t *testing.T) {
	fc := geojson.NewFeatureCollection()
	f := geojson.NewFeature(square(-90, 30, -80, 40))
	f.BBox = geojson.BBox{-88, 31, -86, 33}
	fc.Append(f)

	p := New(&fakeSource{fc: fc}, bcat.Query{Dataset: bcat.DefaultDataset}, nil, nil)
	if err := p.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	sel, err := p.Select(context.Background(), []int{0}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if sel.Longitude() != -87 || sel.Latitude() != 32 {
		t.Fatalf("center=%v want (-87, 32)", sel.Center)
	}
}

func TestSelect_CameraErrorKeepsSelection(t *testing.T) {
	p := loaded(t)
	sel, err := p.Select(context.Background(), []int{0}, &fakeCamera{err: errors.New("stream closed")})
	if err == nil {
		t.Fatal("expected camera error")
	}
	if sel == nil || p.Selection() == nil {
		t.Fatal("selection dropped on camera error")
	}
}

func TestSelect_BeforeLoad(t *testing.T) {
	p := New(&fakeSource{fc: tennessee()}, bcat.Query{Dataset: bcat.DefaultDataset}, nil, nil)
	if _, err := p.Select(context.Background(), []int{0}, nil); !errors.Is(err, ErrNotLoaded) {
		t.Fatalf("err=%v want ErrNotLoaded", err)
	}
}

func TestLoad_StaysLoadingUntilResolved(t *testing.T) {
	src := &fakeSource{fc: tennessee(), release: make(chan struct{})}
	p := New(src, bcat.Query{Dataset: bcat.DefaultDataset}, nil, nil)

	done := make(chan error, 1)
	go func() { done <- p.Load(context.Background()) }()

	for src.Calls() == 0 {
		time.Sleep(time.Millisecond)
	}
	if p.State() != Loading {
		t.Fatalf("state=%v while pending", p.State())
	}
	if _, ok := p.Layers(); ok {
		t.Fatal("layers available while pending")
	}

	close(src.release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if p.State() != NoSelection {
		t.Fatalf("state=%v after resolve", p.State())
	}
	ls, ok := p.Layers()
	if !ok || len(ls.Layers()) != 2 {
		t.Fatalf("layers=%+v ok=%v", ls, ok)
	}
}

func TestLoad_ErrorLeavesPlaceholderAndIsNotRetried(t *testing.T) {
	src := &fakeSource{err: errors.New("network down")}
	p := New(src, bcat.Query{Dataset: bcat.DefaultDataset, RegionCode: "TN"}, nil, nil)

	if err := p.Load(context.Background()); err == nil {
		t.Fatal("expected load error")
	}
	if err := p.Load(context.Background()); err == nil {
		t.Fatal("expected recorded load error")
	}
	if src.Calls() != 1 {
		t.Fatalf("calls=%d want 1", src.Calls())
	}
	if p.State() != Loading || p.Selection() != nil || p.Err() == nil {
		t.Fatalf("state=%v selection=%v err=%v", p.State(), p.Selection(), p.Err())
	}
	if _, ok := p.Layers(); ok {
		t.Fatal("map layers after failed query")
	}
	if _, err := p.Select(context.Background(), []int{0}, nil); !errors.Is(err, ErrNotLoaded) {
		t.Fatalf("select err=%v want ErrNotLoaded", err)
	}
}

func TestLoad_CancelledAttemptIsRetried(t *testing.T) {
	src := &fakeSource{fc: tennessee(), release: make(chan struct{})}
	p := New(src, bcat.Query{Dataset: bcat.DefaultDataset}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Load(ctx); err == nil {
		t.Fatal("expected cancelled load to fail")
	}
	if p.Err() != nil {
		t.Fatalf("cancelled load recorded: %v", p.Err())
	}

	close(src.release)
	if err := p.Load(context.Background()); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if src.Calls() != 2 {
		t.Fatalf("calls=%d want 2", src.Calls())
	}
}

func TestLoad_ResolvesOnce(t *testing.T) {
	src := &fakeSource{fc: tennessee()}
	p := New(src, bcat.Query{Dataset: bcat.DefaultDataset}, nil, nil)
	for i := 0; i < 3; i++ {
		if err := p.Load(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if src.Calls() != 1 {
		t.Fatalf("calls=%d want 1", src.Calls())
	}
}

func TestRegistry_OpenGet(t *testing.T) {
	made := 0
	r := NewRegistry(4, time.Minute, func() *Panel {
		made++
		return New(&fakeSource{}, bcat.Query{Dataset: bcat.DefaultDataset}, nil, nil)
	}, nil)

	a := r.Open("a")
	if r.Open("a") != a || made != 1 {
		t.Fatalf("Open did not reuse the session (made=%d)", made)
	}
	if _, ok := r.Get("b"); ok {
		t.Fatal("unknown session found")
	}
	r.Open("b")
	if r.Len() != 2 {
		t.Fatalf("len=%d", r.Len())
	}
	if r.Open("c"); r.Len() != 3 {
		t.Fatalf("len=%d", r.Len())
	}
}

func TestRegistry_SizeLimitEvictsOldest(t *testing.T) {
	r := NewRegistry(2, time.Minute, func() *Panel {
		return New(&fakeSource{}, bcat.Query{Dataset: bcat.DefaultDataset}, nil, nil)
	}, nil)
	r.Open("a")
	r.Open("b")
	r.Open("c")
	if _, ok := r.Get("a"); ok {
		t.Fatal("oldest session survived the size limit")
	}
	if r.Len() != 2 {
		t.Fatalf("len=%d want 2", r.Len())
	}
}

func TestRegistry_IdleSessionsExpire(t *testing.T) {
	r := NewRegistry(4, 20*time.Millisecond, func() *Panel {
		return New(&fakeSource{}, bcat.Query{Dataset: bcat.DefaultDataset}, nil, nil)
	}, nil)
	r.Open("a")
	time.Sleep(60 * time.Millisecond)
	if _, ok := r.Get("a"); ok {
		t.Fatal("idle session survived its TTL")
	}
}

func TestRegistry_SessionGaugeFallsOnExpiry(t *testing.T) {
	m := metrics.New("test")
	r := NewRegistry(4, 20*time.Millisecond, func() *Panel {
		return New(&fakeSource{}, bcat.Query{Dataset: bcat.DefaultDataset}, nil, nil)
	}, m)
	r.Open("a")
	r.Open("b")
	if got := scrapeSessions(t, m); got != "panel_sessions 2" {
		t.Fatalf("after open: %q", got)
	}

	deadline := time.Now().Add(2 * time.Second)
	for r.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("sessions never swept, len=%d", r.Len())
		}
		time.Sleep(10 * time.Millisecond)
	}
	if got := scrapeSessions(t, m); got != "panel_sessions 0" {
		t.Fatalf("after expiry: %q", got)
	}

	r.Open("a")
	if got := scrapeSessions(t, m); got != "panel_sessions 1" {
		t.Fatalf("after reopen: %q", got)
	}
}

func scrapeSessions(t *testing.T, m *metrics.Provider) string {
	t.Helper()
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	for _, line := range strings.Split(w.Body.String(), "\n") {
		if strings.HasPrefix(line, "panel_sessions ") {
			return line
		}
	}
	t.Fatalf("no panel_sessions in scrape:\n%s", w.Body)
	return ""
}

func TestBus_FanOut(t *testing.T) {
	b := NewBus()
	a, c := b.Subscribe(), b.Subscribe()
	b.Publish(Event{Session: "s1", Action: "closed"})
	for _, ch := range []chan Event{a, c} {
		if e := <-ch; e.Session != "s1" || e.Action != "closed" {
			t.Fatalf("event = %+v", e)
		}
	}
	b.Unsubscribe(a)
	if _, ok := <-a; ok {
		t.Fatal("unsubscribed channel still open")
	}
	b.Publish(Event{Session: "s2"})
	if e := <-c; e.Session != "s2" {
		t.Fatalf("event = %+v", e)
	}
}
