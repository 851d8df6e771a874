package tracking

import (
	"context"
	"errors"
	"testing"
	"time"

	"omnisearch/domain"
)

type fakeEventRepo struct {
	impressions []domain.Impression
	clicks      []domain.ClickEvent

	saveErr  error
	queryErr error
	// partialOnErr returns the matching rows alongside queryErr, the way a
	// range read that blew its deadline mid-scan does.
	partialOnErr bool
}

func (f *fakeEventRepo) SaveImpression(ctx context.Context, imp domain.Impression) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.impressions = append(f.impressions, imp)
	return nil
}

func (f *fakeEventRepo) SaveClick(ctx context.Context, click domain.ClickEvent) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.clicks = append(f.clicks, click)
	return nil
}

func (f *fakeEventRepo) QueryImpressions(ctx context.Context, filter domain.EventFilter, since time.Time) ([]domain.Impression, error) {
	if f.queryErr != nil && !f.partialOnErr {
		return nil, f.queryErr
	}
	var out []domain.Impression
	for _, imp := range f.impressions {
		if imp.Timestamp.Before(since) {
			continue
		}
		if filter.UserID != "" && imp.UserID != filter.UserID {
			continue
		}
		if filter.Variant != "" && imp.Variant != filter.Variant {
			continue
		}
		out = append(out, imp)
	}
	return out, f.queryErr
}

func (f *fakeEventRepo) QueryClicks(ctx context.Context, filter domain.EventFilter, since time.Time) ([]domain.ClickEvent, error) {
	if f.queryErr != nil && !f.partialOnErr {
		return nil, f.queryErr
	}
	var out []domain.ClickEvent
	for _, click := range f.clicks {
		if click.Timestamp.Before(since) {
			continue
		}
		if filter.UserID != "" && click.UserID != filter.UserID {
			continue
		}
		if filter.Variant != "" && click.Variant != filter.Variant {
			continue
		}
		out = append(out, click)
	}
	return out, f.queryErr
}

func (f *fakeEventRepo) DeleteAll(ctx context.Context) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.impressions = nil
	f.clicks = nil
	return nil
}

func validImpression() domain.Impression {
	return domain.Impression{
		UserID:         "user-1",
		Query:          "red dress",
		Variant:        domain.VariantSearchV1,
		ResultsCount:   10,
		ResponseTimeMs: 42.5,
	}
}

func validClick() domain.ClickEvent {
	return domain.ClickEvent{
		UserID:    "user-1",
		ProductID: "prod-7",
		Rank:      2,
		Variant:   domain.VariantSearchV2,
		Source:    domain.SourceSearchResults,
	}
}

func TestRecordImpressionStored(t *testing.T) {
	repo := &fakeEventRepo{}
	svc := NewService(repo, 10)

	status, err := svc.RecordImpression(context.Background(), validImpression())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != RecordStored {
		t.Fatalf("expected RecordStored, got %v", status)
	}
	if len(repo.impressions) != 1 {
		t.Fatalf("expected 1 stored impression, got %d", len(repo.impressions))
	}
	if repo.impressions[0].ID == "" {
		t.Error("expected generated ID")
	}
	if repo.impressions[0].Timestamp.IsZero() {
		t.Error("expected generated timestamp")
	}
}

func TestRecordImpressionRejected(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*domain.Impression)
		field  string
	}{
		{"missing user", func(i *domain.Impression) { i.UserID = "" }, "user_id"},
		{"missing query", func(i *domain.Impression) { i.Query = "" }, "query"},
		{"bad variant", func(i *domain.Impression) { i.Variant = "search_v9" }, "variant"},
		{"negative results", func(i *domain.Impression) { i.ResultsCount = -1 }, "results_count"},
		{"negative latency", func(i *domain.Impression) { i.ResponseTimeMs = -0.1 }, "response_time_ms"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := &fakeEventRepo{}
			svc := NewService(repo, 10)

			imp := validImpression()
			tc.mutate(&imp)

			status, err := svc.RecordImpression(context.Background(), imp)
			if status != RecordRejected {
				t.Fatalf("expected RecordRejected, got %v", status)
			}
			var ve *domain.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if ve.Field != tc.field {
				t.Errorf("expected field %q, got %q", tc.field, ve.Field)
			}
			if len(repo.impressions) != 0 {
				t.Error("rejected event must not be stored")
			}
		})
	}
}

func TestRecordClickRejected(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*domain.ClickEvent)
	}{
		{"missing user", func(c *domain.ClickEvent) { c.UserID = "" }},
		{"missing product", func(c *domain.ClickEvent) { c.ProductID = "" }},
		{"negative rank", func(c *domain.ClickEvent) { c.Rank = -1 }},
		{"bad variant", func(c *domain.ClickEvent) { c.Variant = "v3" }},
		{"bad source", func(c *domain.ClickEvent) { c.Source = "sidebar" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := NewService(&fakeEventRepo{}, 10)

			click := validClick()
			tc.mutate(&click)

			status, err := svc.RecordClick(context.Background(), click)
			if status != RecordRejected {
				t.Fatalf("expected RecordRejected, got %v", status)
			}
			if err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestRecordFallsBackToBufferWhenStoreDown(t *testing.T) {
	repo := &fakeEventRepo{saveErr: errors.New("connection refused")}
	svc := NewService(repo, 10)

	status, err := svc.RecordImpression(context.Background(), validImpression())
	if err != nil {
		t.Fatalf("store outage must not surface as an error: %v", err)
	}
	if status != RecordBuffered {
		t.Fatalf("expected RecordBuffered, got %v", status)
	}
	if !svc.Degraded() {
		t.Error("service should be degraded after a failed write")
	}
	if svc.impBuf.len() != 1 {
		t.Fatalf("expected 1 buffered impression, got %d", svc.impBuf.len())
	}
}

func TestBufferEvictsOldestWhenFull(t *testing.T) {
	repo := &fakeEventRepo{saveErr: errors.New("down")}
	svc := NewService(repo, 3)

	for i := 0; i < 5; i++ {
		imp := validImpression()
		imp.Query = string(rune('a' + i))
		if _, err := svc.RecordImpression(context.Background(), imp); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	items := svc.impBuf.items()
	if len(items) != 3 {
		t.Fatalf("expected buffer capped at 3, got %d", len(items))
	}
	// oldest two ("a", "b") evicted
	if items[0].Query != "c" || items[2].Query != "e" {
		t.Errorf("expected oldest-first eviction, got queries %q..%q", items[0].Query, items[2].Query)
	}
}

func TestRecoveryDrainsBuffer(t *testing.T) {
	repo := &fakeEventRepo{saveErr: errors.New("down")}
	svc := NewService(repo, 10)

	for i := 0; i < 3; i++ {
		if _, err := svc.RecordImpression(context.Background(), validImpression()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if svc.impBuf.len() != 3 {
		t.Fatalf("expected 3 buffered, got %d", svc.impBuf.len())
	}

	// store comes back; next successful write must replay the buffer
	repo.saveErr = nil
	status, err := svc.RecordImpression(context.Background(), validImpression())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != RecordStored {
		t.Fatalf("expected RecordStored after recovery, got %v", status)
	}
	svc.drainWG.Wait()
	if svc.Degraded() {
		t.Error("service should have recovered")
	}
	if svc.impBuf.len() != 0 {
		t.Errorf("expected drained buffer, got %d", svc.impBuf.len())
	}
	if len(repo.impressions) != 4 {
		t.Errorf("expected 4 persisted impressions after replay, got %d", len(repo.impressions))
	}
}

// flakyRepo allows a fixed number of saves before failing again.
type flakyRepo struct {
	fakeEventRepo
	allowed int
}

func (f *flakyRepo) SaveImpression(ctx context.Context, imp domain.Impression) error {
	if f.allowed <= 0 {
		return errors.New("down again")
	}
	f.allowed--
	return f.fakeEventRepo.SaveImpression(ctx, imp)
}

func TestReplayFailureRebuffersRemainder(t *testing.T) {
	repo := &flakyRepo{}
	svc := NewService(repo, 10)

	for i := 0; i < 2; i++ {
		if _, err := svc.RecordImpression(context.Background(), validImpression()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if svc.impBuf.len() != 2 {
		t.Fatalf("expected 2 buffered, got %d", svc.impBuf.len())
	}

	// store allows exactly one write: the recovering record succeeds, the
	// replay fails and must put the drained events back
	repo.allowed = 1
	status, err := svc.RecordImpression(context.Background(), validImpression())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != RecordStored {
		t.Fatalf("expected RecordStored, got %v", status)
	}
	svc.drainWG.Wait()

	if !svc.Degraded() {
		t.Error("service should be degraded again after a failed replay")
	}
	if svc.impBuf.len() != 2 {
		t.Errorf("expected 2 re-buffered impressions, got %d", svc.impBuf.len())
	}
	if len(repo.impressions) != 1 {
		t.Errorf("expected only the recovering write persisted, got %d", len(repo.impressions))
	}
}

func TestQueryDeadlineKeepsPartialRows(t *testing.T) {
	imp := validImpression()
	imp.Timestamp = time.Now()
	repo := &fakeEventRepo{
		impressions:  []domain.Impression{imp},
		queryErr:     context.DeadlineExceeded,
		partialOnErr: true,
	}
	svc := NewService(repo, 10)

	res, err := svc.QueryImpressions(context.Background(), domain.EventFilter{})
	if err != nil {
		t.Fatalf("timed-out query must not error: %v", err)
	}
	if !res.Truncated {
		t.Error("expected Truncated flag")
	}
	if res.Degraded {
		t.Error("a blown query deadline must not flag degradation")
	}
	if len(res.Impressions) != 1 {
		t.Fatalf("expected the partial rows to survive, got %d", len(res.Impressions))
	}
	if svc.Degraded() {
		t.Error("a blown query deadline must not flip the service into degraded mode")
	}
}

func TestQueryImpressionsDegradedServesBuffer(t *testing.T) {
	repo := &fakeEventRepo{saveErr: errors.New("down"), queryErr: errors.New("down")}
	svc := NewService(repo, 10)

	imp := validImpression()
	if _, err := svc.RecordImpression(context.Background(), imp); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	res, err := svc.QueryImpressions(context.Background(), domain.EventFilter{UserID: "user-1"})
	if err != nil {
		t.Fatalf("degraded query must not error: %v", err)
	}
	if !res.Degraded {
		t.Error("expected Degraded flag")
	}
	if len(res.Impressions) != 1 {
		t.Fatalf("expected buffered impression served, got %d", len(res.Impressions))
	}
}

func TestQueryImpressionsTruncated(t *testing.T) {
	repo := &fakeEventRepo{queryErr: domain.ErrQueryTruncated}
	svc := NewService(repo, 10)

	res, err := svc.QueryImpressions(context.Background(), domain.EventFilter{})
	if err != nil {
		t.Fatalf("truncated query must not error: %v", err)
	}
	if !res.Truncated {
		t.Error("expected Truncated flag")
	}
	if res.Degraded {
		t.Error("truncation is not degradation")
	}
	if svc.Degraded() {
		t.Error("a deadline hit must not flip the service into degraded mode")
	}
}

func TestQueryDaysValidation(t *testing.T) {
	svc := NewService(&fakeEventRepo{}, 10)

	for _, days := range []int{-1, 366, 1000} {
		_, err := svc.QueryImpressions(context.Background(), domain.EventFilter{Days: days})
		if !errors.Is(err, domain.ErrInvalidTimeRange) {
			t.Errorf("days=%d: expected ErrInvalidTimeRange, got %v", days, err)
		}
	}

	// zero means the default window, not an error
	if _, err := svc.QueryClicks(context.Background(), domain.EventFilter{Days: 0}); err != nil {
		t.Errorf("days=0 should use the default window, got %v", err)
	}
}

func TestQueryFiltersByWindow(t *testing.T) {
	repo := &fakeEventRepo{}
	svc := NewService(repo, 10)

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	old := validImpression()
	old.ID = "old"
	old.Timestamp = now.AddDate(0, 0, -10)
	recent := validImpression()
	recent.ID = "recent"
	recent.Timestamp = now.AddDate(0, 0, -2)

	for _, imp := range []domain.Impression{old, recent} {
		if _, err := svc.RecordImpression(context.Background(), imp); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	res, err := svc.QueryImpressions(context.Background(), domain.EventFilter{Days: 7})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Impressions) != 1 || res.Impressions[0].ID != "recent" {
		t.Fatalf("expected only the recent impression, got %d", len(res.Impressions))
	}
}

func TestResetClearsStoreAndBuffers(t *testing.T) {
	repo := &fakeEventRepo{}
	svc := NewService(repo, 10)

	if _, err := svc.RecordImpression(context.Background(), validImpression()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.RecordClick(context.Background(), validClick()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := svc.Reset(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.impressions) != 0 || len(repo.clicks) != 0 {
		t.Error("expected durable store cleared")
	}
	if svc.impBuf.len() != 0 || svc.clickBuf.len() != 0 {
		t.Error("expected fallback buffers cleared")
	}
}

func TestRingOrdering(t *testing.T) {
	r := newRing[int](3)
	for i := 1; i <= 5; i++ {
		r.push(i)
	}

	got := r.drain()
	want := []int{3, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("expected %d items, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: expected %d, got %d", i, want[i], got[i])
		}
	}
	if r.len() != 0 {
		t.Error("drain must empty the ring")
	}
}
