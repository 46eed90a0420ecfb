package ingest

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/ppiankov/tagwatch/internal/feed"
	"github.com/ppiankov/tagwatch/internal/record"
	"github.com/ppiankov/tagwatch/internal/settings"
	"github.com/ppiankov/tagwatch/internal/store"
	"github.com/ppiankov/tagwatch/internal/textnorm"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "tagwatch.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

type fakeFetcher struct {
	page  *feed.Page
	err   error
	calls int
	dirs  []feed.Direction
}

func (f *fakeFetcher) FetchPage(_ context.Context, dir feed.Direction) (*feed.Page, error) {
	f.calls++
	f.dirs = append(f.dirs, dir)
	return f.page, f.err
}

func item(id string, created int64, caption string) feed.Item {
	return feed.Item{
		ID:          id,
		Caption:     caption,
		Username:    "user_" + id,
		PhotoURL:    "https://cdn.example.com/" + id + ".jpg",
		Link:        "https://instagram.com/p/" + id,
		CreatedTime: created,
	}
}

func pageOf(next string, items ...feed.Item) *feed.Page {
	return &feed.Page{Items: items, NextURL: next}
}

var tokenOnly = settings.Map{settings.KeyAccessToken: "tok"}

func newImporter(st ContentStore, f PageFetcher, s settings.Getter, opts ...Option) *Importer {
	opts = append([]Option{WithThrottle(0)}, opts...)
	return New(st, f, s, opts...)
}

func serviceIDs(t *testing.T, st *store.Store) []string {
	t.Helper()
	recs, err := st.FindRecords(context.Background(), store.Filter{Type: record.Type, Statuses: store.AllStatuses})
	if err != nil {
		t.Fatalf("find records: %v", err)
	}
	ids := make([]string, 0, len(recs))
	for _, r := range recs {
		ids = append(ids, r.MetaValue(record.MetaServiceID))
	}
	return ids
}

func TestRun_ThreeItemsEndToEnd(t *testing.T) {
	st := openTestStore(t)
	f := &fakeFetcher{page: pageOf("https://api.example.com/next?max_tag_id=3",
		item("111_1", 1279340983, "Sunset over the Hudson 🌅 #northofnyc"),
		item("222_2", 1279340900, ""),
		item("333_3", 1279340800, "plain caption"),
	)}
	imp := newImporter(st, f, tokenOnly)

	run, err := imp.Run(context.Background(), feed.Newer)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if run.Created != 3 || len(run.RecordIDs) != 3 {
		t.Fatalf("created = %d (%v), want 3", run.Created, run.RecordIDs)
	}
	if run.Outcome != OutcomeComplete {
		t.Errorf("outcome = %q, want complete", run.Outcome)
	}
	if run.Direction != feed.Newer {
		t.Errorf("direction = %v", run.Direction)
	}

	first, err := st.GetRecord(context.Background(), run.RecordIDs[0])
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if first.Type != record.Type || first.Status != store.StatusPending {
		t.Errorf("type/status = %q/%q", first.Type, first.Status)
	}
	if !first.Date.Equal(time.Unix(1279340983, 0)) {
		t.Errorf("date = %v, want original creation time", first.Date)
	}

	got := record.FromStore(first)
	if got.Text != "Sunset over the Hudson  #northofnyc" {
		t.Errorf("text = %q", got.Text)
	}
	if got.Title != got.Text {
		t.Errorf("title = %q, want text", got.Title)
	}
	if got.PhotoURL != "https://cdn.example.com/111_1.jpg" {
		t.Errorf("photo url = %q", got.PhotoURL)
	}
	if got.Published {
		t.Error("published = true, want false")
	}
	if first.MetaValue(record.MetaPublished) != "0" {
		t.Errorf("published meta = %q, want 0", first.MetaValue(record.MetaPublished))
	}
	if got.Service != record.ServiceInstagram || got.ServiceID != "111_1" || got.Author != "user_111_1" {
		t.Errorf("source fields = %+v", got)
	}
	if got.OriginalURL != "https://instagram.com/p/111_1" || got.Created != 1279340983 {
		t.Errorf("url/created = %q/%d", got.OriginalURL, got.Created)
	}
	if got.NextURL != "https://api.example.com/next?max_tag_id=3" {
		t.Errorf("next url = %q", got.NextURL)
	}
	if _, ok := first.Meta[record.MetaVideoURL]; !ok || got.VideoURL != "" {
		t.Errorf("video_url meta should be present and empty, got %v", first.Meta[record.MetaVideoURL])
	}

	second, err := st.GetRecord(context.Background(), run.RecordIDs[1])
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if second.Title != "Instagram 222_2" {
		t.Errorf("fallback title = %q", second.Title)
	}
}

func TestRun_Idempotent(t *testing.T) {
	st := openTestStore(t)
	f := &fakeFetcher{page: pageOf("", item("a", 30, "one"), item("b", 20, "two"))}
	imp := newImporter(st, f, tokenOnly)

	if _, err := imp.Run(context.Background(), feed.Newer); err != nil {
		t.Fatalf("first run: %v", err)
	}
	run, err := imp.Run(context.Background(), feed.Newer)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if run.Created != 0 {
		t.Errorf("second run created = %d, want 0", run.Created)
	}
	if run.Outcome != OutcomeCaughtUp {
		t.Errorf("outcome = %q, want caught_up", run.Outcome)
	}
	if n := len(serviceIDs(t, st)); n != 2 {
		t.Errorf("stored = %d, want 2", n)
	}
}

func TestRun_StopsAtFirstKnownItem(t *testing.T) {
	st := openTestStore(t)
	seed := newImporter(st, &fakeFetcher{page: pageOf("", item("c", 30, "seen"))}, tokenOnly)
	if _, err := seed.Run(context.Background(), feed.Newer); err != nil {
		t.Fatalf("seed: %v", err)
	}

	f := &fakeFetcher{page: pageOf("",
		item("a", 50, "new 1"),
		item("b", 40, "new 2"),
		item("c", 30, "seen"),
		item("d", 20, "after the known item"),
	)}
	run, err := newImporter(st, f, tokenOnly).Run(context.Background(), feed.Newer)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if run.Created != 2 {
		t.Errorf("created = %d, want 2", run.Created)
	}
	if run.Outcome != OutcomeCaughtUp {
		t.Errorf("outcome = %q, want caught_up", run.Outcome)
	}
	for _, id := range serviceIDs(t, st) {
		if id == "d" {
			t.Error("item after the known one should not be imported")
		}
	}
}

func TestRun_TrashedCountsAsImported(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	id, err := st.CreateRecord(ctx, store.RecordInput{Type: record.Type, Title: "old", Status: store.StatusTrash})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := st.AttachMeta(ctx, id, record.MetaServiceID, "x", true); err != nil {
		t.Fatalf("attach: %v", err)
	}

	run, err := newImporter(st, &fakeFetcher{page: pageOf("", item("x", 1, "again"))}, tokenOnly).Run(ctx, feed.Newer)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if run.Created != 0 || run.Outcome != OutcomeCaughtUp {
		t.Errorf("run = %+v, want nothing created", run)
	}
}

func TestRun_SkipsMalformedItems(t *testing.T) {
	st := openTestStore(t)
	bad := feed.Item{Err: errors.New("decode item: missing id")}
	f := &fakeFetcher{page: pageOf("", item("a", 3, "ok"), bad, item("b", 2, "also ok"))}

	run, err := newImporter(st, f, tokenOnly).Run(context.Background(), feed.Newer)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if run.Created != 2 || run.Skipped != 1 {
		t.Errorf("created/skipped = %d/%d, want 2/1", run.Created, run.Skipped)
	}
	if run.Outcome != OutcomeComplete {
		t.Errorf("outcome = %q", run.Outcome)
	}
}

func TestRun_DisabledWithoutToken(t *testing.T) {
	st := openTestStore(t)
	f := &fakeFetcher{page: pageOf("", item("a", 1, "x"))}

	run, err := newImporter(st, f, settings.Map{}).Run(context.Background(), feed.Newer)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if run.Outcome != OutcomeDisabled || run.Created != 0 {
		t.Errorf("run = %+v, want disabled", run)
	}
	if f.calls != 0 {
		t.Errorf("fetch calls = %d, want 0", f.calls)
	}
}

func TestRun_NilPage(t *testing.T) {
	st := openTestStore(t)
	run, err := newImporter(st, &fakeFetcher{}, tokenOnly).Run(context.Background(), feed.Older)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if run.Outcome != OutcomeEmpty || run.Created != 0 {
		t.Errorf("run = %+v, want empty", run)
	}
}

func TestRun_FetchFailureIsNotAnError(t *testing.T) {
	st := openTestStore(t)
	f := &fakeFetcher{err: errors.New("status 503")}

	run, err := newImporter(st, f, tokenOnly).Run(context.Background(), feed.Older)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if run.Outcome != OutcomeFetchFailed || run.Created != 0 {
		t.Errorf("run = %+v, want fetch_failed", run)
	}
	if len(f.dirs) != 1 || f.dirs[0] != feed.Older {
		t.Errorf("directions = %v, want [older]", f.dirs)
	}
}

func TestRun_AutoPublish(t *testing.T) {
	st := openTestStore(t)
	s := settings.Map{settings.KeyAccessToken: "tok", settings.KeyAutoPublish: "1"}

	run, err := newImporter(st, &fakeFetcher{page: pageOf("", item("a", 1, "x"))}, s).Run(context.Background(), feed.Newer)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	rec, err := st.GetRecord(context.Background(), run.RecordIDs[0])
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if rec.MetaValue(record.MetaPublished) != "1" {
		t.Errorf("published = %q, want 1", rec.MetaValue(record.MetaPublished))
	}
	if rec.Status != store.StatusPending {
		t.Errorf("status = %q, want pending regardless of auto publish", rec.Status)
	}
}

func TestRun_Redacts(t *testing.T) {
	st := openTestStore(t)
	r, err := textnorm.NewRedactor([]string{`\+?\d{3}-\d{3}-\d{4}`})
	if err != nil {
		t.Fatalf("redactor: %v", err)
	}
	f := &fakeFetcher{page: pageOf("", item("a", 1, "call 845-555-1234 now"))}

	run, err := newImporter(st, f, tokenOnly, WithRedactor(r)).Run(context.Background(), feed.Newer)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	rec, err := st.GetRecord(context.Background(), run.RecordIDs[0])
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if got := rec.MetaValue(record.MetaText); got != "call [REDACTED] now" {
		t.Errorf("text = %q", got)
	}
}

func TestRun_Throttles(t *testing.T) {
	st := openTestStore(t)
	f := &fakeFetcher{page: pageOf("", item("a", 3, "x"), item("b", 2, "y"), item("c", 1, "z"))}
	imp := New(st, f, tokenOnly, WithThrottle(30*time.Millisecond))

	start := time.Now()
	run, err := imp.Run(context.Background(), feed.Newer)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if run.Created != 3 {
		t.Fatalf("created = %d, want 3", run.Created)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("elapsed = %v, want two throttle pauses", elapsed)
	}
}

// failingStore wraps a real store and breaks the write for one service id
// after the record row is already inserted, so the transaction must roll
// back.
type failingStore struct {
	*store.Store
	failOn string
}

func (f *failingStore) CreateRecordWithMeta(ctx context.Context, in store.RecordInput, meta []store.Meta) (int64, error) {
	for _, m := range meta {
		if m.Key == record.MetaServiceID && m.Value == f.failOn {
			meta = append(meta, store.Meta{Key: record.MetaServiceID, Value: "again", Unique: true})
			break
		}
	}
	return f.Store.CreateRecordWithMeta(ctx, in, meta)
}

func TestRun_PersistenceFailureAborts(t *testing.T) {
	st := &failingStore{Store: openTestStore(t), failOn: "b"}
	f := &fakeFetcher{page: pageOf("", item("a", 3, "x"), item("b", 2, "y"), item("c", 1, "z"))}

	run, err := newImporter(st, f, tokenOnly).Run(context.Background(), feed.Newer)
	if !errors.Is(err, store.ErrMetaExists) {
		t.Fatalf("err = %v, want ErrMetaExists", err)
	}
	if run.Created != 1 || len(run.RecordIDs) != 1 {
		t.Errorf("created = %d ids = %v, want 1 before the failure", run.Created, run.RecordIDs)
	}
	if ids := serviceIDs(t, st.Store); len(ids) != 1 || ids[0] != "a" {
		t.Errorf("stored = %v, want [a]", ids)
	}
}

func TestRun_FailedItemLeavesNothingBehind(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	f := &fakeFetcher{page: pageOf("", item("111_1", 2, "first"), item("111_0", 1, "second"))}

	if _, err := newImporter(&failingStore{Store: st, failOn: "111_1"}, f, tokenOnly).Run(ctx, feed.Newer); err == nil {
		t.Fatal("expected persistence error")
	}
	all, err := st.FindRecords(ctx, store.Filter{Type: record.Type, Statuses: store.AllStatuses})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("stored %d records after failed write, want 0", len(all))
	}

	run, err := newImporter(st, f, tokenOnly).Run(ctx, feed.Newer)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if run.Created != 2 {
		t.Errorf("second run created = %d, want 2", run.Created)
	}
	counts := make(map[string]int)
	for _, id := range serviceIDs(t, st) {
		counts[id]++
	}
	if counts["111_1"] != 1 || counts["111_0"] != 1 {
		t.Errorf("stored service ids = %v, want each once", counts)
	}
}

func TestRun_UsesClock(t *testing.T) {
	st := openTestStore(t)
	ticks := []time.Time{time.Unix(100, 0), time.Unix(105, 0)}
	clock := func() time.Time {
		now := ticks[0]
		if len(ticks) > 1 {
			ticks = ticks[1:]
		}
		return now
	}

	run, err := newImporter(st, &fakeFetcher{}, tokenOnly, WithClock(clock)).Run(context.Background(), feed.Newer)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if run.Duration() != 5*time.Second {
		t.Errorf("duration = %v, want 5s", run.Duration())
	}
	if run.ID.String() == "" {
		t.Error("run id is empty")
	}
}

func TestRun_DistinctIDs(t *testing.T) {
	st := openTestStore(t)
	imp := newImporter(st, &fakeFetcher{}, tokenOnly)
	a, _ := imp.Run(context.Background(), feed.Newer)
	b, _ := imp.Run(context.Background(), feed.Newer)
	if a.ID == b.ID {
		t.Errorf("run ids collide: %s", a.ID)
	}
}

func TestRun_CreatedMetaIsNumeric(t *testing.T) {
	st := openTestStore(t)
	run, err := newImporter(st, &fakeFetcher{page: pageOf("", item("a", 1279340983, "x"))}, tokenOnly).Run(context.Background(), feed.Newer)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	rec, _ := st.GetRecord(context.Background(), run.RecordIDs[0])
	if _, err := strconv.ParseInt(rec.MetaValue(record.MetaCreated), 10, 64); err != nil {
		t.Errorf("created meta %q is not numeric", rec.MetaValue(record.MetaCreated))
	}
}
