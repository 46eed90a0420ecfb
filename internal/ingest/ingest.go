// Package ingest turns one page of the tag feed into stored records.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/ppiankov/tagwatch/internal/feed"
	"github.com/ppiankov/tagwatch/internal/record"
	"github.com/ppiankov/tagwatch/internal/settings"
	"github.com/ppiankov/tagwatch/internal/store"
	"github.com/ppiankov/tagwatch/internal/textnorm"
)

// DefaultThrottle is the pause between successive record creations.
const DefaultThrottle = 62500 * time.Microsecond

// ContentStore is the persistence a run needs.
type ContentStore interface {
	CreateRecordWithMeta(ctx context.Context, in store.RecordInput, meta []store.Meta) (int64, error)
	FindRecords(ctx context.Context, f store.Filter) ([]store.Record, error)
}

// PageFetcher returns one feed page; a nil page means nothing to import.
type PageFetcher interface {
	FetchPage(ctx context.Context, dir feed.Direction) (*feed.Page, error)
}

type Outcome string

const (
	OutcomeDisabled    Outcome = "disabled"
	OutcomeEmpty       Outcome = "empty"
	OutcomeFetchFailed Outcome = "fetch_failed"
	OutcomeCaughtUp    Outcome = "caught_up"
	OutcomeComplete    Outcome = "complete"
)

// Run is the result of one Importer.Run call.
type Run struct {
	ID         uuid.UUID
	Direction  feed.Direction
	Created    int
	Skipped    int
	Outcome    Outcome
	RecordIDs  []int64
	StartedAt  time.Time
	FinishedAt time.Time
}

func (r Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

type Option func(*Importer)

func WithLogger(l *slog.Logger) Option {
	return func(i *Importer) {
		if l != nil {
			i.logger = l
		}
	}
}

// WithThrottle sets the pause between record creations. Zero disables it.
func WithThrottle(d time.Duration) Option {
	return func(i *Importer) { i.throttle = d }
}

// WithRedactor scrubs caption text after symbol stripping.
func WithRedactor(r *textnorm.Redactor) Option {
	return func(i *Importer) { i.redactor = r }
}

func WithClock(now func() time.Time) Option {
	return func(i *Importer) {
		if now != nil {
			i.now = now
		}
	}
}

// Importer runs the ingestion pipeline. It holds no state between runs.
type Importer struct {
	store    ContentStore
	fetcher  PageFetcher
	settings settings.Getter
	logger   *slog.Logger
	throttle time.Duration
	redactor *textnorm.Redactor
	now      func() time.Time
}

func New(st ContentStore, fetcher PageFetcher, s settings.Getter, opts ...Option) *Importer {
	i := &Importer{
		store:    st,
		fetcher:  fetcher,
		settings: s,
		logger:   slog.Default(),
		throttle: DefaultThrottle,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Run fetches one page in dir and stores every item that was not imported
// before. Items arrive newest first, so the first already-stored item ends
// the page: everything after it is assumed to be stored too.
//
// A fetch failure is logged and reported through the run outcome, not as an
// error. A persistence failure stops the run and is returned along with the
// partial result; records created before it stay.
func (i *Importer) Run(ctx context.Context, dir feed.Direction) (Run, error) {
	run := Run{
		ID:        uuid.New(),
		Direction: dir,
		StartedAt: i.now(),
	}
	log := i.logger.With("run", run.ID.String(), "direction", dir.String())

	token, err := settings.AccessToken(ctx, i.settings)
	if err != nil {
		return i.finish(run), fmt.Errorf("read settings: %w", err)
	}
	if token == "" {
		run.Outcome = OutcomeDisabled
		log.Debug("no access token configured, skipping import")
		return i.finish(run), nil
	}
	autoPublish, err := settings.AutoPublish(ctx, i.settings)
	if err != nil {
		return i.finish(run), fmt.Errorf("read settings: %w", err)
	}

	page, err := i.fetcher.FetchPage(ctx, dir)
	if err != nil {
		run.Outcome = OutcomeFetchFailed
		log.Warn("fetch feed page failed", "error", err)
		return i.finish(run), nil
	}
	if page == nil {
		run.Outcome = OutcomeEmpty
		log.Debug("feed returned no data")
		return i.finish(run), nil
	}

	var limiter *rate.Limiter
	if i.throttle > 0 {
		limiter = rate.NewLimiter(rate.Every(i.throttle), 1)
	}

	run.Outcome = OutcomeComplete
	for _, item := range page.Items {
		if item.Err != nil {
			run.Skipped++
			log.Warn("skipping malformed item", "error", item.Err)
			continue
		}

		seen, err := i.imported(ctx, item.ID)
		if err != nil {
			return i.finish(run), err
		}
		if seen {
			run.Outcome = OutcomeCaughtUp
			log.Debug("reached already imported item", "service_id", item.ID)
			break
		}

		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return i.finish(run), fmt.Errorf("throttle: %w", err)
			}
		}

		id, err := i.persist(ctx, item, page.NextURL, autoPublish)
		if err != nil {
			return i.finish(run), err
		}
		run.Created++
		run.RecordIDs = append(run.RecordIDs, id)
	}

	run = i.finish(run)
	log.Info("import finished",
		"created", run.Created,
		"skipped", run.Skipped,
		"outcome", string(run.Outcome),
		"duration", run.Duration().String(),
	)
	return run, nil
}

func (i *Importer) finish(run Run) Run {
	run.FinishedAt = i.now()
	return run
}

// imported reports whether a record with this service id exists in any
// status, trashed included.
func (i *Importer) imported(ctx context.Context, serviceID string) (bool, error) {
	found, err := i.store.FindRecords(ctx, store.Filter{
		Type:      record.Type,
		MetaKey:   record.MetaServiceID,
		MetaValue: serviceID,
		Statuses:  store.AllStatuses,
		Limit:     1,
	})
	if err != nil {
		return false, fmt.Errorf("look up %s: %w", serviceID, err)
	}
	return len(found) > 0, nil
}

func (i *Importer) persist(ctx context.Context, item feed.Item, nextURL string, published bool) (int64, error) {
	text := i.redactor.Apply(textnorm.StripSymbols(item.Caption))
	rec := record.Imported{
		Title:       textnorm.Title(text, "Instagram "+item.ID),
		Status:      store.StatusPending,
		Text:        text,
		Service:     record.ServiceInstagram,
		ServiceID:   item.ID,
		Author:      item.Username,
		PhotoURL:    item.PhotoURL,
		OriginalURL: item.Link,
		Created:     item.CreatedTime,
		NextURL:     nextURL,
		Published:   published,
	}
	fields, err := rec.MetaFields()
	if err != nil {
		return 0, err
	}

	id, err := i.store.CreateRecordWithMeta(ctx, store.RecordInput{
		Type:   record.Type,
		Title:  rec.Title,
		Status: rec.Status,
		Date:   rec.CreatedAt(),
	}, fields)
	if err != nil {
		return 0, fmt.Errorf("store %s: %w", item.ID, err)
	}
	return id, nil
}
