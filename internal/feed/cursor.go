package feed

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/ppiankov/tagwatch/internal/record"
	"github.com/ppiankov/tagwatch/internal/settings"
	"github.com/ppiankov/tagwatch/internal/store"
)

// RecordFinder is the slice of the content store the resolver reads.
type RecordFinder interface {
	FindRecords(ctx context.Context, f store.Filter) ([]store.Record, error)
}

// Resolver rebuilds the next-page URL from the oldest stored record.
type Resolver struct {
	records  RecordFinder
	settings settings.Getter
}

func NewResolver(records RecordFinder, s settings.Getter) *Resolver {
	return &Resolver{records: records, settings: s}
}

// NextURL returns the cursor for the page after the oldest imported record,
// with access_token and count refreshed from current settings. ok is false
// when nothing is stored yet or the oldest record was the feed's last page.
func (r *Resolver) NextURL(ctx context.Context) (string, bool, error) {
	found, err := r.records.FindRecords(ctx, store.Filter{
		Type:         record.Type,
		Statuses:     store.LiveStatuses,
		OrderMetaKey: record.MetaCreated,
		Limit:        1,
	})
	if err != nil {
		return "", false, fmt.Errorf("find oldest record: %w", err)
	}
	if len(found) == 0 {
		return "", false, nil
	}

	raw := found[0].MetaValue(record.MetaNextURL)
	if raw == "" {
		return "", false, nil
	}

	token, err := settings.AccessToken(ctx, r.settings)
	if err != nil {
		return "", false, err
	}
	count, err := settings.BatchSize(ctx, r.settings)
	if err != nil {
		return "", false, err
	}

	next, err := RefreshCursor(raw, token, count)
	if err != nil {
		return "", false, err
	}
	return next, true, nil
}

// RefreshCursor overwrites access_token and count in a stored next-page URL
// and reassembles it as scheme://host/path?query with the query sorted by
// key. Any fragment or userinfo in the stored URL is dropped.
func RefreshCursor(raw, token string, count int) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse cursor: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("parse cursor: %q is not an absolute URL", raw)
	}

	q := u.Query()
	q.Set("access_token", token)
	q.Set("count", strconv.Itoa(count))

	out := url.URL{
		Scheme:   u.Scheme,
		Host:     u.Host,
		Path:     u.Path,
		RawPath:  u.RawPath,
		RawQuery: q.Encode(),
	}
	return out.String(), nil
}
