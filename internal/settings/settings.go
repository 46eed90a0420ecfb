// Package settings defines the runtime options read by the import pipeline
// and the precedence between the places they can come from.
package settings

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Setting keys.
const (
	KeyAccessToken = "access_token"
	KeyHashtag     = "hashtag"
	KeyBatchSize   = "batch_size"
	KeyAutoPublish = "auto_publish"
)

const (
	DefaultHashtag   = "northofnyc"
	DefaultBatchSize = 20
)

// Keys lists every recognised setting key in display order.
var Keys = []string{KeyAccessToken, KeyHashtag, KeyBatchSize, KeyAutoPublish}

// Getter looks up a single setting. ok is false when the key is unset.
type Getter interface {
	Setting(ctx context.Context, key string) (value string, ok bool, err error)
}

// Map is a static Getter. Empty values count as unset.
type Map map[string]string

func (m Map) Setting(_ context.Context, key string) (string, bool, error) {
	v, ok := m[key]
	if !ok || v == "" {
		return "", false, nil
	}
	return v, true, nil
}

// Chain consults each Getter in order and returns the first set value.
type Chain []Getter

func (c Chain) Setting(ctx context.Context, key string) (string, bool, error) {
	for _, g := range c {
		if g == nil {
			continue
		}
		v, ok, err := g.Setting(ctx, key)
		if err != nil {
			return "", false, fmt.Errorf("setting %s: %w", key, err)
		}
		if ok && v != "" {
			return v, true, nil
		}
	}
	return "", false, nil
}

// IsKnown reports whether key is a recognised setting.
func IsKnown(key string) bool {
	for _, k := range Keys {
		if k == key {
			return true
		}
	}
	return false
}

// AccessToken returns the configured token, or "" when the feed is disabled.
func AccessToken(ctx context.Context, g Getter) (string, error) {
	v, _, err := g.Setting(ctx, KeyAccessToken)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(v), nil
}

// Hashtag returns the target tag without a leading '#', or DefaultHashtag.
func Hashtag(ctx context.Context, g Getter) (string, error) {
	v, _, err := g.Setting(ctx, KeyHashtag)
	if err != nil {
		return "", err
	}
	v = strings.TrimPrefix(strings.TrimSpace(v), "#")
	if v == "" {
		return DefaultHashtag, nil
	}
	return v, nil
}

// BatchSize returns the page size. Empty, zero, negative or non-numeric
// values fall back to DefaultBatchSize.
func BatchSize(ctx context.Context, g Getter) (int, error) {
	v, _, err := g.Setting(ctx, KeyBatchSize)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n <= 0 {
		return DefaultBatchSize, nil
	}
	return n, nil
}

// AutoPublish reports whether new records should be flagged as published.
func AutoPublish(ctx context.Context, g Getter) (bool, error) {
	v, _, err := g.Setting(ctx, KeyAutoPublish)
	if err != nil {
		return false, err
	}
	return ParseBool(v), nil
}

// ParseBool accepts the spellings an operator is likely to type.
func ParseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// Mask hides all but the last four characters of a secret.
func Mask(v string) string {
	if len(v) <= 4 {
		return strings.Repeat("*", len(v))
	}
	return strings.Repeat("*", len(v)-4) + v[len(v)-4:]
}

// SortedKeys returns the keys of m in lexical order.
func SortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
