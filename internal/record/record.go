// Package record describes how an imported social post is laid out in the
// content store: its record type and the metadata keys it carries.
package record

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/ppiankov/tagwatch/internal/store"
)

// Type is the store record type of imported posts.
const Type = "social_post"

// ServiceInstagram identifies the only upstream source.
const ServiceInstagram = "instagram"

// Metadata keys.
const (
	MetaText        = "text"
	MetaAuthor      = "original_author"
	MetaService     = "service"
	MetaPhotoURL    = "photo_url"
	MetaVideoURL    = "video_url"
	MetaServiceID   = "service_id"
	MetaOriginalURL = "original_url"
	MetaCreated     = "created"
	MetaPublished   = "published"
	MetaNextURL     = "next_url"
	MetaAttachments = "attachments"
)

type Attachment struct {
	Kind string `json:"kind"`
	URL  string `json:"url"`
}

// Imported is one stored post as the rest of the program sees it.
type Imported struct {
	ID          int64
	Title       string
	Status      string
	Text        string
	Service     string
	ServiceID   string
	Author      string
	PhotoURL    string
	VideoURL    string
	OriginalURL string
	Created     int64 // epoch seconds
	NextURL     string
	Published   bool

	// Attachments is never filled by the tag feed, which carries a single
	// photo URL per item. It stays as a slot for sources that do.
	Attachments []Attachment
}

// CreatedAt returns the original creation time.
func (r Imported) CreatedAt() time.Time {
	return time.Unix(r.Created, 0)
}

// MetaFields returns the metadata rows stored with the record. service_id
// is marked unique.
func (r Imported) MetaFields() ([]store.Meta, error) {
	published := "0"
	if r.Published {
		published = "1"
	}
	fields := []store.Meta{
		{Key: MetaText, Value: r.Text},
		{Key: MetaAuthor, Value: r.Author},
		{Key: MetaService, Value: r.Service},
		{Key: MetaPhotoURL, Value: r.PhotoURL},
		{Key: MetaVideoURL, Value: r.VideoURL},
		{Key: MetaServiceID, Value: r.ServiceID, Unique: true},
		{Key: MetaOriginalURL, Value: r.OriginalURL},
		{Key: MetaCreated, Value: strconv.FormatInt(r.Created, 10)},
		{Key: MetaPublished, Value: published},
		{Key: MetaNextURL, Value: r.NextURL},
	}
	if len(r.Attachments) > 0 {
		b, err := json.Marshal(r.Attachments)
		if err != nil {
			return nil, fmt.Errorf("encode attachments: %w", err)
		}
		fields = append(fields, store.Meta{Key: MetaAttachments, Value: string(b)})
	}
	return fields, nil
}

// FromStore rebuilds an Imported from its stored row. Unparseable numeric
// or JSON metadata is left at the zero value.
func FromStore(sr store.Record) Imported {
	created, _ := strconv.ParseInt(sr.MetaValue(MetaCreated), 10, 64)
	r := Imported{
		ID:          sr.ID,
		Title:       sr.Title,
		Status:      sr.Status,
		Text:        sr.MetaValue(MetaText),
		Service:     sr.MetaValue(MetaService),
		ServiceID:   sr.MetaValue(MetaServiceID),
		Author:      sr.MetaValue(MetaAuthor),
		PhotoURL:    sr.MetaValue(MetaPhotoURL),
		VideoURL:    sr.MetaValue(MetaVideoURL),
		OriginalURL: sr.MetaValue(MetaOriginalURL),
		Created:     created,
		NextURL:     sr.MetaValue(MetaNextURL),
		Published:   sr.MetaValue(MetaPublished) == "1",
	}
	if raw := sr.MetaValue(MetaAttachments); raw != "" {
		var atts []Attachment
		if err := json.Unmarshal([]byte(raw), &atts); err == nil {
			r.Attachments = atts
		}
	}
	return r
}
