// Package packet wraps action output into result packets and fingerprints
// every extracted value by its content.
package packet

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/C0sCube/selenium-scrape/api/schemas"
)

// Skip reasons used by the executor.
const (
	ReasonNotFound    = "Element Not Found Hence Skipped."
	ReasonWaitTimeout = "Element Wait Timed Out Hence Skipped."
)

// Builder creates packets and entries. The zero value is not usable; use New.
type Builder struct {
	now   func() time.Time
	newID func() string
}

// Option configures a Builder.
type Option func(*Builder)

// WithClock replaces the wall clock used for packet timestamps.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) { b.now = now }
}

// WithIDSource replaces the UUID generator used for packet ids.
func WithIDSource(newID func() string) Option {
	return func(b *Builder) { b.newID = newID }
}

// New returns a Builder using the wall clock and random UUIDs.
func New(opts ...Option) *Builder {
	b := &Builder{
		now:   time.Now,
		newID: func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Hash returns the hex SHA-256 of value, or "" for an empty value.
func Hash(value string) string {
	if value == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// BuildEntry creates a content entry. The hash is always derived from value.
func (b *Builder) BuildEntry(name string, title []string, value string, contentType schemas.ContentType) schemas.ResponseEntry {
	return schemas.ResponseEntry{
		Name:  name,
		Title: title,
		Value: value,
		Type:  contentType,
		Hash:  Hash(value),
	}
}

// Skip creates a marker entry recording why an action produced nothing.
func (b *Builder) Skip(reason string) schemas.ResponseEntry {
	return schemas.ResponseEntry{
		Name:   string(schemas.MarkerSkip),
		Value:  reason,
		Type:   schemas.ContentText,
		Marker: schemas.MarkerSkip,
	}
}

// Error creates a marker entry carrying the failure's type and message.
func (b *Builder) Error(err error) schemas.ResponseEntry {
	msg := "unknown error"
	if err != nil {
		msg = fmt.Sprintf("%T: %v", err, err)
	}
	return schemas.ResponseEntry{
		Name:   string(schemas.MarkerError),
		Value:  msg,
		Type:   schemas.ContentText,
		Marker: schemas.MarkerError,
	}
}

// BuildPacket wraps entries into a packet. DataPresent is computed: it is
// true only when at least one entry is a non-empty content entry.
func (b *Builder) BuildPacket(kind schemas.ActionKind, entries []schemas.ResponseEntry, pageURL, logMessage string) schemas.ResultPacket {
	if entries == nil {
		entries = []schemas.ResponseEntry{}
	}
	return schemas.ResultPacket{
		Action:        kind,
		UID:           b.newID(),
		Timestamp:     b.now().Format(schemas.TimestampLayout),
		Webpage:       pageURL,
		DataPresent:   schemas.DataPresent(entries),
		LogMessage:    logMessage,
		Response:      entries,
		ResponseCount: len(entries),
	}
}
