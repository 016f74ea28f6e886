package models

import (
	"time"

	"github.com/google/uuid"
)

// ArtifactKind identifies what a generated file contains.
type ArtifactKind string

const (
	ArtifactCleanedDataset ArtifactKind = "cleaned-dataset"
	ArtifactTrendSummary   ArtifactKind = "trend-summary"
	ArtifactChartSpec      ArtifactKind = "chart-spec"
	ArtifactChartImage     ArtifactKind = "chart-image"
	ArtifactDeck           ArtifactKind = "deck"
	ArtifactMinutes        ArtifactKind = "minutes"
)

// ContentType returns the MIME type served for an artifact kind.
func (k ArtifactKind) ContentType() string {
	switch k {
	case ArtifactCleanedDataset:
		return "text/csv; charset=utf-8"
	case ArtifactChartImage:
		return "image/png"
	case ArtifactMinutes:
		return "text/markdown; charset=utf-8"
	default:
		return "application/json"
	}
}

// GeneratedArtifact is one output file produced for a job. Immutable once
// written; a regeneration writes a new artifact, never mutates this one.
type GeneratedArtifact struct {
	ID        uuid.UUID    `db:"id"         json:"id"`
	JobID     uuid.UUID    `db:"job_id"     json:"job_id"`
	Kind      ArtifactKind `db:"kind"       json:"kind"`
	Ref       string       `db:"ref"        json:"ref"`
	Warnings  []string     `db:"warnings"   json:"warnings,omitempty"`
	CreatedAt time.Time    `db:"created_at" json:"created_at"`
}

// SlideTemplateSlot is one placeholder in an uploaded slide template.
type SlideTemplateSlot struct {
	Name string `json:"name"`
	Kind string `json:"kind"` // title | bullets
}

// SlideTemplate is the decoded form of an uploaded slide-template artifact:
// a named set of placeholder slots plus the author's brief describing what
// the deck should cover.
type SlideTemplate struct {
	Name  string              `json:"name"`
	Brief string              `json:"brief"`
	Slots []SlideTemplateSlot `json:"slots"`
}

// Slide is one populated slide in a generated deck.
type Slide struct {
	Slot    string   `json:"slot"`
	Title   string   `json:"title"`
	Bullets []string `json:"bullets,omitempty"`
}

// Deck is the populated slide deck document written as a deck artifact.
type Deck struct {
	Template  string   `json:"template"`
	Slides    []Slide  `json:"slides"`
	Truncated []string `json:"truncated,omitempty"` // titles of sections that did not fit
}
