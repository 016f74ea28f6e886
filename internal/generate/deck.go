package generate

import (
	"fmt"

	"docpipe/pkg/models"
)

// BuildDeck fills a template's slots with outline sections in order. The
// outline ranks sections by importance, so when it plans more sections than
// the template has slots the tail is dropped and reported, never silently
// lost. Slots beyond the outline are left out with a warning.
func BuildDeck(tmpl *models.SlideTemplate, outline *models.SlideOutline) (*models.Deck, []string) {
	deck := &models.Deck{Template: tmpl.Name}
	var warnings []string

	for i, slot := range tmpl.Slots {
		if i >= len(outline.Sections) {
			warnings = append(warnings, fmt.Sprintf("slot %q left empty: outline has %d sections for %d slots",
				slot.Name, len(outline.Sections), len(tmpl.Slots)))
			continue
		}
		section := outline.Sections[i]
		slide := models.Slide{Slot: slot.Name, Title: section.Title}
		if slot.Kind == "bullets" {
			slide.Bullets = section.Bullets
		}
		deck.Slides = append(deck.Slides, slide)
	}

	for _, section := range outline.Sections[minInt(len(tmpl.Slots), len(outline.Sections)):] {
		deck.Truncated = append(deck.Truncated, section.Title)
	}
	if len(deck.Truncated) > 0 {
		warnings = append(warnings, fmt.Sprintf("%d outline sections did not fit the template", len(deck.Truncated)))
	}

	return deck, warnings
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
