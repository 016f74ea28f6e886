package format

import (
	"encoding/json"
	"strings"

	"docpipe/pkg/models"
)

const maxTemplateSlots = 200

// DecodeTemplate parses an uploaded slide-template document. Templates are
// JSON slot descriptors: a name, an author brief describing what the deck
// should cover, and an ordered list of placeholder slots.
func DecodeTemplate(raw []byte) (*models.SlideTemplate, error) {
	if len(raw) == 0 {
		return nil, &FormatError{Cause: "empty slide template"}
	}

	var tmpl models.SlideTemplate
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&tmpl); err != nil {
		return nil, &FormatError{Cause: "unsupported slide-template schema"}
	}

	if strings.TrimSpace(tmpl.Name) == "" {
		return nil, &FormatError{Cause: "slide template has no name"}
	}
	if strings.TrimSpace(tmpl.Brief) == "" {
		return nil, &FormatError{Cause: "slide template has no content brief"}
	}
	if len(tmpl.Slots) == 0 {
		return nil, &FormatError{Cause: "slide template has no slots"}
	}
	if len(tmpl.Slots) > maxTemplateSlots {
		return nil, formatErrorf("slide template has too many slots (%d, max %d)", len(tmpl.Slots), maxTemplateSlots)
	}

	for i, slot := range tmpl.Slots {
		if strings.TrimSpace(slot.Name) == "" {
			return nil, formatErrorf("slot %d has no name", i+1)
		}
		switch slot.Kind {
		case "title", "bullets":
		default:
			return nil, formatErrorf("slot %q has unsupported kind %q", slot.Name, slot.Kind)
		}
	}

	return &tmpl, nil
}

// EncodeDeckJSON renders a populated deck as the deck artifact document.
func EncodeDeckJSON(deck *models.Deck) ([]byte, error) {
	return json.MarshalIndent(deck, "", "  ")
}
