// Package metadata extracts retrieval filters from raw query text.
//
// BoG meeting minutes are indexed with three provenance fields: the meeting
// ordinal ("75th"), the agenda item number ("4.2") and the meeting date.
// When a query names any of them, retrieval narrows to chunks that match
// exactly; otherwise the field is not filtered.
package metadata

import (
	"regexp"
	"strings"
)

var (
	bogNumberPattern   = regexp.MustCompile(`\b\d{1,3}(st|nd|rd|th)\b`)
	itemNumberPattern  = regexp.MustCompile(`item\s+(?:no\.?\s*)?(\d+\.\d+)`)
	meetingDatePattern = regexp.MustCompile(`(\d{4})[-/](\d{2})[-/](\d{2})`)
)

// Filters holds the metadata recognized in a query. An empty field means
// "no filter" on that attribute.
type Filters struct {
	BogNumber   string
	ItemNo      string
	MeetingDate string
}

func (f Filters) Empty() bool {
	return f.BogNumber == "" && f.ItemNo == "" && f.MeetingDate == ""
}

// Extract pattern-matches query text for a meeting ordinal, an agenda item
// number and a meeting date. First match wins per field; no semantic
// validation is attempted (a "13-99-99" date passes through as written).
func Extract(query string) Filters {
	var filters Filters
	lower := strings.ToLower(query)

	if m := bogNumberPattern.FindString(lower); m != "" {
		filters.BogNumber = m
	}

	if m := itemNumberPattern.FindStringSubmatch(lower); m != nil {
		filters.ItemNo = m[1]
	}

	if m := meetingDatePattern.FindStringSubmatch(query); m != nil {
		filters.MeetingDate = m[1] + "-" + m[2] + "-" + m[3]
	}

	return filters
}
