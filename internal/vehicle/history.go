package vehicle

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// HistoryEntry is the work done on one dated visit.
type HistoryEntry struct {
	Services []string `json:"services"`
	Odometer string   `json:"odometer,omitempty"`
}

// HistoryRow is one rendered row of the service-history list. Index is the
// row's data-index, or -1 when the list is not windowed.
type HistoryRow struct {
	Index  int
	Header bool
	Parts  []string
}

var odometerPattern = regexp.MustCompile(`(?i)\d[\d\s\x{00a0}\x{202f}.,]*km\b`)

// ParseHistory reads one snapshot of the service-history list markup.
func ParseHistory(html string) (map[string]HistoryEntry, error) {
	rows, err := ParseHistoryRows(html)
	if err != nil {
		return nil, err
	}
	return GroupHistory(rows), nil
}

// ParseHistoryRows returns the non-blank rows of the list markup in document
// order. Rows rendered with position: sticky are headers.
func ParseHistoryRows(html string) ([]HistoryRow, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse history markup: %w", err)
	}

	sel := doc.Find("[data-index]")
	indexed := sel.Length() > 0
	if !indexed {
		sel = doc.Find("body > *").First().Children()
	}

	var rows []HistoryRow
	var perr error
	sel.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		row := HistoryRow{Index: -1, Header: isSticky(s), Parts: rowParts(s)}
		if len(row.Parts) == 0 {
			return true
		}
		if indexed {
			raw, _ := s.Attr("data-index")
			n, err := strconv.Atoi(strings.TrimSpace(raw))
			if err != nil {
				perr = fmt.Errorf("history row data-index %q: %w", raw, err)
				return false
			}
			row.Index = n
		}
		rows = append(rows, row)
		return true
	})
	return rows, perr
}

// GroupHistory groups entry rows under the header above them, in index order.
// Entries before the first header are grouped under "". An odometer reading
// found in a header or entry row is kept for the visit; the first one wins.
func GroupHistory(rows []HistoryRow) map[string]HistoryEntry {
	sorted := append([]HistoryRow(nil), rows...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })

	history := make(map[string]HistoryEntry)
	header := ""
	for _, row := range sorted {
		var texts []string
		odometer := ""
		for _, part := range row.Parts {
			text, odo := splitOdometer(part)
			if odometer == "" {
				odometer = odo
			}
			if text != "" {
				texts = append(texts, text)
			}
		}

		if row.Header {
			header = strings.Join(texts, " ")
		}
		entry := history[header]
		if entry.Odometer == "" {
			entry.Odometer = odometer
		}
		if !row.Header {
			entry.Services = append(entry.Services, texts...)
		}
		history[header] = entry
	}
	return history
}

// splitOdometer cuts a "45 000 km" reading out of text.
func splitOdometer(text string) (rest, odometer string) {
	loc := odometerPattern.FindStringIndex(text)
	if loc == nil {
		return text, ""
	}
	odometer = collapse(text[loc[0]:loc[1]])
	rest = collapse(text[:loc[0]] + " " + text[loc[1]:])
	return strings.Trim(rest, " -·,:|/"), odometer
}

// rowParts unwraps single-child wrappers and returns the collapsed text of
// each remaining child.
func rowParts(row *goquery.Selection) []string {
	node := row
	for node.Children().Length() == 1 && !hasOwnText(node) {
		node = node.Children()
	}
	kids := node.Children()
	if kids.Length() == 0 || hasOwnText(node) {
		if text := collapse(node.Text()); text != "" {
			return []string{text}
		}
		return nil
	}
	var parts []string
	kids.Each(func(_ int, kid *goquery.Selection) {
		if text := collapse(kid.Text()); text != "" {
			parts = append(parts, text)
		}
	})
	return parts
}

func hasOwnText(s *goquery.Selection) bool {
	own := false
	s.Contents().EachWithBreak(func(_ int, c *goquery.Selection) bool {
		if goquery.NodeName(c) == "#text" && strings.TrimSpace(c.Text()) != "" {
			own = true
		}
		return !own
	})
	return own
}

func isSticky(s *goquery.Selection) bool {
	sticky := func(sel *goquery.Selection) bool {
		style, _ := sel.Attr("style")
		return strings.Contains(strings.ReplaceAll(strings.ToLower(style), " ", ""), "position:sticky")
	}
	if sticky(s) {
		return true
	}
	return s.Find("[style]").FilterFunction(func(_ int, sel *goquery.Selection) bool {
		return sticky(sel)
	}).Length() > 0
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
