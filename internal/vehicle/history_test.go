package vehicle

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const historyMarkup = `
<div data-testid="virtuoso-item-list">
  <div data-index="0" style="position: sticky; top: 0px;"><span>12 mars 2025</span></div>
  <div data-index="1"><div>Vidange d'huile</div><div>  45 000 km </div></div>
  <div data-index="2"><div>Rotation des pneus</div></div>
  <div data-index="3"><div style="z-index:1;position:sticky">3 oct. 2024 - 38&nbsp;120 km</div></div>
  <div data-index="4"><div>Inspection</div></div>
  <div data-index="5"> </div>
</div>`

func TestParseHistory(t *testing.T) {
	got, err := ParseHistory(historyMarkup)
	require.NoError(t, err)

	want := map[string]HistoryEntry{
		"12 mars 2025": {Services: []string{"Vidange d'huile", "Rotation des pneus"}, Odometer: "45 000 km"},
		"3 oct. 2024":  {Services: []string{"Inspection"}, Odometer: "38 120 km"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParseHistory() mismatch (-want +got):\n%s", diff)
	}
}

func TestParseHistory_NoHeaders(t *testing.T) {
	got, err := ParseHistory(`<ul><li>Alignement</li><li>Freins</li></ul>`)
	require.NoError(t, err)
	want := map[string]HistoryEntry{"": {Services: []string{"Alignement", "Freins"}}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParseHistory() mismatch (-want +got):\n%s", diff)
	}
}

func TestParseHistory_HeaderWithoutEntries(t *testing.T) {
	got, err := ParseHistory(`<div><div data-index="0" style="position:sticky">1 janv. 2025</div></div>`)
	require.NoError(t, err)
	entry, ok := got["1 janv. 2025"]
	require.True(t, ok)
	assert.Empty(t, entry.Services)
	assert.Empty(t, entry.Odometer)
}

func TestParseHistoryRows(t *testing.T) {
	rows, err := ParseHistoryRows(historyMarkup)
	require.NoError(t, err)

	want := []HistoryRow{
		{Index: 0, Header: true, Parts: []string{"12 mars 2025"}},
		{Index: 1, Parts: []string{"Vidange d'huile", "45 000 km"}},
		{Index: 2, Parts: []string{"Rotation des pneus"}},
		{Index: 3, Header: true, Parts: []string{"3 oct. 2024 - 38 120 km"}},
		{Index: 4, Parts: []string{"Inspection"}},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("ParseHistoryRows() mismatch (-want +got):\n%s", diff)
	}

	_, err = ParseHistoryRows(`<div><div data-index="x">Freins</div></div>`)
	assert.Error(t, err)
}

func TestGroupHistory_MergedWindowsOutOfOrder(t *testing.T) {
	rows := []HistoryRow{
		{Index: 3, Parts: []string{"Freins avant"}},
		{Index: 0, Header: true, Parts: []string{"5 juin 2025"}},
		{Index: 2, Header: true, Parts: []string{"2 févr. 2025"}},
		{Index: 1, Parts: []string{"Vidange", "61 200 km"}},
		{Index: 4, Parts: []string{"Alignement 58 900 km"}},
	}
	want := map[string]HistoryEntry{
		"5 juin 2025":  {Services: []string{"Vidange"}, Odometer: "61 200 km"},
		"2 févr. 2025": {Services: []string{"Freins avant", "Alignement"}, Odometer: "58 900 km"},
	}
	if diff := cmp.Diff(want, GroupHistory(rows)); diff != "" {
		t.Errorf("GroupHistory() mismatch (-want +got):\n%s", diff)
	}
}

func TestSplitOdometer(t *testing.T) {
	cases := []struct {
		in, rest, odometer string
	}{
		{"45 000 km", "", "45 000 km"},
		{"Vidange 12,500 KM", "Vidange", "12,500 KM"},
		{"3 oct. 2024 - 38 120 km", "3 oct. 2024", "38 120 km"},
		{"Pneus 4 saisons", "Pneus 4 saisons", ""},
	}
	for _, tc := range cases {
		rest, odo := splitOdometer(tc.in)
		assert.Equal(t, tc.rest, rest, tc.in)
		assert.Equal(t, tc.odometer, odo, tc.in)
	}
}
