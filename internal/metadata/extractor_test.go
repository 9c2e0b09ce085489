package metadata

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractBogNumber(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"plain ordinal", "What happened in the 75th BoG meeting?", "75th"},
		{"uppercase suffix", "Summary of the 75TH meeting", "75th"},
		{"first ordinal", "1st meeting agenda", "1st"},
		{"second ordinal", "decisions of the 102nd board", "102nd"},
		{"third ordinal", "the 3rd BoG meeting", "3rd"},
		{"no ordinal", "what did the board decide about recruitment", ""},
		{"bare number is not an ordinal", "meeting 75 decisions", ""},
		{"four digits too long", "the 1234th meeting", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Extract(tt.query).BogNumber)
		})
	}
}

func TestExtractItemNo(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"with no.", "tell me about item no. 4.2", "4.2"},
		{"with no without dot", "item no 4.2 details", "4.2"},
		{"without no", "what was item 4.2 about", "4.2"},
		{"uppercase", "ITEM NO. 12.10 resolution", "12.10"},
		{"integer item not matched", "item 4 discussion", ""},
		{"no item keyword", "agenda 4.2", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Extract(tt.query).ItemNo)
		})
	}
}

func TestExtractMeetingDate(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"dash separated", "meeting on 2023-01-31", "2023-01-31"},
		{"slash separated", "meeting on 2023/01/31", "2023-01-31"},
		{"no date", "meeting in January", ""},
		// No semantic validation by contract.
		{"implausible date passes", "meeting on 2023-99-99", "2023-99-99"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Extract(tt.query).MeetingDate)
		})
	}
}

func TestExtractCombined(t *testing.T) {
	filters := Extract("What happened in the 75th BoG meeting item 4.2 on 2023-01-31?")

	require.Equal(t, "75th", filters.BogNumber)
	require.Equal(t, "4.2", filters.ItemNo)
	require.Equal(t, "2023-01-31", filters.MeetingDate)
	require.False(t, filters.Empty())
}

func TestExtractFirstMatchWins(t *testing.T) {
	filters := Extract("compare the 75th and 76th meetings, item 4.2 and item 5.1")

	require.Equal(t, "75th", filters.BogNumber)
	require.Equal(t, "4.2", filters.ItemNo)
}

func TestExtractEmptyQuery(t *testing.T) {
	require.True(t, Extract("").Empty())
}
