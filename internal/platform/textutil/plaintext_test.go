package textutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPlainText(t *testing.T) {
	cases := []struct {
		name  string
		input string
		limit int
		want  string
	}{
		{name: "strips tags", input: `<b>Left at</b> <script>alert(1)</script>gate`, want: "Left at gate"},
		{name: "collapses whitespace", input: "  handed   over\n\tto guard ", want: "handed over to guard"},
		{name: "keeps entities readable", input: "Tom &amp; Jerry", want: "Tom & Jerry"},
		{name: "truncates by rune", input: "ধন্যবাদ আপনাকে", limit: 7, want: "ধন্যবাদ"},
		{name: "empty", input: "   ", want: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, PlainText(tc.input, tc.limit))
		})
	}
}

func TestPlainMetadata(t *testing.T) {
	got := PlainMetadata(map[string]string{
		" orderId ": " BB-2026-000042 ",
		"status":    "<i>shipped</i>",
		" ":         "dropped",
	}, 64)
	require.Equal(t, map[string]string{"orderId": "BB-2026-000042", "status": "shipped"}, got)

	require.Nil(t, PlainMetadata(nil, 64))
	require.Nil(t, PlainMetadata(map[string]string{"": "x"}, 64))
}
