package catalog

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanonicalize_ExactBuiltin(t *testing.T) {
	d, ok := Canonicalize("grok-4-heavy")
	require.True(t, ok)
	require.Equal(t, "grok-4-heavy", d.Id)
}

func TestCanonicalize_ImageRatios(t *testing.T) {
	cases := map[string]string{
		"grok-image-16_9":   "16:9",
		"grok-imagine-9_16": "9:16",
		"grok-image-2_3":    "2:3",
		// Unknown suffix falls back to the family default ratio.
		"grok-image-21_9": "1:1",
		"grok-imagine":    "1:1",
	}
	for id, ratio := range cases {
		d, ok := Canonicalize(id)
		require.True(t, ok, id)
		require.Equal(t, KindImage, d.Kind, id)
		require.Equal(t, ratio, d.AspectRatio, id)
	}
}

func TestCanonicalize_VideoDefaultRatio(t *testing.T) {
	d, ok := Canonicalize("grok-video-preview")
	require.True(t, ok)
	require.Equal(t, KindVideo, d.Kind)
	require.Equal(t, "16:9", d.AspectRatio)

	d, ok = Canonicalize("grok-video-9_16")
	require.True(t, ok)
	require.Equal(t, "9:16", d.AspectRatio)
}

func TestCanonicalize_KeywordFamilies(t *testing.T) {
	cases := map[string]string{
		"grok-4.1-thinking-20250901": "grok-4-1-thinking",
		"grok-4-1-expert-preview":    "grok-4-1-expert",
		"grok-4.1-fast-beta":         "grok-4-1-fast",
		"grok-4.1-20251201":          "grok-4-1",
		"grok-4-mini-fast":           "grok-4-mini-thinking",
		"grok-4-heavy-preview":       "grok-4-heavy",
		"grok-4-fast-reasoning":      "grok-4-fast",
		"grok-4-0709":                "grok-4",
		"grok-3-fast-beta":           "grok-3-fast",
		"grok-3-latest":              "grok-3",
	}
	for remote, want := range cases {
		d, ok := Canonicalize(remote)
		require.True(t, ok, remote)
		require.Equal(t, want, d.Id, remote)
	}
}

func TestCanonicalize_UnknownFamily(t *testing.T) {
	_, ok := Canonicalize("grok-2-1212")
	require.False(t, ok)
	_, ok = Canonicalize("gpt-4o")
	require.False(t, ok)
}

func TestBuiltin_CaseInsensitive(t *testing.T) {
	d, ok := Builtin("  Grok-4-Heavy ")
	require.True(t, ok)
	require.Equal(t, "grok-4-heavy", d.Id)
}

func TestCanonicalize_MultiKeywordDeterministic(t *testing.T) {
	// Ids carrying several keywords must always pick the same variant.
	for i := 0; i < 20; i++ {
		d, ok := Canonicalize("grok-4-1-expert-fast")
		require.True(t, ok)
		require.Equal(t, "grok-4-1-expert", d.Id)

		d, ok = Canonicalize("grok-4-heavy-fast-preview")
		require.True(t, ok)
		require.Equal(t, "grok-4-heavy", d.Id)
	}
}
