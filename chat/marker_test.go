package chat

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/slidesmith/slidesmith/prompt"
)

func TestMarkerFilterStripsMarkerAcrossArbitrarySplits(t *testing.T) {
	full := "Great, I have everything I need.\n" + prompt.ReadyMarker + "\nSee the draft soon."
	want := strings.ReplaceAll(full, prompt.ReadyMarker, "")

	for i := 0; i <= len(full); i++ {
		for j := i; j <= len(full); j++ {
			f := newMarkerFilter(prompt.ReadyMarker)
			out := f.Write(full[:i]) + f.Write(full[i:j]) + f.Write(full[j:]) + f.Flush()

			require.Equalf(t, want, out, "split at %d/%d", i, j)
			require.Truef(t, f.Seen(), "split at %d/%d", i, j)
		}
	}
}

func TestMarkerFilterCharByChar(t *testing.T) {
	full := "Done. " + prompt.ReadyMarker
	f := newMarkerFilter(prompt.ReadyMarker)

	var out strings.Builder
	for _, r := range full {
		out.WriteString(f.Write(string(r)))
	}
	out.WriteString(f.Flush())

	require.Equal(t, "Done. ", out.String())
	require.True(t, f.Seen())
}

func TestMarkerFilterReleasesFalsePrefixes(t *testing.T) {
	tests := []struct {
		name      string
		fragments []string
	}{
		{"bracketed text", []string{"See [READY", " set] go."}},
		{"restarted prefix", []string{"[", "[READY", "_FOR_X", "] done"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newMarkerFilter(prompt.ReadyMarker)
			var out strings.Builder
			for _, frag := range tt.fragments {
				out.WriteString(f.Write(frag))
			}
			out.WriteString(f.Flush())

			require.Equal(t, strings.Join(tt.fragments, ""), out.String())
			require.False(t, f.Seen())
		})
	}
}

func TestMarkerFilterFlushReleasesDanglingPrefix(t *testing.T) {
	f := newMarkerFilter(prompt.ReadyMarker)

	out := f.Write("The array syntax is [READY")
	require.Equal(t, "The array syntax is ", out)

	require.Equal(t, "[READY", f.Flush())
	require.False(t, f.Seen())
}

func TestMarkerFilterRemovesEveryOccurrence(t *testing.T) {
	f := newMarkerFilter(prompt.ReadyMarker)

	out := f.Write("a"+prompt.ReadyMarker+"b"+prompt.ReadyMarker+"c") + f.Flush()

	require.Equal(t, "abc", out)
	require.True(t, f.Seen())
}

func TestMarkerFilterPassesPlainText(t *testing.T) {
	f := newMarkerFilter(prompt.ReadyMarker)

	out := f.Write("no marker here, ") + f.Write("none at all.") + f.Flush()

	require.Equal(t, "no marker here, none at all.", out)
	require.False(t, f.Seen())
}
