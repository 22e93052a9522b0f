package crawler

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewDetailRecordDefaultsToSentinel(t *testing.T) {
	t.Parallel()

	d := NewDetailRecord("https://esaj.example/show.do?id=1")
	for _, f := range DetailFields {
		require.Equal(t, Unavailable, d.Get(f), "field %s", f)
	}
	require.NotNil(t, d.Parties)
	require.NotNil(t, d.Movements)
	require.Empty(t, d.Parties)
	require.Empty(t, d.Movements)
}

func TestDetailRecordSetGet(t *testing.T) {
	t.Parallel()

	d := NewDetailRecord("")
	require.True(t, d.Set(FieldJudge, "Dra. Ana"))
	require.Equal(t, "Dra. Ana", d.Judge)
	require.Equal(t, Unavailable, d.Forum)

	require.False(t, d.Set(Field("bogus"), "x"))
	require.Equal(t, Unavailable, d.Get(Field("bogus")))
}

func TestNormalizeQuery(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "trimmed", in: "  Acme Corp ", want: "Acme Corp"},
		{name: "exactly three", in: "abc", want: "abc"},
		{name: "multibyte counts runes", in: "São", want: "São"},
		{name: "too short", in: "ab", wantErr: true},
		{name: "whitespace padded short", in: "   ab   ", wantErr: true},
		{name: "empty", in: "", wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := NormalizeQuery(tt.in)
			if tt.wantErr {
				var vErr *ValidationError
				require.True(t, errors.As(err, &vErr))
				require.Equal(t, tt.in, vErr.Query)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestSlug(t *testing.T) {
	t.Parallel()

	require.Equal(t, "coca_cola", Slug(" Coca Cola "))
	require.Equal(t, "acme", Slug("ACME"))
}

func TestSourceEndpointTag(t *testing.T) {
	t.Parallel()

	require.Equal(t, "https://esaj.tjsp.jus.br", SourceEndpoint{BaseURL: "https://esaj.tjsp.jus.br/"}.Tag())
}

func TestFieldLocatorsFromMap(t *testing.T) {
	t.Parallel()

	locs, err := FieldLocatorsFromMap(map[string]string{
		"judge": "#juiz",
		"class": "#classe",
	})
	require.NoError(t, err)
	require.Equal(t, []FieldLocator{
		{Field: FieldClass, Selector: "#classe"},
		{Field: FieldJudge, Selector: "#juiz"},
	}, locs)

	_, err = FieldLocatorsFromMap(map[string]string{"unknown": "#x"})
	require.ErrorContains(t, err, "unknown detail field")

	_, err = FieldLocatorsFromMap(map[string]string{"area": ""})
	require.ErrorContains(t, err, "empty selector")
}

func TestDefaultDetailSelectorsCoverEveryField(t *testing.T) {
	t.Parallel()

	sel := DefaultDetailSelectors()
	require.Len(t, sel.Fields, len(DetailFields))
	for i, loc := range sel.Fields {
		require.Equal(t, DetailFields[i], loc.Field)
	}
}
