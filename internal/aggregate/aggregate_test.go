package aggregate

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/docket-crawler/internal/crawler"
	"github.com/JakeFAU/docket-crawler/internal/enrichment"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	parties := []crawler.Party{
		{Role: "Reqte", Name: "Acme <Corp> & Filhos"},
		{Role: "Reqdo", Name: "João da Silva"},
	}
	encoded, err := Encode(parties)
	require.NoError(t, err)
	require.Equal(t, `[{"role":"Reqte","name":"Acme <Corp> & Filhos"},{"role":"Reqdo","name":"João da Silva"}]`, encoded)

	decoded, err := Decode[crawler.Party](encoded)
	require.NoError(t, err)
	require.Equal(t, parties, decoded)

	again, err := Encode(decoded)
	require.NoError(t, err)
	require.Equal(t, encoded, again)
}

func TestEncodeEmpty(t *testing.T) {
	t.Parallel()

	for _, in := range [][]crawler.MovementEntry{nil, {}} {
		encoded, err := Encode(in)
		require.NoError(t, err)
		require.Equal(t, "[]", encoded)

		decoded, err := Decode[crawler.MovementEntry](encoded)
		require.NoError(t, err)
		require.NotNil(t, decoded)
		require.Empty(t, decoded)
	}
}

func TestDecodeTolerance(t *testing.T) {
	t.Parallel()

	out, err := Decode[crawler.Party]("")
	require.NoError(t, err)
	require.Equal(t, []crawler.Party{}, out)

	out, err = Decode[crawler.Party]("null")
	require.NoError(t, err)
	require.Equal(t, []crawler.Party{}, out)

	_, err = Decode[crawler.Party]("{not json")
	require.Error(t, err)
}

func result(id, source string, failed bool) enrichment.Result {
	light := crawler.LightRecord{
		ProcessID:      id,
		DetailLink:     source + "/show.do?processo.codigo=" + id,
		SourceTag:      source,
		InitialParties: []crawler.Party{{Role: "Reqte", Name: "Acme Corp"}},
	}
	detail := crawler.NewDetailRecord(light.DetailLink)
	report := enrichment.Report{Link: light.DetailLink}
	if failed {
		report.Failure = fmt.Errorf("%w: navigate: 502", crawler.ErrEnrichment)
		return enrichment.Result{Light: light, Detail: detail, Report: report}
	}
	detail.Class = "Procedimento Comum Cível"
	detail.Movements = []crawler.MovementEntry{{Date: "01/01/2024", Description: "Distribuído"}}
	return enrichment.Result{Light: light, Detail: detail, Report: report}
}

func TestMergePreservesCardinalityAndOrder(t *testing.T) {
	t.Parallel()

	results := []enrichment.Result{
		result("1", "https://a.example", false),
		result("1", "https://b.example", true),
		result("2", "https://a.example", false),
		result("2", "https://a.example", false),
	}
	records, err := Merge(results)
	require.NoError(t, err)
	require.Len(t, records, len(results))
	for i, rec := range records {
		require.Equal(t, results[i].Light.ProcessID, rec.ProcessID)
		require.Equal(t, results[i].Light.SourceTag, rec.SourceTag)
		require.Equal(t, results[i].Light.DetailLink, rec.Link)
		require.Equal(t, `[{"role":"Reqte","name":"Acme Corp"}]`, rec.InitialParties)
	}

	require.Equal(t, crawler.Unavailable, records[1].Class)
	require.Equal(t, crawler.Unavailable, records[1].ClaimedValue)
	require.Equal(t, "[]", records[1].Parties)
	require.Equal(t, "[]", records[1].Movements)

	require.Equal(t, "Procedimento Comum Cível", records[0].Class)
	require.Equal(t, crawler.Unavailable, records[0].Judge)
	movements, err := Decode[crawler.MovementEntry](records[0].Movements)
	require.NoError(t, err)
	require.Equal(t, results[0].Detail.Movements, movements)
}

func TestMergeEmpty(t *testing.T) {
	t.Parallel()

	records, err := Merge(nil)
	require.NoError(t, err)
	require.NotNil(t, records)
	require.Empty(t, records)
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	degraded := result("3", "https://b.example", false)
	degraded.Report.Outcomes = []enrichment.Outcome{{Step: enrichment.FieldStep(crawler.FieldJudge), Err: crawler.ErrNoElement}}
	stats := Summarize([]enrichment.Result{
		result("1", "https://a.example", false),
		result("2", "https://a.example", true),
		degraded,
	})
	require.Equal(t, 3, stats.Total)
	require.Equal(t, 1, stats.Failed)
	require.Equal(t, 1, stats.Degraded)
	require.Equal(t, map[string]int{"https://a.example": 2, "https://b.example": 1}, stats.BySource)
}
