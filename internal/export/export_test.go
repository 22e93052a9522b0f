package export

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/docket-crawler/internal/crawler"
	"github.com/JakeFAU/docket-crawler/internal/storage/memory"
)

func sampleRecords() []crawler.FinalRecord {
	return []crawler.FinalRecord{
		{
			ProcessID: "0001234-56.2023.8.26.0100", SourceTag: "https://esaj.tjsp.jus.br",
			Link: "https://esaj.tjsp.jus.br/cpopg/show.do?p=1", Class: "Procedimento Comum Cível",
			Subject: "Indenização", Forum: "Foro Central", Section: "1ª Vara", Judge: crawler.Unavailable,
			DistributionDate: "01/02/2023", ControlNumber: "2023/000001", Area: "Cível",
			ClaimedValue: "R$ 1.000,00", InitialParties: `[{"role":"Reqte","name":"Acme Corp"}]`,
			Parties: `[]`, Movements: `[{"date":"01/02/2023","description":"Distribuído, com vírgula"}]`,
		},
		{ProcessID: "2", SourceTag: "https://www2.tjal.jus.br", Link: "l2", InitialParties: "[]", Parties: "[]", Movements: "[]"},
	}
}

func sampleLights() []crawler.LightRecord {
	return []crawler.LightRecord{
		{ProcessID: "1", DetailLink: "l1", SourceTag: "s", InitialParties: []crawler.Party{
			{Role: "Reqte", Name: "Acme Corp"}, {Role: "Reqdo", Name: "João"},
		}},
		{ProcessID: "2", DetailLink: "l2", SourceTag: "s"},
	}
}

func readCSV(t *testing.T, data []byte) [][]string {
	t.Helper()
	require.True(t, bytes.HasPrefix(data, []byte(bom)))
	rows, err := csv.NewReader(bytes.NewReader(data[len(bom):])).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestWriteDetails(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	n, err := WriteDetails(&buf, sampleRecords())
	require.NoError(t, err)
	require.Equal(t, 2, n)

	rows := readCSV(t, buf.Bytes())
	require.Len(t, rows, 3)
	require.Equal(t, DetailColumns, rows[0])
	require.Len(t, rows[1], len(DetailColumns))
	require.Equal(t, crawler.Unavailable, rows[1][7])
	require.Equal(t, `[{"date":"01/02/2023","description":"Distribuído, com vírgula"}]`, rows[1][14])
	require.Equal(t, "https://www2.tjal.jus.br", rows[2][1])
}

func TestWriteDetailsEmpty(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	n, err := WriteDetails(&buf, nil)
	require.NoError(t, err)
	require.Zero(t, n)
	require.Equal(t, [][]string{DetailColumns}, readCSV(t, buf.Bytes()))
}

func TestWriteLinks(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	n, err := WriteLinks(&buf, sampleLights())
	require.NoError(t, err)
	require.Equal(t, 2, n)

	rows := readCSV(t, buf.Bytes())
	require.Equal(t, [][]string{
		LinkColumns,
		{"1", "l1", "s", "Reqte", "Acme Corp"},
		{"1", "l1", "s", "Reqdo", "João"},
	}, rows)
}

func TestExport(t *testing.T) {
	t.Parallel()

	store := memory.NewBlobStore()
	exp := New(store, Config{Prefix: "exports"}, nil)
	m, err := exp.Export(context.Background(), "Acme Corp", sampleRecords(), sampleLights())
	require.NoError(t, err)

	require.Equal(t, "exports/details_acme_corp.csv", m.Details.Path)
	require.Equal(t, "memory://exports/details_acme_corp.csv", m.Details.URI)
	require.Equal(t, 2, m.Details.Rows)
	require.Equal(t, "exports/links_acme_corp.csv", m.Links.Path)
	require.Equal(t, 2, m.Links.Rows)

	data, ct, ok := store.Object(m.Details.Path)
	require.True(t, ok)
	require.Equal(t, contentType, ct)
	require.Equal(t, len(data), m.Details.Bytes)
	sum := sha256.Sum256(data)
	require.Equal(t, hex.EncodeToString(sum[:]), m.Details.SHA256)
}

type failingStore struct{}

func (failingStore) PutObject(context.Context, string, string, io.Reader) (string, error) {
	return "", errors.New("bucket gone")
}

func TestExportErrors(t *testing.T) {
	t.Parallel()

	_, err := New(failingStore{}, Config{}, nil).Export(context.Background(), "acme", nil, nil)
	require.ErrorContains(t, err, "bucket gone")

	_, err = New(nil, Config{}, nil).Export(context.Background(), "acme", nil, nil)
	require.Error(t, err)

	_, err = New(memory.NewBlobStore(), Config{}, nil).Export(context.Background(), "   ", nil, nil)
	require.Error(t, err)
}

func TestFileSlug(t *testing.T) {
	t.Parallel()

	require.Equal(t, "acme_corp", FileSlug("  Acme Corp "))
	require.Equal(t, "a_b_c", FileSlug("A/B\\C"))
	require.False(t, strings.Contains(FileSlug("../x"), "/"))
}
