// Package export writes crawl results as spreadsheet-friendly CSV files.
//
// Files start with a UTF-8 byte order mark so spreadsheet tools pick the
// right encoding for accented names.
package export

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/docket-crawler/internal/crawler"
)

const (
	bom         = "\ufeff"
	contentType = "text/csv; charset=utf-8"
)

// DetailColumns is the header of the details file.
var DetailColumns = []string{
	"process_id", "source", "link",
	"class", "subject", "forum", "section", "judge",
	"distribution_date", "control_number", "area", "claimed_value",
	"initial_parties", "parties", "movements",
}

// LinkColumns is the header of the discovery listing file.
var LinkColumns = []string{"process_id", "link", "source", "party_role", "party_name"}

// Config controls where files land inside the blob store.
type Config struct {
	Prefix string `mapstructure:"prefix"`
}

// Artifact describes one written file.
type Artifact struct {
	Path   string `json:"path"`
	URI    string `json:"uri"`
	SHA256 string `json:"sha256"`
	Rows   int    `json:"rows"`
	Bytes  int    `json:"bytes"`
}

// Manifest lists the files produced for one run.
type Manifest struct {
	Details Artifact `json:"details"`
	Links   Artifact `json:"links"`
}

// Exporter renders records and uploads them through a blob store.
type Exporter struct {
	store  crawler.BlobStore
	cfg    Config
	logger *zap.Logger
}

// New builds an Exporter. A nil logger is replaced with a no-op logger.
func New(store crawler.BlobStore, cfg Config, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{store: store, cfg: cfg, logger: logger.Named("export")}
}

// Export writes details_<slug>.csv and links_<slug>.csv.
func (e *Exporter) Export(ctx context.Context, query string, records []crawler.FinalRecord, lights []crawler.LightRecord) (Manifest, error) {
	if e == nil || e.store == nil {
		return Manifest{}, errors.New("export: blob store is not configured")
	}
	slug := FileSlug(query)
	if slug == "" {
		return Manifest{}, errors.New("export: query produces an empty file name")
	}

	var m Manifest
	var err error
	m.Details, err = e.put(ctx, "details_"+slug+".csv", func(w io.Writer) (int, error) {
		return WriteDetails(w, records)
	})
	if err != nil {
		return Manifest{}, err
	}
	m.Links, err = e.put(ctx, "links_"+slug+".csv", func(w io.Writer) (int, error) {
		return WriteLinks(w, lights)
	})
	if err != nil {
		return Manifest{}, err
	}
	return m, nil
}

func (e *Exporter) put(ctx context.Context, name string, render func(io.Writer) (int, error)) (Artifact, error) {
	var buf bytes.Buffer
	rows, err := render(&buf)
	if err != nil {
		return Artifact{}, fmt.Errorf("render %s: %w", name, err)
	}
	sum := sha256.Sum256(buf.Bytes())
	art := Artifact{
		Path:   path.Join(e.cfg.Prefix, name),
		SHA256: hex.EncodeToString(sum[:]),
		Rows:   rows,
		Bytes:  buf.Len(),
	}
	art.URI, err = e.store.PutObject(ctx, art.Path, contentType, &buf)
	if err != nil {
		return Artifact{}, fmt.Errorf("upload %s: %w", art.Path, err)
	}
	e.logger.Info("export written",
		zap.String("uri", art.URI),
		zap.Int("rows", art.Rows),
		zap.String("sha256", art.SHA256),
	)
	return art, nil
}

// WriteDetails writes the BOM, the header and one row per record. It returns
// the number of data rows.
func WriteDetails(w io.Writer, records []crawler.FinalRecord) (int, error) {
	cw, err := start(w, DetailColumns)
	if err != nil {
		return 0, err
	}
	for _, r := range records {
		row := []string{
			r.ProcessID, r.SourceTag, r.Link,
			r.Class, r.Subject, r.Forum, r.Section, r.Judge,
			r.DistributionDate, r.ControlNumber, r.Area, r.ClaimedValue,
			r.InitialParties, r.Parties, r.Movements,
		}
		if err := cw.Write(row); err != nil {
			return 0, fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	return len(records), cw.Error()
}

// WriteLinks writes one row per initial party. Records without parties
// produce no rows.
func WriteLinks(w io.Writer, lights []crawler.LightRecord) (int, error) {
	cw, err := start(w, LinkColumns)
	if err != nil {
		return 0, err
	}
	rows := 0
	for _, l := range lights {
		for _, p := range l.InitialParties {
			if err := cw.Write([]string{l.ProcessID, l.DetailLink, l.SourceTag, p.Role, p.Name}); err != nil {
				return 0, fmt.Errorf("write row: %w", err)
			}
			rows++
		}
	}
	cw.Flush()
	return rows, cw.Error()
}

func start(w io.Writer, header []string) (*csv.Writer, error) {
	if _, err := io.WriteString(w, bom); err != nil {
		return nil, fmt.Errorf("write bom: %w", err)
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	return cw, nil
}

// FileSlug is crawler.Slug with path separators neutralized.
func FileSlug(query string) string {
	s := crawler.Slug(query)
	return strings.NewReplacer("/", "_", "\\", "_").Replace(s)
}
