// Package aggregate merges discovery and enrichment output into flat,
// export-ready records.
package aggregate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/JakeFAU/docket-crawler/internal/crawler"
	"github.com/JakeFAU/docket-crawler/internal/enrichment"
)

// Encode renders items as a canonical JSON array. HTML characters and
// non-ASCII text are kept literal and a nil slice encodes as "[]".
func Encode[T any](items []T) (string, error) {
	if items == nil {
		items = []T{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(items); err != nil {
		return "", fmt.Errorf("encode list: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// Decode parses a list produced by Encode. It never returns a nil slice.
func Decode[T any](s string) ([]T, error) {
	out := []T{}
	if strings.TrimSpace(s) == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, fmt.Errorf("decode list: %w", err)
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}

// Merge flattens every result into one FinalRecord, keeping input order.
// Nothing is deduplicated.
func Merge(results []enrichment.Result) ([]crawler.FinalRecord, error) {
	out := make([]crawler.FinalRecord, 0, len(results))
	for i, r := range results {
		rec, err := merge(r.Light, r.Detail)
		if err != nil {
			return nil, fmt.Errorf("merge record %d (%s): %w", i, r.Light.DetailLink, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func merge(light crawler.LightRecord, detail crawler.DetailRecord) (crawler.FinalRecord, error) {
	initial, err := Encode(light.InitialParties)
	if err != nil {
		return crawler.FinalRecord{}, err
	}
	parties, err := Encode(detail.Parties)
	if err != nil {
		return crawler.FinalRecord{}, err
	}
	movements, err := Encode(detail.Movements)
	if err != nil {
		return crawler.FinalRecord{}, err
	}
	link := detail.Link
	if link == "" {
		link = light.DetailLink
	}
	return crawler.FinalRecord{
		ProcessID:        light.ProcessID,
		SourceTag:        light.SourceTag,
		Link:             link,
		Class:            detail.Class,
		Subject:          detail.Subject,
		Forum:            detail.Forum,
		Section:          detail.Section,
		Judge:            detail.Judge,
		DistributionDate: detail.DistributionDate,
		ControlNumber:    detail.ControlNumber,
		Area:             detail.Area,
		ClaimedValue:     detail.ClaimedValue,
		InitialParties:   initial,
		Parties:          parties,
		Movements:        movements,
	}, nil
}

// Stats summarizes a batch of enrichment results.
type Stats struct {
	Total int
	// Failed counts records whose detail page could not be loaded.
	Failed int
	// Degraded counts loaded records with at least one step fault.
	Degraded int
	// BySource counts records per source tag.
	BySource map[string]int
}

// Summarize counts results by outcome and source.
func Summarize(results []enrichment.Result) Stats {
	s := Stats{Total: len(results), BySource: make(map[string]int)}
	for _, r := range results {
		s.BySource[r.Light.SourceTag]++
		switch {
		case r.Report.Failed():
			s.Failed++
		case len(r.Report.Faults()) > 0:
			s.Degraded++
		}
	}
	return s
}
