// Package esajtest serves a miniature e-SAJ court site over httptest so the
// crawl pipeline can be exercised end to end without a real court.
package esajtest

import (
	"html/template"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/JakeFAU/docket-crawler/internal/crawler"
)

// Process is one docket the fake court knows about.
type Process struct {
	ID string
	// Parties are shown on the search listing.
	Parties []crawler.Party
	// Fields holds detail scalars; a missing key omits the element.
	Fields map[crawler.Field]string
	// AllParties, when non-nil, renders the "all parties" toggle and table.
	AllParties     []crawler.Party
	PrimaryParties []crawler.Party
	Movements      []crawler.MovementEntry
	// DetailDelay stalls the detail response.
	DetailDelay time.Duration
	// DetailStatus overrides the detail response code.
	DetailStatus int
}

// Site configures the fake court.
type Site struct {
	Processes []Process
	// PageSize defaults to 10.
	PageSize int
	// DisabledNext renders a disabled next control on the last page instead
	// of omitting it.
	DisabledNext bool
	// SearchStatus overrides the search form response code.
	SearchStatus int
	// FailPage makes that listing page answer 500.
	FailPage int
}

// Server is a running fake court.
type Server struct {
	*httptest.Server

	site Site

	searches     atomic.Int64
	listings     atomic.Int64
	details      atomic.Int64
	inFlight     atomic.Int64
	peakInFlight atomic.Int64

	mu      sync.Mutex
	queries []string
}

// New starts a fake court and registers its shutdown with t.
func New(t testing.TB, site Site) *Server {
	t.Helper()
	if site.PageSize <= 0 {
		site.PageSize = 10
	}
	s := &Server{site: site}
	mux := http.NewServeMux()
	mux.HandleFunc("/cpopg/open.do", s.handleOpen)
	mux.HandleFunc("/cpopg/search.do", s.handleSearch)
	mux.HandleFunc("/cpopg/show.do", s.handleShow)
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// Endpoint returns a source pointing at the server.
func (s *Server) Endpoint() crawler.SourceEndpoint {
	return crawler.SourceEndpoint{BaseURL: s.URL + "/", Locale: "pt-BR", TimezoneID: "America/Sao_Paulo"}
}

// DetailLink returns the absolute detail URL for id.
func (s *Server) DetailLink(id string) string {
	return s.URL + "/cpopg/show.do?processo.codigo=" + id
}

// Searches counts search form submissions.
func (s *Server) Searches() int64 { return s.searches.Load() }

// Listings counts listing pages served, including the first.
func (s *Server) Listings() int64 { return s.listings.Load() }

// Details counts detail page requests.
func (s *Server) Details() int64 { return s.details.Load() }

// PeakInFlightDetails is the largest number of detail requests served at once.
func (s *Server) PeakInFlightDetails() int64 { return s.peakInFlight.Load() }

// Queries returns every query submitted, in arrival order.
func (s *Server) Queries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.queries...)
}

func (s *Server) handleOpen(w http.ResponseWriter, _ *http.Request) {
	if s.site.SearchStatus != 0 {
		w.WriteHeader(s.site.SearchStatus)
		return
	}
	render(w, openTemplate, nil)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("dadosConsulta.valorConsulta")
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
		s.searches.Add(1)
		s.mu.Lock()
		s.queries = append(s.queries, query)
		s.mu.Unlock()
	}
	s.listings.Add(1)
	if s.site.FailPage != 0 && page == s.site.FailPage {
		http.Error(w, "listing unavailable", http.StatusInternalServerError)
		return
	}

	matches := s.match(query, r.URL.Query().Get("cbPesquisa"))
	if len(matches) == 0 {
		render(w, emptyTemplate, nil)
		return
	}
	start := (page - 1) * s.site.PageSize
	if start >= len(matches) {
		start = len(matches)
	}
	end := start + s.site.PageSize
	if end > len(matches) {
		end = len(matches)
	}

	data := listingData{Processes: matches[start:end]}
	if end < len(matches) {
		next := *r.URL
		q := next.Query()
		q.Set("page", strconv.Itoa(page+1))
		next.RawQuery = q.Encode()
		data.Next = next.RequestURI()
	} else {
		data.Disabled = s.site.DisabledNext
	}
	render(w, listingTemplate, data)
}

func (s *Server) handleShow(w http.ResponseWriter, r *http.Request) {
	s.details.Add(1)
	current := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		peak := s.peakInFlight.Load()
		if current <= peak || s.peakInFlight.CompareAndSwap(peak, current) {
			break
		}
	}

	id := r.URL.Query().Get("processo.codigo")
	proc, ok := s.find(id)
	if !ok {
		http.NotFound(w, r)
		return
	}
	if proc.DetailDelay > 0 {
		select {
		case <-time.After(proc.DetailDelay):
		case <-r.Context().Done():
			return
		}
	}
	if proc.DetailStatus != 0 {
		w.WriteHeader(proc.DetailStatus)
		return
	}
	render(w, detailTemplate, newDetailData(proc))
}

func (s *Server) match(query, mode string) []Process {
	if mode != "NMPARTE" {
		return nil
	}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	var out []Process
	for _, p := range s.site.Processes {
		for _, party := range p.Parties {
			if strings.Contains(strings.ToLower(party.Name), q) {
				out = append(out, p)
				break
			}
		}
	}
	return out
}

func (s *Server) find(id string) (Process, bool) {
	for _, p := range s.site.Processes {
		if p.ID == id {
			return p, true
		}
	}
	return Process{}, false
}

func render(w http.ResponseWriter, tpl *template.Template, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tpl.Execute(w, data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// Numbered builds n processes named after prefix whose listing parties
// include party, each with every detail field populated.
func Numbered(prefix, party string, n int) []Process {
	out := make([]Process, 0, n)
	for i := 1; i <= n; i++ {
		id := prefix + "-" + strconv.Itoa(i)
		fields := make(map[crawler.Field]string, len(crawler.DetailFields))
		for _, f := range crawler.DetailFields {
			fields[f] = string(f) + " of " + id
		}
		out = append(out, Process{
			ID: id,
			Parties: []crawler.Party{
				{Role: "Reqte", Name: party},
				{Role: "Reqdo", Name: "Defendant " + id},
			},
			Fields:         fields,
			PrimaryParties: []crawler.Party{{Role: "Reqte", Name: party}, {Role: "Reqdo", Name: "Defendant " + id}},
			Movements: []crawler.MovementEntry{
				{Date: "02/01/2024", Description: "Conclusos para decisão " + id},
				{Date: "01/01/2024", Description: "Distribuído " + id},
			},
		})
	}
	return out
}
