package static

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/docket-crawler/internal/crawler"
	"github.com/JakeFAU/docket-crawler/internal/esajtest"
)

func openPage(t *testing.T, opts crawler.SessionOptions) (crawler.Session, crawler.Page) {
	t.Helper()
	ctx := context.Background()
	browser, err := NewLauncher(Config{Timeout: 5 * time.Second}).Launch(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = browser.Close() })
	session, err := browser.OpenSession(ctx, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })
	page, err := session.NewPage(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = page.Close() })
	return session, page
}

func acmeSite() esajtest.Site {
	procs := make([]esajtest.Process, 0, 5)
	for _, id := range []string{"0001", "0002", "0003", "0004", "0005"} {
		procs = append(procs, esajtest.Process{
			ID:      id,
			Parties: []crawler.Party{{Role: "Reqte", Name: "Acme Corp"}, {Role: "Reqdo", Name: "Someone " + id}},
			Fields:  map[crawler.Field]string{crawler.FieldClass: "Procedimento Comum Cível"},
		})
	}
	return esajtest.Site{Processes: procs, PageSize: 3, DisabledNext: true}
}

func TestSearchFormAndPagination(t *testing.T) {
	t.Parallel()

	srv := esajtest.New(t, acmeSite())
	_, page := openPage(t, crawler.SessionOptions{Locale: "pt-BR"})
	ctx := context.Background()

	require.NoError(t, page.Navigate(ctx, srv.URL+"/cpopg/open.do", crawler.WaitLoad, time.Second))
	require.NoError(t, page.SelectOption(ctx, "#cbPesquisa", "NMPARTE"))
	require.NoError(t, page.Fill(ctx, "#campo_NMPARTE", "Acme Corp"))
	require.NoError(t, page.Press(ctx, "#campo_NMPARTE", crawler.KeyEnter))
	require.NoError(t, page.WaitForSelector(ctx, "a.linkProcesso", crawler.StateAttached, time.Second))
	require.Equal(t, []string{"Acme Corp"}, srv.Queries())

	links, err := page.QuerySelectorAll(ctx, "a.linkProcesso")
	require.NoError(t, err)
	require.Len(t, links, 3)
	text, err := links[0].Text(ctx)
	require.NoError(t, err)
	require.Equal(t, "0001", text)
	href, ok, err := links[0].Attribute(ctx, "href")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "/cpopg/show.do?processo.codigo=0001", href)

	next, err := page.QuerySelector(ctx, "a.unj-pagination__next")
	require.NoError(t, err)
	require.NoError(t, next.Click(ctx))
	links, err = page.QuerySelectorAll(ctx, "a.linkProcesso")
	require.NoError(t, err)
	require.Len(t, links, 2)

	next, err = page.QuerySelector(ctx, "a.unj-pagination__next")
	require.NoError(t, err)
	class, _, err := next.Attribute(ctx, "class")
	require.NoError(t, err)
	require.Contains(t, class, "disabled")
	require.EqualValues(t, 1, srv.Searches())
	require.EqualValues(t, 2, srv.Listings())
}

func TestScopedQueries(t *testing.T) {
	t.Parallel()

	srv := esajtest.New(t, acmeSite())
	_, page := openPage(t, crawler.SessionOptions{})
	ctx := context.Background()
	require.NoError(t, page.Navigate(ctx, srv.URL+"/cpopg/search.do?cbPesquisa=NMPARTE&dadosConsulta.valorConsulta=acme",
		crawler.WaitDOMContentLoaded, time.Second))

	blocks, err := page.QuerySelectorAll(ctx, ".home__lista-de-processos")
	require.NoError(t, err)
	require.Len(t, blocks, 3)
	parties, err := blocks[1].QuerySelectorAll(ctx, "div.col-md-3")
	require.NoError(t, err)
	require.Len(t, parties, 3)
	role, err := parties[1].QuerySelector(ctx, ".tipoDeParticipacao")
	require.NoError(t, err)
	text, err := role.Text(ctx)
	require.NoError(t, err)
	require.Equal(t, "Reqte:", text)

	_, err = parties[0].QuerySelector(ctx, ".nomeParte")
	require.ErrorIs(t, err, crawler.ErrNoElement)
	_, ok, err := blocks[0].Attribute(ctx, "data-missing")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDetailPage(t *testing.T) {
	t.Parallel()

	srv := esajtest.New(t, acmeSite())
	_, page := openPage(t, crawler.SessionOptions{})
	ctx := context.Background()
	require.NoError(t, page.Navigate(ctx, srv.DetailLink("0002"), crawler.WaitDOMContentLoaded, time.Second))

	el, err := page.QuerySelector(ctx, "#classeProcesso")
	require.NoError(t, err)
	text, err := el.Text(ctx)
	require.NoError(t, err)
	require.Equal(t, "Procedimento Comum Cível", text)

	_, err = page.QuerySelector(ctx, "#juizProcesso")
	require.ErrorIs(t, err, crawler.ErrNoElement)
	require.ErrorIs(t, page.WaitForSelector(ctx, "#juizProcesso", crawler.StateVisible, time.Second), crawler.ErrNoElement)

	// Expanding an in-page panel does not navigate.
	more, err := page.QuerySelector(ctx, "#botaoExpandirDadosSecundarios")
	require.NoError(t, err)
	require.NoError(t, more.Click(ctx))
	current, err := page.URL(ctx)
	require.NoError(t, err)
	require.Equal(t, srv.DetailLink("0002"), current)
	require.EqualValues(t, 1, srv.Details())
}

func TestNavigateTimeout(t *testing.T) {
	t.Parallel()

	site := acmeSite()
	site.Processes[0].DetailDelay = time.Second
	srv := esajtest.New(t, site)
	_, page := openPage(t, crawler.SessionOptions{})

	err := page.Navigate(context.Background(), srv.DetailLink("0001"), crawler.WaitDOMContentLoaded, 50*time.Millisecond)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNavigateHTTPError(t *testing.T) {
	t.Parallel()

	site := acmeSite()
	site.Processes[0].DetailStatus = http.StatusInternalServerError
	srv := esajtest.New(t, site)
	_, page := openPage(t, crawler.SessionOptions{})

	require.Error(t, page.Navigate(context.Background(), srv.DetailLink("0001"), crawler.WaitLoad, time.Second))
	_, err := page.QuerySelector(context.Background(), "body")
	require.ErrorIs(t, err, crawler.ErrNoElement)
}

func TestSessionsIsolateCookies(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/set" {
			http.SetCookie(w, &http.Cookie{Name: "JSESSIONID", Value: "abc", Path: "/"})
		}
		cookie := "none"
		if c, err := r.Cookie("JSESSIONID"); err == nil {
			cookie = c.Value
		}
		_, _ = w.Write([]byte(`<html><body><p id="cookie">` + cookie + `</p><p id="lang">` +
			r.Header.Get("Accept-Language") + `</p><p id="ua">` + r.UserAgent() + `</p></body></html>`))
	}))
	t.Cleanup(srv.Close)

	ctx := context.Background()
	browser, err := NewLauncher(Config{UserAgent: "docket-test"}).Launch(ctx)
	require.NoError(t, err)
	first, err := browser.OpenSession(ctx, crawler.SessionOptions{Locale: "pt-BR"})
	require.NoError(t, err)
	second, err := browser.OpenSession(ctx, crawler.SessionOptions{UserAgent: "override"})
	require.NoError(t, err)

	readText := func(p crawler.Page, sel string) string {
		el, err := p.QuerySelector(ctx, sel)
		require.NoError(t, err)
		text, err := el.Text(ctx)
		require.NoError(t, err)
		return text
	}

	a, err := first.NewPage(ctx)
	require.NoError(t, err)
	require.NoError(t, a.Navigate(ctx, srv.URL+"/set", crawler.WaitLoad, time.Second))
	require.NoError(t, a.Navigate(ctx, srv.URL+"/echo", crawler.WaitLoad, time.Second))
	require.Equal(t, "abc", readText(a, "#cookie"))
	require.Equal(t, "pt-BR,pt;q=0.9", readText(a, "#lang"))
	require.Equal(t, "docket-test", readText(a, "#ua"))

	b, err := second.NewPage(ctx)
	require.NoError(t, err)
	require.NoError(t, b.Navigate(ctx, srv.URL+"/echo", crawler.WaitLoad, time.Second))
	require.Equal(t, "none", readText(b, "#cookie"))
	require.Equal(t, "override", readText(b, "#ua"))

	require.NoError(t, second.Close())
	_, err = second.NewPage(ctx)
	require.ErrorIs(t, err, errClosed)
	require.NoError(t, browser.Close())
	_, err = browser.OpenSession(ctx, crawler.SessionOptions{})
	require.ErrorIs(t, err, errClosed)
}

func TestClosedPage(t *testing.T) {
	t.Parallel()

	_, page := openPage(t, crawler.SessionOptions{})
	require.NoError(t, page.Close())
	_, err := page.QuerySelector(context.Background(), "a")
	require.ErrorIs(t, err, errClosed)
	require.ErrorIs(t, page.Navigate(context.Background(), "http://127.0.0.1/", crawler.WaitLoad, time.Second), errClosed)
}

func TestSerializeForm(t *testing.T) {
	t.Parallel()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`<form action="/go" method="post">
		<input name="q" value="acme">
		<input name="off" value="x" disabled>
		<input type="checkbox" name="c1" checked>
		<input type="checkbox" name="c2" value="no">
		<input type="submit" name="btn" value="Send">
		<select name="mode"><option value="A">a</option><option selected>B</option></select>
		<textarea name="notes">hello</textarea>
	</form>`))
	require.NoError(t, err)
	form := doc.Find("form")

	values := serializeForm(form, nil)
	require.Equal(t, "acme", values.Get("q"))
	require.Equal(t, "on", values.Get("c1"))
	require.Equal(t, "B", values.Get("mode"))
	require.Equal(t, "hello", values.Get("notes"))
	require.NotContains(t, values, "off")
	require.NotContains(t, values, "c2")
	require.NotContains(t, values, "btn")

	values = serializeForm(form, doc.Find("input[type=submit]"))
	require.Equal(t, "Send", values.Get("btn"))

	method, action, err := formTarget(form, mustParse(t, "https://esaj.example/cpopg/open.do"))
	require.NoError(t, err)
	require.Equal(t, http.MethodPost, method)
	require.Equal(t, "https://esaj.example/go", action.String())
}

func TestVisible(t *testing.T) {
	t.Parallel()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`<div style="display: none"><span id="a">x</span></div>
		<div hidden><span id="b">x</span></div><span id="c">x</span><input id="d" type="hidden">`))
	require.NoError(t, err)
	require.False(t, visible(doc.Find("#a")))
	require.False(t, visible(doc.Find("#b")))
	require.True(t, visible(doc.Find("#c")))
	require.False(t, visible(doc.Find("#d")))
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

var _ net.Error = timeoutError{}

type scriptedTransport struct {
	errs  []error
	calls int
}

func (s *scriptedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody, Header: http.Header{}, Request: req}, nil
}

func TestRobotsTransport(t *testing.T) {
	t.Parallel()

	base := &scriptedTransport{errs: []error{timeoutError{}}}
	rt := &robotsTransport{base: base}
	req, err := http.NewRequest(http.MethodGet, "https://esaj.example/robots.txt", nil)
	require.NoError(t, err)
	resp, err := rt.RoundTrip(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 2, base.calls)

	boom := errors.New("connection refused")
	base = &scriptedTransport{errs: []error{boom}}
	rt = &robotsTransport{base: base}
	_, err = rt.RoundTrip(req)
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, base.calls)

	req, err = http.NewRequest(http.MethodGet, "https://esaj.example/cpopg/open.do", nil)
	require.NoError(t, err)
	base = &scriptedTransport{errs: []error{timeoutError{}}}
	rt = &robotsTransport{base: base}
	_, err = rt.RoundTrip(req)
	require.Error(t, err)
	require.Equal(t, 1, base.calls)
}
