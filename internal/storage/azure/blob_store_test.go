package azure

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeAccount struct {
	mu          sync.Mutex
	containers  int
	blobs       map[string][]byte
	types       map[string]string
	containerUp bool
}

func newFakeAccount(t *testing.T, containerExists bool) (*fakeAccount, *httptest.Server) {
	t.Helper()
	acct := &fakeAccount{blobs: map[string][]byte{}, types: map[string]string{}, containerUp: containerExists}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		acct.mu.Lock()
		defer acct.mu.Unlock()
		if r.Method != http.MethodPut {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if r.URL.Query().Get("restype") == "container" {
			acct.containers++
			if acct.containerUp {
				w.Header().Set("x-ms-error-code", "ContainerAlreadyExists")
				w.WriteHeader(http.StatusConflict)
				return
			}
			acct.containerUp = true
			w.WriteHeader(http.StatusCreated)
			return
		}
		body, _ := io.ReadAll(r.Body)
		acct.blobs[r.URL.Path] = body
		acct.types[r.URL.Path] = r.Header.Get("x-ms-blob-content-type")
		w.WriteHeader(http.StatusCreated)
	}))
	t.Cleanup(srv.Close)
	return acct, srv
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(Config{ServiceURL: "https://acct.blob.core.windows.net"})
	require.ErrorContains(t, err, "container")
	_, err = New(Config{Container: "exports"})
	require.Error(t, err)
	_, err = New(Config{Container: "exports", ConnectionString: "AccountName=acct"})
	require.ErrorContains(t, err, "account name and key")
}

func TestPutObject(t *testing.T) {
	t.Parallel()

	acct, srv := newFakeAccount(t, false)
	store, err := New(Config{ServiceURL: srv.URL, Container: "exports", Prefix: "/docket/"})
	require.NoError(t, err)

	data := []byte("\ufeffprocess_id\n1\n")
	uri, err := store.PutObject(context.Background(), "details_acme.csv", "text/csv; charset=utf-8", bytes.NewReader(data))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(uri, srv.URL+"/exports/"), uri)
	require.True(t, strings.HasSuffix(uri, "details_acme.csv"), uri)

	_, err = store.PutObject(context.Background(), "links_acme.csv", "text/csv; charset=utf-8", bytes.NewReader([]byte("x")))
	require.NoError(t, err)

	acct.mu.Lock()
	defer acct.mu.Unlock()
	require.Equal(t, 1, acct.containers)
	require.Equal(t, data, acct.blobs["/exports/docket/details_acme.csv"])
	require.Equal(t, "text/csv; charset=utf-8", acct.types["/exports/docket/details_acme.csv"])
	require.Len(t, acct.blobs, 2)
}

func TestPutObjectExistingContainer(t *testing.T) {
	t.Parallel()

	acct, srv := newFakeAccount(t, true)
	store, err := New(Config{ServiceURL: srv.URL, Container: "exports"})
	require.NoError(t, err)

	_, err = store.PutObject(context.Background(), "details_acme.csv", "", bytes.NewReader([]byte("x")))
	require.NoError(t, err)

	acct.mu.Lock()
	defer acct.mu.Unlock()
	require.Contains(t, acct.blobs, "/exports/details_acme.csv")
}

func TestPutObjectRequiresPath(t *testing.T) {
	t.Parallel()

	store, err := New(Config{ServiceURL: "http://127.0.0.1:1", Container: "exports"})
	require.NoError(t, err)
	_, err = store.PutObject(context.Background(), " ", "", bytes.NewReader(nil))
	require.Error(t, err)
}

func TestParseConnectionString(t *testing.T) {
	t.Parallel()

	got := parseConnectionString("DefaultEndpointsProtocol=http;AccountName=devstoreaccount1;AccountKey=a2V5==;BlobEndpoint=http://127.0.0.1:10000/devstoreaccount1;")
	require.Equal(t, "devstoreaccount1", got["AccountName"])
	require.Equal(t, "a2V5==", got["AccountKey"])
	require.Equal(t, "http://127.0.0.1:10000/devstoreaccount1", got["BlobEndpoint"])

	store, err := New(Config{
		ConnectionString: "AccountName=devstoreaccount1;AccountKey=a2V5;BlobEndpoint=http://127.0.0.1:10000/devstoreaccount1",
		Container:        "exports",
	})
	require.NoError(t, err)
	require.NotNil(t, store)
}
