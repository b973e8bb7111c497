package pharos

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FLP-Quant/settlement-parsing-tools/internal/mis/domain"
)

func TestBuildURL(t *testing.T) {
	got := BuildURL(DefaultBaseURL, DefaultOrganization,
		domain.Date(2025, 3, 1), domain.Date(2025, 3, 31), false, domain.ReportRTReserve)
	want := "https://ams.pharos-ei.com/api/v2/isone/mis/downloads.csv?organization_key=ho-fl&settle_since=2025-03-01&settle_before=2025-03-31&most_recent_version=false&report_name=OI_UNITRTRSV"
	assert.Equal(t, want, got)
}

func TestClientAuthorization(t *testing.T) {
	cases := []struct {
		name  string
		creds Credentials
		want  string
	}{
		{name: "pre-encoded", creds: Credentials{Token: "abc123==", PreEncoded: true}, want: "Basic abc123=="},
		{name: "user and password", creds: Credentials{Token: "user:pa:ss"}, want: "Basic " + base64.StdEncoding.EncodeToString([]byte("user:pa:ss"))},
		{name: "opaque token", creds: Credentials{Token: "opaque"}, want: "Basic " + base64.StdEncoding.EncodeToString([]byte("opaque"))},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = r.Header.Get("Authorization")
				w.Header().Set("Content-Type", "text/csv")
				_, _ = w.Write([]byte("C,hello\nD,1\n"))
			}))
			defer srv.Close()

			client := NewClient(tc.creds, 5*time.Second)
			_, err := client.Fetch(context.Background(), srv.URL)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestClientFetchErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/denied":
			http.Error(w, "bad credentials", http.StatusUnauthorized)
		case "/empty":
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()
	client := NewClient(Credentials{Token: "u:p"}, 5*time.Second)

	_, err := client.Fetch(context.Background(), srv.URL+"/denied")
	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusUnauthorized, httpErr.StatusCode)
	assert.Contains(t, httpErr.Body, "bad credentials")

	_, err = client.Fetch(context.Background(), srv.URL+"/empty")
	require.ErrorIs(t, err, domain.ErrEmptyResponse)
}

func TestClientSavesRawResponse(t *testing.T) {
	body := "C,x\nD,1,2\n"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	dir := t.TempDir()
	client := NewClient(Credentials{}, 5*time.Second)
	client.SaveDir = dir
	rawURL := BuildURL(srv.URL, DefaultOrganization, domain.Date(2025, 3, 1), domain.Date(2025, 3, 2), true, domain.ReportDAAS)

	table, err := client.Fetch(context.Background(), rawURL)
	require.NoError(t, err)
	assert.Equal(t, rawURL, table.Source)
	assert.Equal(t, 2, table.Len())

	saved, err := os.ReadFile(filepath.Join(dir, "SD_DAASCLEARED_2025-03-01_2025-03-02.csv"))
	require.NoError(t, err)
	assert.Equal(t, body, string(saved))
}

func TestClientHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := NewClient(Credentials{}, 5*time.Second).Fetch(ctx, srv.URL)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "pharos"))
}
