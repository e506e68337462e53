package openhumans

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/openhumans/loggather/config"
	"github.com/openhumans/loggather/services"
	"github.com/openhumans/loggather/services/datalogs"
)

func newTestClient(t *testing.T, baseURL string, opts ...Option) *Client {
	return New(config.OpenHumansConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		AppBaseURL:   "https://loggather.example.org",
		BaseURL:      baseURL,
		Timeout:      5 * time.Second,
	}, zaptest.NewLogger(t), opts...)
}

func TestFetchAll_FollowsPagination(t *testing.T) {
	var srvURL string
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "/data-management/newdatafileaccesslog/", r.URL.Path)
		assert.Equal(t, "tok", r.URL.Query().Get("access_token"))

		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("page") {
		case "":
			assert.Equal(t, "2024-01-01", r.URL.Query().Get("start_date"))
			assert.Equal(t, "2024-01-31", r.URL.Query().Get("end_date"))
			fmt.Fprintf(w, `{"results":[{"date":"d1","datafile":{"id":1,"source":"p1"}},{"date":"d2","datafile":null}],"next":%q}`,
				srvURL+r.URL.Path+"?access_token=tok&page=2")
		case "2":
			w.Write([]byte(`{"results":[{"date":"d3","datafile":{"id":3,"source":"p2"}}],"next":null}`))
		default:
			t.Errorf("unexpected page %q", r.URL.Query().Get("page"))
		}
	}))
	defer srv.Close()
	srvURL = srv.URL

	c := newTestClient(t, srv.URL)
	recs, err := c.FetchAll(context.Background(), "newdatafileaccesslog", "tok",
		datalogs.DateRange{Start: "2024-01-01", End: "2024-01-31"})

	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, "d1", recs[0]["date"])
	assert.Equal(t, "d3", recs[2]["date"])
	assert.Equal(t, json.Number("1"), recs[0].Datafile()["id"])
	assert.Nil(t, recs[1].Datafile())
}

func TestFetchAll_OmitsAbsentDateBounds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "access_token=tok", r.URL.RawQuery)
		w.Write([]byte(`{"results":[],"next":null}`))
	}))
	defer srv.Close()

	recs, err := newTestClient(t, srv.URL).FetchAll(context.Background(), "awsdatafileaccesslog", "tok", datalogs.DateRange{})

	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestFetchAll_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "non-success status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"detail":"Invalid token."}`))
			},
		},
		{
			name: "server error is not retried",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"results":`))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				tt.handler(w, r)
			}))
			defer srv.Close()

			_, err := newTestClient(t, srv.URL).FetchAll(context.Background(), "awsdatafileaccesslog", "tok", datalogs.DateRange{})

			require.Error(t, err)
			assert.True(t, services.IsRemoteFetchError(err))
			assert.Equal(t, "awsdatafileaccesslog", services.GetErrorDetails(err)["endpoint"])
			assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
		})
	}
}

func TestFetchAll_APIErrorBodyTruncated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(strings.Repeat("x", 2000)))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).FetchAll(context.Background(), "e", "tok", datalogs.DateRange{})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Len(t, apiErr.Body, 512)
}

func TestFetchAll_PageRateLimited(t *testing.T) {
	var srvURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "" {
			fmt.Fprintf(w, `{"results":[],"next":%q}`, srvURL+"/data-management/e/?page=2")
			return
		}
		w.Write([]byte(`{"results":[],"next":null}`))
	}))
	defer srv.Close()
	srvURL = srv.URL

	c := newTestClient(t, srv.URL, WithPageRate(20))
	start := time.Now()
	_, err := c.FetchAll(context.Background(), "e", "tok", datalogs.DateRange{})

	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestFetchAll_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[],"next":null}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient(t, srv.URL).FetchAll(ctx, "e", "tok", datalogs.DateRange{})

	require.Error(t, err)
	assert.True(t, services.IsRemoteFetchError(err))
}

func TestExchangeMember(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/direct-sharing/project/exchange-member/", r.URL.Path)
		if r.URL.Query().Get("access_token") != "good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"project_member_id":"12345678","username":"alice","data":[{"id":9,"basename":"datalogs_aws_p1.csv","download_url":"https://dl/9","source":"direct-sharing-1"}]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	t.Run("valid token", func(t *testing.T) {
		info, err := c.ExchangeMember(context.Background(), "good")
		require.NoError(t, err)
		assert.Equal(t, "12345678", info.ProjectMemberID)
		require.Len(t, info.Data, 1)
		assert.Equal(t, "datalogs_aws_p1.csv", info.Data[0].Basename)

		files, err := c.ListFiles(context.Background(), "good")
		require.NoError(t, err)
		assert.Len(t, files, 1)
	})

	t.Run("rejected token", func(t *testing.T) {
		_, err := c.ExchangeMember(context.Background(), "bad")
		assert.True(t, services.IsUnauthorizedError(err))
	})
}

func TestUploader_Upload(t *testing.T) {
	var putBody string
	var gotMeta datalogs.Metadata
	var completed int32
	var srvURL string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/direct-sharing/project/exchange-member/":
			w.Write([]byte(`{"project_member_id":"12345678","data":[]}`))
		case r.URL.Path == "/api/direct-sharing/project/files/upload/direct/":
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "tok", r.URL.Query().Get("access_token"))
			assert.NoError(t, r.ParseForm())
			assert.Equal(t, "12345678", r.PostForm.Get("project_member_id"))
			assert.True(t, strings.HasPrefix(r.PostForm.Get("filename"), "datalogs_aws_p1_"))
			assert.NoError(t, json.Unmarshal([]byte(r.PostForm.Get("metadata")), &gotMeta))
			fmt.Fprintf(w, `{"id":77,"url":%q}`, srvURL+"/s3/put-target")
		case r.URL.Path == "/s3/put-target":
			assert.Equal(t, http.MethodPut, r.Method)
			b, _ := io.ReadAll(r.Body)
			putBody = string(b)
		case r.URL.Path == "/api/direct-sharing/project/files/upload/complete/":
			assert.NoError(t, r.ParseForm())
			assert.Equal(t, "77", r.PostForm.Get("file_id"))
			assert.Equal(t, "12345678", r.PostForm.Get("project_member_id"))
			atomic.AddInt32(&completed, 1)
			w.Write([]byte(`{"status":"ok"}`))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()
	srvURL = srv.URL

	file := datalogs.ExportFile{
		Name:     datalogs.FileName(datalogs.LogTypeAWS, "p1", datalogs.DateRange{}, time.Now()),
		Project:  "p1",
		Content:  []byte("time\nt1"),
		Metadata: datalogs.AWSSchema.Metadata,
	}

	err := NewUploader(newTestClient(t, srv.URL)).Upload(context.Background(), "tok", file)

	require.NoError(t, err)
	assert.Equal(t, "time\nt1", putBody)
	assert.Equal(t, datalogs.AWSSchema.Metadata, gotMeta)
	assert.Equal(t, int32(1), atomic.LoadInt32(&completed))
}

func TestUploadStream_Failures(t *testing.T) {
	tests := []struct {
		name       string
		failPath   string
		wantSubstr string
	}{
		{"register rejected", "/api/direct-sharing/project/files/upload/direct/", "register upload"},
		{"put rejected", "/s3/put-target", "put file"},
		{"complete rejected", "/api/direct-sharing/project/files/upload/complete/", "complete upload"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var srvURL string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path == tt.failPath {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				if r.URL.Path == "/api/direct-sharing/project/files/upload/direct/" {
					fmt.Fprintf(w, `{"id":1,"url":%q}`, srvURL+"/s3/put-target")
				}
			}))
			defer srv.Close()
			srvURL = srv.URL

			err := newTestClient(t, srv.URL).UploadStream(context.Background(), "tok", "123", "f.csv",
				datalogs.Metadata{}, strings.NewReader("x"), 1)

			require.Error(t, err)
			assert.True(t, services.IsUploadError(err))
			assert.Contains(t, err.Error(), tt.wantSubstr)
			assert.Equal(t, "f.csv", services.GetErrorDetails(err)["filename"])
		})
	}
}

func TestOAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/oauth2/token/", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "client-id", user)
		assert.Equal(t, "client-secret", pass)
		assert.NoError(t, r.ParseForm())

		switch r.PostForm.Get("grant_type") {
		case "authorization_code":
			assert.Equal(t, "https://loggather.example.org/auth/callback", r.PostForm.Get("redirect_uri"))
			if r.PostForm.Get("code") != "good-code" {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"error":"invalid_grant"}`))
				return
			}
			w.Write([]byte(`{"access_token":"a1","refresh_token":"r1","expires_in":36000,"token_type":"Bearer","scope":"read write"}`))
		case "refresh_token":
			assert.Equal(t, "r1", r.PostForm.Get("refresh_token"))
			w.Write([]byte(`{"access_token":"a2","refresh_token":"r2","expires_in":36000}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	ctx := context.Background()

	t.Run("authorize url", func(t *testing.T) {
		u := c.AuthorizeURL("xyz")
		assert.True(t, strings.HasPrefix(u, srv.URL+"/direct-sharing/projects/oauth2/authorize/?"))
		assert.Contains(t, u, "client_id=client-id")
		assert.Contains(t, u, "response_type=code")
		assert.Contains(t, u, "state=xyz")
	})

	t.Run("exchange code", func(t *testing.T) {
		tok, err := c.ExchangeCode(ctx, "good-code")
		require.NoError(t, err)
		assert.Equal(t, "a1", tok.AccessToken)
		issued := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		assert.Equal(t, issued.Add(10*time.Hour), tok.ExpiresAt(issued))
	})

	t.Run("bad code", func(t *testing.T) {
		_, err := c.ExchangeCode(ctx, "bad-code")
		assert.True(t, services.IsUnauthorizedError(err))
	})

	t.Run("refresh", func(t *testing.T) {
		tok, err := c.RefreshToken(ctx, "r1")
		require.NoError(t, err)
		assert.Equal(t, "a2", tok.AccessToken)
		assert.Equal(t, "r2", tok.RefreshToken)
	})
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "https://oh.example/x/?access_token=REDACTED&page=2", redact("https://oh.example/x/?access_token=secret&page=2"))
	assert.Equal(t, "https://oh.example/x/", redact("https://oh.example/x/"))
}
