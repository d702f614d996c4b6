package storagesvc

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/aula/core"
)

type recordedRequest struct {
	method, path, contentType, auth, upsert string
	body                                    []byte
}

func newTestHTTPStore(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (core.ObjectStore, *[]recordedRequest) {
	reqs := make([]recordedRequest, 0)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := ioutil.ReadAll(r.Body)
		reqs = append(reqs, recordedRequest{
			method:      r.Method,
			path:        r.URL.EscapedPath(),
			contentType: r.Header.Get("Content-Type"),
			auth:        r.Header.Get("Authorization"),
			upsert:      r.Header.Get("x-upsert"),
			body:        body,
		})
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	conf := core.NewConfig()
	conf.Storage.URL = srv.URL + "/"
	conf.Storage.APIKey = "secret"
	conf.Storage.Bucket = "aula"
	return NewHTTPStore(conf), &reqs
}

func Test_httpStore_Upload(t *testing.T) {
	store, reqs := newTestHTTPStore(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"Key":"aula/courses/1/a b.pdf"}`))
	})

	err := store.Upload(context.Background(), "courses/1/a b.pdf", strings.NewReader("%PDF"), 4, "application/pdf")
	require.NoError(t, err)
	require.Len(t, *reqs, 1)

	got := (*reqs)[0]
	assert.Equal(t, http.MethodPost, got.method)
	assert.Equal(t, "/storage/v1/object/aula/courses/1/a%20b.pdf", got.path)
	assert.Equal(t, "application/pdf", got.contentType)
	assert.Equal(t, "Bearer secret", got.auth)
	assert.Equal(t, "true", got.upsert)
	assert.Equal(t, []byte("%PDF"), got.body)
}

func Test_httpStore_Upload_sizeMismatch(t *testing.T) {
	store, reqs := newTestHTTPStore(t, func(w http.ResponseWriter, r *http.Request) {})

	err := store.Upload(context.Background(), "k", strings.NewReader("too long"), 2, "text/plain")
	assert.Error(t, err)
	assert.Len(t, *reqs, 0)
}

func Test_httpStore_SignedURL(t *testing.T) {
	tests := []struct {
		name     string
		response string
		wantURL  string
		relative bool
	}{
		{name: "relative", response: `{"signedURL":"/object/sign/aula/k.pdf?token=abc"}`, wantURL: "/storage/v1/object/sign/aula/k.pdf?token=abc", relative: true},
		{name: "absolute", response: `{"signedURL":"https://cdn.example.com/k.pdf?token=abc"}`, wantURL: "https://cdn.example.com/k.pdf?token=abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, reqs := newTestHTTPStore(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.response))
			})

			u, err := store.SignedURL(context.Background(), "k.pdf", time.Hour)
			require.NoError(t, err)
			if tt.relative {
				assert.True(t, strings.HasSuffix(u, tt.wantURL), u)
			} else {
				assert.Equal(t, tt.wantURL, u)
			}

			got := (*reqs)[0]
			assert.Equal(t, "/storage/v1/object/sign/aula/k.pdf", got.path)
			var body map[string]int
			require.NoError(t, json.Unmarshal(got.body, &body))
			assert.Equal(t, 3600, body["expiresIn"])
		})
	}
}

func Test_httpStore_errors(t *testing.T) {
	store, _ := newTestHTTPStore(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete && strings.HasSuffix(r.URL.Path, "/missing") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	})
	ctx := context.Background()

	var extErr *core.ExternalError
	err := store.Upload(ctx, "k", strings.NewReader("x"), 1, "")
	assert.True(t, errors.As(err, &extErr), "upload: %v", err)

	_, err = store.SignedURL(ctx, "k", time.Minute)
	assert.True(t, errors.As(err, &extErr), "sign: %v", err)

	assert.NoError(t, store.Delete(ctx, "missing"))
	err = store.Delete(ctx, "k")
	assert.True(t, errors.As(err, &extErr), "delete: %v", err)
}
