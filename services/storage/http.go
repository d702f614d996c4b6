package storagesvc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sendgrid/rest"

	"github.com/trezcool/aula/core"
)

const objectAPI = "/storage/v1/object"

// httpStore talks to a REST object storage service (Supabase Storage API).
type httpStore struct {
	baseURL string
	apiKey  string
	bucket  string
	client  *rest.Client
}

var _ core.ObjectStore = (*httpStore)(nil)

func NewHTTPStore(conf *core.Config) core.ObjectStore {
	return &httpStore{
		baseURL: strings.TrimRight(conf.Storage.URL, "/"),
		apiKey:  conf.Storage.APIKey,
		bucket:  conf.Storage.Bucket,
		client:  &rest.Client{HTTPClient: &http.Client{Timeout: 2 * time.Minute}},
	}
}

func escapeKey(key string) string {
	parts := strings.Split(strings.Trim(key, "/"), "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

func (s httpStore) objectURL(action, key string) string {
	u := s.baseURL + objectAPI
	if action != "" {
		u += "/" + action
	}
	return u + "/" + url.PathEscape(s.bucket) + "/" + escapeKey(key)
}

func (s httpStore) request(method rest.Method, u string, body []byte, headers map[string]string) rest.Request {
	h := map[string]string{
		"Authorization": "Bearer " + s.apiKey,
		"apikey":        s.apiKey,
	}
	for k, v := range headers {
		h[k] = v
	}
	return rest.Request{Method: method, BaseURL: u, Headers: h, Body: body}
}

func (s httpStore) send(ctx context.Context, req rest.Request) (*rest.Response, error) {
	res, err := s.client.SendWithContext(ctx, req)
	if err != nil {
		return nil, core.NewExternalError("storage", err)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return res, core.NewExternalError("storage", fmt.Errorf("%s %s: status %d: %s", req.Method, req.BaseURL, res.StatusCode, res.Body))
	}
	return res, nil
}

func (s httpStore) Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	content, err := ioutil.ReadAll(io.LimitReader(r, size+1))
	if err != nil {
		return errors.Wrap(err, "reading upload")
	}
	if int64(len(content)) != size {
		return fmt.Errorf("upload size mismatch: expected %d bytes, got %d", size, len(content))
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	req := s.request(rest.Post, s.objectURL("", key), content, map[string]string{
		"Content-Type": contentType,
		"x-upsert":     "true",
	})
	_, err = s.send(ctx, req)
	return err
}

type signRequest struct {
	ExpiresIn int `json:"expiresIn"`
}

type signResponse struct {
	SignedURL string `json:"signedURL"`
}

func (s httpStore) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	body, err := json.Marshal(signRequest{ExpiresIn: int(ttl.Seconds())})
	if err != nil {
		return "", err
	}
	req := s.request(rest.Post, s.objectURL("sign", key), body, map[string]string{"Content-Type": "application/json"})
	res, err := s.send(ctx, req)
	if err != nil {
		return "", err
	}

	var sr signResponse
	if err = json.Unmarshal([]byte(res.Body), &sr); err != nil || sr.SignedURL == "" {
		return "", core.NewExternalError("storage", fmt.Errorf("unexpected sign response: %s", res.Body))
	}
	if strings.HasPrefix(sr.SignedURL, "http://") || strings.HasPrefix(sr.SignedURL, "https://") {
		return sr.SignedURL, nil
	}
	// relative to the storage API root
	return s.baseURL + "/storage/v1/" + strings.TrimLeft(sr.SignedURL, "/"), nil
}

// Delete removes key; a missing object is not an error.
func (s httpStore) Delete(ctx context.Context, key string) error {
	res, err := s.send(ctx, s.request(rest.Delete, s.objectURL("", key), nil, nil))
	if err != nil && res != nil && res.StatusCode == http.StatusNotFound {
		return nil
	}
	return err
}
