package resources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"
)

// StatusError is returned when a remote server answers with a non-200 status.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP status code %d fetching %s", e.StatusCode,
		e.URL)
}

// IsNotFound reports whether err is a 404 from a remote server.
func IsNotFound(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) &&
		statusErr.StatusCode == http.StatusNotFound
}

func joinURI(uri string, rsrc string) string {
	if rsrc == "" {
		return uri
	}
	return strings.TrimRight(uri, "/") + "/" + rsrc
}

func (r *Resolver) newRequest(ctx context.Context, method string,
	target string) (*http.Request, error) {
	req, reqErr := http.NewRequestWithContext(ctx, method, target, nil)
	if reqErr != nil {
		return nil, reqErr
	}
	if r.Auth != "" {
		req.Header.Add("Authorization", "Bearer "+r.Auth)
	}
	return req, nil
}

// FetchHTTP
// Fetch a resource from a remote HTTP server with bearer token auth.
func (r *Resolver) FetchHTTP(ctx context.Context, uri string,
	rsrc string) (io.ReadCloser, error) {
	target := joinURI(uri, rsrc)
	req, reqErr := r.newRequest(ctx, http.MethodGet, target)
	if reqErr != nil {
		return nil, reqErr
	}
	resp, remoteErr := r.client().Do(req)
	if remoteErr != nil {
		return nil, errors.Wrapf(remoteErr, "GET %s", target)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &StatusError{URL: target, StatusCode: resp.StatusCode}
	}
	return resp.Body, nil
}

// SizeHTTP
// Get the size of a resource from a remote HTTP server with bearer token
// auth. A server that does not report a length yields 0.
func (r *Resolver) SizeHTTP(ctx context.Context, uri string,
	rsrc string) (uint64, error) {
	target := joinURI(uri, rsrc)
	req, reqErr := r.newRequest(ctx, http.MethodHead, target)
	if reqErr != nil {
		return 0, reqErr
	}
	resp, remoteErr := r.client().Do(req)
	if remoteErr != nil {
		return 0, errors.Wrapf(remoteErr, "HEAD %s", target)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, &StatusError{URL: target, StatusCode: resp.StatusCode}
	}
	if resp.ContentLength < 0 {
		return 0, nil
	}
	return uint64(resp.ContentLength), nil
}

// GetJSON
// GETs `target` with bearer token auth and decodes the JSON body into `v`.
func (r *Resolver) GetJSON(ctx context.Context, target string,
	v interface{}) error {
	body, err := r.FetchHTTP(ctx, target, "")
	if err != nil {
		return err
	}
	defer body.Close()
	if decodeErr := json.NewDecoder(body).Decode(v); decodeErr != nil {
		return errors.Wrapf(decodeErr, "cannot decode response from %s",
			target)
	}
	return nil
}
