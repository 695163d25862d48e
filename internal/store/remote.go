package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// RemoteOpener talks to a store server (see NewServer) over HTTP. It holds
// one shared client; Open hands out lightweight per-run views.
type RemoteOpener struct {
	baseURL    string
	httpClient *http.Client
}

// NewRemoteOpener creates a client for the store server at baseURL.
func NewRemoteOpener(baseURL string) (*RemoteOpener, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("store server URL is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid store server URL: %w", err)
	}

	return &RemoteOpener{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

// Open returns a store scoped to the given run.
func (o *RemoteOpener) Open(runID string) (Store, error) {
	if err := validateRunID(runID); err != nil {
		return nil, err
	}
	return &remoteStore{opener: o, runID: runID}, nil
}

// ListRuns fetches the run IDs known to the server.
func (o *RemoteOpener) ListRuns(ctx context.Context) ([]string, error) {
	var out struct {
		Runs []string `json:"runs"`
	}
	if err := o.getJSON(ctx, o.baseURL+"/runs", &out); err != nil {
		return nil, err
	}
	return out.Runs, nil
}

func (o *RemoteOpener) getJSON(ctx context.Context, rawURL string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("store server request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("store server returned %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

type remoteStore struct {
	opener *RemoteOpener
	runID  string
}

func (s *remoteStore) keyURL(key string) string {
	return fmt.Sprintf("%s/runs/%s/keys/%s", s.opener.baseURL, url.PathEscape(s.runID), key)
}

func (s *remoteStore) do(ctx context.Context, method, rawURL string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.opener.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("store server request failed: %w", err)
	}
	return resp, nil
}

func (s *remoteStore) Save(ctx context.Context, key string, value []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}

	resp, err := s.do(ctx, http.MethodPut, s.keyURL(key), value)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("save failed: store server returned %s", resp.Status)
	}
	return nil
}

func (s *remoteStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	resp, err := s.do(ctx, http.MethodGet, s.keyURL(key), nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
		value, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read value: %w", err)
		}
		return value, nil
	case http.StatusNotFound:
		return nil, ErrNotFound
	default:
		return nil, fmt.Errorf("get failed: store server returned %s", resp.Status)
	}
}

func (s *remoteStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	resp, err := s.do(ctx, http.MethodHead, s.keyURL(key), nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("exists check failed: store server returned %s", resp.Status)
	}
}

func (s *remoteStore) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	resp, err := s.do(ctx, http.MethodDelete, s.keyURL(key), nil)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("delete failed: store server returned %s", resp.Status)
	}
	return nil
}

func (s *remoteStore) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	listURL := fmt.Sprintf("%s/runs/%s/keys?prefix=%s",
		s.opener.baseURL, url.PathEscape(s.runID), url.QueryEscape(prefix))

	var out struct {
		Keys []string `json:"keys"`
	}
	if err := s.opener.getJSON(ctx, listURL, &out); err != nil {
		return nil, err
	}
	return out.Keys, nil
}

func (s *remoteStore) Clear(ctx context.Context) error {
	clearURL := fmt.Sprintf("%s/runs/%s/keys", s.opener.baseURL, url.PathEscape(s.runID))

	resp, err := s.do(ctx, http.MethodDelete, clearURL, nil)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("clear failed: store server returned %s", resp.Status)
	}
	return nil
}
