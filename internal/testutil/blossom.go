package testutil

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// BlobServer is an in-memory blossom storage server for tests. It accepts
// authenticated uploads, serves blobs by hash, and can be told to reject
// uploads to simulate a failing server.
type BlobServer struct {
	srv *httptest.Server

	mu          sync.Mutex
	blobs       map[string][]byte
	failUploads bool
	auths       []string
}

// NewBlobServer starts a blob server that is shut down when the test ends.
func NewBlobServer(t *testing.T) *BlobServer {
	t.Helper()
	s := &BlobServer{blobs: make(map[string][]byte)}
	s.srv = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.srv.Close)
	return s
}

// URL returns the server's base URL.
func (s *BlobServer) URL() string { return s.srv.URL }

// FailUploads toggles whether uploads are rejected with a 500.
func (s *BlobServer) FailUploads(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failUploads = fail
}

// Has reports whether the server stores the blob.
func (s *BlobServer) Has(sha string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.blobs[sha]
	return ok
}

// Blob returns the stored bytes for a hash, or nil.
func (s *BlobServer) Blob(sha string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blobs[sha]
}

// Put seeds a blob directly, bypassing the upload endpoint.
func (s *BlobServer) Put(sha string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[sha] = data
}

// Auths returns the Authorization header tokens seen on uploads, in order.
func (s *BlobServer) Auths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.auths...)
}

func (s *BlobServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPut && r.URL.Path == "/upload" {
		s.handleUpload(w, r)
		return
	}

	// Blob paths are /<sha256> with an optional extension.
	sha := strings.TrimPrefix(r.URL.Path, "/")
	if i := strings.IndexByte(sha, '.'); i >= 0 {
		sha = sha[:i]
	}

	s.mu.Lock()
	data, ok := s.blobs[sha]
	s.mu.Unlock()

	switch r.Method {
	case http.MethodHead:
		if !ok {
			w.WriteHeader(http.StatusNotFound)
		}
	case http.MethodGet:
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write(data)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *BlobServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	fail := s.failUploads
	if auth := strings.TrimPrefix(r.Header.Get("Authorization"), "Nostr "); auth != "" {
		s.auths = append(s.auths, auth)
	}
	s.mu.Unlock()

	if fail {
		w.Header().Set("X-Reason", "upload rejected")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	sum := sha256.Sum256(data)
	sha := hex.EncodeToString(sum[:])

	s.mu.Lock()
	s.blobs[sha] = data
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"url":      s.srv.URL + "/" + sha,
		"sha256":   sha,
		"size":     len(data),
		"type":     r.Header.Get("Content-Type"),
		"uploaded": time.Now().Unix(),
	})
}
