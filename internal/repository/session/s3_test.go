package session

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-tarot/backend/internal/config"
)

// fakeS3 serves the handful of path-style S3 calls S3Store makes.
type fakeS3 struct {
	mu           sync.Mutex
	bucket       bool
	bucketChecks int
	objects      map[string][]byte
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, key, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")
	if key == "" {
		switch r.Method {
		case http.MethodHead:
			f.bucketChecks++
			if !f.bucket {
				w.WriteHeader(http.StatusNotFound)
				return
			}
		case http.MethodPut:
			f.bucket = true
		}
		w.WriteHeader(http.StatusOK)
		return
	}

	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		if strings.HasPrefix(r.Header.Get("X-Amz-Content-Sha256"), "STREAMING-") {
			body = decodeAWSChunked(body)
		}
		f.objects[key] = body
		w.Header().Set("ETag", `"fake"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodGet, http.MethodHead:
		data, ok := f.objects[key]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			if r.Method == http.MethodGet {
				fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message><Key>%s</Key></Error>`, key)
			}
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.Header().Set("ETag", `"fake"`)
		w.Header().Set("Last-Modified", time.Now().UTC().Format(http.TimeFormat))
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			_, _ = w.Write(data)
		}
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// decodeAWSChunked strips the signed chunk framing used for plain-HTTP uploads.
func decodeAWSChunked(body []byte) []byte {
	var out []byte
	for len(body) > 0 {
		line, rest, ok := bytes.Cut(body, []byte("\r\n"))
		if !ok {
			break
		}
		size, _, _ := bytes.Cut(line, []byte(";"))
		n, err := strconv.ParseInt(string(size), 16, 64)
		if err != nil || n == 0 || int(n) > len(rest) {
			break
		}
		out = append(out, rest[:n]...)
		body = bytes.TrimPrefix(rest[n:], []byte("\r\n"))
	}
	return out
}

func newFakeS3Store(t *testing.T, bucketExists bool) (*S3Store, *fakeS3) {
	t.Helper()
	fake := &fakeS3{bucket: bucketExists, objects: map[string][]byte{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	store, err := NewS3Store(config.S3Config{
		Endpoint:  strings.TrimPrefix(srv.URL, "http://"),
		Bucket:    "readings",
		AccessKey: "test-access",
		SecretKey: "test-secret",
	})
	require.NoError(t, err)
	return store, fake
}

func TestS3Store(t *testing.T) {
	store, _ := newFakeS3Store(t, true)
	exerciseStore(t, store)
}

func TestS3StoreMapsMissingKeyToNotFound(t *testing.T) {
	store, _ := newFakeS3Store(t, true)

	_, err := store.Load(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestS3StoreRetriesBucketCheckAfterCancelledRequest(t *testing.T) {
	store, fake := newFakeS3Store(t, true)
	id := uuid.NewString()
	snap := Capture(sampleLog(), nil)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, store.Save(cancelled, id, snap))

	require.NoError(t, store.Save(context.Background(), id, snap))
	require.NoError(t, store.Save(context.Background(), id, snap))

	got, err := store.Load(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, snap.History.Turns(), got.History.Turns())

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, 1, fake.bucketChecks)
}

func TestS3StoreCreatesMissingBucket(t *testing.T) {
	store, fake := newFakeS3Store(t, false)

	require.NoError(t, store.Save(context.Background(), uuid.NewString(), Capture(sampleLog(), nil)))

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.True(t, fake.bucket)
	assert.Len(t, fake.objects, 1)
}
