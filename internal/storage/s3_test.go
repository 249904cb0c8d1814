package storage

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	generrors "github.com/arkilian/abgen/internal/errors"
)

const testBucket = "abgen-test"

// fakeS3 serves the subset of the S3 REST API used by S3Storage with
// path-style addressing.
type fakeS3 struct {
	mu       sync.Mutex
	objects  map[string][]byte
	uploads  map[string]map[int][]byte
	nextID   int
	requests map[string]int

	// failPuts answers this many object PUTs with 503 SlowDown
	failPuts int
	// status, when set, fails every request with this status
	status int
}

func newFakeS3() *fakeS3 {
	return &fakeS3{
		objects:  make(map[string][]byte),
		uploads:  make(map[string]map[int][]byte),
		requests: make(map[string]int),
	}
}

func (f *fakeS3) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[method]
}

func (f *fakeS3) object(key string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	return data, ok
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests[r.Method]++

	if f.status != 0 {
		writeS3Error(w, f.status, "AccessDenied")
		return
	}

	key := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, "/"+testBucket), "/")
	q := r.URL.Query()

	switch {
	case r.Method == http.MethodGet && key == "" && q.Get("list-type") == "2":
		f.list(w, q.Get("prefix"))
	case r.Method == http.MethodPost && q.Has("uploads"):
		f.nextID++
		id := fmt.Sprintf("upload-%d", f.nextID)
		f.uploads[id] = make(map[int][]byte)
		writeXML(w, struct {
			XMLName  xml.Name `xml:"InitiateMultipartUploadResult"`
			Bucket   string
			Key      string
			UploadId string
		}{Bucket: testBucket, Key: key, UploadId: id})
	case r.Method == http.MethodPut && q.Has("uploadId"):
		parts, ok := f.uploads[q.Get("uploadId")]
		if !ok {
			writeS3Error(w, http.StatusNotFound, "NoSuchUpload")
			return
		}
		number, _ := strconv.Atoi(q.Get("partNumber"))
		body, _ := io.ReadAll(r.Body)
		parts[number] = body
		w.Header().Set("ETag", etagOf(body))
	case r.Method == http.MethodPost && q.Has("uploadId"):
		f.complete(w, key, q.Get("uploadId"), r.Body)
	case r.Method == http.MethodDelete && q.Has("uploadId"):
		delete(f.uploads, q.Get("uploadId"))
		w.WriteHeader(http.StatusNoContent)
	case r.Method == http.MethodPut:
		if f.failPuts > 0 {
			f.failPuts--
			io.Copy(io.Discard, r.Body)
			writeS3Error(w, http.StatusServiceUnavailable, "SlowDown")
			return
		}
		body, _ := io.ReadAll(r.Body)
		f.objects[key] = body
		w.Header().Set("ETag", etagOf(body))
	case r.Method == http.MethodGet:
		data, ok := f.objects[key]
		if !ok {
			writeS3Error(w, http.StatusNotFound, "NoSuchKey")
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.Header().Set("ETag", etagOf(data))
		w.Write(data)
	case r.Method == http.MethodHead:
		data, ok := f.objects[key]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.Header().Set("ETag", etagOf(data))
	case r.Method == http.MethodDelete:
		delete(f.objects, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		writeS3Error(w, http.StatusMethodNotAllowed, "MethodNotAllowed")
	}
}

func (f *fakeS3) list(w http.ResponseWriter, prefix string) {
	type entry struct {
		Key  string
		Size int
	}
	result := struct {
		XMLName     xml.Name `xml:"ListBucketResult"`
		Name        string
		Prefix      string
		KeyCount    int
		MaxKeys     int
		IsTruncated bool
		Contents    []entry
	}{Name: testBucket, Prefix: prefix, MaxKeys: 1000}

	for k, v := range f.objects {
		if strings.HasPrefix(k, prefix) {
			result.Contents = append(result.Contents, entry{Key: k, Size: len(v)})
		}
	}
	// deliberately unsorted to exercise client-side ordering
	sort.Slice(result.Contents, func(i, j int) bool { return result.Contents[i].Key > result.Contents[j].Key })
	result.KeyCount = len(result.Contents)
	writeXML(w, result)
}

func (f *fakeS3) complete(w http.ResponseWriter, key, uploadID string, body io.Reader) {
	parts, ok := f.uploads[uploadID]
	if !ok {
		writeS3Error(w, http.StatusNotFound, "NoSuchUpload")
		return
	}
	var req struct {
		Parts []struct {
			PartNumber int
			ETag       string
		} `xml:"Part"`
	}
	if err := xml.NewDecoder(body).Decode(&req); err != nil {
		writeS3Error(w, http.StatusBadRequest, "MalformedXML")
		return
	}

	var buf bytes.Buffer
	for _, p := range req.Parts {
		buf.Write(parts[p.PartNumber])
	}
	f.objects[key] = buf.Bytes()
	delete(f.uploads, uploadID)

	writeXML(w, struct {
		XMLName xml.Name `xml:"CompleteMultipartUploadResult"`
		Bucket  string
		Key     string
		ETag    string
	}{Bucket: testBucket, Key: key, ETag: fmt.Sprintf(`"multipart-%d"`, len(req.Parts))})
}

func writeXML(w http.ResponseWriter, v interface{}) {
	data, err := xml.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	w.Write([]byte(xml.Header))
	w.Write(data)
}

func writeS3Error(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	fmt.Fprintf(w, `%s<Error><Code>%s</Code><Message>%s</Message></Error>`, xml.Header, code, code)
}

func etagOf(data []byte) string {
	sum := md5.Sum(data)
	return `"` + hex.EncodeToString(sum[:]) + `"`
}

// newTestS3Storage points an S3Storage at a fake server. SDK-level retries are
// off so every attempt goes through S3Storage.retry.
func newTestS3Storage(t *testing.T, fake *fakeS3, partSize int64) *S3Storage {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client := s3.New(s3.Options{
		Region:       "us-east-1",
		BaseEndpoint: aws.String(srv.URL),
		UsePathStyle: true,
		Credentials: aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return aws.Credentials{AccessKeyID: "test", SecretAccessKey: "test"}, nil
		}),
		RetryMaxAttempts:           1,
		RequestChecksumCalculation: aws.RequestChecksumCalculationWhenRequired,
		ResponseChecksumValidation: aws.ResponseChecksumValidationWhenRequired,
	})

	store := NewS3StorageWithClient(client, testBucket, S3Config{PartSize: partSize})
	store.backoff = time.Millisecond
	return store
}

func TestS3Storage_RoundTrip(t *testing.T) {
	fake := newFakeS3()
	store := newTestS3Storage(t, fake, 0)
	ctx := context.Background()
	dir := t.TempDir()

	src := writeFile(t, dir, "data.csv", "hello world")
	obj, err := store.Upload(ctx, src, "runs/r1/data.csv")
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if obj.ETag != "5eb63bbbe01eeed093cb22bb8f5acdc3" || obj.Size != 11 || obj.Key != "runs/r1/data.csv" {
		t.Errorf("unexpected object %+v", obj)
	}

	exists, err := store.Exists(ctx, "runs/r1/data.csv")
	if err != nil || !exists {
		t.Fatalf("Exists = %v, %v; want true", exists, err)
	}
	exists, err = store.Exists(ctx, "runs/r1/missing.csv")
	if err != nil || exists {
		t.Fatalf("Exists(missing) = %v, %v; want false", exists, err)
	}

	dst := filepath.Join(dir, "out", "copy.csv")
	if err := store.Download(ctx, "runs/r1/data.csv", dst); err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("failed to read download: %v", err)
	}
	if string(got) != "hello world" {
		t.Errorf("downloaded %q", got)
	}

	if err := store.Delete(ctx, "runs/r1/data.csv"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok := fake.object("runs/r1/data.csv"); ok {
		t.Error("object still present after Delete")
	}
}

func TestS3Storage_DownloadMissing(t *testing.T) {
	fake := newFakeS3()
	store := newTestS3Storage(t, fake, 0)
	dst := filepath.Join(t.TempDir(), "x.csv")

	err := store.Download(context.Background(), "nope.csv", dst)
	if !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("expected ErrObjectNotFound, got %v", err)
	}
	if fake.count(http.MethodGet) != 1 {
		t.Errorf("missing object should not be retried, got %d GETs", fake.count(http.MethodGet))
	}
	if _, statErr := os.Stat(dst); !os.IsNotExist(statErr) {
		t.Error("no file should be left at the destination")
	}
}

func TestS3Storage_ListObjectsSorted(t *testing.T) {
	fake := newFakeS3()
	store := newTestS3Storage(t, fake, 0)
	ctx := context.Background()
	dir := t.TempDir()

	for _, key := range []string{"abgen/r1/b.sqlite", "abgen/r1/a.csv", "abgen/r2/c.csv", "abgen/r1/c.meta.json"} {
		if _, err := store.Upload(ctx, writeFile(t, dir, "f", key), key); err != nil {
			t.Fatalf("Upload(%s) failed: %v", key, err)
		}
	}

	keys, err := store.ListObjects(ctx, "abgen/r1/")
	if err != nil {
		t.Fatalf("ListObjects failed: %v", err)
	}
	want := []string{"abgen/r1/a.csv", "abgen/r1/b.sqlite", "abgen/r1/c.meta.json"}
	if strings.Join(keys, ",") != strings.Join(want, ",") {
		t.Errorf("got %v, want %v", keys, want)
	}
}

func TestS3Storage_MultipartUpload(t *testing.T) {
	fake := newFakeS3()
	store := newTestS3Storage(t, fake, minPartSize)

	data := bytes.Repeat([]byte("0123456789abcdef"), (minPartSize+minPartSize/2)/16)
	src := filepath.Join(t.TempDir(), "big.csv")
	if err := os.WriteFile(src, data, 0644); err != nil {
		t.Fatalf("failed to write source: %v", err)
	}

	obj, err := store.Upload(context.Background(), src, "big.csv")
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if obj.ETag != "multipart-2" || obj.Size != int64(len(data)) {
		t.Errorf("unexpected object %+v", obj)
	}

	stored, ok := fake.object("big.csv")
	if !ok || !bytes.Equal(stored, data) {
		t.Fatalf("stored object differs from source (%d vs %d bytes)", len(stored), len(data))
	}
	if fake.count(http.MethodPut) != 2 {
		t.Errorf("expected 2 part uploads, got %d", fake.count(http.MethodPut))
	}
}

func TestS3Storage_RetriesTransientFailures(t *testing.T) {
	fake := newFakeS3()
	fake.failPuts = 2
	store := newTestS3Storage(t, fake, 0)

	src := writeFile(t, t.TempDir(), "data.csv", "retry me")
	if _, err := store.Upload(context.Background(), src, "data.csv"); err != nil {
		t.Fatalf("Upload failed after transient errors: %v", err)
	}
	if got := fake.count(http.MethodPut); got != 3 {
		t.Errorf("expected 3 PUT attempts, got %d", got)
	}
}

func TestS3Storage_GivesUpAfterAttempts(t *testing.T) {
	fake := newFakeS3()
	fake.failPuts = 100
	store := newTestS3Storage(t, fake, 0)

	src := writeFile(t, t.TempDir(), "data.csv", "never")
	_, err := store.Upload(context.Background(), src, "data.csv")
	if generrors.GetCode(err) != generrors.CodeUploadFailed {
		t.Fatalf("expected UPLOAD_FAILED, got %v", err)
	}
	if got := fake.count(http.MethodPut); got != store.attempts {
		t.Errorf("expected %d PUT attempts, got %d", store.attempts, got)
	}
}

func TestS3Storage_RejectedRequestIsFinal(t *testing.T) {
	fake := newFakeS3()
	fake.status = http.StatusForbidden
	store := newTestS3Storage(t, fake, 0)

	src := writeFile(t, t.TempDir(), "data.csv", "denied")
	_, err := store.Upload(context.Background(), src, "data.csv")
	if generrors.GetCode(err) != generrors.CodeRejected {
		t.Fatalf("expected REQUEST_REJECTED, got %v", err)
	}
	if generrors.IsRetryable(err) {
		t.Error("rejected request should not be retryable")
	}
	if got := fake.count(http.MethodPut); got != 1 {
		t.Errorf("expected a single PUT, got %d", got)
	}
}

func TestS3Storage_BatchUploadSkipsExisting(t *testing.T) {
	fake := newFakeS3()
	store := newTestS3Storage(t, fake, 0)
	ctx := context.Background()
	dir := t.TempDir()

	items := []UploadItem{
		{LocalPath: writeFile(t, dir, "a.csv", "a"), ObjectPath: "run/a.csv"},
		{LocalPath: writeFile(t, dir, "b.csv", "b"), ObjectPath: "run/b.csv"},
	}
	if _, err := store.Upload(ctx, items[0].LocalPath, items[0].ObjectPath); err != nil {
		t.Fatalf("seed upload failed: %v", err)
	}

	result, err := NewBatchUploader(store, 2, true).Upload(ctx, items)
	if err != nil {
		t.Fatalf("batch upload failed: %v", err)
	}
	if err := result.Err(items); err != nil {
		t.Fatalf("unexpected item error: %v", err)
	}
	if result.Skipped != 1 {
		t.Errorf("expected 1 skipped, got %d", result.Skipped)
	}
	if result.Objects[1].Key != "run/b.csv" || result.Objects[0].Key != "" {
		t.Errorf("unexpected objects %+v", result.Objects)
	}
	if fake.count(http.MethodHead) != 2 {
		t.Errorf("expected 2 existence checks, got %d", fake.count(http.MethodHead))
	}
}
