package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordAt(id string, ts time.Time) *Record {
	r := sampleRecord()
	r.TestID = id
	r.Timestamp = ts
	return r
}

func TestLocalBackupRoundTrip(t *testing.T) {
	dir := t.TempDir()
	b, err := NewLocalBackup(dir)
	require.NoError(t, err)
	ctx := context.Background()
	want := sampleRecord()

	require.NoError(t, b.Write(ctx, want))
	assert.FileExists(t, filepath.Join(dir, "test_run-1_results.json"))

	got, err := b.Read(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, want.Metrics, got.Metrics)
	assert.Equal(t, want.AnomalyReport, got.AnomalyReport)
	assert.Equal(t, want.Options, got.Options)
	assert.True(t, want.Timestamp.Equal(got.Timestamp))
}

func TestLocalBackupReadMissing(t *testing.T) {
	b, err := NewLocalBackup(t.TempDir())
	require.NoError(t, err)

	_, err = b.Read(context.Background(), "nope")

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalBackupReadsIntegerBooleans(t *testing.T) {
	dir := t.TempDir()
	b, err := NewLocalBackup(dir)
	require.NoError(t, err)

	doc := `{"test_id":"legacy","timestamp":"2026-01-01T00:00:00Z","metrics":{"error_rate":12},
		"anomaly_report":{"anomalies_detected":1,"severity":"high","issues":["High error rate: 12.0%"],"recommendations":[],"confidence":0.8}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, BackupName("legacy")), []byte(doc), 0o644))

	got, err := b.Read(context.Background(), "legacy")

	require.NoError(t, err)
	assert.True(t, got.AnomalyReport.AnomaliesDetected)
	assert.Equal(t, 12.0, got.Metrics.ErrorRate)
}

func TestLocalBackupList(t *testing.T) {
	dir := t.TempDir()
	b, err := NewLocalBackup(dir)
	require.NoError(t, err)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, b.Write(ctx, recordAt(id, base.Add(time.Duration(i)*time.Hour))))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "test_x_summary.json"), []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, BackupName("broken")), []byte("{"), 0o644))

	all, err := b.List(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"c", "b", "a"}, []string{all[0].TestID, all[1].TestID, all[2].TestID})

	page, err := b.List(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "b", page[0].TestID)

	empty, err := b.List(ctx, 10, 5)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

// fakeS3 implements the path-style object calls used by S3Backup.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	// Path is /<bucket>/<key>.
	parts := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/"), "/", 2)
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}

	switch {
	case r.Method == http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[key] = body
		w.WriteHeader(http.StatusOK)

	case r.Method == http.MethodGet && r.URL.Query().Get("list-type") == "2":
		prefix := r.URL.Query().Get("prefix")
		var keys []string
		for k := range f.objects {
			if strings.HasPrefix(k, prefix) {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		var b strings.Builder
		b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">`)
		fmt.Fprintf(&b, "<Name>%s</Name><Prefix>%s</Prefix><KeyCount>%d</KeyCount><MaxKeys>1000</MaxKeys><IsTruncated>false</IsTruncated>", parts[0], prefix, len(keys))
		for _, k := range keys {
			fmt.Fprintf(&b, "<Contents><Key>%s</Key><Size>%d</Size></Contents>", k, len(f.objects[k]))
		}
		b.WriteString(`</ListBucketResult>`)
		w.Header().Set("Content-Type", "application/xml")
		io.WriteString(w, b.String())

	case r.Method == http.MethodGet:
		body, ok := f.objects[key]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestS3Backup(t *testing.T) (*S3Backup, *fakeS3) {
	t.Helper()
	fake := &fakeS3{objects: map[string][]byte{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	b, err := NewS3Backup(context.Background(), BackupConfig{
		Backend:         BackupBackendS3,
		Endpoint:        srv.URL,
		Region:          "us-east-1",
		Bucket:          "records",
		AccessKeyID:     "test",
		SecretAccessKey: "test",
	})
	require.NoError(t, err)
	return b, fake
}

func TestS3BackupRoundTrip(t *testing.T) {
	b, fake := newTestS3Backup(t)
	ctx := context.Background()
	want := sampleRecord()

	require.NoError(t, b.Write(ctx, want))
	assert.Contains(t, fake.objects, "records/test_run-1_results.json")

	got, err := b.Read(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, want.Metrics, got.Metrics)
	assert.Equal(t, want.AnomalyReport, got.AnomalyReport)

	_, err = b.Read(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestS3BackupList(t *testing.T) {
	b, _ := newTestS3Backup(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, b.Write(ctx, recordAt("old", base)))
	require.NoError(t, b.Write(ctx, recordAt("new", base.Add(time.Hour))))

	runs, err := b.List(ctx, 10, 0)

	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "new", runs[0].TestID)
}

func TestNewBackupRejectsUnknownBackend(t *testing.T) {
	_, err := NewBackup(context.Background(), BackupConfig{Backend: "ftp"})
	assert.Error(t, err)
}
