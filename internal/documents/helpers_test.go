package documents

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"docfill-backend/internal/pdfdoc"
	"docfill-backend/internal/queue"
	"docfill-backend/internal/shared/storage/object"
)

var testNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

// memStore is an in-memory ObjectStore with injectable failures.
type memStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	seq       int
	putErr    error
	blockPut  bool
	deleteErr error
	deleted   []string
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[string][]byte)}
}

func (s *memStore) Put(ctx context.Context, userID, fileName, contentType string, r io.Reader) (object.Object, error) {
	if s.blockPut {
		<-ctx.Done()
		return object.Object{}, ctx.Err()
	}
	if s.putErr != nil {
		return object.Object{}, s.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return object.Object{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	key := fmt.Sprintf("%s/%d_%s", userID, s.seq, fileName)
	s.objects[key] = data
	return object.Object{Ref: key, DeleteHandle: key, SizeBytes: int64(len(data)), ContentType: contentType}, nil
}

func (s *memStore) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[ref]
	if !ok {
		return nil, object.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *memStore) Delete(ctx context.Context, deleteHandle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, deleteHandle)
	if s.deleteErr != nil {
		return s.deleteErr
	}
	delete(s.objects, deleteHandle)
	return nil
}

func (s *memStore) URL(ctx context.Context, ref string, ttl time.Duration) (string, error) {
	return "https://blobs.test/" + ref, nil
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

// manualJobs queues messages until drain hands them to the service.
type manualJobs struct {
	svc     *Service
	sendErr error
	pending []queue.Message
	sent    int
}

func (j *manualJobs) Send(ctx context.Context, msg queue.Message) error {
	if j.sendErr != nil {
		return j.sendErr
	}
	j.sent++
	j.pending = append(j.pending, msg)
	return nil
}

func (j *manualJobs) drain(t *testing.T) {
	t.Helper()
	for len(j.pending) > 0 {
		msg := j.pending[0]
		j.pending = j.pending[1:]
		_ = j.svc.ProcessJob(context.Background(), msg)
	}
}

type fakeInspector struct {
	pages int
	err   error
}

func (f fakeInspector) Inspect(ctx context.Context, r io.Reader) (pdfdoc.Info, error) {
	if f.err != nil {
		return pdfdoc.Info{}, f.err
	}
	return pdfdoc.Info{PageCount: f.pages}, nil
}

type fakeRenderer struct {
	err   error
	panic bool
}

func (f fakeRenderer) Render(ctx context.Context, doc Document) (object.Object, error) {
	if f.panic {
		panic("render exploded")
	}
	if f.err != nil {
		return object.Object{}, f.err
	}
	return PassthroughRenderer{}.Render(ctx, doc)
}

type fixture struct {
	svc   *Service
	repo  *MemoryRepo
	store *memStore
	jobs  *manualJobs
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := NewMemoryRepo()
	store := newMemStore()
	ids := 0
	svc := &Service{
		Repo:      repo,
		Store:     store,
		Inspector: fakeInspector{pages: 2},
		Renderer:  PassthroughRenderer{},
		Now:       func() time.Time { return testNow },
		NewID: func() string {
			ids++
			return fmt.Sprintf("doc-%d", ids)
		},
	}
	jobs := &manualJobs{svc: svc}
	svc.Jobs = jobs
	return &fixture{svc: svc, repo: repo, store: store, jobs: jobs}
}

func (f *fixture) upload(t *testing.T, owner, title string) Document {
	t.Helper()
	doc, err := f.svc.Upload(context.Background(), owner, UploadInput{
		FileName: "form.pdf",
		MimeType: "application/pdf",
		Title:    title,
		Body:     bytes.NewReader([]byte("%PDF-1.4 test")),
	})
	require.NoError(t, err)
	return doc
}

// ready uploads a document and runs detection to completion.
func (f *fixture) ready(t *testing.T, owner string) Document {
	t.Helper()
	doc := f.upload(t, owner, "")
	_, err := f.svc.StartDetection(context.Background(), owner, doc.ID)
	require.NoError(t, err)
	f.jobs.drain(t)
	got, err := f.svc.Get(context.Background(), owner, doc.ID)
	require.NoError(t, err)
	require.Equal(t, StatusReady, got.Status)
	return got
}

func requireInvariant(t *testing.T, doc Document) {
	t.Helper()
	require.Equal(t, doc.Status == StatusCompleted, doc.CompletedBlobRef != "",
		"completed ref %q with status %s", doc.CompletedBlobRef, doc.Status)
}

func fieldByLabel(t *testing.T, doc Document, label string) Field {
	t.Helper()
	for _, f := range doc.Fields {
		if f.Label == label {
			return f
		}
	}
	t.Fatalf("field %q not found", label)
	return Field{}
}

var errBoom = errors.New("boom")
