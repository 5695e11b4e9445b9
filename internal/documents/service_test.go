package documents

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docfill-backend/internal/extract"
	"docfill-backend/internal/pdfdoc"
	"docfill-backend/internal/pdfdoc/pdftest"
	"docfill-backend/internal/queue"
	"docfill-backend/internal/shared/storage/object/local"
)

func TestUploadRejectsNonPDF(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Upload(context.Background(), "user-1", UploadInput{
		FileName: "notes.txt",
		MimeType: "text/plain",
		Body:     strings.NewReader("hello"),
	})
	require.ErrorIs(t, err, ErrUnsupportedMediaType)
	assert.Equal(t, 0, f.store.count())
}

func TestUploadDefaultsTitleAndLanguage(t *testing.T) {
	f := newFixture(t)

	doc := f.upload(t, "user-1", "")
	assert.Equal(t, "form.pdf", doc.Title)
	assert.Equal(t, DefaultLanguage, doc.Language)
	assert.Equal(t, StatusUploaded, doc.Status)
	assert.Empty(t, doc.Fields)
	assert.Equal(t, int64(len("%PDF-1.4 test")), doc.SizeBytes)
	requireInvariant(t, doc)
}

func TestUploadAcceptsMediaTypeParameters(t *testing.T) {
	f := newFixture(t)

	doc, err := f.svc.Upload(context.Background(), "user-1", UploadInput{
		FileName: "a.pdf",
		MimeType: "application/pdf; charset=binary",
		Language: "hindi",
		Body:     strings.NewReader("%PDF-"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Hindi", doc.Language)
}

func TestUploadRejectsUnknownLanguage(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Upload(context.Background(), "user-1", UploadInput{
		FileName: "a.pdf",
		MimeType: "application/pdf",
		Language: "Klingon",
		Body:     strings.NewReader("%PDF-"),
	})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestUploadKeepsDottedFileNameOnLocalStore(t *testing.T) {
	f := newFixture(t)
	store := local.New(t.TempDir())
	f.svc.Store = store

	doc, err := f.svc.Upload(context.Background(), "user-1", UploadInput{
		FileName: "form..v2.pdf",
		MimeType: pdfdoc.MimeType,
		Body:     bytes.NewReader(pdftest.Blank(1)),
	})
	require.NoError(t, err)
	assert.Equal(t, "form..v2.pdf", doc.Title)
	assert.Equal(t, "form..v2.pdf", doc.OriginalFileName)
	assert.True(t, strings.HasSuffix(doc.BlobRef, "_form..v2.pdf"), doc.BlobRef)

	rc, err := store.Open(context.Background(), doc.BlobRef)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
}

func TestUploadStoreFailurePersistsNothing(t *testing.T) {
	f := newFixture(t)
	f.store.putErr = errBoom

	_, err := f.svc.Upload(context.Background(), "user-1", UploadInput{FileName: "a.pdf", MimeType: "application/pdf", Body: strings.NewReader("x")})
	require.ErrorIs(t, err, ErrUpstream)

	docs, err := f.svc.List(context.Background(), "user-1", "", "")
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestUploadStoreTimeout(t *testing.T) {
	f := newFixture(t)
	f.store.blockPut = true
	f.svc.UploadTimeout = 10 * time.Millisecond

	_, err := f.svc.Upload(context.Background(), "user-1", UploadInput{FileName: "a.pdf", MimeType: "application/pdf", Body: strings.NewReader("x")})
	require.ErrorIs(t, err, ErrStoreTimeout)
}

func TestLifecycleEndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.upload(t, "user-1", "Passport form")

	started, err := f.svc.StartDetection(ctx, "user-1", doc.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, started.Status)
	requireInvariant(t, started)

	_, err = f.svc.StartDetection(ctx, "user-1", doc.ID)
	require.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, 1, f.jobs.sent)

	f.jobs.drain(t)
	ready, err := f.svc.Get(ctx, "user-1", doc.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusReady, ready.Status)
	assert.Equal(t, 2, ready.PageCount)
	require.Len(t, ready.Fields, 5)
	assert.Equal(t, fmt.Sprintf("field_%d_1", testNow.UnixMilli()), ready.Fields[0].ID)
	requireInvariant(t, ready)

	filled, found, err := f.svc.FillFromTranscript(ctx, "user-1", doc.ID, "my name is John Smith, email john@x.com", "")
	require.NoError(t, err)
	assert.Equal(t, "John Smith", found[extract.CategoryName])
	assert.Equal(t, "John Smith", fieldByLabel(t, filled, "Full Name").Value)
	assert.Equal(t, "john@x.com", fieldByLabel(t, filled, "Email Address").Value)
	assert.Empty(t, fieldByLabel(t, filled, "Phone Number").Value)

	_, err = f.svc.Complete(ctx, "user-1", doc.ID)
	var missing *MissingFieldsError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"Address", "Date of Birth"}, missing.Labels)
	unchanged, err := f.svc.Get(ctx, "user-1", doc.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusReady, unchanged.Status)

	_, err = f.svc.DownloadReference(ctx, "user-1", doc.ID)
	require.ErrorIs(t, err, ErrNotReady)

	updated, err := f.svc.UpdateFields(ctx, "user-1", doc.ID, []FieldValue{
		{ID: fieldByLabel(t, filled, "Address").ID, Value: "42 Baker Street, London"},
		{ID: fieldByLabel(t, filled, "Date of Birth").ID, Value: "March 5, 1990"},
	})
	require.NoError(t, err)
	requireInvariant(t, updated)

	completing, err := f.svc.Complete(ctx, "user-1", doc.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, completing.Status)
	requireInvariant(t, completing)

	f.jobs.drain(t)
	done, err := f.svc.Get(ctx, "user-1", doc.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
	requireInvariant(t, done)

	ref, err := f.svc.DownloadReference(ctx, "user-1", doc.ID)
	require.NoError(t, err)
	assert.Equal(t, done.CompletedBlobRef, ref)
	assert.Equal(t, doc.BlobRef, ref)

	url, err := f.svc.DownloadURL(ctx, "user-1", doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://blobs.test/"+ref, url)

	_, err = f.svc.Complete(ctx, "user-1", doc.ID)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestDetectionFailureRevertsToUploaded(t *testing.T) {
	f := newFixture(t)
	doc := f.upload(t, "user-1", "")

	_, err := f.svc.StartDetection(context.Background(), "user-1", doc.ID)
	require.NoError(t, err)
	f.store.mu.Lock()
	delete(f.store.objects, doc.BlobRef)
	f.store.mu.Unlock()
	f.jobs.drain(t)

	got, err := f.svc.Get(context.Background(), "user-1", doc.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusUploaded, got.Status)
	assert.Empty(t, got.Fields)

	_, err = f.svc.StartDetection(context.Background(), "user-1", doc.ID)
	require.NoError(t, err, "a reverted document can be retried")
}

func TestDetectionToleratesUnreadablePDF(t *testing.T) {
	f := newFixture(t)
	f.svc.Inspector = fakeInspector{err: pdfdoc.ErrUnreadable}
	doc := f.upload(t, "user-1", "")

	_, err := f.svc.StartDetection(context.Background(), "user-1", doc.ID)
	require.NoError(t, err)
	f.jobs.drain(t)

	got, err := f.svc.Get(context.Background(), "user-1", doc.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusReady, got.Status)
	assert.Len(t, got.Fields, 5)
	assert.Zero(t, got.PageCount)
}

func TestDetectionWithRealInspectorAcceptsTrailingBytes(t *testing.T) {
	f := newFixture(t)
	f.svc.Inspector = pdfdoc.Inspector{}
	body := append(pdftest.Blank(3), []byte("\nappended by scanner\n")...)
	doc, err := f.svc.Upload(context.Background(), "user-1", UploadInput{
		FileName: "scan.pdf",
		MimeType: pdfdoc.MimeType,
		Body:     bytes.NewReader(body),
	})
	require.NoError(t, err)

	_, err = f.svc.StartDetection(context.Background(), "user-1", doc.ID)
	require.NoError(t, err)
	f.jobs.drain(t)

	got, err := f.svc.Get(context.Background(), "user-1", doc.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusReady, got.Status)
	assert.Equal(t, 3, got.PageCount)
}

func TestCompletionFailureRevertsToReady(t *testing.T) {
	for name, renderer := range map[string]Renderer{
		"error": fakeRenderer{err: errBoom},
		"panic": fakeRenderer{panic: true},
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			doc := f.ready(t, "user-1")
			fillAll(t, f, doc)
			f.svc.Renderer = renderer

			_, err := f.svc.Complete(context.Background(), "user-1", doc.ID)
			require.NoError(t, err)
			f.jobs.drain(t)

			got, err := f.svc.Get(context.Background(), "user-1", doc.ID)
			require.NoError(t, err)
			assert.Equal(t, StatusReady, got.Status)
			requireInvariant(t, got)
			assert.Len(t, got.Fields, 5)
		})
	}
}

func TestEnqueueFailureRevertsClaim(t *testing.T) {
	f := newFixture(t)
	doc := f.upload(t, "user-1", "")
	f.jobs.sendErr = errBoom

	_, err := f.svc.StartDetection(context.Background(), "user-1", doc.ID)
	require.ErrorIs(t, err, ErrUpstream)

	got, err := f.svc.Get(context.Background(), "user-1", doc.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusUploaded, got.Status)
}

func TestJobForMissingOrSettledDocumentIsSkipped(t *testing.T) {
	f := newFixture(t)
	doc := f.upload(t, "user-1", "")

	err := f.svc.ProcessJob(context.Background(), queue.Message{Kind: queue.KindDetect, DocumentID: "nope", OwnerID: "user-1"})
	require.NoError(t, err)

	err = f.svc.ProcessJob(context.Background(), queue.Message{Kind: queue.KindDetect, DocumentID: doc.ID, OwnerID: "user-1"})
	require.NoError(t, err)
	got, _ := f.svc.Get(context.Background(), "user-1", doc.ID)
	assert.Equal(t, StatusUploaded, got.Status)
	assert.Empty(t, got.Fields)
}

func TestUpdateFieldsIgnoresUnknownIDs(t *testing.T) {
	f := newFixture(t)
	doc := f.ready(t, "user-1")

	got, err := f.svc.UpdateFields(context.Background(), "user-1", doc.ID, []FieldValue{{ID: "field_missing", Value: "x"}})
	require.NoError(t, err)
	assert.Equal(t, doc.Fields, got.Fields)
}

func TestUpdateFieldsRejectedWhileProcessing(t *testing.T) {
	f := newFixture(t)
	doc := f.upload(t, "user-1", "")
	_, err := f.svc.StartDetection(context.Background(), "user-1", doc.ID)
	require.NoError(t, err)

	_, err = f.svc.UpdateFields(context.Background(), "user-1", doc.ID, nil)
	require.ErrorIs(t, err, ErrInvalidState)
	_, _, err = f.svc.FillFromTranscript(context.Background(), "user-1", doc.ID, "my name is Ann Lee", "")
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestFillRequiresTranscript(t *testing.T) {
	f := newFixture(t)
	doc := f.ready(t, "user-1")

	_, _, err := f.svc.FillFromTranscript(context.Background(), "user-1", doc.ID, "   ", "")
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestFillWithoutMatchesLeavesFields(t *testing.T) {
	f := newFixture(t)
	doc := f.ready(t, "user-1")

	got, found, err := f.svc.FillFromTranscript(context.Background(), "user-1", doc.ID, "nothing useful here", "")
	require.NoError(t, err)
	assert.Empty(t, found)
	assert.Equal(t, doc.Fields, got.Fields)
}

func TestFillLabelKeywordOrder(t *testing.T) {
	f := newFixture(t)
	doc := f.ready(t, "user-1")

	got, _, err := f.svc.FillFromTranscript(context.Background(), "user-1", doc.ID,
		"I live at 42 Baker Street, London and my email is a@b.io", "")
	require.NoError(t, err)
	assert.Equal(t, "42 Baker Street, London", fieldByLabel(t, got, "Address").Value)
	// "Email Address" contains both keywords; address is checked first.
	assert.Equal(t, "42 Baker Street, London", fieldByLabel(t, got, "Email Address").Value)
}

func TestOwnershipIsolation(t *testing.T) {
	f := newFixture(t)
	doc := f.upload(t, "owner-a", "")
	ctx := context.Background()

	_, errForeign := f.svc.Get(ctx, "owner-b", doc.ID)
	_, errMissing := f.svc.Get(ctx, "owner-b", "does-not-exist")
	require.ErrorIs(t, errForeign, ErrNotFound)
	require.ErrorIs(t, errMissing, ErrNotFound)
	assert.Equal(t, errMissing.Error(), errForeign.Error())

	_, err := f.svc.StartDetection(ctx, "owner-b", doc.ID)
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, f.svc.Delete(ctx, "owner-b", doc.ID), ErrNotFound)
	_, err = f.svc.Get(ctx, "owner-a", doc.ID)
	require.NoError(t, err)
}

func TestDeleteSurvivesBlobFailure(t *testing.T) {
	f := newFixture(t)
	doc := f.upload(t, "user-1", "")
	f.store.deleteErr = errBoom

	require.NoError(t, f.svc.Delete(context.Background(), "user-1", doc.ID))
	_, err := f.svc.Get(context.Background(), "user-1", doc.ID)
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, []string{doc.BlobDeleteHandle}, f.store.deleted)
}

func TestDeleteRemovesDistinctCompletedBlob(t *testing.T) {
	f := newFixture(t)
	doc := f.upload(t, "user-1", "")
	stored, err := f.repo.GetByID(context.Background(), "user-1", doc.ID)
	require.NoError(t, err)

	extra, err := f.store.Put(context.Background(), "user-1", "done.pdf", "application/pdf", bytes.NewReader([]byte("%PDF-")))
	require.NoError(t, err)
	stored.Status = StatusCompleted
	stored.CompletedBlobRef = extra.Ref
	stored.CompletedDeleteHandle = extra.DeleteHandle
	require.NoError(t, f.repo.Update(context.Background(), stored, StatusUploaded))

	require.NoError(t, f.svc.Delete(context.Background(), "user-1", doc.ID))
	assert.ElementsMatch(t, []string{doc.BlobDeleteHandle, extra.DeleteHandle}, f.store.deleted)
	assert.Equal(t, 0, f.store.count())
}

func TestDeleteCancelsPendingJob(t *testing.T) {
	f := newFixture(t)
	runner := queue.NewRunner(f.svc, queue.RunnerOptions{Delays: queue.Delays{Detect: time.Hour}})
	f.svc.Jobs = runner
	doc := f.upload(t, "user-1", "")

	_, err := f.svc.StartDetection(context.Background(), "user-1", doc.ID)
	require.NoError(t, err)
	require.Equal(t, 1, runner.Pending())

	require.NoError(t, f.svc.Delete(context.Background(), "user-1", doc.ID))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, runner.Close(ctx))
	assert.Equal(t, 0, runner.Pending())
}

func TestRunnerDrivesDetection(t *testing.T) {
	f := newFixture(t)
	runner := queue.NewRunner(f.svc, queue.RunnerOptions{Delays: queue.Delays{Detect: 5 * time.Millisecond}, Timeout: time.Second})
	f.svc.Jobs = runner
	doc := f.upload(t, "user-1", "")

	_, err := f.svc.StartDetection(context.Background(), "user-1", doc.ID)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, runner.Close(ctx))

	got, err := f.svc.Get(context.Background(), "user-1", doc.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusReady, got.Status)
}

func TestListFiltersAndOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	clock := testNow
	f.svc.Now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}
	older := f.upload(t, "user-1", "Tax Return")
	newer := f.upload(t, "user-1", "Rental agreement")
	f.upload(t, "user-2", "Tax Return")
	_, err := f.svc.StartDetection(ctx, "user-1", newer.ID)
	require.NoError(t, err)

	all, err := f.svc.List(ctx, "user-1", "", "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, newer.ID, all[0].ID)
	assert.Equal(t, older.ID, all[1].ID)

	byStatus, err := f.svc.List(ctx, "user-1", "processing", "")
	require.NoError(t, err)
	require.Len(t, byStatus, 1)
	assert.Equal(t, newer.ID, byStatus[0].ID)

	unknown, err := f.svc.List(ctx, "user-1", "archived", "")
	require.NoError(t, err)
	assert.Len(t, unknown, 2)

	search, err := f.svc.List(ctx, "user-1", "", "tax")
	require.NoError(t, err)
	require.Len(t, search, 1)
	assert.Equal(t, older.ID, search[0].ID)
}

func TestCompleteRequiresReady(t *testing.T) {
	f := newFixture(t)
	doc := f.upload(t, "user-1", "")

	_, err := f.svc.Complete(context.Background(), "user-1", doc.ID)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestStampRendererStoresSeparateCompletedFile(t *testing.T) {
	f := newFixture(t)
	f.svc.Renderer = StampRenderer{Store: f.store}
	ctx := context.Background()

	doc, err := f.svc.Upload(ctx, "user-1", UploadInput{
		FileName: "form.pdf",
		MimeType: pdfdoc.MimeType,
		Body:     bytes.NewReader(pdftest.Blank(1)),
	})
	require.NoError(t, err)
	_, err = f.svc.StartDetection(ctx, "user-1", doc.ID)
	require.NoError(t, err)
	f.jobs.drain(t)
	ready, err := f.svc.Get(ctx, "user-1", doc.ID)
	require.NoError(t, err)
	fillAll(t, f, ready)

	_, err = f.svc.Complete(ctx, "user-1", doc.ID)
	require.NoError(t, err)
	f.jobs.drain(t)

	done, err := f.svc.Get(ctx, "user-1", doc.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, done.Status)
	requireInvariant(t, done)
	assert.NotEmpty(t, done.CompletedDeleteHandle)
	assert.NotEqual(t, done.BlobDeleteHandle, done.CompletedDeleteHandle)
	assert.NotEqual(t, done.BlobRef, done.CompletedBlobRef)
	assert.Equal(t, 2, f.store.count())

	rc, err := f.store.Open(ctx, done.CompletedBlobRef)
	require.NoError(t, err)
	info, err := pdfdoc.Inspector{}.Inspect(ctx, rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, 1, info.PageCount)

	require.NoError(t, f.svc.Delete(ctx, "user-1", doc.ID))
	assert.ElementsMatch(t, []string{done.BlobDeleteHandle, done.CompletedDeleteHandle}, f.store.deleted)
	assert.Equal(t, 0, f.store.count())
}

func TestCompletedFileName(t *testing.T) {
	assert.Equal(t, "form-completed.pdf", completedFileName("form.pdf"))
	assert.Equal(t, "document-completed.pdf", completedFileName(""))
}

func TestNewRendererSelection(t *testing.T) {
	assert.IsType(t, PassthroughRenderer{}, NewRenderer("", nil))
	assert.IsType(t, PassthroughRenderer{}, NewRenderer(RendererStamp, nil))
	assert.IsType(t, StampRenderer{}, NewRenderer(RendererStamp, newMemStore()))
}

func fillAll(t *testing.T, f *fixture, doc Document) {
	t.Helper()
	updates := make([]FieldValue, 0, len(doc.Fields))
	for _, field := range doc.Fields {
		updates = append(updates, FieldValue{ID: field.ID, Value: "value for " + field.Label})
	}
	_, err := f.svc.UpdateFields(context.Background(), "user-1", doc.ID, updates)
	require.NoError(t, err)
}
