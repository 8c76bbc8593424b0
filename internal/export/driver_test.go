package export

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/silverfin-export/internal/artifact"
	"github.com/sells-group/silverfin-export/internal/metrics"
	"github.com/sells-group/silverfin-export/internal/model"
	"github.com/sells-group/silverfin-export/internal/resilience"
	"github.com/sells-group/silverfin-export/internal/selection"
	"github.com/sells-group/silverfin-export/pkg/silverfin"
)

var pdfBytes = []byte("%PDF-1.7\n1 0 obj\n<<>>\nendobj\ntrailer\n<<>>\n%%EOF\n")

// fakeClock advances virtual time on Sleep.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps int
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.sleeps++
	return nil
}

// fakeClient scripts export job states.
type fakeClient struct {
	mu sync.Mutex

	createErr   error
	states      []string
	downloadURL *string
	processing  *string
	pollErr     error
	downloadErr error
	data        []byte

	creates   []silverfin.CreateExportRequest
	polls     int
	downloads []string
}

func (f *fakeClient) ListCompanies(context.Context, int, int) ([]silverfin.Company, error) {
	return nil, nil
}

func (f *fakeClient) ListPeriods(context.Context, int64, int) ([]silverfin.Period, error) {
	return nil, nil
}

func (f *fakeClient) CreateExport(_ context.Context, _, _ int64, req silverfin.CreateExportRequest) (*silverfin.ExportInstance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates = append(f.creates, req)
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &silverfin.ExportInstance{ID: 77, State: "pending"}, nil
}

func (f *fakeClient) GetExport(_ context.Context, _, _, id int64) (*silverfin.ExportInstance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	if f.pollErr != nil {
		return nil, f.pollErr
	}
	state := "pending"
	if f.polls <= len(f.states) {
		state = f.states[f.polls-1]
	}
	inst := &silverfin.ExportInstance{ID: id, State: state}
	switch state {
	case silverfin.StateCreated:
		inst.DownloadURL = f.downloadURL
	case silverfin.StateError:
		inst.ProcessingError = f.processing
	}
	return inst, nil
}

func (f *fakeClient) Download(_ context.Context, locator string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloads = append(f.downloads, locator)
	if f.downloadErr != nil {
		return nil, f.downloadErr
	}
	return f.data, nil
}

type brokenSink struct{}

func (brokenSink) Save(context.Context, string, []byte) (string, error) {
	return "", errors.New("disk full")
}

func strPtr(s string) *string { return &s }

var (
	acme   = silverfin.Company{ID: 42, Name: "Acme & Co. BV"}
	fy2023 = selection.Selected{
		Period: silverfin.Period{ID: 9, EndDate: "2023-12-31"},
		Label:  "most-recent-last-closed-fiscal-year",
	}
)

func newTestDriver(t *testing.T, client silverfin.Client, cfg Config) (*Driver, *fakeClock, *artifact.LocalSink) {
	t.Helper()
	sink, err := artifact.NewLocalFS(memfs.New(), "out")
	require.NoError(t, err)
	clock := newFakeClock()
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 3 * time.Second
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 5
	}
	return NewDriver(client, sink, cfg, WithClock(clock)), clock, sink
}

func TestDriver_PendingThenCreated(t *testing.T) {
	client := &fakeClient{
		states:      []string{"pending", "pending", silverfin.StateCreated},
		downloadURL: strPtr("/downloads/77.pdf"),
		data:        pdfBytes,
	}
	d, clock, _ := newTestDriver(t, client, Config{ExportPDFID: "123"})

	out := d.Run(context.Background(), acme, fy2023)

	require.True(t, out.OK(), "unexpected failure: %v", out.Failure)
	assert.Equal(t, 3, out.Polls)
	assert.Equal(t, 3, client.polls)
	assert.Equal(t, 3, clock.sleeps)
	assert.Equal(t, []string{"/downloads/77.pdf"}, client.downloads)
	assert.Equal(t, "out/full_export_acme___co__bv_2023-12-31_most-recent-last-closed-fiscal-year.pdf", out.Path)

	require.Len(t, client.creates, 1)
	assert.Equal(t, "Acme & Co. BV - 2023-12-31 - most-recent-last-closed-fiscal-year", client.creates[0].Title)
	assert.Equal(t, "123", client.creates[0].ExportPDFID)
}

func TestDriver_WritesContent(t *testing.T) {
	fs := memfs.New()
	sink, err := artifact.NewLocalFS(fs, ".")
	require.NoError(t, err)
	client := &fakeClient{
		states:      []string{silverfin.StateCreated},
		downloadURL: strPtr("https://cdn.example.com/77.pdf"),
		data:        pdfBytes,
	}
	d := NewDriver(client, sink, Config{}, WithClock(newFakeClock()))

	out := d.Run(context.Background(), acme, fy2023)
	require.True(t, out.OK())

	got, err := util.ReadFile(fs, out.Path)
	require.NoError(t, err)
	assert.Equal(t, pdfBytes, got)
}

func TestDriver_StuckPendingTimesOut(t *testing.T) {
	client := &fakeClient{data: pdfBytes}
	d, _, _ := newTestDriver(t, client, Config{MaxAttempts: 4, PollInterval: 30 * time.Second})

	out := d.Run(context.Background(), acme, fy2023)

	require.False(t, out.OK())
	assert.Equal(t, model.FailureTimeout, out.Failure.Kind)
	assert.Equal(t, resilience.CategoryTransient, out.Failure.Category)
	assert.Equal(t, 4, client.polls)
	assert.Empty(t, client.downloads)
	assert.Contains(t, out.Failure.Error, "still pending after 4 polls (2.0 minutes)")
	assert.Equal(t, "2023-12-31", out.Failure.Period)
	assert.Equal(t, "most-recent-last-closed-fiscal-year", out.Failure.Label)
}

func TestDriver_RemoteErrorStopsPolling(t *testing.T) {
	client := &fakeClient{
		states:     []string{"pending", "pending", silverfin.StateError, silverfin.StateCreated},
		processing: strPtr("template not found"),
	}
	d, _, _ := newTestDriver(t, client, Config{})

	out := d.Run(context.Background(), acme, fy2023)

	require.False(t, out.OK())
	assert.Equal(t, model.FailureRemoteJob, out.Failure.Kind)
	assert.Equal(t, resilience.CategoryPermanent, out.Failure.Category)
	assert.Equal(t, 3, client.polls)
	assert.Empty(t, client.downloads)
	assert.Contains(t, out.Failure.Error, "template not found")
}

func TestDriver_CreateFailure(t *testing.T) {
	client := &fakeClient{
		createErr: &silverfin.RequestError{Method: "POST", URL: "/x", StatusCode: 503, Message: "unavailable"},
	}
	d, clock, _ := newTestDriver(t, client, Config{})

	out := d.Run(context.Background(), acme, fy2023)

	require.False(t, out.OK())
	assert.Equal(t, model.FailureTransport, out.Failure.Kind)
	assert.Equal(t, resilience.CategoryTransient, out.Failure.Category)
	assert.Zero(t, client.polls)
	assert.Zero(t, clock.sleeps)
}

func TestDriver_PollFailure(t *testing.T) {
	client := &fakeClient{
		pollErr: &silverfin.RequestError{Method: "GET", URL: "/x", StatusCode: 404, Message: "not found"},
	}
	d, _, _ := newTestDriver(t, client, Config{})

	out := d.Run(context.Background(), acme, fy2023)

	require.False(t, out.OK())
	assert.Equal(t, model.FailureTransport, out.Failure.Kind)
	assert.Equal(t, resilience.CategoryPermanent, out.Failure.Category)
	assert.Equal(t, 1, out.Polls)
}

func TestDriver_DownloadFailure(t *testing.T) {
	client := &fakeClient{
		states:      []string{silverfin.StateCreated},
		downloadURL: strPtr("/d/77"),
		downloadErr: &silverfin.RequestError{Method: "GET", URL: "/d/77", StatusCode: 500, Message: "boom"},
	}
	d, _, _ := newTestDriver(t, client, Config{})

	out := d.Run(context.Background(), acme, fy2023)

	require.False(t, out.OK())
	assert.Equal(t, model.FailureTransport, out.Failure.Kind)
	assert.Len(t, client.downloads, 1)
}

func TestDriver_CreatedWithoutDownloadURL(t *testing.T) {
	client := &fakeClient{states: []string{silverfin.StateCreated}}
	d, _, _ := newTestDriver(t, client, Config{})

	out := d.Run(context.Background(), acme, fy2023)

	require.False(t, out.OK())
	assert.Equal(t, model.FailureRemoteJob, out.Failure.Kind)
	assert.Empty(t, client.downloads)
}

func TestDriver_VerifyPDFRejectsNonPDF(t *testing.T) {
	client := &fakeClient{
		states:      []string{silverfin.StateCreated},
		downloadURL: strPtr("/d/77"),
		data:        []byte("<html><body>login</body></html>"),
	}
	d, _, _ := newTestDriver(t, client, Config{VerifyPDF: true})

	out := d.Run(context.Background(), acme, fy2023)

	require.False(t, out.OK())
	assert.Equal(t, model.FailureStorage, out.Failure.Kind)
	assert.Contains(t, out.Failure.Error, "not application/pdf")
}

func TestDriver_VerifyPDFAcceptsPDF(t *testing.T) {
	client := &fakeClient{
		states:      []string{silverfin.StateCreated},
		downloadURL: strPtr("/d/77"),
		data:        pdfBytes,
	}
	d, _, _ := newTestDriver(t, client, Config{VerifyPDF: true})

	out := d.Run(context.Background(), acme, fy2023)
	assert.True(t, out.OK())
}

func TestDriver_StorageFailure(t *testing.T) {
	client := &fakeClient{
		states:      []string{silverfin.StateCreated},
		downloadURL: strPtr("/d/77"),
		data:        pdfBytes,
	}
	d := NewDriver(client, brokenSink{}, Config{}, WithClock(newFakeClock()))

	out := d.Run(context.Background(), acme, fy2023)

	require.False(t, out.OK())
	assert.Equal(t, model.FailureStorage, out.Failure.Kind)
	assert.Equal(t, "disk full", out.Failure.Error)
}

func TestDriver_CanceledDuringPoll(t *testing.T) {
	client := &fakeClient{}
	d, _, _ := newTestDriver(t, client, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := d.Run(ctx, acme, fy2023)

	require.False(t, out.OK())
	assert.Equal(t, model.FailureTransport, out.Failure.Kind)
	assert.Zero(t, client.polls)
}

func TestDriver_Metrics(t *testing.T) {
	m := metrics.New()
	sink, err := artifact.NewLocalFS(memfs.New(), ".")
	require.NoError(t, err)
	client := &fakeClient{
		states:      []string{"pending", silverfin.StateCreated},
		downloadURL: strPtr("/d/77"),
		data:        pdfBytes,
	}
	d := NewDriver(client, sink, Config{}, WithClock(newFakeClock()), WithMetrics(m))

	require.True(t, d.Run(context.Background(), acme, fy2023).OK())

	n, err := testutil.GatherAndCount(m.Registry, "silverfin_exports_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNewDriver_Defaults(t *testing.T) {
	d := NewDriver(&fakeClient{}, brokenSink{}, Config{})
	assert.Equal(t, 3*time.Second, d.cfg.PollInterval)
	assert.Equal(t, 200, d.cfg.MaxAttempts)
	assert.IsType(t, RealClock{}, d.clock)
}

func TestRealClock_SleepCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := RealClock{}.Sleep(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
}
