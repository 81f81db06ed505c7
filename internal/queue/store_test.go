package queue

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faizalindrak/mass-email-sender-desktop/internal/hostlog"
	"github.com/faizalindrak/mass-email-sender-desktop/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), hostlog.Discard())
	require.NoError(t, err)
	return s
}

func testJob() model.Job {
	return model.NewJob(model.EmailPayload{
		To:       []string{"a@b.com"},
		Subject:  "S",
		BodyHTML: "<p>B</p>",
	})
}

func TestEnqueueClaimRoundTrip(t *testing.T) {
	s := newTestStore(t)
	job := testJob()

	require.NoError(t, s.Enqueue(job))

	claimed, err := s.Claim()
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, job.ID, claimed.ID)
	assert.Equal(t, job.Payload.To, claimed.Payload.To)
	assert.Equal(t, job.Payload.Subject, claimed.Payload.Subject)

	// Claimed job now lives in in-flight, not pending.
	assert.NoFileExists(t, filepath.Join(s.Root(), DirPending, job.ID+".json"))
	assert.FileExists(t, filepath.Join(s.Root(), DirInFlight, job.ID+".json"))

	// Nothing left to claim.
	again, err := s.Claim()
	require.NoError(t, err)
	assert.Nil(t, again)
}

func TestEnqueueRejectsInvalidJob(t *testing.T) {
	s := newTestStore(t)

	err := s.Enqueue(model.Job{ID: "not-a-uuid"})
	require.Error(t, err)

	err = s.Enqueue(model.Job{})
	require.ErrorIs(t, err, model.ErrMissingJobID)
}

func TestConcurrentClaimersExactlyOneWins(t *testing.T) {
	s := newTestStore(t)
	job := testJob()
	require.NoError(t, s.Enqueue(job))

	const claimers = 8
	var wg sync.WaitGroup
	results := make(chan *model.Job, claimers)

	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := s.Claim()
			assert.NoError(t, err)
			results <- claimed
		}()
	}
	wg.Wait()
	close(results)

	winners := 0
	for claimed := range results {
		if claimed != nil {
			winners++
			assert.Equal(t, job.ID, claimed.ID)
		}
	}
	assert.Equal(t, 1, winners)
}

func TestClaimQuarantinesMalformedJob(t *testing.T) {
	s := newTestStore(t)

	bad := filepath.Join(s.Root(), DirPending, "broken.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o644))

	claimed, err := s.Claim()
	require.NoError(t, err)
	assert.Nil(t, claimed)

	names, err := s.ListDeadLetter()
	require.NoError(t, err)
	require.Equal(t, []string{"broken.json"}, names)
	assert.FileExists(t, filepath.Join(s.Root(), DirDeadLetter, "broken.json.reason"))
}

func TestClaimQuarantinesSchemaInvalidJob(t *testing.T) {
	s := newTestStore(t)

	// Valid JSON, but no recipients.
	bad := filepath.Join(s.Root(), DirPending, "norecipients.json")
	require.NoError(t, os.WriteFile(bad,
		[]byte(`{"id":"11111111-2222-3333-4444-555555555555","payload":{"subject":"s"}}`), 0o644))

	claimed, err := s.Claim()
	require.NoError(t, err)
	assert.Nil(t, claimed)

	names, err := s.ListDeadLetter()
	require.NoError(t, err)
	assert.Equal(t, []string{"norecipients.json"}, names)
}

func TestResolveClearsInFlight(t *testing.T) {
	s := newTestStore(t)
	job := testJob()
	require.NoError(t, s.Enqueue(job))

	claimed, err := s.Claim()
	require.NoError(t, err)
	require.NotNil(t, claimed)

	require.NoError(t, s.Resolve(job.ID, model.Resolution{
		Success:   true,
		MessageID: "m1",
	}))

	assert.NoFileExists(t, filepath.Join(s.Root(), DirInFlight, job.ID+".json"))

	res, err := s.Resolution(job.ID)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, job.ID, res.ID)
	assert.True(t, res.Success)
	assert.Equal(t, "m1", res.MessageID)
	assert.False(t, res.ResolvedAt.IsZero())
}

func TestResolveTwiceLastWriteWins(t *testing.T) {
	s := newTestStore(t)
	job := testJob()
	require.NoError(t, s.Enqueue(job))
	_, err := s.Claim()
	require.NoError(t, err)

	require.NoError(t, s.Resolve(job.ID, model.Resolution{Success: false, Error: "timeout"}))
	// A late reply racing the deadline sweep writes again; this must
	// not fail, and the later write wins.
	require.NoError(t, s.Resolve(job.ID, model.Resolution{Success: true, MessageID: "late"}))

	res, err := s.Resolution(job.ID)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, res.Success)
	assert.Equal(t, "late", res.MessageID)
}

func TestResolveWithoutInFlightFileIsNotFatal(t *testing.T) {
	s := newTestStore(t)

	err := s.Resolve("2da9f7b1-93ff-4a10-bb33-77d1c1e0a111", model.Resolution{
		Success: false,
		Error:   "orphan",
	})
	require.NoError(t, err)
}

func TestResolutionAbsentReturnsNil(t *testing.T) {
	s := newTestStore(t)

	res, err := s.Resolution("0b0e7a10-0000-4000-8000-000000000000")
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestRecoverRequeuesStrandedJobs(t *testing.T) {
	s := newTestStore(t)
	job := testJob()
	require.NoError(t, s.Enqueue(job))

	claimed, err := s.Claim()
	require.NoError(t, err)
	require.NotNil(t, claimed)

	// Simulate a crashed host: the job is stranded in in-flight.
	n, err := s.Recover()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	reclaimed, err := s.Claim()
	require.NoError(t, err)
	require.NotNil(t, reclaimed)
	assert.Equal(t, job.ID, reclaimed.ID)
}

func TestListJobsAndResolutions(t *testing.T) {
	s := newTestStore(t)
	first := testJob()
	second := testJob()
	require.NoError(t, s.Enqueue(first))
	require.NoError(t, s.Enqueue(second))

	pending, err := s.ListJobs(DirPending)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	claimed, err := s.Claim()
	require.NoError(t, err)
	require.NotNil(t, claimed)
	require.NoError(t, s.Resolve(claimed.ID, model.Resolution{Success: true}))

	pending, err = s.ListJobs(DirPending)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	resolutions, err := s.ListResolutions()
	require.NoError(t, err)
	require.Len(t, resolutions, 1)
	assert.Equal(t, claimed.ID, resolutions[0].ID)
	assert.WithinDuration(t, time.Now(), resolutions[0].ResolvedAt, time.Minute)
}
