package controlplane

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tjper/workerfabric/internal/scheduler"
	"github.com/tjper/workerfabric/internal/worker"
	pb "github.com/tjper/workerfabric/proto/gen/go/fabric/v1"
)

type noopPool struct{}

func (noopPool) Acquire(protocol, url string) (worker.Worker, error) {
	return nil, errors.New("no pool configured in this test")
}
func (noopPool) Release(worker.Worker) {}
func (noopPool) Watch(worker.Worker) (<-chan worker.Event, func()) {
	return nil, func() {}
}

func newTestServer() *Server {
	sched := scheduler.New(noopPool{}, 5)
	return NewServer(sched)
}

func waitForStatus(t *testing.T, srv *Server, jobID, want string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		resp, err := srv.JobStatus(context.Background(), &pb.JobStatusRequest{JobId: jobID})
		if err == nil && resp.Status == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("job %s never reached status %s", jobID, want)
}

func TestSubmitJobWithoutURLRunsThenCancels(t *testing.T) {
	srv := newTestServer()

	resp, err := srv.SubmitJob(context.Background(), &pb.SubmitJobRequest{Owner: "tester"})
	if err != nil {
		t.Fatalf("SubmitJob: %v", err)
	}
	if resp.JobId == "" {
		t.Fatal("expected a job ID")
	}

	// A URL-less job never acquires a Pool Worker, so it reaches Running
	// and stays there until explicitly canceled.
	waitForStatus(t, srv, resp.JobId, "running")

	if _, err := srv.CancelJob(context.Background(), &pb.CancelJobRequest{JobId: resp.JobId}); err != nil {
		t.Fatalf("CancelJob: %v", err)
	}
	waitForStatus(t, srv, resp.JobId, "canceled")
}

func TestSubmitJobMissingOwnerIsRejected(t *testing.T) {
	srv := newTestServer()
	if _, err := srv.SubmitJob(context.Background(), &pb.SubmitJobRequest{}); err == nil {
		t.Fatal("expected validation error for missing owner")
	}
}

func TestJobStatusUnknownIDIsNotFound(t *testing.T) {
	srv := newTestServer()
	_, err := srv.JobStatus(context.Background(), &pb.JobStatusRequest{JobId: "00000000-0000-0000-0000-000000000000"})
	if err == nil {
		t.Fatal("expected not-found error")
	}
}

func TestCancelJobMalformedIDIsInvalidArgument(t *testing.T) {
	srv := newTestServer()
	_, err := srv.CancelJob(context.Background(), &pb.CancelJobRequest{JobId: "not-a-uuid"})
	if err == nil {
		t.Fatal("expected invalid-argument error")
	}
}
