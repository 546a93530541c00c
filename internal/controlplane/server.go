// Package controlplane implements the fabric's gRPC control plane:
// SubmitJob/CancelJob/JobStatus/StreamOutput against the Scheduler and
// Job types, generalizing the teacher's single-host JobWorker service to
// the fabric's URL-scoped, pluggable-protocol Job model.
package controlplane

import (
	"context"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/tjper/workerfabric/internal/job"
	"github.com/tjper/workerfabric/internal/log"
	"github.com/tjper/workerfabric/internal/scheduler"
	"github.com/tjper/workerfabric/internal/validator"
	pb "github.com/tjper/workerfabric/proto/gen/go/fabric/v1"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var logger = log.New(io.Discard, "controlplane")

// SetLogOutput redirects package logging.
func SetLogOutput(w io.Writer) { logger = log.New(w, "controlplane") }

// NewServer constructs a Server backed by sched. Submitted Jobs are
// tracked in an in-memory registry keyed by ID, since neither Scheduler
// nor Job exposes a by-ID lookup of its own -- Scheduler's bindings map
// is keyed by Job but only while bound to a Worker, and isn't safe for
// a caller outside the scheduler package to range over.
func NewServer(sched *scheduler.Scheduler) *Server {
	return &Server{
		sched: sched,
		jobs:  make(map[uuid.UUID]*job.Job),
	}
}

var _ pb.FabricServiceServer = (*Server)(nil)

// Server implements pb.FabricServiceServer.
type Server struct {
	pb.UnimplementedFabricServiceServer

	sched *scheduler.Scheduler

	mutex sync.RWMutex
	jobs  map[uuid.UUID]*job.Job
}

func (s *Server) SubmitJob(ctx context.Context, req *pb.SubmitJobRequest) (*pb.SubmitJobResponse, error) {
	valid := validator.New()
	valid.Assert(req.GetOwner() != "", "owner empty")
	if err := valid.Err(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	j := job.New(req.Owner, req.URL, req.Cmd, req.Payload)

	s.mutex.Lock()
	s.jobs[j.ID] = j
	s.mutex.Unlock()

	s.sched.ScheduleJob(j)

	return &pb.SubmitJobResponse{
		JobId:  j.ID.String(),
		Status: string(j.State()),
	}, nil
}

func (s *Server) CancelJob(ctx context.Context, req *pb.CancelJobRequest) (*pb.CancelJobResponse, error) {
	j, err := s.lookup(req.GetJobId())
	if err != nil {
		return nil, err
	}
	s.sched.CancelJob(j)
	return &pb.CancelJobResponse{}, nil
}

func (s *Server) JobStatus(ctx context.Context, req *pb.JobStatusRequest) (*pb.JobStatusResponse, error) {
	j, err := s.lookup(req.GetJobId())
	if err != nil {
		return nil, err
	}
	return &pb.JobStatusResponse{
		JobId:    j.ID.String(),
		Status:   string(j.State()),
		Progress: j.Progress(),
		Error:    j.ErrorString(),
	}, nil
}

func (s *Server) StreamOutput(req *pb.StreamOutputRequest, stream pb.FabricService_StreamOutputServer) error {
	j, err := s.lookup(req.GetJobId())
	if err != nil {
		return err
	}

	events, cancel := j.Listen()
	defer cancel()

	if err := stream.Send(&pb.OutputChunk{
		Status:   string(j.State()),
		Progress: j.Progress(),
	}); err != nil {
		return status.Error(codes.Internal, "send initial status")
	}

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return status.FromContextError(ctx.Err()).Err()
		case ev := <-events:
			chunk := &pb.OutputChunk{
				Status:   string(ev.State),
				Progress: ev.Progress,
				Error:    ev.Err,
				Data:     ev.Data,
			}
			if err := stream.Send(chunk); err != nil {
				return status.Error(codes.Internal, "send output chunk")
			}
			if j.Finished() {
				return nil
			}
		}
	}
}

func (s *Server) lookup(rawID string) (*job.Job, error) {
	if rawID == "" {
		return nil, status.Error(codes.InvalidArgument, validator.Format("job ID empty"))
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, validator.Format("job ID not UUID"))
	}

	s.mutex.RLock()
	j, ok := s.jobs[id]
	s.mutex.RUnlock()
	if !ok {
		logger.Warnf("job %s: not found", id)
		return nil, status.Error(codes.NotFound, "unknown job ID")
	}
	return j, nil
}
