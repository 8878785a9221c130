package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"

	"curator/internal/api"
	"curator/internal/daemon"
	"curator/internal/logging"
)

func listRequest(req JobListRequest) api.ListRequest {
	return api.ListRequest{Statuses: req.Statuses, Owner: req.Owner}
}

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logger, ctx: ctx}
	if err := rpcServer.RegisterName("Curator", srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		daemon:    d,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("ipc server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check socket permissions and restart the daemon if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove the socket file manually or rerun curator stop"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) log() *slog.Logger {
	if s.logger == nil {
		return logging.NewNop()
	}
	return s.logger.With(logging.String(logging.FieldComponent, "ipc"))
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.log().Debug("daemon stop requested")
	s.daemon.Stop()
	resp.Stopped = true
	s.log().Info("daemon stopped via ipc")
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status(s.ctx)
	resp.Running = status.Running
	resp.PID = status.PID
	resp.QueueDBPath = status.QueueDBPath
	resp.LockPath = status.LockFilePath
	resp.ActiveWorkers = status.ActiveWorkers
	resp.Subscribers = status.Subscribers
	resp.QueueStats = status.QueueStats
	return nil
}

func (s *service) JobEnqueue(req JobEnqueueRequest, resp *JobEnqueueResponse) error {
	job, err := s.daemon.Jobs().Enqueue(s.ctx, req.Job)
	if err != nil {
		return err
	}
	resp.Job = *job
	return nil
}

func (s *service) JobList(req JobListRequest, resp *JobListResponse) error {
	jobs, err := s.daemon.Jobs().List(s.ctx, listRequest(req))
	if err != nil {
		return err
	}
	resp.Jobs = jobs
	return nil
}

func (s *service) JobDescribe(req JobDescribeRequest, resp *JobDescribeResponse) error {
	if req.ID == "" {
		return errors.New("job id is required")
	}
	job, err := s.daemon.Jobs().Get(s.ctx, req.ID)
	if err != nil {
		return err
	}
	resp.Job = *job
	return nil
}

func (s *service) JobCommand(req JobCommandRequest, resp *JobCommandResponse) error {
	if len(req.IDs) == 0 {
		return errors.New("job command requires at least one id")
	}
	s.log().Debug("job command requested",
		logging.String("command", req.Command),
		logging.Int("job_count", len(req.IDs)))
	resp.Results = s.daemon.Jobs().Bulk(s.ctx, req.Command, req.IDs)
	return nil
}

func (s *service) Health(_ HealthRequest, resp *HealthResponse) error {
	health, err := s.daemon.Jobs().Health(s.ctx)
	if err != nil {
		return err
	}
	resp.Running = health.Running
	resp.ActiveWorkers = health.ActiveWorkers
	resp.Subscribers = health.Subscribers
	resp.Queue = health.Queue
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	resp.Sent = sent
	resp.Message = message
	return err
}
