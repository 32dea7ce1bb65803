// Package health exposes liveness over gRPC (grpc.health.v1) and HTTP.
package health

import (
	"context"
	"net"
	"net/http"
	"time"

	"PPGateway/logger"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is reported next to the overall ("") status.
const ServiceName = "ppgateway.Gateway"

type Server struct {
	gs  *grpc.Server
	hs  *health.Server
	lis net.Listener
}

// Listen binds addr and serves the health service in the background.
func Listen(addr string) (*Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "health listen %s", addr)
	}
	gs := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	s := &Server{gs: gs, hs: hs, lis: lis}
	s.SetServing(true)

	go func() {
		logger.Info("[health] gRPC listening", zap.String("addr", lis.Addr().String()))
		if err := gs.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			logger.Error("[health] gRPC server failed", zap.Error(err))
		}
	}()
	return s, nil
}

func (s *Server) Addr() string { return s.lis.Addr().String() }

func (s *Server) SetServing(ok bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.hs.SetServingStatus("", st)
	s.hs.SetServingStatus(ServiceName, st)
}

// Stop reports NOT_SERVING to watchers, then stops the server.
func (s *Server) Stop() {
	s.hs.Shutdown()
	s.gs.GracefulStop()
}

// Check is one dependency check used by the HTTP endpoint.
type Check struct {
	Name string
	Fn   func(ctx context.Context) error
}

// Handler answers 200 when every check passes and 503 otherwise, with a
// per-check status map.
func Handler(timeout time.Duration, checks ...Check) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		code := http.StatusOK
		status := make(map[string]string, len(checks))
		for _, chk := range checks {
			if err := chk.Fn(ctx); err != nil {
				code = http.StatusServiceUnavailable
				status[chk.Name] = err.Error()
				continue
			}
			status[chk.Name] = "ok"
		}
		c.JSON(code, gin.H{"status": http.StatusText(code), "checks": status})
	}
}
