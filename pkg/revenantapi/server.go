// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

// Package revenantapi exposes the scheduler loop's operator-facing commands
// and current snapshot over HTTP, for collaborators that want to observe or
// steer drive-revenant without shelling out to the CLI.
package revenantapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tinkershack/drive-revenant/internal/common"
	"github.com/tinkershack/drive-revenant/pkg/errors"
	"github.com/tinkershack/drive-revenant/pkg/revenant/types"
)

// LoopAPI is the subset of loop.Loop the HTTP surface depends on.
type LoopAPI interface {
	CurrentSnapshot() types.Snapshot
	SetDriveConfig(letter string, intervalSec *int, driveType *types.DriveType, enabled *bool) error
	PauseDrive(letter string) error
	ResumeDrive(letter string) error
	ReleaseQuarantine(letter string) error
	PingNow(letter string) error
}

// Server wraps a gin.Engine bound to a LoopAPI.
type Server struct {
	engine *gin.Engine
	http   *http.Server
	loop   LoopAPI
}

// New constructs the HTTP surface. gin runs in release mode; the scheduler
// loop is the thing under test, not the router.
func New(loop LoopAPI) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{engine: engine, loop: loop}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.GET("/status", s.getStatus)
	s.engine.POST("/drives/:letter/pause", s.pauseDrive)
	s.engine.POST("/drives/:letter/resume", s.resumeDrive)
	s.engine.POST("/drives/:letter/ping-now", s.pingNow)
	s.engine.POST("/drives/:letter/quarantine/release", s.releaseQuarantine)
	s.engine.PUT("/drives/:letter/config", s.setDriveConfig)
}

// Start runs the HTTP server on the given port until ctx is cancelled.
func (s *Server) Start(ctx context.Context, port int) error {
	s.http = &http.Server{
		Addr:    ":" + strconv.Itoa(port),
		Handler: s.engine,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- s.http.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.http.Shutdown(shutdownCtx)
}

func (s *Server) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.loop.CurrentSnapshot())
}

func (s *Server) pauseDrive(c *gin.Context) {
	if err := s.loop.PauseDrive(c.Param("letter")); err != nil {
		common.APIError(c, mapErr(err))
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) resumeDrive(c *gin.Context) {
	if err := s.loop.ResumeDrive(c.Param("letter")); err != nil {
		common.APIError(c, mapErr(err))
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) pingNow(c *gin.Context) {
	if err := s.loop.PingNow(c.Param("letter")); err != nil {
		common.APIError(c, mapErr(err))
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) releaseQuarantine(c *gin.Context) {
	if err := s.loop.ReleaseQuarantine(c.Param("letter")); err != nil {
		common.APIError(c, mapErr(err))
		return
	}
	c.Status(http.StatusNoContent)
}

type setDriveConfigRequest struct {
	IntervalSec *int             `json:"interval_sec"`
	Type        *types.DriveType `json:"type"`
	Enabled     *bool            `json:"enabled"`
}

func (s *Server) setDriveConfig(c *gin.Context) {
	var req setDriveConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.APIError(c, errors.New(errors.ServerBadRequest, "invalid request body").WithMetadata("error", err.Error()))
		return
	}
	if req.IntervalSec != nil && *req.IntervalSec <= 0 {
		common.APIError(c, errors.New(errors.SchedulerInvalidInterval, "interval_sec must be positive").WithMetadata("letter", c.Param("letter")))
		return
	}
	if err := s.loop.SetDriveConfig(c.Param("letter"), req.IntervalSec, req.Type, req.Enabled); err != nil {
		common.APIError(c, mapErr(err))
		return
	}
	c.Status(http.StatusNoContent)
}

func mapErr(err error) error {
	if revErr, ok := err.(*errors.RodentError); ok {
		return revErr
	}
	return errors.New(errors.SchedulerLoopNotRunning, err.Error())
}
