// Package monitor serves live simulation snapshots over HTTP and websocket
// and exposes the interactive controller.
package monitor

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"simsweep/internal/broadcast"
	"simsweep/internal/controller"
	"simsweep/internal/docvalue"
	"simsweep/internal/runerrors"
	"simsweep/internal/supervisor"
)

const (
	DefaultAddr     = ":5000"
	shutdownTimeout = 5 * time.Second
	writeWait       = 10 * time.Second
)

// Controller is the part of *controller.Controller the server exposes.
type Controller interface {
	Start(ctx context.Context, req controller.StartRequest) (controller.Result, error)
	Stop() (controller.Result, error)
	Status() controller.Status
	Log(n int) controller.LogView
	Build(ctx context.Context, target string) (controller.Result, error)
	Sweep(ctx context.Context, data []byte) (controller.Result, error)
	RecentResults() ([]controller.BatchSummary, error)
	Configs() (controller.ConfigList, error)
	Config(name string) (*docvalue.Document, error)
	SaveConfig(name string, data []byte) (string, error)
}

type Server struct {
	b        *broadcast.Broadcaster
	ctl      Controller
	log      *slog.Logger
	e        *echo.Echo
	upgrader websocket.Upgrader
}

// NewServer wires the routes. ctl may be nil, in which case the simulation
// control routes are not registered.
func NewServer(b *broadcast.Broadcaster, ctl Controller, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		b:   b,
		ctl: ctl,
		log: log.With("component", "monitor"),
		e:   echo.New(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	s.e.HideBanner = true
	s.e.Use(s.observe)
	s.routes()
	return s
}

func (s *Server) routes() {
	s.e.GET("/ws", s.handleWebsocket)
	s.e.GET("/api/metrics", s.handleMetrics)
	s.e.GET("/api/history", s.handleHistory)
	s.e.GET("/api/status", s.handleStatus)
	s.e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	if s.ctl == nil {
		return
	}
	sim := s.e.Group("/api/simulation")
	sim.POST("/start", s.handleStart)
	sim.POST("/stop", s.handleStop)
	sim.GET("/status", s.handleSimulationStatus)
	sim.GET("/log", s.handleLog)
	sim.POST("/build", s.handleBuild)
	sim.POST("/sweep", s.handleSweep)
	sim.GET("/results", s.handleResults)
	sim.GET("/configs", s.handleConfigs)
	sim.GET("/config/:name", s.handleGetConfig)
	sim.POST("/config/:name", s.handleSaveConfig)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.e }

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	errc := make(chan error, 1)
	go func() { errc <- s.e.Start(addr) }()
	s.log.Info("monitor listening", "addr", addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.e.Shutdown(sctx); err != nil {
		return errors.Wrap(err, "shutdown monitor")
	}
	if err := <-errc; err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) observe(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		err := next(c)
		code := c.Response().Status
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
		}
		requestsCounter.WithLabelValues(c.Request().Method, c.Path(), strconv.Itoa(code)).Inc()
		s.log.Debug("request", "method", c.Request().Method, "path", c.Request().URL.Path, "code", code)
		return err
	}
}

func (s *Server) handleMetrics(c echo.Context) error {
	return c.JSON(http.StatusOK, s.b.Latest())
}

func (s *Server) handleHistory(c echo.Context) error {
	return c.JSON(http.StatusOK, s.b.History(intParam(c, "limit", broadcast.DefaultHistoryLimit)))
}

func (s *Server) handleStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, s.b.Status())
}

func intParam(c echo.Context, name string, def int) int {
	n, err := strconv.Atoi(c.QueryParam(name))
	if err != nil {
		return def
	}
	return n
}

// statusFor maps controller errors onto HTTP status codes.
func statusFor(err error) int {
	var ce *runerrors.ErrConfig
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, supervisor.ErrBusy), errors.Is(err, controller.ErrNotRunning):
		return http.StatusConflict
	case errors.Is(err, controller.ErrConfigNotFound):
		return http.StatusNotFound
	case errors.As(err, &ce):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Server) result(c echo.Context, res controller.Result, err error) error {
	if err != nil {
		s.log.Warn("control request failed", "path", c.Path(), "err", err)
	}
	return c.JSON(statusFor(err), res)
}

func readBody(c echo.Context) ([]byte, error) {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return body, nil
}

func (s *Server) handleStart(c echo.Context) error {
	body, err := readBody(c)
	if err != nil {
		return err
	}
	var req controller.StartRequest
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid start request: "+err.Error())
		}
	}
	res, err := s.ctl.Start(c.Request().Context(), req)
	return s.result(c, res, err)
}

func (s *Server) handleStop(c echo.Context) error {
	res, err := s.ctl.Stop()
	return s.result(c, res, err)
}

func (s *Server) handleSimulationStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, s.ctl.Status())
}

func (s *Server) handleLog(c echo.Context) error {
	return c.JSON(http.StatusOK, s.ctl.Log(intParam(c, "lines", controller.DefaultLogLines)))
}

func (s *Server) handleBuild(c echo.Context) error {
	body, err := readBody(c)
	if err != nil {
		return err
	}
	var req struct {
		Target string `json:"target"`
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid build request: "+err.Error())
		}
	}
	res, err := s.ctl.Build(c.Request().Context(), req.Target)
	return s.result(c, res, err)
}

func (s *Server) handleSweep(c echo.Context) error {
	body, err := readBody(c)
	if err != nil {
		return err
	}
	res, err := s.ctl.Sweep(c.Request().Context(), body)
	return s.result(c, res, err)
}

func (s *Server) handleResults(c echo.Context) error {
	res, err := s.ctl.RecentResults()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleConfigs(c echo.Context) error {
	list, err := s.ctl.Configs()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, list)
}

func (s *Server) handleGetConfig(c echo.Context) error {
	doc, err := s.ctl.Config(c.Param("name"))
	if err != nil {
		return c.JSON(statusFor(err), map[string]string{"error": err.Error()})
	}
	data, err := doc.MarshalJSON()
	if err != nil {
		return err
	}
	return c.JSONBlob(http.StatusOK, data)
}

func (s *Server) handleSaveConfig(c echo.Context) error {
	body, err := readBody(c)
	if err != nil {
		return err
	}
	if _, err := s.ctl.SaveConfig(c.Param("name"), body); err != nil {
		return c.JSON(statusFor(err), controller.Result{Message: "Failed to save configuration: " + err.Error()})
	}
	return c.JSON(http.StatusOK, controller.Result{Success: true, Message: "Configuration saved"})
}
