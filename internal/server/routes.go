package server

import (
	"net/http"
	"time"

	"github.com/berfenger/powermon/internal/core/domain"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type sourceStatus struct {
	Time   time.Time           `json:"time"`
	Values map[string]*float64 `json:"values"`
}

type statusResponse struct {
	Enabled bool                    `json:"enabled"`
	Ready   bool                    `json:"ready"`
	Pending map[string]sourceStatus `json:"pending"`
}

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	e.HideBanner = true
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)
	e.GET("/status", s.StatusHandler)
	if s.gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ActorHealthRequest{}, 10*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	if response, ok := res.(domain.ActorHealthResponse); ok && response.Healthy {
		return c.String(http.StatusOK, "health_check: OK")
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

// StatusHandler shows the readings waiting for the next flush.
func (s *Server) StatusHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.GetPendingBatchRequest{}, 5*time.Second).Result()
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	response, ok := res.(domain.GetPendingBatchResponse)
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, "unexpected response")
	}

	status := statusResponse{
		Enabled: response.Enabled,
		Ready:   response.Ready,
		Pending: map[string]sourceStatus{},
	}
	for source, rec := range response.Batch {
		values := map[string]*float64{}
		for _, field := range rec.Fields() {
			if v, ok := rec.Value(field); ok {
				values[field] = &v
			} else {
				values[field] = nil
			}
		}
		status.Pending[string(source)] = sourceStatus{Time: rec.Time(), Values: values}
	}
	return c.JSON(http.StatusOK, status)
}
