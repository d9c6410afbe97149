package server

import (
	"net/http"
	"time"

	"github.com/berfenger/chargepilot/internal/core/domain"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const dateParamLayout = "2006-01-02"

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)
	e.GET("/api/lastrun", s.LastRunHandler)
	e.POST("/api/run", s.RunChargeCheckHandler)
	e.POST("/api/report", s.ReportUploadHandler)

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

func (s *Server) LastRunHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.GetLastRunRequest{}, 10*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "last_run: FAIL")
	}
	response, ok := res.(domain.GetLastRunResponse)
	if !ok {
		return c.String(http.StatusServiceUnavailable, "last_run: FAIL")
	}
	if response.Result == nil {
		return c.NoContent(http.StatusNotFound)
	}
	return c.JSON(http.StatusOK, response.Result)
}

// RunChargeCheckHandler triggers a forced charge check and waits for
// the result.
func (s *Server) RunChargeCheckHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.RunChargeCheckRequest{Force: true}, 4*time.Minute).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "run: FAIL")
	}
	response, ok := res.(domain.RunChargeCheckResponse)
	if !ok {
		return c.String(http.StatusServiceUnavailable, "run: FAIL")
	}
	return c.JSON(http.StatusOK, response.Result)
}

// ReportUploadHandler uploads generation reports for the date range
// given by the from/to query params (defaults to yesterday).
func (s *Server) ReportUploadHandler(c echo.Context) error {
	yesterday := time.Now().AddDate(0, 0, -1)
	from, err := dateParam(c, "from", yesterday)
	if err != nil {
		return c.String(http.StatusBadRequest, "invalid from date")
	}
	to, err := dateParam(c, "to", yesterday)
	if err != nil {
		return c.String(http.StatusBadRequest, "invalid to date")
	}
	if to.Before(from) {
		return c.String(http.StatusBadRequest, "to is before from")
	}

	res, err := s.rootContext.RequestFuture(s.masterActor, domain.RunReportUploadRequest{From: from, To: to}, 4*time.Minute).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "report: FAIL")
	}
	response, ok := res.(domain.RunReportUploadResponse)
	if !ok {
		return c.String(http.StatusServiceUnavailable, "report: FAIL")
	}
	if response.HasResponseError() {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": response.GetResponseError().Error(),
		})
	}
	return c.JSON(http.StatusOK, map[string]int{
		"uploaded": response.Uploaded,
		"failed":   response.Failed,
	})
}

func dateParam(c echo.Context, name string, fallback time.Time) (time.Time, error) {
	value := c.QueryParam(name)
	if value == "" {
		year, month, day := fallback.Date()
		return time.Date(year, month, day, 0, 0, 0, 0, fallback.Location()), nil
	}
	return time.ParseInLocation(dateParamLayout, value, time.Local)
}
