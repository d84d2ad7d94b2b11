package server

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/carbonscope-lab/carbonscope/internal/analytics"
	core "github.com/carbonscope-lab/carbonscope/internal/core/analytics"
	apierrors "github.com/carbonscope-lab/carbonscope/internal/core/errors"
)

func (s *Server) retirementStatsHandler(c *gin.Context) {
	opts, ok := s.parseOptions(c, core.DatasetRetirements)
	if !ok {
		return
	}
	s.aggregate(c, opts)
}

func (s *Server) projectStatsHandler(c *gin.Context) {
	opts, ok := s.parseOptions(c, core.DatasetProjects)
	if !ok {
		return
	}
	s.aggregate(c, opts)
}

func (s *Server) aggregate(c *gin.Context, opts core.Options) {
	res, err := s.engine.Aggregate(c.Request.Context(), s.provider.Latest(), opts)
	if err != nil {
		slog.Error("[API] Aggregation failed", "dataset", opts.Dataset, "error", err)
		c.JSON(http.StatusInternalServerError, apierrors.ErrorResponse{
			ErrorType: apierrors.HttpInternalError,
			Message:   "aggregation failed",
		})
		return
	}
	c.JSON(http.StatusOK, res)
}

// parseOptions maps query params onto an aggregation request. Unknown values
// are rejected up front so they never poison a cache key.
func (s *Server) parseOptions(c *gin.Context, dataset string) (core.Options, bool) {
	opts := core.Options{Dataset: dataset}

	if raw := c.Query("group_by"); raw != "" {
		fields := strings.Split(raw, ",")
		for _, field := range fields {
			if !core.ValidGroupField(field) {
				c.JSON(http.StatusBadRequest, apierrors.ErrorResponse{
					ErrorType: apierrors.HttpInvalidRequestError,
					Message:   "unknown group_by field " + field,
				})
				return core.Options{}, false
			}
		}
		opts.GroupBy = fields
	}
	if raw := c.Query("metrics"); raw != "" {
		metrics := strings.Split(raw, ",")
		for _, metric := range metrics {
			if !core.ValidMetric(metric) {
				c.JSON(http.StatusBadRequest, apierrors.ErrorResponse{
					ErrorType: apierrors.HttpInvalidRequestError,
					Message:   "unknown metric " + metric,
				})
				return core.Options{}, false
			}
		}
		opts.Metrics = metrics
	}

	filters := make(map[string]string)
	for _, field := range []string{core.FieldProject, core.FieldPaymentMethod, core.FieldMethodology, core.FieldActor} {
		if v := c.Query(field); v != "" {
			filters[field] = v
		}
	}
	if len(filters) > 0 {
		opts.Filters = filters
	}

	if raw := c.Query("interval"); raw != "" {
		interval := core.Interval(raw)
		if !core.ValidInterval(interval) {
			c.JSON(http.StatusBadRequest, apierrors.ErrorResponse{
				ErrorType: apierrors.HttpInvalidRequestError,
				Message:   "unsupported interval " + raw,
			})
			return core.Options{}, false
		}
		tf, ok := s.parseTimeframe(c, interval)
		if !ok {
			return core.Options{}, false
		}
		opts.Timeframe = tf
	}

	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, apierrors.ErrorResponse{
				ErrorType: apierrors.HttpInvalidRequestError,
				Message:   "limit must be a non-negative integer",
			})
			return core.Options{}, false
		}
		opts.Limit = limit
	}
	if field := c.Query("sort"); field != "" {
		opts.Sort = &core.SortSpec{Field: field, Direction: c.DefaultQuery("dir", "desc")}
	}
	return opts, true
}

func (s *Server) parseTimeframe(c *gin.Context, interval core.Interval) (*core.Timeframe, bool) {
	tf := &core.Timeframe{Interval: interval}
	if raw := c.Query("start"); raw != "" {
		unix, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, apierrors.ErrorResponse{
				ErrorType: apierrors.HttpInvalidRequestError,
				Message:   "start must be a unix timestamp",
			})
			return nil, false
		}
		tf.Start = unixTime(unix)
	}
	if raw := c.Query("end"); raw != "" {
		unix, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, apierrors.ErrorResponse{
				ErrorType: apierrors.HttpInvalidRequestError,
				Message:   "end must be a unix timestamp",
			})
			return nil, false
		}
		tf.End = unixTime(unix)
	}
	return tf, true
}

func (s *Server) timeSeriesHandler(c *gin.Context) {
	interval := core.Interval(c.DefaultQuery("interval", string(core.IntervalDay)))
	if !core.ValidInterval(interval) {
		c.JSON(http.StatusBadRequest, apierrors.ErrorResponse{
			ErrorType: apierrors.HttpInvalidRequestError,
			Message:   "unsupported interval",
		})
		return
	}
	maxPoints := 0
	if raw := c.Query("max_points"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, apierrors.ErrorResponse{
				ErrorType: apierrors.HttpInvalidRequestError,
				Message:   "max_points must be a positive integer",
			})
			return
		}
		maxPoints = n
	}

	series := s.engine.CreateTimeSeries(s.provider.Latest(), c.Query("metric"), analytics.TimeSeriesOptions{
		Interval:  interval,
		Aggregate: c.DefaultQuery("fn", core.AggSum),
		MaxPoints: maxPoints,
	})
	c.JSON(http.StatusOK, gin.H{"interval": interval, "points": series})
}

func (s *Server) realTimeHandler(c *gin.Context) {
	window, err := strconv.Atoi(c.DefaultQuery("window", "20"))
	if err != nil || window < 1 {
		c.JSON(http.StatusBadRequest, apierrors.ErrorResponse{
			ErrorType: apierrors.HttpInvalidRequestError,
			Message:   "window must be a positive integer",
		})
		return
	}
	stats := s.engine.CalculateRealTimeStats(s.provider.Latest(), c.Query("metric"), window)
	c.JSON(http.StatusOK, stats)
}

// realTimeSamplesHandler computes rolling stats over caller-supplied samples.
// Each sample is a loose object holding "value" or "amount"; samples with
// neither are skipped, not rejected.
func (s *Server) realTimeSamplesHandler(c *gin.Context) {
	var body struct {
		Samples    []map[string]any `json:"samples"`
		WindowSize int              `json:"window_size"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, apierrors.ErrorResponse{
			ErrorType: apierrors.HttpInvalidRequestError,
			Message:   "invalid JSON body",
		})
		return
	}
	if body.WindowSize < 1 {
		body.WindowSize = 20
	}

	values := make([]float64, 0, len(body.Samples))
	for _, sample := range body.Samples {
		if v, ok := core.SampleValue(sample); ok {
			values = append(values, v)
		}
	}
	c.JSON(http.StatusOK, core.CalculateRealTimeStats(values, body.WindowSize))
}

func (s *Server) cacheStatsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.CacheStats())
}

func (s *Server) cacheValidateHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.ValidateCache())
}

func (s *Server) liveHandler(c *gin.Context) {
	s.hub.ServeWS(c.Writer, c.Request)
}

func unixTime(unix int64) time.Time {
	return time.Unix(unix, 0).UTC()
}
