package projection

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	httperr "github.com/aevon-lab/aevon-rollup/internal/core/errors"
	"github.com/aevon-lab/aevon-rollup/internal/core/granularity"
)

// RegisterRoutes registers all query and maintenance routes on the given router.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.GET("/v1/aggregations", s.HandleListAggregations)
	r.GET("/v1/aggregations/:name", s.HandleQueryAggregation)
	r.POST("/v1/aggregations/:name/flush", s.HandleFlush)
	r.DELETE("/v1/aggregations/:name/buckets", s.HandlePurge)
}

// HandleListAggregations handles GET /v1/aggregations
func (s *Service) HandleListAggregations(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"aggregations": s.Definitions()})
}

// HandleQueryAggregation handles GET /v1/aggregations/:name
// Query parameters: start, end, granularity, group (repeat once per group_by column)
func (s *Service) HandleQueryAggregation(c *gin.Context) {
	var query struct {
		Start       time.Time `form:"start" binding:"required" time_format:"2006-01-02T15:04:05Z07:00"`
		End         time.Time `form:"end" time_format:"2006-01-02T15:04:05Z07:00"`
		Granularity string    `form:"granularity"`
		Group       []string  `form:"group"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidJsonError,
			Message:   "Invalid query parameters",
			Details:   err.Error(),
		})
		return
	}

	resp, err := s.Query(c.Request.Context(), QueryRequest{
		Aggregation: c.Param("name"),
		Start:       query.Start,
		End:         query.End,
		Granularity: query.Granularity,
		Group:       query.Group,
	})
	if err != nil {
		writeError(c, "Failed to query aggregation", err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// HandleFlush handles POST /v1/aggregations/:name/flush
func (s *Service) HandleFlush(c *gin.Context) {
	chain, err := s.Chain(c.Param("name"))
	if err != nil {
		writeError(c, "Failed to flush aggregation", err)
		return
	}
	if !chain.Ready() {
		writeError(c, "Failed to flush aggregation", httperr.ErrNotReady)
		return
	}
	if err := chain.FlushAll(c.Request.Context()); err != nil {
		writeError(c, "Failed to flush aggregation", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"aggregation": chain.Name(), "status": "flushed"})
}

// HandlePurge handles DELETE /v1/aggregations/:name/buckets
// Query parameters: granularity, before
func (s *Service) HandlePurge(c *gin.Context) {
	var query struct {
		Granularity string    `form:"granularity" binding:"required"`
		Before      time.Time `form:"before" binding:"required" time_format:"2006-01-02T15:04:05Z07:00"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidJsonError,
			Message:   "Invalid query parameters",
			Details:   err.Error(),
		})
		return
	}

	chain, err := s.Chain(c.Param("name"))
	if err != nil {
		writeError(c, "Failed to purge buckets", err)
		return
	}
	level, err := granularity.ParseLevel(query.Granularity)
	if err == nil && !chain.Definition().HasLevel(level) {
		err = invalidQueryf("aggregation %s does not maintain %s", chain.Name(), level)
	} else if err != nil {
		err = invalidQueryf("%v", err)
	}
	if err != nil {
		writeError(c, "Failed to purge buckets", err)
		return
	}
	if !chain.Ready() {
		writeError(c, "Failed to purge buckets", httperr.ErrNotReady)
		return
	}

	removed, effective, err := chain.PurgeBefore(c.Request.Context(), level, query.Before)
	if err != nil {
		writeError(c, "Failed to purge buckets", err)
		return
	}
	c.JSON(http.StatusOK, PurgeResponse{
		Aggregation:     chain.Name(),
		Granularity:     level.String(),
		Removed:         removed,
		EffectiveCutoff: effective,
	})
}

func writeError(c *gin.Context, message string, err error) {
	status, errorType := http.StatusInternalServerError, httperr.HttpInternalError
	switch {
	case errors.Is(err, ErrInvalidQuery):
		status, errorType = http.StatusBadRequest, httperr.HttpInvalidJsonError
	case errors.Is(err, httperr.ErrInvalidTimestamp):
		status, errorType = http.StatusBadRequest, httperr.HttpInvalidTimestampError
	case errors.Is(err, httperr.ErrUnknownAggregation):
		status, errorType = http.StatusNotFound, httperr.HttpUnknownAggregationError
	case errors.Is(err, httperr.ErrNotReady):
		status, errorType = http.StatusServiceUnavailable, httperr.HttpNotReadyError
	case errors.Is(err, httperr.ErrPersistence):
		status, errorType = http.StatusServiceUnavailable, httperr.HttpPersistenceError
	}
	c.JSON(status, httperr.ErrorResponse{
		ErrorType: errorType,
		Message:   message,
		Details:   err.Error(),
	})
}
