package ingestion

import (
	"github.com/gin-gonic/gin"

	rollup "github.com/aevon-lab/aevon-rollup/internal/aggregation"
)

// Service routes incoming events to the chains whose source event matches the event type.
type Service struct {
	bySource         map[string][]*rollup.Chain
	maxBodySizeBytes int
}

func NewService(chains []*rollup.Chain, maxBodySizeMB int) *Service {
	if maxBodySizeMB <= 0 {
		maxBodySizeMB = 1 // default to 1MB
	}
	bySource := make(map[string][]*rollup.Chain)
	for _, c := range chains {
		src := c.Definition().SourceEvent
		bySource[src] = append(bySource[src], c)
	}
	return &Service{
		bySource:         bySource,
		maxBodySizeBytes: maxBodySizeMB * 1024 * 1024,
	}
}

// RegisterRoutes registers the ingestion service routes.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.POST("/v1/events", s.IngestHandler)
}
