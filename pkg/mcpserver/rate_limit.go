package mcpserver

import (
	"github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/time/rate"
)

// newRateLimiter allows requestsPerMinute tool calls per minute with a burst
// of the same size. It returns nil when limiting is disabled.
func newRateLimiter(requestsPerMinute int) *rate.Limiter {
	if requestsPerMinute <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60), requestsPerMinute)
}

func (s *MCPServer) enforceRateLimit() *mcp.CallToolResult {
	if s.limiter == nil {
		return nil
	}
	if !s.limiter.Allow() {
		return mcp.NewToolResultError("rate limit exceeded")
	}
	return nil
}
