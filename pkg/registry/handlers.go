package registry

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// registerRequest is the body of POST /register (spec §6).
type registerRequest struct {
	Role         string   `json:"role" binding:"required"`
	Endpoint     string   `json:"endpoint" binding:"required"`
	Capabilities []string `json:"capabilities"`
}

// descriptorResponse mirrors Descriptor for JSON responses.
type descriptorResponse struct {
	Role                string   `json:"role"`
	Endpoint            string   `json:"endpoint"`
	Capabilities        []string `json:"capabilities"`
	LastSeen            string   `json:"last_seen"`
	Status              Status   `json:"status"`
	ConsecutiveFailures int      `json:"consecutive_failures"`
}

// RegisterRoutes mounts the C1 HTTP surface onto an existing gin router:
// POST /register, GET /servers, GET /health.
func (r *Registry) RegisterRoutes(rg gin.IRouter) {
	rg.POST("/register", r.handleRegister)
	rg.GET("/servers", r.handleServers)
	rg.GET("/health", r.handleHealth)
}

func (r *Registry) handleRegister(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := r.Register(c.Request.Context(), req.Role, req.Endpoint, req.Capabilities); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "registered"})
}

func (r *Registry) handleServers(c *gin.Context) {
	role := c.Query("role")
	descs := r.Servers(role)

	out := make([]descriptorResponse, 0, len(descs))
	for _, d := range descs {
		out = append(out, descriptorResponse{
			Role:                d.Role,
			Endpoint:            d.Endpoint,
			Capabilities:        d.Capabilities,
			LastSeen:            d.LastSeen.Format(httpTimeFormat),
			Status:              d.Status,
			ConsecutiveFailures: d.ConsecutiveFailures,
		})
	}
	c.JSON(http.StatusOK, gin.H{"servers": out})
}

func (r *Registry) handleHealth(c *gin.Context) {
	all := r.Servers("")
	healthy := 0
	for _, d := range all {
		if d.Status == StatusHealthy {
			healthy++
		}
	}
	c.JSON(http.StatusOK, gin.H{"total": len(all), "healthy": healthy})
}

const httpTimeFormat = "2006-01-02T15:04:05Z07:00"
