// Package api wires up the Gin HTTP control plane: cluster membership
// and health endpoints. Adapted from the teacher's api.Handler
// (internal/api/handlers.go in ppriyankuu-godkv), trimmed of the
// KV-specific Put/Get/Delete/InternalReplicate/InternalFetch handlers —
// the data plane now runs over internal/gateway's binary wire protocol,
// not HTTP, so the object read/write/remove/decref verbs have no gin
// route here at all.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sheepgate/gateway/internal/cluster"
)

// Handler holds the dependencies the control plane needs.
type Handler struct {
	membership *cluster.Membership
	selfID     cluster.NodeID
}

// NewHandler creates a Handler.
func NewHandler(membership *cluster.Membership, selfID cluster.NodeID) *Handler {
	return &Handler{membership: membership, selfID: selfID}
}

// Register mounts every control-plane route on r.
func (h *Handler) Register(r *gin.Engine) {
	clusterGroup := r.Group("/cluster")
	clusterGroup.POST("/join", h.Join)
	clusterGroup.POST("/leave", h.Leave)
	clusterGroup.GET("/nodes", h.ListNodes)

	r.GET("/healthz", h.Health)
}

// Join handles POST /cluster/join.
// Body: {"id": "<nodeID>", "address": "<host:port>"}
func (h *Handler) Join(c *gin.Context) {
	var body struct {
		ID      string `json:"id" binding:"required"`
		Address string `json:"address" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	view := h.membership.Join(cluster.Node{ID: cluster.NodeID(body.ID), Address: body.Address, Alive: true})
	c.JSON(http.StatusOK, gin.H{"joined": body.ID, "epoch": view.Epoch})
}

// Leave handles POST /cluster/leave.
// Body: {"id": "<nodeID>"}
func (h *Handler) Leave(c *gin.Context) {
	var body struct {
		ID string `json:"id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	view := h.membership.Leave(cluster.NodeID(body.ID))
	c.JSON(http.StatusOK, gin.H{"left": body.ID, "epoch": view.Epoch})
}

// ListNodes handles GET /cluster/nodes.
func (h *Handler) ListNodes(c *gin.Context) {
	view := h.membership.CurrentView()
	c.JSON(http.StatusOK, gin.H{"nodes": h.membership.All(), "epoch": view.Epoch})
}

// Health handles GET /healthz — used by load balancers and readiness
// probes, matching the teacher's /health endpoint.
func (h *Handler) Health(c *gin.Context) {
	view := h.membership.CurrentView()
	c.JSON(http.StatusOK, gin.H{
		"node":      h.selfID,
		"status":    "ok",
		"epoch":     view.Epoch,
		"live_node": view.LiveNodeCount(),
	})
}
