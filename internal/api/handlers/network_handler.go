package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// connectTimeout bounds a connect request's dial.
const connectTimeout = 10 * time.Second

// NetworkHandler handles peer listing and dialing
type NetworkHandler struct {
	network Network
}

// NewNetworkHandler creates a new NetworkHandler
func NewNetworkHandler(network Network) *NetworkHandler {
	return &NetworkHandler{network: network}
}

type connectRequest struct {
	PeerURL string `json:"peerUrl" binding:"required"`
}

// Peers lists connected peers
// GET /api/network/peers
func (h *NetworkHandler) Peers(c *gin.Context) {
	peers := h.network.Peers()
	c.JSON(http.StatusOK, gin.H{
		"peers": peers,
		"count": len(peers),
	})
}

// Connect dials a peer
// POST /api/network/connect
func (h *NetworkHandler) Connect(c *gin.Context) {
	var req connectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "peerUrl is required")
		return
	}
	if !strings.HasPrefix(req.PeerURL, "ws://") && !strings.HasPrefix(req.PeerURL, "wss://") {
		badRequest(c, "peerUrl must be a ws:// or wss:// URL")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), connectTimeout)
	defer cancel()

	if err := h.network.Connect(ctx, req.PeerURL); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Connected to peer",
		"peerUrl": req.PeerURL,
	})
}
