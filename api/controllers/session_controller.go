package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/moyoez/codesync-go/presence"
	"github.com/moyoez/codesync-go/session"
	"github.com/moyoez/codesync-go/tool"
	"github.com/moyoez/codesync-go/types"
)

type SessionController struct {
	registry  *session.Registry
	presence  *presence.Tracker
	publicURL string
}

func NewSessionController(registry *session.Registry, p *presence.Tracker, publicURL string) *SessionController {
	return &SessionController{registry: registry, presence: p, publicURL: publicURL}
}

// HandleCreate creates a session. The body is optional; a missing name is generated.
func (ctrl *SessionController) HandleCreate(c *gin.Context) {
	var req types.CreateSessionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, tool.FastReturnError("Invalid request body: "+err.Error()))
			return
		}
	}
	s := ctrl.registry.Create(req.SessionName)
	c.JSON(http.StatusCreated, s.Response(0))
}

func (ctrl *SessionController) HandleList(c *gin.Context) {
	sessions := ctrl.registry.List()
	out := make([]types.SessionResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Response(ctrl.presence.Count(s.PublicID)))
	}
	c.JSON(http.StatusOK, out)
}

// HandleGet returns the legacy flat bootstrap listing.
func (ctrl *SessionController) HandleGet(c *gin.Context) {
	s, err := ctrl.registry.Get(c.Param("id"))
	if err != nil {
		tool.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, types.LegacySessionResponse{
		PublicID:    s.PublicID,
		SessionName: s.Name,
		Files:       s.Tree.Flat(),
	})
}

func (ctrl *SessionController) HandleDelete(c *gin.Context) {
	if err := ctrl.registry.Delete(c.Request.Context(), c.Param("id")); err != nil {
		tool.AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (ctrl *SessionController) HandleParticipants(c *gin.Context) {
	s, err := ctrl.registry.Get(c.Param("id"))
	if err != nil {
		tool.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"publicId":     s.PublicID,
		"participants": ctrl.presence.Roster(s.PublicID),
		"connections":  ctrl.presence.Participants(s.PublicID),
	})
}

// HandleChat returns the retained chat history, oldest first.
func (ctrl *SessionController) HandleChat(c *gin.Context) {
	s, err := ctrl.registry.Get(c.Param("id"))
	if err != nil {
		tool.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.Chat())
}
