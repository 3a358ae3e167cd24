package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/moyoez/codesync-go/api/middlewares"
	"github.com/moyoez/codesync-go/auth"
	"github.com/moyoez/codesync-go/tool"
	"github.com/moyoez/codesync-go/types"
)

type UserController struct {
	auth *auth.Auth
}

func NewUserController(a *auth.Auth) *UserController {
	return &UserController{auth: a}
}

func (ctrl *UserController) HandleRegister(c *gin.Context) {
	var req types.AuthRequest
	if !bindJSON(c, &req) {
		return
	}
	user, err := ctrl.auth.Register(c.Request.Context(), req)
	if err != nil {
		tool.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func (ctrl *UserController) HandleLogin(c *gin.Context) {
	var req types.AuthRequest
	if !bindJSON(c, &req) {
		return
	}
	resp, err := ctrl.auth.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		tool.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// HandleLogout revokes the presented token. Requires a valid token.
func (ctrl *UserController) HandleLogout(c *gin.Context) {
	ctrl.auth.Revoke(auth.ExtractToken(c.GetHeader("Authorization")))
	c.JSON(http.StatusOK, tool.FastReturnSuccess())
}

// HandleMe returns the token holder. Requires a valid token.
func (ctrl *UserController) HandleMe(c *gin.Context) {
	claims, ok := middlewares.Claims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, tool.FastReturnError("Unauthorized"))
		return
	}
	var expires time.Time
	if claims.ExpiresAt != nil {
		expires = claims.ExpiresAt.Time
	}
	c.JSON(http.StatusOK, gin.H{"username": claims.Username, "expiresAt": expires})
}

func HandlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
}
