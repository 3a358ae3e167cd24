package tool

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/moyoez/codesync-go/types"
)

func FastReturnError(msg string) gin.H {
	return gin.H{
		"error": msg,
	}
}

func FastReturnSuccess() gin.H {
	return gin.H{
		"status": "ok",
	}
}

// ErrorStatus maps a domain error onto an HTTP status code.
func ErrorStatus(err error) int {
	switch {
	case errors.Is(err, types.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, types.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, types.ErrNotAFile),
		errors.Is(err, types.ErrNotAFolder),
		errors.Is(err, types.ErrInvalidOperation),
		errors.Is(err, types.ErrBadRequest),
		errors.Is(err, types.ErrUnsupportedFileType):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// AbortWithError writes the mapped status and {"error": msg}.
func AbortWithError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(ErrorStatus(err), FastReturnError(err.Error()))
}
