package api

import (
	"github.com/Domenick1991/cabinbooking/internal/apperr"
	"github.com/gin-gonic/gin"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// writeError renders err as its user-facing category. Internal detail stays in the logs.
func writeError(c *gin.Context, err error) {
	c.JSON(apperr.HTTPStatus(err), errorResponse{
		Error:   apperr.Kind(err),
		Message: apperr.Message(err),
	})
}
