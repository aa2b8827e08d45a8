package common

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stratastor/logger"

	"github.com/tinkershack/drive-revenant/config"
	"github.com/tinkershack/drive-revenant/pkg/errors"
)

// Global logger
var Log logger.Logger

func init() {
	var err error
	Log, err = logger.NewTag(config.NewLoggerConfig(config.GetConfig()), "global")
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
}

// UUID7 generates a new UUID using V7, falling back to V4 if V7 errors.
func UUID7() string {
	uv7, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return uv7.String()
}

// APIError writes a structured error response and aborts the gin context.
func APIError(c *gin.Context, err error) {
	if revErr, ok := err.(*errors.RodentError); ok {
		if revErr.Metadata == nil {
			revErr.Metadata = map[string]string{}
		}
		c.JSON(revErr.HTTPStatus, gin.H{
			"error": gin.H{
				"code":      revErr.Code,
				"domain":    revErr.Domain,
				"message":   revErr.Message,
				"details":   revErr.Details,
				"metadata":  revErr.Metadata,
				"timestamp": time.Now().Format(time.RFC3339),
			},
		})
	} else {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"message":   err.Error(),
				"timestamp": time.Now().Format(time.RFC3339),
			},
		})
	}
	c.Abort()
}

// ReadResetBody reads and resets the request body so it can be re-read by subsequent handlers.
func ReadResetBody(c *gin.Context) ([]byte, error) {
	body, err := c.GetRawData()
	if err != nil {
		return nil, err
	}
	c.Request.Body = io.NopCloser(bytes.NewBuffer(body))
	return body, nil
}

// ResetBody resets the request body so it can be re-read by subsequent handlers.
func ResetBody(c *gin.Context, body []byte) {
	c.Request.Body = io.NopCloser(bytes.NewBuffer(body))
}
