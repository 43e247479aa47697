package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/imrishuroy/leadflow/internal/logging"
)

// RequestIDHeader carries the correlation id in both directions.
const RequestIDHeader = "X-Request-ID"

const requestIDKey = "request_id"

// RequestID tags every request with a correlation id. A caller-supplied id is
// kept when it is a UUID; anything else is replaced.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// requestLog returns a log entry carrying the request's correlation id.
func requestLog(c *gin.Context) *logrus.Entry {
	if id := c.GetString(requestIDKey); id != "" {
		return logging.Logger.WithField(requestIDKey, id)
	}
	return logging.Logger.WithFields(logrus.Fields{})
}
