// Package logging sets up the logrus logger shared by the service and its HTTP middleware.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// RequestIDHeader carries the id of a request in both directions.
const RequestIDHeader = "X-Request-ID"

// requestIDKey is the gin context key under which the request id is stored.
const requestIDKey = "requestID"

// New returns a logger writing to stdout. Unknown levels fall back to info, any format other
// than "text" yields JSON.
func New(level string, format string) *logrus.Logger {
	return NewWithOutput(os.Stdout, level, format)
}

// NewWithOutput is New with a custom destination.
func NewWithOutput(out io.Writer, level string, format string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(out)
	if strings.EqualFold(format, "text") {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)
	return logger
}

// RequestID assigns every request an id, taken from the X-Request-ID header when the client
// sent one, and echoes it in the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// RequestLogger logs one entry per request, replacing gin's default logger.
func RequestLogger(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		entry := FromContext(c, logger).WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
			"client":   c.ClientIP(),
		})
		switch {
		case c.Writer.Status() >= 500:
			entry.Error("request failed")
		case c.Writer.Status() >= 400:
			entry.Warn("request rejected")
		default:
			entry.Info("request handled")
		}
	}
}

// FromContext returns logger annotated with the request id of c, if any.
func FromContext(c *gin.Context, logger logrus.FieldLogger) logrus.FieldLogger {
	if id := c.GetString(requestIDKey); id != "" {
		return logger.WithField("request_id", id)
	}
	return logger
}
