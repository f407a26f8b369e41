package server

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/raphaelgruber/reelimport/internal/models"
)

const writeWait = 5 * time.Second

// StreamMessage is one frame of the progress stream.
type StreamMessage struct {
	Report *models.ProgressReport `json:"report,omitempty"`
	Error  string                 `json:"error,omitempty"`
}

// streamProgress pushes a progress report immediately and then every
// streamInterval until the client disconnects.
func (s *Server) streamProgress(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("progress stream upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx := c.Request.Context()

	// The reader only exists to notice the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.streamInterval)
	defer ticker.Stop()

	for {
		if err := s.pushReport(c, conn); err != nil {
			s.logger.Debug("progress stream closed", "error", err)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-gone:
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) pushReport(c *gin.Context, conn *websocket.Conn) error {
	var msg StreamMessage
	report, err := s.op.Report(c.Request.Context())
	if err != nil {
		msg.Error = err.Error()
	} else {
		msg.Report = &report
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(msg)
}
