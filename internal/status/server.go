// Package status exposes a read-only HTTP view of a running robot.
package status

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"suptrading/internal/market"
	"suptrading/internal/robot"
)

// Source is what the endpoints read from the robot.
type Source interface {
	State() robot.State
	Snapshot() []market.Row
}

// Router builds the read-only endpoint set.
func Router(src Source) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/state", func(c *gin.Context) {
		c.JSON(200, gin.H{"state": src.State().String()})
	})
	r.GET("/snapshot", func(c *gin.Context) {
		c.JSON(200, gin.H{"rows": src.Snapshot()})
	})
	return r
}

// Serve starts the status endpoints on addr in a background goroutine.
// The server lives for the rest of the process; the robot's exit ends it.
func Serve(addr string, src Source, log *logrus.Logger) {
	r := Router(src)
	go func() {
		if err := r.Run(addr); err != nil {
			log.Errorf("status server stopped: %v", err)
		}
	}()
	log.Infof("status server listening on %s", addr)
}
