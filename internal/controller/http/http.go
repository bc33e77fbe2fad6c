package http

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"mpu_telemetry/internal/telemetry"
)

// Telemetry is the part of the telemetry loop exposed over the control API.
type Telemetry interface {
	Status() telemetry.Status
	Interval() *telemetry.Interval
	SetInterval(ms uint32) uint32
}

type IntervalReq struct {
	Interval *uint32 `json:"interval" binding:"required"`
}

func NewRouter(t Telemetry, room *Room) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, t.Status())
	})

	router.GET("/interval", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"interval": t.Interval().Get(),
		})
	})

	router.PUT("/interval", func(c *gin.Context) {
		req := IntervalReq{}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"err": err.Error(),
			})
			return
		}
		effective := t.SetInterval(*req.Interval)
		c.JSON(http.StatusOK, gin.H{
			"err":      nil,
			"interval": effective,
		})
	})

	if room != nil {
		router.GET("/ws", func(c *gin.Context) {
			room.ServeHTTP(c.Writer, c.Request)
		})
	}
	return router
}

// Serve runs the control API until ctx is cancelled.
func Serve(ctx context.Context, iface string, port int, t Telemetry, room *Room) error {
	if room != nil {
		go room.Run(ctx)
	}
	srv := &http.Server{
		Addr:    net.JoinHostPort(iface, strconv.Itoa(port)),
		Handler: NewRouter(t, room),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infoln("control api listening on", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
