package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/geopost/utils"
)

// MetaController serves liveness and greeting endpoints.
type MetaController struct {
	db *gorm.DB
}

func NewMetaController(db *gorm.DB) *MetaController {
	return &MetaController{db: db}
}

// Health reports ok while the database answers a ping.
func (m *MetaController) Health(ctx *gin.Context) {
	if m.db != nil {
		sqlDB, err := m.db.DB()
		if err == nil {
			pingCtx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
			err = sqlDB.PingContext(pingCtx)
			cancel()
		}
		if err != nil {
			utils.Sugar.Warnw("health check: database unreachable", "error", err)
			utils.Respond(ctx, http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	utils.Success(ctx, gin.H{"status": "ok"})
}

func (m *MetaController) Hello(ctx *gin.Context) {
	utils.Success(ctx, gin.H{"message": "hello from backend"})
}
