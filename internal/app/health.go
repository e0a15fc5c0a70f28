package app

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/charjee-official/Charjee-Apk-sub000/internal/health"
)

// NewHealthAggregator 创建健康检查聚合器
func NewHealthAggregator(dbpool *pgxpool.Pool) *health.Aggregator {
	// 初始时只添加数据库检查器
	return health.NewAggregator(
		health.NewDatabaseChecker(dbpool),
	)
}

// RegisterHealthRoutes 注册健康检查HTTP路由
func RegisterHealthRoutes(r *gin.Engine, aggregator *health.Aggregator) {
	health.RegisterHTTPRoutes(r, aggregator)
}
