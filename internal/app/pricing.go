package app

import (
	"go.uber.org/zap"

	cfgpkg "github.com/charjee-official/Charjee-Apk-sub000/internal/config"
	"github.com/charjee-official/Charjee-Apk-sub000/internal/pricing"
	"github.com/charjee-official/Charjee-Apk-sub000/internal/storage/gormrepo"
)

// NewPricingProvider 组装费率源：数据库费率表优先，启动加载的 YAML 表兜底。
// YAML 表缺失或未配置时只用数据库。
func NewPricingProvider(repo *gormrepo.Repository, cfg cfgpkg.PricingConfig, log *zap.Logger) pricing.Provider {
	chain := pricing.Chain{repo}
	if cfg.TableFile != "" {
		table, err := pricing.LoadFile(cfg.TableFile)
		if err != nil {
			log.Warn("load pricing table failed", zap.String("path", cfg.TableFile), zap.Error(err))
		} else {
			chain = append(chain, table)
			log.Info("pricing table loaded", zap.String("path", cfg.TableFile))
		}
	}
	return chain
}
