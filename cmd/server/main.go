package main

import (
	"go.uber.org/zap"

	"github.com/charjee-official/Charjee-Apk-sub000/internal/app/bootstrap"
	cfgpkg "github.com/charjee-official/Charjee-Apk-sub000/internal/config"
	"github.com/charjee-official/Charjee-Apk-sub000/internal/logging"
)

func main() {
	// 1) 加载配置
	cfg, err := cfgpkg.Load("")
	if err != nil {
		panic(err)
	}

	// 2) 初始化日志
	logger, err := logging.InitLogger(cfg.Logging)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	// 3) 统一启动流程
	if err := bootstrap.Run(cfg, zap.L()); err != nil {
		zap.L().Fatal("server exited with error", zap.Error(err))
	}
}
