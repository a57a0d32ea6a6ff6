package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	https_server "SemHub/api/http"
	"SemHub/internal/config"
	"SemHub/pkg/zlog"
)

func main() {
	configPath := flag.String("config", "configs/config_local.toml", "配置文件路径")
	flag.Parse()

	// 1. 加载配置
	conf, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	zlog.Init(conf.LogConfig.LogPath)
	defer zlog.Sync()

	// 2. 组装依赖
	srv, err := https_server.BuildServer(conf)
	if err != nil {
		zlog.Fatal("初始化失败: " + err.Error())
		return
	}

	// 3. 启动 HTTP 服务
	go func() {
		addr := fmt.Sprintf("%s:%d", conf.MainConfig.Host, conf.MainConfig.Port)
		zlog.Info(fmt.Sprintf("服务器正在启动，监听地址: %s", addr))
		// 目前使用 HTTP 启动。如果需要 HTTPS，请配置证书并使用 RunTLS
		if err := srv.Engine.Run(addr); err != nil {
			zlog.Fatal("服务器启动失败: " + err.Error())
			return
		}
	}()

	// 4. 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zlog.Info("正在关闭服务器...")
	srv.Close()
	zlog.Info("服务器已关闭")
}
