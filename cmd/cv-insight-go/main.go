package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cv-insight-go/internal/api/handler"
	"cv-insight-go/internal/api/router"
	"cv-insight-go/internal/blueprint"
	"cv-insight-go/internal/config"
	"cv-insight-go/internal/extractor"
	"cv-insight-go/internal/logger"
	"cv-insight-go/internal/outbox"
	"cv-insight-go/internal/storage"
	"cv-insight-go/internal/tracing"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	hertzzerolog "github.com/hertz-contrib/logger/zerolog"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"
	"github.com/spf13/pflag"
)

func main() {
	configPath := pflag.String("config", "", "配置文件路径")
	pflag.Parse()

	// 1. 加载配置文件
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Init(logger.Config{Level: "info", Format: "pretty"})
		logger.Fatal().Err(err).Msg("加载配置文件失败")
	}

	// 2. 初始化日志系统
	initLogger(cfg)

	// 3. 初始化追踪导出
	ctx := context.Background()
	shutdownTracing, err := tracing.InitTracerProvider(ctx, &cfg.Tracing)
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化追踪导出失败")
	}

	// 4. 初始化存储管理器
	storageManager, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化存储管理器失败")
	}
	defer storageManager.Close()

	// 5. 组装CV处理流水线
	blueprintHandler, err := buildHandler(ctx, cfg, storageManager)
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化蓝图处理器失败")
	}
	logger.Info().Msg("蓝图处理器初始化成功")

	// 6. 启动发件箱中继（仅当RabbitMQ可用时）
	var relay *outbox.MessageRelay
	if storageManager.RabbitMQ != nil {
		relay = outbox.NewMessageRelay(storageManager.MySQL.DB(), storageManager.RabbitMQ)
		relay.Start()
	} else {
		logger.Warn().Msg("RabbitMQ未配置，蓝图更新事件不会对外发布")
	}

	// 7. 创建HTTP服务器
	serverTracer, tracerCfg := hertztracing.NewServerTracer()
	h := server.Default(
		serverTracer,
		server.WithHostPorts(cfg.Server.Address),
	)
	h.Use(hertztracing.ServerMiddleware(tracerCfg))

	router.RegisterRoutes(h, cfg, blueprintHandler)

	go func() {
		if err := h.Run(); err != nil {
			logger.Fatal().Err(err).Msg("启动HTTP服务器失败")
		}
	}()
	logger.Info().Str("address", cfg.Server.Address).Msg("HTTP服务器已启动")

	// 8. 等待终止信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("接收到终止信号，正在优雅退出...")

	// 9. 按依赖顺序关闭：HTTP → 中继 → 追踪
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := h.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP服务器关闭失败")
	}
	if relay != nil {
		relay.Stop()
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("追踪导出关闭失败")
	}

	logger.Info().Msg("优雅退出完成")
}

// initLogger 初始化zerolog并接管hertz内部日志
func initLogger(cfg *config.Config) {
	logConfig := cfg.Logger
	if logConfig.Level == "" {
		logConfig.Level = "info"
	}
	if logConfig.Format == "" {
		if os.Getenv("ENV") == "production" {
			logConfig.Format = "json"
		} else {
			logConfig.Format = "pretty"
		}
	}
	logger.Init(logConfig)

	logger.Logger = logger.Logger.With().
		Str("app", "cv-insight-go").
		Logger()

	hlog.SetLogger(hertzzerolog.New())
	hlog.SetLevel(hlog.LevelInfo)
}

// buildHandler 组装文本提取、LLM结构化提取和蓝图合并编排器
func buildHandler(ctx context.Context, cfg *config.Config, storageManager *storage.Storage) (*handler.BlueprintHandler, error) {
	chatModel, err := extractor.NewOpenAICompatChatModel(cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.APIURL)
	if err != nil {
		return nil, err
	}

	cvExtractor := extractor.NewLLMCVExtractor(chatModel,
		extractor.WithCallTimeout(cfg.LLM.ExtractionTimeoutDuration()),
		extractor.WithMaxRetries(cfg.LLM.MaxRetries),
	)

	textExtractor, err := extractor.NewPDFTextExtractor(ctx)
	if err != nil {
		return nil, err
	}

	merger := blueprint.NewMerger(storageManager.MySQL)

	return handler.NewBlueprintHandler(cfg, storageManager, textExtractor, cvExtractor, merger), nil
}
