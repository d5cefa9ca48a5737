package router

import (
	"context"
	"errors"
	"strconv"

	"cv-insight-go/internal/api/handler"
	"cv-insight-go/internal/blueprint"
	"cv-insight-go/internal/config"
	"cv-insight-go/internal/logger"
	"cv-insight-go/internal/tracing"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/hertz-contrib/keyauth"
	"go.opentelemetry.io/otel/trace"
)

// RegisterRoutes 注册 API 路由
func RegisterRoutes(h *server.Hertz, cfg *config.Config, blueprintHandler *handler.BlueprintHandler) {
	api := h.Group("/api/v1")

	// 配置了API Key时启用鉴权中间件，健康检查除外
	if cfg.Server.APIKey != "" {
		api.Use(keyauth.New(
			keyauth.WithKeyLookUp("header:Authorization", "Bearer"),
			keyauth.WithValidator(func(ctx context.Context, c *app.RequestContext, key string) (bool, error) {
				return key == cfg.Server.APIKey, nil
			}),
		))
	}

	api.POST("/cv/upload", func(c context.Context, ctx *app.RequestContext) {
		userID := ctx.PostForm("user_id")
		if userID == "" {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": "缺少user_id"})
			return
		}

		fileHeader, err := ctx.FormFile("file")
		if err != nil {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": "文件未找到"})
			return
		}

		file, err := fileHeader.Open()
		if err != nil {
			ctx.JSON(consts.StatusInternalServerError, utils.H{"error": "打开文件失败"})
			return
		}
		defer file.Close()

		resp, err := blueprintHandler.HandleCVUpload(c, userID, file, fileHeader.Size, fileHeader.Filename)
		if err != nil {
			writeError(c, ctx, err)
			return
		}
		ctx.JSON(consts.StatusOK, resp)
	})

	api.GET("/blueprint/:user_id", func(c context.Context, ctx *app.RequestContext) {
		userID := ctx.Param("user_id")
		resp, err := blueprintHandler.GetBlueprint(c, userID)
		if err != nil {
			writeError(c, ctx, err)
			return
		}
		ctx.JSON(consts.StatusOK, resp)
	})

	api.GET("/blueprint/:user_id/history", func(c context.Context, ctx *app.RequestContext) {
		userID := ctx.Param("user_id")
		limit, _ := strconv.Atoi(ctx.Query("limit"))
		offset, _ := strconv.Atoi(ctx.Query("offset"))
		includeSnapshots := ctx.Query("include_snapshots") == "true"

		resp, err := blueprintHandler.GetBlueprintHistory(c, userID, limit, offset, includeSnapshots)
		if err != nil {
			writeError(c, ctx, err)
			return
		}
		ctx.JSON(consts.StatusOK, resp)
	})

	// 健康检查不经过鉴权
	h.GET("/api/v1/health", func(c context.Context, ctx *app.RequestContext) {
		ctx.JSON(consts.StatusOK, utils.H{"status": "ok"})
	})
}

// writeError 将业务错误映射为HTTP状态码
// 错误分类区分调用方错误(4xx)、环境未就绪(503)和其他服务端错误(500)
func writeError(c context.Context, ctx *app.RequestContext, err error) {
	switch {
	case errors.Is(err, handler.ErrRateLimited):
		ctx.JSON(consts.StatusTooManyRequests, utils.H{"error": "上传频率超出限制，请稍后重试"})
	case errors.Is(err, blueprint.ErrInvalidExtraction):
		ctx.JSON(consts.StatusUnprocessableEntity, utils.H{"error": err.Error()})
	case errors.Is(err, blueprint.ErrBlueprintNotFound):
		ctx.JSON(consts.StatusNotFound, utils.H{"error": "蓝图不存在"})
	case errors.Is(err, blueprint.ErrVersionConflict):
		ctx.JSON(consts.StatusConflict, utils.H{"error": "蓝图并发更新冲突，请重试"})
	case errors.Is(err, blueprint.ErrStoreNotProvisioned):
		// 与一般性存储故障区分：schema未建时给出明确的修复指引
		ctx.JSON(consts.StatusServiceUnavailable, utils.H{
			"error":       "蓝图存储未初始化",
			"remediation": "请确认数据库schema已创建（服务启动时自动迁移，检查MySQL配置与权限）",
		})
	default:
		tracing.RecordHTTPError(trace.SpanFromContext(c), err, consts.StatusInternalServerError)
		logger.Ctx(c).Error().Err(err).Msg("请求处理失败")
		ctx.JSON(consts.StatusInternalServerError, utils.H{"error": "内部错误"})
	}
}
