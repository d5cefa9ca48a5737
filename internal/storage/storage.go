package storage

import (
	"context"
	"fmt"

	"cv-insight-go/internal/config"
	"cv-insight-go/internal/logger"
)

// Storage 存储管理器，聚合所有存储相关依赖
type Storage struct {
	// 关系型数据库（蓝图、变更账本、提交台账、发件箱）
	MySQL *MySQL

	// 键值存储（去重集合与限流）
	Redis *Redis

	// 对象存储（CV原始文件与解析文本）
	MinIO *MinIO

	// 消息队列（蓝图事件）
	RabbitMQ *RabbitMQ
}

// NewStorage 创建存储管理器
// MySQL是硬依赖，初始化失败直接返回错误；其余组件按配置逐个拉起
func NewStorage(ctx context.Context, cfg *config.Config) (*Storage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("配置不能为空")
	}

	s := &Storage{}
	var err error

	if cfg.MySQL.Host == "" {
		return nil, fmt.Errorf("MySQL未配置，无法提供蓝图存储")
	}
	s.MySQL, err = NewMySQL(&cfg.MySQL)
	if err != nil {
		return nil, fmt.Errorf("初始化MySQL失败: %w", err)
	}
	s.MySQL.WithOutboxTarget(cfg.RabbitMQ.BlueprintEventsExchange, cfg.RabbitMQ.UpdatedRoutingKey)

	if cfg.Redis.Address != "" {
		s.Redis, err = NewRedisAdapter(&cfg.Redis)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("初始化Redis失败: %w", err)
		}
	} else {
		logger.Warn().Msg("Redis未配置，文件去重与上传限流不可用")
	}

	if cfg.MinIO.Endpoint != "" {
		s.MinIO, err = NewMinIO(&cfg.MinIO)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("初始化MinIO失败: %w", err)
		}
	} else {
		logger.Warn().Msg("MinIO未配置，CV原始文件不落对象存储")
	}

	if cfg.RabbitMQ.URL != "" {
		s.RabbitMQ, err = NewRabbitMQ(&cfg.RabbitMQ)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("初始化RabbitMQ失败: %w", err)
		}
		if err := s.RabbitMQ.SetupBlueprintTopology(); err != nil {
			s.Close()
			return nil, fmt.Errorf("声明蓝图事件拓扑失败: %w", err)
		}
	} else {
		logger.Warn().Msg("RabbitMQ未配置，蓝图事件不会被投递")
	}

	return s, nil
}

// Close 关闭所有连接
func (s *Storage) Close() {
	if s.RabbitMQ != nil {
		if err := s.RabbitMQ.Close(); err != nil {
			logger.Error().Err(err).Msg("关闭RabbitMQ连接失败")
		}
	}
	if s.MySQL != nil {
		if err := s.MySQL.Close(); err != nil {
			logger.Error().Err(err).Msg("关闭MySQL连接失败")
		}
	}
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			logger.Error().Err(err).Msg("关闭Redis连接失败")
		}
	}
	// MinIO客户端无需显式关闭
}
