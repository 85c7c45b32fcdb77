package dbpool

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Pool 连接池基本方法
type Pool interface {
	// 取一个连接
	Get(ctx context.Context) (Conn, error)
	// 连接放回去
	Put(conn Conn)
	// 清理过期连接和闲置太久的连接
	Cleanup()
	// 关闭空闲队列里的所有连接
	CloseAll()
	// 当前空闲连接数量
	Len() int
	// 已创建且未关闭的连接数量，包含借出去的
	Size() int
}

// 没有显式配置时的缺省容量和等待时间
const (
	DefaultMaxSize = 100
	DefaultMaxWait = time.Second
)

// Config 连接池相关配置
type Config struct {
	// 最大存活连接数，硬上限
	MaxSize int
	// 池满时等一个空位的时间，0 表示直接失败
	MaxWait time.Duration
	// 连接最大存活时间，0 表示不限制
	Expires time.Duration
	// 空闲阈值，同时也是两次清理之间的最小间隔，0 表示不做空闲清理
	Cleanup time.Duration
	// 工厂
	Factory ConnectionFactory
	// 可选日志，不传就丢弃
	Logger *zap.Logger
	// 可选指标
	Metrics *Metrics
}
