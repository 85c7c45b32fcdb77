package dbpool

import (
	"context"
	"time"
)

// IsolationLevel 事务隔离级别
type IsolationLevel int

const (
	// IsolationDefault 表示沿用连接当前的隔离级别
	IsolationDefault IsolationLevel = iota
	IsolationReadCommitted
	IsolationRepeatableRead
	IsolationSerializable
)

func (l IsolationLevel) String() string {
	switch l {
	case IsolationReadCommitted:
		return "READ COMMITTED"
	case IsolationRepeatableRead:
		return "REPEATABLE READ"
	case IsolationSerializable:
		return "SERIALIZABLE"
	}
	return "DEFAULT"
}

// Row 一行查询结果
type Row []any

// Conn 是池管理的连接需要提供的能力，由各个驱动适配层实现
type Conn interface {
	// 底层传输是否已经断开，这个状态归传输层管，池只读
	Closed() bool
	// 关闭连接
	Close() error
	// 提交当前事务
	Commit(ctx context.Context) error
	// 回滚当前事务
	Rollback(ctx context.Context) error
	// 当前隔离级别
	IsolationLevel() IsolationLevel
	// 设置隔离级别
	SetIsolationLevel(ctx context.Context, level IsolationLevel) error
	// 创建游标
	Cursor() Cursor
}

// Cursor 执行语句和读取结果
type Cursor interface {
	// 执行一条语句，返回影响行数（拿不到就返回 0）
	Execute(ctx context.Context, query string, args ...any) (int64, error)
	// 取下一行，没有更多行时返回 nil
	FetchOne(ctx context.Context) (Row, error)
	// 最多取 n 行
	FetchMany(ctx context.Context, n int) ([]Row, error)
	// 取剩下的所有行
	FetchAll(ctx context.Context) ([]Row, error)
	// 关闭游标
	Close() error
}

// pooledConn 把时间戳直接挂在连接上，随借随还，不用按连接查表
type pooledConn struct {
	Conn
	createdAt time.Time
	latestUse time.Time
}

func (item *pooledConn) expired(now time.Time, expires time.Duration) bool {
	return expires > 0 && now.Sub(item.createdAt) > expires
}

func (item *pooledConn) idleTooLong(now time.Time, threshold time.Duration) bool {
	return threshold > 0 && now.Sub(item.latestUse) > threshold
}
