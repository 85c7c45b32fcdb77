package dbpool

import (
	"context"

	"go.uber.org/zap"

	"github.com/nimbusdb/dbpool-go/misc"
)

// TxOptions 一次借出范围内的选项
type TxOptions struct {
	// 需要的隔离级别，IsolationDefault 表示不动连接当前的级别
	Isolation IsolationLevel
}

// scope 一次借出的收尾状态。borrow 取连接并按需调隔离级别，
// end 根据有没有出错决定提交还是回滚，最后恢复级别并归还连接。
type scope struct {
	pool    *LifoPool
	conn    Conn
	restore IsolationLevel
	changed bool
}

func (p *LifoPool) borrow(ctx context.Context, opts TxOptions) (*scope, error) {
	conn, err := p.Get(ctx)
	if err != nil {
		return nil, err
	}
	s := &scope{pool: p, conn: conn}
	if opts.Isolation != IsolationDefault && conn.IsolationLevel() != opts.Isolation {
		s.restore = conn.IsolationLevel()
		if err := conn.SetIsolationLevel(ctx, opts.Isolation); err != nil {
			s.putBack(ctx)
			return nil, err
		}
		s.changed = true
	}
	return s, nil
}

func (s *scope) end(ctx context.Context, cause error) error {
	p := s.pool
	conn := s.conn

	if cause != nil {
		if conn.Closed() {
			// 传输断了多半是后端重启，池里其他空闲连接也不可信，整池重置。
			// 原始错误原样向上抛。
			p.discard(conn)
			p.logger.Warn("transport closed during scope, resetting pool")
			p.CloseAll()
			return cause
		}
		if rbErr := conn.Rollback(ctx); rbErr != nil {
			// 回滚失败只上报，永远不替换原始错误
			p.logger.Error("rollback failed", zap.Error(&RollbackError{Err: rbErr}))
			p.discard(conn)
			return cause
		}
		s.putBack(ctx)
		return cause
	}

	if conn.Closed() {
		p.discard(conn)
		return misc.ErrorWrap(ErrCommitOnClosed, "commit aborted")
	}
	if err := conn.Commit(ctx); err != nil {
		s.putBack(ctx)
		return err
	}
	s.putBack(ctx)
	return nil
}

// putBack 恢复之前的隔离级别再把连接放回池里
func (s *scope) putBack(ctx context.Context) {
	conn := s.conn
	if conn.Closed() {
		s.pool.discard(conn)
		return
	}
	if s.changed {
		if err := conn.SetIsolationLevel(ctx, s.restore); err != nil {
			s.pool.logger.Warn("restore isolation level", zap.Error(err))
			s.pool.discard(conn)
			return
		}
	}
	s.pool.Put(conn)
}

// WithConn 取一个连接跑 fn，fn 正常返回就提交，出错就回滚，
// 结束后把连接放回池里。fn panic 的话按出错收尾，panic 继续向上传。
func (p *LifoPool) WithConn(ctx context.Context, opts TxOptions, fn func(ctx context.Context, conn Conn) error) error {
	s, err := p.borrow(ctx, opts)
	if err != nil {
		return err
	}
	finished := false
	defer func() {
		if !finished {
			_ = s.end(ctx, errPanicInScope)
		}
	}()
	ferr := fn(ctx, s.conn)
	finished = true
	return s.end(ctx, ferr)
}

// WithCursor 同 WithConn，给 fn 的是连接上的一个游标
func (p *LifoPool) WithCursor(ctx context.Context, opts TxOptions, fn func(ctx context.Context, cur Cursor) error) error {
	return p.WithConn(ctx, opts, func(ctx context.Context, conn Conn) error {
		cur := conn.Cursor()
		defer cur.Close()
		return fn(ctx, cur)
	})
}

// Execute 执行单条语句，返回影响行数
func (p *LifoPool) Execute(ctx context.Context, query string, args ...any) (int64, error) {
	var count int64
	err := p.WithCursor(ctx, TxOptions{}, func(ctx context.Context, cur Cursor) error {
		n, err := cur.Execute(ctx, query, args...)
		count = n
		return err
	})
	return count, err
}

// FetchOne 执行单条语句并取第一行
func (p *LifoPool) FetchOne(ctx context.Context, query string, args ...any) (Row, error) {
	var row Row
	err := p.WithCursor(ctx, TxOptions{}, func(ctx context.Context, cur Cursor) error {
		if _, err := cur.Execute(ctx, query, args...); err != nil {
			return err
		}
		r, err := cur.FetchOne(ctx)
		row = r
		return err
	})
	return row, err
}

// FetchAll 执行单条语句并取全部结果
func (p *LifoPool) FetchAll(ctx context.Context, query string, args ...any) ([]Row, error) {
	var rows []Row
	err := p.WithCursor(ctx, TxOptions{}, func(ctx context.Context, cur Cursor) error {
		if _, err := cur.Execute(ctx, query, args...); err != nil {
			return err
		}
		r, err := cur.FetchAll(ctx)
		rows = r
		return err
	})
	return rows, err
}

// 每批从游标拉多少行
const defaultFetchBatch = 128

// FetchIter 执行单条语句，分批惰性拉取结果，大结果集不用整个读进内存。
// 批用完了再取下一批，取到空批为止。迭代完（或 Close）才会提交并归还连接。
// 用完就没了，不能重新开始。
func (p *LifoPool) FetchIter(ctx context.Context, opts TxOptions, query string, args ...any) (*RowIter, error) {
	s, err := p.borrow(ctx, opts)
	if err != nil {
		return nil, err
	}
	cur := s.conn.Cursor()
	if _, err := cur.Execute(ctx, query, args...); err != nil {
		_ = cur.Close()
		return nil, s.end(ctx, err)
	}
	return &RowIter{ctx: ctx, scope: s, cursor: cur, batchSize: defaultFetchBatch}, nil
}

// RowIter 惰性的行序列
type RowIter struct {
	ctx       context.Context
	scope     *scope
	cursor    Cursor
	batchSize int
	batch     []Row
	pos       int
	err       error
	done      bool
}

// Next 返回下一行。没有更多行、出错或者已经 Close 时返回 false，
// 出错的话错误在 Err 里。
func (it *RowIter) Next() (Row, bool) {
	if it.done {
		return nil, false
	}
	if it.pos >= len(it.batch) {
		rows, err := it.cursor.FetchMany(it.ctx, it.batchSize)
		if err != nil {
			it.finish(err)
			return nil, false
		}
		if len(rows) == 0 {
			it.finish(nil)
			return nil, false
		}
		it.batch, it.pos = rows, 0
	}
	row := it.batch[it.pos]
	it.pos++
	return row, true
}

// Err 迭代过程中的错误，包括收尾时提交失败
func (it *RowIter) Err() error {
	return it.err
}

// Close 提前结束迭代，提交并归还连接。重复调用没有副作用。
func (it *RowIter) Close() error {
	if !it.done {
		it.finish(nil)
	}
	return it.err
}

func (it *RowIter) finish(cause error) {
	it.done = true
	it.batch = nil
	_ = it.cursor.Close()
	if err := it.scope.end(it.ctx, cause); err != nil {
		it.err = err
	}
}
