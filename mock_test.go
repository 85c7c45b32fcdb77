package dbpool

import (
	"context"
	"sync"
)

// mockConn 模拟一条连接
type mockConn struct {
	mu              sync.Mutex
	transportClosed bool
	shut            bool
	commits         int
	rollbacks       int
	isolation       IsolationLevel
	commitErr       error
	rollbackErr     error
	rows            []Row
	pos             int
	queries         []string
	closeEntered    chan struct{}
	closeBlock      chan struct{}
}

func (c *mockConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transportClosed
}

func (c *mockConn) setTransportClosed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transportClosed = true
}

// setCloseHook 让下一次 Close 先发信号再阻塞，用于卡住清扫协程
func (c *mockConn) setCloseHook(entered, block chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeEntered = entered
	c.closeBlock = block
}

func (c *mockConn) Close() error {
	c.mu.Lock()
	c.shut = true
	c.transportClosed = true
	entered, block := c.closeEntered, c.closeBlock
	c.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
		<-block
	}
	return nil
}

func (c *mockConn) Commit(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.commitErr != nil {
		return c.commitErr
	}
	c.commits++
	return nil
}

func (c *mockConn) Rollback(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rollbackErr != nil {
		return c.rollbackErr
	}
	c.rollbacks++
	return nil
}

func (c *mockConn) IsolationLevel() IsolationLevel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isolation
}

func (c *mockConn) SetIsolationLevel(ctx context.Context, level IsolationLevel) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isolation = level
	return nil
}

func (c *mockConn) Cursor() Cursor {
	return &mockCursor{conn: c}
}

// mockCursor 从预置的行里按批吐数据
type mockCursor struct {
	conn *mockConn
}

func (cu *mockCursor) Execute(ctx context.Context, query string, args ...any) (int64, error) {
	cu.conn.mu.Lock()
	defer cu.conn.mu.Unlock()
	cu.conn.queries = append(cu.conn.queries, query)
	cu.conn.pos = 0
	return int64(len(cu.conn.rows)), nil
}

func (cu *mockCursor) FetchOne(ctx context.Context) (Row, error) {
	rows, err := cu.FetchMany(ctx, 1)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

func (cu *mockCursor) FetchMany(ctx context.Context, n int) ([]Row, error) {
	cu.conn.mu.Lock()
	defer cu.conn.mu.Unlock()
	remaining := len(cu.conn.rows) - cu.conn.pos
	if remaining <= 0 {
		return nil, nil
	}
	if n > remaining {
		n = remaining
	}
	out := cu.conn.rows[cu.conn.pos : cu.conn.pos+n]
	cu.conn.pos += n
	return out, nil
}

func (cu *mockCursor) FetchAll(ctx context.Context) ([]Row, error) {
	cu.conn.mu.Lock()
	defer cu.conn.mu.Unlock()
	out := cu.conn.rows[cu.conn.pos:]
	cu.conn.pos = len(cu.conn.rows)
	return out, nil
}

func (cu *mockCursor) Close() error {
	return nil
}

// mockFactory 模拟连接工厂
type mockFactory struct {
	mu      sync.Mutex
	created int
	err     error
	rows    []Row
	conns   []*mockConn
}

func (f *mockFactory) Connect(ctx context.Context) (Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.created++
	c := &mockConn{isolation: IsolationReadCommitted, rows: f.rows}
	f.conns = append(f.conns, c)
	return c, nil
}

func (f *mockFactory) createdCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created
}

// unwrap 拿到池包装下面的 mock 连接
func unwrap(conn Conn) *mockConn {
	return conn.(*pooledConn).Conn.(*mockConn)
}
