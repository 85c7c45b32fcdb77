package dbpool

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/xerrors"
)

// LifoPool 按后进先出顺序复用连接的池。刚放回来的连接下一次最先被借走，
// 低峰期后面的连接一直闲着，到时间就会被清理掉。
type LifoPool struct {
	mu      sync.Mutex
	free    []*pooledConn      // 空闲连接栈，栈顶在切片末尾
	waiters []chan *pooledConn // 池满时排队的请求，放回连接优先喂给队头
	size    int                // 已创建且未关闭的连接数，包含借出去的
	gen     uint64             // CloseAll 每重置一次加一，清理靠它识别摘栈之后发生过重置

	factory ConnectionFactory
	maxSize int
	maxWait time.Duration
	expires time.Duration
	cleanup time.Duration

	nextSweep     atomic.Int64 // 下一次允许清理的时间，UnixNano
	sweepInterval time.Duration

	logger  *zap.Logger
	metrics *Metrics
}

var _ Pool = (*LifoPool)(nil)

// New 创建一个连接池
func New(cfg Config) (*LifoPool, error) {
	if cfg.MaxSize <= 0 {
		return nil, xerrors.New("dbpool: maxsize must be positive")
	}
	if cfg.Factory == nil {
		return nil, xerrors.New("dbpool: factory is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &LifoPool{
		factory: cfg.Factory,
		maxSize: cfg.MaxSize,
		maxWait: cfg.MaxWait,
		expires: cfg.Expires,
		cleanup: cfg.Cleanup,
		logger:  logger,
		metrics: cfg.Metrics,
	}
	if cfg.Expires > 0 || cfg.Cleanup > 0 {
		p.sweepInterval = minNonZero(cfg.Expires, cfg.Cleanup)
	} else {
		// 两个阈值都没配，清理永远不到期
		p.nextSweep.Store(math.MaxInt64)
	}
	return p, nil
}

func minNonZero(a, b time.Duration) time.Duration {
	switch {
	case a == 0:
		return b
	case b == 0:
		return a
	case a < b:
		return a
	}
	return b
}

// Get 从池中取一个连接。空闲栈非空就弹出栈顶；没到容量上限就先占名额再新建；
// 池满就排队等放回的连接，最多等 maxWait。
func (p *LifoPool) Get(ctx context.Context) (Conn, error) {
	p.mu.Lock()

	// 复用路径
	if n := len(p.free); n > 0 {
		item := p.free[n-1]
		p.free = p.free[:n-1]
		p.mu.Unlock()
		return item, nil
	}

	// 新建路径。名额在建连接之前占住，工厂挂起期间不会超卖；
	// 建失败就把名额还回去，错误原样向上抛。
	if p.size < p.maxSize {
		p.size++
		p.mu.Unlock()
		conn, err := p.factory.Connect(ctx)
		if err != nil {
			p.mu.Lock()
			p.size--
			p.mu.Unlock()
			return nil, err
		}
		now := time.Now()
		p.metrics.connCreated()
		return &pooledConn{Conn: conn, createdAt: now, latestUse: now}, nil
	}

	// 池满。maxWait 为 0 直接失败
	if p.maxWait <= 0 {
		err := &CapacityError{Size: p.size, MaxSize: p.maxSize}
		p.mu.Unlock()
		p.metrics.acquireTimeout()
		return nil, err
	}

	req := make(chan *pooledConn, 1)
	p.waiters = append(p.waiters, req)
	p.mu.Unlock()

	timer := time.NewTimer(p.maxWait)
	defer timer.Stop()
	select {
	case item := <-req:
		return item, nil
	case <-timer.C:
	case <-ctx.Done():
	}

	// 超时或取消。把自己从队列里摘掉；摘不到说明 Put 已经选中了这个请求，
	// 连接就在缓冲里（Put 在锁内投递）。
	p.mu.Lock()
	for i, w := range p.waiters {
		if w == req {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			err := &CapacityError{Size: p.size, MaxSize: p.maxSize}
			p.mu.Unlock()
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			p.metrics.acquireTimeout()
			return nil, err
		}
	}
	p.mu.Unlock()

	item := <-req
	if ctxErr := ctx.Err(); ctxErr != nil {
		// 调用方已经放弃了，连接直接还回池里
		p.release(item)
		return nil, ctxErr
	}
	return item, nil
}

// Put 连接放回池里。有排队的请求就直接交给队头，否则压到空闲栈顶，
// 然后顺手看一眼要不要清理。
func (p *LifoPool) Put(conn Conn) {
	item, ok := conn.(*pooledConn)
	if !ok {
		return
	}
	p.release(item)
	p.Cleanup()
}

func (p *LifoPool) release(item *pooledConn) {
	item.latestUse = time.Now()

	p.mu.Lock()
	if l := len(p.waiters); l > 0 {
		req := p.waiters[0]
		copy(p.waiters, p.waiters[1:])
		p.waiters = p.waiters[:l-1]
		req <- item
		p.mu.Unlock()
		return
	}
	p.free = append(p.free, item)
	p.mu.Unlock()
}

// Cleanup 清理过期和闲置太久的空闲连接。先做一次无锁的时间检查，
// 到期了再加锁复查，让 Put 的顺带触发在大多数时候只花一次原子读。
// 只有清理那一刻在空闲栈里的连接会被处理，借出去的连接等归还后再说。
func (p *LifoPool) Cleanup() {
	now := time.Now()
	if now.UnixNano() < p.nextSweep.Load() {
		return
	}

	p.mu.Lock()
	if now.UnixNano() < p.nextSweep.Load() {
		p.mu.Unlock()
		return
	}
	p.nextSweep.Store(now.Add(p.sweepInterval).UnixNano())
	// 把空闲栈整个摘下来，关连接的网络操作放到锁外做
	gen := p.gen
	batch := p.free
	p.free = nil
	p.mu.Unlock()

	var doomed, survivors []*pooledConn
	for _, item := range batch {
		if item.idleTooLong(now, p.cleanup) || item.expired(now, p.expires) {
			doomed = append(doomed, item)
			continue
		}
		survivors = append(survivors, item)
	}
	for _, item := range doomed {
		p.closeTransport(item)
	}

	p.mu.Lock()
	if p.gen != gen {
		// 摘栈之后整池被重置过，幸存者连的可能是已经死掉的后端，
		// 不能塞回去。名额重置时已经清过零，这里只关传输。
		p.mu.Unlock()
		for _, item := range survivors {
			p.closeTransport(item)
		}
		return
	}
	p.size -= len(doomed)
	if p.size < 0 {
		p.size = 0
	}
	if len(survivors) > 0 {
		// 清理期间放回来的连接更新鲜，留在栈顶；幸存者按原顺序垫回栈底
		p.free = append(survivors, p.free...)
	}
	p.mu.Unlock()

	if len(doomed) > 0 {
		p.logger.Debug("evicted idle connections",
			zap.Int("evicted", len(doomed)),
			zap.Int("kept", len(survivors)))
	}
	p.metrics.sweepDone(len(doomed))
}

// CloseAll 关掉空闲栈里的所有连接并把计数清零。借出去的连接不受影响，
// 等各自归还。重复调用没有副作用。
func (p *LifoPool) CloseAll() {
	p.mu.Lock()
	batch := p.free
	p.free = nil
	p.size = 0
	p.gen++
	p.mu.Unlock()

	for _, item := range batch {
		p.closeTransport(item)
	}
	if len(batch) > 0 {
		p.logger.Warn("closed all pooled connections", zap.Int("count", len(batch)))
	}
}

// closeConn 关掉一条连接并更新计数。关闭失败只能吞掉，名额一定要还上，
// 不然一次失败的关闭就把容量永久漏掉了。
func (p *LifoPool) closeConn(item *pooledConn) {
	p.mu.Lock()
	if p.size > 0 {
		p.size--
	}
	p.mu.Unlock()
	p.closeTransport(item)
}

// closeTransport 只关传输，不动计数
func (p *LifoPool) closeTransport(item *pooledConn) {
	if err := item.Conn.Close(); err != nil {
		p.logger.Debug("close connection", zap.Error(err))
	}
	p.metrics.connClosed()
}

// discard 丢弃一条借出去的连接，不放回池里，但名额要还上
func (p *LifoPool) discard(conn Conn) {
	if item, ok := conn.(*pooledConn); ok {
		p.closeConn(item)
	}
}

// Len 空闲栈里的连接数量
func (p *LifoPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// Size 已创建且未关闭的连接数量
func (p *LifoPool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.size
}
