package dbpool

import "sync"

// Registry 按目标键共享连接池。同一个键在一个 Registry 的生命周期里
// 只会建一个池，不同调用方打同一个库时透明地共用热连接。
// 由应用启动代码创建并注入，不搞隐式全局状态。
type Registry struct {
	mu    sync.Mutex
	pools sync.Map // string -> *LifoPool
}

// NewRegistry 创建一个空的注册表
func NewRegistry() *Registry {
	return &Registry{}
}

// DefaultRegistry 给常规场景用的公共实例
var DefaultRegistry = NewRegistry()

// Pool 返回 key 对应的池，第一次访问时用 open 创建。
// 快路径不加锁，创建路径加锁后再查一次。
func (r *Registry) Pool(key string, open func() (*LifoPool, error)) (*LifoPool, error) {
	if v, ok := r.pools.Load(key); ok {
		return v.(*LifoPool), nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.pools.Load(key); ok {
		return v.(*LifoPool), nil
	}
	pool, err := open()
	if err != nil {
		return nil, err
	}
	r.pools.Store(key, pool)
	return pool, nil
}

// Open 用目标配置建池并注册，key 相同就返回已有的池
func (r *Registry) Open(target TargetConfig, factory ConnectionFactory) (*LifoPool, error) {
	return r.Pool(target.Key, func() (*LifoPool, error) {
		return New(target.PoolConfig(factory))
	})
}

// CloseAll 进程收尾，关掉所有注册过的池的空闲连接
func (r *Registry) CloseAll() {
	r.pools.Range(func(_, v any) bool {
		v.(*LifoPool).CloseAll()
		return true
	})
}

// Sweep 对所有池主动触发一轮清理，不依赖 Put 的顺带检查
func (r *Registry) Sweep() {
	r.pools.Range(func(_, v any) bool {
		v.(*LifoPool).Cleanup()
		return true
	})
}
