package dbpool

import "context"

// ConnectionFactory 连接工厂
type ConnectionFactory interface {
	// 生成连接的方法
	Connect(ctx context.Context) (Conn, error)
}

// FactoryFunc 把函数适配成 ConnectionFactory
type FactoryFunc func(ctx context.Context) (Conn, error)

// Connect 调用函数本身
func (f FactoryFunc) Connect(ctx context.Context) (Conn, error) {
	return f(ctx)
}
