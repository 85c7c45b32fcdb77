package sqldrv

import (
	"context"
	"database/sql/driver"

	"github.com/mattn/go-sqlite3"
)

// NewSQLiteFactory 建 SQLite 连接工厂。mattn 的驱动没有 Connector，
// 用 DSN 包一层。
func NewSQLiteFactory(dsn string) *Factory {
	return &Factory{Connector: &dsnConnector{drv: &sqlite3.SQLiteDriver{}, dsn: dsn}}
}

type dsnConnector struct {
	drv driver.Driver
	dsn string
}

func (c *dsnConnector) Connect(ctx context.Context) (driver.Conn, error) {
	return c.drv.Open(c.dsn)
}

func (c *dsnConnector) Driver() driver.Driver {
	return c.drv
}
