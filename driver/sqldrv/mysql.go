package sqldrv

import "github.com/go-sql-driver/mysql"

// NewMySQLFactory 用 go-sql-driver 建 MySQL 连接工厂
func NewMySQLFactory(dsn string) (*Factory, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, err
	}
	return &Factory{Connector: connector}, nil
}
