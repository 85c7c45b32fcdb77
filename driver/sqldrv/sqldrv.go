// Package sqldrv 把暴露原生 driver.Conn 的驱动接进池，
// 不经过 database/sql 自带的那层连接池
package sqldrv

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	dbpool "github.com/nimbusdb/dbpool-go"
)

// Factory 用 driver.Connector 建连接
type Factory struct {
	Connector driver.Connector
}

// Connect 建一条连接
func (f *Factory) Connect(ctx context.Context) (dbpool.Conn, error) {
	dc, err := f.Connector.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return &conn{dc: dc}, nil
}

// conn 包一条裸的 driver.Conn。事务在第一条语句前开启，
// 隔离级别在 BeginTx 的选项里带过去。
type conn struct {
	dc        driver.Conn
	tx        driver.Tx
	isolation dbpool.IsolationLevel
	broken    bool
}

func (c *conn) Closed() bool {
	if c.broken {
		return true
	}
	if v, ok := c.dc.(driver.Validator); ok && !v.IsValid() {
		c.broken = true
	}
	return c.broken
}

func (c *conn) Close() error {
	c.broken = true
	return c.dc.Close()
}

func (c *conn) begin(ctx context.Context) error {
	if c.tx != nil {
		return nil
	}
	var (
		tx  driver.Tx
		err error
	)
	if b, ok := c.dc.(driver.ConnBeginTx); ok {
		tx, err = b.BeginTx(ctx, driver.TxOptions{Isolation: driverIsolation(c.isolation)})
	} else {
		tx, err = c.dc.Begin()
	}
	if err != nil {
		c.markBroken(err)
		return err
	}
	c.tx = tx
	return nil
}

func (c *conn) Commit(ctx context.Context) error {
	if c.tx == nil {
		return nil
	}
	tx := c.tx
	c.tx = nil
	err := tx.Commit()
	c.markBroken(err)
	return err
}

func (c *conn) Rollback(ctx context.Context) error {
	if c.tx == nil {
		return nil
	}
	tx := c.tx
	c.tx = nil
	err := tx.Rollback()
	c.markBroken(err)
	return err
}

func (c *conn) IsolationLevel() dbpool.IsolationLevel {
	return c.isolation
}

// SetIsolationLevel 记下级别，下一次开事务时生效
func (c *conn) SetIsolationLevel(ctx context.Context, level dbpool.IsolationLevel) error {
	c.isolation = level
	return nil
}

func (c *conn) Cursor() dbpool.Cursor {
	return &cursor{conn: c}
}

func (c *conn) markBroken(err error) {
	if errors.Is(err, driver.ErrBadConn) {
		c.broken = true
	}
}

func driverIsolation(level dbpool.IsolationLevel) driver.IsolationLevel {
	switch level {
	case dbpool.IsolationReadCommitted:
		return driver.IsolationLevel(sql.LevelReadCommitted)
	case dbpool.IsolationRepeatableRead:
		return driver.IsolationLevel(sql.LevelRepeatableRead)
	case dbpool.IsolationSerializable:
		return driver.IsolationLevel(sql.LevelSerializable)
	}
	return driver.IsolationLevel(sql.LevelDefault)
}

// cursor 带结果集的语句先走 QueryerContext，不带的走 ExecerContext 拿影响行数，
// 驱动让路（ErrSkip）再退回预处理语句
type cursor struct {
	conn *conn
	rows driver.Rows
	stmt driver.Stmt
}

func (cu *cursor) Execute(ctx context.Context, query string, args ...any) (int64, error) {
	if err := cu.Close(); err != nil {
		return 0, err
	}
	if err := cu.conn.begin(ctx); err != nil {
		return 0, err
	}
	nv, err := namedValues(args)
	if err != nil {
		return 0, err
	}
	if !returnsRows(query) {
		return cu.exec(ctx, query, nv)
	}

	if q, ok := cu.conn.dc.(driver.QueryerContext); ok {
		rows, err := q.QueryContext(ctx, query, nv)
		if err == nil {
			return cu.adopt(rows)
		}
		if !errors.Is(err, driver.ErrSkip) {
			cu.conn.markBroken(err)
			return 0, err
		}
	}
	stmt, err := cu.prepare(ctx, query)
	if err != nil {
		return 0, err
	}
	var rows driver.Rows
	if sq, ok := stmt.(driver.StmtQueryContext); ok {
		rows, err = sq.QueryContext(ctx, nv)
	} else {
		rows, err = stmt.Query(values(nv))
	}
	if err != nil {
		_ = stmt.Close()
		cu.conn.markBroken(err)
		return 0, err
	}
	cu.stmt = stmt
	return cu.adopt(rows)
}

// exec 执行路径，影响行数从驱动的结果里拿
func (cu *cursor) exec(ctx context.Context, query string, nv []driver.NamedValue) (int64, error) {
	if e, ok := cu.conn.dc.(driver.ExecerContext); ok {
		res, err := e.ExecContext(ctx, query, nv)
		if err == nil {
			return res.RowsAffected()
		}
		if !errors.Is(err, driver.ErrSkip) {
			cu.conn.markBroken(err)
			return 0, err
		}
	}
	stmt, err := cu.prepare(ctx, query)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()
	var res driver.Result
	if se, ok := stmt.(driver.StmtExecContext); ok {
		res, err = se.ExecContext(ctx, nv)
	} else {
		res, err = stmt.Exec(values(nv))
	}
	if err != nil {
		cu.conn.markBroken(err)
		return 0, err
	}
	return res.RowsAffected()
}

// prepare 驱动不肯直接跑带参数的语句时走这条路
func (cu *cursor) prepare(ctx context.Context, query string) (driver.Stmt, error) {
	var (
		stmt driver.Stmt
		err  error
	)
	if pc, ok := cu.conn.dc.(driver.ConnPrepareContext); ok {
		stmt, err = pc.PrepareContext(ctx, query)
	} else {
		stmt, err = cu.conn.dc.Prepare(query)
	}
	if err != nil {
		cu.conn.markBroken(err)
		return nil, err
	}
	return stmt, nil
}

// adopt 没有结果集的语句立刻收掉，有结果集的留给 Fetch
func (cu *cursor) adopt(rows driver.Rows) (int64, error) {
	if len(rows.Columns()) == 0 {
		err := rows.Close()
		cu.closeStmt()
		return 0, err
	}
	cu.rows = rows
	return 0, nil
}

// returnsRows 看首个关键词判断语句会不会带回结果集
func returnsRows(query string) bool {
	q := strings.TrimLeft(query, " \t\r\n(")
	if i := strings.IndexAny(q, " \t\r\n("); i >= 0 {
		q = q[:i]
	}
	switch strings.ToLower(q) {
	case "select", "show", "explain", "describe", "desc", "pragma", "values", "with":
		return true
	}
	return false
}

func (cu *cursor) FetchOne(ctx context.Context) (dbpool.Row, error) {
	rows, err := cu.FetchMany(ctx, 1)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

func (cu *cursor) FetchMany(ctx context.Context, n int) ([]dbpool.Row, error) {
	if cu.rows == nil {
		return nil, nil
	}
	ncols := len(cu.rows.Columns())
	dest := make([]driver.Value, ncols)
	var out []dbpool.Row
	for len(out) < n {
		err := cu.rows.Next(dest)
		if err == io.EOF {
			if cerr := cu.Close(); cerr != nil {
				return out, cerr
			}
			break
		}
		if err != nil {
			cu.conn.markBroken(err)
			return out, err
		}
		row := make(dbpool.Row, ncols)
		for i, v := range dest {
			row[i] = copyValue(v)
		}
		out = append(out, row)
	}
	return out, nil
}

func (cu *cursor) FetchAll(ctx context.Context) ([]dbpool.Row, error) {
	var all []dbpool.Row
	for {
		rows, err := cu.FetchMany(ctx, 256)
		all = append(all, rows...)
		if err != nil {
			return all, err
		}
		if len(rows) == 0 {
			return all, nil
		}
	}
}

func (cu *cursor) Close() error {
	var err error
	if cu.rows != nil {
		err = cu.rows.Close()
		cu.rows = nil
	}
	cu.closeStmt()
	return err
}

func (cu *cursor) closeStmt() {
	if cu.stmt != nil {
		_ = cu.stmt.Close()
		cu.stmt = nil
	}
}

// copyValue 驱动的缓冲只在下一次 Next 前有效
func copyValue(v driver.Value) any {
	if b, ok := v.([]byte); ok {
		out := make([]byte, len(b))
		copy(out, b)
		return out
	}
	return v
}

func namedValues(args []any) ([]driver.NamedValue, error) {
	if len(args) == 0 {
		return nil, nil
	}
	nv := make([]driver.NamedValue, len(args))
	for i, arg := range args {
		v, err := normalize(arg)
		if err != nil {
			return nil, err
		}
		nv[i] = driver.NamedValue{Ordinal: i + 1, Value: v}
	}
	return nv, nil
}

func values(nv []driver.NamedValue) []driver.Value {
	out := make([]driver.Value, len(nv))
	for i, v := range nv {
		out[i] = v.Value
	}
	return out
}

// normalize 驱动只认 driver.Value 里列出的几种类型
func normalize(arg any) (driver.Value, error) {
	switch v := arg.(type) {
	case nil, bool, int64, float64, string, []byte, time.Time:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case float32:
		return float64(v), nil
	}
	return nil, fmt.Errorf("sqldrv: cannot use parameter of type %T", arg)
}
