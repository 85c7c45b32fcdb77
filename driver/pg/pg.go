// Package pg 把 pgconn 的裸 Postgres 连接适配成池需要的能力
package pg

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	dbpool "github.com/nimbusdb/dbpool-go"
)

// Factory 按连接串建 Postgres 连接
type Factory struct {
	ConnString string
}

// Connect 建一条连接
func (f *Factory) Connect(ctx context.Context) (dbpool.Conn, error) {
	pc, err := pgconn.Connect(ctx, f.ConnString)
	if err != nil {
		return nil, err
	}
	return &conn{pc: pc}, nil
}

// conn 一条 Postgres 连接。事务在第一条语句前隐式开启，
// 跟 psycopg 的非自动提交模式一个行为。
type conn struct {
	pc        *pgconn.PgConn
	isolation dbpool.IsolationLevel
	inTx      bool
}

func (c *conn) Closed() bool {
	return c.pc.IsClosed()
}

func (c *conn) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.pc.Close(ctx)
}

func (c *conn) exec(ctx context.Context, sql string) error {
	_, err := c.pc.Exec(ctx, sql).ReadAll()
	return err
}

// begin 不在事务里就先 BEGIN
func (c *conn) begin(ctx context.Context) error {
	if c.inTx {
		return nil
	}
	sql := "BEGIN"
	if c.isolation != dbpool.IsolationDefault {
		sql = "BEGIN ISOLATION LEVEL " + c.isolation.String()
	}
	if err := c.exec(ctx, sql); err != nil {
		return err
	}
	c.inTx = true
	return nil
}

func (c *conn) Commit(ctx context.Context) error {
	if !c.inTx {
		return nil
	}
	c.inTx = false
	return c.exec(ctx, "COMMIT")
}

func (c *conn) Rollback(ctx context.Context) error {
	if !c.inTx {
		return nil
	}
	c.inTx = false
	return c.exec(ctx, "ROLLBACK")
}

func (c *conn) IsolationLevel() dbpool.IsolationLevel {
	return c.isolation
}

// SetIsolationLevel 记下级别。已经在事务里就立刻生效，
// 否则等下一次 BEGIN 的时候带上。
func (c *conn) SetIsolationLevel(ctx context.Context, level dbpool.IsolationLevel) error {
	c.isolation = level
	if c.inTx && level != dbpool.IsolationDefault {
		return c.exec(ctx, "SET TRANSACTION ISOLATION LEVEL "+level.String())
	}
	return nil
}

func (c *conn) Cursor() dbpool.Cursor {
	return &cursor{conn: c}
}

// cursor 流式读取一条语句的结果。Execute 会预读第一行，
// 这样没有结果集的语句能立刻拿到影响行数。
type cursor struct {
	conn     *conn
	rr       *pgconn.ResultReader
	firstRow dbpool.Row
	hasFirst bool
}

func (cu *cursor) Execute(ctx context.Context, query string, args ...any) (int64, error) {
	if err := cu.drain(); err != nil {
		return 0, err
	}
	if err := cu.conn.begin(ctx); err != nil {
		return 0, err
	}
	params, err := encodeParams(args)
	if err != nil {
		return 0, err
	}

	rr := cu.conn.pc.ExecParams(ctx, query, params, nil, nil, nil)
	if rr.NextRow() {
		cu.rr = rr
		cu.firstRow = copyRow(rr.Values())
		cu.hasFirst = true
		return 0, nil
	}
	tag, err := rr.Close()
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (cu *cursor) FetchOne(ctx context.Context) (dbpool.Row, error) {
	rows, err := cu.FetchMany(ctx, 1)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

func (cu *cursor) FetchMany(ctx context.Context, n int) ([]dbpool.Row, error) {
	var rows []dbpool.Row
	for len(rows) < n {
		if cu.hasFirst {
			rows = append(rows, cu.firstRow)
			cu.firstRow = nil
			cu.hasFirst = false
			continue
		}
		if cu.rr == nil {
			break
		}
		if !cu.rr.NextRow() {
			rr := cu.rr
			cu.rr = nil
			if _, err := rr.Close(); err != nil {
				return rows, err
			}
			break
		}
		rows = append(rows, copyRow(cu.rr.Values()))
	}
	return rows, nil
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
	return cu.drain()
}

// drain 丢掉没读完的结果，连接要留给下一条语句用
func (cu *cursor) drain() error {
	cu.firstRow = nil
	cu.hasFirst = false
	if cu.rr == nil {
		return nil
	}
	rr := cu.rr
	cu.rr = nil
	_, err := rr.Close()
	return err
}

// copyRow ResultReader 的缓冲到下一行就失效了，必须拷出来
func copyRow(values [][]byte) dbpool.Row {
	row := make(dbpool.Row, len(values))
	for i, v := range values {
		if v == nil {
			continue
		}
		b := make([]byte, len(v))
		copy(b, v)
		row[i] = b
	}
	return row
}

// encodeParams 参数转成文本格式
func encodeParams(args []any) ([][]byte, error) {
	if len(args) == 0 {
		return nil, nil
	}
	params := make([][]byte, len(args))
	for i, arg := range args {
		switch v := arg.(type) {
		case nil:
			params[i] = nil
		case []byte:
			params[i] = v
		case string:
			params[i] = []byte(v)
		case bool:
			params[i] = []byte(strconv.FormatBool(v))
		case int:
			params[i] = []byte(strconv.FormatInt(int64(v), 10))
		case int32:
			params[i] = []byte(strconv.FormatInt(int64(v), 10))
		case int64:
			params[i] = []byte(strconv.FormatInt(v, 10))
		case float32:
			params[i] = []byte(strconv.FormatFloat(float64(v), 'f', -1, 32))
		case float64:
			params[i] = []byte(strconv.FormatFloat(v, 'f', -1, 64))
		case time.Time:
			params[i] = []byte(v.Format("2006-01-02 15:04:05.999999999Z07:00"))
		default:
			return nil, fmt.Errorf("pg: cannot encode parameter %d of type %T", i+1, arg)
		}
	}
	return params, nil
}
