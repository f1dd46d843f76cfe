package migrate

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

//go:embed sql/*.sql
var embedded embed.FS

// lockKey 多个实例同时启动时只有一个执行迁移
const lockKey int64 = 0x74726b72 // "trkr"

// Runner 迁移执行器。Dir 为空时使用内置脚本
type Runner struct {
	Dir    string
	Logger *zap.Logger
}

type migrationFile struct {
	Version int64
	Path    string
}

func (r Runner) fsys() (fs.FS, error) {
	if r.Dir != "" {
		return os.DirFS(r.Dir), nil
	}
	return fs.Sub(embedded, "sql")
}

// discoverUpMigrations 扫描 *_up.sql 按版本排序；文件名前缀数字为版本号
func discoverUpMigrations(fsys fs.FS) ([]migrationFile, error) {
	var files []migrationFile
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		name := path.Base(p)
		if !strings.HasSuffix(name, "_up.sql") {
			return nil
		}
		prefix, _, _ := strings.Cut(name, "_")
		if ver, err := strconv.ParseInt(prefix, 10, 64); err == nil {
			files = append(files, migrationFile{Version: ver, Path: p})
		}
		return nil
	})
	sort.Slice(files, func(i, j int) bool { return files[i].Version < files[j].Version })
	return files, err
}

// pending 过滤出尚未应用的迁移
func pending(files []migrationFile, applied map[int64]bool) []migrationFile {
	var out []migrationFile
	for _, f := range files {
		if !applied[f.Version] {
			out = append(out, f)
		}
	}
	return out
}

func (r Runner) Up(ctx context.Context, db *pgxpool.Pool) error {
	_, err := r.UpCount(ctx, db)
	return err
}

// UpCount 持有会话级 advisory lock 执行未应用的迁移，返回本次应用数量
func (r Runner) UpCount(ctx context.Context, db *pgxpool.Pool) (int, error) {
	fsys, err := r.fsys()
	if err != nil {
		return 0, err
	}
	files, err := discoverUpMigrations(fsys)
	if err != nil {
		return 0, err
	}

	conn, err := db.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Release()
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, lockKey); err != nil {
		return 0, fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() { _, _ = conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, lockKey) }()

	if _, err := conn.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
        version BIGINT PRIMARY KEY,
        applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    )`); err != nil {
		return 0, fmt.Errorf("ensure schema_migrations: %w", err)
	}
	applied, err := appliedVersions(ctx, conn.Conn())
	if err != nil {
		return 0, err
	}

	n := 0
	for _, m := range pending(files, applied) {
		content, err := fs.ReadFile(fsys, m.Path)
		if err != nil {
			return n, err
		}
		err = pgx.BeginFunc(ctx, conn, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, string(content)); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations(version) VALUES($1)`, m.Version)
			return err
		})
		if err != nil {
			return n, fmt.Errorf("migration %d (%s): %w", m.Version, m.Path, err)
		}
		n++
		if r.Logger != nil {
			r.Logger.Info("migration applied", zap.Int64("version", m.Version), zap.String("file", m.Path))
		}
	}
	return n, nil
}

func appliedVersions(ctx context.Context, conn *pgx.Conn) (map[int64]bool, error) {
	rows, err := conn.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	versions, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, err
	}
	applied := make(map[int64]bool, len(versions))
	for _, v := range versions {
		applied[v] = true
	}
	return applied, nil
}
