package pg

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taoyao-code/tracker-server/internal/model"
	"github.com/taoyao-code/tracker-server/internal/storage"
)

// Repository 基于 pgx 的定位存储
type Repository struct {
	Pool *pgxpool.Pool
}

var _ storage.PositionStore = (*Repository)(nil)

const insertPositionSQL = `INSERT INTO positions
    (device_id, protocol, server_time, device_time, fix_time, outdated, valid,
     latitude, longitude, altitude, speed, course, accuracy, network, attributes)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`

const selectPositionSQL = `SELECT device_id, protocol, server_time, device_time, fix_time, outdated, valid,
    latitude, longitude, altitude, speed, course, accuracy, network, attributes
    FROM positions`

// InsertPositions 以 pgx.Batch 一次往返写入整批定位
func (r *Repository) InsertPositions(ctx context.Context, positions []*model.Position) error {
	if len(positions) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, p := range positions {
		attrs := p.Attributes
		if attrs == nil {
			attrs = map[string]interface{}{}
		}
		batch.Queue(insertPositionSQL,
			p.DeviceID, p.Protocol, p.ServerTime, p.DeviceTime, p.FixTime, p.Outdated, p.Valid,
			p.Latitude, p.Longitude, p.Altitude, p.Speed, p.Course, p.Accuracy, p.Network, attrs)
	}

	br := r.Pool.SendBatch(ctx, batch)
	defer br.Close()
	for i := range positions {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert position %d/%d: %w", i+1, len(positions), err)
		}
	}
	return br.Close()
}

// LatestPosition 设备最近一条有效定位（按定位时间）；不存在时返回 nil, nil
func (r *Repository) LatestPosition(ctx context.Context, deviceID int64) (*model.Position, error) {
	row := r.Pool.QueryRow(ctx, selectPositionSQL+`
    WHERE device_id = $1 AND valid
    ORDER BY fix_time DESC
    LIMIT 1`, deviceID)
	p, err := scanPosition(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

// LastLocation 实现 session.LocationProvider
func (r *Repository) LastLocation(ctx context.Context, deviceID int64) (*model.Position, error) {
	return r.LatestPosition(ctx, deviceID)
}

// ListPositions 按定位时间倒序返回设备最近的定位（运维排查用）
func (r *Repository) ListPositions(ctx context.Context, deviceID int64, limit int) ([]*model.Position, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.Pool.Query(ctx, selectPositionSQL+`
    WHERE device_id = $1
    ORDER BY fix_time DESC
    LIMIT $2`, deviceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPosition(row pgx.Row) (*model.Position, error) {
	var (
		p       model.Position
		network *model.Network
		attrs   map[string]interface{}
	)
	err := row.Scan(&p.DeviceID, &p.Protocol, &p.ServerTime, &p.DeviceTime, &p.FixTime, &p.Outdated, &p.Valid,
		&p.Latitude, &p.Longitude, &p.Altitude, &p.Speed, &p.Course, &p.Accuracy, &network, &attrs)
	if err != nil {
		return nil, err
	}
	p.Network = network
	p.Attributes = attrs
	if p.Attributes == nil {
		p.Attributes = make(map[string]interface{})
	}
	return &p, nil
}
