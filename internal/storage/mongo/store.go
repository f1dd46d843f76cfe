package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	cfgpkg "github.com/taoyao-code/tracker-server/internal/config"
	"github.com/taoyao-code/tracker-server/internal/model"
	"github.com/taoyao-code/tracker-server/internal/storage"
)

// Connect 建立 MongoDB 连接并探活
func Connect(ctx context.Context, cfg cfgpkg.MongoConfig) (*mongo.Client, error) {
	if cfg.URI == "" {
		return nil, errors.New("mongo uri not provided")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI).SetTimeout(timeout))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, nil
}

// positionDoc positions 集合中的文档
type positionDoc struct {
	DeviceID   int64                  `bson:"deviceId"`
	Protocol   string                 `bson:"protocol"`
	ServerTime time.Time              `bson:"serverTime"`
	DeviceTime time.Time              `bson:"deviceTime"`
	FixTime    time.Time              `bson:"fixTime"`
	Outdated   bool                   `bson:"outdated"`
	Valid      bool                   `bson:"valid"`
	Latitude   float64                `bson:"latitude"`
	Longitude  float64                `bson:"longitude"`
	Altitude   float64                `bson:"altitude"`
	Speed      float64                `bson:"speed"`
	Course     float64                `bson:"course"`
	Accuracy   float64                `bson:"accuracy"`
	Network    *model.Network         `bson:"network,omitempty"`
	Attributes map[string]interface{} `bson:"attributes"`
}

func toDoc(p *model.Position) positionDoc {
	return positionDoc{
		DeviceID:   p.DeviceID,
		Protocol:   p.Protocol,
		ServerTime: p.ServerTime,
		DeviceTime: p.DeviceTime,
		FixTime:    p.FixTime,
		Outdated:   p.Outdated,
		Valid:      p.Valid,
		Latitude:   p.Latitude,
		Longitude:  p.Longitude,
		Altitude:   p.Altitude,
		Speed:      p.Speed,
		Course:     p.Course,
		Accuracy:   p.Accuracy,
		Network:    p.Network,
		Attributes: p.Attributes,
	}
}

func (d positionDoc) toPosition() *model.Position {
	p := &model.Position{
		Protocol:   d.Protocol,
		DeviceID:   d.DeviceID,
		ServerTime: d.ServerTime.UTC(),
		DeviceTime: d.DeviceTime.UTC(),
		FixTime:    d.FixTime.UTC(),
		Outdated:   d.Outdated,
		Valid:      d.Valid,
		Latitude:   d.Latitude,
		Longitude:  d.Longitude,
		Altitude:   d.Altitude,
		Speed:      d.Speed,
		Course:     d.Course,
		Accuracy:   d.Accuracy,
		Network:    d.Network,
		Attributes: d.Attributes,
	}
	if p.Attributes == nil {
		p.Attributes = make(map[string]interface{})
	}
	return p
}

// Store MongoDB 定位存储
type Store struct {
	collection *mongo.Collection
}

var _ storage.PositionStore = (*Store)(nil)

// NewStore 使用 db 中的 collection 集合
func NewStore(db *mongo.Database, collection string) *Store {
	if collection == "" {
		collection = "positions"
	}
	return &Store{collection: db.Collection(collection)}
}

// EnsureIndexes 创建 (deviceId, fixTime desc) 索引
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "deviceId", Value: 1}, {Key: "fixTime", Value: -1}},
	})
	return err
}

// InsertPositions 无序批量写入
func (s *Store) InsertPositions(ctx context.Context, positions []*model.Position) error {
	if len(positions) == 0 {
		return nil
	}
	docs := make([]interface{}, 0, len(positions))
	for _, p := range positions {
		docs = append(docs, toDoc(p))
	}
	_, err := s.collection.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	return err
}

// LatestPosition 设备最近一条有效定位；不存在时返回 nil, nil
func (s *Store) LatestPosition(ctx context.Context, deviceID int64) (*model.Position, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "fixTime", Value: -1}})
	var doc positionDoc
	err := s.collection.FindOne(ctx, bson.M{"deviceId": deviceID, "valid": true}, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return doc.toPosition(), nil
}

// LastLocation 实现 session.LocationProvider
func (s *Store) LastLocation(ctx context.Context, deviceID int64) (*model.Position, error) {
	return s.LatestPosition(ctx, deviceID)
}

// ListPositions 按定位时间倒序返回设备最近 limit 条定位
func (s *Store) ListPositions(ctx context.Context, deviceID int64, limit int) ([]*model.Position, error) {
	opts := options.Find().SetSort(bson.D{{Key: "fixTime", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := s.collection.Find(ctx, bson.M{"deviceId": deviceID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []positionDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]*model.Position, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toPosition())
	}
	return out, nil
}
