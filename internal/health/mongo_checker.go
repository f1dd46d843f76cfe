package health

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoChecker MongoDB 健康检查器
type MongoChecker struct {
	client *mongo.Client
}

func NewMongoChecker(client *mongo.Client) *MongoChecker {
	return &MongoChecker{client: client}
}

func (c *MongoChecker) Name() string { return "mongo" }

func (c *MongoChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	if err := c.client.Ping(ctx, readpref.Primary()); err != nil {
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: fmt.Sprintf("ping failed: %v", err),
			Latency: time.Since(start),
		}
	}
	return CheckResult{
		Status:  StatusHealthy,
		Message: "ok",
		Details: map[string]interface{}{
			"sessions_in_progress": c.client.NumberSessionsInProgress(),
		},
		Latency: time.Since(start),
	}
}
