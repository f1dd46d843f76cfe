package app

import (
	"fmt"
	"os"

	"github.com/google/uuid"
)

// GenerateServerID 生成服务器实例ID：配置值 > 环境变量 SERVER_ID > tracker-{hostname}-{uuid前8位}
func GenerateServerID(configured string) string {
	if configured != "" {
		return configured
	}
	if serverID := os.Getenv("SERVER_ID"); serverID != "" {
		return serverID
	}
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return fmt.Sprintf("tracker-%s-%s", hostname, uuid.New().String()[:8])
}
