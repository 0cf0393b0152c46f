package helper

import (
	"fmt"
	"time"

	"github.com/fuchsia74/grok2api/common/random"
)

const RequestIdKey = "X-Request-Id"

// GetTimestamp get current timestamp in seconds
func GetTimestamp() int64 {
	return time.Now().Unix()
}

func GenRequestID() string {
	return fmt.Sprintf("%s%s", time.Now().Format("20060102150405"), random.GetRandomNumberString(8))
}

func MessageWithRequestId(message string, id string) string {
	return fmt.Sprintf("%s (request id: %s)", message, id)
}
