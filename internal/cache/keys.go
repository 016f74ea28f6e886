package cache

import (
	"fmt"

	"github.com/google/uuid"
)

func AIResponseKey(fingerprint string) string {
	return fmt.Sprintf("ai:response:%s", fingerprint)
}

func JobStatusKey(jobID uuid.UUID) string {
	return fmt.Sprintf("job:%s", jobID)
}

func JobCancelKey(jobID uuid.UUID) string {
	return fmt.Sprintf("job:cancel:%s", jobID)
}

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}
