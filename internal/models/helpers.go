package models

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// OrderNumberPrefix starts every human facing order number
const OrderNumberPrefix = "ORD-"

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewOrderNumber derives an order number from the creation time. Numbers
// generated within the same millisecond stay unique and sortable.
func NewOrderNumber(t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	return OrderNumberPrefix + ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// GenerateID generates a new unique ID with the given prefix
func GenerateID(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.New().String())
}

// GetCurrentTime returns the current time in UTC
func GetCurrentTime() time.Time {
	return time.Now().UTC()
}
