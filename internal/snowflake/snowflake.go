package snowflake

import (
	"fmt"
	"math"
	"sync"
	"time"
)

const (
	timestampLength int64 = 42                                    // 42
	timestampPos          = 64 - timestampLength                  // 22
	workerLength    int64 = 10                                    // 10
	workerPos             = timestampPos - workerLength           // 12
	incrementLength       = 64 - (timestampLength + workerLength) // 12
)

var (
	maxWorkerValue    = int64(math.Pow(2, float64(workerLength)) - 1)
	maxIncrementValue = int64(math.Pow(2, float64(incrementLength)) - 1)
)

// Generator hands out ids that grow with time, so sorting by id sorts by
// creation order.
type Generator struct {
	mutex         sync.Mutex
	workerID      int64
	lastIncrement int64
	lastTimestamp int64
	now           func() time.Time
}

func New(workerID int64) (*Generator, error) {
	if workerID < 0 || workerID > maxWorkerValue {
		return nil, fmt.Errorf("worker ID value must be between 0 and [%d]", maxWorkerValue)
	}
	return &Generator{workerID: workerID, now: time.Now}, nil
}

// Generate waits for the next millisecond once the increment of the current
// one is used up. It only fails when the clock does not move for a second.
func (g *Generator) Generate() (int64, error) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	timestamp := g.now().UnixMilli()
	if timestamp < g.lastTimestamp {
		// clock went backwards, keep issuing from the last timestamp
		timestamp = g.lastTimestamp
	}

	if timestamp == g.lastTimestamp && g.lastIncrement >= maxIncrementValue {
		started := time.Now()
		for timestamp <= g.lastTimestamp {
			if time.Since(started) > time.Second {
				return 0, fmt.Errorf("increment overflow, clock is stuck at %d", g.lastTimestamp)
			}
			time.Sleep(50 * time.Microsecond)
			timestamp = g.now().UnixMilli()
		}
	}

	if timestamp == g.lastTimestamp {
		g.lastIncrement += 1
	} else {
		g.lastIncrement = 0
		g.lastTimestamp = timestamp
	}

	return timestamp<<timestampPos | g.workerID<<workerPos | g.lastIncrement, nil
}
