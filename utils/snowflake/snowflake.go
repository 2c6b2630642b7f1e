package snowflake

import (
	"errors"
	"strconv"
	"sync"
	"time"
)

const (
	// Epoch is the custom epoch (January 1, 2024 00:00:00 UTC) in milliseconds.
	Epoch int64 = 1704067200000

	WorkerIDBits uint8 = 10
	SequenceBits uint8 = 12

	MaxWorkerID int64 = -1 ^ (-1 << WorkerIDBits)

	workerIDShift  = SequenceBits
	timestampShift = SequenceBits + WorkerIDBits
	sequenceMask   = -1 ^ (-1 << SequenceBits)
)

var (
	ErrInvalidWorkerID     = errors.New("worker ID exceeds maximum value")
	ErrClockMovedBackwards = errors.New("clock moved backwards")
)

// Generator mints time-ordered 63-bit ids: 41 bits of milliseconds since
// Epoch, 10 bits of worker id and a 12-bit per-millisecond sequence.
type Generator struct {
	mu sync.Mutex

	workerID int64
	now      func() time.Time

	sequence      int64
	lastTimestamp int64
}

type Config struct {
	WorkerID int64
	// Now overrides the clock, mostly for tests.
	Now func() time.Time
}

func NewGenerator(config Config) (*Generator, error) {
	if config.WorkerID < 0 || config.WorkerID > MaxWorkerID {
		return nil, ErrInvalidWorkerID
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}
	return &Generator{workerID: config.WorkerID, now: now}, nil
}

// NextID generates the next unique ID
func (g *Generator) NextID() (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	timestamp := g.currentTimestamp()
	if timestamp < g.lastTimestamp {
		return 0, ErrClockMovedBackwards
	}

	if timestamp == g.lastTimestamp {
		g.sequence = (g.sequence + 1) & sequenceMask
		// Sequence overflow - wait for next millisecond
		if g.sequence == 0 {
			timestamp = g.waitNextMillis(g.lastTimestamp)
		}
	} else {
		g.sequence = 0
	}
	g.lastTimestamp = timestamp

	return ((timestamp - Epoch) << timestampShift) |
		(g.workerID << workerIDShift) |
		g.sequence, nil
}

// NextString returns NextID in base 10, the form used for row ids.
func (g *Generator) NextString() (string, error) {
	id, err := g.NextID()
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(id, 10), nil
}

func (g *Generator) currentTimestamp() int64 {
	return g.now().UnixMilli()
}

func (g *Generator) waitNextMillis(lastTimestamp int64) int64 {
	timestamp := g.currentTimestamp()
	for timestamp <= lastTimestamp {
		time.Sleep(100 * time.Microsecond)
		timestamp = g.currentTimestamp()
	}
	return timestamp
}

// Parse extracts the components from a Snowflake ID
func Parse(id int64) (timestamp int64, workerID int64, sequence int64) {
	sequence = id & sequenceMask
	workerID = (id >> workerIDShift) & MaxWorkerID
	timestamp = (id >> timestampShift) + Epoch
	return
}
