package s3

import (
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ConnectionPool recycles S3 clients across concurrent part uploads so
// each per-part task reuses a warmed client instead of constructing one.
type ConnectionPool struct {
	mu          sync.Mutex
	idle        chan *s3.Client
	factory     func() (*s3.Client, error)
	maxSize     int
	currentSize int
	closed      bool

	stats PoolStats
}

// PoolStats is a point-in-time view of pool usage.
type PoolStats struct {
	Idle        int       `json:"idle"`
	Total       int       `json:"total"`
	MaxSize     int       `json:"max_size"`
	Hits        int64     `json:"hits"`
	Misses      int64     `json:"misses"`
	Created     int64     `json:"created"`
	LastCreated time.Time `json:"last_created"`
	LastError   string    `json:"last_error"`
}

// NewConnectionPool constructs an empty pool that lazily creates clients
// via factory. Get does not cap how many clients it creates; maxSize
// bounds only how many idle clients Put keeps.
func NewConnectionPool(maxSize int, factory func() (*s3.Client, error)) (*ConnectionPool, error) {
	if maxSize <= 0 {
		maxSize = 8
	}
	if factory == nil {
		return nil, fmt.Errorf("connection factory cannot be nil")
	}

	return &ConnectionPool{
		idle:    make(chan *s3.Client, maxSize),
		factory: factory,
		maxSize: maxSize,
		stats:   PoolStats{MaxSize: maxSize},
	}, nil
}

// Get returns an idle client, or creates one when none is available.
// A factory failure returns nil; callers treat a nil client as a facade
// error on the next call.
func (p *ConnectionPool) Get() *s3.Client {
	select {
	case conn := <-p.idle:
		p.mu.Lock()
		p.stats.Hits++
		p.mu.Unlock()
		return conn
	default:
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.stats.Misses++

	conn, err := p.factory()
	if err != nil {
		p.stats.LastError = err.Error()
		return nil
	}
	p.currentSize++
	p.stats.Created++
	p.stats.LastCreated = time.Now()
	return conn
}

// Put returns a client to the pool; surplus clients beyond capacity are
// discarded.
func (p *ConnectionPool) Put(conn *s3.Client) {
	if conn == nil {
		return
	}

	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return
	}

	select {
	case p.idle <- conn:
	default:
		p.mu.Lock()
		if p.currentSize > 0 {
			p.currentSize--
		}
		p.mu.Unlock()
	}
}

// Stats returns a snapshot of pool usage.
func (p *ConnectionPool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := p.stats
	stats.Idle = len(p.idle)
	stats.Total = p.currentSize
	return stats
}

// Close drains the pool and rejects further use.
func (p *ConnectionPool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	for {
		select {
		case <-p.idle:
		default:
			return nil
		}
	}
}
