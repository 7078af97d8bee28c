// Package partition splits the guild's member ids between the two workers.
//
// Both strategies return a true partition of their input: every id lands in exactly
// one half and the same input always produces the same halves.
package partition

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/lafikl/consistent"
)

const (
	StrategyHash     = "hash"
	StrategyPosition = "position"
)

// Owner names used on the hash ring. Worker 1 owns half A, worker 2 owns half B.
const (
	ownerA = "worker-1"
	ownerB = "worker-2"
)

type Partitioner interface {
	Partition(ids []string) (a, b []string)
}

func New(strategy string) (Partitioner, error) {
	switch strategy {
	case StrategyHash, "":
		return NewHashPartitioner(), nil
	case StrategyPosition:
		return PositionPartitioner{}, nil
	default:
		return nil, fmt.Errorf("unknown partition strategy %q", strategy)
	}
}

// For returns the half owned by the given worker (1 or 2).
func For(p Partitioner, workerID int, ids []string) []string {
	a, b := p.Partition(ids)
	if workerID == 1 {
		return a
	}
	return b
}

// HashPartitioner assigns each id by consistent hashing, so an id keeps its owner
// when other members join or leave.
type HashPartitioner struct {
	ring *consistent.Consistent
}

func NewHashPartitioner() *HashPartitioner {
	ring := consistent.New()
	ring.Add(ownerA)
	ring.Add(ownerB)
	return &HashPartitioner{ring: ring}
}

func (p *HashPartitioner) Partition(ids []string) (a, b []string) {
	a = make([]string, 0, len(ids)/2+1)
	b = make([]string, 0, len(ids)/2+1)
	for _, id := range ids {
		// the ring always has both owners, Get cannot fail
		owner, _ := p.ring.Get(id)
		if owner == ownerA {
			a = append(a, id)
		} else {
			b = append(b, id)
		}
	}
	return a, b
}

// PositionPartitioner sorts ids in snowflake order and cuts the list in half.
type PositionPartitioner struct{}

func (PositionPartitioner) Partition(ids []string) (a, b []string) {
	sorted := make([]string, len(ids))
	copy(sorted, ids)
	sort.SliceStable(sorted, func(i, j int) bool {
		return lessSnowflake(sorted[i], sorted[j])
	})

	half := len(sorted) / 2
	return sorted[:half], sorted[half:]
}

func lessSnowflake(x, y string) bool {
	xi, xerr := strconv.ParseUint(x, 10, 64)
	yi, yerr := strconv.ParseUint(y, 10, 64)
	if xerr == nil && yerr == nil {
		return xi < yi
	}
	return x < y
}
