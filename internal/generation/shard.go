package generation

import "github.com/pkg/errors"

// Owns reports whether the shard at index emits the output of request i.
func Owns(i, count, index int) bool {
	return i%count == index
}

// Shard identifies one replica among WorldSize cooperating ones.
type Shard struct {
	Rank      int
	WorldSize int
}

// SingleShard is the shard of an unsharded deployment.
var SingleShard = Shard{Rank: 0, WorldSize: 1}

func (s Shard) Owns(i int) bool {
	return Owns(i, s.WorldSize, s.Rank)
}

func (s Shard) Validate() error {
	if s.WorldSize < 1 || s.Rank < 0 || s.Rank >= s.WorldSize {
		return errors.Wrapf(ErrInvariantViolation, "invalid shard rank=%d world_size=%d", s.Rank, s.WorldSize)
	}
	return nil
}
