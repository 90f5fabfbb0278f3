package pool

import (
	"github.com/panjf2000/ants/v2"
	log "github.com/sirupsen/logrus"
)

var _ Pool = (*Ants)(nil)

// Ants delegates to the ants goroutine pool.
type Ants struct {
	pool *ants.Pool
}

func NewAnts(size int) (*Ants, error) {
	p, err := ants.NewPool(size)
	if err != nil {
		return nil, err
	}
	return &Ants{pool: p}, nil
}

func (a *Ants) Spawn(task func()) {
	if err := a.pool.Submit(task); err != nil {
		log.WithField("cause", err).Warning("Could not submit task")
	}
}

func (a *Ants) Shutdown() {
	a.pool.Release()
}
