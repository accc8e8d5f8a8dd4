package twostep

import (
	"sync"
	"time"

	"github.com/MrEthical07/twostep/challenge"
)

// janitor drops expired entries from an in-memory challenge store. Redis
// expires its own keys and needs none.
type janitor struct {
	store    *challenge.MemoryStore
	interval time.Duration
	now      func() time.Time

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func newJanitor(store *challenge.MemoryStore, interval time.Duration, now func() time.Time) *janitor {
	return &janitor{
		store:    store,
		interval: interval,
		now:      now,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (j *janitor) start() {
	if j == nil {
		return
	}
	go j.run()
}

func (j *janitor) run() {
	defer close(j.done)
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.store.Sweep(j.now())
		case <-j.stop:
			return
		}
	}
}

func (j *janitor) close() {
	if j == nil {
		return
	}
	j.stopOnce.Do(func() {
		close(j.stop)
		<-j.done
	})
}
