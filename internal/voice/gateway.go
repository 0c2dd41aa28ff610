package voice

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const GatewayReopenDelay = 5 * time.Second

type Opener interface {
	Open() error
}

// GatewaySupervisor reopens the top-level gateway connection after a
// disconnect unless the process is shutting down.
type GatewaySupervisor struct {
	conn  Opener
	delay time.Duration
	after func(time.Duration) <-chan time.Time

	mu       sync.Mutex
	shutdown bool
	pending  bool
	quit     chan struct{}
	wg       sync.WaitGroup
}

func NewGatewaySupervisor(conn Opener, delay time.Duration) *GatewaySupervisor {
	if delay <= 0 {
		delay = GatewayReopenDelay
	}
	return &GatewaySupervisor{
		conn:  conn,
		delay: delay,
		after: time.After,
		quit:  make(chan struct{}),
	}
}

func (g *GatewaySupervisor) HandleDisconnect() {
	g.mu.Lock()
	if g.shutdown {
		g.mu.Unlock()
		log.Debug().Msg("gateway closed during shutdown")
		return
	}
	if g.pending {
		g.mu.Unlock()
		return
	}
	g.pending = true
	g.wg.Add(1)
	g.mu.Unlock()

	log.Warn().Dur("delay", g.delay).Msg("gateway disconnected, reopening")
	go g.reopen()
}

func (g *GatewaySupervisor) reopen() {
	defer g.wg.Done()
	defer func() {
		g.mu.Lock()
		g.pending = false
		g.mu.Unlock()
	}()

	for {
		select {
		case <-g.quit:
			return
		case <-g.after(g.delay):
		}

		if g.ShuttingDown() {
			return
		}
		err := g.conn.Open()
		if err == nil {
			log.Info().Msg("gateway reopened")
			return
		}
		log.Error().Err(err).Msg("failed to reopen gateway")
	}
}

func (g *GatewaySupervisor) ShuttingDown() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.shutdown
}

// Shutdown marks the process as stopping and waits for a pending reopen
// to exit.
func (g *GatewaySupervisor) Shutdown() {
	g.mu.Lock()
	if !g.shutdown {
		g.shutdown = true
		close(g.quit)
	}
	g.mu.Unlock()
	g.wg.Wait()
}
