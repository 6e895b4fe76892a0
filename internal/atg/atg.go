// Package atg implements the AutomaticTransactionGenerator: a per-connector
// cooperative transaction loop bound to a StationEngine (spec.md §4.3).
// Grounded on the teacher's charger transaction/status flow, generalized
// from a single hard-coded connector to one loop per connector, each with
// its own counters and horizon.
package atg

import (
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/weilun-shrimp/ocpp-fleet-simulator/internal/idtag"
)

// Config is one connector's ATG parameters, normally read off a station
// template's AutomaticTransactionGenerator block.
type Config struct {
	Enabled                        bool
	MinDelayBetweenTwoTransactions  int // seconds
	MaxDelayBetweenTwoTransactions  int // seconds
	ProbabilityOfStart              float64
	MinDuration                     int // seconds
	MaxDuration                     int // seconds
	StopAfterHours                  float64
	RequireAuthorize                bool
}

// Counters tracks the persisted run statistics spec.md §4.3 names.
type Counters struct {
	AuthorizeRequests             int
	AcceptedAuthorizeRequests     int
	RejectedAuthorizeRequests     int
	StartTransactionRequests      int
	AcceptedStartTransactions     int
	RejectedStartTransactions     int
	StopTransactionRequests       int
	AcceptedStopTransactions      int
	RejectedStopTransactions      int
	SkippedConsecutiveTransactions int
	SkippedTransactions           int

	StartDate   time.Time
	LastRunDate time.Time
	StopDate    time.Time
	StoppedDate time.Time
}

// Connector is what the ATG loop needs from a station connector without
// depending on the station package directly, avoiding a cycle (station
// imports atg to start/stop loops; atg must not import station back).
type Connector interface {
	// Authorize sends an Authorize request for idTag and reports acceptance.
	Authorize(idTag string) (bool, error)
	// StartTransaction starts a transaction and reports whether it was accepted.
	StartTransaction(idTag string) (accepted bool, err error)
	// StopTransaction stops the connector's current transaction.
	StopTransaction(reason string) error
	// Guard reports whether the loop may keep running right now: station
	// Accepted, station/connector availability, connector status != Unavailable.
	Guard() bool
}

// Loop runs one connector's ATG cooperative loop.
type Loop struct {
	mu       sync.Mutex
	cfg      Config
	conn     Connector
	idTags   *idtag.Cache
	connectorId int
	log      zerolog.Logger
	rng      *rand.Rand

	running  bool
	stopCh   chan struct{}
	doneCh   chan struct{}

	counters Counters
}

// New constructs a Loop. previousRunDuration lets a restarted loop resume
// its horizon instead of extending it (spec.md §4.3 "Horizon").
func New(connectorId int, cfg Config, conn Connector, idTags *idtag.Cache, previousRunDuration time.Duration, log zerolog.Logger) *Loop {
	now := time.Now()
	stopDate := now.Add(time.Duration(cfg.StopAfterHours*3600)*time.Second - previousRunDuration)

	return &Loop{
		cfg:         cfg,
		conn:        conn,
		idTags:      idTags,
		connectorId: connectorId,
		log:         log.With().Int("connectorId", connectorId).Logger(),
		rng:         rand.New(rand.NewSource(now.UnixNano() + int64(connectorId))),
		counters: Counters{
			StartDate: now,
			StopDate:  stopDate,
		},
	}
}

// Start launches the loop's goroutine; it is a no-op if already running.
func (l *Loop) Start() {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return
	}
	l.running = true
	l.stopCh = make(chan struct{})
	l.doneCh = make(chan struct{})
	l.mu.Unlock()

	go l.run()
}

// Stop signals the loop to end at its next guard check and blocks until it
// exits (spec.md §5 "stop ATG cooperatively").
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	close(l.stopCh)
	done := l.doneCh
	l.mu.Unlock()

	<-done

	l.mu.Lock()
	l.running = false
	l.counters.StoppedDate = time.Now()
	l.mu.Unlock()
}

// Counters returns a snapshot of this loop's persisted run statistics.
func (l *Loop) Counters() Counters {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counters
}

func (l *Loop) run() {
	defer close(l.doneCh)

	for {
		select {
		case <-l.stopCh:
			return
		default:
		}

		l.mu.Lock()
		stopDate := l.counters.StopDate
		l.mu.Unlock()
		if time.Now().After(stopDate) {
			return
		}

		if !l.conn.Guard() {
			return
		}

		wait := randSeconds(l.rng, l.cfg.MinDelayBetweenTwoTransactions, l.cfg.MaxDelayBetweenTwoTransactions)
		if !l.sleep(wait) {
			return
		}

		if l.rng.Float64() < l.cfg.ProbabilityOfStart {
			l.runTransaction()
		} else {
			l.mu.Lock()
			l.counters.SkippedConsecutiveTransactions++
			l.counters.SkippedTransactions++
			l.mu.Unlock()
		}

		l.mu.Lock()
		l.counters.LastRunDate = time.Now()
		l.mu.Unlock()
	}
}

func (l *Loop) runTransaction() {
	l.mu.Lock()
	l.counters.SkippedConsecutiveTransactions = 0
	l.mu.Unlock()

	idTag, err := l.idTags.Issue(l.connectorId)
	if err != nil {
		l.log.Warn().Err(err).Msg("no id-tag available, skipping transaction")
		return
	}

	if l.cfg.RequireAuthorize {
		l.mu.Lock()
		l.counters.AuthorizeRequests++
		l.mu.Unlock()

		accepted, err := l.conn.Authorize(idTag)
		if err != nil {
			l.log.Warn().Err(err).Msg("Authorize failed")
			return
		}
		l.mu.Lock()
		if accepted {
			l.counters.AcceptedAuthorizeRequests++
		} else {
			l.counters.RejectedAuthorizeRequests++
		}
		l.mu.Unlock()
		if !accepted {
			return
		}
	}

	l.mu.Lock()
	l.counters.StartTransactionRequests++
	l.mu.Unlock()

	accepted, err := l.conn.StartTransaction(idTag)
	if err != nil {
		l.log.Warn().Err(err).Msg("StartTransaction failed")
		return
	}
	l.mu.Lock()
	if accepted {
		l.counters.AcceptedStartTransactions++
	} else {
		l.counters.RejectedStartTransactions++
	}
	l.mu.Unlock()
	if !accepted {
		return
	}

	duration := randSeconds(l.rng, l.cfg.MinDuration, l.cfg.MaxDuration)
	if !l.sleep(duration) {
		return
	}

	l.mu.Lock()
	l.counters.StopTransactionRequests++
	l.mu.Unlock()

	err = l.conn.StopTransaction("Local")
	l.mu.Lock()
	if err == nil {
		l.counters.AcceptedStopTransactions++
	} else {
		l.counters.RejectedStopTransactions++
	}
	l.mu.Unlock()
	if err != nil {
		l.log.Warn().Err(err).Msg("StopTransaction failed")
	}
}

// sleep waits for d or returns false early if stopCh fires.
func (l *Loop) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-l.stopCh:
		return false
	case <-timer.C:
		return true
	}
}

func randSeconds(rng *rand.Rand, min, max int) time.Duration {
	if max <= min {
		return time.Duration(min) * time.Second
	}
	return time.Duration(min+rng.Intn(max-min)) * time.Second
}
