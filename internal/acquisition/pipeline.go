package acquisition

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"ratewatch/internal/adapters"
	"ratewatch/internal/cache"
	"ratewatch/internal/domain"
)

// Stage identifies one of the two independent upstream feeds.
type Stage string

const (
	StageCrypto Stage = "crypto"
	StageFiat   Stage = "fiat"
)

// StageStatus is the progress of a single stage within a cycle.
type StageStatus string

const (
	StageLoading  StageStatus = "loading"
	StageComplete StageStatus = "complete"
	StageError    StageStatus = "error"
)

// StageEvent is streamed to the observer as a cycle progresses. A clean
// cycle emits four: loading and complete for each stage.
type StageEvent struct {
	Stage  Stage
	Status StageStatus
	Err    error
}

// CycleState is the pipeline's state between and during cycles.
type CycleState string

const (
	StateIdle    CycleState = "idle"
	StateLoading CycleState = "loading"
	StateSuccess CycleState = "success"
	StateFailed  CycleState = "failed"
)

// CycleResult summarizes one completed cycle. A partial success shows up as
// a zero count on the side that failed, with its error kept in Errors.
type CycleResult struct {
	ExecID        string
	CryptoCount   int
	FiatCount     int
	MissingPrices []string
	Errors        []string
	StartedAt     time.Time
	FinishedAt    time.Time
}

// Pipeline runs one full refill of the cache from the upstream client. At
// most one cycle is in flight; a concurrent Run fails fast with
// ErrRefreshInFlight instead of queuing.
type Pipeline struct {
	client     adapters.PriceClient
	store      *cache.Store
	coinIDs    []string
	currencies []string
	onStage    func(StageEvent)

	mu    sync.Mutex
	state CycleState
}

func NewPipeline(client adapters.PriceClient, store *cache.Store, coinIDs, currencies []string) *Pipeline {
	return &Pipeline{
		client:     client,
		store:      store,
		coinIDs:    coinIDs,
		currencies: currencies,
		state:      StateIdle,
	}
}

// OnStage registers the per-stage progress observer. Must be set before the
// first Run. The callback is only ever invoked from the goroutine driving
// Run, never concurrently.
func (p *Pipeline) OnStage(fn func(StageEvent)) { p.onStage = fn }

func (p *Pipeline) State() CycleState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

type feedOutcome struct {
	stage  Stage
	crypto domain.BulkPrices
	fiat   map[string]float64
	err    error
}

// Run executes one cycle. Both feeds are attempted independently; the cycle
// fails only when both do, and nothing is written to the store in that case.
func (p *Pipeline) Run(ctx context.Context) (CycleResult, error) {
	p.mu.Lock()
	if p.state == StateLoading {
		p.mu.Unlock()
		return CycleResult{}, domain.ErrRefreshInFlight
	}
	p.state = StateLoading
	p.mu.Unlock()

	result := CycleResult{ExecID: uuid.NewString(), StartedAt: time.Now()}
	logrus.WithField("exec_id", result.ExecID).Debug("Acquisition cycle started")

	// All events are emitted from this goroutine, so observers see them
	// sequentially.
	p.emit(StageEvent{Stage: StageCrypto, Status: StageLoading})
	p.emit(StageEvent{Stage: StageFiat, Status: StageLoading})

	outcomes := make(chan feedOutcome, 2)
	go func() {
		bulk, err := p.client.FetchCryptoPricesBulk(ctx, p.coinIDs, p.currencies)
		outcomes <- feedOutcome{stage: StageCrypto, crypto: bulk, err: err}
	}()
	go func() {
		rates, err := p.client.FetchExchangeRates(ctx)
		outcomes <- feedOutcome{stage: StageFiat, fiat: rates, err: err}
	}()

	var cryptoData map[string]map[string]float64
	var fiatData map[string]float64
	var cryptoErr, fiatErr error
	for i := 0; i < 2; i++ {
		outcome := <-outcomes
		if outcome.err != nil {
			p.emit(StageEvent{Stage: outcome.stage, Status: StageError, Err: outcome.err})
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", outcome.stage, outcome.err))
			if outcome.stage == StageCrypto {
				cryptoErr = outcome.err
			} else {
				fiatErr = outcome.err
			}
			continue
		}
		p.emit(StageEvent{Stage: outcome.stage, Status: StageComplete})
		if outcome.stage == StageCrypto {
			cryptoData = outcome.crypto.Prices
			result.MissingPrices = outcome.crypto.Missing
		} else {
			fiatData = outcome.fiat
		}
	}

	result.FinishedAt = time.Now()

	if cryptoErr != nil && fiatErr != nil {
		err := fmt.Errorf("acquisition cycle failed: crypto feed: %v; fiat feed: %v", cryptoErr, fiatErr)
		p.finish(StateFailed)
		return result, err
	}

	if err := p.store.Populate(cryptoData, fiatData); err != nil {
		p.finish(StateFailed)
		return result, err
	}

	status := p.store.Status()
	result.CryptoCount = status.CryptoCount
	result.FiatCount = status.FiatCount
	p.finish(StateSuccess)

	entry := logrus.WithFields(logrus.Fields{
		"exec_id":      result.ExecID,
		"crypto_count": result.CryptoCount,
		"fiat_count":   result.FiatCount,
	})
	if len(result.Errors) > 0 {
		entry.WithField("errors", result.Errors).Warn("Acquisition cycle completed partially")
	} else {
		entry.Info("Acquisition cycle completed")
	}
	return result, nil
}

func (p *Pipeline) finish(state CycleState) {
	p.mu.Lock()
	p.state = state
	p.mu.Unlock()
}

func (p *Pipeline) emit(event StageEvent) {
	if p.onStage != nil {
		p.onStage(event)
	}
}
