package beacon

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/status-im/verif-proxy/common"
	"github.com/status-im/verif-proxy/consensus"
	"github.com/status-im/verif-proxy/logutils"
	"github.com/status-im/verif-proxy/metrics"
)

const (
	SecondsPerSlot      = 12
	DefaultPollInterval = SecondsPerSlot * time.Second
	DefaultMaxHeadAge   = 5 * SecondsPerSlot * time.Second
	defaultPollRetries  = 3
)

type Config struct {
	URL          string
	ChainID      uint64
	PollInterval time.Duration
	// MaxHeadAge is how old the latest head may be before the tracker reports syncing.
	MaxHeadAge time.Duration
	HTTPClient *http.Client
}

// Tracker polls a beacon node for light client updates and exposes the execution heads
// they carry. Sync committee signatures are not checked here: the heads are only as
// trustworthy as the configured consensus endpoint, or the light client engine serving it.
type Tracker struct {
	api          *LightAPI
	chainID      uint64
	pollInterval time.Duration
	maxHeadAge   time.Duration
	now          func() time.Time
	log          *zap.Logger

	headLock      sync.RWMutex
	latest        *consensus.Head
	finalized     *consensus.Head
	startingBlock uint64

	quit chan struct{}
	wg   sync.WaitGroup
}

var _ consensus.Consensus = (*Tracker)(nil)

func NewTracker(cfg Config) *Tracker {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.MaxHeadAge == 0 {
		cfg.MaxHeadAge = DefaultMaxHeadAge
	}
	return &Tracker{
		api:          NewLightAPI(cfg.URL, cfg.HTTPClient),
		chainID:      cfg.ChainID,
		pollInterval: cfg.PollInterval,
		maxHeadAge:   cfg.MaxHeadAge,
		now:          time.Now,
		log:          logutils.ZapLogger().Named("beacon"),
	}
}

// Start polls once right away, then every poll interval until Stop.
func (t *Tracker) Start() {
	t.quit = make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())

	t.wg.Add(1)
	go func() {
		defer common.LogOnPanic()
		defer t.wg.Done()
		defer cancel()

		ticker := time.NewTicker(t.pollInterval)
		defer ticker.Stop()

		t.poll(ctx)
		for {
			select {
			case <-ticker.C:
				t.poll(ctx)
			case <-t.quit:
				return
			}
		}
	}()
}

func (t *Tracker) Stop() {
	if t.quit == nil {
		return
	}
	close(t.quit)
	t.wg.Wait()
	t.quit = nil
}

func (t *Tracker) poll(ctx context.Context) {
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), defaultPollRetries), ctx)
	err := backoff.Retry(func() error { return t.Update(ctx) }, b)
	if err != nil {
		t.log.Warn("failed to update verified heads", zap.Error(err))
	}
}

// Update fetches both heads once.
func (t *Tracker) Update(ctx context.Context) error {
	latest, err := t.api.OptimisticHead(ctx)
	if err != nil {
		return err
	}
	finalized, err := t.api.FinalizedHead(ctx)
	if err != nil {
		return err
	}
	t.setHeads(latest, finalized)
	return nil
}

func (t *Tracker) setHeads(latest, finalized *consensus.Head) {
	t.headLock.Lock()
	defer t.headLock.Unlock()

	if t.latest == nil {
		t.startingBlock = latest.Number
	}
	if t.latest == nil || latest.Number >= t.latest.Number {
		if t.latest == nil || t.latest.Hash != latest.Hash {
			t.log.Debug("new verified head", zap.Uint64("number", latest.Number), zap.Stringer("hash", latest.Hash))
		}
		t.latest = latest
		metrics.SetVerifiedHead("latest", latest.Number)
	}
	if t.finalized == nil || finalized.Number >= t.finalized.Number {
		t.finalized = finalized
		metrics.SetVerifiedHead("finalized", finalized.Number)
	}
}

func (t *Tracker) ChainID() uint64 {
	return t.chainID
}

func (t *Tracker) LatestHead(ctx context.Context) (*consensus.Head, error) {
	t.headLock.RLock()
	defer t.headLock.RUnlock()
	if t.latest == nil {
		return nil, consensus.ErrHeadUnavailable
	}
	return t.latest, nil
}

func (t *Tracker) FinalizedHead(ctx context.Context) (*consensus.Head, error) {
	t.headLock.RLock()
	defer t.headLock.RUnlock()
	if t.finalized == nil {
		return nil, consensus.ErrHeadUnavailable
	}
	return t.finalized, nil
}

// SyncStatus reports syncing until a head is known and whenever it is older than MaxHeadAge.
func (t *Tracker) SyncStatus(ctx context.Context) (*consensus.SyncStatus, error) {
	t.headLock.RLock()
	defer t.headLock.RUnlock()

	if t.latest == nil {
		return &consensus.SyncStatus{Syncing: true}, nil
	}

	age := t.now().Sub(time.Unix(int64(t.latest.Timestamp), 0))
	if age <= t.maxHeadAge {
		return &consensus.SyncStatus{}, nil
	}
	behind := uint64(age / (SecondsPerSlot * time.Second))
	return &consensus.SyncStatus{
		Syncing:       true,
		StartingBlock: t.startingBlock,
		CurrentBlock:  t.latest.Number,
		HighestBlock:  t.latest.Number + behind,
	}, nil
}
