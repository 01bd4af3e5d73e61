package transit

import (
	"context"
	"sync"
	"time"
)

// Poller fetches the active bus set for a filter on a fixed cadence and
// hands results to consumers without overlapping requests.
//
// Changing the filter requires Stop followed by Start with new parameters;
// the poller never swaps filters mid-flight.
type Poller struct {
	source   DataSource
	interval time.Duration
	retry    RetryConfig

	// tick overrides the internal ticker when non-nil. Tests drive the
	// poll cadence through this channel instead of real time.
	tick <-chan time.Time
}

// NewPoller creates a poller over the given data source.
func NewPoller(source DataSource, interval time.Duration) *Poller {
	return &Poller{
		source:   source,
		interval: interval,
		retry:    DefaultRetryConfig(),
	}
}

// SetRetry overrides the backoff applied to a handle's first fetch.
// A zero MaxRetries disables the backoff entirely.
func (p *Poller) SetRetry(cfg RetryConfig) {
	p.retry = cfg
}

// Stats is a snapshot of a handle's poll cycle state.
type Stats struct {
	InFlight      bool
	LastSuccessAt time.Time
	LastError     error
}

// Handle controls one running poll loop.
type Handle struct {
	poller   *Poller
	filter   Filter
	onUpdate func([]BusPosition)
	onError  func(error)

	ctx      context.Context
	cancel   context.CancelFunc
	refreshC chan struct{}
	stopC    chan struct{}
	stopOnce sync.Once

	// cbMu serializes callback delivery. Stop acquires it to wait out an
	// in-progress delivery.
	cbMu sync.Mutex

	mu            sync.Mutex
	stopped       bool
	inFlight      bool
	fetched       bool
	lastSuccessAt time.Time
	lastError     error
}

// Start begins an immediate fetch, then schedules repeating fetches every
// interval. Results and failures are delivered through onUpdate/onError.
// A fetch failure never stops the loop; the next tick retries.
//
// Callbacks may use their own handle freely except for Stop, which waits
// for the delivery in progress and would deadlock.
func (p *Poller) Start(filter Filter, onUpdate func([]BusPosition), onError func(error)) *Handle {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Handle{
		poller:   p,
		filter:   filter,
		onUpdate: onUpdate,
		onError:  onError,
		ctx:      ctx,
		cancel:   cancel,
		refreshC: make(chan struct{}, 1),
		stopC:    make(chan struct{}),
	}
	go h.run()
	return h
}

// Stop cancels the repeating timer. It is idempotent and guarantees that no
// onUpdate or onError call fires after it returns. Stop must not be called
// from inside a callback.
func (h *Handle) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopC)
		h.cancel()
	})
	h.mu.Lock()
	h.stopped = true
	h.mu.Unlock()
	// Wait out any delivery in progress.
	h.cbMu.Lock()
	h.cbMu.Unlock()
}

// RefreshNow triggers an out-of-band fetch immediately without disturbing
// the scheduled cadence. Multiple pending refreshes coalesce into one.
func (h *Handle) RefreshNow() {
	select {
	case h.refreshC <- struct{}{}:
	case <-h.stopC:
	default:
	}
}

// Stats returns a snapshot of the poll cycle state.
func (h *Handle) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Stats{
		InFlight:      h.inFlight,
		LastSuccessAt: h.lastSuccessAt,
		LastError:     h.lastError,
	}
}

// run is the poll loop. Fetches execute in their own goroutine so a slow
// request never blocks tick handling; ticks that fire while a fetch is in
// flight are skipped, never queued.
func (h *Handle) run() {
	tick := h.poller.tick
	if tick == nil {
		ticker := time.NewTicker(h.poller.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	h.fetch()

	for {
		select {
		case <-h.stopC:
			return
		case <-tick:
			h.fetch()
		case <-h.refreshC:
			h.fetch()
		}
	}
}

// fetch starts one fetch unless another is already in flight.
func (h *Handle) fetch() {
	h.mu.Lock()
	if h.stopped || h.inFlight {
		h.mu.Unlock()
		return
	}
	h.inFlight = true
	first := !h.fetched
	h.fetched = true
	h.mu.Unlock()

	go func() {
		buses, err := h.doFetch(first)

		h.cbMu.Lock()
		defer h.cbMu.Unlock()

		h.mu.Lock()
		h.inFlight = false
		if err != nil {
			h.lastError = err
		} else {
			h.lastSuccessAt = time.Now()
			h.lastError = nil
		}
		stopped := h.stopped
		h.mu.Unlock()

		if stopped {
			return
		}
		if err != nil {
			if h.onError != nil {
				h.onError(err)
			}
			return
		}
		if h.onUpdate != nil {
			h.onUpdate(buses)
		}
	}()
}

// doFetch performs one backend call. The first fetch of a handle retries
// with backoff so a transient startup failure does not immediately block
// the screen; steady-state fetches never retry, the next tick is the retry.
func (h *Handle) doFetch(first bool) ([]BusPosition, error) {
	if first && h.poller.retry.MaxRetries > 0 {
		return RetryWithBackoffResult(h.ctx, h.poller.retry, func() ([]BusPosition, error) {
			return h.poller.source.GetBusPositions(h.filter)
		})
	}
	return h.poller.source.GetBusPositions(h.filter)
}
