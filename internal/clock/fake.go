package clock

import (
	"sync"
	"time"
)

// Fake is a deterministic Clock. After fires immediately and advances the
// fake time by the requested duration, so settle intervals cost nothing in
// tests while still being recorded. Tickers only fire when Tick is called.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	sleeps  []time.Duration
	tickers map[*fakeTicker]struct{}
}

type fakeTicker struct {
	c chan time.Time
}

// NewFake returns a Fake starting at the given time.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start, tickers: make(map[*fakeTicker]struct{})}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) After(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sleeps = append(f.sleeps, d)
	f.now = f.now.Add(d)
	ch := make(chan time.Time, 1)
	ch <- f.now
	return ch
}

func (f *Fake) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}
	ft := &fakeTicker{c: make(chan time.Time, 1)}
	f.mu.Lock()
	f.tickers[ft] = struct{}{}
	f.mu.Unlock()
	return &Ticker{
		C: ft.c,
		stopFunc: func() {
			f.mu.Lock()
			delete(f.tickers, ft)
			f.mu.Unlock()
		},
	}
}

// Tick delivers one tick to every active ticker. A ticker whose previous
// tick is still unread drops this one.
func (f *Fake) Tick() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ft := range f.tickers {
		select {
		case ft.c <- f.now:
		default:
		}
	}
}

// ActiveTickers reports how many tickers have not been stopped.
func (f *Fake) ActiveTickers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tickers)
}

// Sleeps returns every duration passed to After, in call order.
func (f *Fake) Sleeps() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]time.Duration, len(f.sleeps))
	copy(out, f.sleeps)
	return out
}
