package fetch

import (
	"sync"
	"time"
)

// BannerState is a success or error message as a screen shows it.
type BannerState struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Banner holds one transient message that clears itself after its TTL. A newer message
// restarts the countdown.
type Banner struct {
	ttl time.Duration

	mu    sync.Mutex
	state BannerState
	gen   uint64
}

func NewBanner(ttl time.Duration) *Banner {
	return &Banner{ttl: ttl}
}

func (b *Banner) Success(msg string) {
	b.set(BannerState{Success: true, Message: msg})
}

func (b *Banner) Error(msg string) {
	b.set(BannerState{Error: msg})
}

func (b *Banner) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gen++
	b.state = BannerState{}
}

func (b *Banner) State() BannerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Banner) set(st BannerState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = st
	b.gen++
	gen := b.gen

	time.AfterFunc(b.ttl, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.gen == gen {
			b.state = BannerState{}
		}
	})
}
