package common

import "errors"

var (
	ErrModulePaused  = errors.New("module paused")
	ErrBiddingClosed = errors.New("bidding inactive")
)

type PauseView interface {
	IsPaused(module string) bool
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// BidView reports whether new bid activity is accepted. Cancellation paths
// never consult it.
type BidView interface {
	BiddingActive() bool
}

func BidGuard(v BidView) error {
	if v == nil {
		return nil
	}
	if !v.BiddingActive() {
		return ErrBiddingClosed
	}
	return nil
}
