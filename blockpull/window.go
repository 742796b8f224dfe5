package blockpull

import (
	"github.com/stratis-go/fullnode/chain"
)

// requestNextWindow moves LookaheadLocation up to lookahead headers further
// and asks the requester for every header it passed over. Nothing is
// requested when the window already reaches the chain tip, or when
// Location is not on the current chain yet.
func (p *LookaheadPuller) requestNextWindow() error {
	loc := p.location.Load()
	if loc == nil {
		return ErrLocationNotSet
	}

	headers := p.nextWindow(loc)
	if len(headers) == 0 {
		return nil
	}

	p.metrics.WindowRequests.Add(1)
	p.metrics.RequestedBlocks.Add(float64(len(headers)))
	p.metrics.LookaheadHeight.Set(float64(headers[len(headers)-1].Height))

	p.logger.Debug("Requesting blocks",
		"from", headers[0].Height,
		"to", headers[len(headers)-1].Height,
		"location", loc.Height)

	p.requester.RequestBlocks(headers)
	return nil
}

// nextWindow computes the range (base, target] and advances
// LookaheadLocation to target.
func (p *LookaheadPuller) nextWindow(loc *chain.Header) []*chain.Header {
	p.chainMtx.Lock()
	defer p.chainMtx.Unlock()

	view := p.chain
	if view == nil {
		return nil
	}

	la := p.lookaheadLocation.Load()
	if la != nil && !view.Contains(la.Hash()) {
		p.logger.Info("Lookahead location left the chain, restarting window from location",
			"lookahead", la, "location", loc)
		la = nil
		p.clearLookahead()
	}
	if !view.Contains(loc.Hash()) {
		p.logger.Debug("Location not on chain yet, not requesting", "location", loc)
		return nil
	}

	base := loc
	if la != nil && la.Height > loc.Height {
		base = la
	}
	targetHeight := min(base.Height+p.lookahead, view.Height())

	headers := make([]*chain.Header, 0, max(targetHeight-base.Height, 0))
	target := base
	for h := base.Height + 1; h <= targetHeight; h++ {
		header := view.HeaderAt(h)
		if header == nil {
			break
		}
		headers = append(headers, header)
		target = header
	}
	p.lookaheadLocation.Store(target)
	return headers
}

// clearLookahead unsets LookaheadLocation. chainMtx must be held.
func (p *LookaheadPuller) clearLookahead() {
	p.lookaheadLocation.Store(nil)
	p.metrics.LookaheadHeight.Set(-1)
}
