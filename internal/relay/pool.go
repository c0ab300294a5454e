package relay

import (
	"context"
	"errors"
	"fmt"

	"github.com/nbd-wtf/go-nostr"

	"github.com/hzrd149/blossom-drive-client/internal/drive"
)

// Pool publishes to and queries a fixed set of relays. Connections are
// opened per call; drive traffic is far too sparse to justify keeping
// sockets warm.
type Pool struct {
	urls   []string
	logger drive.Logger
}

// NewPool creates a pool over the given relay URLs.
func NewPool(urls []string, logger drive.Logger) *Pool {
	return &Pool{urls: urls, logger: logger}
}

// Publish sends the event to every relay and succeeds if at least one
// accepts it. With no acceptances the joined per-relay errors are
// returned.
func (p *Pool) Publish(ctx context.Context, ev *nostr.Event) error {
	if len(p.urls) == 0 {
		return fmt.Errorf("publishing event: no relays configured")
	}
	var errs []error
	accepted := 0
	for _, url := range p.urls {
		if err := p.publishTo(ctx, url, ev); err != nil {
			p.logger.Debug("relay rejected event", "relay", url, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", url, err))
			continue
		}
		accepted++
	}
	if accepted == 0 {
		return fmt.Errorf("no relay accepted event: %w", errors.Join(errs...))
	}
	return nil
}

func (p *Pool) publishTo(ctx context.Context, url string, ev *nostr.Event) error {
	r, err := nostr.RelayConnect(ctx, url)
	if err != nil {
		return fmt.Errorf("connecting: %w", err)
	}
	defer r.Close()
	return r.Publish(ctx, *ev)
}

// FetchLatest queries every relay for the newest manifest event matching
// kind, author and identifier. It returns nil without error when no relay
// has one. Per-relay failures are logged and skipped as long as at least
// one relay answers.
func (p *Pool) FetchLatest(ctx context.Context, kind int, pubkey, identifier string) (*nostr.Event, error) {
	filter := nostr.Filter{
		Kinds: []int{kind},
		Limit: 1,
	}
	if pubkey != "" {
		filter.Authors = []string{pubkey}
	}
	if identifier != "" {
		filter.Tags = nostr.TagMap{"d": []string{identifier}}
	}

	var newest *nostr.Event
	answered := 0
	var errs []error
	for _, url := range p.urls {
		events, err := p.queryOne(ctx, url, filter)
		if err != nil {
			p.logger.Debug("relay query failed", "relay", url, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", url, err))
			continue
		}
		answered++
		for _, ev := range events {
			if newest == nil || ev.CreatedAt > newest.CreatedAt {
				newest = ev
			}
		}
	}
	if answered == 0 && len(errs) > 0 {
		return nil, fmt.Errorf("no relay answered: %w", errors.Join(errs...))
	}
	return newest, nil
}

func (p *Pool) queryOne(ctx context.Context, url string, filter nostr.Filter) ([]*nostr.Event, error) {
	r, err := nostr.RelayConnect(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connecting: %w", err)
	}
	defer r.Close()
	return r.QuerySync(ctx, filter)
}
