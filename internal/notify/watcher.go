package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/authensus/marketd/internal/domain"
)

// Watcher subscribes to ledger event channels and turns resolution and
// settlement events into operator notifications.
type Watcher struct {
	bus      domain.SignalBus
	notifier *Notifier
	logger   *slog.Logger
}

// NewWatcher creates a Watcher that forwards ledger events through the given
// notifier.
func NewWatcher(bus domain.SignalBus, notifier *Notifier, logger *slog.Logger) *Watcher {
	return &Watcher{
		bus:      bus,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "notify_watcher")),
	}
}

// Run consumes the resolution and settlement channels until the context is
// cancelled. It should be called in a goroutine.
func (w *Watcher) Run(ctx context.Context) error {
	resolutions, err := w.bus.Subscribe(ctx, domain.ChannelResolution)
	if err != nil {
		return fmt.Errorf("notify: subscribe %s: %w", domain.ChannelResolution, err)
	}
	settlements, err := w.bus.Subscribe(ctx, domain.ChannelSettlement)
	if err != nil {
		return fmt.Errorf("notify: subscribe %s: %w", domain.ChannelSettlement, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-resolutions:
			if !ok {
				return fmt.Errorf("notify: channel %s closed", domain.ChannelResolution)
			}
			w.handleResolution(ctx, data)
		case data, ok := <-settlements:
			if !ok {
				return fmt.Errorf("notify: channel %s closed", domain.ChannelSettlement)
			}
			w.handleSettlement(ctx, data)
		}
	}
}

func (w *Watcher) handleResolution(ctx context.Context, data []byte) {
	var ev domain.FacetResolvedEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		w.logger.WarnContext(ctx, "bad resolution event", slog.String("error", err.Error()))
		return
	}

	title := "Facet resolved"
	msg := fmt.Sprintf("market %s\nfacet %s resolved to %q\npool %d (winning %d)",
		ev.Market.Hex(), ev.Facet, ev.Winner, ev.PoolTotal, ev.WinningPool)
	if ev.AllResolved {
		msg += "\nall facets resolved; settlement is open"
	}

	if err := w.notifier.Notify(ctx, "facet_resolved", title, msg); err != nil {
		w.logger.WarnContext(ctx, "resolution notify failed", slog.String("error", err.Error()))
	}
}

func (w *Watcher) handleSettlement(ctx context.Context, data []byte) {
	var ev domain.StakeSettledEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		w.logger.WarnContext(ctx, "bad settlement event", slog.String("error", err.Error()))
		return
	}

	title := "Stake settled"
	msg := fmt.Sprintf("market %s\nstake %s\nbettor %s paid %d on %s",
		ev.Market.Hex(), ev.Stake.Hex(), ev.Bettor.Hex(), ev.Payout, ev.Facet)

	if err := w.notifier.Notify(ctx, "stake_settled", title, msg); err != nil {
		w.logger.WarnContext(ctx, "settlement notify failed", slog.String("error", err.Error()))
	}
}

// NotifyError reports an operational failure to the error event channel.
func (w *Watcher) NotifyError(ctx context.Context, source string, err error) {
	msg := fmt.Sprintf("source: %s\nerror: %v", source, err)
	if nerr := w.notifier.Notify(ctx, "error", "Ledger error", msg); nerr != nil {
		w.logger.WarnContext(ctx, "error notify failed", slog.String("error", nerr.Error()))
	}
}
