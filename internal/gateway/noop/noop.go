// Package noop is the disabled-trading venue: every order attempt is
// rejected locally and nothing ever reaches a real venue. It lets the
// rest of the pipeline (aggregation, strategy, journal) run dry.
package noop

import (
	"context"

	"tickflow/internal/gateway"
	"tickflow/internal/logger"
)

const venueName = "noop"

type Adapter struct{}

func New() *Adapter { return &Adapter{} }

func (a *Adapter) Name() string { return venueName }

func (a *Adapter) Capabilities() gateway.Capabilities {
	return gateway.Capabilities{}
}

func (a *Adapter) Connect(ctx context.Context) error   { return nil }
func (a *Adapter) Authorize(ctx context.Context) error { return nil }
func (a *Adapter) Disconnect() error                   { return nil }
func (a *Adapter) StartKeepAlive(ctx context.Context)  {}
func (a *Adapter) StopKeepAlive()                      {}

func (a *Adapter) GetPosition(ctx context.Context, instrument string) (gateway.Position, error) {
	return gateway.Position{Instrument: instrument, Size: 0}, nil
}

func (a *Adapter) PlaceBracketOrder(ctx context.Context, plan gateway.BracketPlan) (*gateway.BracketResult, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	logger.Infof("noop: 丢弃订单 instrument=%s side=%s contracts=%d", plan.Instrument, plan.Side, plan.Contracts)
	return nil, &gateway.RejectionError{Venue: venueName, Reason: "trading disabled"}
}
