package stream

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/nimazeighami/dust-zap-engine/internal/fees"
	"github.com/nimazeighami/dust-zap-engine/internal/txbuilder"
	"github.com/nimazeighami/dust-zap-engine/internal/types"
	"github.com/nimazeighami/dust-zap-engine/internal/zaperr"
)

// Pipeline streams a consumed execution context: one token at a time in
// input order, a typed event per token, fees appended last, one complete
// event at the end. Client disconnect (context cancellation) terminates the
// run immediately and discards partial output.
type Pipeline struct {
	proc              *Processor
	feeCalc           *fees.Calculator
	heartbeatInterval time.Duration
	log               *logrus.Entry
}

func NewPipeline(proc *Processor, feeCalc *fees.Calculator, heartbeatInterval time.Duration, log *logrus.Logger) *Pipeline {
	return &Pipeline{
		proc:              proc,
		feeCalc:           feeCalc,
		heartbeatInterval: heartbeatInterval,
		log:               log.WithField("component", "sse-pipeline"),
	}
}

// Run executes the full stream session for one intent.
func (p *Pipeline) Run(ctx context.Context, ectx *types.ExecutionContext, sink EventSink) error {
	log := p.log.WithField("intentId", ectx.IntentID)
	tracked := &trackedSink{sink: sink, last: time.Now()}

	stopHeartbeat := p.startHeartbeat(ctx, tracked, log)
	defer stopHeartbeat()

	if err := tracked.Send(ConnectedEvent{
		Type:      EventConnected,
		IntentID:  ectx.IntentID,
		Timestamp: eventTimestamp(),
	}); err != nil {
		return err
	}

	builder := txbuilder.New()
	totalTokens := len(ectx.DustTokens)
	totalValueUSD := decimal.Zero
	processed := 0

	for i := range ectx.DustTokens {
		if err := ctx.Err(); err != nil {
			log.Info("stream cancelled by client")
			return err
		}

		token := &ectx.DustTokens[i]
		outcome := p.proc.Process(ctx, ectx, token, builder)
		processed++
		progress := decimal.NewFromInt(int64(processed)).
			Div(decimal.NewFromInt(int64(totalTokens))).
			Mul(decimal.NewFromInt(100))

		var event interface{}
		switch {
		case outcome.Success != nil:
			s := outcome.Success
			totalValueUSD = totalValueUSD.Add(s.InputUSD)
			event = TokenReadyEvent{
				Type:                EventTokenReady,
				TokenIndex:          i,
				TokenSymbol:         token.Symbol,
				TokenAddress:        token.Address,
				Transactions:        s.Transactions,
				Provider:            s.Quote.Provider,
				ExpectedTokenAmount: s.Quote.ToAmount.String(),
				MinToAmount:         s.Quote.MinToAmount.String(),
				ToUSD:               s.Quote.ToUSD,
				GasCostUSD:          s.Quote.GasCostUSD,
				TradingLoss:         s.Loss,
				Progress:            progress,
				ProcessedTokens:     processed,
				TotalTokens:         totalTokens,
				Timestamp:           eventTimestamp(),
			}
		default:
			f := outcome.Failure
			if f.Kind == zaperr.KindCancelled {
				log.Info("stream cancelled by client")
				return context.Canceled
			}
			event = TokenFailedEvent{
				Type:                EventTokenFailed,
				TokenIndex:          i,
				TokenSymbol:         token.Symbol,
				TokenAddress:        token.Address,
				Error:               f.Message,
				ErrorCategory:       string(f.Kind),
				UserFriendlyMessage: f.UserMessage,
				Provider:            f.Provider,
				TradingLoss:         f.Loss,
				Progress:            progress,
				ProcessedTokens:     processed,
				TotalTokens:         totalTokens,
				Timestamp:           eventTimestamp(),
			}
		}

		if err := tracked.Send(event); err != nil {
			log.WithError(err).Info("client went away mid-stream")
			return err
		}
	}

	feeInfo, err := p.feeCalc.Append(builder, totalValueUSD, ectx.ETHPriceUSD, ectx.ReferralAddress)
	if err != nil {
		log.WithError(err).Error("fee calculation failed")
		_ = tracked.Send(ErrorEvent{
			Type:      EventError,
			Error:     "failed to finalize fees",
			Timestamp: eventTimestamp(),
		})
		return err
	}

	return tracked.Send(CompleteEvent{
		Type:         EventComplete,
		Transactions: builder.Transactions(),
		Metadata: CompleteMetadata{
			TotalTokens:       totalTokens,
			ProcessedTokens:   processed,
			TotalValueUSD:     totalValueUSD,
			FeeInfo:           *feeInfo,
			EstimatedTotalGas: builder.TotalGas(),
		},
		Timestamp: eventTimestamp(),
	})
}

// startHeartbeat emits a heartbeat whenever no event went out for a full
// heartbeat interval. The timer is rescheduled from the last send, so an
// idle connection hears something within one interval of its last event.
// The returned func stops the task.
func (p *Pipeline) startHeartbeat(ctx context.Context, tracked *trackedSink, log *logrus.Entry) func() {
	stop := make(chan struct{})
	var once sync.Once

	go func() {
		timer := time.NewTimer(p.heartbeatInterval)
		defer timer.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-timer.C:
				if idle := tracked.idleFor(); idle < p.heartbeatInterval {
					timer.Reset(p.heartbeatInterval - idle)
					continue
				}
				if err := tracked.Send(HeartbeatEvent{Type: EventHeartbeat, Timestamp: eventTimestamp()}); err != nil {
					log.WithError(err).Debug("heartbeat write failed")
					return
				}
				timer.Reset(p.heartbeatInterval)
			}
		}
	}()

	return func() { once.Do(func() { close(stop) }) }
}

// trackedSink serializes writes and records when the last event went out so
// the heartbeat only fires on idle connections.
type trackedSink struct {
	mu   sync.Mutex
	sink EventSink
	last time.Time
}

func (t *trackedSink) Send(event interface{}) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.sink.Send(event); err != nil {
		return err
	}
	t.last = time.Now()
	return nil
}

func (t *trackedSink) idleFor() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return time.Since(t.last)
}
