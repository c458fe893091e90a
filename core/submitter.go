package core

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/datachainlab/ibc-relayer/log"
	"github.com/datachainlab/ibc-relayer/metrics"
	"github.com/datachainlab/ibc-relayer/otelcore/semconv"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type submitRequest struct {
	ctx  context.Context
	msgs []Msg
	resp chan submitResponse
}

type submitResponse struct {
	result *TxResult
	err    error
}

// Submitter is the single submission point for one signing account on one chain.
// Requests are handled one at a time in arrival order, so account sequence numbers never race.
type Submitter struct {
	chain    ChainHandle
	reqs     chan submitRequest
	stopping chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewSubmitter starts the submission loop for chain's account.
func NewSubmitter(chain ChainHandle) *Submitter {
	s := &Submitter{
		chain:    chain,
		reqs:     make(chan submitRequest),
		stopping: make(chan struct{}),
		done:     make(chan struct{}),
	}
	go s.loop()
	return s
}

func (s *Submitter) loop() {
	defer close(s.done)
	for {
		select {
		case <-s.stopping:
			return
		case req := <-s.reqs:
			// a request that was accepted always runs to completion
			res, err := s.chain.Submit(context.WithoutCancel(req.ctx), req.msgs)
			req.resp <- submitResponse{result: res, err: err}
		}
	}
}

// Submit validates msgs through their routing envelopes, queues them and waits for the result.
// A transaction rejected by the chain is returned as the typed error rebuilt from its code.
func (s *Submitter) Submit(ctx context.Context, msgs []Msg) (*TxResult, error) {
	ctx, span := tracer.Start(ctx, "Submitter.Submit", trace.WithAttributes(
		semconv.ChainIDKey.String(s.chain.ChainID()),
		attribute.Int("msg_count", len(msgs)),
	))
	defer span.End()
	logger := log.GetLogger().WithModule("core.submitter")

	if len(msgs) == 0 {
		return nil, nil
	}
	if _, err := WrapAll(msgs); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	req := submitRequest{ctx: ctx, msgs: msgs, resp: make(chan submitResponse, 1)}
	select {
	case <-s.stopping:
		return nil, ErrShutdown
	case <-ctx.Done():
		return nil, ctx.Err()
	case s.reqs <- req:
	}

	start := time.Now()
	resp := <-req.resp
	chainAttr := semconv.ChainIDKey.String(s.chain.ChainID())
	if resp.err != nil {
		metrics.RecordSubmission(ctx, "error", chainAttr)
		logger.ErrorContext(ctx, "failed to submit msgs", resp.err, "chain_id", s.chain.ChainID(), "msgs", msgTypes(msgs))
		span.SetStatus(codes.Error, resp.err.Error())
		return nil, resp.err
	}
	if err := resp.result.Err(); err != nil {
		if errors.Is(err, ErrRedundantMsg) {
			metrics.RecordSubmission(ctx, "redundant", chainAttr)
			logger.DebugContext(ctx, "msgs already applied", "chain_id", s.chain.ChainID(), "msgs", msgTypes(msgs))
		} else {
			metrics.RecordSubmission(ctx, "rejected", chainAttr)
			logger.WarnContext(ctx, "msgs rejected", "chain_id", s.chain.ChainID(), "msgs", msgTypes(msgs), "code", resp.result.Code, "log", resp.result.Log)
			span.SetStatus(codes.Error, err.Error())
		}
		return resp.result, err
	}
	metrics.RecordSubmission(ctx, "success", chainAttr)
	logger.InfoContext(ctx, "msgs submitted",
		"chain_id", s.chain.ChainID(),
		"msgs", msgTypes(msgs),
		"height", resp.result.Height.String(),
		"elapsed", time.Since(start).String(),
	)
	return resp.result, nil
}

// Stop rejects new submissions and waits for the one in flight to finish.
func (s *Submitter) Stop() {
	s.stopOnce.Do(func() { close(s.stopping) })
	<-s.done
}

func msgTypes(msgs []Msg) []string {
	types := make([]string, 0, len(msgs))
	for _, m := range msgs {
		types = append(types, m.Type())
	}
	return types
}

// SubmitterPool hands out one Submitter per (chain, account).
type SubmitterPool struct {
	mu         sync.Mutex
	submitters map[string]*Submitter
}

func NewSubmitterPool() *SubmitterPool {
	return &SubmitterPool{submitters: make(map[string]*Submitter)}
}

func (p *SubmitterPool) Get(chain ChainHandle) *Submitter {
	key := chain.ChainID() + "/" + chain.Address()
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.submitters[key]; ok {
		return s
	}
	s := NewSubmitter(chain)
	p.submitters[key] = s
	return s
}

// StopAll stops every submitter, letting in-flight submissions complete.
func (p *SubmitterPool) StopAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for key, s := range p.submitters {
		s.Stop()
		delete(p.submitters, key)
	}
}
