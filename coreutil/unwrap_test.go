package coreutil_test

import (
	"context"
	"errors"
	"testing"

	"github.com/datachainlab/ibc-relayer/core"
	"github.com/datachainlab/ibc-relayer/coreutil"
	"github.com/datachainlab/ibc-relayer/otelcore"
	"go.opentelemetry.io/otel/trace/noop"
)

type producer interface {
	ProduceBlocks(ctx context.Context)
}

type testChain struct {
	core.ChainHandle
	initialized bool
}

func (testChain) ProduceBlocks(context.Context) {}

type anotherTestChain struct {
	core.ChainHandle
}

type wrapperChain struct {
	core.ChainHandle
}

func TestUnwrapChain(t *testing.T) {
	wantChain := testChain{
		initialized: true,
	}
	tracer := noop.NewTracerProvider().Tracer("test")

	tests := []struct {
		name   string
		chain  core.ChainHandle
		target any
		err    error
	}{
		{
			name:   "target chain pointer directly",
			chain:  &wantChain,
			target: &testChain{},
			err:    nil,
		},
		{
			name:   "target chain directly",
			chain:  wantChain,
			target: testChain{},
			err:    nil,
		},
		{
			name:   "traced target chain pointer",
			chain:  otelcore.NewChain(&wantChain, tracer),
			target: &testChain{},
			err:    nil,
		},
		{
			name:   "twice traced target chain",
			chain:  otelcore.NewChain(otelcore.NewChain(wantChain, tracer), tracer),
			target: testChain{},
			err:    nil,
		},
		{
			name:   "traced chain implementing an interface",
			chain:  otelcore.NewChain(wantChain, tracer),
			target: producer(nil),
			err:    nil,
		},
		{
			name:   "different struct",
			chain:  otelcore.NewChain(anotherTestChain{}, tracer),
			target: testChain{},
			err:    errors.New("failed to unwrap chain: expected=coreutil_test.testChain, actual=coreutil_test.anotherTestChain"),
		},
		{
			name:   "target chain wrapped by an unknown chain",
			chain:  wrapperChain{wantChain},
			target: testChain{},
			err:    errors.New("failed to unwrap chain: expected=coreutil_test.testChain, actual=coreutil_test.wrapperChain"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err error
			switch c := tt.target.(type) {
			case testChain:
				c, err = coreutil.UnwrapChain[testChain](tt.chain)
				if err == nil && c != wantChain {
					t.Errorf("c = %v, want %v", c, wantChain)
				}
			case *testChain:
				c, err = coreutil.UnwrapChain[*testChain](tt.chain)
				if err == nil && c != &wantChain {
					t.Errorf("unwrapped chain has an unexpected address")
				}
			case nil:
				_, err = coreutil.UnwrapChain[producer](tt.chain)
			}
			if err != tt.err && (err == nil || tt.err == nil || err.Error() != tt.err.Error()) {
				t.Errorf("err = %v, want %v", err, tt.err)
			}
		})
	}
}
