package core

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	errorsmod "cosmossdk.io/errors"
	"github.com/datachainlab/ibc-relayer/log"
	"golang.org/x/sync/errgroup"
)

// Supervisor runs one RelayService per path. Paths sharing a chain account share its Submitter.
type Supervisor struct {
	mu       sync.Mutex
	conf     ServiceConfig
	reporter HealthReporter
	pool     *SubmitterPool
	services map[string]*RelayService
	running  bool
}

func NewSupervisor(conf ServiceConfig, reporter HealthReporter) *Supervisor {
	if reporter == nil {
		reporter = nopReporter{}
	}
	return &Supervisor{
		conf:     conf,
		reporter: reporter,
		pool:     NewSubmitterPool(),
		services: make(map[string]*RelayService),
	}
}

// PathChains holds the chain handles and client settings of one path's ends.
type PathChains struct {
	Src, Dst                 ChainHandle
	SrcSettings, DstSettings ClientSettings
}

// AddPath registers a worker for path. It must be called before Run.
func (s *Supervisor) AddPath(pathName string, path *Path, chains PathChains) (*RelayService, error) {
	if err := path.Validate(); err != nil {
		return nil, err
	}
	if chains.Src.ChainID() != path.Src.ChainID || chains.Dst.ChainID() != path.Dst.ChainID {
		return nil, errorsmod.Wrapf(ErrInvalidPath, "path %s expects chains (%s, %s), got (%s, %s)",
			pathName, path.Src.ChainID, path.Dst.ChainID, chains.Src.ChainID(), chains.Dst.ChainID())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil, fmt.Errorf("supervisor is already running")
	}
	if _, ok := s.services[pathName]; ok {
		return nil, errorsmod.Wrapf(ErrInvalidPath, "path %s is already supervised", pathName)
	}
	src := NewEndpoint(chains.Src, path.Src, s.pool.Get(chains.Src), chains.SrcSettings)
	dst := NewEndpoint(chains.Dst, path.Dst, s.pool.Get(chains.Dst), chains.DstSettings)
	srv := NewRelayService(pathName, path, src, dst, s.conf, s.reporter)
	s.services[pathName] = srv
	return srv, nil
}

func (s *Supervisor) PathNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.services))
	for name := range s.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run starts every worker and blocks until ctx is done. Workers stop after the action they
// are running, then submitters are stopped once their in-flight submissions complete.
func (s *Supervisor) Run(ctx context.Context) error {
	logger := log.GetLogger().WithModule("core.supervisor")
	defer logger.TimeTrackContext(ctx, time.Now(), "Supervisor.Run")

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("supervisor is already running")
	}
	s.running = true
	services := make(map[string]*RelayService, len(s.services))
	for name, srv := range s.services {
		services[name] = srv
	}
	s.mu.Unlock()
	defer s.pool.StopAll()

	var eg errgroup.Group
	for name, srv := range services {
		eg.Go(func() (err error) {
			defer func() {
				// a panicking worker must not take the others down
				if r := recover(); r != nil {
					err = fmt.Errorf("worker %s panicked: %v", name, r)
					logger.ErrorContext(ctx, "relay worker panicked", err, "path", name)
					s.reporter.ReportFailure(name, err)
					err = nil
				}
			}()
			return srv.Start(ctx)
		})
	}
	logger.InfoContext(ctx, "supervising paths", "paths", len(services))
	return eg.Wait()
}
