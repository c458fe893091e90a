package config

import (
	"fmt"

	"github.com/datachainlab/ibc-relayer/core"
	"github.com/datachainlab/ibc-relayer/log"
	"github.com/datachainlab/ibc-relayer/otelcore"
	"go.opentelemetry.io/otel"
)

const tracerName = "github.com/datachainlab/ibc-relayer/config"

var _ core.ConfigI = (*Config)(nil)

// InitCoreConfig makes the core write identifiers assigned during a handshake back to this config.
func (c *Config) InitCoreConfig() {
	core.SetCoreConfig(c)
}

// UpdatePathConfig records identifiers of one end of a path and saves the config file.
func (c *Config) UpdatePathConfig(pathName string, chainID string, kv map[core.PathConfigKey]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	path, err := c.Paths.Get(pathName)
	if err != nil {
		return err
	}
	var pathEnd *core.PathEnd
	switch chainID {
	case path.Src.ChainID:
		pathEnd = path.Src
	case path.Dst.ChainID:
		pathEnd = path.Dst
	default:
		return fmt.Errorf("path %s has no end on chain %s", pathName, chainID)
	}
	for k, v := range kv {
		switch k {
		case core.PathConfigClientID:
			pathEnd.ClientID = core.ClientID(v)
		case core.PathConfigConnectionID:
			pathEnd.ConnectionID = core.ConnectionID(v)
		case core.PathConfigChannelID:
			pathEnd.ChannelID = core.ChannelID(v)
		default:
			return fmt.Errorf("unexpected path config key %q", k)
		}
	}
	if c.ConfigPath == "" {
		return nil
	}
	return c.save()
}

// InitChains builds a traced chain handle for every configured chain.
func (c *Config) InitChains(modules []ModuleI) error {
	tracer := otel.Tracer(tracerName)
	logger := log.GetLogger().WithModule("config")
	chains := make(Chains, 0, len(c.Chains))
	for _, cc := range c.Chains {
		m, err := findModule(modules, cc.Type)
		if err != nil {
			return fmt.Errorf("chain %s: %w", cc.ChainID, err)
		}
		chain, err := m.BuildChain(cc)
		if err != nil {
			return fmt.Errorf("failed to build chain %s: %w", cc.ChainID, err)
		}
		if chain.ChainID() != cc.ChainID {
			return fmt.Errorf("module %s built chain %s for config %s", m.Name(), chain.ChainID(), cc.ChainID)
		}
		logger.Debug("chain initialized", "chain_id", cc.ChainID, "type", cc.Type)
		chains = append(chains, otelcore.NewChain(chain, tracer))
	}
	c.mu.Lock()
	c.chains = chains
	c.mu.Unlock()
	return nil
}

func (c *Config) GetChain(chainID string) (core.ChainHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chains.Get(chainID)
}

func (c *Config) GetChains() Chains {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append(Chains(nil), c.chains...)
}

func (c *Config) clientSettings(chainID string) (core.ClientSettings, error) {
	for _, cc := range c.Chains {
		if cc.ChainID == chainID {
			return cc.Client.ClientSettings(), nil
		}
	}
	return core.ClientSettings{}, fmt.Errorf("chain with ID %s is not configured", chainID)
}

// PathChains returns the path and the chains on its ends. The client settings of an end are
// those of the chain its client tracks, the counterparty.
func (c *Config) PathChains(pathName string) (*core.Path, core.PathChains, error) {
	path, err := c.Paths.Get(pathName)
	if err != nil {
		return nil, core.PathChains{}, err
	}
	src, err := c.GetChain(path.Src.ChainID)
	if err != nil {
		return nil, core.PathChains{}, err
	}
	dst, err := c.GetChain(path.Dst.ChainID)
	if err != nil {
		return nil, core.PathChains{}, err
	}
	srcSettings, err := c.clientSettings(path.Dst.ChainID)
	if err != nil {
		return nil, core.PathChains{}, err
	}
	dstSettings, err := c.clientSettings(path.Src.ChainID)
	if err != nil {
		return nil, core.PathChains{}, err
	}
	return path, core.PathChains{Src: src, Dst: dst, SrcSettings: srcSettings, DstSettings: dstSettings}, nil
}

// Endpoints returns endpoints with fresh submitters for one-shot commands.
func (c *Config) Endpoints(pathName string) (*core.Path, *core.Endpoint, *core.Endpoint, error) {
	path, chains, err := c.PathChains(pathName)
	if err != nil {
		return nil, nil, nil, err
	}
	src := core.NewEndpoint(chains.Src, path.Src, nil, chains.SrcSettings)
	dst := core.NewEndpoint(chains.Dst, path.Dst, nil, chains.DstSettings)
	return path, src, dst, nil
}
