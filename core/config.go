package core

import (
	"sync"

	"github.com/datachainlab/ibc-relayer/log"
)

var (
	configMu sync.RWMutex
	config   ConfigI
)

type PathConfigKey string

const (
	PathConfigClientID     PathConfigKey = "client-id"
	PathConfigConnectionID PathConfigKey = "connection-id"
	PathConfigChannelID    PathConfigKey = "channel-id"
)

// ConfigI persists identifiers assigned on-chain while a path is being set up.
type ConfigI interface {
	UpdatePathConfig(pathName string, chainID string, kv map[PathConfigKey]string) error
}

// SetCoreConfig registers the persistence hook. Passing nil disables persistence.
func SetCoreConfig(c ConfigI) {
	configMu.Lock()
	defer configMu.Unlock()
	config = c
}

func getCoreConfig() ConfigI {
	configMu.RLock()
	defer configMu.RUnlock()
	return config
}

// SyncPathEndFromEvents copies identifiers generated by a successful submission into the
// endpoint's path end. When a ConfigI is registered the identifiers go through it, since it
// owns the path ends and saves them under its own lock.
func SyncPathEndFromEvents(pathName string, ep *Endpoint, events []ChainEvent) error {
	clientID, connectionID, channelID := ep.End.ClientID, ep.End.ConnectionID, ep.End.ChannelID
	kv := map[PathConfigKey]string{}
	for _, ev := range events {
		switch ev := ev.(type) {
		case *EventGenerateClientIdentifier:
			if clientID == "" {
				clientID = ev.ID
				kv[PathConfigClientID] = string(ev.ID)
			}
		case *EventConnectionHandshake:
			if connectionID == "" && (ev.Stage == StageInit || ev.Stage == StageTryOpen) && ev.ClientID == clientID {
				connectionID = ev.ConnectionID
				kv[PathConfigConnectionID] = string(ev.ConnectionID)
			}
		case *EventChannelHandshake:
			if channelID == "" && (ev.Stage == StageInit || ev.Stage == StageTryOpen) && ev.PortID == ep.End.PortID {
				channelID = ev.ChannelID
				kv[PathConfigChannelID] = string(ev.ChannelID)
			}
		}
	}
	if len(kv) == 0 {
		return nil
	}
	log.GetLogger().WithModule("core.config").Info("path end identifiers updated", "path", pathName, "chain_id", ep.ChainID(), "ids", kv)
	if c := getCoreConfig(); c != nil && pathName != "" {
		if err := c.UpdatePathConfig(pathName, ep.ChainID(), kv); err != nil {
			return err
		}
	}
	// a registered config usually shares ep.End and has set these already
	if ep.End.ClientID != clientID {
		ep.End.ClientID = clientID
	}
	if ep.End.ConnectionID != connectionID {
		ep.End.ConnectionID = connectionID
	}
	if ep.End.ChannelID != channelID {
		ep.End.ChannelID = channelID
	}
	return nil
}
