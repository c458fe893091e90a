package core

import (
	"fmt"
	"path"
	"sort"

	errorsmod "cosmossdk.io/errors"
)

// Paths represent connection paths between chains
type Paths map[string]*Path

// Get returns the configuration for a given path
func (p Paths) Get(name string) (path *Path, err error) {
	if pth, ok := p[name]; ok {
		path = pth
	} else {
		err = errorsmod.Wrapf(ErrInvalidPath, "path with name %s does not exist", name)
	}
	return
}

// Add adds a path by its name
func (p Paths) Add(name string, path *Path) error {
	if err := path.Validate(); err != nil {
		return err
	}
	if _, found := p[name]; found {
		return errorsmod.Wrapf(ErrInvalidPath, "path with name %s already exists", name)
	}
	p[name] = path
	return nil
}

// Names returns the path names in lexical order
func (p Paths) Names() []string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PathsFromChains returns a path from the config between two chains
func (p Paths) PathsFromChains(src, dst string) (Paths, error) {
	out := Paths{}
	for name, path := range p {
		if (path.Dst.ChainID == src || path.Src.ChainID == src) && (path.Dst.ChainID == dst || path.Src.ChainID == dst) {
			out[name] = path
		}
	}
	if len(out) == 0 {
		return Paths{}, errorsmod.Wrapf(ErrInvalidPath, "failed to find path in config between chains %s and %s", src, dst)
	}
	return out, nil
}

// Path represents a pair of chains and the identifiers needed to
// relay over them
type Path struct {
	Src    *PathEnd      `yaml:"src" json:"src" mapstructure:"src"`
	Dst    *PathEnd      `yaml:"dst" json:"dst" mapstructure:"dst"`
	Filter *PacketFilter `yaml:"filter,omitempty" json:"filter,omitempty" mapstructure:"filter"`
}

// Validate checks that a path is valid
func (p *Path) Validate() error {
	if p.Src == nil || p.Dst == nil {
		return errorsmod.Wrap(ErrInvalidPath, "both src and dst are required")
	}
	if err := p.Src.Validate(); err != nil {
		return errorsmod.Wrapf(err, "src")
	}
	if err := p.Dst.Validate(); err != nil {
		return errorsmod.Wrapf(err, "dst")
	}
	if p.Src.ChainID == p.Dst.ChainID {
		return errorsmod.Wrapf(ErrInvalidPath, "src and dst must be different chains, both are %s", p.Src.ChainID)
	}
	if p.Src.HasChannel() != p.Dst.HasChannel() {
		return errorsmod.Wrap(ErrInvalidPath, "port-id must be set on both ends or on neither")
	}
	if p.Src.Order != "" && p.Dst.Order != "" && p.Src.ChannelOrder() != p.Dst.ChannelOrder() {
		return errorsmod.Wrapf(ErrOrderingMismatch, "src order %s, dst order %s", p.Src.ChannelOrder(), p.Dst.ChannelOrder())
	}
	if p.Filter != nil {
		if err := p.Filter.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Ordered returns true if the path is ordered and false if otherwise
func (p *Path) Ordered() bool {
	return p.Src.ChannelOrder() == OrderOrdered
}

// RelaysPackets reports whether packets on the path's channel pass the filter.
func (p *Path) RelaysPackets() bool {
	if !p.Src.HasChannel() {
		return false
	}
	return p.Filter.Allows(p.Src.PortID, p.Src.ChannelID) && p.Filter.Allows(p.Dst.PortID, p.Dst.ChannelID)
}

func (p *Path) String() string {
	return fmt.Sprintf("[%s] -> [%s]", p.Src, p.Dst)
}

// FilterPolicy selects whether the filter list is an allow-list or a deny-list.
type FilterPolicy string

const (
	FilterAllow FilterPolicy = "allow"
	FilterDeny  FilterPolicy = "deny"
)

// PacketFilter restricts packet relay to (port, channel) pairs. Patterns use path.Match syntax.
// An empty channel id, as before the channel exists, only matches "*".
type PacketFilter struct {
	Policy FilterPolicy `yaml:"policy" json:"policy" mapstructure:"policy"`
	List   [][2]string  `yaml:"list" json:"list" mapstructure:"list"`
}

func (f *PacketFilter) Validate() error {
	switch f.Policy {
	case FilterAllow, FilterDeny:
	default:
		return errorsmod.Wrapf(ErrInvalidPath, "unknown filter policy %q", f.Policy)
	}
	for _, e := range f.List {
		for _, pattern := range e {
			if _, err := path.Match(pattern, ""); err != nil {
				return errorsmod.Wrapf(ErrInvalidPath, "invalid filter pattern %q: %v", pattern, err)
			}
		}
	}
	return nil
}

// Allows reports whether packets on the given port and channel pass the filter.
// A nil filter allows everything.
func (f *PacketFilter) Allows(port PortID, channel ChannelID) bool {
	if f == nil {
		return true
	}
	matched := false
	for _, e := range f.List {
		portOK, _ := path.Match(e[0], string(port))
		chanOK, _ := path.Match(e[1], string(channel))
		if portOK && chanOK {
			matched = true
			break
		}
	}
	if f.Policy == FilterDeny {
		return !matched
	}
	return matched
}
