package semconv

import (
	"go.opentelemetry.io/otel/attribute"
)

const (
	// ChainIDKey represents the chain ID.
	//
	// Type: string
	// RequirementLevel: Recommended
	// Stability: Development
	// Examples: "ibc-0"
	ChainIDKey = attribute.Key("chain_id")

	// ClientIDKey represents the client ID.
	//
	// Type: string
	// RequirementLevel: Recommended
	// Stability: Development
	// Examples: "07-tendermint-0"
	ClientIDKey = attribute.Key("client_id")

	// ConnectionIDKey represents the connection ID.
	//
	// Type: string
	// RequirementLevel: Recommended
	// Stability: Development
	// Examples: "connection-0"
	ConnectionIDKey = attribute.Key("connection_id")

	// ChannelIDKey represents the channel ID.
	//
	// Type: string
	// RequirementLevel: Recommended
	// Stability: Development
	// Examples: "channel-0"
	ChannelIDKey = attribute.Key("channel_id")

	// PortIDKey represents the port ID.
	//
	// Type: string
	// RequirementLevel: Recommended
	// Stability: Development
	// Examples: "transfer"
	PortIDKey = attribute.Key("port_id")

	// DirectionKey represents the relay direction of a worker action.
	//
	// Type: string
	// RequirementLevel: Recommended
	// Stability: Development
	// Examples: "src->dst", "dst->src"
	DirectionKey = attribute.Key("direction")

	// PathNameKey represents the name of a configured relay path.
	//
	// Type: string
	// RequirementLevel: Recommended
	// Stability: Development
	// Examples: "ibc01"
	PathNameKey = attribute.Key("path_name")

	// StorePathKey represents a key in the IBC store being proven.
	//
	// Type: string
	// RequirementLevel: Optional
	// Stability: Development
	// Examples: "commitments/ports/transfer/channels/channel-0/sequences/3"
	StorePathKey = attribute.Key("store_path")

	// SequenceKey represents a packet sequence.
	//
	// Type: int
	// RequirementLevel: Optional
	// Stability: Development
	// Examples: 3
	SequenceKey = attribute.Key("sequence")

	// HandshakeStepKey represents the handshake message a driver submitted.
	//
	// Type: string
	// RequirementLevel: Optional
	// Stability: Development
	// Examples: "connection_open_try"
	HandshakeStepKey = attribute.Key("handshake_step")

	// HeightRevisionNumberKey represents the revision number of the height.
	//
	// Type: int
	// RequirementLevel: Recommended
	// Stability: Development
	// Examples: 0
	HeightRevisionNumberKey = attribute.Key("height.revision_number")

	// HeightRevisionHeightKey represents the revision height of the height.
	//
	// Type: int
	// RequirementLevel: Recommended
	// Stability: Development
	// Examples: 123
	HeightRevisionHeightKey = attribute.Key("height.revision_height")

	// TxHashKey represents the transaction hash.
	//
	// Type: string
	// RequirementLevel: Recommended
	// Stability: Development
	// Examples: "A829D898DF92C54346408380BA7D0CDE557B2425593F29579D87388DAA64430A"
	TxHashKey = attribute.Key("tx_hash")
)

// AttributeGroup prefixes the given key to all attributes.
//
// For example, if the key is "foo" and the key of an attribute is "bar", the new key will be "foo.bar".
func AttributeGroup(key string, attributes ...attribute.KeyValue) []attribute.KeyValue {
	newAttrs := make([]attribute.KeyValue, 0, len(attributes))
	for _, attr := range attributes {
		newAttrs = append(newAttrs, attribute.KeyValue{
			Key:   attribute.Key(key + "." + string(attr.Key)),
			Value: attr.Value,
		})
	}
	return newAttrs
}
