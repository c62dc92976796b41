package domain

import "time"

// ChannelType identifies the transport a message arrived on. Delivery and
// transport chunking belong to the channel adapters; the core only records
// the channel for routing metadata and conversation bookkeeping.
type ChannelType string

const (
	ChannelSignal   ChannelType = "signal"
	ChannelTelegram ChannelType = "telegram"
	ChannelWeb      ChannelType = "web"
	ChannelCLI      ChannelType = "cli"
)

// InboundMessage is a single customer message handed to the core by a
// channel adapter. It is read-only: the pipeline derives new objects from it
// and never mutates it.
type InboundMessage struct {
	ID             string
	ConversationID string
	TenantID       string
	CustomerID     string
	Channel        ChannelType
	Content        string
	Language       string // optional hint from the channel adapter
	Metadata       map[string]string
	Timestamp      time.Time
}

// OutboundMessage carries a finished response back to a channel adapter.
type OutboundMessage struct {
	Channel        ChannelType
	ConversationID string
	Content        string
	Response       *AgentResponse // full response for adapters that surface metadata
}
