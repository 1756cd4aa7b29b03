package session

import "github.com/woo850115-hub/project-g/internal/core/ecs"

// The session bridge is the only contact surface between async network
// tasks and the simulation thread: two typed channels, messages by value.

// InboundKind discriminates net-to-core messages.
type InboundKind uint8

const (
	InboundConnected InboundKind = iota
	InboundLine
	InboundDisconnected
)

// Inbound is one message from a network task.
type Inbound struct {
	Kind    InboundKind
	Session uint64
	Line    string
}

func Connected(session uint64) Inbound {
	return Inbound{Kind: InboundConnected, Session: session}
}

func Line(session uint64, line string) Inbound {
	return Inbound{Kind: InboundLine, Session: session, Line: line}
}

func Disconnected(session uint64) Inbound {
	return Inbound{Kind: InboundDisconnected, Session: session}
}

// OutboundKind discriminates core-to-net messages.
type OutboundKind uint8

const (
	OutboundSend OutboundKind = iota
	OutboundBroadcastArea
	OutboundDisconnect
)

// Outbound is one message to the output router.
type Outbound struct {
	Kind    OutboundKind
	Session uint64
	Payload string

	// BroadcastArea fields.
	Area       ecs.EntityID
	HasExclude bool
	Exclude    uint64
}

func SendTo(session uint64, payload string) Outbound {
	return Outbound{Kind: OutboundSend, Session: session, Payload: payload}
}

func BroadcastArea(area ecs.EntityID, payload string, exclude *uint64) Outbound {
	out := Outbound{Kind: OutboundBroadcastArea, Area: area, Payload: payload}
	if exclude != nil {
		out.HasExclude = true
		out.Exclude = *exclude
	}
	return out
}

func Disconnect(session uint64) Outbound {
	return Outbound{Kind: OutboundDisconnect, Session: session}
}
