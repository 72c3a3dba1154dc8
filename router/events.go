package router

import (
	"github.com/sage-x-project/rings/dht"
	"github.com/sage-x-project/rings/identity"
)

// EventKind enumerates the follow-up actions a handler can hand back to
// be applied by the swarm, mirroring the original MessageHandlerEvent
// enum (Connect, Disconnect, ForwardPayload, JoinDHT, SendMessage,
// StorageStore, ...).
type EventKind int

const (
	EventConnect EventKind = iota
	EventDisconnect
	EventForwardPayload
	EventJoinDHT
	EventSendMessage
	EventSendDirectMessage
	EventSendReportMessage
	EventResetDestination
	EventStorageStore
	EventSyncVNodeWithSuccessor
	EventCustomMessage
)

// Event is a single follow-up action. Only the fields relevant to Kind
// are populated; handlers construct Events with the matching
// constructor function below rather than the struct literal directly.
type Event struct {
	Kind    EventKind
	Did     identity.Did // peer/target Did for Connect/Disconnect/JoinDHT/ResetDestination
	Payload *Payload      // for ForwardPayload/SendMessage/SendDirectMessage/SendReportMessage
	VNodes  []dht.VNode   // for StorageStore/SyncVNodeWithSuccessor
	From    identity.Did  // sender Did, for CustomMessage
	Custom  []byte        // application content, for CustomMessage
}

func EvConnect(did identity.Did) Event    { return Event{Kind: EventConnect, Did: did} }
func EvDisconnect(did identity.Did) Event { return Event{Kind: EventDisconnect, Did: did} }
func EvJoinDHT(did identity.Did) Event    { return Event{Kind: EventJoinDHT, Did: did} }

func EvForwardPayload(p *Payload) Event { return Event{Kind: EventForwardPayload, Payload: p} }
func EvSendMessage(p *Payload) Event    { return Event{Kind: EventSendMessage, Payload: p} }
func EvSendDirectMessage(p *Payload) Event {
	return Event{Kind: EventSendDirectMessage, Payload: p}
}
func EvSendReportMessage(p *Payload) Event {
	return Event{Kind: EventSendReportMessage, Payload: p}
}

// EvResetDestination hands a SEND payload the local handler could not
// satisfy back to the swarm for one more hop toward next, the Ring's own
// idea of who owns it (from VNodeLookup/VNodeOperate), bypassing another
// pass through Router.forward's ClosestPrecedingNode computation since
// the Ring has already resolved it.
func EvResetDestination(p *Payload, next identity.Did) Event {
	p.Relay.NextHop = next
	p.Relay.HasNextHop = true
	return Event{Kind: EventResetDestination, Did: next, Payload: p}
}

func EvStorageStore(nodes ...dht.VNode) Event {
	return Event{Kind: EventStorageStore, VNodes: nodes}
}
func EvSyncVNodeWithSuccessor(target identity.Did, nodes []dht.VNode) Event {
	return Event{Kind: EventSyncVNodeWithSuccessor, Did: target, VNodes: nodes}
}

func EvCustomMessage(from identity.Did, content []byte) Event {
	return Event{Kind: EventCustomMessage, From: from, Custom: content}
}
