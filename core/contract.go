package core

// Contract is the capability set every contract exposes to the host dispatcher.
// Commands come from the ordered transaction log and may mutate state; queries
// come from end users and must not.
type Contract[Cmd, Req, Resp any] interface {
	ID() ContractID
	HandleCommand(origin AccountID, txRef TxRef, cmd Cmd) TransactionStatus
	HandleQuery(origin *AccountID, req Req) Resp
}

// StateHasher is implemented by contracts that can produce a canonical digest of their state,
// so that replicas can compare state without re-executing commands.
type StateHasher interface {
	StateHash() (string, error)
}

// EventKind names an observable state transition.
type EventKind string

const (
	EventBidPlaced     EventKind = "bid_placed"
	EventWinnerChanged EventKind = "winner_changed"
)

// Event is reported to an EventSink after a command is applied. Events carry no
// behaviour; the host decides what to do with them (typically logging).
type Event struct {
	Kind    EventKind
	Account AccountID
	Value   uint32
}

// EventSink receives events synchronously, in command order.
type EventSink func(Event)
