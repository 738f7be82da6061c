// Package contracts routes command and query envelopes to contract instances by contract
// identifier. The registry is the host side of the contract interface: it decodes payloads
// into each contract's own types and serialises access so that a contract never sees two
// calls at once.
package contracts

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/cloudx-io/auctioncontract/core"
)

var (
	// ErrUnknownContract is returned when no contract is registered under an identifier.
	ErrUnknownContract = errors.New("unknown contract")
	// ErrDuplicateContract is returned when registering a second contract under the same identifier.
	ErrDuplicateContract = errors.New("contract already registered")
	// ErrStateHashUnsupported is returned for contracts that cannot digest their state.
	ErrStateHashUnsupported = errors.New("contract does not support state hashing")
)

// Dispatcher is a contract with its command, request and response types erased to JSON.
type Dispatcher interface {
	ID() core.ContractID
	ApplyCommand(origin core.AccountID, txRef core.TxRef, payload json.RawMessage) (core.TransactionStatus, error)
	HandleQuery(origin *core.AccountID, payload json.RawMessage) (json.RawMessage, error)
	StateHash() (string, error)
}

type boundContract[Cmd, Req, Resp any] struct {
	contract core.Contract[Cmd, Req, Resp]
}

// Bind erases a typed contract into a Dispatcher.
func Bind[Cmd, Req, Resp any](contract core.Contract[Cmd, Req, Resp]) Dispatcher {
	return &boundContract[Cmd, Req, Resp]{contract: contract}
}

func (b *boundContract[Cmd, Req, Resp]) ID() core.ContractID {
	return b.contract.ID()
}

func (b *boundContract[Cmd, Req, Resp]) ApplyCommand(origin core.AccountID, txRef core.TxRef, payload json.RawMessage) (core.TransactionStatus, error) {
	var cmd Cmd
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return core.StatusBadCommand, fmt.Errorf("decode command for contract %d: %w", b.contract.ID(), err)
	}
	return b.contract.HandleCommand(origin, txRef, cmd), nil
}

func (b *boundContract[Cmd, Req, Resp]) HandleQuery(origin *core.AccountID, payload json.RawMessage) (json.RawMessage, error) {
	var req Req
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("decode request for contract %d: %w", b.contract.ID(), err)
	}
	resp := b.contract.HandleQuery(origin, req)
	data, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("encode response for contract %d: %w", b.contract.ID(), err)
	}
	return data, nil
}

func (b *boundContract[Cmd, Req, Resp]) StateHash() (string, error) {
	hasher, ok := b.contract.(core.StateHasher)
	if !ok {
		return "", ErrStateHashUnsupported
	}
	return hasher.StateHash()
}

type entry struct {
	mu         sync.Mutex
	dispatcher Dispatcher
}

// Registry holds contract instances keyed by identifier.
type Registry struct {
	mu        sync.RWMutex
	contracts map[core.ContractID]*entry
}

// NewRegistry creates a registry holding the given contracts.
func NewRegistry(dispatchers ...Dispatcher) (*Registry, error) {
	r := &Registry{contracts: make(map[core.ContractID]*entry)}
	for _, d := range dispatchers {
		if err := r.Register(d); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a contract. Identifiers are unique.
func (r *Registry) Register(d Dispatcher) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.contracts[d.ID()]; exists {
		return fmt.Errorf("register contract %d: %w", d.ID(), ErrDuplicateContract)
	}
	r.contracts[d.ID()] = &entry{dispatcher: d}
	return nil
}

// IDs returns the registered identifiers in ascending order.
func (r *Registry) IDs() []core.ContractID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]core.ContractID, 0, len(r.contracts))
	for id := range r.contracts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (r *Registry) lookup(id core.ContractID) (*entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.contracts[id]
	if !ok {
		return nil, fmt.Errorf("contract %d: %w", id, ErrUnknownContract)
	}
	return e, nil
}

// ApplyCommand decodes payload and applies it to contract id. Callers must deliver commands in
// transaction log order; the registry only guarantees that two commands never run concurrently
// against the same contract.
func (r *Registry) ApplyCommand(id core.ContractID, origin core.AccountID, txRef core.TxRef, payload json.RawMessage) (core.TransactionStatus, error) {
	e, err := r.lookup(id)
	if err != nil {
		return core.StatusBadContract, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dispatcher.ApplyCommand(origin, txRef, payload)
}

// HandleQuery answers a query against contract id from its latest applied state.
func (r *Registry) HandleQuery(id core.ContractID, origin *core.AccountID, payload json.RawMessage) (json.RawMessage, error) {
	e, err := r.lookup(id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dispatcher.HandleQuery(origin, payload)
}

// StateHash returns the canonical digest of contract id's state.
func (r *Registry) StateHash(id core.ContractID) (string, error) {
	e, err := r.lookup(id)
	if err != nil {
		return "", err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dispatcher.StateHash()
}
