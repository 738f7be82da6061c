package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// PlaceBid records the origin's bid. Bids are not cumulative: the latest value per account stands.
type PlaceBid struct {
	Value uint32 `json:"value"`
}

// Command is the closed set of commands the auction accepts from the chain.
// Exactly one variant is set.
type Command struct {
	PlaceBid *PlaceBid
}

func (c Command) MarshalJSON() ([]byte, error) {
	switch {
	case c.PlaceBid != nil:
		return json.Marshal(map[string]*PlaceBid{"PlaceBid": c.PlaceBid})
	default:
		return nil, fmt.Errorf("command has no variant set")
	}
}

func (c *Command) UnmarshalJSON(data []byte) error {
	name, body, err := unmarshalTagged(data)
	if err != nil {
		return err
	}
	switch name {
	case "PlaceBid":
		var bid PlaceBid
		if body == nil {
			return fmt.Errorf("PlaceBid requires a value")
		}
		if err := json.Unmarshal(body, &bid); err != nil {
			return fmt.Errorf("decode PlaceBid: %w", err)
		}
		*c = Command{PlaceBid: &bid}
		return nil
	default:
		return fmt.Errorf("unknown command: %q", name)
	}
}

// GetWinner asks for the account currently holding the highest bid.
type GetWinner struct{}

// Request is the closed set of queries the auction answers. Exactly one variant is set.
type Request struct {
	GetWinner *GetWinner
}

func (r Request) MarshalJSON() ([]byte, error) {
	switch {
	case r.GetWinner != nil:
		return json.Marshal(map[string]*GetWinner{"GetWinner": r.GetWinner})
	default:
		return nil, fmt.Errorf("request has no variant set")
	}
}

func (r *Request) UnmarshalJSON(data []byte) error {
	name, _, err := unmarshalTagged(data)
	if err != nil {
		return err
	}
	switch name {
	case "GetWinner":
		*r = Request{GetWinner: &GetWinner{}}
		return nil
	default:
		return fmt.Errorf("unknown request: %q", name)
	}
}

// QueryError is the error variant a query response can carry.
type QueryError string

const (
	ErrNotAuthorized  QueryError = "NotAuthorized"
	ErrSomeOtherError QueryError = "SomeOtherError"
)

func (e QueryError) Error() string {
	return string(e)
}

// WinnerResponse answers GetWinner. Winner is nil while nobody has bid.
type WinnerResponse struct {
	Winner *AccountID `json:"winner"`
}

// Response is either a successful payload or an error. Exactly one variant is set.
type Response struct {
	GetWinner *WinnerResponse
	Error     *QueryError
}

func (r Response) MarshalJSON() ([]byte, error) {
	switch {
	case r.GetWinner != nil:
		return json.Marshal(map[string]*WinnerResponse{"GetWinner": r.GetWinner})
	case r.Error != nil:
		return json.Marshal(map[string]QueryError{"Error": *r.Error})
	default:
		return nil, fmt.Errorf("response has no variant set")
	}
}

func (r *Response) UnmarshalJSON(data []byte) error {
	name, body, err := unmarshalTagged(data)
	if err != nil {
		return err
	}
	switch name {
	case "GetWinner":
		var winner WinnerResponse
		if body != nil {
			if err := json.Unmarshal(body, &winner); err != nil {
				return fmt.Errorf("decode GetWinner: %w", err)
			}
		}
		*r = Response{GetWinner: &winner}
	case "Error":
		var qe QueryError
		if err := json.Unmarshal(body, &qe); err != nil {
			return fmt.Errorf("decode Error: %w", err)
		}
		*r = Response{Error: &qe}
	default:
		return fmt.Errorf("unknown response: %q", name)
	}
	return nil
}

// Auction is a highest-bid-wins auction. It keeps the latest bid per account and the
// account that first reached the current maximum.
//
// Auction holds no locks: callers must apply commands one at a time, in delivery order.
type Auction struct {
	bids       map[AccountID]uint32
	winner     AccountID
	hasWinner  bool
	winningBid uint32

	events EventSink
}

var _ Contract[Command, Request, Response] = (*Auction)(nil)

// NewAuction returns an auction with an empty ledger and no winner.
func NewAuction() *Auction {
	return &Auction{bids: make(map[AccountID]uint32)}
}

// SetEventSink installs a hook that observes bids and winner changes. A nil sink disables events.
func (a *Auction) SetEventSink(sink EventSink) {
	a.events = sink
}

func (*Auction) ID() ContractID {
	return AuctionHouse
}

// HandleCommand applies cmd on behalf of origin. The origin is trusted: authentication happens
// before a command reaches the contract. The resulting state depends only on the prior state,
// origin and the command.
func (a *Auction) HandleCommand(origin AccountID, _ TxRef, cmd Command) TransactionStatus {
	switch {
	case cmd.PlaceBid != nil:
		a.placeBid(origin, cmd.PlaceBid.Value)
		return StatusOk
	default:
		return StatusBadCommand
	}
}

// placeBid overwrites origin's bid and takes the lead if the bid is strictly higher than the
// winning bid. An equal bid never dethrones the incumbent. The first bid always takes the lead,
// including a bid of zero.
func (a *Auction) placeBid(origin AccountID, value uint32) {
	a.bids[origin] = value
	a.emit(EventBidPlaced, origin, value)

	if !a.hasWinner || value > a.winningBid {
		a.winningBid = value
		a.winner = origin
		a.hasWinner = true
		a.emit(EventWinnerChanged, origin, value)
	}
}

func (a *Auction) emit(kind EventKind, account AccountID, value uint32) {
	if a.events != nil {
		a.events(Event{Kind: kind, Account: account, Value: value})
	}
}

// HandleQuery answers req from the current state without mutating it. The origin is not
// used by any defined query. Errors never escape: they are returned as Response.Error.
func (a *Auction) HandleQuery(_ *AccountID, req Request) Response {
	inner := func() (Response, error) {
		switch {
		case req.GetWinner != nil:
			return Response{GetWinner: &WinnerResponse{Winner: a.Winner()}}, nil
		default:
			return Response{}, ErrSomeOtherError
		}
	}

	resp, err := inner()
	if err != nil {
		var qe QueryError
		if !errors.As(err, &qe) {
			qe = ErrSomeOtherError
		}
		return Response{Error: &qe}
	}
	return resp
}

// Winner returns the account holding the highest bid, or nil before the first bid.
func (a *Auction) Winner() *AccountID {
	if !a.hasWinner {
		return nil
	}
	winner := a.winner
	return &winner
}

// WinningBid returns the highest bid seen so far, 0 before the first bid.
func (a *Auction) WinningBid() uint32 {
	return a.winningBid
}

// Bid returns the latest bid recorded for account.
func (a *Auction) Bid(account AccountID) (uint32, bool) {
	v, ok := a.bids[account]
	return v, ok
}

// LedgerEntry is one account's latest bid.
type LedgerEntry struct {
	Account AccountID
	Value   uint32
}

// Bids returns a copy of the ledger ordered by account.
func (a *Auction) Bids() []LedgerEntry {
	entries := make([]LedgerEntry, 0, len(a.bids))
	for account, value := range a.bids {
		entries = append(entries, LedgerEntry{Account: account, Value: value})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Account.Compare(entries[j].Account) < 0
	})
	return entries
}
