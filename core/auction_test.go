package core

import (
	"encoding/json"
	"testing"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
)

func account(b byte) AccountID {
	var id AccountID
	id[AccountIDLength-1] = b
	return id
}

func bid(value uint32) Command {
	return Command{PlaceBid: &PlaceBid{Value: value}}
}

func getWinner(t *testing.T, a *Auction) *AccountID {
	t.Helper()
	resp := a.HandleQuery(nil, Request{GetWinner: &GetWinner{}})
	assert.Nil(t, resp.Error)
	assert.NotNil(t, resp.GetWinner)
	return resp.GetWinner.Winner
}

func TestAuction_FreshStateHasNoWinner(t *testing.T) {
	a := NewAuction()

	check.Nil(t, getWinner(t, a))
	check.Equal(t, uint32(0), a.WinningBid())
	check.Equal(t, 0, len(a.Bids()))
}

func TestAuction_SingleBid(t *testing.T) {
	a := NewAuction()
	alice := account(1)

	status := a.HandleCommand(alice, TxRef{}, bid(5))

	check.Equal(t, StatusOk, status)
	check.Equal(t, &alice, getWinner(t, a))
	check.Equal(t, uint32(5), a.WinningBid())
}

func TestAuction_Scenario(t *testing.T) {
	a := NewAuction()
	alice, bob := account(1), account(2)

	a.HandleCommand(alice, TxRef{Index: 1}, bid(10))
	a.HandleCommand(bob, TxRef{Index: 2}, bid(15))
	a.HandleCommand(alice, TxRef{Index: 3}, bid(12))
	a.HandleCommand(bob, TxRef{Index: 4}, bid(15))

	check.Equal(t, &bob, getWinner(t, a))
	check.Equal(t, uint32(15), a.WinningBid())
	check.Equal(t, []LedgerEntry{
		{Account: alice, Value: 12},
		{Account: bob, Value: 15},
	}, a.Bids())
}

func TestAuction_EqualBidDoesNotDethroneIncumbent(t *testing.T) {
	a := NewAuction()
	alice, bob := account(1), account(2)

	a.HandleCommand(alice, TxRef{}, bid(20))
	status := a.HandleCommand(bob, TxRef{}, bid(20))

	check.Equal(t, StatusOk, status)
	check.Equal(t, &alice, getWinner(t, a))

	// The equal bid is still recorded.
	v, ok := a.Bid(bob)
	check.True(t, ok)
	check.Equal(t, uint32(20), v)
}

func TestAuction_LedgerKeepsMostRecentBid(t *testing.T) {
	a := NewAuction()
	alice := account(1)

	a.HandleCommand(alice, TxRef{}, bid(30))
	a.HandleCommand(alice, TxRef{}, bid(7))

	v, ok := a.Bid(alice)
	check.True(t, ok)
	check.Equal(t, uint32(7), v)

	// The winning bid never decreases, even when the winner lowers their own bid.
	check.Equal(t, uint32(30), a.WinningBid())
	check.Equal(t, &alice, getWinner(t, a))
}

func TestAuction_FirstBidOfZeroTakesLead(t *testing.T) {
	a := NewAuction()
	alice, bob := account(1), account(2)

	a.HandleCommand(alice, TxRef{}, bid(0))
	check.Equal(t, &alice, getWinner(t, a))
	check.Equal(t, uint32(0), a.WinningBid())

	a.HandleCommand(bob, TxRef{}, bid(0))
	check.Equal(t, &alice, getWinner(t, a))

	a.HandleCommand(bob, TxRef{}, bid(1))
	check.Equal(t, &bob, getWinner(t, a))
}

func TestAuction_Invariants(t *testing.T) {
	type step struct {
		from  byte
		value uint32
	}
	steps := []step{
		{1, 3}, {2, 9}, {3, 9}, {1, 11}, {2, 2}, {4, 0}, {3, 40}, {3, 1}, {1, 40}, {5, 41},
	}

	a := NewAuction()
	seen := make(map[AccountID]uint32)
	var prevWinning uint32
	var prevWinner *AccountID
	for i, s := range steps {
		from := account(s.from)
		a.HandleCommand(from, TxRef{Index: uint64(i)}, bid(s.value))
		seen[from] = s.value

		check.GreaterThanOrEqual(t, a.WinningBid(), prevWinning)
		prevWinning = a.WinningBid()

		winner := getWinner(t, a)
		assert.NotNil(t, winner)
		v, ok := a.Bid(*winner)
		check.True(t, ok)
		// A winner may lower its own bid afterwards, so equality only holds when the lead changes.
		check.True(t, v <= a.WinningBid())
		if prevWinner == nil || *prevWinner != *winner {
			check.Equal(t, a.WinningBid(), v)
			check.Equal(t, s.value, v)
		}
		prevWinner = winner

		for _, entry := range a.Bids() {
			check.True(t, entry.Value <= a.WinningBid())
		}
	}

	for acc, v := range seen {
		got, ok := a.Bid(acc)
		check.True(t, ok)
		check.Equal(t, v, got)
	}
	check.Equal(t, account(5), *getWinner(t, a))
	check.Equal(t, uint32(41), a.WinningBid())
}

func TestAuction_WinnerLowersOwnBid(t *testing.T) {
	alice, bob := account(1), account(2)

	a := NewAuction()
	a.HandleCommand(alice, TxRef{}, bid(30))
	a.HandleCommand(alice, TxRef{}, bid(7))

	check.Equal(t, &alice, getWinner(t, a))
	check.Equal(t, uint32(30), a.WinningBid())
	v, _ := a.Bid(alice)
	check.Equal(t, uint32(7), v)

	// The winning bid does not drop with the winner's bid.
	a.HandleCommand(bob, TxRef{}, bid(20))
	check.Equal(t, &alice, getWinner(t, a))
	a.HandleCommand(bob, TxRef{}, bid(31))
	check.Equal(t, &bob, getWinner(t, a))
}

func TestAuction_QueryIsIdempotent(t *testing.T) {
	a := NewAuction()
	a.HandleCommand(account(1), TxRef{}, bid(4))
	before, err := a.StateHash()
	assert.NoError(t, err)

	origin := account(9)
	first := a.HandleQuery(&origin, Request{GetWinner: &GetWinner{}})
	second := a.HandleQuery(nil, Request{GetWinner: &GetWinner{}})
	check.Equal(t, first, second)

	after, err := a.StateHash()
	assert.NoError(t, err)
	check.Equal(t, before, after)
}

func TestAuction_EmptyCommandAndRequest(t *testing.T) {
	a := NewAuction()

	check.Equal(t, StatusBadCommand, a.HandleCommand(account(1), TxRef{}, Command{}))
	check.Equal(t, 0, len(a.Bids()))

	resp := a.HandleQuery(nil, Request{})
	assert.NotNil(t, resp.Error)
	check.Equal(t, ErrSomeOtherError, *resp.Error)
}

func TestAuction_Events(t *testing.T) {
	a := NewAuction()
	var events []Event
	a.SetEventSink(func(e Event) { events = append(events, e) })

	a.HandleCommand(account(1), TxRef{}, bid(5))
	a.HandleCommand(account(2), TxRef{}, bid(5))

	check.Equal(t, []Event{
		{Kind: EventBidPlaced, Account: account(1), Value: 5},
		{Kind: EventWinnerChanged, Account: account(1), Value: 5},
		{Kind: EventBidPlaced, Account: account(2), Value: 5},
	}, events)
}

func TestCommand_JSON(t *testing.T) {
	data, err := json.Marshal(bid(42))
	assert.NoError(t, err)
	check.Equal(t, `{"PlaceBid":{"value":42}}`, string(data))

	var cmd Command
	assert.NoError(t, json.Unmarshal([]byte(`{"PlaceBid":{"value":7}}`), &cmd))
	assert.NotNil(t, cmd.PlaceBid)
	check.Equal(t, uint32(7), cmd.PlaceBid.Value)

	check.Error(t, json.Unmarshal([]byte(`{"Withdraw":{}}`), &cmd))
	check.Error(t, json.Unmarshal([]byte(`{"PlaceBid":{"value":-1}}`), &cmd))
	check.Error(t, json.Unmarshal([]byte(`"PlaceBid"`), &cmd))
}

func TestRequestResponse_JSON(t *testing.T) {
	var req Request
	assert.NoError(t, json.Unmarshal([]byte(`{"GetWinner":{}}`), &req))
	check.NotNil(t, req.GetWinner)
	assert.NoError(t, json.Unmarshal([]byte(`"GetWinner"`), &req))
	check.NotNil(t, req.GetWinner)

	data, err := json.Marshal(Response{GetWinner: &WinnerResponse{}})
	assert.NoError(t, err)
	check.Equal(t, `{"GetWinner":{"winner":null}}`, string(data))

	winner := account(0xab)
	data, err = json.Marshal(Response{GetWinner: &WinnerResponse{Winner: &winner}})
	assert.NoError(t, err)

	var resp Response
	assert.NoError(t, json.Unmarshal(data, &resp))
	assert.NotNil(t, resp.GetWinner)
	check.Equal(t, &winner, resp.GetWinner.Winner)

	qe := ErrNotAuthorized
	data, err = json.Marshal(Response{Error: &qe})
	assert.NoError(t, err)
	check.Equal(t, `{"Error":"NotAuthorized"}`, string(data))
}

func TestParseAccountID(t *testing.T) {
	id := account(0x2a)

	parsed, err := ParseAccountID(id.String())
	assert.NoError(t, err)
	check.Equal(t, id, parsed)

	parsed, err = ParseAccountID(id.String()[2:])
	assert.NoError(t, err)
	check.Equal(t, id, parsed)

	_, err = ParseAccountID("0x1234")
	check.Error(t, err)
	_, err = ParseAccountID("not-hex")
	check.Error(t, err)

	check.True(t, account(1).Compare(account(2)) < 0)
	check.Equal(t, 0, account(3).Compare(account(3)))
}
