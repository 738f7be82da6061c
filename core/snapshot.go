package core

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// snapshotVersion is bumped whenever the snapshot layout changes.
const snapshotVersion = 1

// snapshotEncMode encodes with the CBOR Core Deterministic rules so that equal ledgers
// always produce identical bytes.
var snapshotEncMode = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("core: invalid snapshot encoding options: %v", err))
	}
	return em
}()

type snapshotBid struct {
	Account []byte `cbor:"1,keyasint"`
	Value   uint32 `cbor:"2,keyasint"`
}

type auctionSnapshot struct {
	Version    int           `cbor:"1,keyasint"`
	Bids       []snapshotBid `cbor:"2,keyasint"`
	Winner     []byte        `cbor:"3,keyasint,omitempty"`
	WinningBid uint32        `cbor:"4,keyasint"`
}

// Snapshot encodes the ledger canonically. Bids are ordered by account.
func (a *Auction) Snapshot() ([]byte, error) {
	snap := auctionSnapshot{
		Version:    snapshotVersion,
		Bids:       make([]snapshotBid, 0, len(a.bids)),
		WinningBid: a.winningBid,
	}
	for _, entry := range a.Bids() {
		account := entry.Account
		snap.Bids = append(snap.Bids, snapshotBid{Account: account[:], Value: entry.Value})
	}
	if a.hasWinner {
		winner := a.winner
		snap.Winner = winner[:]
	}

	data, err := snapshotEncMode.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode auction snapshot: %w", err)
	}
	return data, nil
}

// RestoreAuction rebuilds an auction from a snapshot. The ledger invariants are checked:
// bids strictly ordered by account, no bid above the winning bid, and a winner present in the
// ledger. The winner's current bid may be below the winning bid, since a winner can lower its
// own bid after taking the lead.
func RestoreAuction(data []byte) (*Auction, error) {
	var snap auctionSnapshot
	if err := cbor.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode auction snapshot: %w", err)
	}
	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", snap.Version)
	}

	a := NewAuction()
	var prev *AccountID
	for i, bid := range snap.Bids {
		account, err := accountFromBytes(bid.Account)
		if err != nil {
			return nil, fmt.Errorf("bid %d: %w", i, err)
		}
		if prev != nil && prev.Compare(account) >= 0 {
			return nil, fmt.Errorf("bid %d: accounts not strictly ordered", i)
		}
		if bid.Value > snap.WinningBid {
			return nil, fmt.Errorf("bid %d: value %d exceeds winning bid %d", i, bid.Value, snap.WinningBid)
		}
		a.bids[account] = bid.Value
		prev = &account
	}

	if snap.Winner != nil {
		winner, err := accountFromBytes(snap.Winner)
		if err != nil {
			return nil, fmt.Errorf("winner: %w", err)
		}
		if _, ok := a.bids[winner]; !ok {
			return nil, fmt.Errorf("winner %s has no bid in the ledger", winner)
		}
		a.winner = winner
		a.hasWinner = true
	} else if len(snap.Bids) > 0 || snap.WinningBid != 0 {
		return nil, fmt.Errorf("snapshot has bids but no winner")
	}
	a.winningBid = snap.WinningBid

	return a, nil
}

func accountFromBytes(raw []byte) (AccountID, error) {
	var id AccountID
	if len(raw) != AccountIDLength {
		return id, fmt.Errorf("invalid account id length: expected %d bytes, got %d", AccountIDLength, len(raw))
	}
	copy(id[:], raw)
	return id, nil
}
