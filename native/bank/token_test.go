package bank

import (
	"errors"
	"math/big"
	"testing"

	"github.com/holiman/uint256"

	"stakeoracle/core/events"
	"stakeoracle/core/state"
	"stakeoracle/storage"
)

type captureEmitter struct {
	events []events.Event
}

func (c *captureEmitter) Emit(evt events.Event) { c.events = append(c.events, evt) }

func newTestToken(t *testing.T) (*Token, *captureEmitter) {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	token := NewToken(" stake ", state.NewManager(db))
	emitter := &captureEmitter{}
	token.SetEmitter(emitter)
	return token, emitter
}

var (
	alice = [20]byte{0x01}
	bob   = [20]byte{0x02}
	vault = [20]byte{0x03}
)

func mustBalance(t *testing.T, token *Token, owner [20]byte, want int64) {
	t.Helper()
	got, err := token.BalanceOf(owner)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if got.Cmp(big.NewInt(want)) != 0 {
		t.Fatalf("balance of %x: expected %d, got %s", owner[:1], want, got)
	}
}

func TestMintTransferBurn(t *testing.T) {
	token, emitter := newTestToken(t)
	if token.Symbol() != "STAKE" {
		t.Fatalf("unexpected symbol %q", token.Symbol())
	}
	if err := token.Mint(alice, big.NewInt(1_000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := token.Transfer(alice, bob, big.NewInt(400)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	mustBalance(t, token, alice, 600)
	mustBalance(t, token, bob, 400)

	if err := token.Burn(bob, big.NewInt(150)); err != nil {
		t.Fatalf("burn: %v", err)
	}
	supply, _ := token.TotalSupply()
	if supply.Int64() != 850 {
		t.Fatalf("unexpected supply %s", supply)
	}
	if err := token.Burn(bob, big.NewInt(251)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}

	wantTypes := []string{events.TypeTokenSupply, events.TypeTransfer, events.TypeTokenSupply}
	if len(emitter.events) != len(wantTypes) {
		t.Fatalf("unexpected event count %d", len(emitter.events))
	}
	for i, typ := range wantTypes {
		if emitter.events[i].EventType() != typ {
			t.Fatalf("event %d: expected %s, got %s", i, typ, emitter.events[i].EventType())
		}
	}
	burn := events.Render(emitter.events[2])
	if burn.Attributes["delta"] != "-150" || burn.Attributes["reason"] != events.SupplyReasonBurn {
		t.Fatalf("unexpected burn event: %+v", burn.Attributes)
	}
}

func TestTransferFromConsumesAllowance(t *testing.T) {
	token, _ := newTestToken(t)
	if err := token.Mint(alice, big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := token.TransferFrom(vault, alice, vault, big.NewInt(10)); !errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("expected allowance error, got %v", err)
	}
	if err := token.Approve(alice, vault, big.NewInt(60)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := token.TransferFrom(vault, alice, vault, big.NewInt(50)); err != nil {
		t.Fatalf("transfer from: %v", err)
	}
	remaining, _ := token.Allowance(alice, vault)
	if remaining.Int64() != 10 {
		t.Fatalf("unexpected allowance %s", remaining)
	}
	mustBalance(t, token, vault, 50)
	if err := token.TransferFrom(vault, alice, vault, big.NewInt(11)); !errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("expected allowance error, got %v", err)
	}
}

func TestAmountValidation(t *testing.T) {
	token, _ := newTestToken(t)
	if err := token.Transfer(alice, bob, big.NewInt(-1)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected negative rejection, got %v", err)
	}
	huge := new(big.Int).Lsh(big.NewInt(1), 256)
	if err := token.Mint(alice, huge); !errors.Is(err, ErrAmountOverflow) {
		t.Fatalf("expected overflow rejection, got %v", err)
	}
	ceiling := new(uint256.Int).SetAllOne().ToBig()
	if err := token.Mint(alice, ceiling); err != nil {
		t.Fatalf("mint max: %v", err)
	}
	if err := token.Mint(alice, big.NewInt(1)); !errors.Is(err, ErrAmountOverflow) {
		t.Fatalf("expected balance overflow, got %v", err)
	}
}

func TestTransferHooks(t *testing.T) {
	token, _ := newTestToken(t)
	var seen []int64
	token.AddHook(func(from, to [20]byte, amount *big.Int) error {
		seen = append(seen, amount.Int64())
		if to == bob {
			return errors.New("bob rejects deposits")
		}
		return nil
	})
	if err := token.Mint(alice, big.NewInt(10)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := token.Transfer(alice, vault, big.NewInt(3)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if err := token.Transfer(alice, bob, big.NewInt(2)); err == nil {
		t.Fatalf("expected hook failure")
	}
	if len(seen) != 2 || seen[0] != 3 || seen[1] != 2 {
		t.Fatalf("unexpected hook calls: %v", seen)
	}
}
