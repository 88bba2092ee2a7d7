package state

import (
	"math/big"
	"testing"

	"stakeoracle/native/prediction"
	"stakeoracle/storage"
)

func newTestManager(t *testing.T) (*Manager, *storage.MemDB) {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	return NewManager(db), db
}

func TestNamespaces(t *testing.T) {
	var loan, staker [20]byte
	loan[19] = 0x01
	staker[19] = 0x02
	if got := string(ParamStoreKey(" prediction/redistribution ")); got != "params/prediction/redistribution" {
		t.Fatalf("unexpected param key: %s", got)
	}
	if got := string(PredictionVoteKey(loan, staker)); got != "prediction/vote/0000000000000000000000000000000000000001/0000000000000000000000000000000000000002" {
		t.Fatalf("unexpected vote key: %s", got)
	}
	if got := string(TokenBalanceKey("stake", staker)); got != "token/balance/STAKE/0000000000000000000000000000000000000002" {
		t.Fatalf("unexpected balance key: %s", got)
	}
}

func TestTransactionCommit(t *testing.T) {
	root, db := newTestManager(t)
	tx := root.Begin()
	if err := tx.KVPut([]byte("a"), big.NewInt(7)); err != nil {
		t.Fatalf("put: %v", err)
	}
	value := new(big.Int)
	if ok, err := tx.KVGet([]byte("a"), value); err != nil || !ok || value.Int64() != 7 {
		t.Fatalf("tx read-your-writes failed: ok=%v err=%v value=%s", ok, err, value)
	}
	if ok, _ := root.KVGet([]byte("a"), nil); ok {
		t.Fatalf("uncommitted write visible")
	}
	if db.Len() != 0 {
		t.Fatalf("database touched before commit")
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if ok, _ := root.KVGet([]byte("a"), nil); !ok {
		t.Fatalf("committed write missing")
	}
	if err := tx.Commit(); err == nil {
		t.Fatalf("expected double commit to fail")
	}
	if err := root.Commit(); err == nil {
		t.Fatalf("expected root commit to fail")
	}
}

func TestTransactionDiscard(t *testing.T) {
	root, _ := newTestManager(t)
	if err := root.KVPut([]byte("keep"), uint64(1)); err != nil {
		t.Fatalf("put: %v", err)
	}
	tx := root.Begin()
	if err := tx.KVDelete([]byte("keep")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if ok, _ := tx.KVGet([]byte("keep"), nil); ok {
		t.Fatalf("delete not visible inside tx")
	}
	tx.Discard()
	if ok, _ := root.KVGet([]byte("keep"), nil); !ok {
		t.Fatalf("discarded delete applied")
	}
	if _, err := tx.KVGet([]byte("keep"), nil); err == nil {
		t.Fatalf("expected closed tx error")
	}
}

func TestNestedTransaction(t *testing.T) {
	root, _ := newTestManager(t)
	outer := root.Begin()
	inner := outer.Begin()
	if err := inner.KVPut([]byte("n"), uint64(3)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := inner.Commit(); err != nil {
		t.Fatalf("inner commit: %v", err)
	}
	if ok, _ := root.KVGet([]byte("n"), nil); ok {
		t.Fatalf("inner commit leaked to root")
	}
	if err := outer.Commit(); err != nil {
		t.Fatalf("outer commit: %v", err)
	}
	var got uint64
	if ok, err := root.KVGet([]byte("n"), &got); err != nil || !ok || got != 3 {
		t.Fatalf("unexpected value %d ok=%v err=%v", got, ok, err)
	}
}

func TestKVAppendDeduplicates(t *testing.T) {
	root, _ := newTestManager(t)
	for _, v := range []string{"x", "y", "x"} {
		if err := root.KVAppend([]byte("list"), []byte(v)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	var list [][]byte
	if err := root.KVGetList([]byte("list"), &list); err != nil {
		t.Fatalf("get list: %v", err)
	}
	if len(list) != 2 || string(list[0]) != "x" || string(list[1]) != "y" {
		t.Fatalf("unexpected list: %q", list)
	}
	var empty [][]byte
	if err := root.KVGetList([]byte("missing"), &empty); err != nil || empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty slice, got %v err=%v", empty, err)
	}
}

func TestParamStore(t *testing.T) {
	root, _ := newTestManager(t)
	if _, ok, err := root.ParamStoreGet("prediction/redistribution"); err != nil || ok {
		t.Fatalf("unexpected param: ok=%v err=%v", ok, err)
	}
	if err := root.ParamStoreSet("prediction/redistribution", []byte(`{"lossFactorBps":1}`)); err != nil {
		t.Fatalf("set: %v", err)
	}
	raw, ok, err := root.ParamStoreGet("prediction/redistribution")
	if err != nil || !ok || string(raw) != `{"lossFactorBps":1}` {
		t.Fatalf("unexpected payload %q ok=%v err=%v", raw, ok, err)
	}
	if err := root.ParamStoreSet("  ", nil); err == nil {
		t.Fatalf("expected empty name rejection")
	}
}

func TestTokenLedger(t *testing.T) {
	root, _ := newTestManager(t)
	var owner, spender [20]byte
	owner[0], spender[0] = 1, 2

	if err := root.RegisterToken("stake", "Stake", 18); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := root.RegisterToken("STAKE", "Stake", 18); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
	meta, ok, err := root.Token("Stake")
	if err != nil || !ok || meta.Decimals != 18 || meta.Symbol != "STAKE" {
		t.Fatalf("unexpected metadata %+v ok=%v err=%v", meta, ok, err)
	}
	list, _ := root.TokenList()
	if len(list) != 1 || list[0] != "STAKE" {
		t.Fatalf("unexpected token list: %v", list)
	}

	if err := root.SetTokenBalance("stake", owner, big.NewInt(50)); err != nil {
		t.Fatalf("set balance: %v", err)
	}
	bal, _ := root.TokenBalance("STAKE", owner)
	if bal.Int64() != 50 {
		t.Fatalf("unexpected balance %s", bal)
	}
	if err := root.SetTokenBalance("stake", owner, big.NewInt(-1)); err == nil {
		t.Fatalf("expected negative balance rejection")
	}
	if err := root.SetTokenAllowance("stake", owner, spender, big.NewInt(9)); err != nil {
		t.Fatalf("set allowance: %v", err)
	}
	allowance, _ := root.TokenAllowance("stake", owner, spender)
	if allowance.Int64() != 9 {
		t.Fatalf("unexpected allowance %s", allowance)
	}

	total, err := root.AdjustTokenSupply("stake", big.NewInt(100))
	if err != nil || total.Int64() != 100 {
		t.Fatalf("adjust supply: %v %s", err, total)
	}
	if _, err := root.AdjustTokenSupply("stake", big.NewInt(-101)); err == nil {
		t.Fatalf("expected underflow")
	}
}

func TestPredictionRecords(t *testing.T) {
	root, _ := newTestManager(t)
	var loanAddr, staker [20]byte
	loanAddr[0], staker[0] = 0x10, 0x20

	if _, ok, err := root.PredictionLoanGet(loanAddr); err != nil || ok {
		t.Fatalf("unexpected loan: ok=%v err=%v", ok, err)
	}
	loan := &prediction.Loan{
		Address:     loanAddr,
		Creator:     staker,
		SubmittedAt: 1_700_000_000,
		TotalYes:    big.NewInt(10),
		TotalNo:     big.NewInt(5),
		Escrowed:    big.NewInt(15),
	}
	if err := root.PredictionLoanPut(loan); err != nil {
		t.Fatalf("put loan: %v", err)
	}
	got, ok, err := root.PredictionLoanGet(loanAddr)
	if err != nil || !ok {
		t.Fatalf("get loan: ok=%v err=%v", ok, err)
	}
	if got.SubmittedAt != loan.SubmittedAt || got.Creator != staker || got.Escrowed.Int64() != 15 || got.TotalNo.Int64() != 5 {
		t.Fatalf("unexpected loan: %+v", got)
	}

	if err := root.PredictionVotePut(&prediction.Vote{Loan: loanAddr, Staker: staker, Yes: big.NewInt(10)}); err != nil {
		t.Fatalf("put vote: %v", err)
	}
	vote, ok, err := root.PredictionVoteGet(loanAddr, staker)
	if err != nil || !ok || vote.Yes.Int64() != 10 || vote.No.Sign() != 0 {
		t.Fatalf("unexpected vote %+v ok=%v err=%v", vote, ok, err)
	}

	res := &prediction.Resolution{Loan: loanAddr, Outcome: prediction.StatusDefaulted, TotalYes: big.NewInt(10), TotalNo: big.NewInt(5), CapturedAt: 42}
	if err := root.PredictionResolutionPut(res); err != nil {
		t.Fatalf("put resolution: %v", err)
	}
	if err := root.PredictionResolutionPut(res); err == nil {
		t.Fatalf("expected immutable resolution")
	}
	stored, ok, err := root.PredictionResolutionGet(loanAddr)
	if err != nil || !ok || stored.Outcome != prediction.StatusDefaulted || stored.CapturedAt != 42 {
		t.Fatalf("unexpected resolution %+v", stored)
	}

	for i := 0; i < 2; i++ {
		if err := root.PredictionLoanIndexAppend(loanAddr); err != nil {
			t.Fatalf("index: %v", err)
		}
	}
	index, err := root.PredictionLoanIndex()
	if err != nil || len(index) != 1 || index[0] != loanAddr {
		t.Fatalf("unexpected index %v err=%v", index, err)
	}
}
