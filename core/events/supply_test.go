package events

import (
	"math/big"
	"testing"
)

func TestCustodyBurnEvent(t *testing.T) {
	custody := [20]byte{0xc0}
	evt := TokenSupply{
		Asset:   " stake ",
		Account: custody,
		Total:   big.NewInt(9_937_500),
		Delta:   big.NewInt(-62_500),
		Reason:  SupplyReasonBurn,
	}.Event()
	if evt.Type != TypeTokenSupply {
		t.Fatalf("unexpected type: %s", evt.Type)
	}
	want := map[string]string{
		"asset":   "STAKE",
		"account": "0xc000000000000000000000000000000000000000",
		"total":   "9937500",
		"delta":   "-62500",
		"reason":  SupplyReasonBurn,
	}
	for key, value := range want {
		if evt.Attributes[key] != value {
			t.Fatalf("%s: expected %q, got %q", key, value, evt.Attributes[key])
		}
	}
}

func TestSupplyReasonFollowsDelta(t *testing.T) {
	cases := []struct {
		delta *big.Int
		want  string
	}{
		{big.NewInt(1_000), SupplyReasonMint},
		{big.NewInt(-1), SupplyReasonBurn},
		{big.NewInt(0), ""},
		{nil, ""},
	}
	for _, tc := range cases {
		attrs := TokenSupply{Asset: "STAKE", Delta: tc.delta}.Event().Attributes
		if attrs["reason"] != tc.want {
			t.Fatalf("delta %v: expected reason %q, got %q", tc.delta, tc.want, attrs["reason"])
		}
	}
}
