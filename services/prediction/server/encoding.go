package server

import (
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"stakeoracle/gateway/middleware"
	"stakeoracle/native/params"
	"stakeoracle/native/prediction"
)

func parseAddress(raw string) ([20]byte, error) {
	trimmed := strings.TrimSpace(raw)
	if !common.IsHexAddress(trimmed) {
		return [20]byte{}, fmt.Errorf("%w: %q", prediction.ErrInvalidAddress, raw)
	}
	return common.HexToAddress(trimmed), nil
}

func parseAmount(raw string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok || amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %q", prediction.ErrInvalidAmount, raw)
	}
	return amount, nil
}

// caller resolves the authenticated token subject into an address.
func caller(r *http.Request) ([20]byte, error) {
	subject, ok := middleware.Subject(r.Context())
	if !ok {
		return [20]byte{}, errMissingCaller
	}
	return parseAddress(subject)
}

func hexAddress(addr [20]byte) string {
	return strings.ToLower(common.Address(addr).Hex())
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

type loanResponse struct {
	Address     string              `json:"address"`
	Creator     string              `json:"creator,omitempty"`
	SubmittedAt int64               `json:"submittedAt"`
	Status      string              `json:"status,omitempty"`
	TotalYes    string              `json:"totalYes"`
	TotalNo     string              `json:"totalNo"`
	Escrowed    string              `json:"escrowed"`
	Resolution  *resolutionResponse `json:"resolution,omitempty"`
}

type resolutionResponse struct {
	Outcome    string `json:"outcome"`
	TotalYes   string `json:"totalYes"`
	TotalNo    string `json:"totalNo"`
	CapturedAt int64  `json:"capturedAt"`
}

func newLoanResponse(loan *prediction.Loan) loanResponse {
	out := loanResponse{
		Address:     hexAddress(loan.Address),
		SubmittedAt: loan.SubmittedAt,
		TotalYes:    amountString(loan.TotalYes),
		TotalNo:     amountString(loan.TotalNo),
		Escrowed:    amountString(loan.Escrowed),
	}
	if loan.HasCreator() {
		out.Creator = hexAddress(loan.Creator)
	}
	return out
}

func newViewResponse(view *prediction.LoanView) loanResponse {
	out := newLoanResponse(view.Loan)
	out.Status = view.Status.String()
	if res := view.Resolution; res != nil {
		out.Resolution = &resolutionResponse{
			Outcome:    res.Outcome.String(),
			TotalYes:   amountString(res.TotalYes),
			TotalNo:    amountString(res.TotalNo),
			CapturedAt: res.CapturedAt,
		}
	}
	return out
}

type voteResponse struct {
	Loan   string `json:"loan"`
	Staker string `json:"staker"`
	Side   string `json:"side"`
	Yes    string `json:"yes"`
	No     string `json:"no"`
}

func newVoteResponse(vote *prediction.Vote) voteResponse {
	return voteResponse{
		Loan:   hexAddress(vote.Loan),
		Staker: hexAddress(vote.Staker),
		Side:   vote.Side().String(),
		Yes:    amountString(vote.Yes),
		No:     amountString(vote.No),
	}
}

type effectResponse struct {
	Kind   string `json:"kind"`
	Asset  string `json:"asset"`
	From   string `json:"from"`
	To     string `json:"to,omitempty"`
	Amount string `json:"amount"`
}

type settlementResponse struct {
	Loan    string           `json:"loan"`
	Staker  string           `json:"staker"`
	Status  string           `json:"status"`
	Side    string           `json:"side"`
	Rule    string           `json:"rule"`
	Amount  string           `json:"amount"`
	Payout  string           `json:"payout"`
	Burn    string           `json:"burn"`
	Params  paramsResponse   `json:"params"`
	Effects []effectResponse `json:"effects"`
}

func newSettlementResponse(s *prediction.Settlement) settlementResponse {
	out := settlementResponse{
		Loan:    hexAddress(s.Loan),
		Staker:  hexAddress(s.Staker),
		Status:  s.Status.String(),
		Side:    s.Side.String(),
		Rule:    string(s.Rule),
		Amount:  amountString(s.Amount),
		Payout:  amountString(s.Payout),
		Burn:    amountString(s.Burn),
		Params:  newParamsResponse(s.Params),
		Effects: make([]effectResponse, 0, len(s.Effects)),
	}
	for _, effect := range s.Effects {
		entry := effectResponse{
			Kind:   string(effect.Kind),
			Asset:  effect.Asset,
			From:   hexAddress(effect.From),
			Amount: amountString(effect.Amount),
		}
		if effect.To != ([20]byte{}) {
			entry.To = hexAddress(effect.To)
		}
		out.Effects = append(out.Effects, entry)
	}
	return out
}

type paramsResponse struct {
	LossFactorBps uint32 `json:"lossFactorBps"`
	BurnFactorBps uint32 `json:"burnFactorBps"`
}

func newParamsResponse(p params.Redistribution) paramsResponse {
	return paramsResponse{LossFactorBps: p.LossFactorBps, BurnFactorBps: p.BurnFactorBps}
}
