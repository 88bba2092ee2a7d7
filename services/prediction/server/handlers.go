package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"stakeoracle/native/prediction"
	"stakeoracle/services/prediction/journal"
)

const maxBodyBytes = 1 << 16

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", errInvalidBody, err)
	}
	return nil
}

func loanParam(r *http.Request) ([20]byte, error) {
	return parseAddress(chi.URLParam(r, "loan"))
}

// Health reports liveness.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetParams returns the current redistribution factors.
func (s *Server) GetParams(w http.ResponseWriter, r *http.Request) {
	current, err := s.ledger.Params()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newParamsResponse(current))
}

// PutParams updates one or both redistribution factors. Administrator only.
func (s *Server) PutParams(w http.ResponseWriter, r *http.Request) {
	who, err := caller(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req struct {
		LossFactorBps *uint32 `json:"lossFactorBps"`
		BurnFactorBps *uint32 `json:"burnFactorBps"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.LossFactorBps == nil && req.BurnFactorBps == nil {
		s.fail(w, r, fmt.Errorf("%w: no factor supplied", errInvalidBody))
		return
	}
	updated, err := s.ledger.SetParams(who, req.LossFactorBps, req.BurnFactorBps)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.logger.Info("redistribution factors updated",
		"caller", hexAddress(who),
		"lossFactorBps", updated.LossFactorBps,
		"burnFactorBps", updated.BurnFactorBps)
	s.writeJSON(w, http.StatusOK, newParamsResponse(updated))
}

// ListLoans returns every submitted loan in submission order.
func (s *Server) ListLoans(w http.ResponseWriter, r *http.Request) {
	loans, err := s.ledger.Loans()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]string, 0, len(loans))
	for _, loan := range loans {
		out = append(out, hexAddress(loan))
	}
	s.writeJSON(w, http.StatusOK, map[string][]string{"loans": out})
}

// GetLoan returns the registry record with its current status.
func (s *Server) GetLoan(w http.ResponseWriter, r *http.Request) {
	loan, err := loanParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	view, err := s.ledger.View(r.Context(), loan)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newViewResponse(view))
}

// SubmitLoan registers the loan with the caller as creator.
func (s *Server) SubmitLoan(w http.ResponseWriter, r *http.Request) {
	who, err := caller(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	loan, err := loanParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	record, err := s.ledger.Submit(r.Context(), loan, who)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.logger.Info("loan submitted", "loan", hexAddress(loan), "creator", hexAddress(who))
	s.writeJSON(w, http.StatusCreated, newLoanResponse(record))
}

// RetractLoan withdraws a pending loan. Creator only.
func (s *Server) RetractLoan(w http.ResponseWriter, r *http.Request) {
	who, err := caller(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	loan, err := loanParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	record, err := s.ledger.Retract(r.Context(), loan, who)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.logger.Info("loan retracted", "loan", hexAddress(loan))
	s.writeJSON(w, http.StatusOK, newLoanResponse(record))
}

// CastVote stakes the caller's tokens on one side of the loan.
func (s *Server) CastVote(w http.ResponseWriter, r *http.Request) {
	who, err := caller(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	loan, err := loanParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req struct {
		Side   string `json:"side"`
		Amount string `json:"amount"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	side, err := prediction.ParseSide(req.Side)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	vote, err := s.ledger.Vote(r.Context(), loan, who, side, amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newVoteResponse(vote))
}

// GetVote returns a staker's position.
func (s *Server) GetVote(w http.ResponseWriter, r *http.Request) {
	loan, err := loanParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	staker, err := parseAddress(chi.URLParam(r, "staker"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	vote, err := s.ledger.VoteOf(loan, staker)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newVoteResponse(vote))
}

// Withdraw settles part or all of the caller's position.
func (s *Server) Withdraw(w http.ResponseWriter, r *http.Request) {
	who, err := caller(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	loan, err := loanParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req struct {
		Amount string `json:"amount"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	settlement, err := s.ledger.Withdraw(r.Context(), loan, who, amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.logger.Info("withdrawal settled",
		"loan", hexAddress(loan),
		"staker", hexAddress(who),
		"rule", string(settlement.Rule),
		"payout", amountString(settlement.Payout),
		"burn", amountString(settlement.Burn))
	s.writeJSON(w, http.StatusOK, newSettlementResponse(settlement))
}

// Quote previews a withdrawal for ?staker=&amount=.
func (s *Server) Quote(w http.ResponseWriter, r *http.Request) {
	loan, err := loanParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	query := r.URL.Query()
	staker, err := parseAddress(query.Get("staker"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	amount, err := parseAmount(query.Get("amount"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	settlement, err := s.ledger.Quote(r.Context(), loan, staker, amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newSettlementResponse(settlement))
}

// SetOracleStatus overrides the status reported for a loan by a static
// oracle. Administrator only.
func (s *Server) SetOracleStatus(w http.ResponseWriter, r *http.Request) {
	who, err := caller(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	loan, err := loanParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	status, err := prediction.ParseLoanStatus(req.Status)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.ledger.SetOracleStatus(who, loan, status); err != nil {
		s.fail(w, r, err)
		return
	}
	s.logger.Info("oracle status overridden", "loan", hexAddress(loan), "status", status.String())
	s.writeJSON(w, http.StatusOK, map[string]string{"loan": hexAddress(loan), "status": status.String()})
}

// Approve sets the allowance the caller grants custody in the stake token.
func (s *Server) Approve(w http.ResponseWriter, r *http.Request) {
	who, err := caller(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req struct {
		Amount string `json:"amount"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.ledger.Approve(who, amount); err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"owner": hexAddress(who), "allowance": amount.String()})
}

type balanceResponse struct {
	Symbol    string `json:"symbol"`
	Balance   string `json:"balance"`
	Allowance string `json:"allowance"`
}

// GetBalances lists an account's token balances and custody allowances.
func (s *Server) GetBalances(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress(chi.URLParam(r, "addr"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	balances, err := s.ledger.Balances(addr)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]balanceResponse, 0, len(balances))
	for _, b := range balances {
		out = append(out, balanceResponse{Symbol: b.Symbol, Balance: amountString(b.Balance), Allowance: amountString(b.Allowance)})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"address": hexAddress(addr), "balances": out})
}

type supplyResponse struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals uint8  `json:"decimals"`
	Total    string `json:"total"`
	Custody  string `json:"custody"`
}

// GetSupply reports token supplies and custody holdings.
func (s *Server) GetSupply(w http.ResponseWriter, r *http.Request) {
	supplies, err := s.ledger.Supplies()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]supplyResponse, 0, len(supplies))
	for _, supply := range supplies {
		out = append(out, supplyResponse{
			Symbol:   supply.Symbol,
			Name:     supply.Name,
			Decimals: supply.Decimals,
			Total:    amountString(supply.Total),
			Custody:  amountString(supply.Custody),
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"tokens": out})
}

// ListEvents queries the event journal with ?loan=&type=&after=&limit=.
func (s *Server) ListEvents(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		s.fail(w, r, errNoJournal)
		return
	}
	query := r.URL.Query()
	filter := journal.Filter{Type: strings.TrimSpace(query.Get("type"))}
	if raw := query.Get("loan"); raw != "" {
		loan, err := parseAddress(raw)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		filter.Loan = hexAddress(loan)
	}
	if raw := query.Get("after"); raw != "" {
		after, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || after < 0 {
			s.fail(w, r, fmt.Errorf("%w: after must be a non-negative integer", errInvalidBody))
			return
		}
		filter.AfterSequence = after
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			s.fail(w, r, fmt.Errorf("%w: limit must be a non-negative integer", errInvalidBody))
			return
		}
		filter.Limit = limit
	}
	entries, err := s.journal.List(r.Context(), filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"events": entries})
}
