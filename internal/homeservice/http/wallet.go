package http

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"

	"fixitBack/internal/apierror"
	"fixitBack/internal/homeservice/wallet"
	"fixitBack/internal/identity"
)

func (s *Server) walletBalance(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	balance, err := s.svc.Wallet.Balance(r.Context(), who)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"balance": balance.StringFixed(2)})
}

func (s *Server) walletTransactions(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	limit, offset, err := parsePaging(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, apierror.CodeValidation, err.Error())
		return
	}
	txs, err := s.svc.Wallet.Transactions(r.Context(), who, limit, offset)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"transactions": txs, "limit": limit, "offset": offset})
}

func (s *Server) listWithdrawals(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	list, err := s.svc.Wallet.Withdrawals(r.Context(), who)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"withdrawals": list})
}

func (s *Server) requestWithdrawal(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var req struct {
		Amount decimal.Decimal `json:"amount"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, apierror.CodeValidation, "invalid json")
		return
	}
	ctx, cancel := contextWithTimeout(r)
	defer cancel()

	wd, err := s.svc.Wallet.RequestWithdrawal(ctx, who, req.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, wd)
}

func (s *Server) withdrawalAction(w http.ResponseWriter, r *http.Request,
	do func(ctx context.Context, who identity.Identity, id int64) (wallet.Withdrawal, error)) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	id, err := parsePathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, apierror.CodeValidation, err.Error())
		return
	}
	ctx, cancel := contextWithTimeout(r)
	defer cancel()

	wd, err := do(ctx, who, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wd)
}

func (s *Server) cancelWithdrawal(w http.ResponseWriter, r *http.Request) {
	s.withdrawalAction(w, r, s.svc.Wallet.CancelWithdrawal)
}

func (s *Server) approveWithdrawal(w http.ResponseWriter, r *http.Request) {
	s.withdrawalAction(w, r, s.svc.Wallet.Approve)
}

func (s *Server) markWithdrawalPaid(w http.ResponseWriter, r *http.Request) {
	s.withdrawalAction(w, r, s.svc.Wallet.MarkPaid)
}

func (s *Server) rejectWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Note string `json:"note"`
	}
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, apierror.CodeValidation, "invalid json")
			return
		}
	}
	s.withdrawalAction(w, r, func(ctx context.Context, who identity.Identity, id int64) (wallet.Withdrawal, error) {
		return s.svc.Wallet.Reject(ctx, who, id, req.Note)
	})
}
