package http

import (
	"fmt"
	"net/http"

	"splitledger/internal/core"
)

type balanceResponse struct {
	Paid    float64 `json:"paid"`
	Owed    float64 `json:"owed"`
	Net     float64 `json:"net"`
	Settled bool    `json:"settled"`
}

type memberBalanceResponse struct {
	User userResponse `json:"user"`
	balanceResponse
}

type debtResponse struct {
	UserID   int64   `json:"user_id"`
	Username string  `json:"username"`
	Name     string  `json:"name"`
	Amount   float64 `json:"amount"`
}

func toBalanceResponse(b core.Balance) balanceResponse {
	return balanceResponse{
		Paid:    b.Paid,
		Owed:    b.Owed,
		Net:     b.Net,
		Settled: b.IsSettled(),
	}
}

func toDebtResponses(debts []core.DebtEntry) []debtResponse {
	out := make([]debtResponse, 0, len(debts))
	for _, d := range debts {
		out = append(out, debtResponse{
			UserID:   d.UserID,
			Username: d.Username,
			Name:     d.Name,
			Amount:   d.Amount,
		})
	}
	return out
}

func (s *Server) handleGroupBalances(w http.ResponseWriter, r *http.Request) {
	groupID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: %v", core.ErrValidation, err))
		return
	}
	balances, err := s.balances.GroupBalances(r.Context(), groupID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]memberBalanceResponse, 0, len(balances))
	for _, mb := range balances {
		out = append(out, memberBalanceResponse{
			User:            toUserResponse(mb.User),
			balanceResponse: toBalanceResponse(mb.Balance),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUserBalance(w http.ResponseWriter, r *http.Request) {
	groupID, userID, err := groupUserIDs(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	balance, err := s.balances.UserBalance(r.Context(), groupID, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceResponse(balance))
}

func (s *Server) handleDebtsOwedBy(w http.ResponseWriter, r *http.Request) {
	groupID, userID, err := groupUserIDs(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	debts, err := s.balances.DebtsOwedBy(r.Context(), groupID, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDebtResponses(debts))
}

func (s *Server) handleDebtsOwedTo(w http.ResponseWriter, r *http.Request) {
	groupID, userID, err := groupUserIDs(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	debts, err := s.balances.DebtsOwedTo(r.Context(), groupID, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDebtResponses(debts))
}

func groupUserIDs(r *http.Request) (int64, int64, error) {
	groupID, err := pathID(r, "id")
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", core.ErrValidation, err)
	}
	userID, err := pathID(r, "userID")
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", core.ErrValidation, err)
	}
	return groupID, userID, nil
}
