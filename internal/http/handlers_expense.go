package http

import (
	"fmt"
	"net/http"
	"time"

	"splitledger/internal/core"
	"splitledger/internal/services"
)

type expensePayload struct {
	PaidBy        int64             `json:"paid_by"`
	Description   string            `json:"description"`
	Amount        string            `json:"amount"`
	Date          string            `json:"date"`
	Weights       map[int64]float64 `json:"weights,omitempty"`
	SplitAmongAll bool              `json:"split_among_all,omitempty"`
}

type expenseResponse struct {
	ID          int64   `json:"id"`
	GroupID     int64   `json:"group_id"`
	PaidBy      int64   `json:"paid_by"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	Date        string  `json:"date"`
	CreatedAt   string  `json:"created_at"`
}

type shareResponse struct {
	ID        int64   `json:"id"`
	ExpenseID int64   `json:"expense_id"`
	UserID    int64   `json:"user_id"`
	Amount    float64 `json:"amount"`
	IsPaid    bool    `json:"is_paid"`
}

type expenseWithShares struct {
	expenseResponse
	Shares []shareResponse `json:"shares"`
}

func toExpenseResponse(e core.Expense) expenseResponse {
	return expenseResponse{
		ID:          e.ID,
		GroupID:     e.GroupID,
		PaidBy:      e.PaidBy,
		Description: e.Description,
		Amount:      e.Amount,
		Date:        e.Date.Format("2006-01-02"),
		CreatedAt:   e.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func toExpenseWithShares(result services.ExpenseResult) expenseWithShares {
	out := expenseWithShares{
		expenseResponse: toExpenseResponse(result.Expense),
		Shares:          make([]shareResponse, 0, len(result.Shares)),
	}
	for _, sh := range result.Shares {
		out.Shares = append(out.Shares, shareResponse{
			ID:        sh.ID,
			ExpenseID: sh.ExpenseID,
			UserID:    sh.UserID,
			Amount:    sh.Amount,
			IsPaid:    sh.IsPaid,
		})
	}
	return out
}

func (s *Server) handleAddExpense(w http.ResponseWriter, r *http.Request) {
	groupID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: %v", core.ErrValidation, err))
		return
	}
	var body expensePayload
	if err := decodeBody(r, &body); err != nil {
		writeError(w, r, fmt.Errorf("%w: %v", core.ErrValidation, err))
		return
	}

	amount, err := core.ParseAmount(body.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	date, err := time.Parse("2006-01-02", body.Date)
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: invalid date %q", core.ErrValidation, body.Date))
		return
	}

	result, err := s.ledger.AddExpense(r.Context(), services.AddExpenseInput{
		GroupID:       groupID,
		PaidBy:        body.PaidBy,
		Description:   body.Description,
		Amount:        amount,
		Date:          core.Date{Time: date},
		Weights:       body.Weights,
		SplitAmongAll: body.SplitAmongAll,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toExpenseWithShares(result))
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	groupID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: %v", core.ErrValidation, err))
		return
	}
	expenses, err := s.ledger.ListGroupExpenses(r.Context(), groupID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]expenseResponse, 0, len(expenses))
	for _, e := range expenses {
		out = append(out, toExpenseResponse(e))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: %v", core.ErrValidation, err))
		return
	}
	result, err := s.ledger.GetExpense(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toExpenseWithShares(result))
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: %v", core.ErrValidation, err))
		return
	}
	if err := s.ledger.DeleteExpense(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type settlePayload struct {
	Paid bool `json:"paid"`
}

func (s *Server) handleSettleShare(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: %v", core.ErrValidation, err))
		return
	}
	body := settlePayload{Paid: true}
	if r.ContentLength > 0 {
		if err := decodeBody(r, &body); err != nil {
			writeError(w, r, fmt.Errorf("%w: %v", core.ErrValidation, err))
			return
		}
	}

	share, err := s.ledger.SettleShare(r.Context(), id, body.Paid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, shareResponse{
		ID:        share.ID,
		ExpenseID: share.ExpenseID,
		UserID:    share.UserID,
		Amount:    share.Amount,
		IsPaid:    share.IsPaid,
	})
}
