package handlers

import (
	"net/http"

	"expenselog/internal/models"
)

// MonthlyBreakdown accumulates per-category totals for one calendar month.
// Categories and Amounts are parallel slices so the chart gets labels and
// values in the same order.
type MonthlyBreakdown struct {
	Month      string
	Categories []string
	Amounts    []float64
	Total      float64
}

// BuildMonthlyBreakdown folds an owner's expenses, already ordered by date
// descending, into per-month category totals. Months come out newest first.
// Categories within a month keep their first-appearance order from the
// input, not alphabetical order; the dashboard chart has always shown them
// that way.
func BuildMonthlyBreakdown(expenses []models.Expense) []MonthlyBreakdown {
	var months []MonthlyBreakdown
	monthIdx := make(map[string]int)
	categoryIdx := make(map[string]map[string]int)

	for _, e := range expenses {
		month := e.Month()
		mi, ok := monthIdx[month]
		if !ok {
			mi = len(months)
			monthIdx[month] = mi
			categoryIdx[month] = make(map[string]int)
			months = append(months, MonthlyBreakdown{Month: month})
		}

		bucket := &months[mi]
		ci, ok := categoryIdx[month][e.Category]
		if !ok {
			ci = len(bucket.Categories)
			categoryIdx[month][e.Category] = ci
			bucket.Categories = append(bucket.Categories, e.Category)
			bucket.Amounts = append(bucket.Amounts, 0)
		}

		bucket.Amounts[ci] += e.Amount
		bucket.Total += e.Amount
	}

	return months
}

// DashboardViewModel is the data passed to the dashboard template.
type DashboardViewModel struct {
	Username string
	Expenses []models.Expense
	Total    float64
	Months   []MonthlyBreakdown
	Flash    *Flash
}

// Dashboard renders the expense list, the running total and the
// month-by-category breakdown for the current user.
func (h *Handlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)

	expenses, err := h.db.ListExpensesByUser(user.ID)
	if err != nil {
		h.log.WithError(err).Error("failed to list expenses")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	total, err := h.db.SumExpensesByUser(user.ID)
	if err != nil {
		h.log.WithError(err).Error("failed to sum expenses")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.render(w, r, "dashboard.html", DashboardViewModel{
		Username: user.Username,
		Expenses: expenses,
		Total:    total,
		Months:   BuildMonthlyBreakdown(expenses),
		Flash:    h.popFlash(w, r),
	})
}
