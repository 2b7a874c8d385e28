package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ValidationError reports user-correctable problems with a submitted form.
type ValidationError struct {
	Fields []string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	return fmt.Sprintf("%s is required", strings.Join(e.Fields, ", "))
}

func missingFields(fields ...string) *ValidationError {
	return &ValidationError{Fields: fields}
}

// validateRegistration checks the registration form inputs. The username is
// expected to be trimmed by the caller.
func validateRegistration(username, password string) *ValidationError {
	if username == "" || password == "" {
		return &ValidationError{Reason: "Username and password are required"}
	}
	return nil
}

// ExpenseForm holds a parsed add-expense submission.
type ExpenseForm struct {
	Amount      float64
	Category    string
	Description string
	Date        string
}

// parseExpenseForm reads and validates the add-expense form. Amount,
// category and date are required; description is optional.
func parseExpenseForm(r *http.Request) (ExpenseForm, *ValidationError) {
	var form ExpenseForm

	if err := r.ParseForm(); err != nil {
		return form, &ValidationError{Reason: "Invalid form submission"}
	}

	amountStr := strings.TrimSpace(r.FormValue("amount"))
	form.Category = strings.TrimSpace(r.FormValue("category"))
	form.Description = strings.TrimSpace(r.FormValue("description"))
	form.Date = strings.TrimSpace(r.FormValue("date"))

	var missing []string
	if amountStr == "" {
		missing = append(missing, "amount")
	}
	if form.Category == "" {
		missing = append(missing, "category")
	}
	if form.Date == "" {
		missing = append(missing, "date")
	}
	if len(missing) > 0 {
		return form, missingFields(missing...)
	}

	amount, err := strconv.ParseFloat(amountStr, 64)
	if err != nil {
		return form, &ValidationError{Reason: "Amount must be a number"}
	}
	form.Amount = amount

	// The dashboard groups by the YYYY-MM prefix, so the date has to parse
	if _, err := time.Parse("2006-01-02", form.Date); err != nil {
		return form, &ValidationError{Reason: "Date must be in YYYY-MM-DD format"}
	}

	return form, nil
}
