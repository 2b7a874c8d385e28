package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"expenselog/internal/auth"
	"expenselog/internal/models"
	"expenselog/internal/storage"
	"expenselog/web"

	"github.com/sirupsen/logrus"
)

// Context key type to avoid collisions.
type contextKey string

const (
	// UserContextKey is the context key for the authenticated user.
	UserContextKey contextKey = "user"
	// SessionCookieName is the name of the session cookie.
	SessionCookieName = "session"
	// FlashCookieName is the name of the one-shot notice cookie.
	FlashCookieName = "flash"
	// SessionDuration is how long sessions last (30 days).
	SessionDuration = 30 * 24 * time.Hour
)

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	db           *storage.DB
	log          *logrus.Logger
	secureCookie bool
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(db *storage.DB, log *logrus.Logger, secureCookie bool) *Handlers {
	return &Handlers{db: db, log: log, secureCookie: secureCookie}
}

// GetUserFromContext retrieves the authenticated user from request context.
func GetUserFromContext(r *http.Request) *models.User {
	if user, ok := r.Context().Value(UserContextKey).(*models.User); ok {
		return user
	}
	return nil
}

// AuthMiddleware wraps handlers to require authentication.
// It also implements rolling sessions: if a session is past the halfway point
// of its lifetime, it automatically renews the session.
func (h *Handlers) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(SessionCookieName)
		if err != nil || cookie.Value == "" {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}

		sessionInfo, err := h.db.ValidateSessionWithInfo(cookie.Value)
		if err != nil {
			// Invalid or expired session, or a deleted account: back to anonymous
			h.clearSessionCookie(w)
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}

		// Rolling session: renew once past the halfway point so active users
		// stay logged in while inactive sessions still expire
		now := time.Now()
		if sessionInfo.ExpiresAt.Sub(now) < SessionDuration/2 {
			newExpiresAt := now.Add(SessionDuration)
			if err := h.db.RenewSession(cookie.Value, newExpiresAt); err == nil {
				h.setSessionCookie(w, cookie.Value)
			}
			// If renewal fails, just continue with the current session
		}

		ctx := context.WithValue(r.Context(), UserContextKey, sessionInfo.User)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handlers) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(SessionDuration.Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handlers) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

// Flash is a one-shot notice shown on the next rendered page.
type Flash struct {
	Message string
	Level   string // success, info, danger
}

// setFlash stores a notice in a cookie consumed by the next render.
func (h *Handlers) setFlash(w http.ResponseWriter, message, level string) {
	http.SetCookie(w, &http.Cookie{
		Name:     FlashCookieName,
		Value:    url.QueryEscape(level + "|" + message),
		Path:     "/",
		MaxAge:   60,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

// popFlash reads and clears the pending notice, if any.
func (h *Handlers) popFlash(w http.ResponseWriter, r *http.Request) *Flash {
	cookie, err := r.Cookie(FlashCookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}
	http.SetCookie(w, &http.Cookie{
		Name:     FlashCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})

	raw, err := url.QueryUnescape(cookie.Value)
	if err != nil {
		return nil
	}
	level, message, found := strings.Cut(raw, "|")
	if !found {
		return &Flash{Message: raw, Level: "info"}
	}
	return &Flash{Message: message, Level: level}
}

// Home redirects the bare root to the landing page.
func (h *Handlers) Home(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/welcome", http.StatusFound)
}

// WelcomeViewModel holds data for the landing page.
type WelcomeViewModel struct {
	Username string
	Flash    *Flash
}

// Welcome renders the landing page.
func (h *Handlers) Welcome(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "welcome.html", WelcomeViewModel{Flash: h.popFlash(w, r)})
}

// LoginViewModel holds data for the login page.
type LoginViewModel struct {
	Error    string
	Username string
	Flash    *Flash
}

// LoginForm renders the login page.
func (h *Handlers) LoginForm(w http.ResponseWriter, r *http.Request) {
	// If already logged in, go straight to the dashboard
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		if _, err := h.db.ValidateSession(cookie.Value); err == nil {
			http.Redirect(w, r, "/dashboard", http.StatusFound)
			return
		}
	}
	h.render(w, r, "login.html", LoginViewModel{Flash: h.popFlash(w, r)})
}

// Login handles the login form submission.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.render(w, r, "login.html", LoginViewModel{Error: "Invalid form submission"})
		return
	}

	username := strings.TrimSpace(r.FormValue("username"))
	password := r.FormValue("password")

	// One generic message for unknown user and wrong password alike
	user, err := h.db.GetUserByUsername(username)
	if err != nil || !auth.CheckPassword(password, user.PasswordHash) {
		h.render(w, r, "login.html", LoginViewModel{Error: "Invalid username or password"})
		return
	}

	token, err := auth.GenerateSessionToken()
	if err != nil {
		h.log.WithError(err).Error("failed to generate session token")
		h.render(w, r, "login.html", LoginViewModel{Error: "An error occurred. Please try again."})
		return
	}

	expiresAt := time.Now().Add(SessionDuration)
	if err := h.db.CreateSession(token, user.ID, expiresAt); err != nil {
		h.log.WithError(err).Error("failed to create session")
		h.render(w, r, "login.html", LoginViewModel{Error: "An error occurred. Please try again."})
		return
	}

	h.setSessionCookie(w, token)
	h.setFlash(w, "Login successful", "success")
	http.Redirect(w, r, "/dashboard", http.StatusFound)
}

// Logout deletes the session and returns to the login page.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		if err := h.db.DeleteSession(cookie.Value); err != nil {
			h.log.WithError(err).Error("failed to delete session")
		}
	}
	h.clearSessionCookie(w)
	h.setFlash(w, "Logged out", "info")
	http.Redirect(w, r, "/login", http.StatusFound)
}

// RegisterViewModel holds data for the registration page.
type RegisterViewModel struct {
	Error    string
	Username string
	Flash    *Flash
}

// RegisterForm renders the registration page.
func (h *Handlers) RegisterForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "register.html", RegisterViewModel{Flash: h.popFlash(w, r)})
}

// Register handles the registration form submission.
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.render(w, r, "register.html", RegisterViewModel{Error: "Invalid form submission"})
		return
	}

	username := strings.TrimSpace(r.FormValue("username"))
	password := r.FormValue("password")

	if verr := validateRegistration(username, password); verr != nil {
		h.render(w, r, "register.html", RegisterViewModel{Error: verr.Error()})
		return
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		h.log.WithError(err).Error("failed to hash password")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if _, err := h.db.CreateUser(username, hash); err != nil {
		if errors.Is(err, storage.ErrUsernameTaken) {
			h.render(w, r, "register.html", RegisterViewModel{Error: "Username already taken"})
			return
		}
		h.log.WithError(err).Error("failed to create user")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.log.WithField("username", username).Info("user registered")
	h.setFlash(w, "Registration successful. Please log in.", "success")
	http.Redirect(w, r, "/login", http.StatusFound)
}

// AddExpenseViewModel holds data for the add-expense form.
type AddExpenseViewModel struct {
	Error    string
	Username string
	Today    string
	Flash    *Flash
}

// AddExpenseForm renders the form for a new expense.
func (h *Handlers) AddExpenseForm(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)
	h.render(w, r, "add_expense.html", AddExpenseViewModel{
		Username: user.Username,
		Today:    time.Now().Format("2006-01-02"),
		Flash:    h.popFlash(w, r),
	})
}

// AddExpense handles the add-expense form submission.
func (h *Handlers) AddExpense(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)

	form, verr := parseExpenseForm(r)
	if verr != nil {
		h.render(w, r, "add_expense.html", AddExpenseViewModel{
			Error:    verr.Error(),
			Username: user.Username,
			Today:    time.Now().Format("2006-01-02"),
		})
		return
	}

	if err := h.db.CreateExpense(user.ID, form.Amount, form.Category, form.Description, form.Date); err != nil {
		h.log.WithError(err).Error("failed to create expense")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.setFlash(w, "Expense added", "success")
	http.Redirect(w, r, "/dashboard", http.StatusFound)
}

// DeleteExpense removes an expense if the current user owns it. A missing or
// foreign id is reported as success all the same.
func (h *Handlers) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid expense id", http.StatusBadRequest)
		return
	}

	if err := h.db.DeleteExpense(id, user.ID); err != nil {
		h.log.WithError(err).Error("failed to delete expense")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.setFlash(w, "Expense deleted", "info")
	http.Redirect(w, r, "/dashboard", http.StatusFound)
}

var templateFuncs = template.FuncMap{
	"json": func(v any) (template.JS, error) {
		b, err := json.Marshal(v)
		return template.JS(b), err
	},
}

func (h *Handlers) render(w http.ResponseWriter, r *http.Request, viewName string, data any) {
	tmpl, err := template.New("base.html").Funcs(templateFuncs).ParseFS(
		web.TemplatesFS, "templates/base.html", "templates/"+viewName,
	)
	if err != nil {
		h.log.WithError(err).WithField("view", viewName).Error("template parse error")
		http.Error(w, "Template error", http.StatusInternalServerError)
		return
	}
	if err := tmpl.ExecuteTemplate(w, "base.html", data); err != nil {
		h.log.WithError(err).WithField("view", viewName).Error("template execution error")
	}
}
