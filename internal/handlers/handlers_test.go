package handlers

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"expenselog/internal/models"
	"expenselog/internal/storage"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// HandlersTestSuite exercises the HTTP surface against an in-memory database.
type HandlersTestSuite struct {
	suite.Suite
	db  *storage.DB
	h   *Handlers
	mux *http.ServeMux
}

func (suite *HandlersTestSuite) SetupTest() {
	db, err := storage.NewDB(":memory:")
	require.NoError(suite.T(), err, "failed to create test database")
	suite.db = db

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	suite.h = NewHandlers(db, logger, false)

	// Mirrors the wiring in cmd/server
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", suite.h.Home)
	mux.HandleFunc("GET /welcome", suite.h.Welcome)
	mux.HandleFunc("GET /register", suite.h.RegisterForm)
	mux.HandleFunc("POST /register", suite.h.Register)
	mux.HandleFunc("GET /login", suite.h.LoginForm)
	mux.HandleFunc("POST /login", suite.h.Login)
	mux.Handle("GET /dashboard", suite.h.AuthMiddleware(http.HandlerFunc(suite.h.Dashboard)))
	mux.Handle("GET /add", suite.h.AuthMiddleware(http.HandlerFunc(suite.h.AddExpenseForm)))
	mux.Handle("POST /add", suite.h.AuthMiddleware(http.HandlerFunc(suite.h.AddExpense)))
	mux.Handle("GET /delete/{id}", suite.h.AuthMiddleware(http.HandlerFunc(suite.h.DeleteExpense)))
	mux.Handle("GET /logout", suite.h.AuthMiddleware(http.HandlerFunc(suite.h.Logout)))
	suite.mux = mux
}

func (suite *HandlersTestSuite) TearDownTest() {
	if suite.db != nil {
		suite.db.Close()
	}
}

// postForm submits a form, optionally carrying a session cookie.
func (suite *HandlersTestSuite) postForm(path string, form url.Values, session *http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if session != nil {
		req.AddCookie(session)
	}
	w := httptest.NewRecorder()
	suite.mux.ServeHTTP(w, req)
	return w
}

func (suite *HandlersTestSuite) get(path string, session *http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", path, http.NoBody)
	if session != nil {
		req.AddCookie(session)
	}
	w := httptest.NewRecorder()
	suite.mux.ServeHTTP(w, req)
	return w
}

func (suite *HandlersTestSuite) register(username, password string) *httptest.ResponseRecorder {
	return suite.postForm("/register", url.Values{
		"username": {username},
		"password": {password},
	}, nil)
}

// login registers nothing; it authenticates and returns the session cookie.
func (suite *HandlersTestSuite) login(username, password string) *http.Cookie {
	w := suite.postForm("/login", url.Values{
		"username": {username},
		"password": {password},
	}, nil)
	require.Equal(suite.T(), http.StatusFound, w.Code, "login should redirect")
	require.Equal(suite.T(), "/dashboard", w.Header().Get("Location"))

	for _, c := range w.Result().Cookies() {
		if c.Name == SessionCookieName && c.Value != "" {
			return c
		}
	}
	suite.T().Fatal("no session cookie set on login")
	return nil
}

func (suite *HandlersTestSuite) mustUser(username string) *models.User {
	user, err := suite.db.GetUserByUsername(username)
	require.NoError(suite.T(), err)
	return user
}

func (suite *HandlersTestSuite) TestRegisterLoginFlow() {
	// First registration succeeds
	w := suite.register("alice", "pw1")
	assert.Equal(suite.T(), http.StatusFound, w.Code)
	assert.Equal(suite.T(), "/login", w.Header().Get("Location"))

	// Second registration with the same username is rejected with a warning
	w = suite.register("alice", "pw2")
	assert.Equal(suite.T(), http.StatusOK, w.Code)
	assert.Contains(suite.T(), w.Body.String(), "Username already taken")

	count, err := suite.db.UserCount()
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), 1, count, "duplicate registration must not add a row")

	// The original credentials still log in
	cookie := suite.login("alice", "pw1")
	assert.NotEmpty(suite.T(), cookie.Value)
}

func (suite *HandlersTestSuite) TestRegisterTrimsUsername() {
	w := suite.register("  alice  ", "pw1")
	assert.Equal(suite.T(), http.StatusFound, w.Code)

	user := suite.mustUser("alice")
	assert.Equal(suite.T(), "alice", user.Username)
}

func (suite *HandlersTestSuite) TestRegisterMissingFields() {
	tests := []struct {
		name     string
		username string
		password string
	}{
		{"empty username", "", "pw"},
		{"whitespace username", "   ", "pw"},
		{"empty password", "alice", ""},
		{"both empty", "", ""},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			w := suite.register(tt.username, tt.password)
			assert.Equal(suite.T(), http.StatusOK, w.Code)
			assert.Contains(suite.T(), w.Body.String(), "Username and password are required")
		})
	}

	count, err := suite.db.UserCount()
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), 0, count)
}

func (suite *HandlersTestSuite) TestLoginRejectsBadCredentials() {
	suite.register("alice", "pw1")

	// Wrong password and unknown user get the same generic message
	for _, creds := range [][2]string{{"alice", "wrong"}, {"nobody", "pw1"}} {
		w := suite.postForm("/login", url.Values{
			"username": {creds[0]},
			"password": {creds[1]},
		}, nil)
		assert.Equal(suite.T(), http.StatusOK, w.Code)
		assert.Contains(suite.T(), w.Body.String(), "Invalid username or password")
	}
}

func (suite *HandlersTestSuite) TestDashboardRequiresAuth() {
	w := suite.get("/dashboard", nil)
	assert.Equal(suite.T(), http.StatusFound, w.Code)
	assert.Equal(suite.T(), "/login", w.Header().Get("Location"))
}

func (suite *HandlersTestSuite) TestDashboardShowsOwnExpensesOnly() {
	suite.register("alice", "pw1")
	suite.register("bob", "pw2")

	alice := suite.mustUser("alice")
	bob := suite.mustUser("bob")
	require.NoError(suite.T(), suite.db.CreateExpense(alice.ID, 12.5, "food", "Alice groceries", "2024-01-15"))
	require.NoError(suite.T(), suite.db.CreateExpense(bob.ID, 80, "housing", "Bob rent share", "2024-01-15"))

	cookie := suite.login("alice", "pw1")
	w := suite.get("/dashboard", cookie)

	assert.Equal(suite.T(), http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(suite.T(), body, "Alice groceries")
	assert.NotContains(suite.T(), body, "Bob rent share")
	assert.Contains(suite.T(), body, "12.50")
}

func (suite *HandlersTestSuite) TestAddExpense() {
	suite.register("alice", "pw1")
	cookie := suite.login("alice", "pw1")

	w := suite.postForm("/add", url.Values{
		"amount":      {"9.99"},
		"category":    {"food"},
		"description": {"Lunch"},
		"date":        {"2024-03-05"},
	}, cookie)
	assert.Equal(suite.T(), http.StatusFound, w.Code)
	assert.Equal(suite.T(), "/dashboard", w.Header().Get("Location"))

	alice := suite.mustUser("alice")
	expenses, err := suite.db.ListExpensesByUser(alice.ID)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), expenses, 1)
	assert.Equal(suite.T(), 9.99, expenses[0].Amount)
	assert.Equal(suite.T(), "2024-03-05", expenses[0].Date)
}

func (suite *HandlersTestSuite) TestAddExpenseMissingFieldCreatesNoRow() {
	suite.register("alice", "pw1")
	cookie := suite.login("alice", "pw1")

	tests := []struct {
		name string
		form url.Values
	}{
		{"missing amount", url.Values{"category": {"food"}, "date": {"2024-03-05"}}},
		{"missing category", url.Values{"amount": {"5"}, "date": {"2024-03-05"}}},
		{"missing date", url.Values{"amount": {"5"}, "category": {"food"}}},
		{"bad amount", url.Values{"amount": {"abc"}, "category": {"food"}, "date": {"2024-03-05"}}},
		{"bad date", url.Values{"amount": {"5"}, "category": {"food"}, "date": {"yesterday"}}},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			w := suite.postForm("/add", tt.form, cookie)
			assert.Equal(suite.T(), http.StatusOK, w.Code, "invalid form should re-render")
		})
	}

	alice := suite.mustUser("alice")
	expenses, err := suite.db.ListExpensesByUser(alice.ID)
	require.NoError(suite.T(), err)
	assert.Empty(suite.T(), expenses, "no row may be created from an invalid form")
}

func (suite *HandlersTestSuite) TestDeleteExpense() {
	suite.register("alice", "pw1")
	cookie := suite.login("alice", "pw1")

	alice := suite.mustUser("alice")
	require.NoError(suite.T(), suite.db.CreateExpense(alice.ID, 5, "food", "Coffee", "2024-01-10"))
	expenses, err := suite.db.ListExpensesByUser(alice.ID)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), expenses, 1)

	w := suite.get("/delete/"+int64String(expenses[0].ID), cookie)
	assert.Equal(suite.T(), http.StatusFound, w.Code)
	assert.Equal(suite.T(), "/dashboard", w.Header().Get("Location"))

	expenses, err = suite.db.ListExpensesByUser(alice.ID)
	require.NoError(suite.T(), err)
	assert.Empty(suite.T(), expenses)
}

func (suite *HandlersTestSuite) TestDeleteForeignExpenseIsNoOp() {
	suite.register("alice", "pw1")
	suite.register("bob", "pw2")

	bob := suite.mustUser("bob")
	require.NoError(suite.T(), suite.db.CreateExpense(bob.ID, 42, "food", "Bob dinner", "2024-01-10"))
	bobExpenses, err := suite.db.ListExpensesByUser(bob.ID)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), bobExpenses, 1)

	cookie := suite.login("alice", "pw1")
	w := suite.get("/delete/"+int64String(bobExpenses[0].ID), cookie)

	// Reported as success regardless
	assert.Equal(suite.T(), http.StatusFound, w.Code)
	assert.Equal(suite.T(), "/dashboard", w.Header().Get("Location"))

	bobExpenses, err = suite.db.ListExpensesByUser(bob.ID)
	require.NoError(suite.T(), err)
	assert.Len(suite.T(), bobExpenses, 1, "Bob's expense must survive")
}

func (suite *HandlersTestSuite) TestLogout() {
	suite.register("alice", "pw1")
	cookie := suite.login("alice", "pw1")

	w := suite.get("/logout", cookie)
	assert.Equal(suite.T(), http.StatusFound, w.Code)
	assert.Equal(suite.T(), "/login", w.Header().Get("Location"))

	// The session no longer works
	w = suite.get("/dashboard", cookie)
	assert.Equal(suite.T(), http.StatusFound, w.Code)
	assert.Equal(suite.T(), "/login", w.Header().Get("Location"))
}

func (suite *HandlersTestSuite) TestLoginFormRedirectsWhenAuthenticated() {
	suite.register("alice", "pw1")
	cookie := suite.login("alice", "pw1")

	w := suite.get("/login", cookie)
	assert.Equal(suite.T(), http.StatusFound, w.Code)
	assert.Equal(suite.T(), "/dashboard", w.Header().Get("Location"))
}

func (suite *HandlersTestSuite) TestFlashShownOnce() {
	suite.register("alice", "pw1")
	cookie := suite.login("alice", "pw1")

	w2 := suite.postForm("/add", url.Values{
		"amount":   {"3"},
		"category": {"food"},
		"date":     {"2024-01-02"},
	}, cookie)
	require.Equal(suite.T(), http.StatusFound, w2.Code)

	var flash *http.Cookie
	for _, c := range w2.Result().Cookies() {
		if c.Name == FlashCookieName && c.Value != "" {
			flash = c
		}
	}
	require.NotNil(suite.T(), flash, "mutation should set a flash cookie")

	// First render shows the notice and clears the cookie
	req3 := httptest.NewRequest("GET", "/dashboard", http.NoBody)
	req3.AddCookie(cookie)
	req3.AddCookie(flash)
	w3 := httptest.NewRecorder()
	suite.mux.ServeHTTP(w3, req3)
	assert.Contains(suite.T(), w3.Body.String(), "Expense added")

	cleared := false
	for _, c := range w3.Result().Cookies() {
		if c.Name == FlashCookieName && c.MaxAge < 0 {
			cleared = true
		}
	}
	assert.True(suite.T(), cleared, "flash cookie should be cleared after display")
}

func int64String(id int64) string {
	return strconv.FormatInt(id, 10)
}

func TestHandlersSuite(t *testing.T) {
	suite.Run(t, new(HandlersTestSuite))
}
