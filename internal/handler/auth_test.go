package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/vpn-access-portal/internal/config"
	"github.com/iliyamo/vpn-access-portal/internal/model"
	"github.com/iliyamo/vpn-access-portal/internal/utils"
)

func testConfig() config.Config {
	return config.Config{
		JWTSecret:      "test-secret",
		AccessTTLMin:   15,
		RefreshTTLDays: 14,
		BcryptCost:     bcrypt.MinCost,
		InviteTTLHours: 72,
	}
}

// doJSON runs a handler against a synthetic request and returns the
// recorder.  header and path params can be tweaked via setup.
func doJSON(t *testing.T, h echo.HandlerFunc, method, target, body string, setup func(c echo.Context)) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if setup != nil {
		setup(c)
	}
	require.NoError(t, h(c))
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, into any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), into))
}

func newAuthEnv(t *testing.T) (*memStore, *AuthHandler) {
	t.Helper()
	s := newMemStore()
	return s, NewAuthHandler(testConfig(), s, regStoreView{s}, s)
}

func TestRegisterRejectsBadInput(t *testing.T) {
	s, h := newAuthEnv(t)
	s.addInvite("tok", nil, time.Now().UTC().Add(time.Hour))

	cases := []struct {
		name string
		body string
	}{
		{"bad email", `{"email":"nope","username":"alice","password":"longenough","invite_token":"tok"}`},
		{"short username", `{"email":"a@b.cd","username":"ab","password":"longenough","invite_token":"tok"}`},
		{"short password", `{"email":"a@b.cd","username":"alice","password":"short","invite_token":"tok"}`},
		{"missing invite", `{"email":"a@b.cd","username":"alice","password":"longenough"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, h.Register, http.MethodPost, "/v1/auth/register", tc.body, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}

	// validation failures must not create users or burn the invite
	assert.Empty(t, s.users)
	inv, err := s.GetByToken(nil, "tok")
	require.NoError(t, err)
	assert.False(t, inv.Used)
}

func TestRegisterCreatesPendingAccount(t *testing.T) {
	s, h := newAuthEnv(t)
	s.addInvite("tok", nil, time.Now().UTC().Add(time.Hour))

	rec := doJSON(t, h.Register, http.MethodPost, "/v1/auth/register",
		`{"email":"Alice@Example.com","username":"alice","password":"longenough","invite_token":"tok"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	var reg registrationPart
	decodeBody(t, rec, &reg)
	assert.Equal(t, "alice@example.com", reg.Email) // normalized
	assert.Equal(t, model.ResolutionPending, reg.Resolution)

	u, err := s.GetByEmail(nil, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, u.Status)
	assert.Equal(t, model.RoleUser, u.Role)

	inv, err := s.GetByToken(nil, "tok")
	require.NoError(t, err)
	assert.True(t, inv.Used)
}

func TestRegisterInviteErrors(t *testing.T) {
	s, h := newAuthEnv(t)
	bound := "bob@example.com"
	s.addInvite("expired", nil, time.Now().UTC().Add(-time.Hour))
	s.addInvite("bound", &bound, time.Now().UTC().Add(time.Hour))
	used := s.addInvite("used", nil, time.Now().UTC().Add(time.Hour))
	used.Used = true
	s.invites["used"] = used

	body := func(tok string) string {
		return `{"email":"alice@example.com","username":"alice","password":"longenough","invite_token":"` + tok + `"}`
	}

	rec := doJSON(t, h.Register, http.MethodPost, "/v1/auth/register", body("missing"), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, h.Register, http.MethodPost, "/v1/auth/register", body("expired"), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h.Register, http.MethodPost, "/v1/auth/register", body("used"), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, h.Register, http.MethodPost, "/v1/auth/register", body("bound"), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Empty(t, s.users)
}

func TestConcurrentRegistrationsOneInvite(t *testing.T) {
	s, h := newAuthEnv(t)
	s.addInvite("tok", nil, time.Now().UTC().Add(time.Hour))

	const n = 8
	codes := make([]int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e := echo.New()
			body := `{"email":"user` + string(rune('a'+i)) + `@example.com","username":"user` +
				string(rune('a'+i)) + `","password":"longenough","invite_token":"tok"}`
			req := httptest.NewRequest(http.MethodPost, "/v1/auth/register", strings.NewReader(body))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			rec := httptest.NewRecorder()
			if err := h.Register(e.NewContext(req, rec)); err == nil {
				codes[i] = rec.Code
			}
		}(i)
	}
	wg.Wait()

	created := 0
	for _, code := range codes {
		if code == http.StatusCreated {
			created++
		}
	}
	assert.Equal(t, 1, created, "exactly one submission may redeem the invite")
	assert.Len(t, s.users, 1, "losers must not leave partial users behind")
}

func TestLoginUnknownAndWrongPasswordLookAlike(t *testing.T) {
	s, h := newAuthEnv(t)
	hash, err := utils.HashPassword("correct-password", bcrypt.MinCost)
	require.NoError(t, err)
	s.addUser("alice@example.com", "alice", hash, model.RoleUser, model.StatusActive)

	recUnknown := doJSON(t, h.Login, http.MethodPost, "/v1/auth/login",
		`{"email":"ghost@example.com","password":"whatever0"}`, nil)
	recWrong := doJSON(t, h.Login, http.MethodPost, "/v1/auth/login",
		`{"email":"alice@example.com","password":"wrong-password"}`, nil)

	assert.Equal(t, http.StatusUnauthorized, recUnknown.Code)
	assert.Equal(t, http.StatusUnauthorized, recWrong.Code)
	assert.JSONEq(t, recUnknown.Body.String(), recWrong.Body.String())
}

func TestLoginPendingAccount(t *testing.T) {
	s, h := newAuthEnv(t)
	hash, err := utils.HashPassword("correct-password", bcrypt.MinCost)
	require.NoError(t, err)
	s.addUser("alice@example.com", "alice", hash, model.RoleUser, model.StatusPending)

	rec := doJSON(t, h.Login, http.MethodPost, "/v1/auth/login",
		`{"email":"alice@example.com","password":"correct-password"}`, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "account not active")
}

func TestLoginIssuesWorkingPair(t *testing.T) {
	s, h := newAuthEnv(t)
	hash, err := utils.HashPassword("correct-password", bcrypt.MinCost)
	require.NoError(t, err)
	u := s.addUser("alice@example.com", "alice", hash, model.RoleUser, model.StatusActive)

	rec := doJSON(t, h.Login, http.MethodPost, "/v1/auth/login",
		`{"email":"alice@example.com","password":"correct-password"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp authResp
	decodeBody(t, rec, &resp)
	assert.Equal(t, u.ID, resp.User.ID)

	claims, err := utils.ParseAccessToken("test-secret", resp.Access.Token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, claims.UserID)
	assert.Equal(t, model.RoleUser, claims.Role)

	// the refresh token round-trips through the session store
	uid, err := s.ValidateRefresh(nil, utils.HashRefreshRaw(resp.Refresh.Token))
	require.NoError(t, err)
	assert.Equal(t, u.ID, uid)
}

func TestRefreshRotatesToken(t *testing.T) {
	s, h := newAuthEnv(t)
	hash, err := utils.HashPassword("correct-password", bcrypt.MinCost)
	require.NoError(t, err)
	s.addUser("alice@example.com", "alice", hash, model.RoleUser, model.StatusActive)

	rec := doJSON(t, h.Login, http.MethodPost, "/v1/auth/login",
		`{"email":"alice@example.com","password":"correct-password"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var first authResp
	decodeBody(t, rec, &first)

	rec = doJSON(t, h.Refresh, http.MethodPost, "/v1/auth/refresh",
		`{"refresh_token":"`+first.Refresh.Token+`"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var second authResp
	decodeBody(t, rec, &second)
	assert.NotEqual(t, first.Refresh.Token, second.Refresh.Token)

	// the consumed token is dead
	rec = doJSON(t, h.Refresh, http.MethodPost, "/v1/auth/refresh",
		`{"refresh_token":"`+first.Refresh.Token+`"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestConcurrentRefreshesSingleWinner(t *testing.T) {
	s, h := newAuthEnv(t)
	hash, err := utils.HashPassword("correct-password", bcrypt.MinCost)
	require.NoError(t, err)
	s.addUser("alice@example.com", "alice", hash, model.RoleUser, model.StatusActive)

	rec := doJSON(t, h.Login, http.MethodPost, "/v1/auth/login",
		`{"email":"alice@example.com","password":"correct-password"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp authResp
	decodeBody(t, rec, &resp)

	const n = 8
	codes := make([]int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e := echo.New()
			body := `{"refresh_token":"` + resp.Refresh.Token + `"}`
			req := httptest.NewRequest(http.MethodPost, "/v1/auth/refresh", strings.NewReader(body))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			rec := httptest.NewRecorder()
			if err := h.Refresh(e.NewContext(req, rec)); err == nil {
				codes[i] = rec.Code
			}
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, code := range codes {
		if code == http.StatusOK {
			ok++
		}
	}
	assert.Equal(t, 1, ok, "exactly one refresh may consume the token")
}

func TestRefreshSuspendedAccount(t *testing.T) {
	s, h := newAuthEnv(t)
	hash, err := utils.HashPassword("correct-password", bcrypt.MinCost)
	require.NoError(t, err)
	u := s.addUser("alice@example.com", "alice", hash, model.RoleUser, model.StatusActive)

	rec := doJSON(t, h.Login, http.MethodPost, "/v1/auth/login",
		`{"email":"alice@example.com","password":"correct-password"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp authResp
	decodeBody(t, rec, &resp)

	_, err = s.UpdateStatus(nil, u.ID, model.StatusSuspended)
	require.NoError(t, err)

	rec = doJSON(t, h.Refresh, http.MethodPost, "/v1/auth/refresh",
		`{"refresh_token":"`+resp.Refresh.Token+`"}`, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestLogoutByRefreshToken(t *testing.T) {
	s, h := newAuthEnv(t)
	hash, err := utils.HashPassword("correct-password", bcrypt.MinCost)
	require.NoError(t, err)
	s.addUser("alice@example.com", "alice", hash, model.RoleUser, model.StatusActive)

	rec := doJSON(t, h.Login, http.MethodPost, "/v1/auth/login",
		`{"email":"alice@example.com","password":"correct-password"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp authResp
	decodeBody(t, rec, &resp)

	rec = doJSON(t, h.Logout, http.MethodPost, "/v1/auth/logout",
		`{"refresh_token":"`+resp.Refresh.Token+`"}`, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	_, err = s.ValidateRefresh(nil, utils.HashRefreshRaw(resp.Refresh.Token))
	assert.Error(t, err)
}

func TestLogoutByBearerRevokesAllSessions(t *testing.T) {
	s, h := newAuthEnv(t)
	hash, err := utils.HashPassword("correct-password", bcrypt.MinCost)
	require.NoError(t, err)
	u := s.addUser("alice@example.com", "alice", hash, model.RoleUser, model.StatusActive)

	var sessions []authResp
	for i := 0; i < 2; i++ {
		rec := doJSON(t, h.Login, http.MethodPost, "/v1/auth/login",
			`{"email":"alice@example.com","password":"correct-password"}`, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var resp authResp
		decodeBody(t, rec, &resp)
		sessions = append(sessions, resp)
	}

	access, err := utils.NewAccessToken("test-secret", u.ID, u.Role, 15)
	require.NoError(t, err)
	rec := doJSON(t, h.Logout, http.MethodPost, "/v1/auth/logout", "", func(c echo.Context) {
		c.Request().Header.Set("Authorization", "Bearer "+access.Token)
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	for _, sess := range sessions {
		_, err := s.ValidateRefresh(nil, utils.HashRefreshRaw(sess.Refresh.Token))
		assert.Error(t, err)
	}
}

func TestLogoutWithoutCredentials(t *testing.T) {
	_, h := newAuthEnv(t)
	rec := doJSON(t, h.Logout, http.MethodPost, "/v1/auth/logout", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
