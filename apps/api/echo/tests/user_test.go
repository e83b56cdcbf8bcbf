package tests

import (
	"context"
	"encoding/json"
	"net/http"
	"net/mail"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/volatiletech/null/v8"

	echoapi "github.com/elimuhub/elimu/apps/api/echo"
	"github.com/elimuhub/elimu/core/user"
	emailsvc "github.com/elimuhub/elimu/services/email"
	testutil "github.com/elimuhub/elimu/tests"
)

func Test_userApi_userLogin(t *testing.T) {
	app := setup(t)

	student := testutil.CreateUser(t, usrRepo, "Hero", "hero01", "hero@test.cd", "LolC@t123", []string{user.RoleStudent}, true)
	naughty := testutil.CreateUser(t, usrRepo, "N Dog", "ndog01", "ndog@test.cd", "LolC@t123", []string{user.RoleStudent}, false)
	blocked := testutil.CreateUser(t, usrRepo, "Spam Lord", "spam01", "spam@test.cd", "LolC@t123", []string{user.RoleInstructor}, true)
	if _, err := usrRepo.SetUserBlocked(context.Background(), blocked.ID, null.TimeFrom(time.Now().UTC())); err != nil {
		t.Fatalf("SetUserBlocked() failed: %v", err)
	}

	authFailed := marchallObj(t, httpErr{Error: "authentication failed"})
	login := func(uname, pwd string) []byte {
		return marchallObj(t, echoapi.LoginRequest{Username: uname, Password: pwd})
	}

	tests := []httpTest{
		{
			name: "required fields", wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, echoapi.LoginRequest{Username: "this field is required", Password: "this field is required"}),
		},
		{name: "unknown user", body: login("whodis", "LolC@t123"), wantCode: http.StatusBadRequest, wantData: authFailed},
		{name: "wrong password", body: login(student.Username, "nope"), wantCode: http.StatusBadRequest, wantData: authFailed},
		{
			name: "deactivated account", body: login(naughty.Username, "LolC@t123"),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
		{
			name: "blocked account", body: login(blocked.Username, "LolC@t123"),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account blocked"}),
		},
		{name: "login by username", body: login(student.Username, "LolC@t123"), wantCode: http.StatusOK},
		{name: "login by email", body: login(student.Email, "LolC@t123"), wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/users/login"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(tt.method, tt.path, tt.body)
			app.ServeHTTP(rec, req)

			// cannot guess the token.. just check that it's not empty
			if tt.wantCode == http.StatusOK {
				if rec.Code != tt.wantCode {
					t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
				}
				var respData echoapi.LoginResponse
				if err := json.Unmarshal(rec.Body.Bytes(), &respData); err != nil {
					t.Errorf("json.Unmarshal() failed! err %v", err)
				}
				if respData.Token == "" {
					t.Error("failed! empty token")
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_userQuery(t *testing.T) {
	app := setup(t)

	now := time.Now().UTC()
	t1 := now.Add(1 * time.Hour)
	t2 := now.Add(2 * time.Hour)

	student := testutil.CreateUser(t, usrRepo, "Hero", "hero01", "hero@test.cd", "", []string{user.RoleStudent}, true, now)
	instructor := testutil.CreateUser(t, usrRepo, "Jane Doe", "jane01", "jane@test.cd", "", []string{user.RoleInstructor}, true, t1)
	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin01", "admin@test.cd", "", []string{user.RoleAdmin}, true, t2)

	adminToken := getToken(t, admin)
	empty := marchallList(t, []interface{}{}...)

	tests := []httpTest{
		{name: "Auth required", path: "/v1/users", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Admin required", path: "/v1/users", token: getToken(t, student),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errPermissionDenied),
		},
		{
			name: "Get all", path: "/v1/users", token: adminToken,
			wantCode: http.StatusOK, wantData: marchallList(t, student, instructor, admin),
		},
		{
			name: "search (unknown)", path: "/v1/users?search=lol", token: adminToken,
			wantCode: http.StatusOK, wantData: empty,
		},
		{
			name: "search=jane", path: "/v1/users?search=jane", token: adminToken,
			wantCode: http.StatusOK, wantData: marchallList(t, instructor),
		},
		{
			name: "role=instructor:", path: "/v1/users?role=instructor:", token: adminToken,
			wantCode: http.StatusOK, wantData: marchallList(t, instructor),
		},
		{
			name: "created_from", path: "/v1/users?created_from=" + t1.Format(time.RFC3339), token: adminToken,
			wantCode: http.StatusOK, wantData: marchallList(t, instructor, admin),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_userRetrieve(t *testing.T) {
	app := setup(t)

	student := testutil.CreateUser(t, usrRepo, "Hero", "hero01", "hero@test.cd", "", []string{user.RoleStudent}, true)
	other := testutil.CreateUser(t, usrRepo, "Jane Doe", "jane01", "jane@test.cd", "", []string{user.RoleInstructor}, true)
	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin01", "admin@test.cd", "", []string{user.RoleAdmin}, true)

	notFound := marchallObj(t, httpErr{Error: "not found"})

	tests := []httpTest{
		{name: "Auth required", path: "/v1/users/" + student.ID, wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "own account", path: "/v1/users/" + student.ID, token: getToken(t, student),
			wantCode: http.StatusOK, wantData: marchallObj(t, student),
		},
		{
			name: "someone else's account", path: "/v1/users/" + other.ID, token: getToken(t, student),
			wantCode: http.StatusNotFound, wantData: notFound,
		},
		{
			name: "admin reads any account", path: "/v1/users/" + other.ID, token: getToken(t, admin),
			wantCode: http.StatusOK, wantData: marchallObj(t, other),
		},
		{
			name: "unknown account", path: "/v1/users/6e04e82f-70bb-4f9c-a1b9-d58f52bfc317", token: getToken(t, admin),
			wantCode: http.StatusNotFound, wantData: notFound,
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_userBlock(t *testing.T) {
	app := setup(t)

	spammer := testutil.CreateUser(t, usrRepo, "Spam Lord", "spam01", "spam@test.cd", "", []string{user.RoleInstructor}, true)
	student := testutil.CreateUser(t, usrRepo, "Hero", "hero01", "hero@test.cd", "", []string{user.RoleStudent}, true)
	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin01", "admin@test.cd", "", []string{user.RoleAdmin}, true)

	adminToken := getToken(t, admin)

	t.Run("admin required", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/users/"+spammer.ID+"/block", getToken(t, student))
		app.ServeHTTP(rec, req)
		// non-admins cannot see other users' detail endpoints at all
		if rec.Code != http.StatusNotFound {
			t.Errorf("failed! code = %v; wantCode %v", rec.Code, http.StatusNotFound)
		}
	})

	t.Run("no self-block", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/users/"+admin.ID+"/block", adminToken)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusForbidden {
			t.Errorf("failed! code = %v; wantCode %v", rec.Code, http.StatusForbidden)
		}
	})

	t.Run("block and unblock", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/users/"+spammer.ID+"/block", adminToken)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; wantCode %v; body %v", rec.Code, http.StatusOK, rec.Body.String())
		}
		var blocked user.User
		if err := json.Unmarshal(rec.Body.Bytes(), &blocked); err != nil {
			t.Fatalf("json.Unmarshal() failed! err %v", err)
		}
		if !blocked.IsBlocked() {
			t.Error("failed! BlockedAt not set")
		}

		req, rec = newAuthRequest(http.MethodPost, "/v1/users/"+spammer.ID+"/unblock", adminToken)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; wantCode %v; body %v", rec.Code, http.StatusOK, rec.Body.String())
		}
		var unblocked user.User
		if err := json.Unmarshal(rec.Body.Bytes(), &unblocked); err != nil {
			t.Fatalf("json.Unmarshal() failed! err %v", err)
		}
		if unblocked.IsBlocked() {
			t.Error("failed! BlockedAt still set")
		}
	})
}

func Test_userApi_userResetPassword(t *testing.T) {
	app := setup(t)

	student := testutil.CreateUser(t, usrRepo, "Hero", "hero01", "hero@test.cd", "LolC@t123", []string{user.RoleStudent}, true)
	successData := marchallObj(t, echoapi.SuccessResponse{Success: "If the email address supplied is associated with an active account on this system, " +
		"an email will arrive in your inbox shortly with instructions to reset your password."})

	pathRegex, err := regexp.Compile("/password-reset/.+/.+")
	if err != nil {
		t.Fatalf("regexp.Compile(): %v", err)
	}

	type extraTest struct {
		emailSent bool
		to        mail.Address
	}
	tests := []httpTest{
		{
			name: "required fields", wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, echoapi.PasswordResetRequest{Email: "this field is required"}),
		},
		{
			name: "invalid email", wantCode: http.StatusBadRequest, body: marchallObj(t, echoapi.PasswordResetRequest{Email: "lol"}),
			wantData: marchallObj(t, echoapi.PasswordResetRequest{Email: "email must be a valid email address"}),
		},
		{
			name: "unknown email", wantCode: http.StatusOK, body: marchallObj(t, echoapi.PasswordResetRequest{Email: "lol@test.com"}),
			wantData: successData, extra: extraTest{emailSent: false},
		},
		{
			name: "known email", wantCode: http.StatusOK, body: marchallObj(t, echoapi.PasswordResetRequest{Email: student.Email}),
			wantData: successData, extra: extraTest{emailSent: true, to: mail.Address{Name: student.Name, Address: student.Email}},
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/users/password-reset"

		t.Run(tt.name, func(t *testing.T) {
			emailsvc.ClearSentMessages()

			req, rec := newRequest(tt.method, tt.path, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)

			if extra, ok := tt.extra.(extraTest); ok {
				msgs := emailsvc.GetSentMessages()
				if extra.emailSent {
					if len(msgs) != 1 {
						t.Fatalf("failed! len(SentMessages) = %d; want 1", len(msgs))
					}
					msg := msgs[0]
					if msg.To[0] != extra.to {
						t.Errorf("failed! To = %v; want %v", msg.To[0], extra.to)
					}
					if !strings.Contains(msg.TextContent, extra.to.Name) {
						t.Errorf("failed! text content does not contain recipient's name %q", extra.to.Name)
					}
					if !pathRegex.MatchString(msg.TextContent) {
						t.Errorf("failed! text content does not match pathRegex %v", pathRegex)
					}
				} else if len(msgs) > 0 {
					t.Errorf("failed! len(SentMessages) = %d; want 0", len(msgs))
				}
			}
		})
	}
}

func Test_userApi_userRefreshToken(t *testing.T) {
	app := setup(t)

	student := testutil.CreateUser(t, usrRepo, "Hero", "hero01", "hero@test.cd", "", []string{user.RoleStudent}, true)
	naughty := testutil.CreateUser(t, usrRepo, "N Dog", "ndog01", "ndog@test.cd", "", []string{user.RoleStudent}, false)

	// a token whose original issue date is past the refresh window
	staleIat := time.Now().Add(-2 * conf.Server.JWTRefreshExpirationDelta).Unix()
	unrefreshableToken, err := echoapi.GenerateToken(conf, echoapi.GetUserClaims(conf, student, staleIat))
	if err != nil {
		t.Fatalf("GenerateToken() failed: %v", err)
	}

	tests := []httpTest{
		{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Inactive user not allowed", token: getToken(t, naughty),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
		{
			name: "Refresh period expired", token: unrefreshableToken,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "refresh has expired"}),
		},
		{name: "Token refreshed", token: getToken(t, student), wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/users/token-refresh"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)

			// cannot guess the new token.. just check that it's not empty
			if tt.wantCode == http.StatusOK {
				if rec.Code != tt.wantCode {
					t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
				}
				var respData echoapi.LoginResponse
				if err := json.Unmarshal(rec.Body.Bytes(), &respData); err != nil {
					t.Errorf("json.Unmarshal() failed! err %v", err)
				}
				if respData.Token == "" {
					t.Error("failed! empty token")
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}
