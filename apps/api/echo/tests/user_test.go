package tests

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	echoapi "github.com/trezcool/ujumbe/apps/api/echo"
	"github.com/trezcool/ujumbe/core/user"
	testutil "github.com/trezcool/ujumbe/tests"
)

const testPassword = "V3ry!s3cur3"

func Test_userApi_login(t *testing.T) {
	db.Reset()

	_ = testutil.CreateUser(t, usrRepo, "Imani", "imani", "imani@test.cd", testPassword, user.RoleStudent, true)
	_ = testutil.CreateUser(t, usrRepo, "Ghost", "ghost", "ghost@test.cd", testPassword, user.RoleStudent, false)

	tests := []httpTest{
		{
			name: "empty payload", body: []byte(`{}`), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"username": "this field is required", "password": "this field is required"}),
		},
		{
			name: "unknown user", body: []byte(`{"username": "nobody", "password": "lol"}`), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "wrong password", body: []byte(`{"username": "imani", "password": "nope"}`), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "deactivated account", body: []byte(`{"username": "ghost", "password": "` + testPassword + `"}`), wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
		{name: "ok with username", body: []byte(`{"username": "imani", "password": "` + testPassword + `"}`), wantCode: http.StatusOK},
		{name: "ok with email", body: []byte(`{"username": "imani@test.cd", "password": "` + testPassword + `"}`), wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodPost, "/v1/users/login", tt.body)
			app.ServeHTTP(rec, req)

			if tt.wantCode == http.StatusOK {
				if rec.Code != tt.wantCode {
					t.Fatalf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
				}
				var resp echoapi.LoginResponse
				if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
					t.Fatalf("unmarshalling LoginResponse: %v", err)
				}
				if resp.Token == "" {
					t.Error("login returned an empty token")
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_tokenRefresh(t *testing.T) {
	db.Reset()

	usr := testutil.CreateUser(t, usrRepo, "Imani", "imani", "imani@test.cd", testPassword, user.RoleStudent, true)

	t.Run("auth required", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/v1/users/token-refresh")
		app.ServeHTTP(rec, req)
		tt := httpTest{wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)}
		checkCodeAndData(t, tt, rec)
	})

	t.Run("ok", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/users/token-refresh", getToken(t, usr))
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
		}
		var resp echoapi.LoginResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshalling LoginResponse: %v", err)
		}
		if resp.Token == "" {
			t.Error("refresh returned an empty token")
		}
	})
}

func Test_userApi_create(t *testing.T) {
	db.Reset()

	student := testutil.CreateUser(t, usrRepo, "Imani", "imani", "imani@test.cd", "", user.RoleStudent, true)
	admin := testutil.CreateUser(t, usrRepo, "Amani", "amani", "amani@test.cd", "", user.RoleAdmin, true)
	adminToken := getToken(t, admin)

	newUsr := []byte(`{
		"name": "Zuri K", "username": "zuri", "email": "zuri@test.cd", "role": "mentor",
		"password": "V3ry!s3cur3", "password_confirm": "V3ry!s3cur3"
	}`)

	tests := []httpTest{
		{name: "auth required", body: newUsr, wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "admin required", body: newUsr, token: getToken(t, student), wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{name: "ok", body: newUsr, token: adminToken, wantCode: http.StatusCreated},
		{
			name: "duplicate username", body: newUsr, token: adminToken, wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"username": "a user with this username or email already exists"}),
		},
		{
			name: "invalid role", token: adminToken, wantCode: http.StatusBadRequest,
			body: []byte(`{
				"name": "B", "username": "banana", "email": "b@test.cd", "role": "boss",
				"password": "V3ry!s3cur3", "password_confirm": "V3ry!s3cur3"
			}`),
			wantData: marchallObj(t, map[string]string{"role": "invalid role"}),
		},
		{
			name: "weak password", token: adminToken, wantCode: http.StatusBadRequest,
			body: []byte(`{
				"name": "C", "username": "cherry", "email": "c@test.cd", "role": "student",
				"password": "password", "password_confirm": "password"
			}`),
			wantData: marchallObj(t, map[string]string{
				"password": "password must contain at least 1 uppercase character, 1 lowercase character, 1 digit and 1 special character",
			}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodPost, "/v1/users/register", tt.token, tt.body)
			app.ServeHTTP(rec, req)

			if tt.wantCode == http.StatusCreated {
				if rec.Code != tt.wantCode {
					t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
				}
				var created user.User
				if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
					t.Fatalf("unmarshalling User: %v", err)
				}
				if created.ID == "" || created.Username != "zuri" || created.Role != user.RoleMentor {
					t.Errorf("unexpected created user: %+v", created)
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_query(t *testing.T) {
	db.Reset()

	now := time.Now()
	student := testutil.CreateUser(t, usrRepo, "Imani", "imani", "imani@test.cd", "", user.RoleStudent, true, now)
	mentor := testutil.CreateUser(t, usrRepo, "Zuri", "zuri", "zuri@test.cd", "", user.RoleMentor, true, now.Add(time.Second))
	admin := testutil.CreateUser(t, usrRepo, "Amani", "amani", "amani@test.cd", "", user.RoleAdmin, true, now.Add(2*time.Second))
	adminToken := getToken(t, admin)

	tests := []httpTest{
		{name: "auth required", path: "/v1/users", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "admin required", path: "/v1/users", token: getToken(t, student), wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{name: "get all", path: "/v1/users", token: adminToken, wantCode: http.StatusOK, wantData: marchallList(t, student, mentor, admin)},
		{name: "filter role", path: "/v1/users?role=mentor", token: adminToken, wantCode: http.StatusOK, wantData: marchallList(t, mentor)},
		{name: "search", path: "/v1/users?search=imani", token: adminToken, wantCode: http.StatusOK, wantData: marchallList(t, student)},
		{name: "search unknown", path: "/v1/users?search=lol", token: adminToken, wantCode: http.StatusOK, wantData: marchallList(t)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodGet, tt.path, tt.token)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_retrieve(t *testing.T) {
	db.Reset()

	student := testutil.CreateUser(t, usrRepo, "Imani", "imani", "imani@test.cd", "", user.RoleStudent, true)
	mentor := testutil.CreateUser(t, usrRepo, "Zuri", "zuri", "zuri@test.cd", "", user.RoleMentor, true)
	admin := testutil.CreateUser(t, usrRepo, "Amani", "amani", "amani@test.cd", "", user.RoleAdmin, true)

	tests := []httpTest{
		{name: "auth required", path: "/v1/users/" + student.ID, wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "self", path: "/v1/users/" + student.ID, token: getToken(t, student),
			wantCode: http.StatusOK, wantData: marchallObj(t, student),
		},
		{
			name: "admin", path: "/v1/users/" + student.ID, token: getToken(t, admin),
			wantCode: http.StatusOK, wantData: marchallObj(t, student),
		},
		{
			name: "someone else", path: "/v1/users/" + mentor.ID, token: getToken(t, student),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "not found"}),
		},
		{
			name: "unknown id", path: "/v1/users/lol", token: getToken(t, admin),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "not found"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodGet, tt.path, tt.token)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_assignMentor(t *testing.T) {
	db.Reset()

	student := testutil.CreateUser(t, usrRepo, "Imani", "imani", "imani@test.cd", "", user.RoleStudent, true)
	mentor := testutil.CreateUser(t, usrRepo, "Zuri", "zuri", "zuri@test.cd", "", user.RoleMentor, true)
	mentor2 := testutil.CreateUser(t, usrRepo, "Neema", "neema", "neema@test.cd", "", user.RoleMentor, true)
	admin := testutil.CreateUser(t, usrRepo, "Amani", "amani", "amani@test.cd", "", user.RoleAdmin, true)
	adminToken := getToken(t, admin)

	path := "/v1/users/" + student.ID + "/mentor"
	payload := func(mentorID string) []byte {
		return []byte(`{"mentor_id": "` + mentorID + `"}`)
	}

	tests := []httpTest{
		{name: "auth required", path: path, body: payload(mentor.ID), wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "admin required", path: path, body: payload(mentor.ID), token: getToken(t, student),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "missing mentor_id", path: path, body: []byte(`{}`), token: adminToken,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"mentor_id": "this field is required"}),
		},
		{
			name: "mentor is not a mentor", path: path, body: payload(admin.ID), token: adminToken,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"mentor_id": "user is not a mentor"}),
		},
		{name: "ok", path: path, body: payload(mentor.ID), token: adminToken, wantCode: http.StatusOK, extra: mentor.ID},
		{name: "re-assign", path: path, body: payload(mentor2.ID), token: adminToken, wantCode: http.StatusOK, extra: mentor2.ID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodPut, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)

			if tt.wantCode == http.StatusOK {
				if rec.Code != tt.wantCode {
					t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
				}
				active, err := usrSvc.ActiveMentorFor(context.Background(), student.ID)
				if err != nil {
					t.Fatalf("ActiveMentorFor() failed: %v", err)
				}
				if wantMentorID := tt.extra.(string); active.MentorID != wantMentorID {
					t.Errorf("active mentor = %q; want %q", active.MentorID, wantMentorID)
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}
