package tests

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/trezcool/safiri/core/session"
	"github.com/trezcool/safiri/core/user"
)

func createProfile(t *testing.T, id, name, email, role string) user.User {
	t.Helper()
	usr, err := usrSvc.Create(ctx, user.NewProfile{
		ID:    id,
		Name:  name,
		Email: email,
		Role:  role,
	})
	if err != nil {
		t.Fatalf("usrSvc.Create(): %v", err)
	}
	return usr
}

func userToken(t *testing.T, usr user.User) string {
	t.Helper()
	return getToken(t, session.Session{ID: usr.ID, Name: usr.Name, Email: usr.Email, Role: usr.Role})
}

func Test_userApi_query(t *testing.T) {
	student := createProfile(t, "uq-student", "Hero", "hero@safiri.test", user.RoleStudent)
	other := createProfile(t, "uq-other", "King", "king@safiri.test", user.RoleStudent)
	adm := session.Session{ID: "uq-admin", Name: "Admin", Email: "admin@safiri.test", Role: user.RoleAdmin}
	admToken := getToken(t, adm)

	path := func(search string) string {
		v := make(url.Values)
		v.Add("search", search)
		return "/v1/users?" + v.Encode()
	}

	tests := []httpTest{
		{name: "auth required", path: "/v1/users", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "admin required", path: "/v1/users", token: userToken(t, student),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{name: "search (unknown)", path: path("lolz"), token: admToken, wantCode: http.StatusOK, wantData: marchallList(t)},
		{name: "search=hero", path: path("hero"), token: admToken, wantCode: http.StatusOK, wantData: marchallList(t, student)},
		{name: "search=king", path: path("king"), token: admToken, wantCode: http.StatusOK, wantData: marchallList(t, other)},
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
	student := createProfile(t, "ur-student", "Neo", "ur-neo@safiri.test", user.RoleStudent)
	other := createProfile(t, "ur-other", "Tank", "ur-tank@safiri.test", user.RoleStudent)
	admToken := getToken(t, session.Session{ID: "ur-admin", Role: user.RoleAdmin})

	tests := []httpTest{
		{
			name: "own profile", path: "/v1/users/" + student.ID, token: userToken(t, student),
			wantCode: http.StatusOK, wantData: marchallObj(t, student),
		},
		{
			name: "someone else's profile is hidden", path: "/v1/users/" + other.ID, token: userToken(t, student),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "not found"}),
		},
		{
			name: "admin reads any profile", path: "/v1/users/" + other.ID, token: admToken,
			wantCode: http.StatusOK, wantData: marchallObj(t, other),
		},
		{
			name: "unknown profile", path: "/v1/users/ghost", token: admToken,
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

func Test_userApi_update(t *testing.T) {
	student := createProfile(t, "uu-student", "Trin", "uu-trin@safiri.test", user.RoleStudent)
	admToken := getToken(t, session.Session{ID: "uu-admin", Role: user.RoleAdmin})
	falsePtr := func() *bool { b := false; return &b }()

	tests := []httpTest{
		{
			name: "own profile", token: userToken(t, student),
			body:     marchallObj(t, user.UpdateProfile{Department: "Maths"}),
			wantCode: http.StatusOK,
		},
		{
			name: "is_active is admin-only", token: userToken(t, student),
			body:     marchallObj(t, user.UpdateProfile{IsActive: falsePtr}),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "email is admin-only", token: userToken(t, student),
			body:     marchallObj(t, user.UpdateProfile{Email: "sneaky@safiri.test"}),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "admin deactivates", token: admToken,
			body:     marchallObj(t, user.UpdateProfile{IsActive: falsePtr}),
			wantCode: http.StatusOK,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodPut, "/v1/users/"+student.ID, tt.token, tt.body)
			app.ServeHTTP(rec, req)

			if tt.wantCode == http.StatusOK {
				if rec.Code != tt.wantCode {
					t.Fatalf("code = %v; want %v; body: %s", rec.Code, tt.wantCode, rec.Body.String())
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}

	// deactivated by the admin above
	usr, err := usrSvc.GetByID(ctx, student.ID)
	if err != nil {
		t.Fatalf("GetByID(): %v", err)
	}
	if usr.Active() {
		t.Error("user should be deactivated")
	}
	if usr.Department != "Maths" {
		t.Errorf("Department = %q, want Maths", usr.Department)
	}
}

func Test_userApi_destroy(t *testing.T) {
	victim := createProfile(t, "ud-victim", "Cypher", "ud-cypher@safiri.test", user.RoleStudent)
	adm := createProfile(t, "ud-admin", "Admin", "ud-admin@safiri.test", user.RoleAdmin)
	admToken := userToken(t, adm)

	// Say No to Suicide! admins cannot delete themselves
	req, rec := newAuthRequest(http.MethodDelete, "/v1/users/"+adm.ID, admToken)
	app.ServeHTTP(rec, req)
	tt := httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"})}
	checkCodeAndData(t, tt, rec)

	req, rec = newAuthRequest(http.MethodDelete, "/v1/users?id="+adm.ID+"&id="+victim.ID, admToken)
	app.ServeHTTP(rec, req)
	checkCodeAndData(t, tt, rec)

	// deleting someone else works
	req, rec = newAuthRequest(http.MethodDelete, "/v1/users/"+victim.ID, admToken)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete failed: %v %s", rec.Code, rec.Body.String())
	}
	if _, err := usrSvc.GetByID(ctx, victim.ID); err == nil {
		t.Error("user should be gone")
	}
}

func Test_userApi_queryRoles(t *testing.T) {
	admToken := getToken(t, session.Session{ID: "roles-admin", Role: user.RoleAdmin})

	tests := []httpTest{
		{name: "auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "get roles", token: admToken, wantCode: http.StatusOK, wantData: marchallObj(t, user.Roles)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodGet, "/v1/users/roles", tt.token)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}
