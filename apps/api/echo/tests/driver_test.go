package tests

import (
	"encoding/json"
	"net/http"
	"net/url"
	"testing"

	echoapi "github.com/trezcool/safiri/apps/api/echo"
	"github.com/trezcool/safiri/core/driver"
	"github.com/trezcool/safiri/core/session"
	"github.com/trezcool/safiri/core/user"
)

func driverToken(t *testing.T, drv driver.Driver) string {
	t.Helper()
	return getToken(t, session.Session{ID: drv.ID, Name: drv.Name, Email: drv.Email, Role: user.RoleDriver})
}

func Test_driverApi_create(t *testing.T) {
	admToken := adminToken(t)
	newDrv := driver.NewDriver{
		DriverID: "dc-001",
		Name:     "Dozer",
		Email:    "dc-dozer@safiri.test",
		Phone:    "+254711000001",
		Password: strongPwd,
	}

	tests := []httpTest{
		{name: "auth required", body: marchallObj(t, newDrv), wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "admin required", body: marchallObj(t, newDrv), token: studentToken(t),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "required fields", body: marchallObj(t, driver.NewDriver{}), token: admToken,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{
				"driver_id": "this field is required",
				"name":      "this field is required",
				"email":     "this field is required",
				"password":  "this field is required",
			}),
		},
		{
			name: "invalid driver ID",
			body: marchallObj(t, driver.NewDriver{
				DriverID: "dc 001!", Name: "Dozer", Email: "dc-dozer@safiri.test", Password: strongPwd,
			}),
			token:    admToken,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{
				"driver_id": "only alphanumeric characters, dashes and underscores are allowed",
			}),
		},
		{name: "create", body: marchallObj(t, newDrv), token: admToken, wantCode: http.StatusCreated},
		{
			name: "duplicate driver ID",
			body: marchallObj(t, driver.NewDriver{
				DriverID: "DC-001", Name: "Clone", Email: "dc-clone@safiri.test", Password: strongPwd,
			}),
			token:    admToken,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"driver_id": "a driver with this driver ID already exists"}),
		},
		{
			name: "duplicate email",
			body: marchallObj(t, driver.NewDriver{
				DriverID: "dc-002", Name: "Clone", Email: "dc-dozer@safiri.test", Password: strongPwd,
			}),
			token:    admToken,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"email": "a driver with this email already exists"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodPost, "/v1/drivers", tt.token, tt.body)
			app.ServeHTTP(rec, req)

			if tt.wantCode == http.StatusCreated {
				if rec.Code != tt.wantCode {
					t.Fatalf("code = %v; want %v; body: %s", rec.Code, tt.wantCode, rec.Body.String())
				}
				var drv driver.Driver
				if err := json.Unmarshal(rec.Body.Bytes(), &drv); err != nil {
					t.Fatalf("json.Unmarshal(): %v", err)
				}
				if drv.IsProvisioned() {
					t.Error("a fresh account should not be provisioned yet")
				}
				if !drv.Active() {
					t.Error("a fresh account should be active")
				}
				if drv.Status != driver.StatusOffDuty {
					t.Errorf("Status = %q, want %q", drv.Status, driver.StatusOffDuty)
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_driverApi_query(t *testing.T) {
	drv := createDriver(t, "dq-007", "dq-bond@safiri.test", strongPwd)
	admToken := adminToken(t)

	path := func(search string) string {
		v := make(url.Values)
		v.Add("search", search)
		return "/v1/drivers?" + v.Encode()
	}

	tests := []httpTest{
		{name: "auth required", path: "/v1/drivers", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "admin required", path: "/v1/drivers", token: driverToken(t, drv),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{name: "search (unknown)", path: path("lolz"), token: admToken, wantCode: http.StatusOK, wantData: marchallList(t)},
		{name: "search=dq-007", path: path("dq-007"), token: admToken, wantCode: http.StatusOK, wantData: marchallList(t, drv)},
		{name: "search=bond", path: path("bond"), token: admToken, wantCode: http.StatusOK, wantData: marchallList(t, drv)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodGet, tt.path, tt.token)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_driverApi_queryStatuses(t *testing.T) {
	tests := []httpTest{
		{name: "auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "get statuses", token: adminToken(t), wantCode: http.StatusOK, wantData: marchallObj(t, driver.AllStatuses)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodGet, "/v1/drivers/statuses", tt.token)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_driverApi_retrieve(t *testing.T) {
	drv := createDriver(t, "dr-001", "dr-one@safiri.test", strongPwd)
	other := createDriver(t, "dr-002", "dr-two@safiri.test", strongPwd)
	admToken := adminToken(t)

	tests := []httpTest{
		{
			name: "own record", path: "/v1/drivers/" + drv.ID, token: driverToken(t, drv),
			wantCode: http.StatusOK, wantData: marchallObj(t, drv),
		},
		{
			name: "someone else's record", path: "/v1/drivers/" + other.ID, token: driverToken(t, drv),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "students are not welcome", path: "/v1/drivers/" + drv.ID, token: studentToken(t),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "admin reads any record", path: "/v1/drivers/" + other.ID, token: admToken,
			wantCode: http.StatusOK, wantData: marchallObj(t, other),
		},
		{
			name: "unknown record", path: "/v1/drivers/ghost", token: admToken,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "driver not found"}),
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

func Test_driverApi_setStatus(t *testing.T) {
	drv := createDriver(t, "ds-001", "ds-one@safiri.test", strongPwd)
	drvToken := driverToken(t, drv)

	tests := []httpTest{
		{
			name: "status required", body: marchallObj(t, echoapi.StatusRequest{}), token: drvToken,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"status": "this field is required"}),
		},
		{
			name: "invalid status", body: marchallObj(t, echoapi.StatusRequest{Status: "napping"}), token: drvToken,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"status": "invalid status"}),
		},
		{name: "go on route", body: marchallObj(t, echoapi.StatusRequest{Status: driver.StatusOnRoute}), token: drvToken, wantCode: http.StatusOK},
		{name: "admin sets status", body: marchallObj(t, echoapi.StatusRequest{Status: driver.StatusAvailable}), token: adminToken(t), wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodPut, "/v1/drivers/"+drv.ID+"/status", tt.token, tt.body)
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

	got, err := drvSvc.GetByID(ctx, drv.ID)
	if err != nil {
		t.Fatalf("GetByID(): %v", err)
	}
	if got.Status != driver.StatusAvailable {
		t.Errorf("Status = %q, want %q", got.Status, driver.StatusAvailable)
	}
}

func Test_driverApi_assign(t *testing.T) {
	drv := createDriver(t, "da-001", "da-one@safiri.test", strongPwd)
	body := marchallObj(t, map[string]string{"shuttle_id": "shu-9", "route_id": "rt-9"})

	// drivers do not pick their own assignments
	req, rec := newAuthRequest(http.MethodPut, "/v1/drivers/"+drv.ID+"/assign", driverToken(t, drv), body)
	app.ServeHTTP(rec, req)
	tt := httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"})}
	checkCodeAndData(t, tt, rec)

	req, rec = newAuthRequest(http.MethodPut, "/v1/drivers/"+drv.ID+"/assign", adminToken(t), body)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("assign failed: %v %s", rec.Code, rec.Body.String())
	}
	var got driver.Driver
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("json.Unmarshal(): %v", err)
	}
	if got.ShuttleID != "shu-9" || got.RouteID != "rt-9" {
		t.Errorf("assignment = (%q, %q), want (shu-9, rt-9)", got.ShuttleID, got.RouteID)
	}
}

func Test_driverApi_update(t *testing.T) {
	drv := createDriver(t, "du-001", "du-one@safiri.test", strongPwd)
	admToken := adminToken(t)

	// profile edits are an admin concern
	req, rec := newAuthRequest(http.MethodPut, "/v1/drivers/"+drv.ID, driverToken(t, drv), marchallObj(t, driver.UpdateDriver{Name: "Smith"}))
	app.ServeHTTP(rec, req)
	tt := httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"})}
	checkCodeAndData(t, tt, rec)

	req, rec = newAuthRequest(http.MethodPut, "/v1/drivers/"+drv.ID, admToken, marchallObj(t, driver.UpdateDriver{Phone: "+254722000002"}))
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("update failed: %v %s", rec.Code, rec.Body.String())
	}
	var got driver.Driver
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("json.Unmarshal(): %v", err)
	}
	if got.Phone != "+254722000002" {
		t.Errorf("Phone = %q", got.Phone)
	}
	if got.Name != drv.Name {
		t.Errorf("Name = %q, want %q (merge semantics)", got.Name, drv.Name)
	}
}

func Test_driverApi_destroy(t *testing.T) {
	drv := createDriver(t, "dd-001", "dd-one@safiri.test", strongPwd)
	other := createDriver(t, "dd-002", "dd-two@safiri.test", strongPwd)
	admToken := adminToken(t)

	req, rec := newAuthRequest(http.MethodDelete, "/v1/drivers/"+drv.ID, driverToken(t, drv))
	app.ServeHTTP(rec, req)
	tt := httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"})}
	checkCodeAndData(t, tt, rec)

	req, rec = newAuthRequest(http.MethodDelete, "/v1/drivers/"+drv.ID, admToken)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete failed: %v %s", rec.Code, rec.Body.String())
	}
	if _, err := drvSvc.GetByID(ctx, drv.ID); err == nil {
		t.Error("driver should be gone")
	}

	req, rec = newAuthRequest(http.MethodDelete, "/v1/drivers?id="+other.ID, admToken)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("bulk delete failed: %v %s", rec.Code, rec.Body.String())
	}
	if _, err := drvSvc.GetByID(ctx, other.ID); err == nil {
		t.Error("driver should be gone")
	}
}
