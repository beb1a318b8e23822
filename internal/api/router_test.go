package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/your-org/facerecog/internal/api/handlers"
	"github.com/your-org/facerecog/internal/api/ws"
	"github.com/your-org/facerecog/internal/auth"
	"github.com/your-org/facerecog/internal/config"
	"github.com/your-org/facerecog/internal/models"
	"github.com/your-org/facerecog/internal/recognition"
	"github.com/your-org/facerecog/internal/storage/storagetest"
	"github.com/your-org/facerecog/internal/vision/visiontest"
	"github.com/your-org/facerecog/pkg/dto"
)

type testServer struct {
	router  *gin.Engine
	store   *storagetest.Store
	objects *storagetest.Objects
	hasher  *auth.Hasher
}

type serverOption func(*RouterConfig)

func newTestServer(t *testing.T, opts ...serverOption) *testServer {
	t.Helper()
	store := storagetest.New()
	objects := storagetest.NewObjects()
	hasher := auth.NewHasher(bcrypt.MinCost)
	sessions, err := auth.NewSessionManager(auth.NewMemorySessionStore(), "test-secret", time.Hour, false)
	if err != nil {
		t.Fatalf("NewSessionManager() error = %v", err)
	}
	hub := ws.NewHub()
	go hub.Run()
	t.Cleanup(hub.Stop)

	cfg := RouterConfig{
		APIKey:        "k3y",
		RateLimit:     config.RateLimit{RPS: 1000, Burst: 1000},
		MaxImageBytes: 1 << 20,
		Recognition:   recognition.NewService(&visiontest.Fake{}, store, objects, nil, "/media"),
		Persons:       store,
		Accounts:      store,
		Objects:       objects,
		Sessions:      sessions,
		Hasher:        hasher,
		Hub:           hub,
		Checks: map[string]handlers.Check{
			"postgres": func(context.Context) error { return nil },
		},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	r := NewRouter(cfg)
	gin.SetMode(gin.TestMode)
	return &testServer{router: r, store: store, objects: objects, hasher: hasher}
}

func (s *testServer) do(req *http.Request, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) postForm(path string, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return s.do(req, cookies...)
}

func (s *testServer) get(path string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	return s.do(httptest.NewRequest(http.MethodGet, path, nil), cookies...)
}

func (s *testServer) createAccount(t *testing.T, username, password string, role models.Role) {
	t.Helper()
	hash, err := s.hasher.Hash(password)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.store.CreateAccount(context.Background(), &models.Account{Username: username, PasswordHash: hash, Role: role}); err != nil {
		t.Fatal(err)
	}
}

func (s *testServer) login(t *testing.T, username, password string) *http.Cookie {
	t.Helper()
	rec := s.postForm("/login", url.Values{"username": {username}, "password": {password}})
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("login status = %d, body %s", rec.Code, rec.Body.String())
	}
	return sessionCookie(t, rec)
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.CookieName && c.Value != "" {
			return c
		}
	}
	t.Fatal("no session cookie set")
	return nil
}

func dataURI(png []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	return v
}

func (s *testServer) enroll(t *testing.T, name, number string, png []byte) {
	t.Helper()
	rec := s.postForm("/register", url.Values{"name": {name}, "number": {number}, "faceimage": {dataURI(png)}})
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/success" {
		t.Fatalf("enroll status = %d location %q body %s", rec.Code, rec.Header().Get("Location"), rec.Body.String())
	}
}

func TestRegister_EnrollsAndRedirects(t *testing.T) {
	s := newTestServer(t)
	s.enroll(t, "Alice", "555-0100", visiontest.Faces(visiontest.Red))

	persons, _ := s.store.ListPersons(context.Background())
	if len(persons) != 1 || persons[0].Name != "Alice" || !persons[0].HasEmbedding() {
		t.Fatalf("persons = %+v", persons)
	}
	if !s.objects.Has(persons[0].PhotoKey) {
		t.Error("photo not stored")
	}
}

func TestRegister_ValidationErrors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		form   url.Values
		fields []string
	}{
		{"all missing", url.Values{}, []string{"name", "number", "faceimage"}},
		{"number too long", url.Values{"name": {"A"}, "number": {strings.Repeat("1", 16)}, "faceimage": {dataURI(visiontest.Faces())}}, []string{"number"}},
		{"not an image", url.Values{"name": {"A"}, "number": {"1"}, "faceimage": {"data:text/plain;base64,aGVsbG8="}}, []string{"faceimage"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.postForm("/register", tt.form)
			if rec.Code != http.StatusUnprocessableEntity {
				t.Fatalf("status = %d, want 422", rec.Code)
			}
			body := decode[struct {
				Errors []struct{ Field, Message string }
			}](t, rec)
			got := map[string]bool{}
			for _, e := range body.Errors {
				got[e.Field] = true
			}
			for _, f := range tt.fields {
				if !got[f] {
					t.Errorf("missing error for %q in %+v", f, body.Errors)
				}
			}
		})
	}

	persons, _ := s.store.ListPersons(context.Background())
	if len(persons) != 0 {
		t.Errorf("persons = %d, want none after failed validation", len(persons))
	}
}

func TestFaceDetection(t *testing.T) {
	s := newTestServer(t)
	s.enroll(t, "Alice", "555-0100", visiontest.Faces(visiontest.Red))
	persons, _ := s.store.ListPersons(context.Background())

	tests := []struct {
		name  string
		frame []byte
		want  dto.RecognitionResponse
	}{
		{"match", visiontest.Faces(visiontest.Red), dto.RecognitionResponse{
			Status: "success", Name: "Alice", Number: "555-0100", FaceImage: "/media/" + persons[0].PhotoKey,
		}},
		{"unknown", visiontest.Faces(visiontest.Blue), dto.RecognitionResponse{Status: "fail", Message: "Unknown face"}},
		{"no face", visiontest.Faces(), dto.RecognitionResponse{Status: "fail", Message: "No face detected"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.postForm("/face_detection", url.Values{"faceimage": {dataURI(tt.frame)}})
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
			}
			if got := decode[dto.RecognitionResponse](t, rec); got != tt.want {
				t.Errorf("response = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestFaceDetection_JSONBody(t *testing.T) {
	s := newTestServer(t)
	body, _ := json.Marshal(dto.RecognizeRequest{FaceImage: dataURI(visiontest.Faces())})
	req := httptest.NewRequest(http.MethodPost, "/face_detection", strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "application/json")

	rec := s.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := decode[dto.RecognitionResponse](t, rec); got.Message != dto.MessageNoFace {
		t.Errorf("response = %+v", got)
	}
}

func TestFaceDetection_MalformedPayload(t *testing.T) {
	s := newTestServer(t)
	for _, payload := range []string{"", "garbage", "data:image/png;base64,!!!", "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("plain text"))} {
		rec := s.postForm("/face_detection", url.Values{"faceimage": {payload}})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("payload %q: status = %d, want 400", payload, rec.Code)
		}
	}
}

func TestCaptureFace_Echoes(t *testing.T) {
	s := newTestServer(t)
	uri := dataURI(visiontest.Faces(visiontest.Green))
	rec := s.postForm("/capture_face", url.Values{"faceimage": {uri}})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	got := decode[dto.CaptureResponse](t, rec)
	if got.Status != "success" || got.FaceImage != uri {
		t.Errorf("response = %+v", got)
	}
}

func TestAccounts_RegisterLoginLogout(t *testing.T) {
	s := newTestServer(t)

	rec := s.postForm("/register_user", url.Values{
		"username":  {"till1"},
		"password1": {"s3cretpass"},
		"password2": {"s3cretpass"},
		"name":      {"Till One"},
	})
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/" {
		t.Fatalf("register status = %d location %q body %s", rec.Code, rec.Header().Get("Location"), rec.Body.String())
	}
	cookie := sessionCookie(t, rec)

	home := s.get("/", cookie)
	if home.Code != http.StatusOK {
		t.Fatalf("home status = %d", home.Code)
	}
	user := decode[struct{ User dto.AccountResponse }](t, home).User
	if user.Username != "till1" || user.Role != "cashier" {
		t.Errorf("home user = %+v, want cashier till1", user)
	}

	dup := s.postForm("/register_user", url.Values{
		"username": {"till1"}, "password1": {"anotherpass"}, "password2": {"anotherpass"},
	})
	if dup.Code != http.StatusUnprocessableEntity {
		t.Errorf("duplicate username status = %d, want 422", dup.Code)
	}

	mismatch := s.postForm("/register_user", url.Values{
		"username": {"till2"}, "password1": {"anotherpass"}, "password2": {"different1"},
	})
	if mismatch.Code != http.StatusUnprocessableEntity {
		t.Errorf("password mismatch status = %d, want 422", mismatch.Code)
	}

	logout := s.postForm("/logout", nil, cookie)
	if logout.Code != http.StatusSeeOther {
		t.Fatalf("logout status = %d", logout.Code)
	}
	if rec := s.get("/", cookie); rec.Code != http.StatusUnauthorized {
		t.Errorf("home after logout status = %d, want 401", rec.Code)
	}

	if rec := s.postForm("/login", url.Values{"username": {"till1"}, "password": {"wrong-pass"}}); rec.Code != http.StatusUnauthorized {
		t.Errorf("bad password status = %d, want 401", rec.Code)
	}
	if rec := s.postForm("/login", url.Values{"username": {"ghost"}, "password": {"whatever"}}); rec.Code != http.StatusUnauthorized {
		t.Errorf("unknown user status = %d, want 401", rec.Code)
	}
	s.login(t, "till1", "s3cretpass")
}

func TestRegisterUser_ManagerRole(t *testing.T) {
	s := newTestServer(t)
	signup := func(username string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
		return s.postForm("/register_user", url.Values{
			"username": {username}, "password1": {"s3cretpass"}, "password2": {"s3cretpass"}, "role": {"manager"},
		}, cookies...)
	}

	if rec := signup("first"); rec.Code != http.StatusSeeOther {
		t.Fatalf("first manager status = %d body %s", rec.Code, rec.Body.String())
	}

	rec := signup("second")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("anonymous manager signup status = %d, want 422", rec.Code)
	}
	errs := decode[struct{ Errors []struct{ Field, Message string } }](t, rec).Errors
	if len(errs) != 1 || errs[0].Field != "role" {
		t.Errorf("errors = %+v, want role", errs)
	}
	if _, err := s.store.GetAccountByUsername(context.Background(), "second"); err == nil {
		t.Error("rejected manager account was created")
	}

	s.createAccount(t, "till", "cashierpass", models.RoleCashier)
	if rec := signup("third", s.login(t, "till", "cashierpass")); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("cashier creating manager status = %d, want 422", rec.Code)
	}

	if rec := signup("fourth", s.login(t, "first", "s3cretpass")); rec.Code != http.StatusSeeOther {
		t.Errorf("manager creating manager status = %d body %s", rec.Code, rec.Body.String())
	}
}

func TestLogin_RedirectsToNext(t *testing.T) {
	s := newTestServer(t)
	s.createAccount(t, "boss", "managerpass", models.RoleManager)

	for next, want := range map[string]string{
		"/manager":           "/manager",
		"//evil.example.com": "/",
		"https://evil.com":   "/",
	} {
		rec := s.postForm("/login?next="+url.QueryEscape(next), url.Values{"username": {"boss"}, "password": {"managerpass"}})
		if got := rec.Header().Get("Location"); got != want {
			t.Errorf("next=%q: Location = %q, want %q", next, got, want)
		}
	}
}

func TestManagerPages(t *testing.T) {
	s := newTestServer(t)
	s.createAccount(t, "zed", "cashierpass", models.RoleCashier)
	s.createAccount(t, "boss", "managerpass", models.RoleManager)
	manager := s.login(t, "boss", "managerpass")
	cashier := s.login(t, "zed", "cashierpass")

	if rec := s.get("/manager", cashier); rec.Code != http.StatusForbidden {
		t.Errorf("cashier dashboard status = %d, want 403", rec.Code)
	}
	if rec := s.get("/manager"); rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous dashboard status = %d, want 401", rec.Code)
	}

	rec := s.get("/manager", manager)
	if rec.Code != http.StatusOK {
		t.Fatalf("dashboard status = %d", rec.Code)
	}
	users := decode[dto.DashboardResponse](t, rec).Users
	if len(users) != 2 || users[0].Username != "boss" || users[1].Username != "zed" {
		t.Fatalf("dashboard users = %+v, want managers first", users)
	}

	zedID := users[1].ID.String()
	if rec := s.get("/user/"+zedID, cashier); rec.Code != http.StatusForbidden {
		t.Errorf("cashier user detail status = %d, want 403", rec.Code)
	}
	if rec := s.get("/user/"+zedID, manager); rec.Code != http.StatusOK {
		t.Errorf("manager user detail status = %d, want 200", rec.Code)
	}

	upd := s.postForm("/user/"+zedID, url.Values{
		"username": {"zed"}, "name": {"Zed"}, "phone_number": {"555-0199"}, "role": {"manager"},
	}, manager)
	if upd.Code != http.StatusSeeOther || upd.Header().Get("Location") != "/manager" {
		t.Fatalf("update status = %d body %s", upd.Code, upd.Body.String())
	}
	acct, _ := s.store.GetAccountByUsername(context.Background(), "zed")
	if acct.Role != models.RoleManager || acct.PhoneNumber != "555-0199" {
		t.Errorf("updated account = %+v", acct)
	}

	if rec := s.get("/manager", cashier); rec.Code != http.StatusOK {
		t.Errorf("promoted account dashboard status = %d, want 200", rec.Code)
	}

	bad := s.postForm("/user/"+zedID, url.Values{"username": {"zed"}, "role": {"owner"}}, manager)
	if bad.Code != http.StatusUnprocessableEntity {
		t.Errorf("invalid role status = %d, want 422", bad.Code)
	}
}

func TestManagerPages_DemotionRevokesAccess(t *testing.T) {
	s := newTestServer(t)
	s.createAccount(t, "boss", "managerpass", models.RoleManager)
	s.createAccount(t, "old", "managerpass", models.RoleManager)
	boss := s.login(t, "boss", "managerpass")
	old := s.login(t, "old", "managerpass")

	if rec := s.get("/manager", old); rec.Code != http.StatusOK {
		t.Fatalf("manager dashboard status = %d", rec.Code)
	}

	oldAcct, _ := s.store.GetAccountByUsername(context.Background(), "old")
	upd := s.postForm("/user/"+oldAcct.ID.String(), url.Values{"username": {"old"}, "role": {"cashier"}}, boss)
	if upd.Code != http.StatusSeeOther {
		t.Fatalf("demote status = %d body %s", upd.Code, upd.Body.String())
	}

	if rec := s.get("/manager", old); rec.Code != http.StatusForbidden {
		t.Errorf("demoted account dashboard status = %d, want 403", rec.Code)
	}
	if rec := s.get("/", old); rec.Code != http.StatusOK {
		t.Errorf("demoted account home status = %d, want 200", rec.Code)
	}
	if rec := s.get("/members", old); rec.Code != http.StatusOK {
		t.Errorf("demoted account members status = %d, want 200", rec.Code)
	}
}

func TestUpdateAccount_ProfilePhoto(t *testing.T) {
	s := newTestServer(t)
	s.createAccount(t, "boss", "managerpass", models.RoleManager)
	manager := s.login(t, "boss", "managerpass")
	boss, _ := s.store.GetAccountByUsername(context.Background(), "boss")

	upload := func(content []byte) *httptest.ResponseRecorder {
		var body strings.Builder
		mw := multipart.NewWriter(&body)
		_ = mw.WriteField("username", "boss")
		_ = mw.WriteField("role", "manager")
		fw, _ := mw.CreateFormFile("photo_profile", "me.png")
		_, _ = fw.Write(content)
		_ = mw.Close()

		req := httptest.NewRequest(http.MethodPost, "/user/"+boss.ID.String(), strings.NewReader(body.String()))
		req.Header.Set("Content-Type", mw.FormDataContentType())
		return s.do(req, manager)
	}

	if rec := upload([]byte("not an image at all")); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("non-image upload status = %d, want 422", rec.Code)
	}

	if s.objects.Len() != 0 {
		t.Errorf("rejected upload stored %d objects", s.objects.Len())
	}

	rec := upload(visiontest.Faces(visiontest.Red))
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("upload status = %d body %s", rec.Code, rec.Body.String())
	}
	acct, _ := s.store.GetAccount(context.Background(), boss.ID)
	if prefix := "profile_photos/" + boss.ID.String() + "-"; !strings.HasPrefix(acct.PhotoKey, prefix) || !strings.HasSuffix(acct.PhotoKey, ".png") {
		t.Errorf("PhotoKey = %q, want %s*.png", acct.PhotoKey, prefix)
	}
	if !s.objects.Has(acct.PhotoKey) {
		t.Error("profile photo not stored")
	}

	first := acct.PhotoKey
	if rec := upload(visiontest.Faces(visiontest.Blue)); rec.Code != http.StatusSeeOther {
		t.Fatalf("second upload status = %d body %s", rec.Code, rec.Body.String())
	}
	acct, _ = s.store.GetAccount(context.Background(), boss.ID)
	if acct.PhotoKey == first || s.objects.Has(first) || !s.objects.Has(acct.PhotoKey) {
		t.Errorf("replacing photo: key %q (was %q), objects %d", acct.PhotoKey, first, s.objects.Len())
	}
	if s.objects.Len() != 1 {
		t.Errorf("objects = %d, want 1", s.objects.Len())
	}

	detail := decode[struct{ User dto.AccountResponse }](t, s.get("/user/"+boss.ID.String(), manager))
	if detail.User.PhotoProfile != "/media/"+acct.PhotoKey {
		t.Errorf("photo_profile = %q", detail.User.PhotoProfile)
	}
}

func multipartRequest(t *testing.T, path string, fields map[string]string, photo []byte) *http.Request {
	t.Helper()
	var body strings.Builder
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		_ = mw.WriteField(k, v)
	}
	fw, err := mw.CreateFormFile("photo_profile", "me.png")
	if err != nil {
		t.Fatal(err)
	}
	_, _ = fw.Write(photo)
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body.String()))
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestProfilePhoto_FailedWriteKeepsStoreClean(t *testing.T) {
	s := newTestServer(t)
	s.createAccount(t, "taken", "password1", models.RoleCashier)

	rec := s.do(multipartRequest(t, "/register_user", map[string]string{
		"username": "taken", "password1": "password1", "password2": "password1", "role": "cashier",
	}, visiontest.Faces(visiontest.Red)))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("duplicate register status = %d, want 422", rec.Code)
	}
	if s.objects.Len() != 0 {
		t.Errorf("duplicate register left %d objects", s.objects.Len())
	}

	s.createAccount(t, "boss", "managerpass", models.RoleManager)
	manager := s.login(t, "boss", "managerpass")
	boss, _ := s.store.GetAccountByUsername(context.Background(), "boss")

	ok := s.do(multipartRequest(t, "/user/"+boss.ID.String(), map[string]string{
		"username": "boss", "role": "manager",
	}, visiontest.Faces(visiontest.Red)), manager)
	if ok.Code != http.StatusSeeOther {
		t.Fatalf("update status = %d body %s", ok.Code, ok.Body.String())
	}
	before, _ := s.store.GetAccount(context.Background(), boss.ID)

	dup := s.do(multipartRequest(t, "/user/"+boss.ID.String(), map[string]string{
		"username": "taken", "role": "manager",
	}, visiontest.Faces(visiontest.Blue)), manager)
	if dup.Code != http.StatusUnprocessableEntity {
		t.Fatalf("duplicate update status = %d, want 422", dup.Code)
	}
	after, _ := s.store.GetAccount(context.Background(), boss.ID)
	if after.PhotoKey != before.PhotoKey || !s.objects.Has(before.PhotoKey) {
		t.Errorf("photo changed by failed update: %q -> %q", before.PhotoKey, after.PhotoKey)
	}
	if s.objects.Len() != 1 {
		t.Errorf("objects = %d, want 1", s.objects.Len())
	}
}

func TestMembers(t *testing.T) {
	s := newTestServer(t)
	s.createAccount(t, "till", "cashierpass", models.RoleCashier)
	cashier := s.login(t, "till", "cashierpass")

	s.enroll(t, "Zoë", "555-0100", visiontest.Faces(visiontest.Red))
	s.enroll(t, "Bob", "555-0101", visiontest.Faces(visiontest.Blue))

	if rec := s.get("/members"); rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous list status = %d, want 401", rec.Code)
	}

	list := decode[dto.PersonListResponse](t, s.get("/members", cashier))
	if list.Total != 2 || list.Persons[0].Name != "Zoë" {
		t.Fatalf("members = %+v", list)
	}
	filtered := decode[dto.PersonListResponse](t, s.get("/members?q=zoe", cashier))
	if filtered.Total != 1 || filtered.Persons[0].Name != "Zoë" {
		t.Errorf("filtered members = %+v", filtered)
	}

	bob := list.Persons[1]
	edit := s.postForm("/members/"+bob.ID.String()+"/edit", url.Values{"name": {"Robert"}, "number": {"555-0102"}}, cashier)
	if edit.Code != http.StatusSeeOther {
		t.Fatalf("edit status = %d body %s", edit.Code, edit.Body.String())
	}
	got, _ := s.store.GetPerson(context.Background(), bob.ID)
	if got.Name != "Robert" || got.Number != "555-0102" || !got.HasEmbedding() {
		t.Errorf("edited person = %+v", got)
	}

	confirm := s.get("/members/"+bob.ID.String()+"/delete", cashier)
	if confirm.Code != http.StatusOK {
		t.Fatalf("confirm status = %d", confirm.Code)
	}
	if _, err := s.store.GetPerson(context.Background(), bob.ID); err != nil {
		t.Fatal("GET delete must not remove the person")
	}

	del := s.postForm("/members/"+bob.ID.String()+"/delete", nil, cashier)
	if del.Code != http.StatusSeeOther {
		t.Fatalf("delete status = %d", del.Code)
	}
	if _, err := s.store.GetPerson(context.Background(), bob.ID); err == nil {
		t.Error("person still present after delete")
	}
	if s.objects.Has(got.PhotoKey) {
		t.Error("photo still present after delete")
	}

	if rec := s.get("/members/not-a-uuid/edit", cashier); rec.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d, want 400", rec.Code)
	}
	if rec := s.postForm("/members/"+bob.ID.String()+"/delete", nil, cashier); rec.Code != http.StatusNotFound {
		t.Errorf("delete missing status = %d, want 404", rec.Code)
	}
}

func TestMedia(t *testing.T) {
	s := newTestServer(t)
	photo := visiontest.Faces(visiontest.Green)
	s.enroll(t, "Alice", "1", photo)
	persons, _ := s.store.ListPersons(context.Background())

	rec := s.get("/media/" + persons[0].PhotoKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q", ct)
	}
	if rec.Body.Len() != len(photo) {
		t.Errorf("body = %d bytes, want %d", rec.Body.Len(), len(photo))
	}

	if rec := s.get("/media/face_images/missing.png"); rec.Code != http.StatusNotFound {
		t.Errorf("missing status = %d, want 404", rec.Code)
	}
}

func TestV1API(t *testing.T) {
	s := newTestServer(t)
	body, _ := json.Marshal(dto.EnrollRequest{Name: "Alice", Number: "1", FaceImage: dataURI(visiontest.Faces(visiontest.Red))})

	req := httptest.NewRequest(http.MethodPost, "/v1/enroll", strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "application/json")
	if rec := s.do(req); rec.Code != http.StatusUnauthorized {
		t.Errorf("no key status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/enroll", strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", "k3y")
	rec := s.do(req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("enroll status = %d body %s", rec.Code, rec.Body.String())
	}
	p := decode[dto.PersonResponse](t, rec)
	if p.Name != "Alice" || !p.Embedded || !strings.HasPrefix(p.FaceImage, "/media/face_images/") {
		t.Errorf("enrolled = %+v", p)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/persons", nil)
	req.Header.Set("X-API-Key", "k3y")
	if list := decode[dto.PersonListResponse](t, s.do(req)); list.Total != 1 {
		t.Errorf("persons total = %d, want 1", list.Total)
	}
}

func TestBodyLimit(t *testing.T) {
	s := newTestServer(t, func(cfg *RouterConfig) { cfg.MaxImageBytes = 1024 })

	huge := dataURI(make([]byte, 200<<10))
	rec := s.postForm("/register", url.Values{"name": {"Big"}, "number": {"1"}, "faceimage": {huge}})
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("oversized enroll status = %d, want 413", rec.Code)
	}
	rec = s.postForm("/face_detection", url.Values{"faceimage": {huge}})
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("oversized recognize status = %d, want 413", rec.Code)
	}
	persons, _ := s.store.ListPersons(context.Background())
	if len(persons) != 0 {
		t.Errorf("persons = %d, want 0", len(persons))
	}
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, func(cfg *RouterConfig) {
		cfg.RateLimit = config.RateLimit{RPS: 0.001, Burst: 1}
	})
	form := url.Values{"faceimage": {"data:image/png;base64,x"}}

	if rec := s.postForm("/capture_face", form); rec.Code != http.StatusOK {
		t.Fatalf("first status = %d", rec.Code)
	}
	if rec := s.postForm("/capture_face", form); rec.Code != http.StatusTooManyRequests {
		t.Errorf("second status = %d, want 429", rec.Code)
	}
	if rec := s.get("/success"); rec.Code != http.StatusOK {
		t.Errorf("unlimited route status = %d, want 200", rec.Code)
	}
}

func TestSystemEndpoints(t *testing.T) {
	s := newTestServer(t, func(cfg *RouterConfig) {
		cfg.Checks["nats"] = func(context.Context) error { return errors.New("nats not connected") }
	})

	if rec := s.get("/healthz"); rec.Code != http.StatusOK {
		t.Errorf("healthz status = %d", rec.Code)
	}

	rec := s.get("/readyz")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz status = %d, want 503", rec.Code)
	}
	body := decode[struct {
		Status string
		Checks map[string]string
	}](t, rec)
	if body.Checks["postgres"] != "ok" || body.Checks["nats"] != "nats not connected" {
		t.Errorf("checks = %+v", body.Checks)
	}

	if rec := s.get("/metrics"); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "facerecog_http_request_duration_seconds") {
		t.Errorf("metrics status = %d", rec.Code)
	}
}

func TestRequestID(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	if got := s.do(req).Header().Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("X-Request-ID = %q, want propagated", got)
	}
	if got := s.get("/healthz").Header().Get("X-Request-ID"); got == "" {
		t.Error("X-Request-ID not assigned")
	}
}
