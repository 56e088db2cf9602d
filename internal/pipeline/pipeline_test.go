package pipeline

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/bouncerhq/bouncer/internal/codestore/memory"
	"github.com/bouncerhq/bouncer/internal/entity"
	"github.com/bouncerhq/bouncer/internal/resolver"
	"github.com/bouncerhq/bouncer/internal/scripthost"
	"github.com/bouncerhq/bouncer/internal/signer"
)

const loginProviderScript = `
class UserLoginProvider {
	constructor(arg) {
		this.canLogin = (arg.username === "valid_user" && arg.password === "valid_password");
		this.role = "member";
		this.userProfile = {name: arg.username};
		commit(this.canLogin, {subject: arg.username});
	}
}
`

func newTestPipeline(t *testing.T) (*Pipeline, *entity.Store, *entity.Client) {
	t.Helper()
	store := entity.NewStore()
	tenant := &entity.Tenant{
		Name:            "acme",
		Hosts:           []string{"app.example.com"},
		SilentLogin:     true,
		ProviderScripts: []string{loginProviderScript},
	}
	if err := store.InsertTenant(tenant); err != nil {
		t.Fatalf("InsertTenant: %v", err)
	}
	client := &entity.Client{
		ID:                  "11111111-1111-1111-1111-111111111111",
		TenantName:          "acme",
		RedirectURLPatterns: []string{`https://app\.example\.(org|com)/cb`},
		Scopes:              []string{"read", "write"},
	}
	if err := store.InsertClient(client); err != nil {
		t.Fatalf("InsertClient: %v", err)
	}

	sgn, err := signer.New([]byte("test-secret"))
	if err != nil {
		t.Fatalf("signer.New: %v", err)
	}
	codes := memory.New(0)
	t.Cleanup(codes.Close)
	scripts := scripthost.New(nil)

	p := New(store, sgn, codes, scripts, nil, nil, nil, DefaultConfig())
	return p, store, client
}

func newTestRouter(t *testing.T, p *Pipeline, store *entity.Store, sgn *signer.Signer) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()

	r.Use(resolver.Middleware(store, sgn, resolver.Config{}))
	r.GET("/authorize", p.Authorize)
	r.POST("/login", p.Login)
	r.POST("/token", p.Token)
	r.GET("/token/info", p.TokenInfo)
	r.GET("/logout", p.Logout)
	r.POST("/logout", p.LogoutFinalize)
	r.GET("/logout/finalize", p.LogoutFinalize)
	r.GET("/interceptor", p.Interceptor)
	return r
}

func doRequest(r *gin.Engine, method, target string, body string, headers map[string]string) *httptest.ResponseRecorder {
	var reqBody *strings.Reader
	if body != "" {
		reqBody = strings.NewReader(body)
	} else {
		reqBody = strings.NewReader("")
	}
	req := httptest.NewRequest(method, target, reqBody)
	req.Host = "app.example.com"
	if body != "" {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res := httptest.NewRecorder()
	r.ServeHTTP(res, req)
	return res
}

func TestLoginThenAuthorizeThenTokenHappyPath(t *testing.T) {
	p, store, client := newTestPipeline(t)
	r := newTestRouter(t, p, store, p.Signer)

	loginRes := doRequest(r, http.MethodPost, "/login", url.Values{
		"username": {"valid_user"},
		"password": {"valid_password"},
		"location": {"/authorize?response_type=code&client_id=" + client.ID + "&redirect_uri=https://app.example.com/cb&scope=read&state=xyz"},
	}.Encode(), nil)

	if loginRes.Code != http.StatusSeeOther {
		t.Fatalf("login: expected 303, got %d: %s", loginRes.Code, loginRes.Body.String())
	}
	loc := loginRes.Header().Get("Location")
	var cookie string
	for _, c := range loginRes.Result().Cookies() {
		if c.Name == "uitsmijter-sso" {
			cookie = c.Value
		}
	}
	if cookie == "" {
		t.Fatal("expected session cookie set")
	}

	authReq := httptest.NewRequest(http.MethodGet, loc, nil)
	authReq.Host = "app.example.com"
	authReq.AddCookie(&http.Cookie{Name: "uitsmijter-sso", Value: cookie})
	authRes := httptest.NewRecorder()
	r.ServeHTTP(authRes, authReq)

	if authRes.Code != http.StatusSeeOther {
		t.Fatalf("authorize: expected 303, got %d: %s", authRes.Code, authRes.Body.String())
	}
	redirectLoc := authRes.Header().Get("Location")
	if !strings.Contains(redirectLoc, "code=") || !strings.Contains(redirectLoc, "state=xyz") {
		t.Fatalf("unexpected redirect: %s", redirectLoc)
	}

	parsed, _ := url.Parse(redirectLoc)
	code := parsed.Query().Get("code")

	tokenRes := doRequest(r, http.MethodPost, "/token", url.Values{
		"grant_type": {"authorization_code"},
		"client_id":  {client.ID},
		"code":       {code},
	}.Encode(), nil)

	if tokenRes.Code != http.StatusOK {
		t.Fatalf("token: expected 200, got %d: %s", tokenRes.Code, tokenRes.Body.String())
	}
	if !strings.Contains(tokenRes.Body.String(), "access_token") {
		t.Fatalf("expected access_token in body: %s", tokenRes.Body.String())
	}
}

func TestAuthorizeRejectsBadRedirect(t *testing.T) {
	p, store, client := newTestPipeline(t)
	r := newTestRouter(t, p, store, p.Signer)

	claims := map[string]any{"sub": "u1", "tenant": "acme"}
	token := mustSign(t, p, claims)

	req := httptest.NewRequest(http.MethodGet, "/authorize?response_type=code&client_id="+client.ID+"&redirect_uri=https://evil.com/&state=xyz", nil)
	req.Host = "app.example.com"
	req.Header.Set("Authorization", "Bearer "+token)
	res := httptest.NewRecorder()
	r.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", res.Code, res.Body.String())
	}
}

func TestLoginFailsWithWrongPassword(t *testing.T) {
	p, store, _ := newTestPipeline(t)
	r := newTestRouter(t, p, store, p.Signer)

	res := doRequest(r, http.MethodPost, "/login", url.Values{
		"username": {"valid_user"},
		"password": {"wrong"},
		"location": {"/"},
	}.Encode(), nil)

	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.Code)
	}
}

func TestInterceptorRequiresValidCookie(t *testing.T) {
	p, store, _ := newTestPipeline(t)
	tenant, _ := store.Tenant("acme")
	tenant.Interceptor.Enabled = true
	tenant.Interceptor.LoginDomain = "login.acme.test"
	r := newTestRouter(t, p, store, p.Signer)

	res := doRequest(r, http.MethodGet, "/interceptor", "", nil)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.Code)
	}
	loc := res.Header().Get("Location")
	if !strings.HasPrefix(loc, "http://login.acme.test/login?for=") {
		t.Fatalf("unexpected location: %s", loc)
	}
}

func mustSign(t *testing.T, p *Pipeline, claims map[string]any) string {
	t.Helper()
	mc := make(jwt.MapClaims, len(claims))
	for k, v := range claims {
		mc[k] = v
	}
	token, _, err := p.Signer.Sign(mc, signer.HS256)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return token
}
