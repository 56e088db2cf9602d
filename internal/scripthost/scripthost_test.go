package scripthost

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bouncerhq/bouncer/internal/entity"
)

func newTestTenant(scripts ...string) *entity.Tenant {
	return &entity.Tenant{Name: "t1", ProviderScripts: scripts}
}

func TestRunCommitsDecision(t *testing.T) {
	script := `
class UserLoginProvider {
  constructor(arg) {
    this.canLogin = (arg.username === "valid_user" && arg.password === "valid_password");
    this.role = "member";
    commit(this.canLogin, {subject: arg.username});
  }
}
`
	h := New(nil)
	res, err := h.Run(context.Background(), newTestTenant(script), "UserLoginProvider", map[string]any{
		"username": "valid_user", "password": "valid_password",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Decision() {
		t.Fatal("expected a truthy decision for valid credentials")
	}
	if role, ok := res.StringProp("role"); !ok || role != "member" {
		t.Fatalf("expected role=member, got %q %v", role, ok)
	}
	if subj, ok := res.Subject(); !ok || subj != "valid_user" {
		t.Fatalf("expected subject override, got %q %v", subj, ok)
	}
}

func TestRunRejectsWrongCredentials(t *testing.T) {
	script := `
class UserLoginProvider {
  constructor(arg) {
    commit(arg.username === "valid_user" && arg.password === "valid_password");
  }
}
`
	h := New(nil)
	res, err := h.Run(context.Background(), newTestTenant(script), "UserLoginProvider", map[string]any{
		"username": "valid_user", "password": "wrong",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Decision() {
		t.Fatal("expected a falsy decision for wrong password")
	}
}

func TestRunSyntaxError(t *testing.T) {
	h := New(nil)
	_, err := h.Run(context.Background(), newTestTenant("class {{{"), "UserLoginProvider", nil)
	hostErr, ok := err.(*HostError)
	if !ok || hostErr.Kind != ErrSyntax {
		t.Fatalf("expected SyntaxError, got %v", err)
	}
}

func TestRunMissingCommitIsNoResults(t *testing.T) {
	script := `class UserLoginProvider { constructor(arg) { this.role = "x"; } }`
	h := New(nil)
	_, err := h.Run(context.Background(), newTestTenant(script), "UserLoginProvider", nil)
	hostErr, ok := err.(*HostError)
	if !ok || hostErr.Kind != ErrNoResults {
		t.Fatalf("expected NoResults, got %v", err)
	}
}

func TestRunUndeclaredClassIsParserError(t *testing.T) {
	script := `class SomethingElse {}`
	h := New(nil)
	_, err := h.Run(context.Background(), newTestTenant(script), "UserLoginProvider", nil)
	hostErr, ok := err.(*HostError)
	if !ok || hostErr.Kind != ErrParser {
		t.Fatalf("expected ParserError, got %v", err)
	}
}

func TestRunTimeout(t *testing.T) {
	script := `
class UserLoginProvider {
  constructor(arg) {
    while (true) {}
  }
}
`
	h := New(nil)
	h.Timeout = 50 * time.Millisecond
	_, err := h.Run(context.Background(), newTestTenant(script), "UserLoginProvider", nil)
	hostErr, ok := err.(*HostError)
	if !ok || hostErr.Kind != ErrTimeout {
		t.Fatalf("expected Timeout, got %v", err)
	}
}

func TestCommitOverflowCapped(t *testing.T) {
	script := `
class UserLoginProvider {
  constructor(arg) {
    for (let i = 0; i < 20; i++) {
      commit(i);
    }
  }
}
`
	h := New(nil)
	_, err := h.Run(context.Background(), newTestTenant(script), "UserLoginProvider", nil)
	hostErr, ok := err.(*HostError)
	if !ok || hostErr.Kind != ErrParser || !strings.Contains(hostErr.Message, "cap") {
		t.Fatalf("expected capped ParserError, got %v", err)
	}
}

func TestSha256AndMd5HostFunctions(t *testing.T) {
	script := `
class UserValidationProvider {
  constructor(arg) {
    this.isValid = sha256(arg.username).length === 64 && md5(arg.username).length === 32;
    commit(this.isValid);
  }
}
`
	h := New(nil)
	res, err := h.Run(context.Background(), newTestTenant(script), "UserValidationProvider", map[string]any{"username": "bob"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Decision() {
		t.Fatal("expected hash-length check to pass")
	}
}
