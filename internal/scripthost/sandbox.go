package scripthost

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/bouncerhq/bouncer/internal/entity"
)

// commitEntry is one invocation of the host commit() function.
type commitEntry struct {
	primary any
	extra   any
}

// sandbox holds the per-Run mutable state the host functions close over:
// the accumulated commits, the host's logger (scoped to the tenant), and
// the cap-exceeded flag Run inspects when vm.New returns an error.
type sandbox struct {
	host   *Host
	vm     *goja.Runtime
	tenant *entity.Tenant

	mu          sync.Mutex
	commits     []commitEntry
	capExceeded bool
}

func newSandbox(h *Host, vm *goja.Runtime, tenant *entity.Tenant) *sandbox {
	return &sandbox{host: h, vm: vm, tenant: tenant}
}

func (sb *sandbox) log() *zap.Logger {
	return sb.host.Logger.With(zap.String("tenant", sb.tenant.Name))
}

// install registers every host-provided function into sb.vm, per spec
// §4.D's function list: say, console.log/error, fetch, sha256, md5, commit.
func (sb *sandbox) install() {
	vm := sb.vm

	_ = vm.Set("say", func(args ...any) {
		sb.log().Info(joinArgs(args))
	})

	console := vm.NewObject()
	_ = console.Set("log", func(args ...any) {
		sb.log().Info(joinArgs(args))
	})
	_ = console.Set("error", func(args ...any) {
		sb.log().Error(joinArgs(args))
	})
	_ = vm.Set("console", console)

	_ = vm.Set("sha256", func(s string) string {
		sum := sha256.Sum256([]byte(s))
		return hex.EncodeToString(sum[:])
	})
	_ = vm.Set("md5", func(s string) string {
		sum := md5.Sum([]byte(s))
		return hex.EncodeToString(sum[:])
	})

	_ = vm.Set("fetch", sb.fetch)
	_ = vm.Set("commit", sb.commit)
}

func joinArgs(args []any) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = toDisplayString(a)
	}
	return strings.Join(parts, " ")
}

func toDisplayString(a any) string {
	switch v := a.(type) {
	case string:
		return v
	default:
		return jsonOrFallback(v)
	}
}

// commit is the host function scripts call to report their decision. It is
// variadic over (primary, extra?); every invocation within this sandbox run
// accumulates, capped at MaxCommittedValues. Exceeding the cap throws a JS
// exception, which Run classifies as ParserError via sb.capExceeded.
func (sb *sandbox) commit(call goja.FunctionCall) goja.Value {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	if len(sb.commits) >= MaxCommittedValues {
		sb.capExceeded = true
		panic(sb.vm.NewTypeError("commit() exceeded the committed-values cap of %d", MaxCommittedValues))
	}

	var entry commitEntry
	if len(call.Arguments) > 0 {
		entry.primary = call.Arguments[0].Export()
	}
	if len(call.Arguments) > 1 {
		entry.extra = call.Arguments[1].Export()
	}
	sb.commits = append(sb.commits, entry)
	return goja.Undefined()
}

// fetchOpts mirrors the {method, headers, body} object scripts pass as
// fetch's second argument.
type fetchOpts struct {
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body"`
}

// fetch performs a real HTTP request synchronously: this sandbox has no
// JS event loop, so "asynchronous" here means the call blocks the handler
// task exactly as spec §5's suspension-point list says it should, and the
// result is returned to the script directly rather than through a Promise.
func (sb *sandbox) fetch(url string, opts fetchOpts) map[string]any {
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	timeout := sb.host.HTTPTimeout
	if timeout <= 0 {
		timeout = sb.host.timeout()
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var bodyReader io.Reader
	if opts.Body != "" {
		bodyReader = strings.NewReader(opts.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return map[string]any{"code": 0, "body": err.Error()}
	}
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		return map[string]any{"code": 0, "body": err.Error()}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return map[string]any{"code": resp.StatusCode, "body": ""}
	}
	return map[string]any{"code": resp.StatusCode, "body": string(data)}
}

func jsonOrFallback(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
