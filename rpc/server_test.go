package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"klubstake/core"
	"klubstake/core/events"
	"klubstake/crypto"
	"klubstake/journal"
	"klubstake/storage"
)

const testSecret = "rpc-test-secret"

var (
	creatorAddr   = crypto.DeriveAddress(crypto.KlubPrefix, "creator")
	depositorAddr = crypto.DeriveAddress(crypto.KlubPrefix, "depositor")
)

type rpcReply struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

type testEnv struct {
	srv  *Server
	http *httptest.Server
	hub  *events.Hub
}

func newTestEnv(t *testing.T, cfg ServerConfig, jr JournalReader) *testEnv {
	t.Helper()
	hub := events.NewHub()
	opts := core.Options{Hub: hub}
	if j, ok := jr.(core.Journal); ok {
		opts.Journal = j
	}
	app, err := core.NewApp(storage.NewMemDB(), opts)
	require.NoError(t, err)
	srv, err := NewServer(app, hub, jr, cfg, nil)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{srv: srv, http: ts, hub: hub}
}

func (e *testEnv) call(t *testing.T, token, method string, params interface{}) (int, rpcReply) {
	t.Helper()
	req := map[string]interface{}{"jsonrpc": "2.0", "id": 1, "method": method}
	if params != nil {
		req["params"] = []interface{}{params}
	}
	body, err := json.Marshal(req)
	require.NoError(t, err)
	httpReq, err := http.NewRequest(http.MethodPost, e.http.URL+"/", bytes.NewReader(body))
	require.NoError(t, err)
	httpReq.Header.Set("Content-Type", "application/json")
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.http.Client().Do(httpReq)
	require.NoError(t, err)
	defer resp.Body.Close()
	var reply rpcReply
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&reply))
	return resp.StatusCode, reply
}

func (e *testEnv) instantiate(t *testing.T, token string) {
	t.Helper()
	params := map[string]interface{}{"name": "KJuno", "symbol": "Klubj", "decimals": 8, "min_withdrawal": "5"}
	if token == "" {
		params["sender"] = creatorAddr.String()
	}
	_, reply := e.call(t, token, "klub_instantiate", params)
	require.Nil(t, reply.Error)
}

func depositRequest(sender string, denom string, amount string) map[string]interface{} {
	params := map[string]interface{}{
		"funds": []map[string]string{{"denom": denom, "amount": amount}},
	}
	if sender != "" {
		params["sender"] = sender
	}
	return params
}

func signToken(t *testing.T, subject string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": subject,
		"iss": "klub-tests",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func TestDepositFlowOverJSONRPC(t *testing.T) {
	env := newTestEnv(t, ServerConfig{}, nil)
	env.instantiate(t, "")

	_, reply := env.call(t, "", "klub_deposit", depositRequest(depositorAddr.String(), core.DefaultAcceptedDenom, "100"))
	require.Nil(t, reply.Error)
	var resp core.Response
	require.NoError(t, json.Unmarshal(reply.Result, &resp))
	require.Equal(t, uint64(2), resp.Height)
	require.Equal(t, "Deposit", resp.Attributes[0].Value)

	_, reply = env.call(t, "", "klub_balance", map[string]string{"address": depositorAddr.String()})
	require.Nil(t, reply.Error)
	var balance core.BalanceResponse
	require.NoError(t, json.Unmarshal(reply.Result, &balance))
	require.Equal(t, "100", balance.Balance)

	_, reply = env.call(t, "", "klub_pool", nil)
	require.Nil(t, reply.Error)
	var pool core.PoolResponse
	require.NoError(t, json.Unmarshal(reply.Result, &pool))
	require.Equal(t, "100", pool.TotalAmount)
	require.Equal(t, "100", pool.TotalStaked)

	_, reply = env.call(t, "", "klub_clients", map[string]int{"limit": 5})
	require.Nil(t, reply.Error)
	var clients core.ClientsResponse
	require.NoError(t, json.Unmarshal(reply.Result, &clients))
	require.Len(t, clients.Clients, 1)
	require.Equal(t, depositorAddr.String(), clients.Clients[0].Address)

	_, reply = env.call(t, "", "klub_status", nil)
	require.Nil(t, reply.Error)
	var status StatusResponse
	require.NoError(t, json.Unmarshal(reply.Result, &status))
	require.Equal(t, uint64(2), status.Height)
	require.Equal(t, core.DefaultAcceptedDenom, status.AcceptedDenom)
}

func TestErrorCodes(t *testing.T) {
	env := newTestEnv(t, ServerConfig{}, nil)

	status, reply := env.call(t, "", "klub_config", nil)
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, codeLifecycle, reply.Error.Code)

	env.instantiate(t, "")

	status, reply = env.call(t, "", "klub_deposit", depositRequest(depositorAddr.String(), "utokenfail", "100"))
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, codeWrongPaymentToken, reply.Error.Code)

	_, reply = env.call(t, "", "klub_deposit", depositRequest(depositorAddr.String(), core.DefaultAcceptedDenom, "0"))
	require.Equal(t, codeZeroDeposit, reply.Error.Code)

	_, reply = env.call(t, "", "klub_burn", map[string]string{"sender": depositorAddr.String(), "amount": "5"})
	require.Equal(t, codeTokenRejected, reply.Error.Code)

	_, reply = env.call(t, "", "klub_deposit", depositRequest("", core.DefaultAcceptedDenom, "5"))
	require.Equal(t, codeInvalidParams, reply.Error.Code)

	_, reply = env.call(t, "", "klub_client", map[string]string{"address": depositorAddr.String()})
	require.Equal(t, codeNotFound, reply.Error.Code)

	_, reply = env.call(t, "", "klub_balance", map[string]string{"address": "cosmos1notklub"})
	require.Equal(t, codeInvalidParams, reply.Error.Code)

	status, reply = env.call(t, "", "klub_unknown", nil)
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, codeMethodNotFound, reply.Error.Code)

	_, reply = env.call(t, "", "klub_deposit", map[string]string{"bogus": "x"})
	require.Equal(t, codeInvalidParams, reply.Error.Code)
}

func TestMalformedRequests(t *testing.T) {
	env := newTestEnv(t, ServerConfig{}, nil)

	resp, err := env.http.Client().Post(env.http.URL+"/", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var reply rpcReply
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&reply))
	require.Equal(t, codeParseError, reply.Error.Code)

	resp2, err := env.http.Client().Post(env.http.URL+"/", "application/json", strings.NewReader(" "))
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&reply))
	require.Equal(t, codeInvalidRequest, reply.Error.Code)
	require.NotEmpty(t, resp2.Header.Get(requestIDHeader))
}

func TestJWTSubjectIsCaller(t *testing.T) {
	cfg := ServerConfig{JWT: JWTConfig{Enable: true, HMACSecret: testSecret, Issuer: "klub-tests"}}
	env := newTestEnv(t, cfg, nil)
	env.instantiate(t, signToken(t, creatorAddr.String()))

	token := signToken(t, depositorAddr.String())
	_, reply := env.call(t, token, "klub_deposit", depositRequest("", core.DefaultAcceptedDenom, "40"))
	require.Nil(t, reply.Error)

	_, reply = env.call(t, "", "klub_balance", map[string]string{"address": depositorAddr.String()})
	require.Nil(t, reply.Error)
	var balance core.BalanceResponse
	require.NoError(t, json.Unmarshal(reply.Result, &balance))
	require.Equal(t, "40", balance.Balance)

	status, reply := env.call(t, token, "klub_deposit", depositRequest(creatorAddr.String(), core.DefaultAcceptedDenom, "1"))
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, codeUnauthorized, reply.Error.Code)

	status, reply = env.call(t, "", "klub_deposit", depositRequest(depositorAddr.String(), core.DefaultAcceptedDenom, "1"))
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, codeUnauthorized, reply.Error.Code)

	status, reply = env.call(t, "not-a-token", "klub_pool", nil)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, codeUnauthorized, reply.Error.Code)
}

func TestJWTRequiresSecret(t *testing.T) {
	app, err := core.NewApp(storage.NewMemDB(), core.Options{})
	require.NoError(t, err)
	_, err = NewServer(app, nil, nil, ServerConfig{JWT: JWTConfig{Enable: true}}, nil)
	require.Error(t, err)
}

func TestRateLimitPerClient(t *testing.T) {
	env := newTestEnv(t, ServerConfig{RateLimit: RateLimit{RequestsPerMinute: 1, Burst: 2}}, nil)

	_, reply := env.call(t, "", "klub_status", nil)
	require.Nil(t, reply.Error)
	_, reply = env.call(t, "", "klub_status", nil)
	require.Nil(t, reply.Error)
	status, reply := env.call(t, "", "klub_status", nil)
	require.Equal(t, http.StatusTooManyRequests, status)
	require.Equal(t, codeRateLimited, reply.Error.Code)
}

func TestRateLimiterSweepsIdleVisitors(t *testing.T) {
	limiter := newRateLimiter(RateLimit{RequestsPerMinute: 1, Burst: 1})
	now := time.Unix(1_700_000_000, 0)
	limiter.now = func() time.Time { return now }

	require.True(t, limiter.allow("a"))
	require.False(t, limiter.allow("a"))
	require.True(t, limiter.allow("b"))

	now = now.Add(visitorIdleTTL + time.Second)
	require.True(t, limiter.allow("b"))
	limiter.mu.Lock()
	_, stillTracked := limiter.visitors["a"]
	limiter.mu.Unlock()
	require.False(t, stillTracked)
}

func TestClientIPHonoursHeadersOnlyFromTrustedProxies(t *testing.T) {
	proxies, err := ParseTrustedProxies([]string{"10.0.0.0/8", "192.0.2.1"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.RemoteAddr = "10.0.0.5:1234"
	require.Equal(t, "10.0.0.5", clientIP(req, proxies))

	req.Header.Set("X-Forwarded-For", "198.51.100.7, 10.0.0.1")
	require.Equal(t, "198.51.100.7", clientIP(req, proxies))

	req.Header.Set("X-Real-IP", "203.0.113.9")
	require.Equal(t, "203.0.113.9", clientIP(req, proxies))

	req.RemoteAddr = "192.0.2.1:443"
	require.Equal(t, "203.0.113.9", clientIP(req, proxies))

	req.RemoteAddr = "203.0.113.5:5000"
	require.Equal(t, "203.0.113.5", clientIP(req, proxies))
	require.Equal(t, "203.0.113.5", clientIP(req, nil))
}

func TestParseTrustedProxiesRejectsGarbage(t *testing.T) {
	_, err := ParseTrustedProxies([]string{"10.0.0.0/33"})
	require.Error(t, err)
	_, err = ParseTrustedProxies([]string{"proxy.local"})
	require.Error(t, err)

	nets, err := ParseTrustedProxies([]string{" ", "2001:db8::1"})
	require.NoError(t, err)
	require.Len(t, nets, 1)
}

func TestForwardedHeadersDoNotBypassRateLimit(t *testing.T) {
	limiter := newRateLimiter(RateLimit{RequestsPerMinute: 1, Burst: 1})
	allowed := 0
	for i := 0; i < 50; i++ {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.RemoteAddr = "203.0.113.5:9000"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i))
		if limiter.allow(clientIP(req, nil)) {
			allowed++
		}
	}
	require.Equal(t, 1, allowed)

	proxies, err := ParseTrustedProxies([]string{"203.0.113.5"})
	require.NoError(t, err)
	proxied := newRateLimiter(RateLimit{RequestsPerMinute: 1, Burst: 1})
	allowed = 0
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.RemoteAddr = "203.0.113.5:9000"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i))
		if proxied.allow(clientIP(req, proxies)) {
			allowed++
		}
	}
	require.Equal(t, 5, allowed)
}

func TestNewServerRejectsBadTrustedProxy(t *testing.T) {
	app, err := core.NewApp(storage.NewMemDB(), core.Options{})
	require.NoError(t, err)
	_, err = NewServer(app, nil, nil, ServerConfig{TrustedProxies: []string{"not-an-ip"}}, nil)
	require.Error(t, err)
}

func TestEventStreamDeliversCommittedEvents(t *testing.T) {
	env := newTestEnv(t, ServerConfig{}, nil)
	env.instantiate(t, "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	wsURL := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/ws/events"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "done")

	// The backlog carries the setup event.
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var rec events.Record
	require.NoError(t, json.Unmarshal(data, &rec))
	require.Equal(t, uint64(1), rec.Height)

	_, reply := env.call(t, "", "klub_deposit", depositRequest(depositorAddr.String(), core.DefaultAcceptedDenom, "10"))
	require.Nil(t, reply.Error)

	seen := map[string]bool{}
	for len(seen) < 2 {
		_, data, err := conn.Read(ctx)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(data, &rec))
		require.Equal(t, uint64(2), rec.Height)
		seen[rec.Event.Type] = true
	}
	require.True(t, seen["token.mint"])
	require.True(t, seen["deposit.received"])
}

func TestEventStreamRejectsBadCursor(t *testing.T) {
	env := newTestEnv(t, ServerConfig{}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	wsURL := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/ws/events?cursor=abc"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "done")
	_, _, err = conn.Read(ctx)
	require.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
}

func TestJournalMethod(t *testing.T) {
	j, err := journal.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })

	env := newTestEnv(t, ServerConfig{}, j)
	env.instantiate(t, "")
	_, reply := env.call(t, "", "klub_deposit", depositRequest(depositorAddr.String(), core.DefaultAcceptedDenom, "10"))
	require.Nil(t, reply.Error)

	_, reply = env.call(t, "", "klub_journal", map[string]int{"limit": 1})
	require.Nil(t, reply.Error)
	var entries []JournalEntryResult
	require.NoError(t, json.Unmarshal(reply.Result, &entries))
	require.Len(t, entries, 1)
	require.Equal(t, "deposit", entries[0].Action)
	require.Equal(t, uint64(2), entries[0].Height)

	_, reply = env.call(t, "", "klub_journal", map[string]uint64{"height": 1})
	require.Nil(t, reply.Error)
	require.NoError(t, json.Unmarshal(reply.Result, &entries))
	require.Len(t, entries, 1)
	require.Equal(t, "instantiate", entries[0].Action)
	require.Equal(t, creatorAddr.String(), entries[0].Sender)

	status, reply := env.call(t, "", "klub_journal", map[string]uint64{"height": 99})
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, codeNotFound, reply.Error.Code)

	disabled := newTestEnv(t, ServerConfig{}, nil)
	_, reply = disabled.call(t, "", "klub_journal", nil)
	require.Equal(t, codeJournalDisabled, reply.Error.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t, ServerConfig{}, nil)
	env.call(t, "", "klub_status", nil)

	resp, err := env.http.Client().Get(env.http.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = env.http.Client().Get(env.http.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	require.Contains(t, buf.String(), "klub_rpc_requests_total")
}

func TestIssuedTokenAuthenticates(t *testing.T) {
	cfg := ServerConfig{JWT: JWTConfig{Enable: true, HMACSecret: testSecret, Issuer: "klub", Audience: "klubd"}}
	env := newTestEnv(t, cfg, nil)

	token, err := IssueToken(cfg.JWT, creatorAddr, time.Minute)
	require.NoError(t, err)
	env.instantiate(t, token)

	other, err := IssueToken(JWTConfig{HMACSecret: testSecret, Issuer: "klub", Audience: "elsewhere"}, creatorAddr, time.Minute)
	require.NoError(t, err)
	status, reply := env.call(t, other, "klub_status", nil)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, codeUnauthorized, reply.Error.Code)

	_, err = IssueToken(JWTConfig{}, creatorAddr, time.Minute)
	require.Error(t, err)
}
