package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-messaging-backend/internal/config"
	"github.com/tbourn/go-messaging-backend/internal/domain"
	"github.com/tbourn/go-messaging-backend/internal/http/handlers"
	"github.com/tbourn/go-messaging-backend/internal/http/middleware"
	"github.com/tbourn/go-messaging-backend/internal/repo"
	"github.com/tbourn/go-messaging-backend/internal/services"
)

// --- test DB helper (pure-Go sqlite, no CGO, foreign keys on) ---
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "api.db") + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func testConfig() config.Config {
	return config.Config{
		APIBasePath:    "/api/v1",
		RateRPS:        1000,
		RateBurst:      1000,
		IdempotencyTTL: time.Hour,
		CORS:           config.CORSConfig{},
		Security:       config.SecurityConfig{},
		OTEL:           config.OTELConfig{ServiceName: "test-svc"},
	}
}

func newTestRouter(t *testing.T, cfg config.Config) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := newTestDB(t)
	r := gin.New()
	RegisterRoutes(r, db, services.NewEngine(db, services.EngineConfig{}), cfg)
	return r, db
}

// call issues a request as user (empty means anonymous) and returns the recorder.
func call(t *testing.T, r http.Handler, method, path, user string, body any, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set(middleware.HeaderUserID, user)
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func createUser(t *testing.T, r http.Handler, name, role string) domain.User {
	t.Helper()
	w := call(t, r, http.MethodPost, "/api/v1/users", "", map[string]string{"display_name": name, "role": role}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create user %s = %d %s", name, w.Code, w.Body.String())
	}
	return decode[domain.User](t, w)
}

func TestRegisterRoutes_CORSAllowAll_Health_Metrics_Fallbacks(t *testing.T) {
	r, _ := newTestRouter(t, testConfig())

	w := call(t, r, http.MethodGet, "/health", "", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("expected ACAO *, got %q", got)
	}
	if got := w.Header().Get("Cache-Control"); got != middleware.DefaultCacheControl {
		t.Fatalf("Cache-Control = %q", got)
	}

	w = call(t, r, http.MethodGet, "/metrics", "", nil, nil)
	if w.Code != http.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte("messaging_http_requests_total")) {
		t.Fatalf("GET /metrics = %d", w.Code)
	}

	w = call(t, r, http.MethodGet, "/nope", "", nil, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("NoRoute = %d", w.Code)
	}
	w = call(t, r, http.MethodPut, "/health", "", nil, nil)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("NoMethod = %d", w.Code)
	}

	// Preflight advertises the custom headers.
	w = call(t, r, http.MethodOptions, "/api/v1/messages", "", nil, map[string]string{
		"Origin":                         "http://example.com",
		"Access-Control-Request-Method":  "POST",
		"Access-Control-Request-Headers": "X-User-ID, Idempotency-Key",
	})
	if w.Code != http.StatusNoContent && w.Code != http.StatusOK {
		t.Fatalf("preflight = %d", w.Code)
	}
}

func TestRegisterRoutes_CORSWithOrigins_HeaderEcho(t *testing.T) {
	cfg := testConfig()
	cfg.CORS = config.CORSConfig{AllowedOrigins: []string{"http://example.com"}}
	r, _ := newTestRouter(t, cfg)

	w := call(t, r, http.MethodGet, "/health", "", nil, map[string]string{"Origin": "http://example.com"})
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://example.com" {
		t.Fatalf("expected ACAO echo, got %q", got)
	}
}

func Test_limitBody_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(limitBody(10))
	r.POST("/echo", func(c *gin.Context) {
		if _, err := io.ReadAll(c.Request.Body); err != nil {
			c.String(http.StatusRequestEntityTooLarge, "too big")
			return
		}
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/echo", bytes.NewBufferString("0123456789AB"))
	r.ServeHTTP(w, req)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 from limitBody, got %d", w.Code)
	}
}

func Test_groupWithPrefix(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	groupWithPrefix(r, "/").GET("/one", func(c *gin.Context) { c.String(http.StatusOK, "one") })
	groupWithPrefix(r, "").GET("/two", func(c *gin.Context) { c.String(http.StatusOK, "two") })
	groupWithPrefix(r, "/api").GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for path, want := range map[string]string{"/one": "one", "/two": "two", "/api/ping": "pong"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK || rec.Body.String() != want {
			t.Fatalf("GET %s got %d %q", path, rec.Code, rec.Body.String())
		}
	}
}

func TestAPI_RequiresIdentity(t *testing.T) {
	r, _ := newTestRouter(t, testConfig())

	w := call(t, r, http.MethodGet, "/api/v1/unread", "", nil, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("GET /unread without identity = %d", w.Code)
	}
	if rid := w.Header().Get("X-Request-ID"); rid == "" {
		t.Fatal("expected X-Request-ID header")
	}
}

func TestAPI_SendEditAndReadFlow(t *testing.T) {
	r, _ := newTestRouter(t, testConfig())
	alice := createUser(t, r, "Alice", domain.RoleHost)
	bob := createUser(t, r, "Bob", domain.RoleGuest)

	w := call(t, r, http.MethodPost, "/api/v1/messages", alice.ID,
		map[string]string{"receiver_id": bob.ID, "content": "hello"}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("send = %d %s", w.Code, w.Body.String())
	}
	msg := decode[domain.Message](t, w)

	// Bob sees one unread message and one notification.
	w = call(t, r, http.MethodGet, "/api/v1/unread", bob.ID, nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("unread = %d", w.Code)
	}
	if got := decode[struct{ Count int }](t, w).Count; got != 1 {
		t.Fatalf("unread count = %d", got)
	}
	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatal("expected ETag on /unread")
	}
	w = call(t, r, http.MethodGet, "/api/v1/unread", bob.ID, nil, map[string]string{"If-None-Match": etag})
	if w.Code != http.StatusNotModified {
		t.Fatalf("conditional unread = %d", w.Code)
	}

	w = call(t, r, http.MethodGet, "/api/v1/notifications", bob.ID, nil, nil)
	notes := decode[struct {
		Notifications []domain.Notification `json:"notifications"`
	}](t, w)
	if len(notes.Notifications) != 1 || notes.Notifications[0].MessageID != msg.ID {
		t.Fatalf("notifications = %+v", notes.Notifications)
	}

	// Non-participants cannot read the message.
	carol := createUser(t, r, "Carol", domain.RoleGuest)
	if w = call(t, r, http.MethodGet, "/api/v1/messages/"+msg.ID, carol.ID, nil, nil); w.Code != http.StatusNotFound && w.Code != http.StatusForbidden {
		t.Fatalf("outsider read = %d", w.Code)
	}

	// Edit records history; Bob cannot edit Alice's message.
	if w = call(t, r, http.MethodPatch, "/api/v1/messages/"+msg.ID, bob.ID, map[string]string{"content": "x"}, nil); w.Code != http.StatusForbidden {
		t.Fatalf("foreign edit = %d", w.Code)
	}
	w = call(t, r, http.MethodPatch, "/api/v1/messages/"+msg.ID, alice.ID, map[string]string{"content": "hello, bob"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("edit = %d %s", w.Code, w.Body.String())
	}
	if edited := decode[domain.Message](t, w); !edited.Edited || edited.Content != "hello, bob" {
		t.Fatalf("edited = %+v", edited)
	}
	w = call(t, r, http.MethodGet, "/api/v1/messages/"+msg.ID+"/history", bob.ID, nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("history = %d", w.Code)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte(`"old_content":"hello"`)) {
		t.Fatalf("history body = %s", w.Body.String())
	}

	// Marking read empties the unread index and invalidates the ETag.
	if w = call(t, r, http.MethodPost, "/api/v1/messages/"+msg.ID+"/read", bob.ID, nil, nil); w.Code != http.StatusOK {
		t.Fatalf("mark read = %d", w.Code)
	}
	w = call(t, r, http.MethodGet, "/api/v1/unread", bob.ID, nil, map[string]string{"If-None-Match": etag})
	if w.Code != http.StatusOK {
		t.Fatalf("unread after read = %d", w.Code)
	}
	if got := decode[struct{ Count int }](t, w).Count; got != 0 {
		t.Fatalf("unread count after read = %d", got)
	}
}

func TestAPI_ReplyThreadAndUserDeletion(t *testing.T) {
	r, db := newTestRouter(t, testConfig())
	alice := createUser(t, r, "Alice", domain.RoleGuest)
	bob := createUser(t, r, "Bob", domain.RoleGuest)

	root := decode[domain.Message](t, call(t, r, http.MethodPost, "/api/v1/messages", alice.ID,
		map[string]string{"receiver_id": bob.ID, "content": "root"}, nil))
	w := call(t, r, http.MethodPost, "/api/v1/messages/"+root.ID+"/replies", bob.ID,
		map[string]string{"content": "reply"}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("reply = %d %s", w.Code, w.Body.String())
	}
	reply := decode[domain.Message](t, w)
	if reply.ReceiverID != alice.ID {
		t.Fatalf("reply receiver = %s, want %s", reply.ReceiverID, alice.ID)
	}

	w = call(t, r, http.MethodGet, "/api/v1/messages/"+root.ID+"/thread", alice.ID, nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("thread = %d", w.Code)
	}
	tree := decode[services.ThreadNode](t, w)
	if tree.ID != root.ID || len(tree.Replies) != 1 || tree.Replies[0].ID != reply.ID {
		t.Fatalf("thread = %+v", tree)
	}

	// Alice may not delete Bob; Bob may delete their own account.
	if w = call(t, r, http.MethodDelete, "/api/v1/users/"+bob.ID, alice.ID, nil, nil); w.Code != http.StatusForbidden {
		t.Fatalf("foreign delete = %d", w.Code)
	}
	if w = call(t, r, http.MethodDelete, "/api/v1/users/"+bob.ID, bob.ID, nil, nil); w.Code != http.StatusNoContent {
		t.Fatalf("self delete = %d %s", w.Code, w.Body.String())
	}

	if w = call(t, r, http.MethodGet, "/api/v1/messages/"+root.ID, alice.ID, nil, nil); w.Code != http.StatusNotFound {
		t.Fatalf("root after delete = %d", w.Code)
	}
	if w = call(t, r, http.MethodGet, "/api/v1/users/"+bob.ID, alice.ID, nil, nil); w.Code != http.StatusNotFound {
		t.Fatalf("user after delete = %d", w.Code)
	}
	var n int64
	db.Model(&domain.Notification{}).Count(&n)
	if n != 0 {
		t.Fatalf("notifications left = %d", n)
	}
}

func TestAPI_ValidationAndStatusMapping(t *testing.T) {
	r, _ := newTestRouter(t, testConfig())
	alice := createUser(t, r, "Alice", domain.RoleGuest)

	cases := []struct {
		name string
		body any
		want int
	}{
		{"missing content", map[string]string{"receiver_id": alice.ID}, http.StatusBadRequest},
		{"no receiver or parent", map[string]string{"content": "hi"}, http.StatusBadRequest},
		{"blank content", map[string]string{"receiver_id": alice.ID, "content": "   "}, http.StatusBadRequest},
		{"unknown receiver", map[string]string{"receiver_id": "ghost", "content": "hi"}, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := call(t, r, http.MethodPost, "/api/v1/messages", alice.ID, tc.body, nil)
			if w.Code != tc.want {
				t.Fatalf("got %d want %d (%s)", w.Code, tc.want, w.Body.String())
			}
		})
	}

	if w := call(t, r, http.MethodPost, "/api/v1/users", "", map[string]string{"display_name": "X", "role": "root"}, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bad role = %d", w.Code)
	}
	if w := call(t, r, http.MethodGet, "/api/v1/messages/missing/thread", alice.ID, nil, nil); w.Code != http.StatusNotFound {
		t.Fatalf("missing thread = %d", w.Code)
	}
}

func TestAPI_IdempotentSendReplays(t *testing.T) {
	r, db := newTestRouter(t, testConfig())
	alice := createUser(t, r, "Alice", domain.RoleGuest)
	bob := createUser(t, r, "Bob", domain.RoleGuest)
	body := map[string]string{"receiver_id": bob.ID, "content": "once"}
	hdr := map[string]string{middleware.HeaderIdempotencyKey: "send-0001"}

	first := call(t, r, http.MethodPost, "/api/v1/messages", alice.ID, body, hdr)
	if first.Code != http.StatusCreated {
		t.Fatalf("first = %d %s", first.Code, first.Body.String())
	}
	second := call(t, r, http.MethodPost, "/api/v1/messages", alice.ID, body, hdr)
	if second.Code != http.StatusCreated {
		t.Fatalf("second = %d", second.Code)
	}
	if second.Header().Get(middleware.HeaderIdempotencyReplayed) != "true" {
		t.Fatal("expected replay header")
	}
	if a, b := decode[domain.Message](t, first).ID, decode[domain.Message](t, second).ID; a != b {
		t.Fatalf("replay returned %s, want %s", b, a)
	}

	var n int64
	db.Model(&domain.Message{}).Count(&n)
	if n != 1 {
		t.Fatalf("messages = %d, want 1", n)
	}

	// The same key from another user is a separate request.
	if w := call(t, r, http.MethodPost, "/api/v1/messages", bob.ID,
		map[string]string{"receiver_id": alice.ID, "content": "once"}, hdr); w.Header().Get(middleware.HeaderIdempotencyReplayed) != "" {
		t.Fatal("key must be scoped per user")
	}

	if w := call(t, r, http.MethodPost, "/api/v1/messages", alice.ID, body,
		map[string]string{middleware.HeaderIdempotencyKey: "bad key!"}); w.Code != http.StatusBadRequest {
		t.Fatalf("malformed key = %d", w.Code)
	}
}

func TestAPI_IdempotencyKeyReusableAfterExpiry(t *testing.T) {
	r, db := newTestRouter(t, testConfig())
	alice := createUser(t, r, "Alice", domain.RoleGuest)
	bob := createUser(t, r, "Bob", domain.RoleGuest)
	body := map[string]string{"receiver_id": bob.ID, "content": "again"}
	hdr := map[string]string{middleware.HeaderIdempotencyKey: "send-expiring"}

	first := decode[domain.Message](t, call(t, r, http.MethodPost, "/api/v1/messages", alice.ID, body, hdr))

	// Age the record past its TTL.
	if err := db.Model(&domain.Idempotency{}).
		Where("user_id = ? AND key = ?", alice.ID, "send-expiring").
		Update("expires_at", time.Now().UTC().Add(-time.Second)).Error; err != nil {
		t.Fatalf("expire: %v", err)
	}

	w := call(t, r, http.MethodPost, "/api/v1/messages", alice.ID, body, hdr)
	if w.Code != http.StatusCreated || w.Header().Get(middleware.HeaderIdempotencyReplayed) != "" {
		t.Fatalf("after expiry = %d replayed=%q", w.Code, w.Header().Get(middleware.HeaderIdempotencyReplayed))
	}
	second := decode[domain.Message](t, w)
	if second.ID == first.ID {
		t.Fatal("expired key must not replay the old message")
	}

	// The key guards the new message from here on.
	w = call(t, r, http.MethodPost, "/api/v1/messages", alice.ID, body, hdr)
	if w.Header().Get(middleware.HeaderIdempotencyReplayed) != "true" {
		t.Fatal("expected replay of the re-stored key")
	}
	if got := decode[domain.Message](t, w).ID; got != second.ID {
		t.Fatalf("replayed %s, want %s", got, second.ID)
	}

	var n int64
	db.Model(&domain.Message{}).Count(&n)
	if n != 2 {
		t.Fatalf("messages = %d, want 2", n)
	}
}

func TestAPI_ConversationFilters(t *testing.T) {
	r, _ := newTestRouter(t, testConfig())
	alice := createUser(t, r, "Alice", domain.RoleGuest)
	bob := createUser(t, r, "Bob", domain.RoleGuest)

	var sent []domain.Message
	for i, from := range []domain.User{alice, bob, alice} {
		to := bob
		if from.ID == bob.ID {
			to = alice
		}
		w := call(t, r, http.MethodPost, "/api/v1/messages", from.ID,
			map[string]string{"receiver_id": to.ID, "content": fmt.Sprintf("m%d", i)}, nil)
		if w.Code != http.StatusCreated {
			t.Fatalf("send %d = %d", i, w.Code)
		}
		sent = append(sent, decode[domain.Message](t, w))
	}

	list := func(q url.Values) handlers.ListMessagesResponse {
		t.Helper()
		w := call(t, r, http.MethodGet, "/api/v1/conversations/"+bob.ID+"/messages?"+q.Encode(), alice.ID, nil, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("list %v = %d %s", q, w.Code, w.Body.String())
		}
		return decode[handlers.ListMessagesResponse](t, w)
	}

	page := list(url.Values{"sender_id": {alice.ID}})
	if page.Pagination.Total != 2 || len(page.Messages) != 2 || page.Messages[1].ID != sent[2].ID {
		t.Fatalf("sender filter = %+v", page)
	}

	from := sent[1].CreatedAt.Format(time.RFC3339Nano)
	page = list(url.Values{"created_after": {from}})
	if page.Pagination.Total != 2 || page.Messages[0].ID != sent[1].ID {
		t.Fatalf("created_after = %+v", page)
	}
	page = list(url.Values{"created_before": {from}, "sender_id": {bob.ID}})
	if page.Pagination.Total != 1 || page.Messages[0].ID != sent[1].ID {
		t.Fatalf("created_before + sender = %+v", page)
	}

	w := call(t, r, http.MethodGet, "/api/v1/conversations/"+bob.ID+"/messages?created_before=last-week", alice.ID, nil, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad time = %d", w.Code)
	}
}

func TestAPI_StoreFailureMapsTo503(t *testing.T) {
	r, db := newTestRouter(t, testConfig())
	alice := createUser(t, r, "Alice", domain.RoleGuest)

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	_ = sqlDB.Close()

	w := call(t, r, http.MethodGet, "/api/v1/unread", alice.ID, nil,
		map[string]string{middleware.HeaderIdempotencyKey: "force-error"})
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d %s", w.Code, w.Body.String())
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After")
	}
}
