package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"bazaar/adapters/memory"
	"bazaar/adapters/sse"
	"bazaar/market"
)

var testSecret = []byte("test-secret")

func init() {
	gin.SetMode(gin.TestMode)
	gin.DefaultWriter = io.Discard
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// fakeClock 是可以手動推進的時鐘
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeUploader 記錄上傳的物件
type fakeUploader struct {
	mu      sync.Mutex
	objects map[string]string
	err     error
}

func (u *fakeUploader) Upload(_ context.Context, key, contentType string, _ []byte) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.err != nil {
		return "", u.err
	}
	u.objects[key] = contentType
	return "https://cdn.example.com/" + key, nil
}

type testEnv struct {
	server   *ServerImpl
	router   *gin.Engine
	clock    *fakeClock
	uploader *fakeUploader
}

func setupServer(t *testing.T, opts ...ServerOption) *testEnv {
	t.Helper()
	clock := &fakeClock{now: time.Now().UTC().Truncate(time.Second)}
	hub := sse.NewHub()
	service, err := market.NewService(memory.NewStore(),
		market.WithServiceClock(clock.Now),
		market.WithServicePublisher(hub),
	)
	require.NoError(t, err)

	uploader := &fakeUploader{objects: map[string]string{}}
	opts = append([]ServerOption{
		WithServerHub(hub),
		WithServerUploader(uploader),
		WithServerKeepAlive(time.Hour),
	}, opts...)
	server, err := New(service, testSecret, opts...)
	require.NoError(t, err)
	t.Cleanup(server.Close)

	return &testEnv{server: server, router: server.Router(), clock: clock, uploader: uploader}
}

func signToken(t *testing.T, subject, email, role string) string {
	t.Helper()
	token, err := SignToken(testSecret, Claims{
		Email: email,
		Name:  subject,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	require.NoError(t, err)
	return token
}

func (e *testEnv) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(b)
	default:
		payload, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

// createAuction 以 owner 建立底價 100、最小加價 10 的一天拍賣
func (e *testEnv) createAuction(t *testing.T, owner string) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/products", map[string]any{
		"name":                "Teapot",
		"category":            "home",
		"description":         "<b>Fine</b><script>alert(1)</script>",
		"stock":               1,
		"price":               "100",
		"auctionEnabled":      true,
		"durationDays":        1,
		"minimumBidIncrement": "10",
	}, owner)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode(t, rec)["id"].(string)
}

func bid(name, email, amount string) map[string]any {
	return map[string]any{"bidderName": name, "bidderEmail": email, "bidAmount": amount}
}

func TestNew(t *testing.T) {
	service, err := market.NewService(memory.NewStore())
	require.NoError(t, err)

	_, err = New(nil, testSecret)
	assert.Error(t, err)
	_, err = New(service, nil)
	assert.Error(t, err)
	_, err = New(service, testSecret, WithServerKeepAlive(0))
	assert.Error(t, err)
}

func TestAuth(t *testing.T) {
	env := setupServer(t)
	body := map[string]any{"name": "Lamp", "category": "home", "stock": 1, "price": "10"}

	rec := env.do(t, http.MethodPost, "/api/products", body, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Unauthorized", decode(t, rec)["error"])

	rec = env.do(t, http.MethodPost, "/api/products", body, "not-a-token")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	expired, err := SignToken(testSecret, Claims{
		Email: "owner@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "owner",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})
	require.NoError(t, err)
	rec = env.do(t, http.MethodPost, "/api/products", body, expired)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	forged, err := SignToken([]byte("other-secret"), Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "owner",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	require.NoError(t, err)
	rec = env.do(t, http.MethodPost, "/api/products", body, forged)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// cookie 也可以攜帶權杖
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/api/products", bytes.NewReader(payload))
	req.AddCookie(&http.Cookie{Name: accessTokenCookie, Value: signToken(t, "owner", "owner@example.com", "")})
	cookieRec := httptest.NewRecorder()
	env.router.ServeHTTP(cookieRec, req)
	assert.Equal(t, http.StatusCreated, cookieRec.Code, cookieRec.Body.String())
}

func TestProducts(t *testing.T) {
	env := setupServer(t)
	owner := signToken(t, "owner", "owner@example.com", "")
	stranger := signToken(t, "stranger", "stranger@example.com", "")

	// 驗證失敗時回報欄位
	rec := env.do(t, http.MethodPost, "/api/products", map[string]any{"category": "home"}, owner)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode(t, rec)
	assert.Equal(t, "ValidationFailed", resp["error"])
	fields := resp["fields"].(map[string]any)
	assert.Contains(t, fields, "name")
	assert.Contains(t, fields, "stock")
	assert.Contains(t, fields, "price")

	rec = env.do(t, http.MethodPost, "/api/products", map[string]any{
		"name": "Lamp", "category": "spaceships", "stock": 1, "price": "10",
	}, owner)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec)["fields"], "category")

	// 欄位名稱與請求內容一致
	rec = env.do(t, http.MethodPost, "/api/products", map[string]any{
		"name": "Lamp", "category": "home", "stock": 1, "price": "10",
		"auctionEnabled": true, "endsAt": time.Now().Add(-time.Hour), "imageUrl": "ftp://x/y.png",
	}, owner)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	fields = decode(t, rec)["fields"].(map[string]any)
	assert.Contains(t, fields, "endsAt")
	assert.Contains(t, fields, "imageUrl")

	rec = env.do(t, http.MethodPost, "/api/products", []byte("{"), owner)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec)["fields"], "body")

	// 建立與讀取
	id := env.createAuction(t, owner)
	rec = env.do(t, http.MethodGet, "/api/products/"+id, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decode(t, rec)
	assert.Equal(t, "owner", resp["ownerId"])
	assert.Equal(t, "active", resp["status"])
	assert.Equal(t, "100.00", resp["currentPrice"])
	assert.Equal(t, "110.00", resp["minimumNextBid"])
	assert.NotContains(t, resp["description"], "<script>")
	assert.NotContains(t, resp, "ownerEmail")

	rec = env.do(t, http.MethodGet, "/api/products/missing", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NotFound", decode(t, rec)["error"])

	// 只有擁有者可以修改
	rec = env.do(t, http.MethodPatch, "/api/products/"+id, map[string]any{"name": "Kettle"}, stranger)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Forbidden", decode(t, rec)["error"])

	rec = env.do(t, http.MethodPatch, "/api/products/"+id, map[string]any{"name": "Kettle", "bids": []any{"x"}}, owner)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp = decode(t, rec)
	assert.Equal(t, "Kettle", resp["product"].(map[string]any)["name"])
	assert.Empty(t, resp["ignoredFields"])

	// 拍賣進行中不能刪除
	rec = env.do(t, http.MethodDelete, "/api/products/"+id, nil, owner)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "AuctionActive", decode(t, rec)["error"])

	// 沒有出價時可以取消，取消後可以刪除
	rec = env.do(t, http.MethodPost, "/api/products/"+id+"/cancel", nil, owner)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "cancelled", decode(t, rec)["status"])
	rec = env.do(t, http.MethodDelete, "/api/products/"+id, nil, owner)
	assert.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	rec = env.do(t, http.MethodGet, "/api/products/"+id, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPurchase(t *testing.T) {
	env := setupServer(t)
	owner := signToken(t, "owner", "owner@example.com", "")

	rec := env.do(t, http.MethodPost, "/api/products", map[string]any{
		"name": "Lamp", "category": "home", "stock": 2, "price": "10",
	}, owner)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := decode(t, rec)["id"].(string)
	path := "/api/products/" + id + "/purchase"

	rec = env.do(t, http.MethodPost, path, map[string]any{"buyerName": "Bo", "buyerEmail": "bo@example.com", "quantity": 3}, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "InsufficientStock", decode(t, rec)["error"])

	rec = env.do(t, http.MethodPost, path, map[string]any{"buyerName": "Bo", "buyerEmail": "bo@example.com"}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 1, decode(t, rec)["stock"])

	rec = env.do(t, http.MethodPost, path, map[string]any{"buyerName": "Bo", "buyerEmail": "bo@example.com", "quantity": 1}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode(t, rec)
	assert.EqualValues(t, 0, resp["stock"])
	assert.Equal(t, "sold", resp["status"])

	rec = env.do(t, http.MethodPost, path, map[string]any{"buyerName": "Bo", "buyerEmail": "not-an-email"}, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec)["fields"], "buyerEmail")
}

func TestBidding(t *testing.T) {
	env := setupServer(t)
	owner := signToken(t, "owner", "owner@example.com", "")
	id := env.createAuction(t, owner)
	path := "/api/auctions/" + id + "/bids"

	// 欄位錯誤在讀取商品之前就被拒絕
	rec := env.do(t, http.MethodPost, path, map[string]any{"bidderName": "Ana", "bidAmount": "120"}, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec)["fields"], "bidderEmail")

	// 小數超過兩位不會被四捨五入成合法出價
	rec = env.do(t, http.MethodPost, path, bid("Ana", "ana@example.com", "109.995"), "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec)["fields"], "bidAmount")

	rec = env.do(t, http.MethodPost, "/api/auctions/missing/bids", bid("Ana", "ana@example.com", "120"), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// 105 低於 100 + 10
	rec = env.do(t, http.MethodPost, path, bid("Ana", "ana@example.com", "105"), "")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	resp := decode(t, rec)
	assert.Equal(t, "BidTooLow", resp["error"])
	assert.Equal(t, "110.00", resp["minimumBid"])

	rec = env.do(t, http.MethodPost, path, bid("Ana", "ana@example.com", "110"), "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp = decode(t, rec)
	assert.Equal(t, id, resp["productId"])
	assert.Equal(t, "110.00", resp["currentPrice"])
	assert.Equal(t, "Ana", resp["bestBidder"])
	assert.EqualValues(t, 1, resp["bidCount"])
	assert.InDelta(t, (24 * time.Hour).Seconds(), resp["timeRemainingSeconds"], 1)

	// 擁有者不能對自己的商品出價
	rec = env.do(t, http.MethodPost, path, bid("Owner", "OWNER@example.com", "500"), "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "SelfBidForbidden", decode(t, rec)["error"])

	rec = env.do(t, http.MethodPost, path, bid("Bo", "bo@example.com", "130"), "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// 出價紀錄由新到舊，不包含出價者的 email
	rec = env.do(t, http.MethodGet, path, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decode(t, rec)
	assert.EqualValues(t, 2, resp["bidCount"])
	bids := resp["bids"].([]any)
	require.Len(t, bids, 2)
	assert.Equal(t, "Bo", bids[0].(map[string]any)["bidderName"])
	assert.Equal(t, "130.00", bids[0].(map[string]any)["amount"])
	assert.NotContains(t, rec.Body.String(), "bo@example.com")

	// 擁有者在出價後不能取消
	rec = env.do(t, http.MethodPost, "/api/products/"+id+"/cancel", nil, owner)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "NotCancellable", decode(t, rec)["error"])

	// 到期但尚未結算
	env.clock.Advance(25 * time.Hour)
	rec = env.do(t, http.MethodPost, path, bid("Cy", "cy@example.com", "200"), "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "NotBiddable", decode(t, rec)["error"])
}

func TestAdminRoutes(t *testing.T) {
	env := setupServer(t)
	owner := signToken(t, "owner", "owner@example.com", "")
	admin := signToken(t, "root", "root@example.com", RoleAdmin)

	withBids := env.createAuction(t, owner)
	withoutBids := env.createAuction(t, owner)
	rec := env.do(t, http.MethodPost, "/api/auctions/"+withBids+"/bids", bid("Ana", "ana@example.com", "150"), "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// 一般使用者不能使用管理路由
	rec = env.do(t, http.MethodGet, "/api/auctions/stats", nil, owner)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = env.do(t, http.MethodPost, "/api/auctions/process-expired", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/auctions/active?page=1&size=10", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, decode(t, rec)["total"])

	// 尚未到期時無法保留
	rec = env.do(t, http.MethodPost, "/api/auctions/"+withBids+"/reserve", nil, admin)
	assert.Equal(t, http.StatusConflict, rec.Code)

	env.clock.Advance(25 * time.Hour)
	rec = env.do(t, http.MethodGet, "/api/auctions/stats", nil, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode(t, rec)
	assert.EqualValues(t, 2, resp["activeExpired"])
	assert.Equal(t, true, resp["needsProcessing"])

	rec = env.do(t, http.MethodPost, "/api/auctions/process-expired", nil, admin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp = decode(t, rec)
	assert.EqualValues(t, 2, resp["processed"])
	winners := resp["winners"].([]any)
	require.Len(t, winners, 1)
	assert.Equal(t, withBids, winners[0].(map[string]any)["productId"])
	assert.Len(t, resp["endedWithoutBids"], 1)

	// 重複執行不會產生新的報告項目
	rec = env.do(t, http.MethodPost, "/api/auctions/process-expired", nil, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, decode(t, rec)["processed"])

	// 結算後的出價回報拍賣已關閉
	rec = env.do(t, http.MethodPost, "/api/auctions/"+withBids+"/bids", bid("Bo", "bo@example.com", "300"), "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "AuctionClosed", decode(t, rec)["error"])

	rec = env.do(t, http.MethodPost, "/api/auctions/"+withoutBids+"/reserve", nil, admin)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "NoWinnerToReserve", decode(t, rec)["error"])

	rec = env.do(t, http.MethodGet, "/api/auctions/reserved?email=ana@example.com", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["items"], 1)
	rec = env.do(t, http.MethodGet, "/api/auctions/reserved", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// 通知兩次，第二次不會再通知
	rec = env.do(t, http.MethodPost, "/api/auctions/notify-winners", nil, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode(t, rec)["notified"])
	rec = env.do(t, http.MethodPost, "/api/auctions/notify-winners", nil, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, decode(t, rec)["notified"])

	rec = env.do(t, http.MethodPost, "/api/auctions/"+withBids+"/notify-winner", nil, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["alreadyNotified"])
	rec = env.do(t, http.MethodPost, "/api/auctions/"+withoutBids+"/notify-winner", nil, admin)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "NotReserved", decode(t, rec)["error"])
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

func TestImages(t *testing.T) {
	env := setupServer(t, WithServerUploadLimit(1), WithServerMaxImageSize(1024))
	user := signToken(t, "user-1", "user@example.com", "")

	rec := env.do(t, http.MethodPost, "/api/images", pngHeader, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/images", []byte("<html><script>alert(1)</script></html>"), user)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/images", bytes.Repeat(pngHeader, 100), user)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/images", pngHeader, user)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decode(t, rec)
	assert.Equal(t, "image/png", resp["contentType"])
	assert.True(t, strings.HasPrefix(resp["url"].(string), "https://cdn.example.com/"))
	assert.True(t, strings.HasSuffix(resp["url"].(string), ".png"))
	assert.Equal(t, resp["url"], rec.Header().Get("Location"))
	assert.Len(t, env.uploader.objects, 1)

	// 每小時只能上傳一張
	rec = env.do(t, http.MethodPost, "/api/images", pngHeader, user)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// 其他使用者不受影響，但上傳失敗時回應 500
	env.uploader.err = errors.New("bucket unavailable")
	rec = env.do(t, http.MethodPost, "/api/images", pngHeader, signToken(t, "user-2", "u2@example.com", ""))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestImages_NoUploader(t *testing.T) {
	service, err := market.NewService(memory.NewStore())
	require.NoError(t, err)
	server, err := New(service, testSecret)
	require.NoError(t, err)
	t.Cleanup(server.Close)

	req := httptest.NewRequest(http.MethodPost, "/api/images", bytes.NewReader(pngHeader))
	req.Header.Set("Authorization", "Bearer "+signToken(t, "user-1", "user@example.com", ""))
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAuctionEvents(t *testing.T) {
	env := setupServer(t)
	owner := signToken(t, "owner", "owner@example.com", "")
	id := env.createAuction(t, owner)

	rec := env.do(t, http.MethodGet, "/api/auctions/missing/events", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	server := httptest.NewServer(env.router)
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/api/auctions/"+id+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	payload, _ := json.Marshal(bid("Ana", "ana@example.com", "110"))
	bidResp, err := http.Post(server.URL+"/api/auctions/"+id+"/bids", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	bidResp.Body.Close()
	require.Equal(t, http.StatusOK, bidResp.StatusCode)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	timeout := time.After(5 * time.Second)
	var sawEvent bool
	for {
		select {
		case line, ok := <-lines:
			require.True(t, ok, "stream closed before the event arrived")
			if line == "event:bid_placed" {
				sawEvent = true
				continue
			}
			if sawEvent && strings.HasPrefix(line, "data:") {
				assert.Contains(t, line, `"productId":"`+id+`"`)
				assert.Contains(t, line, `"bidCount":1`)
				return
			}
		case <-timeout:
			t.Fatal("timed out waiting for bid event")
		}
	}
}

func TestHealth(t *testing.T) {
	env := setupServer(t,
		WithServerHealthCheck("postgres", func(context.Context) error { return nil }),
	)
	rec := env.do(t, http.MethodGet, "/api/healthz", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["checks"].(map[string]any)["postgres"])

	env = setupServer(t,
		WithServerHealthCheck("redis", func(context.Context) error { return errors.New("connection refused") }),
	)
	rec = env.do(t, http.MethodGet, "/api/healthz", nil, "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "connection refused", decode(t, rec)["checks"].(map[string]any)["redis"])
}

func TestServer_StartClose(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	service, err := market.NewService(memory.NewStore())
	require.NoError(t, err)

	var mu sync.Mutex
	var order []string
	record := func(s string) {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, s)
	}
	workerDone := make(chan struct{})
	server, err := New(service, testSecret,
		WithServerComponent("first", func() { record("start first") }, func() { record("stop first") }),
		WithServerComponent("second", func() { record("start second") }, func() { record("stop second") }),
		WithServerComponent("closer", nil, func() { record("stop closer") }),
		WithServerWorker("loop", func(ctx context.Context) {
			<-ctx.Done()
			close(workerDone)
		}),
	)
	require.NoError(t, err)

	server.Start()
	server.Close()

	select {
	case <-workerDone:
	default:
		t.Fatal("worker did not stop before Close returned")
	}
	assert.Equal(t, []string{"start first", "start second", "stop closer", "stop second", "stop first"}, order)
}
