package integrationtests

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	bidding "github.com/livebid/auction-engine/internal/biddingService"
	model "github.com/livebid/auction-engine/internal/models"
	"github.com/livebid/auction-engine/internal/notify"
	"github.com/livebid/auction-engine/internal/repository"
	"github.com/livebid/auction-engine/internal/scheduler"
	"github.com/livebid/auction-engine/internal/server"
	settlement "github.com/livebid/auction-engine/internal/settlementService"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

const (
	sellerID = "seller1"
	buyer1   = "buyer1"
	buyer2   = "buyer2"
)

// testClock is shared by both services so deadlines can be crossed on demand.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// TestEnv is a fully wired engine over the in-memory store. The queue is
// never run, so timers are recorded but only fire when a test says so.
type TestEnv struct {
	Router *gin.Engine
	Repo   *repository.MemoryRepo
	Queue  *scheduler.MemoryQueue
	Clock  *testClock
}

// SetupTestEnv initializes the router with in-memory repository for integration testing.
func SetupTestEnv(t *testing.T) *TestEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := repository.NewMemoryRepo()
	repo.AddUser(model.User{UserID: sellerID, Email: "seller1@example.com"})
	repo.AddUser(model.User{UserID: buyer1, Email: "buyer1@example.com"})
	repo.AddUser(model.User{UserID: buyer2, Email: "buyer2@example.com"})
	for _, id := range []string{"product1", "product2"} {
		repo.AddProduct(model.Product{
			ProductID:    id,
			SellerID:     sellerID,
			Title:        "Vintage film camera",
			ShippingCost: decimal.NewFromInt(8),
			Quantity:     1,
		})
	}

	clock := &testClock{now: time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)}
	queue := scheduler.NewMemoryQueue(scheduler.DefaultOptions())
	notifier := notify.NewStoreNotifier(repo)

	biddingSvc := bidding.NewBiddingService(repo, queue, bidding.WithClock(clock.Now), bidding.WithNotifier(notifier))
	settlementSvc := settlement.NewSettlementService(repo, queue,
		settlement.WithClock(clock.Now),
		settlement.WithNotifier(notifier),
		settlement.WithMailer(notify.LogMailer{From: "auctions@test.local"}),
	)

	return &TestEnv{
		Router: server.SetupRouter(biddingSvc, settlementSvc, nil),
		Repo:   repo,
		Queue:  queue,
		Clock:  clock,
	}
}

// ExecuteRequestAndParse executes an HTTP request as userID on the given
// router and returns the parsed envelope.
func ExecuteRequestAndParse(t *testing.T, router *gin.Engine, method, url, userID string, body any) (map[string]any, *httptest.ResponseRecorder) {
	t.Helper()
	var reqBody []byte
	var err error

	switch v := body.(type) {
	case nil:
	case []byte:
		reqBody = v
	case string:
		reqBody = []byte(v)
	default:
		reqBody, err = json.Marshal(v)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, url, bytes.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set(server.UserIDHeader, userID)
	}
	router.ServeHTTP(w, req)

	var resp map[string]any
	if len(w.Body.Bytes()) > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to unmarshal response: %v", err)
		}
	}
	return resp, w
}

// data returns the payload of a success envelope.
func data(t *testing.T, resp map[string]any) map[string]any {
	t.Helper()
	d, ok := resp["data"].(map[string]any)
	if !ok {
		t.Fatalf("response has no object payload: %v", resp)
	}
	return d
}

// createAuction opens a 60s auction on productID starting at 10 with a 1.00 increment.
func (e *TestEnv) createAuction(t *testing.T, productID string, extra map[string]any) map[string]any {
	t.Helper()
	body := map[string]any{
		"product_id":            productID,
		"starting_bid":          "10",
		"minimum_bid_increment": "1",
		"duration_seconds":      60,
	}
	for k, v := range extra {
		body[k] = v
	}
	resp, w := ExecuteRequestAndParse(t, e.Router, "POST", "/auctions", sellerID, body)
	if w.Code != 201 {
		t.Fatalf("create auction: status %d: %v", w.Code, resp)
	}
	return data(t, resp)
}
