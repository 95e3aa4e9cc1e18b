package perftests

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

// LoadScenario defines configurable benchmark parameters
type LoadScenario struct {
	Name            string
	NumUsers        int
	NumAuctions     int
	ReadRatio       int
	AutoBidRatio    int
	MaxBidIncrement int
	Burst           bool // if true, no delay between ops
}

// OperationMetrics collects latencies safely
type OperationMetrics struct {
	mu        sync.Mutex
	latencies []time.Duration
}

func (om *OperationMetrics) Record(d time.Duration) {
	om.mu.Lock()
	om.latencies = append(om.latencies, d)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (min, max, avg, p95, p99 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()
	if len(om.latencies) == 0 {
		return
	}
	latencies := append([]time.Duration(nil), om.latencies...)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	min = latencies[0]
	max = latencies[len(latencies)-1]

	var total time.Duration
	for _, d := range latencies {
		total += d
	}
	avg = total / time.Duration(len(latencies))
	p95 = latencies[int(0.95*float64(len(latencies)-1))]
	p99 = latencies[int(0.99*float64(len(latencies)-1))]
	return
}

// Benchmark_Load_AuctionEngine runs multiple scenarios
func Benchmark_Load_AuctionEngine(b *testing.B) {
	scenarios := []LoadScenario{
		{"Low-Contention-WriteHeavy", 200, 200, 0, 0, 50, false},
		{"High-Contention-WriteHeavy", 500, 10, 0, 1, 20, false},
		{"Mixed-Workload", 300, 50, 7, 1, 30, false},
		{"ReadHeavy", 200, 50, 9, 0, 20, false},
		{"Edge-Case-SingleAuction", 100, 1, 5, 2, 10, false},
		{"Peak-Burst", 500, 50, 0, 1, 20, true},
	}

	for _, s := range scenarios {
		b.Run(s.Name, func(b *testing.B) {
			runParallelScenario(b, s)
		})
	}
}

func runParallelScenario(b *testing.B, s LoadScenario) {
	b.ReportAllocs()
	ctx := context.Background()

	repo, svc := newBenchService()
	auctionIDs := make([]string, s.NumAuctions)
	for i := range auctionIDs {
		auctionIDs[i] = openAuction(b, repo, svc, fmt.Sprintf("product_%d", i))
	}

	var totalOps, successfulBids, rejectedBids, autoBids, totalReads int64
	auctionSuccess := make([]int64, s.NumAuctions)
	metrics := &OperationMetrics{}

	start := time.Now()

	b.RunParallel(func(pb *testing.PB) {
		rnd := rand.New(rand.NewSource(time.Now().UnixNano()))

		for pb.Next() {
			auctionIndex := rnd.Intn(s.NumAuctions)
			auctionID := auctionIDs[auctionIndex]
			userID := fmt.Sprintf("user_%d", rnd.Intn(s.NumUsers))
			opType := rnd.Intn(10)

			opStart := time.Now()
			switch {
			case opType < s.ReadRatio:
				_, _ = svc.GetAuction(ctx, auctionID)
				atomic.AddInt64(&totalReads, 1)
			case opType < s.ReadRatio+s.AutoBidRatio:
				ceiling := decimal.NewFromInt(int64(100 + rnd.Intn(10*s.MaxBidIncrement)))
				if _, err := svc.ConfigureAutoBid(ctx, userID, auctionID, ceiling); err == nil {
					atomic.AddInt64(&autoBids, 1)
				}
			default:
				a, err := svc.GetAuction(ctx, auctionID)
				if err != nil {
					b.Errorf("auction %s disappeared: %v", auctionID, err)
					return
				}
				amount := a.MinimumBid().Add(decimal.NewFromInt(int64(rnd.Intn(s.MaxBidIncrement))))
				if _, err := svc.PlaceBid(ctx, userID, auctionID, amount); err != nil {
					// outbid between read and write, or the caller already leads
					atomic.AddInt64(&rejectedBids, 1)
				} else {
					atomic.AddInt64(&successfulBids, 1)
					atomic.AddInt64(&auctionSuccess[auctionIndex], 1)
				}
			}

			metrics.Record(time.Since(opStart))
			atomic.AddInt64(&totalOps, 1)

			if !s.Burst {
				time.Sleep(time.Millisecond)
			}
		}
	})

	elapsed := time.Since(start)
	throughput := float64(totalOps) / elapsed.Seconds()
	min, max, avg, p95, p99 := metrics.Stats()

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	b.Logf(
		"Scenario: %s | Auctions: %d | Total Ops: %d | Bids: %d | Rejected: %d | Auto-bids: %d | Reads: %d | Elapsed: %s | Throughput: %.2f ops/sec | Latency(us) min: %.2f avg: %.2f max: %.2f p95: %.2f p99: %.2f | Memory Alloc: %.2f MB",
		s.Name, s.NumAuctions, totalOps, successfulBids, rejectedBids, autoBids, totalReads, elapsed,
		throughput,
		float64(min.Microseconds()), float64(avg.Microseconds()), float64(max.Microseconds()),
		float64(p95.Microseconds()), float64(p99.Microseconds()),
		float64(mem.Alloc)/1024/1024,
	)

	// every auction must still satisfy the ledger rules after the load
	for i, auctionID := range auctionIDs {
		a, err := svc.GetAuction(ctx, auctionID)
		if err != nil {
			b.Fatalf("get auction: %v", err)
		}
		bids, err := svc.GetBidsForAuction(ctx, auctionID)
		if err != nil {
			b.Fatalf("get bids: %v", err)
		}
		if len(bids) != a.BidCount {
			b.Fatalf("auction %s: bid count %d, ledger has %d bids", auctionID, a.BidCount, len(bids))
		}
		winning := 0
		for j, bid := range bids {
			if bid.IsWinning {
				winning++
			}
			if j > 0 && !bid.Amount.GreaterThan(bids[j-1].Amount) {
				b.Fatalf("auction %s: bid %d not above its predecessor", auctionID, j)
			}
		}
		if len(bids) > 0 && winning != 1 {
			b.Fatalf("auction %s: %d winning bids", auctionID, winning)
		}
		if v := auctionSuccess[i]; v > 0 {
			b.Logf("Auction %d manual bids accepted: %d", i, v)
		}
	}
}
