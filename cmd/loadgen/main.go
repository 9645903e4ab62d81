package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

// Config holds the load settings
var (
	targetURL   string
	callbackURL string
	issuerKey   string
	concurrency int
	duration    time.Duration
	chargebacks float64
)

// Metrics
var (
	totalRequests uint64
	accepted202   uint64
	rejected422   uint64
	failOther     uint64
)

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	flag.StringVar(&callbackURL, "callback", "http://localhost:9999/notice", "Issuer callback URL embedded in pay requests")
	flag.StringVar(&issuerKey, "issuer", "loadgen-issuer", "Issuer key with a registered secret")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.Float64Var(&chargebacks, "chargebacks", 0.2, "Share of simulated chargebacks")
}

func main() {
	flag.Parse()
	log.Printf("Starting load: %s | Workers: %d | Duration: %s", targetURL, concurrency, duration)

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)

	for i := 0; i < concurrency; i++ {
		go worker(&wg, start)
	}

	wg.Wait()
	printResults(time.Since(start))
}

func worker(wg *sync.WaitGroup, start time.Time) {
	defer wg.Done()
	client := resty.New().SetBaseURL(targetURL).SetTimeout(5 * time.Second)

	for time.Since(start) < duration {
		resp, err := client.R().
			SetBody(simulateRequest()).
			Post("/api/v1/simulate")
		if err != nil {
			atomic.AddUint64(&failOther, 1)
			continue
		}

		atomic.AddUint64(&totalRequests, 1)
		switch resp.StatusCode() {
		case 202:
			atomic.AddUint64(&accepted202, 1)
		case 422:
			atomic.AddUint64(&rejected422, 1)
		default:
			atomic.AddUint64(&failOther, 1)
		}
	}
}

func simulateRequest() map[string]interface{} {
	simulation := map[string]string{"result": "postback"}
	if rand.Float64() < chargebacks {
		simulation = map[string]string{"result": "chargeback", "reason": "refund"}
		if rand.Float64() < 0.5 {
			simulation["reason"] = "reversal"
		}
	}
	return map[string]interface{}{
		"transaction_uuid": uuid.NewString(),
		"issuer_key":       issuerKey,
		"pay_request": map[string]interface{}{
			"iss": issuerKey,
			"typ": "mozilla/payments/pay/v1",
			"request": map[string]interface{}{
				"id":            "loadgen-item",
				"pricePoint":    1,
				"name":          "Load test item",
				"description":   "Simulated purchase",
				"postbackURL":   callbackURL,
				"chargebackURL": callbackURL,
			},
		},
		"simulation": simulation,
	}
}

func printResults(d time.Duration) {
	total := atomic.LoadUint64(&totalRequests)
	ok := atomic.LoadUint64(&accepted202)
	bad := atomic.LoadUint64(&rejected422)
	fErr := atomic.LoadUint64(&failOther)

	results := map[string]interface{}{
		"duration_sec":   d.Seconds(),
		"total_requests": total,
		"throughput_rps": float64(total) / d.Seconds(),
		"accepted":       ok,
		"rejected":       bad,
		"errors":         fErr,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(results)

	filename := fmt.Sprintf("loadgen_%d.json", time.Now().Unix())
	file, err := os.Create(filename)
	if err != nil {
		log.Printf("could not save results: %v", err)
		return
	}
	defer file.Close()
	json.NewEncoder(file).Encode(results)
}
