// Benchmark drives load at a Prism gateway, or at an in-process mock gateway
// when no -target is given. The vegeta attack measures the raw endpoint; the
// -client phase sends the same load through the prism client so decoding and
// reconstruction overhead shows up next to it.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nulzo/prism-go/internal/mockgateway"
	"github.com/nulzo/prism-go/pkg/api"
	"github.com/nulzo/prism-go/pkg/prism"
	vegeta "github.com/tsenart/vegeta/v12/lib"
	"go.uber.org/zap"
)

const mockAddr = "localhost:9091"

func main() {
	duration := flag.Duration("duration", 10*time.Second, "Duration of each phase")
	rate := flag.Int("rate", 50, "Requests per second")
	stream := flag.Bool("stream", false, "Use streaming requests")
	chaos := flag.Bool("chaos", false, "Simulate random client disconnections")
	client := flag.Bool("client", false, "Also run the load through the prism client")
	target := flag.String("target", "", "Gateway base URL, e.g. http://localhost:8080/v1 (default: in-process mock)")
	model := flag.String("model", mockgateway.ModelEcho, "Model to request")
	apiKey := flag.String("api-key", "bench-key-12345", "Bearer token sent with every request")
	delay := flag.Duration("delay", 10*time.Millisecond, "Mock gateway delay between streamed chunks")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	baseURL := *target
	if baseURL == "" {
		gin.SetMode(gin.ReleaseMode)
		srv := mockgateway.New(mockgateway.Config{ChunkDelay: *delay}, zap.NewNop())
		go func() {
			if err := srv.ListenAndServe(ctx, mockAddr); err != nil {
				log.Fatalf("mock gateway failed: %v", err)
			}
		}()
		baseURL = "http://" + mockAddr + "/v1"
		waitForApp(strings.TrimSuffix(baseURL, "/v1") + "/health")
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	// signal channel to stop background tasks (monitor, chaos monkey)
	done := make(chan struct{})
	go monitorResources(done)

	req := &api.ChatRequest{
		Model:    *model,
		Messages: []api.ChatMessage{api.NewMessage(api.User, "Hello benchmark")},
		Stream:   *stream,
	}

	pc := prism.NewClient(*apiKey, prism.WithBaseURL(baseURL), prism.WithTimeout(30*time.Second))
	if *chaos {
		fmt.Println("CHAOS MODE ENABLED: Starting Chaos Monkey sidecar...")
		go startChaosMonkey(pc, req, clamp(*rate/10, 5, 50), done)
	}

	mode := "Buffered"
	if *stream {
		mode = "Streaming"
	}
	fmt.Printf("Running %s benchmark against %s: %s duration, %d req/s\n", mode, baseURL, *duration, *rate)

	body, err := json.Marshal(req)
	if err != nil {
		log.Fatalf("failed to encode request: %v", err)
	}
	targeter := vegeta.NewStaticTargeter(vegeta.Target{
		Method: http.MethodPost,
		URL:    baseURL + "/chat/completions",
		Body:   body,
		Header: http.Header{
			"Content-Type":  []string{"application/json"},
			"Authorization": []string{"Bearer " + *apiKey},
		},
	})

	attacker := vegeta.NewAttacker(vegeta.KeepAlive(true))
	var metrics vegeta.Metrics
	for res := range attacker.Attack(targeter, vegeta.Rate{Freq: *rate, Per: time.Second}, *duration, "Benchmark") {
		metrics.Add(res)
		if ctx.Err() != nil {
			attacker.Stop()
		}
	}
	metrics.Close()
	report("raw http", &metrics)

	if *client && ctx.Err() == nil {
		fmt.Printf("Running the same load through the prism client...\n")
		cm := clientAttack(ctx, pc, req, *rate, *duration)
		report("prism client", cm)
	}

	close(done)
}

// clientAttack paces calls through the prism client at rate for duration and
// folds the outcomes into vegeta metrics.
func clientAttack(ctx context.Context, pc *prism.Client, req *api.ChatRequest, rate int, duration time.Duration) *vegeta.Metrics {
	ctx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		metrics vegeta.Metrics
	)

	ticker := time.NewTicker(time.Second / time.Duration(max(rate, 1)))
	defer ticker.Stop()

loop:
	for seq := uint64(0); ; seq++ {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
		}

		wg.Add(1)
		go func(seq uint64) {
			defer wg.Done()
			res := &vegeta.Result{Attack: "Client", Seq: seq, Method: http.MethodPost, Timestamp: time.Now()}

			// calls already in flight finish after the phase ends
			resp, err := pc.Chat(context.WithoutCancel(ctx), req)
			res.Latency = time.Since(res.Timestamp)
			if err != nil {
				res.Error = err.Error()
				if apiErr, ok := api.AsAPIError(err); ok {
					res.Code = uint16(apiErr.StatusCode)
				}
			} else {
				res.Code = http.StatusOK
				if choice := resp.FirstChoice(); choice != nil {
					res.BytesIn = uint64(len(choice.Message.Text()))
				}
			}

			mu.Lock()
			metrics.Add(res)
			mu.Unlock()
		}(seq)
	}

	wg.Wait()
	metrics.Close()
	return &metrics
}

func report(name string, metrics *vegeta.Metrics) {
	fmt.Println("--------------------------------------------------")
	fmt.Println(name)
	fmt.Println("99th percentile: ", metrics.Latencies.P99)
	fmt.Println("Mean:            ", metrics.Latencies.Mean)
	fmt.Println("Max:             ", metrics.Latencies.Max)
	fmt.Printf("Success:         %.2f%%\n", metrics.Success*100)
	fmt.Printf("Throughput:      %.2f req/s\n", metrics.Throughput)
	fmt.Println("--------------------------------------------------")

	if len(metrics.Errors) > 0 {
		fmt.Println("Error Set (first 5 unique):")

		uniqueErrors := make(map[string]bool)
		count := 0
		for _, msg := range metrics.Errors {
			if !uniqueErrors[msg] && count < 5 {
				fmt.Println(msg)

				uniqueErrors[msg] = true
				count++
			}
		}
	}
}

// startChaosMonkey opens streams and abandons them after a random delay, so
// the gateway sees clients vanish mid-stream.
func startChaosMonkey(pc *prism.Client, req *api.ChatRequest, concurrency int, done chan struct{}) {
	fmt.Printf("Starting Chaos Monkey with %d concurrent disrupters (random disconnects 1-200ms)\n", concurrency)

	for i := 0; i < concurrency; i++ {
		go func() {
			for {
				select {
				case <-done:
					return
				default:
				}

				timeout := time.Duration(rand.Intn(200)+1) * time.Millisecond
				ctx, cancel := context.WithTimeout(context.Background(), timeout)

				s, err := pc.ChatStream(ctx, req)
				if err == nil {
					for _, err := range s.Chunks() {
						if err != nil || rand.Intn(4) == 0 {
							break
						}
					}
					_ = s.Close()
				}
				cancel()

				// sleep briefly to control request rate per goroutine
				time.Sleep(time.Duration(rand.Intn(50)) * time.Millisecond)
			}
		}()
	}
}

// monitorResources prints heap and goroutine counts of this process once a
// second. With the in-process mock that covers both ends of the wire.
func monitorResources(done chan struct{}) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	fmt.Println("\n--- Resource Usage ---")
	fmt.Printf("% -10s % -10s % -10s % -10s\n", "Time", "Heap(MB)", "Alloc(MB)", "Goroutines")

	var ms runtime.MemStats
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			runtime.ReadMemStats(&ms)
			fmt.Printf("% -10s % -10.2f % -10.2f % -10d\n",
				time.Now().Format("15:04:05"),
				float64(ms.HeapInuse)/1024/1024,
				float64(ms.Alloc)/1024/1024,
				runtime.NumGoroutine(),
			)
		}
	}
}

func waitForApp(url string) {
	for i := 0; i < 20; i++ {
		resp, err := http.Get(url)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	log.Fatal("gateway timed out")
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
