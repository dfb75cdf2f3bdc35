package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// BenchmarkConfig holds benchmark configuration
type BenchmarkConfig struct {
	BaseURL       string
	NumNodes      int
	DrivesPerNode int
	Duration      time.Duration
	IngestWorkers int
	ReadWorkers   int
	AllocWorkers  int
	ReadInterval  time.Duration
	AllocInterval time.Duration
	AllocCapacity string
	SkipSetup     bool
	APIKey        string
	HTTPClient    *http.Client // Shared HTTP client for connection pooling
}

// Metrics holds benchmark metrics per operation class
type Metrics struct {
	Ingest   *OpMetrics
	Read     *OpMetrics
	Allocate *OpMetrics
}

// OpMetrics holds latencies and counters for one operation class
type OpMetrics struct {
	Latencies  []float64
	Errors     int64
	Success    int64
	Total      int64
	FirstError string
	mu         sync.Mutex
}

func (m *OpMetrics) record(latency float64, err error) {
	m.mu.Lock()
	m.Latencies = append(m.Latencies, latency)
	if err != nil && m.FirstError == "" {
		m.FirstError = err.Error()
	}
	m.mu.Unlock()

	if err != nil {
		atomic.AddInt64(&m.Errors, 1)
	} else {
		atomic.AddInt64(&m.Success, 1)
	}
	atomic.AddInt64(&m.Total, 1)
}

// Result represents benchmark results
type Result struct {
	Operation  string
	TotalOps   int64
	SuccessOps int64
	ErrorOps   int64
	Duration   time.Duration
	Throughput float64 // ops/sec
	AvgLatency float64 // ms
	MinLatency float64 // ms
	MaxLatency float64 // ms
	P50Latency float64 // ms
	P95Latency float64 // ms
	P99Latency float64 // ms
	ErrorMsg   string  // First error message
}

func main() {
	// Parse flags
	config := BenchmarkConfig{}
	flag.StringVar(&config.BaseURL, "url", "http://127.0.0.1:8080", "Base URL of the control plane API")
	flag.IntVar(&config.NumNodes, "nodes", 1000, "Number of simulated nodes")
	flag.IntVar(&config.DrivesPerNode, "drives", 8, "Drives per simulated node")
	flag.DurationVar(&config.Duration, "duration", 60*time.Second, "Benchmark duration")
	flag.IntVar(&config.IngestWorkers, "ingest-workers", 16, "Concurrent node ingest workers")
	flag.IntVar(&config.ReadWorkers, "read-workers", 8, "Concurrent capacity/pool read workers")
	flag.IntVar(&config.AllocWorkers, "alloc-workers", 2, "Concurrent allocation workers")
	flag.DurationVar(&config.ReadInterval, "read-interval", 5*time.Millisecond, "Interval between reads per worker")
	flag.DurationVar(&config.AllocInterval, "alloc-interval", 100*time.Millisecond, "Interval between allocations per worker")
	flag.StringVar(&config.AllocCapacity, "alloc-capacity", "1Gi", "Capacity requested per allocation")
	flag.StringVar(&config.APIKey, "api-key", "", "API key for authentication")
	flag.BoolVar(&config.SkipSetup, "skip-setup", false, "Skip the initial node registration pass")
	flag.Parse()
	// Create shared HTTP client with connection pooling
	config.HTTPClient = &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	fmt.Printf("=== Unistor Control Plane Benchmark ===\n")
	fmt.Printf("Configuration:\n")
	fmt.Printf("  URL: %s\n", config.BaseURL)
	fmt.Printf("  Nodes: %d\n", config.NumNodes)
	fmt.Printf("  Drives per Node: %d\n", config.DrivesPerNode)
	fmt.Printf("  Duration: %s\n", config.Duration)
	fmt.Printf("  Ingest Workers: %d\n", config.IngestWorkers)
	fmt.Printf("  Read Workers: %d\n", config.ReadWorkers)
	fmt.Printf("  Alloc Workers: %d\n", config.AllocWorkers)
	fmt.Printf("  Alloc Capacity: %s\n", config.AllocCapacity)
	fmt.Printf("\n")

	if !config.SkipSetup {
		if err := registerNodes(config); err != nil {
			fmt.Printf("Warning: node registration incomplete: %v\n", err)
		}
	} else {
		fmt.Printf("Skipping node registration (using existing registry)\n")
	}

	metrics := runBenchmark(config)

	results := []Result{
		calculateResult("Ingest", metrics.Ingest, config.Duration),
		calculateResult("Read", metrics.Read, config.Duration),
		calculateResult("Allocate", metrics.Allocate, config.Duration),
	}

	fmt.Printf("\n=== Benchmark Results ===\n\n")
	for _, r := range results {
		displayResult(r)
		fmt.Println()
	}

	saveResults(config, results)
}

// registerNodes ingests every simulated node once so reads and allocations
// see a populated registry from the start
func registerNodes(config BenchmarkConfig) error {
	var failed int
	for i := 0; i < config.NumNodes; i++ {
		if err := ingestNode(config, i, 0); err != nil {
			failed++
		}
	}
	fmt.Printf("Registered %d nodes (%d failed)\n", config.NumNodes-failed, failed)
	if failed > 0 {
		return fmt.Errorf("%d node registrations failed", failed)
	}
	return nil
}

func nodeName(i int) string {
	return fmt.Sprintf("bench-node-%05d", i)
}

// nodeFacts builds a deterministic drive mix: NVMe, SSD and HDD in turn
func nodeFacts(config BenchmarkConfig, node, round int) map[string]interface{} {
	drives := make([]map[string]interface{}, 0, config.DrivesPerNode)
	for d := 0; d < config.DrivesPerNode; d++ {
		drive := map[string]interface{}{
			"smart_health":      "healthy",
			"model_fingerprint": "bench",
		}
		switch d % 3 {
		case 0:
			drive["drive_id"] = fmt.Sprintf("nvme%dn1", d)
			drive["drive_type"] = "nvme"
			drive["capacity_bytes"] = uint64(3840) << 30
		case 1:
			drive["drive_id"] = fmt.Sprintf("sd%c", 'a'+d)
			drive["drive_type"] = "ssd"
			drive["capacity_bytes"] = uint64(1920) << 30
		default:
			drive["drive_id"] = fmt.Sprintf("sd%c", 'a'+d)
			drive["drive_type"] = "hdd"
			drive["capacity_bytes"] = uint64(16000) << 30
		}
		drives = append(drives, drive)
	}
	return map[string]interface{}{
		"drives":       drives,
		"fault_domain": fmt.Sprintf("rack-%02d", node%16),
		"labels":       map[string]string{"bench-round": fmt.Sprintf("%d", round%4)},
	}
}

func ingestNode(config BenchmarkConfig, node, round int) error {
	url := fmt.Sprintf("%s/v1/nodes/%s", config.BaseURL, nodeName(node))
	return makeRequest(config, "PUT", url, nodeFacts(config, node, round))
}

func runBenchmark(config BenchmarkConfig) *Metrics {
	metrics := &Metrics{
		Ingest:   &OpMetrics{Latencies: make([]float64, 0, 10000)},
		Read:     &OpMetrics{Latencies: make([]float64, 0, 10000)},
		Allocate: &OpMetrics{Latencies: make([]float64, 0, 1000)},
	}

	var wg sync.WaitGroup
	stopCh := make(chan struct{})
	startTime := time.Now()

	for i := 0; i < config.IngestWorkers; i++ {
		wg.Add(1)
		go ingestWorker(i, config, metrics.Ingest, stopCh, &wg)
	}

	for i := 0; i < config.ReadWorkers; i++ {
		wg.Add(1)
		go readWorker(i, config, metrics.Read, stopCh, &wg)
	}

	for i := 0; i < config.AllocWorkers; i++ {
		wg.Add(1)
		go allocWorker(i, config, metrics.Allocate, stopCh, &wg)
	}

	// Progress reporter
	go progressReporter(metrics, config.Duration, startTime)

	// Wait for duration
	time.Sleep(config.Duration)
	close(stopCh)
	wg.Wait()

	return metrics
}

// ingestWorker re-ingests a rotating slice of nodes, the same write pattern
// node agents produce after periodic scans
func ingestWorker(id int, config BenchmarkConfig, m *OpMetrics, stopCh chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()

	node := id % config.NumNodes
	round := 1

	for {
		select {
		case <-stopCh:
			return
		default:
			start := time.Now()
			err := ingestNode(config, node, round)
			m.record(time.Since(start).Seconds()*1000, err)

			node += config.IngestWorkers
			if node >= config.NumNodes {
				node = id % config.NumNodes
				round++
			}
		}
	}
}

func readWorker(id int, config BenchmarkConfig, m *OpMetrics, stopCh chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(config.ReadInterval)
	defer ticker.Stop()

	paths := []string{"/v1/capacity", "/v1/pools", "/v1/nodes/" + nodeName(id%config.NumNodes)}
	n := 0

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			url := config.BaseURL + paths[n%len(paths)]
			n++

			start := time.Now()
			err := makeRequest(config, "GET", url, nil)
			m.record(time.Since(start).Seconds()*1000, err)
		}
	}
}

// allocWorker provisions small volumes; 409 responses are counted as errors
// since they mean the simulated cluster ran out of room
func allocWorker(id int, config BenchmarkConfig, m *OpMetrics, stopCh chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(config.AllocInterval)
	defer ticker.Stop()

	types := []string{"block", "file", "object"}
	counter := 0

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			payload := map[string]interface{}{
				"name":        fmt.Sprintf("bench-%d-%d", id, counter),
				"storageType": types[counter%len(types)],
				"capacity":    config.AllocCapacity,
				"tier":        "auto",
			}
			counter++

			start := time.Now()
			err := makeRequest(config, "POST", config.BaseURL+"/v1/storage", payload)
			m.record(time.Since(start).Seconds()*1000, err)
		}
	}
}

func progressReporter(metrics *Metrics, duration time.Duration, startTime time.Time) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		<-ticker.C
		elapsed := time.Since(startTime)
		if elapsed >= duration {
			return
		}

		ingests := atomic.LoadInt64(&metrics.Ingest.Success)
		reads := atomic.LoadInt64(&metrics.Read.Success)
		allocs := atomic.LoadInt64(&metrics.Allocate.Success)

		remaining := duration - elapsed
		fmt.Printf("[%s remaining] Ingest: %d (%.0f/s, %d errors) | Read: %d (%.0f/s, %d errors) | Allocate: %d (%d errors)\n",
			remaining.Round(time.Second),
			ingests, float64(ingests)/elapsed.Seconds(), atomic.LoadInt64(&metrics.Ingest.Errors),
			reads, float64(reads)/elapsed.Seconds(), atomic.LoadInt64(&metrics.Read.Errors),
			allocs, atomic.LoadInt64(&metrics.Allocate.Errors))
	}
}

func makeRequest(config BenchmarkConfig, method, url string, data interface{}) error {
	var body io.Reader
	if data != nil {
		jsonData, err := json.Marshal(data)
		if err != nil {
			return err
		}
		body = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Connection", "keep-alive")
	if config.APIKey != "" {
		req.Header.Set("X-API-Key", config.APIKey)
	}

	resp, err := config.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	// Read and discard body to reuse connection
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	return nil
}

func calculateResult(operation string, m *OpMetrics, duration time.Duration) Result {
	latencies := m.Latencies
	success, errors, errorMsg := m.Success, m.Errors, m.FirstError
	if len(latencies) == 0 {
		return Result{
			Operation: operation,
			TotalOps:  success + errors,
			ErrorMsg:  errorMsg,
		}
	}

	// Sort for percentiles
	sort.Float64s(latencies)

	result := Result{
		Operation:  operation,
		TotalOps:   success + errors,
		SuccessOps: success,
		ErrorOps:   errors,
		Duration:   duration,
		Throughput: float64(success) / duration.Seconds(),
		MinLatency: latencies[0],
		MaxLatency: latencies[len(latencies)-1],
		P50Latency: percentile(latencies, 50),
		P95Latency: percentile(latencies, 95),
		P99Latency: percentile(latencies, 99),
		ErrorMsg:   errorMsg,
	}

	// Calculate average
	var sum float64
	for _, lat := range latencies {
		sum += lat
	}
	result.AvgLatency = sum / float64(len(latencies))

	return result
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	index := int(math.Ceil(float64(len(sorted)) * p / 100.0))
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}

func displayResult(r Result) {
	fmt.Printf("=== %s Operations ===\n", r.Operation)
	fmt.Printf("Total Operations: %d\n", r.TotalOps)
	fmt.Printf("Success:          %d (%.2f%%)\n", r.SuccessOps, float64(r.SuccessOps)/float64(r.TotalOps)*100)
	fmt.Printf("Errors:           %d (%.2f%%)\n", r.ErrorOps, float64(r.ErrorOps)/float64(r.TotalOps)*100)
	fmt.Printf("Duration:         %s\n", r.Duration)
	fmt.Printf("Throughput:       %.2f ops/sec\n", r.Throughput)
	if r.ErrorOps > 0 && len(r.ErrorMsg) > 0 {
		fmt.Printf("First Error:      %s\n", r.ErrorMsg)
	}
	fmt.Printf("\nLatency (ms):\n")
	fmt.Printf("  Min:  %.2f\n", r.MinLatency)
	fmt.Printf("  Avg:  %.2f\n", r.AvgLatency)
	fmt.Printf("  P50:  %.2f\n", r.P50Latency)
	fmt.Printf("  P95:  %.2f\n", r.P95Latency)
	fmt.Printf("  P99:  %.2f\n", r.P99Latency)
	fmt.Printf("  Max:  %.2f\n", r.MaxLatency)
}

func saveResults(config BenchmarkConfig, results []Result) {
	timestamp := time.Now().Format("20060102_150405")
	filename := fmt.Sprintf("benchmark_results/controlplane_benchmark_%s.txt", timestamp)

	f, err := os.Create(filename)
	if err != nil {
		fmt.Printf("Failed to create result file: %v\n", err)
		return
	}
	defer func() { _ = f.Close() }()

	_, _ = fmt.Fprintf(f, "=== Unistor Control Plane Benchmark Results ===\n")
	_, _ = fmt.Fprintf(f, "Date: %s\n\n", time.Now().Format("2006-01-02 15:04:05"))
	_, _ = fmt.Fprintf(f, "Configuration:\n")
	_, _ = fmt.Fprintf(f, "  URL: %s\n", config.BaseURL)
	_, _ = fmt.Fprintf(f, "  Nodes: %d\n", config.NumNodes)
	_, _ = fmt.Fprintf(f, "  Drives per Node: %d\n", config.DrivesPerNode)
	_, _ = fmt.Fprintf(f, "  Duration: %s\n", config.Duration)
	_, _ = fmt.Fprintf(f, "  Ingest Workers: %d\n", config.IngestWorkers)
	_, _ = fmt.Fprintf(f, "  Read Workers: %d\n", config.ReadWorkers)
	_, _ = fmt.Fprintf(f, "  Alloc Workers: %d\n", config.AllocWorkers)
	_, _ = fmt.Fprintf(f, "\n")

	for _, r := range results {
		writeResultToFile(f, r.Operation, r)
		_, _ = fmt.Fprintf(f, "\n")
	}

	fmt.Printf("\nResults saved to: %s\n", filename)
}

func writeResultToFile(f *os.File, name string, r Result) {
	_, _ = fmt.Fprintf(f, "=== %s Operations ===\n", name)
	_, _ = fmt.Fprintf(f, "Total Operations: %d\n", r.TotalOps)
	_, _ = fmt.Fprintf(f, "Success:          %d (%.2f%%)\n", r.SuccessOps, float64(r.SuccessOps)/float64(r.TotalOps)*100)
	_, _ = fmt.Fprintf(f, "Errors:           %d (%.2f%%)\n", r.ErrorOps, float64(r.ErrorOps)/float64(r.TotalOps)*100)
	_, _ = fmt.Fprintf(f, "Duration:         %s\n", r.Duration)
	_, _ = fmt.Fprintf(f, "Throughput:       %.2f ops/sec\n", r.Throughput)
	_, _ = fmt.Fprintf(f, "\nLatency (ms):\n")
	_, _ = fmt.Fprintf(f, "  Min:  %.2f\n", r.MinLatency)
	_, _ = fmt.Fprintf(f, "  Avg:  %.2f\n", r.AvgLatency)
	_, _ = fmt.Fprintf(f, "  P50:  %.2f\n", r.P50Latency)
	_, _ = fmt.Fprintf(f, "  P95:  %.2f\n", r.P95Latency)
	_, _ = fmt.Fprintf(f, "  P99:  %.2f\n", r.P99Latency)
	_, _ = fmt.Fprintf(f, "  Max:  %.2f\n", r.MaxLatency)
}
