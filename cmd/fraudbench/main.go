// Benchmark tool for testing fraudrules against PaySim fraud data.
//
// Usage:
//   go run cmd/fraudbench/main.go -csv /path/to/paysim.csv -url http://localhost:8080 -nats nats://localhost:4222
//
// This tool:
//  1. Reads PaySim transaction data (with fraud labels).
//  2. Submits each transaction to fraudrules via POST /transactions.
//  3. Listens on the response topic (requires the Pro/NATS tier — the
//     Community channel bus is in-process only and unreachable from a
//     separate binary) and collects every RuleResult keyed by
//     transaction_id within a bounded wait window.
//  4. Compares the aggregate verdict (any FRAUD/CRITICAL result counts
//     as a predicted alert) against the PaySim label and reports
//     precision, recall, F1, and a confusion matrix.
package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fraudrules/fraudrules/internal/bus"
	"github.com/fraudrules/fraudrules/internal/domain"
)

// PaySimTransaction represents a row from the PaySim dataset.
type PaySimTransaction struct {
	Step           int
	Type           string
	Amount         float64
	NameOrig       string
	OldBalanceOrg  float64
	NewBalanceOrig float64
	NameDest       string
	OldBalanceDest float64
	NewBalanceDest float64
	IsFraud        bool
	IsFlaggedFraud bool
}

// Metrics tracks benchmark results.
type Metrics struct {
	TruePositives  int64
	FalsePositives int64
	TrueNegatives  int64
	FalseNegatives int64

	TotalProcessed int64
	TotalFraud     int64
	TotalNonFraud  int64
	TotalErrors    int64

	ProcessingTimeMs int64
}

// resultCollector gathers RuleResults from the response topic, keyed
// by transaction_id, for later lookup by the submitting goroutine.
type resultCollector struct {
	mu      sync.Mutex
	results map[string][]*domain.RuleResult
}

func newResultCollector() *resultCollector {
	return &resultCollector{results: make(map[string][]*domain.RuleResult)}
}

func (c *resultCollector) add(result *domain.RuleResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[result.TransactionID] = append(c.results[result.TransactionID], result)
}

// predicted reports whether any collected result for txID rose to
// FRAUD or CRITICAL.
func (c *resultCollector) predicted(txID string) (predicted bool, count int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	results := c.results[txID]
	for _, r := range results {
		if r.Status == domain.StatusFraud || r.Status == domain.StatusCritical {
			predicted = true
		}
	}
	return predicted, len(results)
}

func main() {
	csvPath := flag.String("csv", "", "Path to PaySim CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "fraudrules HTTP base URL")
	natsURL := flag.String("nats", "nats://localhost:4222", "NATS URL fraudrules publishes results to (Pro tier only)")
	limit := flag.Int("limit", 10000, "Maximum transactions to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent submission workers")
	fraudOnly := flag.Bool("fraud-only", false, "Only test fraud transactions")
	sampleRate := flag.Float64("sample", 1.0, "Sample rate for non-fraud (0.0-1.0)")
	waitFor := flag.Duration("wait", 2*time.Second, "How long to wait for results after each submission")
	verbose := flag.Bool("verbose", false, "Print each transaction result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: fraudbench -csv /path/to/paysim.csv [-url http://localhost:8080] [-nats nats://localhost:4222]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("============================================================")
	fmt.Println(" fraudbench - PaySim fraud detection benchmark")
	fmt.Println("============================================================")
	fmt.Printf("\nCSV File:    %s\n", *csvPath)
	fmt.Printf("Base URL:    %s\n", *baseURL)
	fmt.Printf("NATS URL:    %s\n", *natsURL)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Limit:       %d\n", *limit)
	fmt.Printf("Fraud Only:  %v\n", *fraudOnly)
	fmt.Printf("Sample Rate: %.2f\n", *sampleRate)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: fraudrules not reachable at %s: %v\n", *baseURL, err)
		os.Exit(1)
	}
	fmt.Println("fraudrules is healthy")

	eventBus, err := bus.NewNATSBus(domain.EventBusConfig{NATSUrl: *natsURL})
	if err != nil {
		fmt.Printf("ERROR: failed to connect to NATS at %s: %v\n", *natsURL, err)
		fmt.Println("fraudbench requires the Pro/NATS tier to observe results out-of-process.")
		os.Exit(1)
	}
	defer eventBus.Close()

	collector := newResultCollector()
	_, err = eventBus.Subscribe(context.Background(), "_global", domain.TopicResponse, func(ctx context.Context, msg *domain.Message) error {
		var result domain.RuleResult
		if err := json.Unmarshal(msg.Payload, &result); err != nil {
			return err
		}
		collector.add(&result)
		return nil
	})
	if err != nil {
		fmt.Printf("ERROR: failed to subscribe to response topic: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\nReading PaySim data from %s...\n", *csvPath)
	transactions, err := readPaySimCSV(*csvPath, *limit, *fraudOnly, *sampleRate)
	if err != nil {
		fmt.Printf("ERROR: failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded %d transactions\n", len(transactions))

	fraudCount := 0
	for _, tx := range transactions {
		if tx.IsFraud {
			fraudCount++
		}
	}
	fmt.Printf("  - Fraud:     %d (%.2f%%)\n", fraudCount, 100*float64(fraudCount)/float64(len(transactions)))
	fmt.Printf("  - Non-fraud: %d (%.2f%%)\n", len(transactions)-fraudCount, 100*float64(len(transactions)-fraudCount)/float64(len(transactions)))

	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(transactions, *baseURL, collector, *workers, *waitFor, *verbose)
	duration := time.Since(startTime)

	printResults(metrics, duration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusServiceUnavailable {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

func readPaySimCSV(path string, limit int, fraudOnly bool, sampleRate float64) ([]PaySimTransaction, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(col)] = i
	}

	var transactions []PaySimTransaction
	sampleCounter := 0

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}

		isFraud := record[colIndex["isfraud"]] == "1"

		if fraudOnly && !isFraud {
			continue
		}
		if !isFraud && sampleRate < 1.0 {
			sampleCounter++
			if float64(sampleCounter%100)/100.0 >= sampleRate {
				continue
			}
		}

		step, _ := strconv.Atoi(record[colIndex["step"]])
		amount, _ := strconv.ParseFloat(record[colIndex["amount"]], 64)
		oldBalanceOrg, _ := strconv.ParseFloat(record[colIndex["oldbalanceorg"]], 64)
		newBalanceOrig, _ := strconv.ParseFloat(record[colIndex["newbalanceorig"]], 64)
		oldBalanceDest, _ := strconv.ParseFloat(record[colIndex["oldbalancedest"]], 64)
		newBalanceDest, _ := strconv.ParseFloat(record[colIndex["newbalancedest"]], 64)
		isFlaggedFraud := record[colIndex["isflaggedfraud"]] == "1"

		transactions = append(transactions, PaySimTransaction{
			Step:           step,
			Type:           record[colIndex["type"]],
			Amount:         amount,
			NameOrig:       record[colIndex["nameorig"]],
			OldBalanceOrg:  oldBalanceOrg,
			NewBalanceOrig: newBalanceOrig,
			NameDest:       record[colIndex["namedest"]],
			OldBalanceDest: oldBalanceDest,
			NewBalanceDest: newBalanceDest,
			IsFraud:        isFraud,
			IsFlaggedFraud: isFlaggedFraud,
		})

		if limit > 0 && len(transactions) >= limit {
			break
		}
	}

	return transactions, nil
}

func runBenchmark(transactions []PaySimTransaction, baseURL string, collector *resultCollector, numWorkers int, waitFor time.Duration, verbose bool) *Metrics {
	metrics := &Metrics{}

	work := make(chan struct {
		tx  PaySimTransaction
		seq int
	}, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for item := range work {
				tx := item.tx
				txID := fmt.Sprintf("paysim-%d", item.seq)

				start := time.Now()
				err := submitTransaction(client, baseURL, txID, tx)
				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					atomic.AddInt64(&metrics.TotalProcessed, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", txID, err)
					}
					continue
				}

				time.Sleep(waitFor)
				predicted, resultCount := collector.predicted(txID)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				actual := tx.IsFraud
				if actual {
					atomic.AddInt64(&metrics.TotalFraud, 1)
				} else {
					atomic.AddInt64(&metrics.TotalNonFraud, 1)
				}

				switch {
				case predicted && actual:
					atomic.AddInt64(&metrics.TruePositives, 1)
				case predicted && !actual:
					atomic.AddInt64(&metrics.FalsePositives, 1)
				case !predicted && !actual:
					atomic.AddInt64(&metrics.TrueNegatives, 1)
				default:
					atomic.AddInt64(&metrics.FalseNegatives, 1)
				}

				if verbose {
					mark := "OK"
					if (predicted && !actual) || (!predicted && actual) {
						mark = "MISS"
					}
					fmt.Printf("%-4s %-16s | type: %-8s | amount: %12.2f | fraud: %-5v | predicted: %-5v | results: %d\n",
						mark, txID, tx.Type, tx.Amount, tx.IsFraud, predicted, resultCount)
				}
			}
		}()
	}

	for i, tx := range transactions {
		work <- struct {
			tx  PaySimTransaction
			seq int
		}{tx, i}
	}
	close(work)

	wg.Wait()
	return metrics
}

func submitTransaction(client *http.Client, baseURL, txID string, tx PaySimTransaction) error {
	txn := domain.Transaction{
		TransactionID:   txID,
		SenderAccount:   tx.NameOrig,
		ReceiverAccount: tx.NameDest,
		Amount:          tx.Amount,
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
		TransactionType: mapPaySimType(tx.Type),
	}

	body, err := json.Marshal(txn)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+"/transactions", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

func mapPaySimType(paysimType string) string {
	switch paysimType {
	case "CASH_IN":
		return domain.TransactionTypeDeposit
	case "CASH_OUT", "DEBIT":
		return domain.TransactionTypeWithdrawal
	case "TRANSFER":
		return domain.TransactionTypeTransfer
	default:
		return domain.TransactionTypePayment
	}
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n============================================================")
	fmt.Println(" BENCHMARK RESULTS")
	fmt.Println("============================================================")

	fmt.Printf("\nDataset statistics\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Total Fraud:      %d\n", m.TotalFraud)
	fmt.Printf("   Total Non-Fraud:  %d\n", m.TotalNonFraud)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	fmt.Printf("\nConfusion matrix\n")
	fmt.Println("                        Predicted")
	fmt.Println("                   fraud       clean")
	fmt.Printf("   Actual  fraud  %8d    %8d   (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Printf("           clean  %8d    %8d   (FP, TN)\n", m.FalsePositives, m.TrueNegatives)

	precision := float64(0)
	if m.TruePositives+m.FalsePositives > 0 {
		precision = float64(m.TruePositives) / float64(m.TruePositives+m.FalsePositives)
	}
	recall := float64(0)
	if m.TruePositives+m.FalseNegatives > 0 {
		recall = float64(m.TruePositives) / float64(m.TruePositives+m.FalseNegatives)
	}
	f1 := float64(0)
	if precision+recall > 0 {
		f1 = 2 * (precision * recall) / (precision + recall)
	}
	accuracy := float64(0)
	total := m.TruePositives + m.TrueNegatives + m.FalsePositives + m.FalseNegatives
	if total > 0 {
		accuracy = float64(m.TruePositives+m.TrueNegatives) / float64(total)
	}

	fmt.Printf("\nDetection metrics\n")
	fmt.Printf("   Precision:  %.4f\n", precision)
	fmt.Printf("   Recall:     %.4f\n", recall)
	fmt.Printf("   F1-Score:   %.4f\n", f1)
	fmt.Printf("   Accuracy:   %.4f\n", accuracy)

	fmt.Printf("\nPerformance\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		tps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f tx/sec\n", tps)
	}
	fmt.Println()
}
