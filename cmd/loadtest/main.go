package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const (
	codeTransportError = "transport_error"
	requestIDHeader    = "X-Request-ID"
)

type loadMode string

const (
	modeAdd      loadMode = "add"
	modeCheckout loadMode = "checkout"
)

type config struct {
	baseURL     string
	total       int
	totalSet    bool
	duration    time.Duration
	concurrency int
	timeout     time.Duration
	mode        loadMode
	productIDs  []int64
	quantity    int
	customerTag string
	outputPath  string
}

type latencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type methodReport struct {
	Calls     int64            `json:"calls"`
	Success   int64            `json:"success"`
	Rejected  int64            `json:"rejected"`
	Failed    int64            `json:"failed"`
	ErrorRate float64          `json:"error_rate"`
	Codes     map[string]int64 `json:"codes"`
	LatencyMs latencySummary   `json:"latency_ms"`
}

type report struct {
	StartedAt         time.Time               `json:"started_at"`
	DurationSeconds   float64                 `json:"duration_seconds"`
	TotalScenarios    int64                   `json:"total_scenarios"`
	SuccessScenarios  int64                   `json:"success_scenarios"`
	FailedScenarios   int64                   `json:"failed_scenarios"`
	ErrorRate         float64                 `json:"error_rate"`
	RPS               float64                 `json:"rps"`
	ScenarioLatencyMs latencySummary          `json:"scenario_latency_ms"`
	Methods           map[string]methodReport `json:"methods"`
	Inventory         *inventoryReport        `json:"inventory,omitempty"`
}

type methodStats struct {
	calls     int64
	success   int64
	rejected  int64
	failed    int64
	codes     map[string]int64
	latencies []float64
}

type collector struct {
	mu      sync.Mutex
	methods map[string]*methodStats
}

func newCollector() *collector {
	return &collector{
		methods: make(map[string]*methodStats),
	}
}

// record учитывает вызов. 4xx — ожидаемый отказ магазина (нет остатка,
// пустая корзина), сбоем считаются только 5xx и ошибки транспорта.
func (c *collector) record(method string, latency time.Duration, code string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, ok := c.methods[method]
	if !ok {
		stats = &methodStats{
			codes: make(map[string]int64),
		}
		c.methods[method] = stats
	}

	stats.calls++
	switch codeClass(code) {
	case classSuccess:
		stats.success++
	case classRejected:
		stats.rejected++
	default:
		stats.failed++
	}
	stats.codes[code]++
	stats.latencies = append(stats.latencies, float64(latency.Microseconds())/1000.0)
}

func (c *collector) buildReport(startedAt time.Time, duration time.Duration) report {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := report{
		StartedAt:       startedAt.UTC(),
		DurationSeconds: duration.Seconds(),
		Methods:         make(map[string]methodReport, len(c.methods)),
	}

	if scenarioStats := c.methods["scenario"]; scenarioStats != nil {
		result.TotalScenarios = scenarioStats.calls
		result.SuccessScenarios = scenarioStats.success + scenarioStats.rejected
		result.FailedScenarios = scenarioStats.failed
		result.ErrorRate = ratio(scenarioStats.failed, scenarioStats.calls)
		result.ScenarioLatencyMs = buildLatencySummary(scenarioStats.latencies)
	}
	if duration > 0 {
		result.RPS = float64(result.TotalScenarios) / duration.Seconds()
	}

	for name, stats := range c.methods {
		codesCopy := make(map[string]int64, len(stats.codes))
		for code, count := range stats.codes {
			codesCopy[code] = count
		}
		result.Methods[name] = methodReport{
			Calls:     stats.calls,
			Success:   stats.success,
			Rejected:  stats.rejected,
			Failed:    stats.failed,
			ErrorRate: ratio(stats.failed, stats.calls),
			Codes:     codesCopy,
			LatencyMs: buildLatencySummary(stats.latencies),
		}
	}

	return result
}

type responseClass int

const (
	classSuccess responseClass = iota
	classRejected
	classFailed
)

func codeClass(code string) responseClass {
	status, err := strconv.Atoi(code)
	switch {
	case err != nil:
		return classFailed
	case status < 400:
		return classSuccess
	case status < 500:
		return classRejected
	default:
		return classFailed
	}
}

func parseConfig(args []string) (config, error) {
	var cfg config
	var modeValue, timeoutValue, durationValue, productsValue string

	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	fs.StringVar(&cfg.baseURL, "url", "http://localhost:3001", "storefront base URL")
	fs.IntVar(&cfg.total, "total", 200, "total scenarios to execute in count mode; in duration mode only used when explicitly set")
	fs.StringVar(&durationValue, "duration", "0s", "optional time-based run duration (e.g. 1m)")
	fs.IntVar(&cfg.concurrency, "concurrency", 20, "number of concurrent workers")
	fs.StringVar(&timeoutValue, "timeout", "5s", "per-request timeout")
	fs.StringVar(&modeValue, "mode", string(modeCheckout), "load mode: add | checkout")
	fs.StringVar(&productsValue, "products", "1,2,3,4,5", "comma-separated product ids to add")
	fs.IntVar(&cfg.quantity, "quantity", 1, "quantity per add-to-cart request")
	fs.StringVar(&cfg.customerTag, "customer-tag", "load", "customer name prefix")
	fs.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	timeout, err := time.ParseDuration(strings.TrimSpace(timeoutValue))
	if err != nil {
		return cfg, fmt.Errorf("parse timeout: %w", err)
	}
	cfg.timeout = timeout

	duration, err := time.ParseDuration(strings.TrimSpace(durationValue))
	if err != nil {
		return cfg, fmt.Errorf("parse duration: %w", err)
	}
	cfg.duration = duration

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})

	if cfg.mode, err = parseMode(modeValue); err != nil {
		return cfg, err
	}
	if cfg.productIDs, err = parseProductIDs(productsValue); err != nil {
		return cfg, err
	}

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	switch {
	case cfg.baseURL == "":
		return cfg, errors.New("url is required")
	case cfg.duration < 0:
		return cfg, errors.New("duration must be >= 0")
	case cfg.duration == 0 && cfg.total <= 0:
		return cfg, errors.New("total must be > 0 when duration is not set")
	case cfg.duration > 0 && cfg.totalSet && cfg.total <= 0:
		return cfg, errors.New("total must be > 0 when explicitly set with duration")
	case cfg.concurrency <= 0:
		return cfg, errors.New("concurrency must be > 0")
	case cfg.timeout <= 0:
		return cfg, errors.New("timeout must be > 0")
	case cfg.quantity <= 0:
		return cfg, errors.New("quantity must be > 0")
	case strings.TrimSpace(cfg.customerTag) == "":
		return cfg, errors.New("customer-tag is required")
	}

	return cfg, nil
}

func parseMode(value string) (loadMode, error) {
	switch loadMode(strings.TrimSpace(value)) {
	case modeAdd:
		return modeAdd, nil
	case modeCheckout:
		return modeCheckout, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

func parseProductIDs(value string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid product id: %q", part)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, errors.New("at least one product id is required")
	}
	return ids, nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		log.WithError(err).Fatal("invalid config")
	}

	result, err := run(context.Background(), cfg, &http.Client{Timeout: cfg.timeout})
	if err != nil {
		log.WithError(err).Fatal("load test failed")
	}

	printReport(os.Stdout, result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			log.WithError(err).Fatal("failed to write report")
		}
	}

	if result.FailedScenarios > 0 || (result.Inventory != nil && result.Inventory.Oversold) {
		os.Exit(1)
	}
}

// run снимает остатки, гоняет сценарии и сверяет склад с журналом заказов.
func run(ctx context.Context, cfg config, httpClient *http.Client) (report, error) {
	client := newStorefrontClient(cfg.baseURL, httpClient, cfg.timeout)
	runID := uuid.NewString()
	logger := log.WithFields(log.Fields{"component": "loadtest", "run_id": runID})

	before, err := client.listProducts(ctx)
	if err != nil {
		return report{}, fmt.Errorf("snapshot products: %w", err)
	}
	ordersBefore, err := client.listOrders(ctx)
	if err != nil {
		return report{}, fmt.Errorf("snapshot orders: %w", err)
	}

	logger.WithFields(log.Fields{
		"mode":        cfg.mode,
		"target":      runTarget(cfg),
		"concurrency": cfg.concurrency,
	}).Info("load test started")

	startedAt := time.Now()
	col := newCollector()
	jobs := make(chan int, cfg.concurrency*2)

	var wg sync.WaitGroup
	for workerID := 0; workerID < cfg.concurrency; workerID++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				runScenario(ctx, client, cfg, id, runID, col)
			}
		}()
	}

	dispatchJobs(jobs, cfg)
	wg.Wait()

	result := col.buildReport(startedAt, time.Since(startedAt))

	after, err := client.listProducts(ctx)
	if err != nil {
		return result, fmt.Errorf("snapshot products after run: %w", err)
	}
	ordersAfter, err := client.listOrders(ctx)
	if err != nil {
		return result, fmt.Errorf("snapshot orders after run: %w", err)
	}

	inventory := checkInventory(before, after, ordersAfter[len(ordersBefore):])
	result.Inventory = &inventory
	if inventory.Oversold {
		logger.Error("inventory mismatch detected")
	}

	return result, nil
}

func dispatchJobs(jobs chan<- int, cfg config) {
	defer close(jobs)

	if cfg.duration <= 0 {
		for i := 0; i < cfg.total; i++ {
			jobs <- i
		}
		return
	}

	timer := time.NewTimer(cfg.duration)
	defer timer.Stop()

	for i := 0; ; i++ {
		if cfg.totalSet && i >= cfg.total {
			return
		}

		select {
		case <-timer.C:
			return
		case jobs <- i:
		}
	}
}

// runScenario добавляет товар в общую корзину и, в режиме checkout,
// сразу оформляет заказ. Корзина одна на процесс, поэтому сценарии
// конкурируют за неё и часть заказов получает отказ.
func runScenario(ctx context.Context, client *storefrontClient, cfg config, index int, runID string, col *collector) {
	scenarioStart := time.Now()
	scenarioCode := strconv.Itoa(http.StatusOK)
	defer func() {
		col.record("scenario", time.Since(scenarioStart), scenarioCode)
	}()

	productID := cfg.productIDs[index%len(cfg.productIDs)]
	requestID := fmt.Sprintf("%s-%d", runID, index)

	code := client.addToCart(ctx, productID, cfg.quantity, requestID, col)
	if codeClass(code) == classFailed {
		scenarioCode = code
		return
	}
	if cfg.mode == modeAdd {
		return
	}

	customer := fmt.Sprintf("%s-%d", cfg.customerTag, index)
	code = client.placeOrder(ctx, customer, customer+"@load.test", requestID, col)
	if codeClass(code) == classFailed {
		scenarioCode = code
	}
}

type product struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Stock int    `json:"stock"`
}

type orderItem struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

type order struct {
	ID    int64       `json:"id"`
	Items []orderItem `json:"items"`
}

type storefrontClient struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
}

func newStorefrontClient(baseURL string, httpClient *http.Client, timeout time.Duration) *storefrontClient {
	return &storefrontClient{baseURL: baseURL, http: httpClient, timeout: timeout}
}

func (c *storefrontClient) addToCart(ctx context.Context, productID int64, quantity int, requestID string, col *collector) string {
	body := map[string]any{"productId": productID, "quantity": quantity}
	return c.timedCall(ctx, "AddToCart", http.MethodPost, "/api/cart/add", body, requestID, col)
}

func (c *storefrontClient) placeOrder(ctx context.Context, name, email, requestID string, col *collector) string {
	body := map[string]string{"customerName": name, "customerEmail": email}
	return c.timedCall(ctx, "PlaceOrder", http.MethodPost, "/api/order", body, requestID, col)
}

func (c *storefrontClient) timedCall(ctx context.Context, method, httpMethod, path string, body any, requestID string, col *collector) string {
	start := time.Now()
	code, err := c.do(ctx, httpMethod, path, body, requestID, nil)
	if err != nil {
		code = codeTransportError
	}
	col.record(method, time.Since(start), code)
	return code
}

func (c *storefrontClient) listProducts(ctx context.Context) ([]product, error) {
	var resp struct {
		Products []product `json:"products"`
	}
	if err := c.get(ctx, "/api/products", &resp); err != nil {
		return nil, err
	}
	return resp.Products, nil
}

func (c *storefrontClient) listOrders(ctx context.Context) ([]order, error) {
	var resp struct {
		Orders []order `json:"orders"`
	}
	if err := c.get(ctx, "/api/orders", &resp); err != nil {
		return nil, err
	}
	return resp.Orders, nil
}

func (c *storefrontClient) get(ctx context.Context, path string, out any) error {
	code, err := c.do(ctx, http.MethodGet, path, nil, uuid.NewString(), out)
	if err != nil {
		return err
	}
	if code != strconv.Itoa(http.StatusOK) {
		return fmt.Errorf("GET %s: unexpected status %s", path, code)
	}
	return nil
}

// do выполняет запрос и возвращает HTTP-код строкой. out заполняется
// телом ответа, если передан.
func (c *storefrontClient) do(ctx context.Context, method, path string, body any, requestID string, out any) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return "", err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return "", err
	}
	req.Header.Set(requestIDHeader, requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return "", fmt.Errorf("decode %s response: %w", path, err)
		}
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}
	return strconv.Itoa(resp.StatusCode), nil
}

type productCheck struct {
	ProductID   int64  `json:"product_id"`
	Name        string `json:"name"`
	StockBefore int    `json:"stock_before"`
	StockAfter  int    `json:"stock_after"`
	Sold        int    `json:"sold"`
	Consistent  bool   `json:"consistent"`
}

type inventoryReport struct {
	Orders   int            `json:"orders"`
	Oversold bool           `json:"oversold"`
	Products []productCheck `json:"products"`
}

// checkInventory сверяет списание остатков с позициями новых заказов:
// склад не уходит в минус и уменьшился ровно на проданное.
func checkInventory(before, after []product, orders []order) inventoryReport {
	sold := make(map[int64]int)
	for _, o := range orders {
		for _, item := range o.Items {
			sold[item.ProductID] += item.Quantity
		}
	}

	stockAfter := make(map[int64]int, len(after))
	for _, p := range after {
		stockAfter[p.ID] = p.Stock
	}

	result := inventoryReport{Orders: len(orders), Products: make([]productCheck, 0, len(before))}
	for _, p := range before {
		check := productCheck{
			ProductID:   p.ID,
			Name:        p.Name,
			StockBefore: p.Stock,
			StockAfter:  stockAfter[p.ID],
			Sold:        sold[p.ID],
		}
		check.Consistent = check.StockAfter >= 0 &&
			check.Sold <= check.StockBefore &&
			check.StockBefore-check.Sold == check.StockAfter
		if !check.Consistent {
			result.Oversold = true
		}
		result.Products = append(result.Products, check)
	}
	return result
}

func writeJSONReport(path string, result report) error {
	cleanPath := filepath.Clean(path)
	if cleanPath == "." || cleanPath == string(filepath.Separator) {
		return errors.New("output path must point to a file")
	}
	if cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return fmt.Errorf("output path must be inside current directory: %s", path)
	}

	// #nosec G304 -- path is an explicit CLI output parameter for local load-test reports.
	file, err := os.Create(cleanPath)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func printReport(w io.Writer, result report, cfg config) {
	fmt.Fprintln(w, "Load test summary")
	fmt.Fprintf(w, "mode=%s run=%s total=%d success=%d failed=%d error_rate=%.4f\n",
		cfg.mode,
		runTarget(cfg),
		result.TotalScenarios,
		result.SuccessScenarios,
		result.FailedScenarios,
		result.ErrorRate,
	)
	fmt.Fprintf(w, "duration=%.2fs rps=%.2f\n", result.DurationSeconds, result.RPS)
	fmt.Fprintf(w, "scenario latency ms: min=%.2f avg=%.2f p50=%.2f p95=%.2f p99=%.2f max=%.2f\n",
		result.ScenarioLatencyMs.Min,
		result.ScenarioLatencyMs.Avg,
		result.ScenarioLatencyMs.P50,
		result.ScenarioLatencyMs.P95,
		result.ScenarioLatencyMs.P99,
		result.ScenarioLatencyMs.Max,
	)

	methodNames := make([]string, 0, len(result.Methods))
	for name := range result.Methods {
		if name == "scenario" {
			continue
		}
		methodNames = append(methodNames, name)
	}
	sort.Strings(methodNames)
	for _, name := range methodNames {
		stats := result.Methods[name]
		fmt.Fprintf(w,
			"%s: calls=%d success=%d rejected=%d failed=%d error_rate=%.4f p95=%.2fms\n",
			name,
			stats.Calls,
			stats.Success,
			stats.Rejected,
			stats.Failed,
			stats.ErrorRate,
			stats.LatencyMs.P95,
		)
	}

	if inv := result.Inventory; inv != nil {
		fmt.Fprintf(w, "inventory: orders=%d oversold=%t\n", inv.Orders, inv.Oversold)
		for _, p := range inv.Products {
			fmt.Fprintf(w, "  %d %s: before=%d sold=%d after=%d consistent=%t\n",
				p.ProductID, p.Name, p.StockBefore, p.Sold, p.StockAfter, p.Consistent)
		}
	}
}

func runTarget(cfg config) string {
	if cfg.duration <= 0 {
		return fmt.Sprintf("count:%d", cfg.total)
	}
	if cfg.totalSet {
		return fmt.Sprintf("duration:%s,max-total:%d", cfg.duration, cfg.total)
	}
	return fmt.Sprintf("duration:%s", cfg.duration)
}

func buildLatencySummary(values []float64) latencySummary {
	if len(values) == 0 {
		return latencySummary{}
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	var sum float64
	for _, value := range sorted {
		sum += value
	}

	return latencySummary{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: sum / float64(len(sorted)),
		P50: percentile(sorted, 50),
		P95: percentile(sorted, 95),
		P99: percentile(sorted, 99),
	}
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	rank := (p / 100.0) * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}

	weight := rank - float64(lower)
	return sorted[lower] + (sorted[upper]-sorted[lower])*weight
}

func ratio(failed, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(failed) / float64(total)
}
