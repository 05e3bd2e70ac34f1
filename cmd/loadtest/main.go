package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"

	"pc_store/internal/middleware"
	"pc_store/internal/order"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Result 记录单次请求的 HTTP 结果，便于聚合统计。
type Result struct {
	Status int
	Code   string
	Err    error
}

type target struct {
	baseURL string
	product string
	price   decimal.Decimal
	secret  string
}

func main() {
	baseURL := flag.String("base", "http://localhost:8080", "server base url")
	productID := flag.String("product", "", "product id (uuid)")
	secret := flag.String("jwt-secret", os.Getenv("JWT_SECRET"), "secret used to mint test tokens")

	// 超卖测试参数：200 个用户并发下单，库存远小于用户数
	nUsers := flag.Int("users", 200, "distinct users")
	concurrency := flag.Int("c", 50, "max concurrency")
	sameUser := flag.Int("same-user", 20, "concurrent checkouts from one user (lock / rate limit test)")
	flag.Parse()

	if _, err := uuid.Parse(*productID); err != nil {
		fmt.Fprintln(os.Stderr, "-product must be a product uuid")
		os.Exit(2)
	}
	if *secret == "" {
		fmt.Fprintln(os.Stderr, "-jwt-secret (or JWT_SECRET) is required")
		os.Exit(2)
	}

	client := &http.Client{Timeout: 10 * time.Second}

	stock, price, err := getStock(client, *baseURL, *productID)
	if err != nil {
		panic(fmt.Sprintf("stock check failed: %v", err))
	}
	fmt.Printf("initial stock: %d price: %s\n", stock, price)
	t := target{baseURL: *baseURL, product: *productID, price: price, secret: *secret}

	// 1) 不超卖测试：不同 user 并发
	fmt.Printf("start oversell test: product=%s users=%d concurrency=%d\n", *productID, *nUsers, *concurrency)
	results := run(*nUsers, *concurrency, func(idx int) Result {
		return placeOnce(client, t, fmt.Sprintf("loadtest-user-%d", idx+1))
	})
	printSummary("oversell", results)

	final, _, err := getStock(client, *baseURL, *productID)
	if err != nil {
		fmt.Println("stock check err:", err)
	} else {
		created := countStatus(results, http.StatusCreated)
		fmt.Printf("final stock: %d (created %d orders from %d)\n", final, created, stock)
		if final < 0 || int64(created) > stock {
			fmt.Println("OVERSOLD")
			os.Exit(1)
		}
	}

	// 2) 同一用户并发提交：期望看到 409 CHECKOUT_IN_PROGRESS 或 429
	fmt.Printf("\nstart same-user test: %d concurrent checkouts\n", *sameUser)
	results2 := run(*sameUser, *sameUser, func(int) Result {
		return placeOnce(client, t, "loadtest-same-user")
	})
	printSummary("same_user", results2)
}

func run(total, concurrency int, fn func(idx int) Result) []Result {
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	results := make([]Result, total)

	for i := 0; i < total; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()
			results[idx] = fn(idx)
		}(i)
	}

	wg.Wait()
	return results
}

func placeOnce(client *http.Client, t target, userID string) Result {
	token, err := middleware.IssueToken(t.secret, userID, "", time.Hour)
	if err != nil {
		return Result{Err: err}
	}
	shipping := decimal.Zero
	req := order.PlaceOrderRequest{
		OrderItems: []order.CartItem{{
			Product:  t.product,
			Price:    decimal.NewNullDecimal(t.price),
			Quantity: decimal.NewNullDecimal(decimal.NewFromInt(1)),
		}},
		ShippingAddress: order.ShippingInput{
			Name:    "Load Test",
			Email:   userID + "@loadtest.local",
			Address: "Calle 1 # 2-3",
			City:    "Bogota",
			Phone:   "3001234567",
		},
		PaymentMethod: "wompi",
		ItemsPrice:    t.price,
		ShippingPrice: shipping,
		TotalPrice:    t.price.Add(shipping),
	}
	b, _ := json.Marshal(req)
	httpReq, _ := http.NewRequest(http.MethodPost, t.baseURL+"/api/orders", bytes.NewReader(b))
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(httpReq)
	if err != nil {
		return Result{Err: err}
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	var env struct {
		Code string `json:"code"`
	}
	_ = json.Unmarshal(body, &env)
	return Result{Status: resp.StatusCode, Code: env.Code}
}

func countStatus(results []Result, status int) int {
	n := 0
	for _, r := range results {
		if r.Err == nil && r.Status == status {
			n++
		}
	}
	return n
}

// printSummary 聚合输出不同状态码 / 错误码分布。
func printSummary(name string, results []Result) {
	count := map[string]int{}
	errCount := 0
	for _, r := range results {
		if r.Err != nil {
			errCount++
			continue
		}
		key := fmt.Sprintf("%d", r.Status)
		if r.Code != "" {
			key += " " + r.Code
		}
		count[key]++
	}
	keys := make([]string, 0, len(count))
	for k := range count {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Printf("[%s] http status summary:\n", name)
	for _, k := range keys {
		fmt.Printf("  %s -> %d\n", k, count[k])
	}
	if errCount > 0 {
		fmt.Printf("  errors -> %d\n", errCount)
	}
}

// getStock 查询当前库存与售价，用于压测前构造请求、压测后校验是否超卖。
func getStock(client *http.Client, baseURL, productID string) (int64, decimal.Decimal, error) {
	resp, err := client.Get(fmt.Sprintf("%s/api/products/%s/stock", baseURL, productID))
	if err != nil {
		return 0, decimal.Zero, err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return 0, decimal.Zero, fmt.Errorf("status=%d body=%s", resp.StatusCode, string(b))
	}

	var out struct {
		Data struct {
			Stock int64           `json:"stock"`
			Price decimal.Decimal `json:"price"`
		} `json:"data"`
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return 0, decimal.Zero, err
	}
	return out.Data.Stock, out.Data.Price, nil
}
