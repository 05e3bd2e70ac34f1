package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pc_store/internal/checkout"
	"pc_store/internal/logger"
	"pc_store/internal/middleware"
	"pc_store/internal/order"
	"pc_store/internal/wompi"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	_ = godotenv.Load()

	baseURL := flag.String("base", "http://localhost:8080", "server base url")
	cartPath := flag.String("cart", "cart.json", "cart file (JSON array of items)")
	token := flag.String("token", os.Getenv("STORE_TOKEN"), "bearer token; minted from -jwt-secret when empty")
	secret := flag.String("jwt-secret", os.Getenv("JWT_SECRET"), "secret for minting a dev token")
	userID := flag.String("user", "storefront-user", "user id for a minted dev token")

	signing := flag.String("signing", "server", "where the integrity signature is computed: server | local")
	shippingPrice := flag.String("shipping-price", "0", "shipping price")
	method := flag.String("method", "wompi", "payment method")

	var ship order.ShippingInput
	flag.StringVar(&ship.Name, "name", "", "shipping name")
	flag.StringVar(&ship.Email, "email", "", "contact email")
	flag.StringVar(&ship.Address, "address", "", "shipping address")
	flag.StringVar(&ship.City, "city", "", "city")
	flag.StringVar(&ship.State, "state", "", "state")
	flag.StringVar(&ship.Phone, "phone", "", "phone")
	flag.StringVar(&ship.PostalCode, "postal-code", "", "postal code")
	flag.StringVar(&ship.LegalID, "legal-id", "", "legal id")
	flag.StringVar(&ship.LegalIDType, "legal-id-type", "", "legal id type (CC, NIT, ...)")

	// 轮询：只核对已有订单时用 -verify
	verifyOrder := flag.String("verify", "", "skip checkout and poll this order id")
	transactionID := flag.String("transaction", "", "gateway transaction id (from the redirect ?id=)")
	poll := flag.Bool("poll", true, "poll payment verification after checkout")
	interval := flag.Duration("interval", 5*time.Second, "poll interval")
	attempts := flag.Int("attempts", 24, "max poll attempts")
	flag.Parse()

	logger.Initialize(envOr("APP_ENV", "development"))
	log := logger.Log
	defer func() { _ = log.Sync() }()

	if *token == "" {
		if *secret == "" {
			log.Fatal("either -token or -jwt-secret is required")
		}
		t, err := middleware.IssueToken(*secret, *userID, "", time.Hour)
		if err != nil {
			log.Fatal("mint token failed", zap.Error(err))
		}
		*token = t
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api := checkout.NewAPIClient(*baseURL, *token, 20*time.Second)
	poller := checkout.NewPoller(api, checkout.PollPolicy{Interval: *interval, MaxAttempts: *attempts}, log)

	if *verifyOrder != "" {
		id, err := uuid.Parse(*verifyOrder)
		if err != nil {
			log.Fatal("invalid -verify order id", zap.String("order_id", *verifyOrder))
		}
		os.Exit(report(ctx, poller, id, *transactionID))
	}

	sessions, err := sessionBuilder(*signing, api)
	if err != nil {
		log.Fatal("payment session setup failed", zap.Error(err))
	}
	shipping, err := decimal.NewFromString(*shippingPrice)
	if err != nil {
		log.Fatal("invalid -shipping-price", zap.Error(err))
	}

	orch := checkout.NewOrchestrator(api, sessions, checkout.NewFileCart(*cartPath), log)
	res, err := orch.Checkout(ctx, checkout.Request{
		Shipping:      ship,
		PaymentMethod: *method,
		ShippingPrice: shipping,
	})
	if err != nil {
		var apiErr *checkout.APIError
		if errors.As(err, &apiErr) {
			fmt.Fprintf(os.Stderr, "checkout rejected (%d %s): %s\n", apiErr.StatusCode, apiErr.Code, apiErr.Message)
		} else {
			fmt.Fprintf(os.Stderr, "checkout failed: %v\n", err)
		}
		fmt.Fprintln(os.Stderr, "your cart was kept; fix the problem and run again")
		os.Exit(1)
	}

	fmt.Printf("order %s (%s) created, total %s\n", res.Order.OrderNumber, res.Order.ID, res.Order.TotalPrice)
	fmt.Printf("pay here:\n  %s\n", res.Session.CheckoutURL)
	if !*poll {
		return
	}
	os.Exit(report(ctx, poller, res.Order.ID, *transactionID))
}

// sessionBuilder local 模式需要本机持有完整性密钥（WOMPI_* 环境变量）。
func sessionBuilder(mode string, api *checkout.APIClient) (checkout.SessionBuilder, error) {
	switch mode {
	case "server":
		return checkout.NewServerSession(api), nil
	case "local":
		cfg := wompi.SessionConfig{
			CheckoutURL:     envOr("WOMPI_CHECKOUT_URL", "https://checkout.wompi.co/p/"),
			PublicKey:       os.Getenv("WOMPI_PUBLIC_KEY"),
			IntegritySecret: os.Getenv("WOMPI_INTEGRITY_SECRET"),
			Currency:        envOr("PAYMENT_CURRENCY", "COP"),
			RedirectURL:     os.Getenv("PAYMENT_REDIRECT_URL"),
		}
		gateway := wompi.NewClient(wompi.ClientConfig{
			BaseURL:   envOr("WOMPI_API_URL", "https://sandbox.wompi.co/v1"),
			PublicKey: cfg.PublicKey,
		})
		return checkout.NewLocalSigner(cfg, gateway), nil
	default:
		return nil, fmt.Errorf("unknown -signing mode %q", mode)
	}
}

// report 轮询并输出结果，返回进程退出码。
func report(ctx context.Context, poller *checkout.Poller, orderID uuid.UUID, transactionID string) int {
	fmt.Println("waiting for payment confirmation...")
	res, err := poller.Poll(ctx, orderID, transactionID)
	switch {
	case err == nil:
		if res.Order != nil {
			fmt.Printf("payment %s (order %s)\n", res.PaymentStatus, res.Order.Status)
		} else {
			fmt.Printf("payment %s\n", res.PaymentStatus)
		}
		return 0
	case errors.Is(err, checkout.ErrVerificationPending):
		fmt.Printf("payment still pending; verify now with:\n  storefront -verify %s", orderID)
		if transactionID != "" {
			fmt.Printf(" -transaction %s", transactionID)
		}
		fmt.Println()
		return 3
	case errors.Is(err, context.Canceled):
		fmt.Println("stopped polling")
		return 130
	default:
		fmt.Fprintf(os.Stderr, "verification failed: %v\n", err)
		return 1
	}
}
