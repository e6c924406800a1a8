package main

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"agrinetwork/auth"
	"agrinetwork/dispute"
	"agrinetwork/metrics"
	"agrinetwork/order"
	"agrinetwork/product"
	"agrinetwork/wallet"
)

type orderService interface {
	Apply(ctx context.Context, req order.ApplyRequest) (order.Result, error)
	RequestMediation(ctx context.Context, orderID, actorID string, actorRole order.Role) (order.Verdict, error)
	Create(ctx context.Context, req order.CreateRequest) (order.Order, error)
	Get(ctx context.Context, id string) (order.Order, error)
	List(ctx context.Context, userID string) ([]order.Order, error)
	ListByStatus(ctx context.Context, actorID string, status order.Status) ([]order.Order, error)
}

type chatService interface {
	Append(ctx context.Context, req dispute.AppendRequest) (dispute.Message, error)
	List(ctx context.Context, orderID string) ([]dispute.Message, error)
}

type authService interface {
	Register(ctx context.Context, req auth.RegisterRequest) (*auth.User, error)
	Login(ctx context.Context, req auth.LoginRequest) (auth.LoginResult, error)
	VerifyToken(token string) (string, auth.Role, error)
	Profile(ctx context.Context, userID string) (auth.User, error)
}

type kycService interface {
	Submit(ctx context.Context, sub auth.KYCSubmission) (auth.KYCResult, error)
	SetStatus(ctx context.Context, actorID, userID string, status auth.KYCStatus) (auth.User, error)
}

type productService interface {
	GetByID(ctx context.Context, id string) (product.Product, error)
	List(ctx context.Context, limit int) ([]product.Product, error)
	Create(ctx context.Context, req product.CreateRequest) (product.Product, error)
}

type walletService interface {
	Get(ctx context.Context, userID string) (wallet.Wallet, error)
	Withdraw(ctx context.Context, userID string, amount decimal.Decimal) (wallet.Withdrawal, error)
	ListWithdrawals(ctx context.Context, userID string) ([]wallet.Withdrawal, error)
}

// Server is the HTTP edge. Handlers decode, call one service and encode; every
// business rule lives in the services.
type Server struct {
	orderService   orderService
	chatService    chatService
	authService    authService
	kycService     kycService
	productService productService
	walletService  walletService

	metrics      *metrics.Metrics
	logger       *zap.Logger
	limiter      *ipRateLimiter
	requireToken bool
	ready        func(ctx context.Context) error
}

// Handler assembles routes and middleware.
func (s *Server) Handler() http.Handler {
	if s.logger == nil {
		s.logger = zap.NewNop()
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", s.metrics.Handler())
	mux.HandleFunc("POST /auth/register", s.handleRegister)
	mux.HandleFunc("POST /auth/login", s.handleLogin)
	mux.HandleFunc("GET /products", s.handleListProducts)
	mux.HandleFunc("GET /products/{id}", s.handleGetProduct)

	mux.Handle("GET /me", s.authenticated(s.handleMe))
	mux.Handle("POST /products", s.authenticated(s.handleCreateProduct))
	mux.Handle("POST /orders", s.authenticated(s.handleCreateOrder))
	mux.Handle("GET /orders", s.authenticated(s.handleListOrders))
	mux.Handle("GET /orders/{id}", s.authenticated(s.handleGetOrder))
	mux.Handle("POST /orders/{id}/action", s.authenticated(s.handleOrderAction))
	mux.Handle("POST /orders/{id}/mediation", s.authenticated(s.handleRequestMediation))
	mux.Handle("GET /orders/{id}/messages", s.authenticated(s.handleListMessages))
	mux.Handle("POST /orders/{id}/messages", s.authenticated(s.handleAppendMessage))
	mux.Handle("GET /wallets/{userId}", s.authenticated(s.handleGetWallet))
	mux.Handle("POST /withdrawals", s.authenticated(s.handleWithdraw))
	mux.Handle("GET /withdrawals", s.authenticated(s.handleListWithdrawals))
	mux.Handle("POST /kyc", s.authenticated(s.handleSubmitKYC))
	mux.Handle("GET /admin/orders", s.authenticated(s.handleAdminOrders))
	mux.Handle("POST /admin/users/{id}/kyc", s.authenticated(s.handleSetKYC))

	var h http.Handler = mux
	h = s.rateLimit(h)
	h = s.observe(h)
	return h
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "unavailable", "database unreachable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
