package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/and161185/ecosbor/internal/config"
	"github.com/and161185/ecosbor/internal/deps"
	"github.com/and161185/ecosbor/internal/errs"
	"github.com/and161185/ecosbor/internal/middleware"
	"github.com/and161185/ecosbor/internal/model"
	"github.com/and161185/ecosbor/internal/settlement"
	chiMiddleware "github.com/go-chi/chi/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type Storage interface {
	CreateUser(ctx context.Context, login, passwordHash string) error
	GetUserByLogin(ctx context.Context, login string) (model.User, string, error)
	GetUserByID(ctx context.Context, id int) (model.User, error)
	AdminExists(ctx context.Context, id int) (bool, error)

	GetWallet(ctx context.Context, user model.User) (model.Wallet, error)
	Deposit(ctx context.Context, user model.User, sum float64) error
	Withdraw(ctx context.Context, user model.User, sum float64) error
	GetTransactions(ctx context.Context, user model.User) ([]model.WalletTransaction, error)

	CreateOrder(ctx context.Context, order model.Order, parts []model.OrderParticipant) (int64, error)
	GetUserOrders(ctx context.Context, user model.User) ([]model.Order, error)
	RunOrderTransition(ctx context.Context, orderID int64, fn settlement.TransitionFunc) (model.Order, []model.OrderParticipant, error)
}

type Server struct {
	storage  Storage
	config   *config.Config
	deps     *deps.Deps
	engine   *settlement.Engine
	notifier *Notifier
}

func NewServer(storage Storage, config *config.Config, deps *deps.Deps) *Server {
	return &Server{
		storage:  storage,
		config:   config,
		deps:     deps,
		engine:   settlement.NewEngine(deps.Logger),
		notifier: NewNotifier(config.NotifyAddress, deps.Logger),
	}
}

func (srv *Server) buildRouter() http.Handler {
	router := chi.NewRouter()
	router.Use(chiMiddleware.StripSlashes)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))
	router.Use(middleware.LogMiddleware(srv.deps.Logger))
	router.Use(middleware.DecompressMiddleware)
	router.Use(middleware.CompressMiddleware(srv.deps.Logger))

	router.Post("/api/user/register", srv.RegisterHandler)
	router.Post("/api/user/login", srv.LoginHandler)

	// авторизованные ручки
	router.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(srv.storage, srv.deps.TokenManager))

		r.Get("/api/user/wallet", srv.GetWalletHandler)
		r.Post("/api/user/wallet/deposit", srv.DepositHandler)
		r.Post("/api/user/wallet/withdraw", srv.WithdrawHandler)
		r.Get("/api/user/wallet/transactions", srv.GetTransactionsHandler)

		r.Post("/api/orders/quote", srv.QuoteHandler)
		r.Post("/api/orders", srv.CreateOrderHandler)
		r.Get("/api/orders", srv.GetOrdersHandler)
		r.Post("/api/orders/{orderID}/pay", srv.PayOrderHandler)
		r.Post("/api/orders/{orderID}/assign", srv.AssignAdminHandler)
		r.Post("/api/orders/{orderID}/utilization-fee", srv.SubmitFeeHandler)
		r.Post("/api/orders/{orderID}/additional-fee", srv.PayAdditionalFeeHandler)
	})

	return router
}

func (srv *Server) Run(ctx context.Context) error {
	router := srv.buildRouter()

	server := &http.Server{
		Addr:    srv.config.RunAddress,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			srv.config.Logger.Fatalf("server error: %v", err)
		}
	}()

	srv.notifier.Run(ctx)

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func (s *Server) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var creds model.Credentials

	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if creds.Login == "" || creds.Password == "" {
		http.Error(w, "login and password required", http.StatusBadRequest)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(creds.Password), bcrypt.DefaultCost)
	if err != nil {
		http.Error(w, "hash error", http.StatusInternalServerError)
		return
	}

	err = s.storage.CreateUser(r.Context(), creds.Login, string(hash))
	if err != nil {
		if errors.Is(err, errs.ErrLoginAlreadyExists) {
			http.Error(w, "login taken", http.StatusConflict)
			return
		}
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}

	user, _, err := s.storage.GetUserByLogin(r.Context(), creds.Login)
	if err != nil {
		http.Error(w, "failed to fetch user", http.StatusInternalServerError)
		return
	}

	token, err := s.deps.TokenManager.GenerateToken(user.ID)
	if err != nil {
		http.Error(w, "token error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Authorization", "Bearer "+token)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var creds model.Credentials

	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if creds.Login == "" || creds.Password == "" {
		http.Error(w, "login and password required", http.StatusBadRequest)
		return
	}

	user, hash, err := s.storage.GetUserByLogin(r.Context(), creds.Login)
	if err != nil {
		if errors.Is(err, errs.ErrUserNotFound) {
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(creds.Password)); err != nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	token, err := s.deps.TokenManager.GenerateToken(user.ID)
	if err != nil {
		http.Error(w, "token error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Authorization", "Bearer "+token)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) GetWalletHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := r.Context().Value(middleware.UserContextKey).(model.User)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	wallet, err := s.storage.GetWallet(r.Context(), user)
	if err != nil {
		http.Error(w, "failed to get wallet", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(wallet); err != nil {
		http.Error(w, "encode error", http.StatusInternalServerError)
	}
}

func (s *Server) DepositHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := r.Context().Value(middleware.UserContextKey).(model.User)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req model.DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if req.Sum <= 0 {
		http.Error(w, "invalid sum", http.StatusUnprocessableEntity)
		return
	}

	if err := s.storage.Deposit(r.Context(), user, req.Sum); err != nil {
		http.Error(w, "deposit failed", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (s *Server) WithdrawHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := r.Context().Value(middleware.UserContextKey).(model.User)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req model.WithdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if req.Sum <= 0 {
		http.Error(w, "invalid sum", http.StatusUnprocessableEntity)
		return
	}

	err := s.storage.Withdraw(r.Context(), user, req.Sum)
	if err != nil {
		switch {
		case errors.Is(err, errs.ErrInsufficientFunds):
			http.Error(w, "insufficient funds", http.StatusPaymentRequired)
		default:
			http.Error(w, "withdraw failed", http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (s *Server) GetTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := r.Context().Value(middleware.UserContextKey).(model.User)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	transactions, err := s.storage.GetTransactions(r.Context(), user)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}

	if len(transactions) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(transactions); err != nil {
		http.Error(w, "encode error", http.StatusInternalServerError)
	}
}

func (s *Server) QuoteHandler(w http.ResponseWriter, r *http.Request) {
	var req model.QuoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	quote, err := s.engine.Quote(req.PickupParams, req.Participants)
	if err != nil {
		s.settlementError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(quote); err != nil {
		http.Error(w, "encode error", http.StatusInternalServerError)
	}
}

func (s *Server) CreateOrderHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := r.Context().Value(middleware.UserContextKey).(model.User)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req model.CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	// инициатор всегда участвует
	userIDs := req.ParticipantIDs
	if !containsID(userIDs, user.ID) {
		userIDs = append([]int{user.ID}, userIDs...)
	}

	order, parts, err := s.engine.CreateOrder(req.PickupParams, req.GroupID, userIDs, time.Now())
	if err != nil {
		s.settlementError(w, err)
		return
	}

	orderID, err := s.storage.CreateOrder(r.Context(), order, parts)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	order.ID = orderID
	for i := range parts {
		parts[i].OrderID = orderID
	}

	s.notifier.Publish(Event{OrderID: orderID, Status: order.Status, Event: "order_created"})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(orderResponse{Order: order, Participants: parts}); err != nil {
		s.deps.Logger.Errorf("encode order response: %v", err)
	}
}

func (s *Server) GetOrdersHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := r.Context().Value(middleware.UserContextKey).(model.User)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	orders, err := s.storage.GetUserOrders(r.Context(), user)
	if err != nil {
		http.Error(w, "failed to get orders", http.StatusInternalServerError)
		return
	}

	if len(orders) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(orders); err != nil {
		http.Error(w, "encode error", http.StatusInternalServerError)
	}
}

func (s *Server) PayOrderHandler(w http.ResponseWriter, r *http.Request) {
	s.runTransition(w, r, "payment_collected", func(ctx context.Context, ledger settlement.Ledger, order *model.Order, parts []model.OrderParticipant, user model.User) error {
		return s.engine.CollectPayment(ctx, ledger, order, parts, user.ID)
	})
}

func (s *Server) AssignAdminHandler(w http.ResponseWriter, r *http.Request) {
	s.runTransition(w, r, "admin_assigned", func(ctx context.Context, ledger settlement.Ledger, order *model.Order, parts []model.OrderParticipant, user model.User) error {
		return s.engine.AssignAdmin(ctx, s.storage, order, user.ID)
	})
}

func (s *Server) SubmitFeeHandler(w http.ResponseWriter, r *http.Request) {
	var req model.SubmitFeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	// загрузчик выдаёт UUID-ключи
	if _, err := uuid.Parse(req.ProofRef); err != nil {
		http.Error(w, "invalid proof reference", http.StatusUnprocessableEntity)
		return
	}

	s.runTransition(w, r, "utilization_fee_submitted", func(ctx context.Context, ledger settlement.Ledger, order *model.Order, parts []model.OrderParticipant, user model.User) error {
		return s.engine.SubmitUtilizationFee(ctx, ledger, order, parts, user.ID, req.Fee, req.ProofRef, time.Now())
	})
}

func (s *Server) PayAdditionalFeeHandler(w http.ResponseWriter, r *http.Request) {
	s.runTransition(w, r, "additional_fee_paid", func(ctx context.Context, ledger settlement.Ledger, order *model.Order, parts []model.OrderParticipant, user model.User) error {
		return s.engine.PayAdditionalFee(ctx, ledger, order, parts, user.ID)
	})
}

type orderResponse struct {
	Order        model.Order              `json:"order"`
	Participants []model.OrderParticipant `json:"participants"`
}

type transitionHandler func(ctx context.Context, ledger settlement.Ledger, order *model.Order, parts []model.OrderParticipant, user model.User) error

func (s *Server) runTransition(w http.ResponseWriter, r *http.Request, event string, fn transitionHandler) {
	user, ok := r.Context().Value(middleware.UserContextKey).(model.User)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	orderID, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid order id", http.StatusBadRequest)
		return
	}

	order, parts, err := s.storage.RunOrderTransition(r.Context(), orderID,
		func(ctx context.Context, ledger settlement.Ledger, order *model.Order, parts []model.OrderParticipant) error {
			return fn(ctx, ledger, order, parts, user)
		})
	if err != nil {
		s.settlementError(w, err)
		return
	}

	s.notifier.Publish(Event{OrderID: order.ID, Status: order.Status, Event: event, UserID: user.ID})

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(orderResponse{Order: order, Participants: parts}); err != nil {
		s.deps.Logger.Errorf("encode order response: %v", err)
	}
}

func (s *Server) settlementError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errs.ErrOrderNotFound):
		http.Error(w, "order not found", http.StatusNotFound)
	case errors.Is(err, errs.ErrUserNotFound):
		http.Error(w, "user not found", http.StatusNotFound)
	case errors.Is(err, errs.ErrInvalidOrderStatus):
		http.Error(w, "order status does not permit this", http.StatusConflict)
	case errors.Is(err, errs.ErrAlreadyPaid):
		http.Error(w, "already paid", http.StatusConflict)
	case errors.Is(err, errs.ErrNotParticipant), errors.Is(err, errs.ErrForbidden):
		http.Error(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, errs.ErrInsufficientFunds):
		http.Error(w, "insufficient funds", http.StatusPaymentRequired)
	case errors.Is(err, errs.ErrInvalidAmount),
		errors.Is(err, errs.ErrMissingProof),
		errors.Is(err, errs.ErrAllocationImpossible),
		errors.Is(err, errs.ErrUnknownPickupOption):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		s.deps.Logger.Errorf("settlement error: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func containsID(ids []int, id int) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
