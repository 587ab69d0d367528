package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/and161185/ecosbor/internal/auth"
	"github.com/and161185/ecosbor/internal/config"
	"github.com/and161185/ecosbor/internal/deps"
	"github.com/and161185/ecosbor/internal/errs"
	"github.com/and161185/ecosbor/internal/middleware"
	"github.com/and161185/ecosbor/internal/mocks"
	"github.com/and161185/ecosbor/internal/model"
	"github.com/and161185/ecosbor/internal/settlement"
	"github.com/go-chi/chi/v5"
	"github.com/golang/mock/gomock"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"
)

func setup(t *testing.T) (*Server, *mocks.MockStorage) {
	t.Helper()

	ctrl := gomock.NewController(t)
	mockStorage := mocks.NewMockStorage(ctrl)

	logger := zaptest.NewLogger(t)
	cfg := &config.Config{}
	deps := &deps.Deps{
		TokenManager: auth.NewTokenManager("testsecret"),
		Logger:       logger.Sugar(),
	}

	srv := NewServer(mockStorage, cfg, deps)

	return srv, mockStorage
}

func authenticatedRequest(method, path, body string, user model.User) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	ctx := context.WithValue(req.Context(), middleware.UserContextKey, user)
	return req.WithContext(ctx)
}

func withOrderID(req *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("orderID", id)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestRegisterHandler(t *testing.T) {
	srv, mock := setup(t)

	mock.EXPECT().
		CreateUser(gomock.Any(), "user", gomock.Any()).
		Return(nil)

	mock.EXPECT().
		GetUserByLogin(gomock.Any(), "user").
		Return(model.User{ID: 1, Login: "user"}, "", nil)

	payload := `{"login":"user","password":"pass"}`
	req := httptest.NewRequest("POST", "/api/user/register", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	srv.RegisterHandler(w, req)

	resp := w.Result()
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
	authHeader := resp.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		t.Errorf("missing token")
	}
}

func TestLoginHandler(t *testing.T) {
	srv, mock := setup(t)

	pw, _ := bcryptHash("pass")
	mock.EXPECT().
		GetUserByLogin(gomock.Any(), "user").
		Return(model.User{ID: 1, Login: "user"}, pw, nil)

	payload := `{"login":"user","password":"pass"}`
	req := httptest.NewRequest("POST", "/api/user/login", strings.NewReader(payload))
	w := httptest.NewRecorder()

	srv.LoginHandler(w, req)

	resp := w.Result()
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200")
	}
}

func TestGetWalletHandler(t *testing.T) {
	srv, mock := setup(t)

	mock.EXPECT().
		GetWallet(gomock.Any(), model.User{ID: 1}).
		Return(model.Wallet{UserID: 1, Funds: 150.50}, nil)

	req := authenticatedRequest("GET", "/api/user/wallet", "", model.User{ID: 1})
	w := httptest.NewRecorder()
	srv.GetWalletHandler(w, req)

	resp := w.Result()
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}

	var wallet model.Wallet
	if err := json.NewDecoder(resp.Body).Decode(&wallet); err != nil {
		t.Fatalf("decode wallet: %v", err)
	}
	if wallet.Funds != 150.50 {
		t.Errorf("unexpected funds: %v", wallet.Funds)
	}
}

func TestDepositHandler(t *testing.T) {
	srv, mock := setup(t)

	mock.EXPECT().
		Deposit(gomock.Any(), model.User{ID: 1}, 50.0).
		Return(nil)

	req := authenticatedRequest("POST", "/api/user/wallet/deposit", `{"sum":50}`, model.User{ID: 1})
	w := httptest.NewRecorder()
	srv.DepositHandler(w, req)

	resp := w.Result()
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}

func TestDepositHandlerInvalidSum(t *testing.T) {
	srv, _ := setup(t)

	req := authenticatedRequest("POST", "/api/user/wallet/deposit", `{"sum":-5}`, model.User{ID: 1})
	w := httptest.NewRecorder()
	srv.DepositHandler(w, req)

	resp := w.Result()
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d", resp.StatusCode)
	}
}

func TestWithdrawHandlerInsufficientFunds(t *testing.T) {
	srv, mock := setup(t)

	mock.EXPECT().
		Withdraw(gomock.Any(), model.User{ID: 1}, 100.0).
		Return(errs.ErrInsufficientFunds)

	req := authenticatedRequest("POST", "/api/user/wallet/withdraw", `{"sum":100}`, model.User{ID: 1})
	w := httptest.NewRecorder()
	srv.WithdrawHandler(w, req)

	resp := w.Result()
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPaymentRequired {
		t.Errorf("expected 402, got %d", resp.StatusCode)
	}
}

func TestGetTransactionsHandlerEmpty(t *testing.T) {
	srv, mock := setup(t)

	mock.EXPECT().
		GetTransactions(gomock.Any(), model.User{ID: 1}).
		Return(nil, nil)

	req := authenticatedRequest("GET", "/api/user/wallet/transactions", "", model.User{ID: 1})
	w := httptest.NewRecorder()
	srv.GetTransactionsHandler(w, req)

	resp := w.Result()
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("expected 204, got %d", resp.StatusCode)
	}
}

func TestQuoteHandler(t *testing.T) {
	srv, _ := setup(t)

	payload := `{"pickup_option":"curbside","pickup_date":"2025-06-01T10:00:00Z","participants":3}`
	req := authenticatedRequest("POST", "/api/orders/quote", payload, model.User{ID: 1})
	w := httptest.NewRecorder()
	srv.QuoteHandler(w, req)

	resp := w.Result()
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var quote model.Quote
	if err := json.NewDecoder(resp.Body).Decode(&quote); err != nil {
		t.Fatalf("decode quote: %v", err)
	}
	if quote.Cost != 100.00 {
		t.Errorf("unexpected cost: %v", quote.Cost)
	}
	if len(quote.Shares) != 3 || quote.Shares[0] != 33.34 {
		t.Errorf("unexpected shares: %v", quote.Shares)
	}
}

func TestCreateOrderHandler(t *testing.T) {
	srv, mock := setup(t)

	mock.EXPECT().
		CreateOrder(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(int64(5), nil)

	payload := `{"group_id":7,"pickup_option":"curbside","pickup_date":"2025-06-01T10:00:00Z","participant_ids":[1,2,3]}`
	req := authenticatedRequest("POST", "/api/orders", payload, model.User{ID: 1})
	w := httptest.NewRecorder()
	srv.CreateOrderHandler(w, req)

	resp := w.Result()
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	var body orderResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Order.ID != 5 || body.Order.Status != model.WaitingForPayment {
		t.Errorf("unexpected order: %+v", body.Order)
	}
	if len(body.Participants) != 3 {
		t.Errorf("expected 3 participants, got %d", len(body.Participants))
	}
}

type noopLedger struct{}

func (noopLedger) Debit(_ context.Context, _ int, _ int64, _ model.TransactionKind) error {
	return nil
}

func (noopLedger) Credit(_ context.Context, _ int, _ int64, _ model.TransactionKind) error {
	return nil
}

func TestPayOrderHandler(t *testing.T) {
	srv, mock := setup(t)

	mock.EXPECT().
		RunOrderTransition(gomock.Any(), int64(77), gomock.Any()).
		DoAndReturn(func(ctx context.Context, orderID int64, fn settlement.TransitionFunc) (model.Order, []model.OrderParticipant, error) {
			order := model.Order{ID: 77, Status: model.WaitingForPayment}
			parts := []model.OrderParticipant{
				{OrderID: 77, UserID: 1, ShareAmount: 50.00},
				{OrderID: 77, UserID: 2, ShareAmount: 50.00, HasAcceptedPayment: true},
			}
			if err := fn(ctx, noopLedger{}, &order, parts); err != nil {
				return model.Order{}, nil, err
			}
			return order, parts, nil
		})

	req := withOrderID(authenticatedRequest("POST", "/api/orders/77/pay", "", model.User{ID: 1}), "77")
	w := httptest.NewRecorder()
	srv.PayOrderHandler(w, req)

	resp := w.Result()
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body orderResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Order.Status != model.WaitingForAccept {
		t.Errorf("expected WAITING_FOR_ACCEPT after last payment, got %s", body.Order.Status)
	}
}

func TestPayOrderHandlerInsufficientFunds(t *testing.T) {
	srv, mock := setup(t)

	mock.EXPECT().
		RunOrderTransition(gomock.Any(), int64(77), gomock.Any()).
		Return(model.Order{}, nil, errs.ErrInsufficientFunds)

	req := withOrderID(authenticatedRequest("POST", "/api/orders/77/pay", "", model.User{ID: 1}), "77")
	w := httptest.NewRecorder()
	srv.PayOrderHandler(w, req)

	resp := w.Result()
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPaymentRequired {
		t.Errorf("expected 402, got %d", resp.StatusCode)
	}
}

func TestSubmitFeeHandlerInvalidProof(t *testing.T) {
	srv, _ := setup(t)

	payload := `{"fee":15.00,"proof_ref":"not-a-uuid"}`
	req := withOrderID(authenticatedRequest("POST", "/api/orders/77/utilization-fee", payload, model.User{ID: 9}), "77")
	w := httptest.NewRecorder()
	srv.SubmitFeeHandler(w, req)

	resp := w.Result()
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d", resp.StatusCode)
	}
}

func TestPayAdditionalFeeHandlerWrongStatus(t *testing.T) {
	srv, mock := setup(t)

	mock.EXPECT().
		RunOrderTransition(gomock.Any(), int64(77), gomock.Any()).
		Return(model.Order{}, nil, errs.ErrInvalidOrderStatus)

	req := withOrderID(authenticatedRequest("POST", "/api/orders/77/additional-fee", "", model.User{ID: 1}), "77")
	w := httptest.NewRecorder()
	srv.PayAdditionalFeeHandler(w, req)

	resp := w.Result()
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusConflict {
		t.Errorf("expected 409, got %d", resp.StatusCode)
	}
}

func TestGetOrdersHandler(t *testing.T) {
	srv, mock := setup(t)

	mock.EXPECT().
		GetUserOrders(gomock.Any(), model.User{ID: 1}).
		Return([]model.Order{{ID: 1, Status: model.WaitingForPickup, Cost: 100}}, nil)

	req := authenticatedRequest("GET", "/api/orders", "", model.User{ID: 1})
	w := httptest.NewRecorder()
	srv.GetOrdersHandler(w, req)

	resp := w.Result()
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200")
	}
}

func bcryptHash(pw string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(pw), 10)
	return string(hash), err
}
