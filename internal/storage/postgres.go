package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/and161185/ecosbor/internal/errs"
	"github.com/and161185/ecosbor/internal/model"
	"github.com/and161185/ecosbor/internal/money"
	"github.com/and161185/ecosbor/internal/settlement"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresStorage struct {
	db *pgxpool.Pool
}

func (store *PostgresStorage) initSchema(ctx context.Context) error {
	const initSchemaQuery = `
	CREATE TABLE IF NOT EXISTS users (
		id SERIAL PRIMARY KEY,
		login TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT NOW()
	);
	CREATE TABLE IF NOT EXISTS wallets (
		user_id INT PRIMARY KEY REFERENCES users(id),
		funds NUMERIC NOT NULL DEFAULT 0 CHECK (funds >= 0)
	);
	CREATE TABLE IF NOT EXISTS wallet_transactions (
		id BIGSERIAL PRIMARY KEY,
		user_id INT NOT NULL REFERENCES users(id),
		amount NUMERIC NOT NULL,
		kind TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT NOW()
	);
	CREATE TABLE IF NOT EXISTS orders (
		id BIGSERIAL PRIMARY KEY,
		group_id BIGINT NOT NULL,
		pickup_option TEXT NOT NULL,
		container_size TEXT,
		drop_off_date TIMESTAMP,
		pickup_date TIMESTAMP NOT NULL,
		high_priority BOOLEAN NOT NULL DEFAULT FALSE,
		collecting_service BOOLEAN NOT NULL DEFAULT FALSE,
		cost NUMERIC NOT NULL,
		prepaid_utilization_fee NUMERIC NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		assigned_admin_id INT REFERENCES users(id),
		utilization_fee NUMERIC,
		additional_utilization_fee NUMERIC NOT NULL DEFAULT 0,
		utilization_proof_ref TEXT,
		utilization_fee_submitted_at TIMESTAMP,
		created_at TIMESTAMP DEFAULT NOW()
	);
	CREATE TABLE IF NOT EXISTS order_participants (
		order_id BIGINT NOT NULL REFERENCES orders(id),
		user_id INT NOT NULL REFERENCES users(id),
		share_amount NUMERIC NOT NULL,
		has_accepted_payment BOOLEAN NOT NULL DEFAULT FALSE,
		additional_fee_share NUMERIC NOT NULL DEFAULT 0,
		has_paid_additional_fee BOOLEAN NOT NULL DEFAULT FALSE,
		PRIMARY KEY (order_id, user_id)
	);`

	_, err := store.db.Exec(ctx, initSchemaQuery)
	return err
}

func NewPostgreStorage(ctx context.Context, DatabaseURI string) (*PostgresStorage, error) {
	db, err := pgxpool.New(ctx, DatabaseURI)
	if err != nil {
		return nil, err
	}

	storage := &PostgresStorage{db: db}

	if err := storage.Ping(ctx); err != nil {
		return nil, err
	}

	if err := storage.initSchema(ctx); err != nil {
		return nil, err
	}

	return storage, nil
}

func (store *PostgresStorage) Ping(ctx context.Context) error {
	return store.db.Ping(ctx)
}

func (store *PostgresStorage) CreateUser(ctx context.Context, login string, passwordHash string) error {
	const insertUserQuery = `
		WITH new_user AS (
			INSERT INTO users (login, password_hash) VALUES ($1, $2) RETURNING id
		)
		INSERT INTO wallets (user_id) SELECT id FROM new_user`

	_, err := store.db.Exec(ctx, insertUserQuery, login, passwordHash)
	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == "23505" {
			// 23505 — уникальное ограничение нарушено
			return errs.ErrLoginAlreadyExists
		}
		return err
	}

	return nil
}

func (s *PostgresStorage) GetUserByLogin(ctx context.Context, login string) (model.User, string, error) {
	const query = `SELECT id, login, password_hash FROM users WHERE login = $1`

	var user model.User
	var hash string

	err := s.db.QueryRow(ctx, query, login).Scan(&user.ID, &user.Login, &hash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, "", errs.ErrUserNotFound
		}
		return model.User{}, "", fmt.Errorf("get user by login: %w", err)
	}

	return user, hash, nil
}

func (s *PostgresStorage) GetUserByID(ctx context.Context, id int) (model.User, error) {
	const query = `SELECT id, login FROM users WHERE id = $1`

	var user model.User

	err := s.db.QueryRow(ctx, query, id).Scan(&user.ID, &user.Login)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, errs.ErrUserNotFound
		}
		return model.User{}, fmt.Errorf("get user by id: %w", err)
	}

	return user, nil
}

func (s *PostgresStorage) AdminExists(ctx context.Context, id int) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`

	var exists bool
	if err := s.db.QueryRow(ctx, query, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("admin exists: %w", err)
	}
	return exists, nil
}

func (s *PostgresStorage) GetWallet(ctx context.Context, user model.User) (model.Wallet, error) {
	const query = `SELECT user_id, funds FROM wallets WHERE user_id = $1`

	var wallet model.Wallet
	err := s.db.QueryRow(ctx, query, user.ID).Scan(&wallet.UserID, &wallet.Funds)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Wallet{}, errs.ErrUserNotFound
		}
		return model.Wallet{}, fmt.Errorf("get wallet: %w", err)
	}

	return wallet, nil
}

func (s *PostgresStorage) Deposit(ctx context.Context, user model.User, sum float64) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := creditTx(ctx, tx, user.ID, money.ToCents(sum), model.Deposit); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (s *PostgresStorage) Withdraw(ctx context.Context, user model.User, sum float64) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := debitTx(ctx, tx, user.ID, money.ToCents(sum), model.Withdrawal); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (s *PostgresStorage) GetTransactions(ctx context.Context, user model.User) ([]model.WalletTransaction, error) {
	const query = `
		SELECT id, user_id, amount, kind, created_at
		FROM wallet_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
	`

	rows, err := s.db.Query(ctx, query, user.ID)
	if err != nil {
		return nil, fmt.Errorf("get transactions: %w", err)
	}
	defer rows.Close()

	var list []model.WalletTransaction
	for rows.Next() {
		var t model.WalletTransaction
		err := rows.Scan(&t.ID, &t.UserID, &t.Amount, &t.Kind, &t.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		list = append(list, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	if len(list) == 0 {
		return nil, nil
	}

	return list, nil
}

func (s *PostgresStorage) CreateOrder(ctx context.Context, order model.Order, parts []model.OrderParticipant) (int64, error) {
	const insertOrderQuery = `
		INSERT INTO orders (group_id, pickup_option, container_size, drop_off_date, pickup_date,
			high_priority, collecting_service, cost, prepaid_utilization_fee, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`

	const insertParticipantQuery = `
		INSERT INTO order_participants (order_id, user_id, share_amount, has_accepted_payment)
		VALUES ($1, $2, $3, $4)`

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var orderID int64
	err = tx.QueryRow(ctx, insertOrderQuery,
		order.GroupID, order.PickupOption, order.ContainerSize, order.DropOffDate, order.PickupDate,
		order.HighPriority, order.CollectingService, order.Cost, order.PrepaidUtilizationFee,
		order.Status, order.CreatedAt,
	).Scan(&orderID)
	if err != nil {
		return 0, fmt.Errorf("insert order: %w", err)
	}

	for _, p := range parts {
		_, err = tx.Exec(ctx, insertParticipantQuery, orderID, p.UserID, p.ShareAmount, p.HasAcceptedPayment)
		if err != nil {
			return 0, fmt.Errorf("insert participant: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	return orderID, nil
}

func (s *PostgresStorage) GetUserOrders(ctx context.Context, user model.User) ([]model.Order, error) {
	const query = `
		SELECT o.id, o.group_id, o.pickup_option, o.container_size, o.drop_off_date, o.pickup_date,
			o.high_priority, o.collecting_service, o.cost, o.prepaid_utilization_fee, o.status,
			o.assigned_admin_id, o.utilization_fee, o.additional_utilization_fee,
			o.utilization_proof_ref, o.utilization_fee_submitted_at, o.created_at
		FROM orders o
		JOIN order_participants p ON p.order_id = o.id
		WHERE p.user_id = $1
		ORDER BY o.created_at DESC
	`

	rows, err := s.db.Query(ctx, query, user.ID)
	if err != nil {
		return nil, fmt.Errorf("get user orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration: %w", err)
	}

	if len(orders) == 0 {
		return nil, nil // обработаешь в хендлере как 204
	}

	return orders, nil
}

// RunOrderTransition executes one settlement transition as a single
// transaction. The order row is locked FOR UPDATE so concurrent transitions
// on the same order serialize; the ledger handed to fn locks wallet rows
// the same way. On error nothing is committed.
func (s *PostgresStorage) RunOrderTransition(ctx context.Context, orderID int64, fn settlement.TransitionFunc) (model.Order, []model.OrderParticipant, error) {
	const selectOrderQuery = `
		SELECT id, group_id, pickup_option, container_size, drop_off_date, pickup_date,
			high_priority, collecting_service, cost, prepaid_utilization_fee, status,
			assigned_admin_id, utilization_fee, additional_utilization_fee,
			utilization_proof_ref, utilization_fee_submitted_at, created_at
		FROM orders
		WHERE id = $1
		FOR UPDATE`

	const selectParticipantsQuery = `
		SELECT order_id, user_id, share_amount, has_accepted_payment, additional_fee_share, has_paid_additional_fee
		FROM order_participants
		WHERE order_id = $1
		ORDER BY user_id`

	const updateOrderQuery = `
		UPDATE orders
		SET status = $1, assigned_admin_id = $2, utilization_fee = $3, additional_utilization_fee = $4,
			utilization_proof_ref = $5, utilization_fee_submitted_at = $6
		WHERE id = $7`

	const updateParticipantQuery = `
		UPDATE order_participants
		SET has_accepted_payment = $1, additional_fee_share = $2, has_paid_additional_fee = $3
		WHERE order_id = $4 AND user_id = $5`

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return model.Order{}, nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, selectOrderQuery, orderID)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Order{}, nil, errs.ErrOrderNotFound
		}
		return model.Order{}, nil, err
	}

	rows, err := tx.Query(ctx, selectParticipantsQuery, orderID)
	if err != nil {
		return model.Order{}, nil, fmt.Errorf("get participants: %w", err)
	}

	var parts []model.OrderParticipant
	for rows.Next() {
		var p model.OrderParticipant
		err := rows.Scan(&p.OrderID, &p.UserID, &p.ShareAmount, &p.HasAcceptedPayment, &p.AdditionalFeeShare, &p.HasPaidAdditionalFee)
		if err != nil {
			rows.Close()
			return model.Order{}, nil, fmt.Errorf("scan participant: %w", err)
		}
		parts = append(parts, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return model.Order{}, nil, fmt.Errorf("rows error: %w", err)
	}

	ledger := &txLedger{tx: tx}
	if err := fn(ctx, ledger, &order, parts); err != nil {
		return model.Order{}, nil, err
	}

	_, err = tx.Exec(ctx, updateOrderQuery,
		order.Status, order.AssignedAdminID, order.UtilizationFee, order.AdditionalUtilizationFee,
		order.UtilizationProofRef, order.UtilizationFeeSubmittedAt, order.ID)
	if err != nil {
		return model.Order{}, nil, fmt.Errorf("update order: %w", err)
	}

	for _, p := range parts {
		_, err = tx.Exec(ctx, updateParticipantQuery,
			p.HasAcceptedPayment, p.AdditionalFeeShare, p.HasPaidAdditionalFee, p.OrderID, p.UserID)
		if err != nil {
			return model.Order{}, nil, fmt.Errorf("update participant: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Order{}, nil, fmt.Errorf("commit: %w", err)
	}

	return order, parts, nil
}

// txLedger is the settlement.Ledger bound to one transition transaction.
// Debit holds the wallet row lock across the balance check and the update,
// so a stale-balance race cannot slip a wallet below zero.
type txLedger struct {
	tx pgx.Tx
}

func (l *txLedger) Debit(ctx context.Context, userID int, cents int64, kind model.TransactionKind) error {
	return debitTx(ctx, l.tx, userID, cents, kind)
}

func (l *txLedger) Credit(ctx context.Context, userID int, cents int64, kind model.TransactionKind) error {
	return creditTx(ctx, l.tx, userID, cents, kind)
}

func debitTx(ctx context.Context, tx pgx.Tx, userID int, cents int64, kind model.TransactionKind) error {
	const lockWalletQuery = `SELECT funds FROM wallets WHERE user_id = $1 FOR UPDATE`
	const updateFundsQuery = `UPDATE wallets SET funds = funds - $1 WHERE user_id = $2`
	const insertTransactionQuery = `INSERT INTO wallet_transactions (user_id, amount, kind) VALUES ($1, $2, $3)`

	if cents <= 0 {
		return errs.ErrInvalidAmount
	}
	amount := money.FromCents(cents)

	var funds float64
	err := tx.QueryRow(ctx, lockWalletQuery, userID).Scan(&funds)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return errs.ErrUserNotFound
		}
		return fmt.Errorf("lock wallet: %w", err)
	}

	if money.ToCents(funds) < cents {
		return errs.ErrInsufficientFunds
	}

	if _, err := tx.Exec(ctx, updateFundsQuery, amount, userID); err != nil {
		return fmt.Errorf("debit wallet: %w", err)
	}
	if _, err := tx.Exec(ctx, insertTransactionQuery, userID, -amount, kind); err != nil {
		return fmt.Errorf("append transaction: %w", err)
	}

	return nil
}

func creditTx(ctx context.Context, tx pgx.Tx, userID int, cents int64, kind model.TransactionKind) error {
	const lockWalletQuery = `SELECT funds FROM wallets WHERE user_id = $1 FOR UPDATE`
	const updateFundsQuery = `UPDATE wallets SET funds = funds + $1 WHERE user_id = $2`
	const insertTransactionQuery = `INSERT INTO wallet_transactions (user_id, amount, kind) VALUES ($1, $2, $3)`

	if cents <= 0 {
		return errs.ErrInvalidAmount
	}
	amount := money.FromCents(cents)

	var funds float64
	err := tx.QueryRow(ctx, lockWalletQuery, userID).Scan(&funds)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return errs.ErrUserNotFound
		}
		return fmt.Errorf("lock wallet: %w", err)
	}

	if _, err := tx.Exec(ctx, updateFundsQuery, amount, userID); err != nil {
		return fmt.Errorf("credit wallet: %w", err)
	}
	if _, err := tx.Exec(ctx, insertTransactionQuery, userID, amount, kind); err != nil {
		return fmt.Errorf("append transaction: %w", err)
	}

	return nil
}

func scanOrder(row pgx.Row) (model.Order, error) {
	var o model.Order
	err := row.Scan(&o.ID, &o.GroupID, &o.PickupOption, &o.ContainerSize, &o.DropOffDate, &o.PickupDate,
		&o.HighPriority, &o.CollectingService, &o.Cost, &o.PrepaidUtilizationFee, &o.Status,
		&o.AssignedAdminID, &o.UtilizationFee, &o.AdditionalUtilizationFee,
		&o.UtilizationProofRef, &o.UtilizationFeeSubmittedAt, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Order{}, err
		}
		return model.Order{}, fmt.Errorf("scan order: %w", err)
	}
	return o, nil
}
