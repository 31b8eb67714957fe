package service_test

import (
	"context"
	"testing"
	"time"

	"bike-marketplace/internal/models"
	"bike-marketplace/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withdrawReq(amount int64) *service.WithdrawRequest {
	return &service.WithdrawRequest{
		Amount:        amount,
		BankName:      "Vietcombank",
		AccountNumber: "0071000123456",
		AccountName:   "NGUYEN VAN A",
	}
}

func TestWithdrawalFee(t *testing.T) {
	e := newEnv(t)

	tests := []struct {
		amount int64
		fee    int64
	}{
		{50000, 10000},
		{999999, 10000},
		{1000000, 0},
		{25000000, 0},
	}

	for _, tt := range tests {
		q, err := e.wallets.Preview(tt.amount)
		require.NoError(t, err)
		assert.Equal(t, tt.fee, q.Fee, "amount %d", tt.amount)
		assert.Equal(t, tt.amount-tt.fee, q.NetAmount)
	}

	_, err := e.wallets.Preview(49999)
	assert.Error(t, err)
}

func TestWithdrawBelowMinimumRejectedRegardlessOfBalance(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.fund(t, seller, 100000000)

	_, err := e.wallets.Withdraw(ctx, seller, withdrawReq(40000))
	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "amount")

	wallet, err := e.wallets.Balance(ctx, seller)
	require.NoError(t, err)
	assert.Equal(t, int64(100000000), wallet.Balance)
}

func TestWithdrawAboveBalance(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.fund(t, seller, 500000)

	_, err := e.wallets.Withdraw(ctx, seller, withdrawReq(600000))
	assert.ErrorIs(t, err, models.ErrInsufficientFunds)

	ws, _, err := e.wallets.Withdrawals(ctx, seller, "", 1, 10)
	require.NoError(t, err)
	assert.Empty(t, ws)
}

func TestWithdrawAndProcess(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.fund(t, seller, 3000000)

	approved, err := e.wallets.Withdraw(ctx, seller, withdrawReq(2000000))
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalStatusPending, approved.Status)
	assert.Zero(t, approved.Fee)

	rejected, err := e.wallets.Withdraw(ctx, seller, withdrawReq(500000))
	require.NoError(t, err)
	assert.Equal(t, int64(10000), rejected.Fee)
	assert.Equal(t, int64(490000), rejected.NetAmount)

	wallet, err := e.wallets.Balance(ctx, seller)
	require.NoError(t, err)
	assert.Equal(t, int64(500000), wallet.Balance)

	_, err = e.wallets.ProcessWithdrawal(ctx, seller, approved.ID, &service.ProcessWithdrawalRequest{Status: "APPROVED"})
	assert.ErrorIs(t, err, models.ErrForbidden)

	_, err = e.wallets.ProcessWithdrawal(ctx, admin, approved.ID, &service.ProcessWithdrawalRequest{Status: "APPROVED"})
	require.NoError(t, err)

	w, err := e.wallets.ProcessWithdrawal(ctx, admin, rejected.ID, &service.ProcessWithdrawalRequest{Status: "rejected", AdminNote: "Account name mismatch"})
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalStatusRejected, w.Status)
	assert.NotNil(t, w.ProcessedAt)

	_, err = e.wallets.ProcessWithdrawal(ctx, admin, rejected.ID, &service.ProcessWithdrawalRequest{Status: "APPROVED"})
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	wallet, err = e.wallets.Balance(ctx, seller)
	require.NoError(t, err)
	assert.Equal(t, int64(1000000), wallet.Balance)
	assert.Equal(t, int64(2000000), wallet.TotalWithdrawn)
	assert.Equal(t, wallet.TotalEarnings+wallet.TotalDeposited-wallet.TotalSpent-wallet.TotalWithdrawn, wallet.Balance)

	txs, page, err := e.wallets.Transactions(ctx, seller, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 4, page.Total)
	assert.Equal(t, models.TxTypeWithdrawalReversal, txs[0].Type)
	assert.Equal(t, int64(1000000), txs[0].BalanceAfter)

	all, _, err := e.wallets.Withdrawals(ctx, admin, models.WithdrawalStatusRejected, 1, 10)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestWithdrawIdempotencyKey(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.fund(t, seller, 5000000)

	req := withdrawReq(1000000)
	req.IdempotencyKey = "wd-1"

	_, err := e.wallets.Withdraw(ctx, seller, req)
	require.NoError(t, err)

	_, err = e.wallets.Withdraw(ctx, seller, req)
	assert.ErrorIs(t, err, models.ErrConflict)

	wallet, err := e.wallets.Balance(ctx, seller)
	require.NoError(t, err)
	assert.Equal(t, int64(4000000), wallet.Balance)
}

func TestWithdrawRequiresBankDetails(t *testing.T) {
	e := newEnv(t)
	e.fund(t, seller, 5000000)

	req := withdrawReq(100000)
	req.AccountNumber = " "

	_, err := e.wallets.Withdraw(context.Background(), seller, req)
	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "accountNumber")
}

func TestDepositPermissions(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	rules := service.WithdrawalRules{MinAmount: 50000, FeeFreeFrom: 1000000, FlatFee: 10000}
	wallets := service.NewWalletService(e.repo, e.kv, e.pub, rules, time.Hour, false)

	_, err := wallets.Deposit(ctx, buyer, &service.DepositRequest{Amount: 1000000})
	assert.ErrorIs(t, err, models.ErrForbidden)

	_, err = wallets.Deposit(ctx, buyer, &service.DepositRequest{UserID: seller.UserID, Amount: 1000000})
	assert.ErrorIs(t, err, models.ErrForbidden)

	wallet, err := wallets.Deposit(ctx, admin, &service.DepositRequest{UserID: buyer.UserID, Amount: 1000000, Note: "Bank transfer 8812"})
	require.NoError(t, err)
	assert.Equal(t, buyer.UserID, wallet.UserID)
	assert.Equal(t, int64(1000000), wallet.Balance)

	adminWallet, err := wallets.Balance(ctx, admin)
	require.NoError(t, err)
	assert.Zero(t, adminWallet.Balance)
}
