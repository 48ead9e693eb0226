package postgres

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/egannguyen/autoparts-marketplace/internal/apperror"
	"github.com/egannguyen/autoparts-marketplace/internal/entity"
)

var now = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func TestTransactionCreate_WritesOrderAndOutboxAtomically(t *testing.T) {
	db, mock := newMock(t)
	repo := NewTransactionRepository(db)

	tx := &entity.Transaction{
		ID:        "tx-1",
		BuyerID:   "buyer-1",
		StoreID:   "store-1",
		Items:     []entity.LineItem{{ProductID: "p-1", Quantity: 1, UnitPrice: decimal.NewFromInt(200)}},
		Subtotal:  decimal.NewFromInt(200),
		Status:    entity.TransactionPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	req := entity.IssuanceRequest{ID: "req-1", TransactionID: "tx-1", ProductID: "p-1", Status: entity.IssuancePending, NextAttemptAt: now, CreatedAt: now}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO transactions").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO warranty_issuance_requests").
		WithArgs("req-1", "tx-1", sqlmock.AnyArg(), sqlmock.AnyArg(), "p-1", sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Create(context.Background(), tx, []entity.IssuanceRequest{req}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionCreate_RollsBackWhenOutboxInsertFails(t *testing.T) {
	db, mock := newMock(t)
	repo := NewTransactionRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO transactions").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO warranty_issuance_requests").WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &entity.Transaction{ID: "tx-1"}, []entity.IssuanceRequest{{ID: "req-1"}})
	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionGet_NotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := NewTransactionRepository(db)

	mock.ExpectQuery("SELECT .* FROM transactions WHERE id = \\$1").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), "missing")
	assert.True(t, apperror.IsKind(err, apperror.KindNotFound))
}

func TestWarrantyCreate_LiveLineViolationIsConflict(t *testing.T) {
	db, mock := newMock(t)
	repo := NewWarrantyRepository(db)

	mock.ExpectExec("INSERT INTO warranties").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "warranties_live_line_idx"})

	err := repo.Create(context.Background(), &entity.Warranty{ID: "w2", TransactionID: "tx-1", Status: entity.WarrantyPending})
	require.Error(t, err)
	assert.True(t, apperror.IsKind(err, apperror.KindConflict))
	assert.Contains(t, err.Error(), "live warranty")
}

func TestWarrantyFindLive_NoneIsNil(t *testing.T) {
	db, mock := newMock(t)
	repo := NewWarrantyRepository(db)

	mock.ExpectQuery("SELECT .* FROM warranties WHERE transaction_id = \\$1 AND product_id = \\$2 AND status IN").
		WithArgs("tx-1", "").
		WillReturnError(sql.ErrNoRows)

	w, err := repo.FindLive(context.Background(), "tx-1", "")
	require.NoError(t, err)
	assert.Nil(t, w)
}

func TestWarrantyGet_DecodesTerms(t *testing.T) {
	db, mock := newMock(t)
	repo := NewWarrantyRepository(db)

	cols := []string{"id", "kind", "status", "level", "buyer_id", "store_id", "transaction_id", "product_id",
		"description", "transaction_amount", "coverage_amount", "coverage_percentage", "max_coverage_amount", "cost",
		"currency", "is_included", "terms", "activation_date", "expiration_date", "last_renewal_date", "cancelled_at",
		"cancel_reason", "created_at", "updated_at"}
	terms := `{"covers_defective_products":true,"covers_non_delivery":true,"covers_not_as_described":true,"covers_late_delivery":false,"return_window_days":30,"claim_window_days":90}`
	mock.ExpectQuery("SELECT .* FROM warranties WHERE id = \\$1").
		WithArgs("w1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("w1", "purchase_protection", "active", "basic", "b1", "s1", "tx-1", "p-1",
			"", "2000.00", "1000.00", "100", "1000", "100.00", "USD", false, []byte(terms), now, now.AddDate(0, 0, 30), nil, nil,
			"", now, now))

	w, err := repo.Get(context.Background(), "w1")
	require.NoError(t, err)
	assert.Equal(t, entity.WarrantyActive, w.Status)
	assert.True(t, w.CoverageAmount.Equal(decimal.NewFromInt(1000)))
	assert.True(t, w.Terms.CoversDefectiveProducts)
	assert.Equal(t, 90, w.Terms.ClaimWindowDays)
	require.NotNil(t, w.ActivationDate)
	assert.Nil(t, w.LastRenewalDate)
}

func TestEventStore_RejectsStaleVersion(t *testing.T) {
	db, mock := newMock(t)
	store := NewEventStore(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(version), 0) FROM events WHERE stream_id = $1")).
		WithArgs("st-1").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(3))
	mock.ExpectRollback()

	err := store.SaveEvents(context.Background(), "st-1", entity.StreamSecureTransaction, 2,
		[]entity.Event{entity.ProtectionEvent{Type: entity.EventClaimFiled, OccurredAt: now}})
	assert.True(t, apperror.IsKind(err, apperror.KindConflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventStore_AppendsWithNextVersion(t *testing.T) {
	db, mock := newMock(t)
	store := NewEventStore(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT COALESCE").WithArgs("st-1").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(1))
	prep := mock.ExpectPrepare("INSERT INTO events")
	prep.ExpectExec().
		WithArgs(sqlmock.AnyArg(), "st-1", entity.StreamSecureTransaction, 2, entity.EventWarrantyAttached, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().
		WithArgs(sqlmock.AnyArg(), "st-1", entity.StreamSecureTransaction, 3, entity.EventRiskAssessed, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.SaveEvents(context.Background(), "st-1", entity.StreamSecureTransaction, 1, []entity.Event{
		entity.ProtectionEvent{Type: entity.EventWarrantyAttached, OccurredAt: now},
		entity.ProtectionEvent{Type: entity.EventRiskAssessed, OccurredAt: now},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxClaimPending_UsesSkipLocked(t *testing.T) {
	db, mock := newMock(t)
	outbox := NewIssuanceOutbox(db)

	cols := []string{"id", "transaction_id", "buyer_id", "store_id", "product_id", "kind", "level", "amount", "status",
		"attempts", "last_error", "warranty_id", "next_attempt_at", "created_at", "processed_at"}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM warranty_issuance_requests .* FOR UPDATE SKIP LOCKED`).
		WithArgs(now, 10).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("req-1", "tx-1", "b1", "s1", "p-1", "purchase_protection", "premium", "200.00", "pending", 0, "", "", now, now, nil))
	mock.ExpectExec("UPDATE warranty_issuance_requests SET attempts = attempts \\+ 1").
		WithArgs(sqlmock.AnyArg(), now.Add(time.Minute)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	claimed, err := outbox.ClaimPending(context.Background(), now, time.Minute, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, 1, claimed[0].Attempts)
	assert.Equal(t, entity.LevelPremium, claimed[0].Level)
	assert.Equal(t, now.Add(time.Minute), claimed[0].NextAttemptAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxMarkIssued_MissingRowIsNotFound(t *testing.T) {
	db, mock := newMock(t)
	outbox := NewIssuanceOutbox(db)

	mock.ExpectExec("UPDATE warranty_issuance_requests SET status = 'issued'").
		WithArgs("req-9", "w-1", now).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := outbox.MarkIssued(context.Background(), "req-9", "w-1", now)
	assert.True(t, apperror.IsKind(err, apperror.KindNotFound))
}

func TestClaimCreate_DuplicateNumberIsConflict(t *testing.T) {
	db, mock := newMock(t)
	repo := NewClaimRepository(db)

	mock.ExpectExec("INSERT INTO claims").WillReturnError(&pq.Error{Code: "23505", Constraint: "claims_claim_number_key"})

	err := repo.Create(context.Background(), &entity.Claim{ID: "c1", ClaimNumber: "CLM-1"})
	assert.True(t, apperror.IsKind(err, apperror.KindConflict))
}

func TestDirectory_BuyerExists(t *testing.T) {
	db, mock := newMock(t)
	dir := NewDirectory(db)

	mock.ExpectQuery("SELECT EXISTS").WithArgs("buyer-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := dir.BuyerExists(context.Background(), "buyer-1")
	require.NoError(t, err)
	assert.True(t, ok)
}
