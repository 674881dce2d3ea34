package services

import (
	"errors"
	"strings"
	"testing"

	"propvet-server/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Verification{},
		&models.VerificationDocument{},
		&models.VerificationComment{},
		&models.VerificationTimelineEvent{},
		&models.VerificationPrice{},
		&models.AuditLog{},
	))
	return db
}

type fakeGateway struct {
	initErr      error
	verifyErr    error
	verifyStatus string
	initCalls    int
	verifyCalls  int
	lastAmount   float64
}

func (f *fakeGateway) InitializePayment(email string, amount float64, reference string, callbackURL string) (*PaymentInitiation, error) {
	f.initCalls++
	f.lastAmount = amount
	if f.initErr != nil {
		return nil, f.initErr
	}
	return &PaymentInitiation{
		AuthorizationURL: "https://checkout.paystack.com/" + reference,
		AccessCode:       "ac_" + reference,
		Reference:        reference,
	}, nil
}

func (f *fakeGateway) VerifyPayment(reference string) (*PaymentStatus, error) {
	f.verifyCalls++
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	status := f.verifyStatus
	if status == "" {
		status = "success"
	}
	return &PaymentStatus{Status: status, Amount: 12000, Reference: reference, Channel: "card"}, nil
}

type fakeMailer struct {
	welcomes  int
	resets    int
	created   int
	confirmed int
	failWith  error
}

func (f *fakeMailer) SendWelcome(to, name string) error { f.welcomes++; return f.failWith }
func (f *fakeMailer) SendPasswordReset(to, name, token string) error {
	f.resets++
	return f.failWith
}
func (f *fakeMailer) SendVerificationCreated(to, name, verificationType string, verificationID uint, paymentURL string) error {
	f.created++
	return f.failWith
}
func (f *fakeMailer) SendPaymentConfirmed(to, name, verificationType string, verificationID uint) error {
	f.confirmed++
	return f.failWith
}

func newTestService(t *testing.T) (*VerificationService, *gorm.DB, *fakeGateway, *fakeMailer) {
	t.Helper()
	db := newTestDB(t)
	gateway := &fakeGateway{}
	mailer := &fakeMailer{}
	return NewVerificationService(db, gateway, mailer), db, gateway, mailer
}

func seedUser(t *testing.T, db *gorm.DB) models.User {
	t.Helper()
	user := models.User{
		Username: "ada",
		Email:    "ada@example.com",
		Password: "hashed",
		Role:     models.RoleUser,
		Status:   models.UserStatusActive,
	}
	require.NoError(t, db.Create(&user).Error)
	return user
}

func seedPrices(t *testing.T, svc *VerificationService) {
	t.Helper()
	_, err := svc.SetPrice(models.VerificationTypeExpress, 20000)
	require.NoError(t, err)
	_, err = svc.SetPrice(models.VerificationTypeNormal, 12000)
	require.NoError(t, err)
}

func createPaidVerification(t *testing.T, svc *VerificationService, user models.User) *models.Verification {
	t.Helper()
	result, err := svc.CreateWithPayment(CreateVerificationInput{
		UserID:    user.ID,
		Address:   "12 Marina Road",
		State:     "Lagos",
		Type:      models.VerificationTypeNormal,
		UserEmail: user.Email,
		UserName:  "Ada",
	})
	require.NoError(t, err)
	verified, err := svc.VerifyPayment(result.Verification.PaymentReference, result.Verification.ID)
	require.NoError(t, err)
	return verified.Verification
}

func TestSetPriceValidation(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	_, err := svc.SetPrice("INSTANT", 5000)
	assert.Equal(t, ErrValidation, KindOf(err))

	_, err = svc.SetPrice(models.VerificationTypeNormal, 0)
	assert.Equal(t, ErrValidation, KindOf(err))

	_, err = svc.SetPrice(models.VerificationTypeNormal, -10)
	assert.Equal(t, ErrValidation, KindOf(err))
}

func TestSetPriceUpsert(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	first, err := svc.SetPrice(models.VerificationTypeNormal, 10000)
	require.NoError(t, err)

	second, err := svc.SetPrice(models.VerificationTypeNormal, 12000)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	entry, err := svc.GetPrice(models.VerificationTypeNormal)
	require.NoError(t, err)
	assert.Equal(t, 12000.0, entry.Price)

	entries, err := svc.GetAllPrices()
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestGetPriceMissing(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	_, err := svc.GetPrice(models.VerificationTypeExpress)
	assert.Equal(t, ErrNotFound, KindOf(err))
}

func TestCreateWithPaymentValidation(t *testing.T) {
	svc, db, _, _ := newTestService(t)
	user := seedUser(t, db)
	seedPrices(t, svc)

	cases := []struct {
		name  string
		input CreateVerificationInput
	}{
		{"missing user", CreateVerificationInput{Address: "a", State: "Lagos", Type: "NORMAL", UserEmail: "a@b.c"}},
		{"missing address", CreateVerificationInput{UserID: user.ID, State: "Lagos", Type: "NORMAL", UserEmail: "a@b.c"}},
		{"missing state", CreateVerificationInput{UserID: user.ID, Address: "a", Type: "NORMAL", UserEmail: "a@b.c"}},
		{"bad type", CreateVerificationInput{UserID: user.ID, Address: "a", State: "Lagos", Type: "INSTANT", UserEmail: "a@b.c"}},
		{"missing email", CreateVerificationInput{UserID: user.ID, Address: "a", State: "Lagos", Type: "NORMAL"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateWithPayment(tc.input)
			assert.Equal(t, ErrValidation, KindOf(err))
		})
	}
}

func TestCreateWithPaymentUnpricedType(t *testing.T) {
	svc, db, _, _ := newTestService(t)
	user := seedUser(t, db)

	_, err := svc.CreateWithPayment(CreateVerificationInput{
		UserID:    user.ID,
		Address:   "12 Marina Road",
		State:     "Lagos",
		Type:      models.VerificationTypeExpress,
		UserEmail: user.Email,
	})
	assert.Equal(t, ErrValidation, KindOf(err))
	assert.Contains(t, err.Error(), "Price not found")
}

func TestCreateWithPaymentSuccess(t *testing.T) {
	svc, db, gateway, mailer := newTestService(t)
	user := seedUser(t, db)
	seedPrices(t, svc)

	result, err := svc.CreateWithPayment(CreateVerificationInput{
		UserID:    user.ID,
		Address:   "12 Marina Road",
		State:     "Lagos",
		Type:      models.VerificationTypeNormal,
		UserEmail: user.Email,
		UserName:  "Ada",
	})
	require.NoError(t, err)

	v := result.Verification
	assert.Equal(t, models.VerificationStatusPendingPayment, v.Status)
	assert.Equal(t, models.PaymentStatusPending, v.PaymentStatus)
	assert.Equal(t, 12000.0, v.PaymentAmount)
	assert.True(t, strings.HasPrefix(v.PaymentReference, "VER_"))
	assert.NotEmpty(t, v.PaymentURL)
	assert.NotEmpty(t, v.PaymentAccessCode)
	assert.Equal(t, v.PaymentReference, result.Payment.Reference)
	assert.Equal(t, 12000.0, gateway.lastAmount)
	assert.Equal(t, 1, mailer.created)
}

func TestCreateWithPaymentGatewayFailureKeepsRecord(t *testing.T) {
	svc, db, gateway, mailer := newTestService(t)
	user := seedUser(t, db)
	seedPrices(t, svc)
	gateway.initErr = errors.New("paystack is down")

	_, err := svc.CreateWithPayment(CreateVerificationInput{
		UserID:    user.ID,
		Address:   "12 Marina Road",
		State:     "Lagos",
		Type:      models.VerificationTypeNormal,
		UserEmail: user.Email,
	})
	assert.Equal(t, ErrInternal, KindOf(err))

	// The record survives the gateway failure so payment can be retried.
	var stored models.Verification
	require.NoError(t, db.Where("user_id = ?", user.ID).First(&stored).Error)
	assert.Equal(t, models.VerificationStatusPendingPayment, stored.Status)
	assert.Empty(t, stored.PaymentURL)
	assert.Equal(t, 0, mailer.created)
}

func TestVerifyPaymentSuccess(t *testing.T) {
	svc, db, _, mailer := newTestService(t)
	user := seedUser(t, db)
	seedPrices(t, svc)

	created, err := svc.CreateWithPayment(CreateVerificationInput{
		UserID:    user.ID,
		Address:   "12 Marina Road",
		State:     "Lagos",
		Type:      models.VerificationTypeNormal,
		UserEmail: user.Email,
	})
	require.NoError(t, err)

	result, err := svc.VerifyPayment(created.Verification.PaymentReference, 0)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPaid, result.Verification.PaymentStatus)
	assert.Equal(t, models.VerificationStatusPending, result.Verification.Status)
	assert.Equal(t, 1, mailer.confirmed)
}

func TestVerifyPaymentIdempotent(t *testing.T) {
	svc, db, _, _ := newTestService(t)
	user := seedUser(t, db)
	seedPrices(t, svc)
	verification := createPaidVerification(t, svc, user)

	// Progress the review, then replay the payment confirmation.
	doc, err := svc.AddDocument(verification.ID, "Deed of Assignment", "https://files.example.com/deed.pdf")
	require.NoError(t, err)
	_, err = svc.UpdateDocumentStatus(doc.ID, models.DocumentStatusVerified, nil)
	require.NoError(t, err)

	replayed, err := svc.VerifyPayment(verification.PaymentReference, verification.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPaid, replayed.Verification.PaymentStatus)
	// A late webhook must not drag the review back to PENDING.
	assert.Equal(t, models.VerificationStatusVerified, replayed.Verification.Status)
}

func TestVerifyPaymentFailure(t *testing.T) {
	svc, db, gateway, mailer := newTestService(t)
	user := seedUser(t, db)
	seedPrices(t, svc)

	created, err := svc.CreateWithPayment(CreateVerificationInput{
		UserID:    user.ID,
		Address:   "12 Marina Road",
		State:     "Lagos",
		Type:      models.VerificationTypeNormal,
		UserEmail: user.Email,
	})
	require.NoError(t, err)

	gateway.verifyStatus = "abandoned"
	result, err := svc.VerifyPayment(created.Verification.PaymentReference, 0)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, result.Verification.PaymentStatus)
	assert.Equal(t, models.VerificationStatusPendingPayment, result.Verification.Status)
	assert.Equal(t, 0, mailer.confirmed)

	// Still gated: documents cannot be attached to an unpaid verification.
	_, err = svc.AddDocument(created.Verification.ID, "Deed", "https://files.example.com/deed.pdf")
	assert.Equal(t, ErrAuthorization, KindOf(err))
}

func TestVerifyPaymentValidation(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	_, err := svc.VerifyPayment("", 0)
	assert.Equal(t, ErrValidation, KindOf(err))

	_, err = svc.VerifyPayment("VER_unknown", 0)
	assert.Equal(t, ErrNotFound, KindOf(err))
}

func TestPaymentGatingBlocksDocumentWorkflow(t *testing.T) {
	svc, db, _, _ := newTestService(t)
	user := seedUser(t, db)
	seedPrices(t, svc)

	created, err := svc.CreateWithPayment(CreateVerificationInput{
		UserID:    user.ID,
		Address:   "12 Marina Road",
		State:     "Lagos",
		Type:      models.VerificationTypeNormal,
		UserEmail: user.Email,
	})
	require.NoError(t, err)
	unpaid := created.Verification

	_, err = svc.AddDocument(unpaid.ID, "Deed", "https://files.example.com/deed.pdf")
	assert.Equal(t, ErrAuthorization, KindOf(err))

	_, err = svc.RejectVerification(unpaid.ID, nil)
	assert.Equal(t, ErrAuthorization, KindOf(err))

	var stored models.Verification
	require.NoError(t, db.First(&stored, unpaid.ID).Error)
	assert.Equal(t, models.VerificationStatusPendingPayment, stored.Status)
}

func TestAddDocumentValidation(t *testing.T) {
	svc, db, _, _ := newTestService(t)
	user := seedUser(t, db)
	seedPrices(t, svc)
	verification := createPaidVerification(t, svc, user)

	_, err := svc.AddDocument(0, "Deed", "https://x")
	assert.Equal(t, ErrValidation, KindOf(err))

	_, err = svc.AddDocument(verification.ID, "", "https://x")
	assert.Equal(t, ErrValidation, KindOf(err))

	_, err = svc.AddDocument(verification.ID, "Deed", "")
	assert.Equal(t, ErrValidation, KindOf(err))

	_, err = svc.AddDocument(9999, "Deed", "https://x")
	assert.Equal(t, ErrNotFound, KindOf(err))
}

func TestAddDocumentDoesNotRecomputeStatus(t *testing.T) {
	svc, db, _, _ := newTestService(t)
	user := seedUser(t, db)
	seedPrices(t, svc)
	verification := createPaidVerification(t, svc, user)

	doc, err := svc.AddDocument(verification.ID, "Deed of Assignment", "https://files.example.com/deed.pdf")
	require.NoError(t, err)
	assert.Equal(t, models.DocumentStatusPending, doc.Status)

	var stored models.Verification
	require.NoError(t, db.First(&stored, verification.ID).Error)
	assert.Equal(t, models.VerificationStatusPending, stored.Status)
}

func TestUpdateDocumentStatusSingleDocument(t *testing.T) {
	svc, db, _, _ := newTestService(t)
	user := seedUser(t, db)
	seedPrices(t, svc)
	verification := createPaidVerification(t, svc, user)

	doc, err := svc.AddDocument(verification.ID, "Survey Plan", "https://files.example.com/survey.pdf")
	require.NoError(t, err)

	adminID := uint(42)
	updated, err := svc.UpdateDocumentStatus(doc.ID, models.DocumentStatusVerified, &adminID)
	require.NoError(t, err)
	assert.Equal(t, models.DocumentStatusVerified, updated.Status)

	var stored models.Verification
	require.NoError(t, db.First(&stored, verification.ID).Error)
	assert.Equal(t, models.VerificationStatusVerified, stored.Status)

	// Two STATUS_CHANGE events: one scoped to the document, one to the
	// verification.
	var events []models.VerificationTimelineEvent
	require.NoError(t, db.Where("verification_id = ?", verification.ID).Order("id ASC").Find(&events).Error)
	require.Len(t, events, 2)
	assert.Equal(t, models.TimelineEventStatusChange, events[0].Type)
	require.NotNil(t, events[0].DocumentID)
	assert.Equal(t, doc.ID, *events[0].DocumentID)
	assert.Equal(t, models.DocumentStatusVerified, events[0].Status)
	assert.Equal(t, models.TimelineEventStatusChange, events[1].Type)
	assert.Nil(t, events[1].DocumentID)
	assert.Equal(t, models.VerificationStatusVerified, events[1].Status)
}

func TestUpdateDocumentStatusClarificationWins(t *testing.T) {
	svc, db, _, _ := newTestService(t)
	user := seedUser(t, db)
	seedPrices(t, svc)
	verification := createPaidVerification(t, svc, user)

	deed, err := svc.AddDocument(verification.ID, "Deed", "https://files.example.com/deed.pdf")
	require.NoError(t, err)
	survey, err := svc.AddDocument(verification.ID, "Survey Plan", "https://files.example.com/survey.pdf")
	require.NoError(t, err)

	_, err = svc.UpdateDocumentStatus(deed.ID, models.DocumentStatusVerified, nil)
	require.NoError(t, err)
	_, err = svc.UpdateDocumentStatus(survey.ID, models.DocumentStatusRequiresClarification, nil)
	require.NoError(t, err)

	var stored models.Verification
	require.NoError(t, db.First(&stored, verification.ID).Error)
	assert.Equal(t, models.VerificationStatusRequiresClarification, stored.Status)

	// Clearing the clarification flips the aggregate to VERIFIED.
	_, err = svc.UpdateDocumentStatus(survey.ID, models.DocumentStatusVerified, nil)
	require.NoError(t, err)
	require.NoError(t, db.First(&stored, verification.ID).Error)
	assert.Equal(t, models.VerificationStatusVerified, stored.Status)
}

func TestUpdateDocumentStatusValidation(t *testing.T) {
	svc, db, _, _ := newTestService(t)
	user := seedUser(t, db)
	seedPrices(t, svc)
	verification := createPaidVerification(t, svc, user)

	doc, err := svc.AddDocument(verification.ID, "Deed", "https://files.example.com/deed.pdf")
	require.NoError(t, err)

	_, err = svc.UpdateDocumentStatus(doc.ID, "APPROVED", nil)
	assert.Equal(t, ErrValidation, KindOf(err))

	_, err = svc.UpdateDocumentStatus(9999, models.DocumentStatusVerified, nil)
	assert.Equal(t, ErrNotFound, KindOf(err))
}

func TestAddCommentNeverChangesStatus(t *testing.T) {
	svc, db, _, _ := newTestService(t)
	user := seedUser(t, db)
	seedPrices(t, svc)
	verification := createPaidVerification(t, svc, user)

	doc, err := svc.AddDocument(verification.ID, "Deed", "https://files.example.com/deed.pdf")
	require.NoError(t, err)

	comment, err := svc.AddComment(doc.ID, user.ID, "Please re-upload page 2, it is blurry.", true)
	require.NoError(t, err)
	assert.True(t, comment.IsAdmin)

	var storedDoc models.VerificationDocument
	require.NoError(t, db.First(&storedDoc, doc.ID).Error)
	assert.Equal(t, models.DocumentStatusPending, storedDoc.Status)

	var stored models.Verification
	require.NoError(t, db.First(&stored, verification.ID).Error)
	assert.Equal(t, models.VerificationStatusPending, stored.Status)

	var events []models.VerificationTimelineEvent
	require.NoError(t, db.Where("verification_id = ? AND type = ?", verification.ID, models.TimelineEventComment).Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, comment.Content, events[0].Comment)
	require.NotNil(t, events[0].DocumentID)
	assert.Equal(t, doc.ID, *events[0].DocumentID)
}

func TestAddCommentValidation(t *testing.T) {
	svc, db, _, _ := newTestService(t)
	user := seedUser(t, db)
	seedPrices(t, svc)
	verification := createPaidVerification(t, svc, user)

	doc, err := svc.AddDocument(verification.ID, "Deed", "https://files.example.com/deed.pdf")
	require.NoError(t, err)

	_, err = svc.AddComment(doc.ID, user.ID, "   ", false)
	assert.Equal(t, ErrValidation, KindOf(err))

	_, err = svc.AddComment(9999, user.ID, "hello", false)
	assert.Equal(t, ErrNotFound, KindOf(err))
}

func TestRejectVerification(t *testing.T) {
	svc, db, _, _ := newTestService(t)
	user := seedUser(t, db)
	seedPrices(t, svc)
	verification := createPaidVerification(t, svc, user)

	adminID := uint(7)
	rejected, err := svc.RejectVerification(verification.ID, &adminID)
	require.NoError(t, err)
	assert.Equal(t, models.VerificationStatusRejected, rejected.Status)

	events, err := svc.GetTimeline(verification.ID)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, models.TimelineEventStatusChange, last.Type)
	assert.Equal(t, models.VerificationStatusRejected, last.Status)
}

func TestGetTimelineOrdering(t *testing.T) {
	svc, db, _, _ := newTestService(t)
	user := seedUser(t, db)
	seedPrices(t, svc)
	verification := createPaidVerification(t, svc, user)

	doc, err := svc.AddDocument(verification.ID, "Deed", "https://files.example.com/deed.pdf")
	require.NoError(t, err)
	_, err = svc.AddComment(doc.ID, user.ID, "Uploaded the deed.", false)
	require.NoError(t, err)
	_, err = svc.UpdateDocumentStatus(doc.ID, models.DocumentStatusVerified, nil)
	require.NoError(t, err)

	events, err := svc.GetTimeline(verification.ID)
	require.NoError(t, err)
	require.Len(t, events, 3)
	for i := 1; i < len(events); i++ {
		assert.False(t, events[i].CreatedAt.Before(events[i-1].CreatedAt))
	}

	_, err = svc.GetTimeline(9999)
	assert.Equal(t, ErrNotFound, KindOf(err))
}

func TestGetWithDetails(t *testing.T) {
	svc, db, _, _ := newTestService(t)
	user := seedUser(t, db)
	seedPrices(t, svc)
	verification := createPaidVerification(t, svc, user)

	doc, err := svc.AddDocument(verification.ID, "Deed", "https://files.example.com/deed.pdf")
	require.NoError(t, err)
	_, err = svc.AddComment(doc.ID, user.ID, "Here it is.", false)
	require.NoError(t, err)

	loaded, err := svc.GetWithDetails(verification.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded.User)
	require.Len(t, loaded.Documents, 1)
	require.Len(t, loaded.Documents[0].Comments, 1)
	require.NotNil(t, loaded.Documents[0].Comments[0].Author)
	assert.Equal(t, user.ID, loaded.Documents[0].Comments[0].Author.ID)

	_, err = svc.GetWithDetails(9999)
	assert.Equal(t, ErrNotFound, KindOf(err))
}

func TestListingPagination(t *testing.T) {
	svc, db, _, _ := newTestService(t)
	user := seedUser(t, db)
	seedPrices(t, svc)

	for i := 0; i < 3; i++ {
		createPaidVerification(t, svc, user)
	}

	all, total, err := svc.GetAll(1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, all, 2)

	rest, total, err := svc.GetAll(2, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, rest, 1)

	mine, total, err := svc.GetByUser(user.ID, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, mine, 3)

	_, _, err = svc.GetAll(0, 10)
	assert.Equal(t, ErrValidation, KindOf(err))
	_, _, err = svc.GetByUser(user.ID, 1, 0)
	assert.Equal(t, ErrValidation, KindOf(err))
	_, _, err = svc.GetByUser(0, 1, 10)
	assert.Equal(t, ErrValidation, KindOf(err))
}

func TestMailFailureNeverFailsOperation(t *testing.T) {
	svc, db, _, mailer := newTestService(t)
	user := seedUser(t, db)
	seedPrices(t, svc)
	mailer.failWith = errors.New("smtp unreachable")

	result, err := svc.CreateWithPayment(CreateVerificationInput{
		UserID:    user.ID,
		Address:   "12 Marina Road",
		State:     "Lagos",
		Type:      models.VerificationTypeNormal,
		UserEmail: user.Email,
	})
	require.NoError(t, err)

	_, err = svc.VerifyPayment(result.Verification.PaymentReference, 0)
	require.NoError(t, err)
}
