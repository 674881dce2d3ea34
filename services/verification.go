package services

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"propvet-server/models"

	"github.com/google/uuid"
	"golang.org/x/exp/slices"
	"gorm.io/gorm"
)

// VerificationService is the verification lifecycle engine. It owns the
// status state machine, payment gating and the append-only timeline. The
// store, gateway and mailer are injected; there are no package-level
// instances.
type VerificationService struct {
	db      *gorm.DB
	gateway PaymentGateway
	mailer  Mailer
}

func NewVerificationService(db *gorm.DB, gateway PaymentGateway, mailer Mailer) *VerificationService {
	return &VerificationService{db: db, gateway: gateway, mailer: mailer}
}

type CreateVerificationInput struct {
	UserID      uint
	Address     string
	State       string
	Type        string
	UserEmail   string
	UserName    string
	CallbackURL string
}

type CreateVerificationResult struct {
	Verification *models.Verification `json:"verification"`
	Payment      *PaymentInitiation   `json:"payment"`
}

type VerifyPaymentResult struct {
	Verification *models.Verification `json:"verification"`
	Payment      *PaymentStatus       `json:"payment"`
}

// CreateWithPayment prices the request, persists a PENDING_PAYMENT
// verification and opens a hosted payment with the gateway. If the gateway
// call fails after the record is written, the record is deliberately kept:
// the user can retry payment against the same reference.
func (s *VerificationService) CreateWithPayment(input CreateVerificationInput) (*CreateVerificationResult, error) {
	if input.UserID == 0 {
		return nil, NewValidationError("A valid userId is required.")
	}
	if strings.TrimSpace(input.Address) == "" {
		return nil, NewValidationError("Address is required.")
	}
	if strings.TrimSpace(input.State) == "" {
		return nil, NewValidationError("State is required.")
	}
	if !slices.Contains(models.VerificationTypes, input.Type) {
		return nil, NewValidationError("Type must be either EXPRESS or NORMAL.")
	}
	if strings.TrimSpace(input.UserEmail) == "" {
		return nil, NewValidationError("User email is required for payment processing.")
	}

	price, err := s.GetPrice(input.Type)
	if err != nil {
		if KindOf(err) == ErrNotFound {
			return nil, NewValidationError("Price not found for verification type: " + input.Type)
		}
		return nil, err
	}

	reference := generatePaymentReference()

	verification := models.Verification{
		UserID:           input.UserID,
		Address:          input.Address,
		State:            input.State,
		Type:             input.Type,
		Status:           models.VerificationStatusPendingPayment,
		PaymentStatus:    models.PaymentStatusPending,
		PaymentAmount:    price.Price,
		PaymentReference: reference,
	}
	if err := s.db.Create(&verification).Error; err != nil {
		return nil, NewInternalError("failed to create verification", err)
	}

	initiation, err := s.gateway.InitializePayment(input.UserEmail, price.Price, reference, input.CallbackURL)
	if err != nil {
		// No rollback: the PENDING_PAYMENT record stays so payment can be
		// retried against the same reference.
		return nil, NewInternalError("failed to initialize payment", err)
	}

	verification.PaymentURL = initiation.AuthorizationURL
	verification.PaymentAccessCode = initiation.AccessCode
	if err := s.db.Save(&verification).Error; err != nil {
		return nil, NewInternalError("failed to record payment details", err)
	}

	if s.mailer != nil {
		name := input.UserName
		if name == "" {
			name = "User"
		}
		if mailErr := s.mailer.SendVerificationCreated(input.UserEmail, name, verification.Type, verification.ID, initiation.AuthorizationURL); mailErr != nil {
			log.Printf("failed to send verification created email for verification %d: %v", verification.ID, mailErr)
		}
	}

	return &CreateVerificationResult{Verification: &verification, Payment: initiation}, nil
}

// VerifyPayment fetches the authoritative transaction status for a reference
// and applies it. Success flips payment_status to PAID and, when the
// verification is still awaiting payment, its status to PENDING. Anything
// else records FAILED and leaves the status alone, so payment stays
// retryable. Safe to call repeatedly for the same reference.
func (s *VerificationService) VerifyPayment(reference string, verificationID uint) (*VerifyPaymentResult, error) {
	if strings.TrimSpace(reference) == "" {
		return nil, NewValidationError("Payment reference is required.")
	}

	payment, err := s.gateway.VerifyPayment(reference)
	if err != nil {
		return nil, NewInternalError("failed to verify payment", err)
	}

	var verification models.Verification
	query := s.db.Preload("User")
	if verificationID != 0 {
		err = query.First(&verification, verificationID).Error
	} else {
		err = query.Where("payment_reference = ?", reference).First(&verification).Error
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewNotFoundError("Verification not found for this payment reference.")
		}
		return nil, NewInternalError("failed to load verification", err)
	}

	if payment.Success() {
		verification.PaymentStatus = models.PaymentStatusPaid
		if verification.Status == models.VerificationStatusPendingPayment {
			verification.Status = models.VerificationStatusPending
		}
	} else {
		verification.PaymentStatus = models.PaymentStatusFailed
	}
	if err := s.db.Save(&verification).Error; err != nil {
		return nil, NewInternalError("failed to update payment status", err)
	}

	if payment.Success() && s.mailer != nil && verification.User != nil {
		user := verification.User
		if mailErr := s.mailer.SendPaymentConfirmed(user.Email, user.DisplayName(), verification.Type, verification.ID); mailErr != nil {
			log.Printf("failed to send payment confirmation email for verification %d: %v", verification.ID, mailErr)
		}
	}

	return &VerifyPaymentResult{Verification: &verification, Payment: payment}, nil
}

// AddDocument attaches a PENDING document to a paid verification. The
// aggregate status is not recomputed on add; only explicit status updates
// drive it.
func (s *VerificationService) AddDocument(verificationID uint, name string, fileURL string) (*models.VerificationDocument, error) {
	if verificationID == 0 {
		return nil, NewValidationError("A valid verificationId is required.")
	}
	if strings.TrimSpace(name) == "" {
		return nil, NewValidationError("Document name is required.")
	}
	if strings.TrimSpace(fileURL) == "" {
		return nil, NewValidationError("A valid file_url is required.")
	}

	verification, err := s.getVerification(verificationID)
	if err != nil {
		return nil, err
	}
	if err := requirePaid(verification); err != nil {
		return nil, err
	}

	document := models.VerificationDocument{
		VerificationID: verification.ID,
		Name:           name,
		FileURL:        fileURL,
		Status:         models.DocumentStatusPending,
	}
	if err := s.db.Create(&document).Error; err != nil {
		return nil, NewInternalError("failed to create document", err)
	}
	return &document, nil
}

// UpdateDocumentStatus sets a document's review status, logs a timeline event
// for it, then recomputes the verification's aggregate status from the full
// document set and logs a second event for that. The recomputation is a pure
// function of all documents (any REQUIRES_CLARIFICATION wins, then any
// PENDING, else VERIFIED), so out-of-order updates self-correct. Concurrent
// updates to the same verification race benignly: the last recomputation to
// commit wins, and there is intentionally no lock or transaction here.
func (s *VerificationService) UpdateDocumentStatus(documentID uint, status string, authorID *uint) (*models.VerificationDocument, error) {
	if documentID == 0 {
		return nil, NewValidationError("A valid documentId is required.")
	}
	if !slices.Contains(models.DocumentStatuses, status) {
		return nil, NewValidationError("Status must be one of: " + strings.Join(models.DocumentStatuses, ", "))
	}

	var document models.VerificationDocument
	if err := s.db.First(&document, documentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewNotFoundError("Document not found.")
		}
		return nil, NewInternalError("failed to load document", err)
	}

	verification, err := s.getVerification(document.VerificationID)
	if err != nil {
		return nil, err
	}
	if err := requirePaid(verification); err != nil {
		return nil, err
	}

	document.Status = status
	if err := s.db.Save(&document).Error; err != nil {
		return nil, NewInternalError("failed to update document status", err)
	}

	docEvent := models.VerificationTimelineEvent{
		VerificationID: verification.ID,
		DocumentID:     &document.ID,
		AuthorID:       authorID,
		Type:           models.TimelineEventStatusChange,
		Status:         status,
	}
	if err := s.db.Create(&docEvent).Error; err != nil {
		return nil, NewInternalError("failed to log document status change", err)
	}

	var documents []models.VerificationDocument
	if err := s.db.Where("verification_id = ?", verification.ID).Find(&documents).Error; err != nil {
		return nil, NewInternalError("failed to load documents for status aggregation", err)
	}
	newStatus := deriveVerificationStatus(documents)

	if err := s.db.Model(&models.Verification{}).Where("id = ?", verification.ID).Update("status", newStatus).Error; err != nil {
		return nil, NewInternalError("failed to update verification status", err)
	}

	verEvent := models.VerificationTimelineEvent{
		VerificationID: verification.ID,
		AuthorID:       authorID,
		Type:           models.TimelineEventStatusChange,
		Status:         newStatus,
	}
	if err := s.db.Create(&verEvent).Error; err != nil {
		return nil, NewInternalError("failed to log verification status change", err)
	}

	return &document, nil
}

// deriveVerificationStatus computes the aggregate status from the full
// document set. Priority: REQUIRES_CLARIFICATION > PENDING > VERIFIED.
func deriveVerificationStatus(documents []models.VerificationDocument) string {
	status := models.VerificationStatusVerified
	for _, doc := range documents {
		if doc.Status == models.DocumentStatusRequiresClarification {
			return models.VerificationStatusRequiresClarification
		}
		if doc.Status == models.DocumentStatusPending {
			status = models.VerificationStatusPending
		}
	}
	return status
}

// AddComment appends an immutable comment to a document on a paid
// verification and logs a COMMENT timeline event. Comments never affect
// document or verification status.
func (s *VerificationService) AddComment(documentID uint, authorID uint, content string, isAdmin bool) (*models.VerificationComment, error) {
	if documentID == 0 {
		return nil, NewValidationError("A valid documentId is required.")
	}
	if authorID == 0 {
		return nil, NewValidationError("A valid authorId is required.")
	}
	if strings.TrimSpace(content) == "" {
		return nil, NewValidationError("Comment content is required.")
	}

	var document models.VerificationDocument
	if err := s.db.First(&document, documentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewNotFoundError("Document not found.")
		}
		return nil, NewInternalError("failed to load document", err)
	}

	verification, err := s.getVerification(document.VerificationID)
	if err != nil {
		return nil, err
	}
	if err := requirePaid(verification); err != nil {
		return nil, err
	}

	comment := models.VerificationComment{
		DocumentID: document.ID,
		AuthorID:   authorID,
		Content:    content,
		IsAdmin:    isAdmin,
	}
	if err := s.db.Create(&comment).Error; err != nil {
		return nil, NewInternalError("failed to create comment", err)
	}

	event := models.VerificationTimelineEvent{
		VerificationID: verification.ID,
		DocumentID:     &document.ID,
		AuthorID:       &comment.AuthorID,
		Type:           models.TimelineEventComment,
		Comment:        content,
	}
	if err := s.db.Create(&event).Error; err != nil {
		return nil, NewInternalError("failed to log comment event", err)
	}

	return &comment, nil
}

// RejectVerification is the explicit transition into the terminal REJECTED
// status. Nothing else in the lifecycle drives it.
func (s *VerificationService) RejectVerification(verificationID uint, authorID *uint) (*models.Verification, error) {
	if verificationID == 0 {
		return nil, NewValidationError("A valid verificationId is required.")
	}

	verification, err := s.getVerification(verificationID)
	if err != nil {
		return nil, err
	}
	if err := requirePaid(verification); err != nil {
		return nil, err
	}

	verification.Status = models.VerificationStatusRejected
	if err := s.db.Save(verification).Error; err != nil {
		return nil, NewInternalError("failed to reject verification", err)
	}

	event := models.VerificationTimelineEvent{
		VerificationID: verification.ID,
		AuthorID:       authorID,
		Type:           models.TimelineEventStatusChange,
		Status:         models.VerificationStatusRejected,
	}
	if err := s.db.Create(&event).Error; err != nil {
		return nil, NewInternalError("failed to log rejection", err)
	}

	return verification, nil
}

// GetWithDetails returns the full graph: documents, their comments, comment
// authors and the owning user.
func (s *VerificationService) GetWithDetails(verificationID uint) (*models.Verification, error) {
	if verificationID == 0 {
		return nil, NewValidationError("A valid verificationId is required.")
	}

	var verification models.Verification
	err := s.db.
		Preload("User").
		Preload("Documents").
		Preload("Documents.Comments").
		Preload("Documents.Comments.Author").
		First(&verification, verificationID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewNotFoundError("Verification not found.")
		}
		return nil, NewInternalError("failed to load verification", err)
	}
	return &verification, nil
}

// GetTimeline returns all timeline events for a verification, oldest first.
func (s *VerificationService) GetTimeline(verificationID uint) ([]models.VerificationTimelineEvent, error) {
	if verificationID == 0 {
		return nil, NewValidationError("A valid verificationId is required.")
	}
	if _, err := s.getVerification(verificationID); err != nil {
		return nil, err
	}

	var events []models.VerificationTimelineEvent
	err := s.db.
		Where("verification_id = ?", verificationID).
		Order("created_at ASC, id ASC").
		Preload("Author").
		Preload("Document").
		Find(&events).Error
	if err != nil {
		return nil, NewInternalError("failed to load timeline", err)
	}
	return events, nil
}

// GetAll returns a page of verifications plus the total count.
func (s *VerificationService) GetAll(page, limit int) ([]models.Verification, int64, error) {
	if err := validatePagination(page, limit); err != nil {
		return nil, 0, err
	}

	var total int64
	if err := s.db.Model(&models.Verification{}).Count(&total).Error; err != nil {
		return nil, 0, NewInternalError("failed to count verifications", err)
	}

	var verifications []models.Verification
	err := s.db.
		Preload("User").
		Preload("Documents").
		Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&verifications).Error
	if err != nil {
		return nil, 0, NewInternalError("failed to list verifications", err)
	}
	return verifications, total, nil
}

// GetByUser returns a page of one user's verifications plus the total count.
func (s *VerificationService) GetByUser(userID uint, page, limit int) ([]models.Verification, int64, error) {
	if userID == 0 {
		return nil, 0, NewValidationError("A valid userId is required.")
	}
	if err := validatePagination(page, limit); err != nil {
		return nil, 0, err
	}

	var total int64
	if err := s.db.Model(&models.Verification{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, 0, NewInternalError("failed to count verifications", err)
	}

	var verifications []models.Verification
	err := s.db.
		Where("user_id = ?", userID).
		Preload("User").
		Preload("Documents").
		Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&verifications).Error
	if err != nil {
		return nil, 0, NewInternalError("failed to list verifications", err)
	}
	return verifications, total, nil
}

// SetPrice upserts the fee for a verification type.
func (s *VerificationService) SetPrice(verificationType string, price float64) (*models.VerificationPrice, error) {
	if !slices.Contains(models.VerificationTypes, verificationType) {
		return nil, NewValidationError("Type must be EXPRESS or NORMAL.")
	}
	if price <= 0 {
		return nil, NewValidationError("Price must be a positive number.")
	}

	var entry models.VerificationPrice
	err := s.db.Where("type = ?", verificationType).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		entry = models.VerificationPrice{Type: verificationType, Price: price}
		if err := s.db.Create(&entry).Error; err != nil {
			return nil, NewInternalError("failed to create price entry", err)
		}
		return &entry, nil
	}
	if err != nil {
		return nil, NewInternalError("failed to load price entry", err)
	}

	entry.Price = price
	if err := s.db.Save(&entry).Error; err != nil {
		return nil, NewInternalError("failed to update price entry", err)
	}
	return &entry, nil
}

// GetPrice returns the current fee for a verification type.
func (s *VerificationService) GetPrice(verificationType string) (*models.VerificationPrice, error) {
	if !slices.Contains(models.VerificationTypes, verificationType) {
		return nil, NewValidationError("Type must be EXPRESS or NORMAL.")
	}

	var entry models.VerificationPrice
	if err := s.db.Where("type = ?", verificationType).First(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewNotFoundError("No price configured for verification type: " + verificationType)
		}
		return nil, NewInternalError("failed to load price entry", err)
	}
	return &entry, nil
}

// GetAllPrices returns every configured price entry.
func (s *VerificationService) GetAllPrices() ([]models.VerificationPrice, error) {
	var entries []models.VerificationPrice
	if err := s.db.Order("type ASC").Find(&entries).Error; err != nil {
		return nil, NewInternalError("failed to list price entries", err)
	}
	return entries, nil
}

func (s *VerificationService) getVerification(verificationID uint) (*models.Verification, error) {
	var verification models.Verification
	if err := s.db.First(&verification, verificationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewNotFoundError("Verification not found.")
		}
		return nil, NewInternalError("failed to load verification", err)
	}
	return &verification, nil
}

// requirePaid gates every document-affecting operation on a settled payment.
func requirePaid(verification *models.Verification) error {
	if verification.PaymentStatus != models.PaymentStatusPaid {
		return NewAuthorizationError("Payment must be completed before performing verification actions.")
	}
	return nil
}

func validatePagination(page, limit int) error {
	if page < 1 {
		return NewValidationError("Page must be a positive integer.")
	}
	if limit < 1 {
		return NewValidationError("Limit must be a positive integer.")
	}
	return nil
}

func generatePaymentReference() string {
	return fmt.Sprintf("VER_%d_%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}
