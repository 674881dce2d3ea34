package routes

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"propvet-server/models"
	"propvet-server/services"
	"propvet-server/storage"
	"propvet-server/utils"

	"github.com/kataras/iris/v12"
	jsonWT "github.com/kataras/iris/v12/middleware/jwt"
)

// VerificationHandler is the HTTP boundary for the verification lifecycle
// engine. Identity comes from the access token; the engine trusts it.
type VerificationHandler struct {
	Svc           *services.VerificationService
	WebhookSecret string
}

func NewVerificationHandler(svc *services.VerificationService, webhookSecret string) *VerificationHandler {
	return &VerificationHandler{Svc: svc, WebhookSecret: webhookSecret}
}

type CreateVerificationRequest struct {
	Address     string `json:"address" validate:"required,max=512"`
	State       string `json:"state" validate:"required,max=128"`
	Type        string `json:"type" validate:"required,oneof=EXPRESS NORMAL"`
	CallbackURL string `json:"callback_url" validate:"omitempty,url"`
}

type VerifyPaymentRequest struct {
	Reference      string `json:"reference" validate:"required"`
	VerificationID uint   `json:"verification_id"`
}

type AddDocumentRequest struct {
	VerificationID uint   `json:"verification_id" validate:"required"`
	Name           string `json:"name" validate:"required,max=255"`
	FileURL        string `json:"file_url" validate:"omitempty,max=512"`
	FileData       string `json:"file_data"` // base64 payload, uploaded server-side when file_url is absent
}

type UpdateDocumentStatusRequest struct {
	DocumentID uint   `json:"document_id" validate:"required"`
	Status     string `json:"status" validate:"required,oneof=PENDING VERIFIED REQUIRES_CLARIFICATION"`
}

type AddCommentRequest struct {
	DocumentID uint   `json:"document_id" validate:"required"`
	Content    string `json:"content" validate:"required,max=5000"`
}

type SetPriceRequest struct {
	Type  string  `json:"type" validate:"required,oneof=EXPRESS NORMAL"`
	Price float64 `json:"price" validate:"required,gt=0"`
}

// POST /api/verification/create
func (h *VerificationHandler) Create(ctx iris.Context) {
	claims := jsonWT.Get(ctx).(*utils.AccessToken)

	var input CreateVerificationRequest
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	var user models.User
	if err := storage.DB.First(&user, claims.ID).Error; err != nil {
		utils.CreateNotFound(ctx)
		return
	}

	result, err := h.Svc.CreateWithPayment(services.CreateVerificationInput{
		UserID:      user.ID,
		Address:     input.Address,
		State:       input.State,
		Type:        input.Type,
		UserEmail:   user.Email,
		UserName:    user.DisplayName(),
		CallbackURL: input.CallbackURL,
	})
	if err != nil {
		utils.HandleServiceError(err, ctx)
		return
	}

	ctx.StatusCode(iris.StatusCreated)
	ctx.JSON(iris.Map{"data": result})
}

// POST /api/verification/verify-payment
func (h *VerificationHandler) VerifyPayment(ctx iris.Context) {
	var input VerifyPaymentRequest
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	result, err := h.Svc.VerifyPayment(input.Reference, input.VerificationID)
	if err != nil {
		utils.HandleServiceError(err, ctx)
		return
	}
	ctx.JSON(iris.Map{"data": result})
}

// GET /api/verification/payment-callback/{verificationID}
// Paystack redirects the payer here after checkout; the transaction is
// re-verified against the API rather than trusting the redirect.
func (h *VerificationHandler) PaymentCallback(ctx iris.Context) {
	id, err := ctx.Params().GetUint("verificationID")
	if err != nil {
		utils.JSONError(ctx, iris.StatusBadRequest, "invalid_id", "invalid verification id")
		return
	}

	verification, svcErr := h.Svc.GetWithDetails(id)
	if svcErr != nil {
		utils.HandleServiceError(svcErr, ctx)
		return
	}

	result, svcErr := h.Svc.VerifyPayment(verification.PaymentReference, verification.ID)
	if svcErr != nil {
		utils.HandleServiceError(svcErr, ctx)
		return
	}
	ctx.JSON(iris.Map{"data": result})
}

type paystackWebhookEvent struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
	} `json:"data"`
}

// POST /api/verification/payment-webhook
// Public endpoint. The request is authenticated by the x-paystack-signature
// header: an HMAC-SHA512 of the raw body under the secret key. Invalid
// signatures never reach the lifecycle engine.
func (h *VerificationHandler) PaymentWebhook(ctx iris.Context) {
	body, err := ctx.GetBody()
	if err != nil {
		utils.JSONError(ctx, iris.StatusBadRequest, "invalid_payload", "unreadable body")
		return
	}

	if !h.validWebhookSignature(body, ctx.GetHeader("x-paystack-signature")) {
		utils.JSONError(ctx, iris.StatusUnauthorized, "invalid_signature", "webhook signature mismatch")
		return
	}

	var event paystackWebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		utils.JSONError(ctx, iris.StatusBadRequest, "invalid_payload", "malformed webhook event")
		return
	}

	if event.Event == "charge.success" && event.Data.Reference != "" {
		if _, svcErr := h.Svc.VerifyPayment(event.Data.Reference, 0); svcErr != nil {
			// Acknowledge anyway; Paystack retries on non-2xx and the
			// transaction can still be settled via verify-payment.
			log.Printf("webhook payment verification failed for reference %s: %v", event.Data.Reference, svcErr)
		}
	}

	ctx.JSON(iris.Map{"status": "ok"})
}

func (h *VerificationHandler) validWebhookSignature(body []byte, signature string) bool {
	if h.WebhookSecret == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha512.New, []byte(h.WebhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// requireOwnerOrAdmin loads the verification and rejects callers that neither
// own it nor hold the ADMIN role. Returns false when a response was written.
func requireOwnerOrAdmin(ctx iris.Context, verificationID uint) bool {
	claims := jsonWT.Get(ctx).(*utils.AccessToken)
	if claims.Role == models.RoleAdmin {
		return true
	}
	var verification models.Verification
	if err := storage.DB.Select("id, user_id").First(&verification, verificationID).Error; err != nil {
		utils.CreateNotFound(ctx)
		return false
	}
	if verification.UserID != claims.ID {
		ctx.StatusCode(iris.StatusForbidden)
		ctx.JSON(iris.Map{"error": "forbidden", "message": "cannot access another user's verification"})
		return false
	}
	return true
}

// POST /api/verification/add-document
func (h *VerificationHandler) AddDocument(ctx iris.Context) {
	var input AddDocumentRequest
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}
	if !requireOwnerOrAdmin(ctx, input.VerificationID) {
		return
	}

	fileURL := input.FileURL
	if fileURL == "" {
		if input.FileData == "" {
			utils.JSONError(ctx, iris.StatusBadRequest, "invalid_payload", "either file_url or file_data is required")
			return
		}
		publicID := fmt.Sprintf("verification_%d_%d", input.VerificationID, time.Now().UnixNano())
		uploaded, uploadErr := storage.UploadBase64Document(input.FileData, publicID)
		if uploadErr != nil {
			log.Printf("document upload failed for verification %d: %v", input.VerificationID, uploadErr)
			utils.JSONError(ctx, iris.StatusBadRequest, "upload_failed", "document upload failed")
			return
		}
		fileURL = uploaded
	}

	document, err := h.Svc.AddDocument(input.VerificationID, input.Name, fileURL)
	if err != nil {
		utils.HandleServiceError(err, ctx)
		return
	}

	ctx.StatusCode(iris.StatusCreated)
	ctx.JSON(iris.Map{"data": document})
}

// PATCH /api/verification/update-document-status (admin)
func (h *VerificationHandler) UpdateDocumentStatus(ctx iris.Context) {
	claims := jsonWT.Get(ctx).(*utils.AccessToken)

	var input UpdateDocumentStatusRequest
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	authorID := claims.ID
	document, err := h.Svc.UpdateDocumentStatus(input.DocumentID, input.Status, &authorID)
	if err != nil {
		utils.HandleServiceError(err, ctx)
		return
	}

	utils.Audit(ctx, "verification.document_status_update", "verification_document", document.ID, nil, document)
	ctx.JSON(iris.Map{"data": document})
}

// POST /api/verification/add-comment
func (h *VerificationHandler) AddComment(ctx iris.Context) {
	claims := jsonWT.Get(ctx).(*utils.AccessToken)

	var input AddCommentRequest
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	isAdmin := claims.Role == models.RoleAdmin
	comment, err := h.Svc.AddComment(input.DocumentID, claims.ID, input.Content, isAdmin)
	if err != nil {
		utils.HandleServiceError(err, ctx)
		return
	}

	ctx.StatusCode(iris.StatusCreated)
	ctx.JSON(iris.Map{"data": comment})
}

// POST /api/verification/{verificationID}/reject (admin)
func (h *VerificationHandler) Reject(ctx iris.Context) {
	claims := jsonWT.Get(ctx).(*utils.AccessToken)

	id, err := ctx.Params().GetUint("verificationID")
	if err != nil {
		utils.JSONError(ctx, iris.StatusBadRequest, "invalid_id", "invalid verification id")
		return
	}

	authorID := claims.ID
	verification, svcErr := h.Svc.RejectVerification(id, &authorID)
	if svcErr != nil {
		utils.HandleServiceError(svcErr, ctx)
		return
	}

	utils.Audit(ctx, "verification.reject", "verification", verification.ID, nil, verification)
	ctx.JSON(iris.Map{"data": verification})
}

// GET /api/verification/all?page=&limit= (admin)
func (h *VerificationHandler) GetAll(ctx iris.Context) {
	page := ctx.URLParamIntDefault("page", 1)
	limit := ctx.URLParamIntDefault("limit", 10)

	verifications, total, err := h.Svc.GetAll(page, limit)
	if err != nil {
		utils.HandleServiceError(err, ctx)
		return
	}
	utils.JSONPage(ctx, verifications, page, limit, total)
}

// GET /api/verification/user/{userID}?page=&limit=
func (h *VerificationHandler) GetByUser(ctx iris.Context) {
	claims := jsonWT.Get(ctx).(*utils.AccessToken)

	userID, err := ctx.Params().GetUint("userID")
	if err != nil {
		utils.JSONError(ctx, iris.StatusBadRequest, "invalid_id", "invalid user id")
		return
	}
	if claims.ID != userID && claims.Role != models.RoleAdmin {
		ctx.StatusCode(iris.StatusForbidden)
		ctx.JSON(iris.Map{"error": "forbidden", "message": "cannot view another user's verifications"})
		return
	}

	page := ctx.URLParamIntDefault("page", 1)
	limit := ctx.URLParamIntDefault("limit", 10)

	verifications, total, svcErr := h.Svc.GetByUser(userID, page, limit)
	if svcErr != nil {
		utils.HandleServiceError(svcErr, ctx)
		return
	}
	utils.JSONPage(ctx, verifications, page, limit, total)
}

// GET /api/verification/{verificationID}/timeline
func (h *VerificationHandler) GetTimeline(ctx iris.Context) {
	id, err := ctx.Params().GetUint("verificationID")
	if err != nil {
		utils.JSONError(ctx, iris.StatusBadRequest, "invalid_id", "invalid verification id")
		return
	}

	if !requireOwnerOrAdmin(ctx, id) {
		return
	}

	events, svcErr := h.Svc.GetTimeline(id)
	if svcErr != nil {
		utils.HandleServiceError(svcErr, ctx)
		return
	}
	ctx.JSON(iris.Map{"data": events})
}

// GET /api/verification/{verificationID}
func (h *VerificationHandler) GetDetails(ctx iris.Context) {
	id, err := ctx.Params().GetUint("verificationID")
	if err != nil {
		utils.JSONError(ctx, iris.StatusBadRequest, "invalid_id", "invalid verification id")
		return
	}

	if !requireOwnerOrAdmin(ctx, id) {
		return
	}

	verification, svcErr := h.Svc.GetWithDetails(id)
	if svcErr != nil {
		utils.HandleServiceError(svcErr, ctx)
		return
	}
	ctx.JSON(iris.Map{"data": verification})
}

// POST /api/verification/set-price (admin)
func (h *VerificationHandler) SetPrice(ctx iris.Context) {
	var input SetPriceRequest
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	entry, err := h.Svc.SetPrice(input.Type, input.Price)
	if err != nil {
		utils.HandleServiceError(err, ctx)
		return
	}

	utils.Audit(ctx, "verification.price_update", "verification_price", entry.ID, nil, entry)
	ctx.JSON(iris.Map{"data": entry})
}

// GET /api/verification/price?type=
func (h *VerificationHandler) GetPrice(ctx iris.Context) {
	verificationType := ctx.URLParamDefault("type", "")

	entry, err := h.Svc.GetPrice(verificationType)
	if err != nil {
		utils.HandleServiceError(err, ctx)
		return
	}
	ctx.JSON(iris.Map{"data": entry})
}

// GET /api/verification/prices
func (h *VerificationHandler) GetAllPrices(ctx iris.Context) {
	entries, err := h.Svc.GetAllPrices()
	if err != nil {
		utils.HandleServiceError(err, ctx)
		return
	}
	ctx.JSON(iris.Map{"data": entries})
}
