package routes

import (
	"errors"
	"log"
	"strings"
	"time"

	"propvet-server/models"
	"propvet-server/services"
	"propvet-server/storage"
	"propvet-server/utils"

	"github.com/kataras/iris/v12"
	jsonWT "github.com/kataras/iris/v12/middleware/jwt"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/exp/slices"
	"gorm.io/gorm"
)

// UserHandler serves registration, authentication and account management.
type UserHandler struct {
	Mailer services.Mailer
}

func NewUserHandler(mailer services.Mailer) *UserHandler {
	return &UserHandler{Mailer: mailer}
}

type RegisterUserInput struct {
	Username  string `json:"username" validate:"required,min=3,max=64"`
	FirstName string `json:"first_name" validate:"max=256"`
	LastName  string `json:"last_name" validate:"max=256"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8,max=256"`
}

type LoginUserInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type ForgotPasswordInput struct {
	Email string `json:"email" validate:"required,email"`
}

type ResetPasswordInput struct {
	Password string `json:"password" validate:"required,min=8,max=256"`
}

type SetUserStatusInput struct {
	Status string `json:"status" validate:"required"`
}

func (h *UserHandler) Register(ctx iris.Context) {
	var userInput RegisterUserInput
	err := ctx.ReadJSON(&userInput)
	if err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	email := strings.ToLower(userInput.Email)

	var existing models.User
	lookupErr := storage.DB.Where("email = ? OR username = ?", email, userInput.Username).First(&existing).Error
	if lookupErr == nil {
		utils.CreateError(iris.StatusConflict, "Registration Error", "Email or username already registered.", ctx)
		return
	}
	if !errors.Is(lookupErr, gorm.ErrRecordNotFound) {
		utils.CreateInternalServerError(ctx)
		return
	}

	hashedPassword, hashErr := hashAndSaltPassword(userInput.Password)
	if hashErr != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	newUser := models.User{
		Username:  userInput.Username,
		FirstName: userInput.FirstName,
		LastName:  userInput.LastName,
		Email:     email,
		Password:  hashedPassword,
		Role:      models.RoleUser,
		Status:    models.UserStatusActive,
	}
	if err := storage.DB.Create(&newUser).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	if h.Mailer != nil {
		if mailErr := h.Mailer.SendWelcome(newUser.Email, newUser.DisplayName()); mailErr != nil {
			log.Printf("failed to send welcome email to user %d: %v", newUser.ID, mailErr)
		}
	}

	returnUser(newUser, ctx)
}

func (h *UserHandler) Login(ctx iris.Context) {
	var userInput LoginUserInput
	err := ctx.ReadJSON(&userInput)
	if err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	errorMsg := "Invalid email or password."
	var existingUser models.User
	lookupErr := storage.DB.Where("email = ?", strings.ToLower(userInput.Email)).First(&existingUser).Error
	if errors.Is(lookupErr, gorm.ErrRecordNotFound) {
		utils.CreateError(iris.StatusUnauthorized, "Credentials Error", errorMsg, ctx)
		return
	}
	if lookupErr != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	if existingUser.Status != models.UserStatusActive {
		utils.CreateError(iris.StatusForbidden, "Account Error", "Account is not active.", ctx)
		return
	}

	passwordErr := bcrypt.CompareHashAndPassword([]byte(existingUser.Password), []byte(userInput.Password))
	if passwordErr != nil {
		utils.CreateError(iris.StatusUnauthorized, "Credentials Error", errorMsg, ctx)
		return
	}

	now := time.Now()
	storage.DB.Model(&existingUser).Update("last_login_at", &now)

	returnUser(existingUser, ctx)
}

// ForgotPassword always answers 200 so account existence is never leaked.
func (h *UserHandler) ForgotPassword(ctx iris.Context) {
	var input ForgotPasswordInput
	err := ctx.ReadJSON(&input)
	if err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	var user models.User
	lookupErr := storage.DB.Where("email = ?", strings.ToLower(input.Email)).First(&user).Error
	if lookupErr == nil {
		token, tokenErr := utils.CreateForgotPasswordToken(user.ID, user.Email)
		if tokenErr == nil && h.Mailer != nil {
			if mailErr := h.Mailer.SendPasswordReset(user.Email, user.DisplayName(), token); mailErr != nil {
				log.Printf("failed to send password reset email to user %d: %v", user.ID, mailErr)
			}
		}
	}

	ctx.JSON(iris.Map{"message": "If that email is registered, a reset link has been sent."})
}

func (h *UserHandler) ResetPassword(ctx iris.Context) {
	claims := jsonWT.Get(ctx).(*utils.ForgotPasswordToken)

	var input ResetPasswordInput
	err := ctx.ReadJSON(&input)
	if err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	hashedPassword, hashErr := hashAndSaltPassword(input.Password)
	if hashErr != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	now := time.Now()
	updateErr := storage.DB.Model(&models.User{}).
		Where("id = ?", claims.ID).
		Updates(map[string]interface{}{
			"password":                hashedPassword,
			"last_password_update_at": &now,
		}).Error
	if updateErr != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	ctx.JSON(iris.Map{"message": "Password updated."})
}

func (h *UserHandler) GetUser(ctx iris.Context) {
	id, err := ctx.Params().GetUint("id")
	if err != nil {
		utils.JSONError(ctx, iris.StatusBadRequest, "invalid_id", "invalid id")
		return
	}

	var user models.User
	if err := storage.DB.First(&user, id).Error; err != nil {
		utils.CreateNotFound(ctx)
		return
	}
	ctx.JSON(iris.Map{"data": user})
}

// GET /api/admin/users?page=&per_page=
func (h *UserHandler) AdminListUsers(ctx iris.Context) {
	page := ctx.URLParamIntDefault("page", 1)
	perPage := ctx.URLParamIntDefault("per_page", 25)
	if page < 1 {
		page = 1
	}
	if perPage <= 0 || perPage > 100 {
		perPage = 25
	}

	var total int64
	storage.DB.Model(&models.User{}).Count(&total)

	var users []models.User
	if err := storage.DB.Offset((page - 1) * perPage).Limit(perPage).Order("created_at DESC").Find(&users).Error; err != nil {
		utils.JSONError(ctx, iris.StatusInternalServerError, "server_error", "failed to list users")
		return
	}
	utils.JSONPage(ctx, users, page, perPage, total)
}

// PATCH /api/admin/users/{id}/status { status }
func (h *UserHandler) AdminSetUserStatus(ctx iris.Context) {
	id, err := ctx.Params().GetUint("id")
	if err != nil {
		utils.JSONError(ctx, iris.StatusBadRequest, "invalid_id", "invalid id")
		return
	}

	var input SetUserStatusInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}
	if !slices.Contains(models.UserStatuses, input.Status) {
		utils.JSONError(ctx, iris.StatusBadRequest, "invalid_status", "Status must be one of: "+strings.Join(models.UserStatuses, ", "))
		return
	}

	var user models.User
	if err := storage.DB.First(&user, id).Error; err != nil {
		utils.CreateNotFound(ctx)
		return
	}

	before := user
	user.Status = input.Status
	if err := storage.DB.Save(&user).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	utils.Audit(ctx, "user.status_update", "user", user.ID, before, user)
	ctx.JSON(iris.Map{"data": user})
}

func hashAndSaltPassword(password string) (string, error) {
	bytePassword := []byte(password)
	hashedPassword, err := bcrypt.GenerateFromPassword(bytePassword, bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashedPassword), nil
}

func returnUser(user models.User, ctx iris.Context) {
	tokenPair, tokenErr := utils.CreateTokenPair(user.ID)
	if tokenErr != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	ctx.JSON(iris.Map{
		"ID":           user.ID,
		"username":     user.Username,
		"first_name":   user.FirstName,
		"last_name":    user.LastName,
		"email":        user.Email,
		"role":         user.Role,
		"status":       user.Status,
		"accessToken":  string(tokenPair.AccessToken),
		"refreshToken": string(tokenPair.RefreshToken),
	})
}
