package main

import (
	"fmt"
	"log"
	"os"

	"propvet-server/routes"
	"propvet-server/services"
	"propvet-server/storage"
	"propvet-server/utils"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kataras/iris/v12"
	"github.com/kataras/iris/v12/middleware/jwt"
)

func main() {
	// Only load .env in development
	if os.Getenv("RENDER") == "" {
		godotenv.Load()
	}

	storage.InitializeDB()
	storage.InitializeRedis()

	app := iris.New()
	app.Validator = validator.New()

	// CORS configuration
	app.AllowMethods(iris.MethodOptions)
	app.UseRouter(func(ctx iris.Context) {
		ctx.Header("Access-Control-Allow-Origin", ctx.GetHeader("Origin"))
		ctx.Header("Vary", "Origin")
		ctx.Header("Access-Control-Allow-Credentials", "true")
		ctx.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Requested-With")
		ctx.Header("Access-Control-Allow-Methods", "GET,POST,PATCH,PUT,DELETE,OPTIONS")
		if ctx.Method() == iris.MethodOptions {
			ctx.StatusCode(iris.StatusNoContent)
			return
		}
		ctx.Next()
	})

	// Minimal middleware - compression only
	app.Use(iris.Compression)

	// JWT Verifiers
	resetTokenVerifier := jwt.NewVerifier(jwt.HS256, []byte(os.Getenv("EMAIL_TOKEN_SECRET")))
	resetTokenVerifier.WithDefaultBlocklist()
	resetTokenVerifierMiddleware := resetTokenVerifier.Verify(func() interface{} {
		return new(utils.ForgotPasswordToken)
	})

	accessTokenVerifier := jwt.NewVerifier(jwt.HS256, []byte(os.Getenv("ACCESS_TOKEN_SECRET")))
	accessTokenVerifier.WithDefaultBlocklist()
	accessTokenVerifierMiddleware := accessTokenVerifier.Verify(func() interface{} {
		return new(utils.AccessToken)
	})

	refreshTokenVerifier := jwt.NewVerifier(jwt.HS256, []byte(os.Getenv("REFRESH_TOKEN_SECRET")))
	refreshTokenVerifier.WithDefaultBlocklist()
	refreshTokenVerifierMiddleware := refreshTokenVerifier.Verify(func() interface{} {
		return new(jwt.Claims)
	})

	refreshTokenVerifier.Extractors = append(refreshTokenVerifier.Extractors, func(ctx iris.Context) string {
		var tokenInput utils.RefreshTokenInput
		err := ctx.ReadJSON(&tokenInput)
		if err != nil {
			return ""
		}
		return tokenInput.RefreshToken
	})

	// Health check endpoint - CRITICAL for Render
	app.Get("/health", func(ctx iris.Context) {
		ctx.JSON(iris.Map{"status": "ok"})
	})

	// Wiring
	gateway := services.NewPaystackGateway(os.Getenv("PAYSTACK_SECRET"))
	mailer := services.NewSMTPMailerFromEnv()
	verificationSvc := services.NewVerificationService(storage.DB, gateway, mailer)

	userHandler := routes.NewUserHandler(mailer)
	verificationHandler := routes.NewVerificationHandler(verificationSvc, os.Getenv("PAYSTACK_SECRET"))

	// Routes
	user := app.Party("/api/user")
	{
		user.Post("/register", userHandler.Register)
		user.Post("/login", userHandler.Login)
		user.Post("/forgotpassword", userHandler.ForgotPassword)
		user.Post("/resetpassword", resetTokenVerifierMiddleware, userHandler.ResetPassword)
		user.Get("/{id}", accessTokenVerifierMiddleware, utils.UserIDMiddleware, userHandler.GetUser)
	}

	verification := app.Party("/api/verification")
	{
		verification.Post("/create", accessTokenVerifierMiddleware, utils.UserIDFromTokenMiddleware, verificationHandler.Create)
		verification.Post("/verify-payment", accessTokenVerifierMiddleware, verificationHandler.VerifyPayment)
		verification.Get("/payment-callback/{verificationID:uint}", verificationHandler.PaymentCallback)
		verification.Post("/payment-webhook", verificationHandler.PaymentWebhook)
		verification.Post("/add-document", accessTokenVerifierMiddleware, verificationHandler.AddDocument)
		verification.Post("/add-comment", accessTokenVerifierMiddleware, verificationHandler.AddComment)
		verification.Get("/user/{userID:uint}", accessTokenVerifierMiddleware, verificationHandler.GetByUser)
		verification.Get("/price", verificationHandler.GetPrice)
		verification.Get("/prices", verificationHandler.GetAllPrices)
		verification.Get("/{verificationID:uint}/timeline", accessTokenVerifierMiddleware, verificationHandler.GetTimeline)
		verification.Get("/{verificationID:uint}", accessTokenVerifierMiddleware, verificationHandler.GetDetails)
	}

	admin := app.Party("/api/admin", accessTokenVerifierMiddleware, utils.AdminOnlyMiddleware)
	{
		admin.Get("/users", userHandler.AdminListUsers)
		admin.Patch("/users/{id:uint}/status", userHandler.AdminSetUserStatus)
		admin.Get("/verifications", verificationHandler.GetAll)
		admin.Patch("/verifications/document-status", verificationHandler.UpdateDocumentStatus)
		admin.Post("/verifications/{verificationID:uint}/reject", verificationHandler.Reject)
		admin.Post("/verifications/price", verificationHandler.SetPrice)
	}

	app.Post("/api/refresh", refreshTokenVerifierMiddleware, utils.RefreshToken)

	// Get port from environment
	port := os.Getenv("PORT")
	if port == "" {
		port = "4000"
	}
	addr := "0.0.0.0:" + port

	fmt.Printf("🚀 Server starting on %s\n", addr)

	if err := app.Listen(addr); err != nil {
		log.Fatalf("❌ Server failed: %v", err)
	}
}
