package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// PaymentInitiation is the hosted-payment handle returned when a transaction
// is opened with the gateway.
type PaymentInitiation struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

// PaymentStatus is the normalized result of a transaction lookup. Amount is
// in display currency units; the gateway adapter owns minor-unit conversion.
type PaymentStatus struct {
	Status    string  `json:"status"`
	Amount    float64 `json:"amount"`
	Reference string  `json:"reference"`
	PaidAt    string  `json:"paid_at"`
	Channel   string  `json:"channel"`
}

// Success reports whether the gateway settled the transaction.
func (p *PaymentStatus) Success() bool { return p.Status == "success" }

// PaymentGateway initiates and verifies hosted payments by reference.
type PaymentGateway interface {
	InitializePayment(email string, amount float64, reference string, callbackURL string) (*PaymentInitiation, error)
	VerifyPayment(reference string) (*PaymentStatus, error)
}

// PaystackGateway talks to the Paystack transaction API. Paystack expresses
// amounts in kobo, so amounts are multiplied by 100 on the way out and
// divided by 100 on the way back.
type PaystackGateway struct {
	BaseURL   string
	SecretKey string
	Client    *http.Client
}

func NewPaystackGateway(secretKey string) *PaystackGateway {
	return &PaystackGateway{
		BaseURL:   "https://api.paystack.co",
		SecretKey: secretKey,
		Client:    &http.Client{Timeout: 15 * time.Second},
	}
}

type paystackInitializeResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	} `json:"data"`
}

type paystackVerifyResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Status    string  `json:"status"`
		Amount    float64 `json:"amount"`
		Reference string  `json:"reference"`
		PaidAt    string  `json:"paid_at"`
		Channel   string  `json:"channel"`
	} `json:"data"`
}

func (g *PaystackGateway) InitializePayment(email string, amount float64, reference string, callbackURL string) (*PaymentInitiation, error) {
	payload := map[string]interface{}{
		"email":     email,
		"amount":    int64(amount * 100),
		"reference": reference,
	}
	if callbackURL != "" {
		payload["callback_url"] = callbackURL
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, g.BaseURL+"/transaction/initialize", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	g.setHeaders(req)

	var parsed paystackInitializeResponse
	if err := g.do(req, &parsed); err != nil {
		return nil, err
	}
	if !parsed.Status {
		return nil, fmt.Errorf("paystack initialize rejected: %s", parsed.Message)
	}

	return &PaymentInitiation{
		AuthorizationURL: parsed.Data.AuthorizationURL,
		AccessCode:       parsed.Data.AccessCode,
		Reference:        parsed.Data.Reference,
	}, nil
}

func (g *PaystackGateway) VerifyPayment(reference string) (*PaymentStatus, error) {
	req, err := http.NewRequest(http.MethodGet, g.BaseURL+"/transaction/verify/"+reference, nil)
	if err != nil {
		return nil, err
	}
	g.setHeaders(req)

	var parsed paystackVerifyResponse
	if err := g.do(req, &parsed); err != nil {
		return nil, err
	}
	if !parsed.Status {
		return nil, fmt.Errorf("paystack verify rejected: %s", parsed.Message)
	}

	return &PaymentStatus{
		Status:    parsed.Data.Status,
		Amount:    parsed.Data.Amount / 100,
		Reference: parsed.Data.Reference,
		PaidAt:    parsed.Data.PaidAt,
		Channel:   parsed.Data.Channel,
	}, nil
}

func (g *PaystackGateway) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+g.SecretKey)
	req.Header.Set("Content-Type", "application/json")
}

func (g *PaystackGateway) do(req *http.Request, out interface{}) error {
	client := g.Client
	if client == nil {
		client = http.DefaultClient
	}

	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return err
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return fmt.Errorf("paystack returned status %d: %s", res.StatusCode, string(body))
	}
	return json.Unmarshal(body, out)
}
