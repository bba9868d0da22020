package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/errands-backend/internal/logger"
)

const defaultFlutterwaveURL = "https://api.flutterwave.com"

// FlutterwaveGateway клиент Flutterwave v3 (Standard checkout + verify).
type FlutterwaveGateway struct {
	baseURL   string
	secretKey string
	client    *http.Client
}

// NewFlutterwaveGateway создаёт клиента. Пустой baseURL означает боевой API.
func NewFlutterwaveGateway(baseURL, secretKey string) *FlutterwaveGateway {
	if baseURL == "" {
		baseURL = defaultFlutterwaveURL
	}
	return &FlutterwaveGateway{
		baseURL:   baseURL,
		secretKey: secretKey,
		client:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (g *FlutterwaveGateway) Name() string {
	return "flutterwave"
}

type flwCustomer struct {
	Email       string `json:"email"`
	PhoneNumber string `json:"phonenumber,omitempty"`
	Name        string `json:"name,omitempty"`
}

type flwCustomizations struct {
	Title string `json:"title,omitempty"`
}

type flwPaymentRequest struct {
	TxRef          string            `json:"tx_ref"`
	Amount         string            `json:"amount"`
	Currency       string            `json:"currency"`
	RedirectURL    string            `json:"redirect_url"`
	Customer       flwCustomer       `json:"customer"`
	Customizations flwCustomizations `json:"customizations"`
}

type flwEnvelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type flwTransaction struct {
	ID            int64           `json:"id"`
	TxRef         string          `json:"tx_ref"`
	Amount        decimal.Decimal `json:"amount"`
	ChargedAmount decimal.Decimal `json:"charged_amount"`
	Currency      string          `json:"currency"`
	Status        string          `json:"status"`
}

// Initiate создаёт страницу оплаты и возвращает ссылку на неё.
func (g *FlutterwaveGateway) Initiate(ctx context.Context, req ChargeRequest) (*Checkout, error) {
	payload := flwPaymentRequest{
		TxRef:       req.TxRef,
		Amount:      req.Amount.StringFixed(2),
		Currency:    req.Currency,
		RedirectURL: req.RedirectURL,
		Customer: flwCustomer{
			Email:       req.Customer.Email,
			PhoneNumber: req.Customer.Phone,
			Name:        req.Customer.Name,
		},
		Customizations: flwCustomizations{Title: req.Title},
	}

	var data struct {
		Link string `json:"link"`
	}
	if err := g.do(ctx, http.MethodPost, "/v3/payments", payload, &data); err != nil {
		return nil, fmt.Errorf("flutterwave initiate: %w", err)
	}
	if data.Link == "" {
		return nil, fmt.Errorf("flutterwave initiate: empty checkout link")
	}

	logger.Log.WithFields(logrus.Fields{
		"tx_ref": req.TxRef,
		"amount": payload.Amount,
	}).Info("flutterwave: checkout created")

	return &Checkout{Link: data.Link}, nil
}

// Verify запрашивает у провайдера статус транзакции.
func (g *FlutterwaveGateway) Verify(ctx context.Context, providerTxID string) (*VerifiedCharge, error) {
	var data flwTransaction
	path := "/v3/transactions/" + url.PathEscape(providerTxID) + "/verify"
	if err := g.do(ctx, http.MethodGet, path, nil, &data); err != nil {
		return nil, fmt.Errorf("flutterwave verify: %w", err)
	}

	return &VerifiedCharge{
		ProviderTransactionID: fmt.Sprintf("%d", data.ID),
		TxRef:                 data.TxRef,
		Amount:                data.Amount,
		ChargedAmount:         data.ChargedAmount,
		Currency:              data.Currency,
		Status:                data.Status,
	}, nil
}

func (g *FlutterwaveGateway) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+g.secretKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}

	var envelope flwEnvelope
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || envelope.Status != "success" {
		return fmt.Errorf("status %d: %s", resp.StatusCode, envelope.Message)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(envelope.Data, out)
}
