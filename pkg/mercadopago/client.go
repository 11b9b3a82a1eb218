package mercadopago

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lucasmartinez/tienda-backend/pkg/config"
	pkgerrors "github.com/lucasmartinez/tienda-backend/pkg/errors"
	"github.com/lucasmartinez/tienda-backend/pkg/logger"
)

var (
	errAccessTokenRequired = errors.New("mercadopago access token is required")
	errLoggerRequired      = errors.New("mercadopago logger is required")
)

// Client exposes Mercado Pago primitives with centralized auth, logging, and error mapping.
type Client struct {
	http        *http.Client
	baseURL     string
	accessToken string
	backURL     string
	notifyURL   string
	storeName   string
	logger      *logger.Logger
}

// NewClient initializes the Mercado Pago wrapper and validates the credentials.
func NewClient(ctx context.Context, cfg config.MercadoPagoConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}

	accessToken := strings.TrimSpace(cfg.AccessToken)
	if accessToken == "" {
		return nil, errAccessTokenRequired
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.mercadopago.com"
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	c := &Client{
		http:        &http.Client{Timeout: timeout},
		baseURL:     baseURL,
		accessToken: accessToken,
		backURL:     strings.TrimSpace(cfg.BackURL),
		notifyURL:   strings.TrimSpace(cfg.NotifyURL),
		storeName:   cfg.StoreName,
		logger:      logg,
	}

	logg.Info(ctx, "mercadopago client initialized")
	return c, nil
}

// Payment is the subset of the Mercado Pago payment resource the storefront consumes.
type Payment struct {
	ID                 int64              `json:"id"`
	Status             string             `json:"status"`
	StatusDetail       string             `json:"status_detail"`
	ExternalReference  string             `json:"external_reference"`
	TransactionAmount  decimal.Decimal    `json:"transaction_amount"`
	Payer              Payer              `json:"payer"`
	TransactionDetails TransactionDetails `json:"transaction_details"`
}

// Payer holds the authoritative buyer data reported by the gateway.
type Payer struct {
	FirstName      string         `json:"first_name"`
	LastName       string         `json:"last_name"`
	Email          string         `json:"email"`
	Identification Identification `json:"identification"`
}

// FullName joins the payer first and last name, skipping empty parts.
func (p Payer) FullName() string {
	parts := make([]string, 0, 2)
	if strings.TrimSpace(p.FirstName) != "" {
		parts = append(parts, strings.TrimSpace(p.FirstName))
	}
	if strings.TrimSpace(p.LastName) != "" {
		parts = append(parts, strings.TrimSpace(p.LastName))
	}
	return strings.Join(parts, " ")
}

type Identification struct {
	Type   string `json:"type"`
	Number string `json:"number"`
}

type TransactionDetails struct {
	TotalPaidAmount decimal.Decimal `json:"total_paid_amount"`
}

// Approved reports whether the payment reached the approved state.
func (p *Payment) Approved() bool {
	return p != nil && p.Status == "approved"
}

// GetPayment fetches a payment resource by its gateway id.
func (c *Client) GetPayment(ctx context.Context, paymentID string) (*Payment, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id is required")
	}

	c.log(ctx, "request", "get_payment", map[string]any{"payment_id": paymentID})

	var payment Payment
	if err := c.do(ctx, http.MethodGet, "/v1/payments/"+paymentID, nil, &payment); err != nil {
		c.log(ctx, "error", "get_payment", map[string]any{"error": err.Error()})
		return nil, err
	}

	c.log(ctx, "response", "get_payment", map[string]any{
		"payment_id":         payment.ID,
		"status":             payment.Status,
		"external_reference": payment.ExternalReference,
	})
	return &payment, nil
}

// PreferenceItem is one purchasable line in a checkout preference.
type PreferenceItem struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Quantity    int64           `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	CurrencyID  string          `json:"currency_id"`
	PictureURL  string          `json:"picture_url,omitempty"`
	Description string          `json:"description,omitempty"`
	CategoryID  string          `json:"category_id,omitempty"`
}

// PreferencePayer is the buyer snapshot sent when creating a preference.
type PreferencePayer struct {
	Name           string          `json:"name,omitempty"`
	Surname        string          `json:"surname,omitempty"`
	Email          string          `json:"email,omitempty"`
	Identification *Identification `json:"identification,omitempty"`
}

// PreferenceCreateParams collects everything needed to open a checkout window.
type PreferenceCreateParams struct {
	Items              []PreferenceItem
	Payer              PreferencePayer
	ExternalReference  string
	ExpirationDateFrom time.Time
	ExpirationDateTo   time.Time
}

// Preference is the subset of the created preference the storefront consumes.
type Preference struct {
	ID                string `json:"id"`
	InitPoint         string `json:"init_point"`
	SandboxInitPoint  string `json:"sandbox_init_point"`
	ExternalReference string `json:"external_reference"`
}

type backURLs struct {
	Success string `json:"success"`
	Pending string `json:"pending"`
	Failure string `json:"failure"`
}

type preferencePaymentMethods struct {
	ExcludedPaymentMethods []map[string]string `json:"excluded_payment_methods"`
	ExcludedPaymentTypes   []map[string]string `json:"excluded_payment_types"`
	Installments           int                 `json:"installments"`
}

type preferenceRequest struct {
	Items               []PreferenceItem         `json:"items"`
	Payer               PreferencePayer          `json:"payer"`
	BackURLs            *backURLs                `json:"back_urls,omitempty"`
	AutoReturn          string                   `json:"auto_return,omitempty"`
	PaymentMethods      preferencePaymentMethods `json:"payment_methods"`
	NotificationURL     string                   `json:"notification_url,omitempty"`
	StatementDescriptor string                   `json:"statement_descriptor,omitempty"`
	Expires             bool                     `json:"expires"`
	ExpirationDateFrom  string                   `json:"expiration_date_from,omitempty"`
	ExpirationDateTo    string                   `json:"expiration_date_to,omitempty"`
	BinaryMode          bool                     `json:"binary_mode"`
	ExternalReference   string                   `json:"external_reference"`
}

// CreatePreference opens a checkout preference tied to the given external reference.
// Payments run in binary mode so the gateway only reports approved or rejected.
func (c *Client) CreatePreference(ctx context.Context, params PreferenceCreateParams) (*Preference, error) {
	if len(params.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "preference requires at least one item")
	}
	if strings.TrimSpace(params.ExternalReference) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "external reference is required")
	}

	req := preferenceRequest{
		Items:      params.Items,
		Payer:      params.Payer,
		AutoReturn: "approved",
		PaymentMethods: preferencePaymentMethods{
			ExcludedPaymentMethods: []map[string]string{},
			ExcludedPaymentTypes:   []map[string]string{},
			Installments:           1,
		},
		NotificationURL:     c.notifyURL,
		StatementDescriptor: c.storeName,
		Expires:             true,
		BinaryMode:          true,
		ExternalReference:   params.ExternalReference,
	}
	if c.backURL != "" {
		req.BackURLs = &backURLs{Success: c.backURL, Pending: c.backURL, Failure: c.backURL}
	}
	if !params.ExpirationDateFrom.IsZero() {
		req.ExpirationDateFrom = params.ExpirationDateFrom.Format(time.RFC3339)
	}
	if !params.ExpirationDateTo.IsZero() {
		req.ExpirationDateTo = params.ExpirationDateTo.Format(time.RFC3339)
	}

	c.log(ctx, "request", "create_preference", map[string]any{
		"external_reference": params.ExternalReference,
		"item_count":         len(params.Items),
	})

	var pref Preference
	if err := c.do(ctx, http.MethodPost, "/checkout/preferences", req, &pref); err != nil {
		c.log(ctx, "error", "create_preference", map[string]any{"error": err.Error()})
		return nil, err
	}

	c.log(ctx, "response", "create_preference", map[string]any{"preference_id": pref.ID})
	return &pref, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encoding mercadopago request")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "building mercadopago request")
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "calling mercadopago")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reading mercadopago response")
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return c.mapAPIError(resp.StatusCode, raw, method, path)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decoding mercadopago response")
	}
	return nil
}

type apiErrorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	Status  int    `json:"status"`
}

func (c *Client) mapAPIError(status int, raw []byte, method, path string) error {
	var body apiErrorBody
	_ = json.Unmarshal(raw, &body)

	message := body.Message
	if message == "" {
		message = body.Error
	}
	if message == "" {
		message = fmt.Sprintf("mercadopago %s %s returned %d", method, path, status)
	}

	code := pkgerrors.CodeDependency
	switch status {
	case http.StatusNotFound:
		code = pkgerrors.CodeNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		code = pkgerrors.CodeUnauthorized
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		code = pkgerrors.CodeValidation
	}

	return pkgerrors.New(code, message).WithDetails(map[string]any{
		"gateway_status": status,
	})
}

func (c *Client) log(ctx context.Context, phase, op string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logFields := map[string]any{
		"operation": op,
		"phase":     phase,
	}
	for k, v := range fields {
		logFields[k] = c.redact(k, v)
	}
	ctx = c.logger.WithFields(ctx, logFields)
	switch phase {
	case "error":
		c.logger.Error(ctx, fmt.Sprintf("mercadopago %s", op), errors.New(fmt.Sprint(fields["error"])))
	default:
		c.logger.Info(ctx, fmt.Sprintf("mercadopago %s", phase))
	}
}

func (c *Client) redact(key string, value any) any {
	lower := strings.ToLower(key)
	for _, sensitive := range []string{"token", "secret", "email", "phone", "dni", "identification"} {
		if strings.Contains(lower, sensitive) {
			return "[REDACTED]"
		}
	}
	return value
}
