package payment

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/obelyakov/teleshop-checkout/internal/model"
)

// Paypalych реализует оплату через API PayPaly (paypalych).
//
// Платёж создаётся запросом bill/create, уведомление приходит postback'ом
// (JSON либо form-data) с полями OutSum/BalanceAmount/InvId/Status.
// Подпись в postback необязательна; при её наличии проверяется
// md5(OutSum:InvId:token).
type Paypalych struct {
	apiURL string
	token  string
	shopID string
	client *retryablehttp.Client
}

// NewPaypalych создаёт провайдера PayPaly с ретраями сетевых ошибок.
func NewPaypalych(apiURL, token, shopID string) *Paypalych {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 3 * time.Second
	client.HTTPClient.Timeout = 10 * time.Second
	client.Logger = nil

	return &Paypalych{
		apiURL: strings.TrimRight(apiURL, "/"),
		token:  token,
		shopID: shopID,
		client: client,
	}
}

// Name возвращает имя провайдера.
func (p *Paypalych) Name() string { return "paypalych" }

type paypalychCreateRequest struct {
	Amount      string `json:"amount"`
	OrderID     string `json:"order_id"`
	Description string `json:"description"`
	ShopID      string `json:"shop_id"`
	CurrencyIn  string `json:"currency_in"`
	Method      string `json:"payment_method"`
}

type paypalychCreateResponse struct {
	Success     bool   `json:"success"`
	BillID      string `json:"bill_id"`
	LinkURL     string `json:"link_url"`
	LinkPageURL string `json:"link_page_url"`
	Message     string `json:"message"`
}

// CreatePayment создаёт счёт на оплату через API PayPaly.
func (p *Paypalych) CreatePayment(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	body, err := json.Marshal(paypalychCreateRequest{
		Amount:      FormatAmount(req.AmountCents),
		OrderID:     fmt.Sprintf("%d", req.OrderID),
		Description: req.Description,
		ShopID:      p.shopID,
		CurrencyIn:  req.Currency,
		Method:      req.Method,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal bill request: %w", err)
	}

	httpReq, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, p.apiURL+"/bill/create", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create bill request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("bill create request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bill create: unexpected status %d", resp.StatusCode)
	}

	var result paypalychCreateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode bill response: %w", err)
	}
	if !result.Success || result.BillID == "" {
		return nil, fmt.Errorf("bill create rejected: %s", result.Message)
	}

	paymentURL := result.LinkPageURL
	if paymentURL == "" {
		paymentURL = result.LinkURL
	}

	return &CreateResult{
		ExternalID: result.BillID,
		PaymentURL: paymentURL,
		Status:     model.PaymentStatusPending,
	}, nil
}

// VerifyWebhookSignature проверяет подпись postback. PayPaly может не
// присылать подпись, в этом случае проверка считается пройденной.
func (p *Paypalych) VerifyWebhookSignature(amount string, orderID int64, signature string) bool {
	if signature == "" {
		return true
	}
	sum := md5.Sum([]byte(fmt.Sprintf("%s:%d:%s", amount, orderID, p.token)))
	return strings.EqualFold(signature, hex.EncodeToString(sum[:]))
}
