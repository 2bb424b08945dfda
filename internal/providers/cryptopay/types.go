package cryptopay

import (
	"errors"
	"fmt"
)

var (
	// ErrInvoiceNotFound means getInvoices returned no item for the id.
	ErrInvoiceNotFound = errors.New("invoice not found")
	// ErrTransient marks failures worth retrying later: network, 5xx and 429.
	ErrTransient = errors.New("transient provider failure")
)

type Status string

const (
	StatusActive  Status = "active"
	StatusPaid    Status = "paid"
	StatusExpired Status = "expired"
)

type Invoice struct {
	InvoiceID     int64  `json:"invoice_id"`
	Status        Status `json:"status"`
	Asset         string `json:"asset"`
	Amount        string `json:"amount"`
	Payload       string `json:"payload,omitempty"`
	PayURL        string `json:"pay_url,omitempty"`
	BotInvoiceURL string `json:"bot_invoice_url,omitempty"`
}

// URL is the link the payer should open.
func (i Invoice) URL() string {
	if i.BotInvoiceURL != "" {
		return i.BotInvoiceURL
	}

	return i.PayURL
}

type CreateInvoiceRequest struct {
	Asset         string `json:"asset"`
	Amount        string `json:"amount"`
	Description   string `json:"description,omitempty"`
	HiddenMessage string `json:"hidden_message,omitempty"`
	PaidBtnName   string `json:"paid_btn_name,omitempty"`
	PaidBtnURL    string `json:"paid_btn_url,omitempty"`
	Payload       string `json:"payload,omitempty"`
	// ExpiresIn is in seconds.
	ExpiresIn int `json:"expires_in,omitempty"`
}

// APIError is an {"ok":false} reply.
type APIError struct {
	Code int    `json:"code"`
	Name string `json:"name"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("crypto pay error %d: %s", e.Code, e.Name)
}

type envelope[T any] struct {
	OK     bool      `json:"ok"`
	Result T         `json:"result"`
	Error  *APIError `json:"error,omitempty"`
}

type invoiceList struct {
	Items []Invoice `json:"items"`
}
