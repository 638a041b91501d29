// Package billing adapts a subscription billing provider to the API's needs.
package billing

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNotConfigured is returned by every call when no provider key is set.
var ErrNotConfigured = errors.New("billing provider not configured")

type Card struct {
	Brand    string
	Last4    string
	ExpMonth int64
	ExpYear  int64
}

type Customer struct {
	ID            string
	BalanceMinor  int64
	Currency      string
	PaymentMethod *Card
}

type Coupon struct {
	ID             string
	Name           string
	PercentOff     float64
	AmountOffMinor int64
	Currency       string
}

type Subscription struct {
	ID               string
	Status           string
	CurrentPeriodEnd time.Time
	Coupon           *Coupon
	PromotionCode    string
}

type PromotionCode struct {
	ID     string
	Code   string
	Coupon Coupon
}

type Invoice struct {
	ID              string
	Number          string
	AmountPaidMinor int64
	Currency        string
	Created         time.Time
	Status          string
	PDFURL          string
}

type CheckoutParams struct {
	CustomerID string
	UserID     string
	PriceID    string
	SuccessURL string
	CancelURL  string
}

type CheckoutSession struct {
	ID  string
	URL string
}

// Provider is the narrow surface of the billing backend the API uses. Lookups
// that find nothing return nil without error.
type Provider interface {
	CreateCustomer(ctx context.Context, email, userID string) (string, error)
	GetCustomer(ctx context.Context, customerID string) (*Customer, error)
	ActiveSubscription(ctx context.Context, customerID string) (*Subscription, error)
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error)
	FindPromotionCode(ctx context.Context, code string) (*PromotionCode, error)
	AddCredit(ctx context.Context, customerID string, amountMinor int64, currency string) error
	PaidInvoices(ctx context.Context, customerID string, limit int) ([]Invoice, error)
}

// FromMinor converts an amount in the currency's minor unit to a decimal.
func FromMinor(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}

// Unconfigured is the Provider used when no secret key is set.
type Unconfigured struct{}

func (Unconfigured) CreateCustomer(context.Context, string, string) (string, error) {
	return "", ErrNotConfigured
}

func (Unconfigured) GetCustomer(context.Context, string) (*Customer, error) {
	return nil, ErrNotConfigured
}

func (Unconfigured) ActiveSubscription(context.Context, string) (*Subscription, error) {
	return nil, ErrNotConfigured
}

func (Unconfigured) CreateCheckoutSession(context.Context, CheckoutParams) (*CheckoutSession, error) {
	return nil, ErrNotConfigured
}

func (Unconfigured) FindPromotionCode(context.Context, string) (*PromotionCode, error) {
	return nil, ErrNotConfigured
}

func (Unconfigured) AddCredit(context.Context, string, int64, string) error {
	return ErrNotConfigured
}

func (Unconfigured) PaidInvoices(context.Context, string, int) ([]Invoice, error) {
	return nil, ErrNotConfigured
}
