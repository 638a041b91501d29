package billing

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"

	"github.com/therapii/api-server-go/internal/config"
)

// StripeProvider implements Provider on the Stripe API.
type StripeProvider struct {
	api *client.API
}

// NewProvider returns a Stripe-backed provider, or Unconfigured when secretKey is empty.
func NewProvider(secretKey string) Provider {
	if secretKey == "" {
		return Unconfigured{}
	}
	backends := stripe.NewBackends(&http.Client{Timeout: config.BillingTimeout})
	return &StripeProvider{api: client.New(secretKey, backends)}
}

func (p *StripeProvider) CreateCustomer(ctx context.Context, email, userID string) (string, error) {
	params := &stripe.CustomerParams{Email: stripe.String(email)}
	params.Context = ctx
	params.AddMetadata("userId", userID)

	c, err := p.api.Customers.New(params)
	if err != nil {
		return "", fmt.Errorf("create customer: %w", err)
	}
	return c.ID, nil
}

func (p *StripeProvider) GetCustomer(ctx context.Context, customerID string) (*Customer, error) {
	params := &stripe.CustomerParams{}
	params.Context = ctx
	params.AddExpand("invoice_settings.default_payment_method")

	c, err := p.api.Customers.Get(customerID, params)
	if err != nil {
		return nil, fmt.Errorf("get customer: %w", err)
	}
	if c.Deleted {
		return nil, nil
	}

	customer := &Customer{
		ID:           c.ID,
		BalanceMinor: c.Balance,
		Currency:     string(c.Currency),
	}
	if c.InvoiceSettings != nil && c.InvoiceSettings.DefaultPaymentMethod != nil {
		if card := c.InvoiceSettings.DefaultPaymentMethod.Card; card != nil {
			customer.PaymentMethod = &Card{
				Brand:    string(card.Brand),
				Last4:    card.Last4,
				ExpMonth: card.ExpMonth,
				ExpYear:  card.ExpYear,
			}
		}
	}
	return customer, nil
}

func (p *StripeProvider) ActiveSubscription(ctx context.Context, customerID string) (*Subscription, error) {
	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String(string(stripe.SubscriptionStatusActive)),
	}
	params.Context = ctx
	params.Limit = stripe.Int64(1)

	iter := p.api.Subscriptions.List(params)
	if !iter.Next() {
		if err := iter.Err(); err != nil {
			return nil, fmt.Errorf("list subscriptions: %w", err)
		}
		return nil, nil
	}

	s := iter.Subscription()
	sub := &Subscription{
		ID:     s.ID,
		Status: string(s.Status),
	}
	if s.CurrentPeriodEnd > 0 {
		sub.CurrentPeriodEnd = time.Unix(s.CurrentPeriodEnd, 0).UTC()
	}
	if s.Discount != nil && s.Discount.Coupon != nil {
		sub.Coupon = toCoupon(s.Discount.Coupon)
		if s.Discount.PromotionCode != nil {
			sub.PromotionCode = s.Discount.PromotionCode.Code
		}
	}
	return sub, nil
}

func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, in CheckoutParams) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Customer:           stripe.String(in.CustomerID),
		ClientReferenceID:  stripe.String(in.UserID),
		SuccessURL:         stripe.String(in.SuccessURL + "?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:          stripe.String(in.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(in.PriceID), Quantity: stripe.Int64(1)},
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{"userId": in.UserID},
		},
	}
	params.Context = ctx
	params.AddMetadata("userId", in.UserID)

	s, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return &CheckoutSession{ID: s.ID, URL: s.URL}, nil
}

func (p *StripeProvider) FindPromotionCode(ctx context.Context, code string) (*PromotionCode, error) {
	params := &stripe.PromotionCodeListParams{
		Code:   stripe.String(code),
		Active: stripe.Bool(true),
	}
	params.Context = ctx
	params.Limit = stripe.Int64(1)

	iter := p.api.PromotionCodes.List(params)
	if !iter.Next() {
		if err := iter.Err(); err != nil {
			return nil, fmt.Errorf("list promotion codes: %w", err)
		}
		return nil, nil
	}

	pc := iter.PromotionCode()
	if pc.Coupon == nil {
		return nil, nil
	}
	return &PromotionCode{ID: pc.ID, Code: pc.Code, Coupon: *toCoupon(pc.Coupon)}, nil
}

// AddCredit records a credit balance transaction. Stripe stores credit as a
// negative balance.
func (p *StripeProvider) AddCredit(ctx context.Context, customerID string, amountMinor int64, currency string) error {
	if currency == "" {
		currency = string(stripe.CurrencyUSD)
	}
	params := &stripe.CustomerBalanceTransactionParams{
		Customer:    stripe.String(customerID),
		Amount:      stripe.Int64(-amountMinor),
		Currency:    stripe.String(currency),
		Description: stripe.String("Promotion code credit"),
	}
	params.Context = ctx

	if _, err := p.api.CustomerBalanceTransactions.New(params); err != nil {
		return fmt.Errorf("add customer credit: %w", err)
	}
	return nil
}

func (p *StripeProvider) PaidInvoices(ctx context.Context, customerID string, limit int) ([]Invoice, error) {
	params := &stripe.InvoiceListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String(string(stripe.InvoiceStatusPaid)),
	}
	params.Context = ctx
	params.Limit = stripe.Int64(int64(limit))

	invoices := make([]Invoice, 0, limit)
	iter := p.api.Invoices.List(params)
	for len(invoices) < limit && iter.Next() {
		inv := iter.Invoice()
		invoices = append(invoices, Invoice{
			ID:              inv.ID,
			Number:          inv.Number,
			AmountPaidMinor: inv.AmountPaid,
			Currency:        string(inv.Currency),
			Created:         time.Unix(inv.Created, 0).UTC(),
			Status:          string(inv.Status),
			PDFURL:          inv.InvoicePDF,
		})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	return invoices, nil
}

func toCoupon(c *stripe.Coupon) *Coupon {
	return &Coupon{
		ID:             c.ID,
		Name:           c.Name,
		PercentOff:     c.PercentOff,
		AmountOffMinor: c.AmountOff,
		Currency:       string(c.Currency),
	}
}
