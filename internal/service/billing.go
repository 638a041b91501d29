package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/therapii/api-server-go/internal/billing"
	apperrors "github.com/therapii/api-server-go/internal/errors"
	"github.com/therapii/api-server-go/internal/model"
	"github.com/therapii/api-server-go/internal/repository"
)

const (
	planPaid     = "Platinum Plan"
	planFree     = "Free Plan"
	invoiceLimit = 10
)

var errBillingNotConfigured = apperrors.FailedPrecondition("Billing is not configured")

type BillingOptions struct {
	DefaultPriceID string
	SuccessURL     string
	CancelURL      string
}

type CheckoutInput struct {
	PriceID    string `json:"priceId"`
	SuccessURL string `json:"successUrl"`
	CancelURL  string `json:"cancelUrl"`
}

type CheckoutResult struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

type PaymentMethod struct {
	Brand    string `json:"brand"`
	Last4    string `json:"last4"`
	ExpMonth int64  `json:"expMonth"`
	ExpYear  int64  `json:"expYear"`
}

type AppliedCoupon struct {
	Code       string           `json:"code"`
	Name       string           `json:"name"`
	PercentOff *float64         `json:"percentOff"`
	AmountOff  *decimal.Decimal `json:"amountOff"`
}

type BillingDetails struct {
	IsPaidUser         bool            `json:"isPaidUser"`
	PlanName           string          `json:"planName"`
	CreditBalance      decimal.Decimal `json:"creditBalance"`
	PaymentMethod      *PaymentMethod  `json:"paymentMethod"`
	SubscriptionStatus *string         `json:"subscriptionStatus"`
	NextBillingDate    *time.Time      `json:"nextBillingDate"`
	AppliedCoupon      *AppliedCoupon  `json:"appliedCoupon"`
}

type RedeemCodeResult struct {
	Success     bool             `json:"success"`
	Type        string           `json:"type"`
	Amount      *decimal.Decimal `json:"amount,omitempty"`
	PercentOff  *float64         `json:"percentOff,omitempty"`
	Message     string           `json:"message"`
	PromoCodeID string           `json:"promoCodeId,omitempty"`
}

type InvoiceView struct {
	ID         string          `json:"id"`
	Amount     decimal.Decimal `json:"amount"`
	IssuedAt   time.Time       `json:"issuedAt"`
	Status     string          `json:"status"`
	InvoiceURL string          `json:"invoiceUrl"`
}

type BillingService struct {
	provider billing.Provider
	users    repository.UserRepository
	opts     BillingOptions
}

func NewBillingService(provider billing.Provider, users repository.UserRepository, opts BillingOptions) *BillingService {
	return &BillingService{provider: provider, users: users, opts: opts}
}

func freePlan() *BillingDetails {
	return &BillingDetails{PlanName: planFree, CreditBalance: decimal.Zero}
}

func (s *BillingService) CreateCheckoutSession(ctx context.Context, caller model.Identity, in CheckoutInput) (*CheckoutResult, error) {
	if caller.ID == "" {
		return nil, apperrors.Unauthenticated("Sign in required.")
	}

	priceID := firstNonEmpty(in.PriceID, s.opts.DefaultPriceID)
	if priceID == "" {
		return nil, apperrors.MissingRequired("priceId")
	}

	customerID, err := s.ensureCustomer(ctx, caller)
	if err != nil {
		return nil, err
	}

	session, err := s.provider.CreateCheckoutSession(ctx, billing.CheckoutParams{
		CustomerID: customerID,
		UserID:     caller.ID,
		PriceID:    priceID,
		SuccessURL: firstNonEmpty(in.SuccessURL, s.opts.SuccessURL),
		CancelURL:  firstNonEmpty(in.CancelURL, s.opts.CancelURL),
	})
	if err != nil {
		return nil, billingError(err)
	}

	log.Info().Str("userId", caller.ID).Str("sessionId", session.ID).Msg("checkout session created")
	return &CheckoutResult{SessionID: session.ID, URL: session.URL}, nil
}

func (s *BillingService) Details(ctx context.Context, caller model.Identity) (*BillingDetails, error) {
	if caller.ID == "" {
		return nil, apperrors.Unauthenticated("Sign in required.")
	}

	customerID, err := s.customerID(ctx, caller.ID)
	if err != nil {
		return nil, err
	}
	if customerID == "" {
		if _, ok := s.provider.(billing.Unconfigured); ok {
			return nil, errBillingNotConfigured
		}
		return freePlan(), nil
	}

	customer, err := s.provider.GetCustomer(ctx, customerID)
	if err != nil {
		return nil, billingError(err)
	}
	if customer == nil {
		return freePlan(), nil
	}

	sub, err := s.provider.ActiveSubscription(ctx, customerID)
	if err != nil {
		return nil, billingError(err)
	}

	details := &BillingDetails{
		IsPaidUser:    sub != nil,
		PlanName:      planFree,
		CreditBalance: decimal.Zero,
	}
	// Stripe keeps credit as a negative balance; a positive balance is owed.
	if customer.BalanceMinor < 0 {
		details.CreditBalance = billing.FromMinor(-customer.BalanceMinor)
	}
	if pm := customer.PaymentMethod; pm != nil {
		details.PaymentMethod = &PaymentMethod{
			Brand:    pm.Brand,
			Last4:    pm.Last4,
			ExpMonth: pm.ExpMonth,
			ExpYear:  pm.ExpYear,
		}
	}
	if sub != nil {
		details.PlanName = planPaid
		details.SubscriptionStatus = &sub.Status
		if !sub.CurrentPeriodEnd.IsZero() {
			next := sub.CurrentPeriodEnd
			details.NextBillingDate = &next
		}
		if c := sub.Coupon; c != nil {
			details.AppliedCoupon = appliedCoupon(c, sub.PromotionCode)
		}
	}
	return details, nil
}

func appliedCoupon(c *billing.Coupon, promotionCode string) *AppliedCoupon {
	applied := &AppliedCoupon{
		Code: firstNonEmpty(promotionCode, c.ID),
		Name: firstNonEmpty(c.Name, c.ID),
	}
	if c.PercentOff > 0 {
		pct := c.PercentOff
		applied.PercentOff = &pct
	}
	if c.AmountOffMinor > 0 {
		amount := billing.FromMinor(c.AmountOffMinor)
		applied.AmountOff = &amount
	}
	return applied
}

// RedeemCode applies an active promotion code. Amount-off coupons become
// account credit; percent-off coupons are only validated for use at checkout.
func (s *BillingService) RedeemCode(ctx context.Context, caller model.Identity, rawCode string) (*RedeemCodeResult, error) {
	if caller.ID == "" {
		return nil, apperrors.Unauthenticated("Sign in required.")
	}
	code := strings.TrimSpace(rawCode)
	if code == "" {
		return nil, apperrors.MissingRequired("code")
	}

	customerID, err := s.ensureCustomer(ctx, caller)
	if err != nil {
		return nil, err
	}

	promo, err := s.provider.FindPromotionCode(ctx, code)
	if err != nil {
		return nil, billingError(err)
	}
	if promo == nil {
		return nil, apperrors.New(apperrors.ErrCodeNotFound, "Invalid or expired code")
	}

	coupon := promo.Coupon
	switch {
	case coupon.AmountOffMinor > 0:
		if err := s.provider.AddCredit(ctx, customerID, coupon.AmountOffMinor, coupon.Currency); err != nil {
			return nil, billingError(err)
		}
		amount := billing.FromMinor(coupon.AmountOffMinor)
		log.Info().Str("userId", caller.ID).Str("promoCodeId", promo.ID).Str("amount", amount.StringFixed(2)).Msg("promotion credit applied")
		return &RedeemCodeResult{
			Success: true,
			Type:    "credit",
			Amount:  &amount,
			Message: fmt.Sprintf("$%s credit added to your account!", amount.StringFixed(2)),
		}, nil

	case coupon.PercentOff > 0:
		pct := coupon.PercentOff
		return &RedeemCodeResult{
			Success:     true,
			Type:        "discount",
			PercentOff:  &pct,
			Message:     fmt.Sprintf("%s%% discount code validated! Apply it during checkout.", strconv.FormatFloat(pct, 'f', -1, 64)),
			PromoCodeID: promo.ID,
		}, nil
	}

	return nil, apperrors.New(apperrors.ErrCodeNotFound, "Invalid or expired code")
}

func (s *BillingService) Invoices(ctx context.Context, caller model.Identity) ([]InvoiceView, error) {
	if caller.ID == "" {
		return nil, apperrors.Unauthenticated("Sign in required.")
	}

	customerID, err := s.customerID(ctx, caller.ID)
	if err != nil {
		return nil, err
	}
	if customerID == "" {
		if _, ok := s.provider.(billing.Unconfigured); ok {
			return nil, errBillingNotConfigured
		}
		return []InvoiceView{}, nil
	}

	invoices, err := s.provider.PaidInvoices(ctx, customerID, invoiceLimit)
	if err != nil {
		return nil, billingError(err)
	}

	out := make([]InvoiceView, 0, len(invoices))
	for _, inv := range invoices {
		out = append(out, InvoiceView{
			ID:         firstNonEmpty(inv.Number, inv.ID),
			Amount:     billing.FromMinor(inv.AmountPaidMinor),
			IssuedAt:   inv.Created,
			Status:     "paid",
			InvoiceURL: inv.PDFURL,
		})
	}
	return out, nil
}

func (s *BillingService) customerID(ctx context.Context, userID string) (string, error) {
	profile, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return "", apperrors.Database(err)
	}
	if profile == nil || profile.StripeCustomerID == nil {
		return "", nil
	}
	return *profile.StripeCustomerID, nil
}

// ensureCustomer returns the caller's billing customer, creating and
// recording one on first use.
func (s *BillingService) ensureCustomer(ctx context.Context, caller model.Identity) (string, error) {
	customerID, err := s.customerID(ctx, caller.ID)
	if err != nil || customerID != "" {
		return customerID, err
	}

	customerID, err = s.provider.CreateCustomer(ctx, caller.Email, caller.ID)
	if err != nil {
		return "", billingError(err)
	}
	if err := s.users.SetStripeCustomerID(ctx, caller.ID, caller.Email, customerID); err != nil {
		return "", apperrors.Database(err)
	}

	log.Info().Str("userId", caller.ID).Str("customerId", customerID).Msg("billing customer created")
	return customerID, nil
}

func billingError(err error) error {
	if errors.Is(err, billing.ErrNotConfigured) {
		return errBillingNotConfigured.WithCause(err)
	}
	return apperrors.External("Stripe", err)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
