package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/therapii/api-server-go/internal/billing"
	apperrors "github.com/therapii/api-server-go/internal/errors"
	"github.com/therapii/api-server-go/internal/model"
)

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) CreateCustomer(ctx context.Context, email, userID string) (string, error) {
	args := m.Called(ctx, email, userID)
	return args.String(0), args.Error(1)
}

func (m *mockProvider) GetCustomer(ctx context.Context, customerID string) (*billing.Customer, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Customer), args.Error(1)
}

func (m *mockProvider) ActiveSubscription(ctx context.Context, customerID string) (*billing.Subscription, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Subscription), args.Error(1)
}

func (m *mockProvider) CreateCheckoutSession(ctx context.Context, params billing.CheckoutParams) (*billing.CheckoutSession, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.CheckoutSession), args.Error(1)
}

func (m *mockProvider) FindPromotionCode(ctx context.Context, code string) (*billing.PromotionCode, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.PromotionCode), args.Error(1)
}

func (m *mockProvider) AddCredit(ctx context.Context, customerID string, amountMinor int64, currency string) error {
	args := m.Called(ctx, customerID, amountMinor, currency)
	return args.Error(0)
}

func (m *mockProvider) PaidInvoices(ctx context.Context, customerID string, limit int) ([]billing.Invoice, error) {
	args := m.Called(ctx, customerID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]billing.Invoice), args.Error(1)
}

var testCaller = model.Identity{ID: "u1", Email: "u1@example.com"}

func profileWithCustomer(customerID string) *model.UserProfile {
	return &model.UserProfile{ID: "u1", StripeCustomerID: &customerID}
}

func billingOptions() BillingOptions {
	return BillingOptions{
		DefaultPriceID: "price_default",
		SuccessURL:     "https://therapii.app/success",
		CancelURL:      "https://therapii.app/billing",
	}
}

func TestBillingService_CreateCheckoutSession(t *testing.T) {
	ctx := context.Background()

	t.Run("creates customer on first checkout", func(t *testing.T) {
		provider := new(mockProvider)
		users := new(mockUserRepo)
		users.On("FindByID", mock.Anything, "u1").Return(nil, nil)
		provider.On("CreateCustomer", mock.Anything, "u1@example.com", "u1").Return("cus_1", nil)
		users.On("SetStripeCustomerID", mock.Anything, "u1", "u1@example.com", "cus_1").Return(nil)
		provider.On("CreateCheckoutSession", mock.Anything, billing.CheckoutParams{
			CustomerID: "cus_1",
			UserID:     "u1",
			PriceID:    "price_default",
			SuccessURL: "https://therapii.app/success",
			CancelURL:  "https://therapii.app/billing",
		}).Return(&billing.CheckoutSession{ID: "cs_1", URL: "https://checkout.stripe.com/cs_1"}, nil)

		svc := NewBillingService(provider, users, billingOptions())
		result, err := svc.CreateCheckoutSession(ctx, testCaller, CheckoutInput{})

		require.NoError(t, err)
		assert.Equal(t, "cs_1", result.SessionID)
		assert.Equal(t, "https://checkout.stripe.com/cs_1", result.URL)
		users.AssertExpectations(t)
	})

	t.Run("reuses existing customer and testCaller urls", func(t *testing.T) {
		provider := new(mockProvider)
		users := new(mockUserRepo)
		users.On("FindByID", mock.Anything, "u1").Return(profileWithCustomer("cus_9"), nil)
		provider.On("CreateCheckoutSession", mock.Anything, mock.MatchedBy(func(p billing.CheckoutParams) bool {
			return p.CustomerID == "cus_9" && p.PriceID == "price_x" && p.SuccessURL == "https://app/ok"
		})).Return(&billing.CheckoutSession{ID: "cs_2"}, nil)

		svc := NewBillingService(provider, users, billingOptions())
		_, err := svc.CreateCheckoutSession(ctx, testCaller, CheckoutInput{PriceID: "price_x", SuccessURL: "https://app/ok"})

		require.NoError(t, err)
		provider.AssertNotCalled(t, "CreateCustomer", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("unconfigured provider", func(t *testing.T) {
		users := new(mockUserRepo)
		users.On("FindByID", mock.Anything, "u1").Return(nil, nil)

		svc := NewBillingService(billing.Unconfigured{}, users, billingOptions())
		_, err := svc.CreateCheckoutSession(ctx, testCaller, CheckoutInput{})

		appErr := assertAppError(t, err, apperrors.ErrCodeFailedPrecondition)
		assert.Equal(t, "Billing is not configured", appErr.Message)
	})

	t.Run("provider failure is external", func(t *testing.T) {
		provider := new(mockProvider)
		users := new(mockUserRepo)
		users.On("FindByID", mock.Anything, "u1").Return(profileWithCustomer("cus_9"), nil)
		provider.On("CreateCheckoutSession", mock.Anything, mock.Anything).Return(nil, errors.New("card_declined"))

		svc := NewBillingService(provider, users, billingOptions())
		_, err := svc.CreateCheckoutSession(ctx, testCaller, CheckoutInput{})
		assertAppError(t, err, apperrors.ErrCodeExternal)
	})
}

func TestBillingService_Details(t *testing.T) {
	ctx := context.Background()

	t.Run("free plan without customer", func(t *testing.T) {
		users := new(mockUserRepo)
		users.On("FindByID", mock.Anything, "u1").Return(&model.UserProfile{ID: "u1"}, nil)

		svc := NewBillingService(new(mockProvider), users, billingOptions())
		details, err := svc.Details(ctx, testCaller)

		require.NoError(t, err)
		assert.False(t, details.IsPaidUser)
		assert.Equal(t, "Free Plan", details.PlanName)
		assert.True(t, details.CreditBalance.IsZero())
		assert.Nil(t, details.PaymentMethod)
		assert.Nil(t, details.AppliedCoupon)
	})

	t.Run("paid plan with credit and coupon", func(t *testing.T) {
		provider := new(mockProvider)
		users := new(mockUserRepo)
		periodEnd := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
		users.On("FindByID", mock.Anything, "u1").Return(profileWithCustomer("cus_1"), nil)
		provider.On("GetCustomer", mock.Anything, "cus_1").Return(&billing.Customer{
			ID:            "cus_1",
			BalanceMinor:  -2550,
			PaymentMethod: &billing.Card{Brand: "visa", Last4: "4242", ExpMonth: 12, ExpYear: 2030},
		}, nil)
		provider.On("ActiveSubscription", mock.Anything, "cus_1").Return(&billing.Subscription{
			ID:               "sub_1",
			Status:           "active",
			CurrentPeriodEnd: periodEnd,
			Coupon:           &billing.Coupon{ID: "co_1", PercentOff: 20},
			PromotionCode:    "SPRING20",
		}, nil)

		svc := NewBillingService(provider, users, billingOptions())
		details, err := svc.Details(ctx, testCaller)

		require.NoError(t, err)
		assert.True(t, details.IsPaidUser)
		assert.Equal(t, "Platinum Plan", details.PlanName)
		assert.Equal(t, "25.5", details.CreditBalance.String())
		assert.Equal(t, "4242", details.PaymentMethod.Last4)
		assert.Equal(t, "active", *details.SubscriptionStatus)
		assert.Equal(t, periodEnd, *details.NextBillingDate)
		require.NotNil(t, details.AppliedCoupon)
		assert.Equal(t, "SPRING20", details.AppliedCoupon.Code)
		assert.Equal(t, "co_1", details.AppliedCoupon.Name)
		assert.Equal(t, 20.0, *details.AppliedCoupon.PercentOff)
		assert.Nil(t, details.AppliedCoupon.AmountOff)
	})

	t.Run("owed balance is not credit", func(t *testing.T) {
		provider := new(mockProvider)
		users := new(mockUserRepo)
		users.On("FindByID", mock.Anything, "u1").Return(profileWithCustomer("cus_1"), nil)
		provider.On("GetCustomer", mock.Anything, "cus_1").Return(&billing.Customer{ID: "cus_1", BalanceMinor: 900}, nil)
		provider.On("ActiveSubscription", mock.Anything, "cus_1").Return(nil, nil)

		svc := NewBillingService(provider, users, billingOptions())
		details, err := svc.Details(ctx, testCaller)

		require.NoError(t, err)
		assert.True(t, details.CreditBalance.IsZero())
		assert.Equal(t, "Free Plan", details.PlanName)
		assert.Nil(t, details.SubscriptionStatus)
	})

	t.Run("unconfigured provider fails", func(t *testing.T) {
		users := new(mockUserRepo)
		users.On("FindByID", mock.Anything, "u1").Return(nil, nil)

		svc := NewBillingService(billing.Unconfigured{}, users, billingOptions())
		_, err := svc.Details(ctx, testCaller)
		assertAppError(t, err, apperrors.ErrCodeFailedPrecondition)
	})
}

func TestBillingService_RedeemCode(t *testing.T) {
	ctx := context.Background()

	setup := func(promo *billing.PromotionCode) (*mockProvider, *BillingService) {
		provider := new(mockProvider)
		users := new(mockUserRepo)
		users.On("FindByID", mock.Anything, "u1").Return(profileWithCustomer("cus_1"), nil)
		provider.On("FindPromotionCode", mock.Anything, "PROMO").Return(promo, nil)
		return provider, NewBillingService(provider, users, billingOptions())
	}

	t.Run("amount off becomes credit", func(t *testing.T) {
		provider, svc := setup(&billing.PromotionCode{ID: "promo_1", Code: "PROMO", Coupon: billing.Coupon{AmountOffMinor: 1500, Currency: "usd"}})
		provider.On("AddCredit", mock.Anything, "cus_1", int64(1500), "usd").Return(nil)

		result, err := svc.RedeemCode(ctx, testCaller, " PROMO ")

		require.NoError(t, err)
		assert.Equal(t, "credit", result.Type)
		assert.Equal(t, "15", result.Amount.String())
		assert.Equal(t, "$15.00 credit added to your account!", result.Message)
		provider.AssertExpectations(t)
	})

	t.Run("percent off is validated only", func(t *testing.T) {
		provider, svc := setup(&billing.PromotionCode{ID: "promo_2", Code: "PROMO", Coupon: billing.Coupon{PercentOff: 12.5}})

		result, err := svc.RedeemCode(ctx, testCaller, "PROMO")

		require.NoError(t, err)
		assert.Equal(t, "discount", result.Type)
		assert.Equal(t, "promo_2", result.PromoCodeID)
		assert.Equal(t, "12.5% discount code validated! Apply it during checkout.", result.Message)
		provider.AssertNotCalled(t, "AddCredit", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("unknown code", func(t *testing.T) {
		_, svc := setup(nil)

		_, err := svc.RedeemCode(ctx, testCaller, "PROMO")
		appErr := assertAppError(t, err, apperrors.ErrCodeNotFound)
		assert.Equal(t, "Invalid or expired code", appErr.Message)
	})

	t.Run("requires code", func(t *testing.T) {
		svc := NewBillingService(new(mockProvider), new(mockUserRepo), billingOptions())
		_, err := svc.RedeemCode(ctx, testCaller, "  ")
		assertAppError(t, err, apperrors.ErrCodeInvalidArgument)
	})
}

func TestBillingService_Invoices(t *testing.T) {
	ctx := context.Background()

	t.Run("maps paid invoices", func(t *testing.T) {
		provider := new(mockProvider)
		users := new(mockUserRepo)
		created := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
		users.On("FindByID", mock.Anything, "u1").Return(profileWithCustomer("cus_1"), nil)
		provider.On("PaidInvoices", mock.Anything, "cus_1", 10).Return([]billing.Invoice{
			{ID: "in_1", Number: "A-0001", AmountPaidMinor: 1999, Created: created, PDFURL: "https://pay.stripe.com/in_1.pdf"},
			{ID: "in_2", AmountPaidMinor: 500, Created: created},
		}, nil)

		svc := NewBillingService(provider, users, billingOptions())
		invoices, err := svc.Invoices(ctx, testCaller)

		require.NoError(t, err)
		require.Len(t, invoices, 2)
		assert.Equal(t, "A-0001", invoices[0].ID)
		assert.Equal(t, "19.99", invoices[0].Amount.String())
		assert.Equal(t, "paid", invoices[0].Status)
		assert.Equal(t, "in_2", invoices[1].ID)
	})

	t.Run("no customer means no invoices", func(t *testing.T) {
		users := new(mockUserRepo)
		users.On("FindByID", mock.Anything, "u1").Return(nil, nil)

		svc := NewBillingService(new(mockProvider), users, billingOptions())
		invoices, err := svc.Invoices(ctx, testCaller)

		require.NoError(t, err)
		assert.NotNil(t, invoices)
		assert.Empty(t, invoices)
	})
}
