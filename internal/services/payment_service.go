package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/language"

	domain "github.com/oakmart/api/internal/domain"
	"github.com/oakmart/api/internal/payments"
	"github.com/oakmart/api/internal/repositories"
)

const defaultBankTransferDeadline = 7 * 24 * time.Hour

var (
	// ErrPaymentSessionFailed indicates the PSP session could not be created.
	ErrPaymentSessionFailed = errors.New("payment: session creation failed")
	// ErrPaymentMissingBankAccount indicates no bank account is configured for the order currency.
	ErrPaymentMissingBankAccount = errors.New("payment: no bank account for currency")
)

// bankInstructionLocales lists the languages bank-transfer instructions are
// written in; the first entry is the fallback.
var bankInstructionLocales = []language.Tag{
	language.English,
	language.German,
	language.Turkish,
}

var bankInstructionTexts = []string{
	"Transfer the exact amount to the account below and quote reference %s. The order is confirmed once the transfer is reconciled.",
	"Überweisen Sie den genauen Betrag auf das unten stehende Konto und geben Sie die Referenz %s an. Die Bestellung wird nach Eingang der Zahlung bestätigt.",
	"Aşağıdaki hesaba tam tutarı havale edin ve açıklamaya %s referansını yazın. Ödeme eşleştirildiğinde sipariş onaylanır.",
}

var bankInstructionMatcher = language.NewMatcher(bankInstructionLocales)

// BankTransferConfig carries the injected remittance parameters.
type BankTransferConfig struct {
	// Accounts maps an upper-case currency code to the beneficiary account.
	Accounts map[string]string
	Deadline time.Duration
}

// sessionManager abstracts payments.Manager for easier testing.
type sessionManager interface {
	CreateSession(ctx context.Context, method string, req payments.SessionRequest) (payments.Session, error)
}

// PaymentServiceDeps wires the dependencies required by the payment service.
type PaymentServiceDeps struct {
	Orders   repositories.OrderRepository
	Sessions sessionManager
	Bank     BankTransferConfig
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type paymentService struct {
	orders   repositories.OrderRepository
	sessions sessionManager
	bank     BankTransferConfig
	now      func() time.Time
	logger   func(ctx context.Context, event string, fields map[string]any)
}

// NewPaymentService constructs a PaymentService validating required dependencies.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Orders == nil {
		return nil, errors.New("payment service: order repository is required")
	}
	if deps.Sessions == nil {
		return nil, errors.New("payment service: session manager is required")
	}

	bank := deps.Bank
	if bank.Deadline <= 0 {
		bank.Deadline = defaultBankTransferDeadline
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &paymentService{
		orders:   deps.Orders,
		sessions: deps.Sessions,
		bank:     bank,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// InitiatePayment opens a PSP session or issues bank-transfer instructions for
// a committed pending order. It mutates only the payment sub-state: the
// payment moves to processing and the transaction reference is recorded;
// order status and inventory are untouched.
func (s *paymentService) InitiatePayment(ctx context.Context, cmd InitiatePaymentCommand) (PaymentInstructions, error) {
	order, err := s.findScoped(ctx, OrderQuery{OrderID: cmd.OrderID, UserID: cmd.UserID})
	if err != nil {
		return PaymentInstructions{}, err
	}
	if order.Status != domain.OrderStatusPending {
		return PaymentInstructions{}, fmt.Errorf("%w: order status is %s", ErrOrderInvalidState, order.Status)
	}
	if order.Payment.Status.IsTerminal() {
		return PaymentInstructions{}, fmt.Errorf("%w: payment already settled", ErrOrderInvalidState)
	}

	switch order.Payment.Method {
	case domain.PaymentMethodBankTransfer:
		return s.initiateBankTransfer(ctx, order, cmd.Locale)
	case domain.PaymentMethodHosted, domain.PaymentMethodCard:
		return s.initiateSession(ctx, order, cmd.Locale)
	default:
		return PaymentInstructions{}, fmt.Errorf("%w: unknown payment method %q", ErrOrderInvalidInput, order.Payment.Method)
	}
}

// GetPaymentStatus returns the payment sub-state of an order.
func (s *paymentService) GetPaymentStatus(ctx context.Context, query OrderQuery) (PaymentStatusView, error) {
	order, err := s.findScoped(ctx, query)
	if err != nil {
		return PaymentStatusView{}, err
	}
	return PaymentStatusView{
		OrderNumber:  order.OrderNumber,
		Status:       order.Payment.Status,
		Method:       order.Payment.Method,
		Amount:       order.Total,
		Currency:     order.Currency,
		RefundAmount: order.Payment.RefundAmount,
	}, nil
}

func (s *paymentService) initiateSession(ctx context.Context, order Order, locale string) (PaymentInstructions, error) {
	session, err := s.sessions.CreateSession(ctx, string(order.Payment.Method), payments.SessionRequest{
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		Amount:         order.Total,
		Currency:       order.Currency,
		Locale:         strings.TrimSpace(locale),
		IdempotencyKey: order.ID,
		Items:          sessionLineItems(order),
	})
	if err != nil {
		if errors.Is(err, payments.ErrUnsupportedMethod) {
			return PaymentInstructions{}, fmt.Errorf("%w: %v", ErrOrderInvalidInput, err)
		}
		s.logger(ctx, "payment.session.create_failed", map[string]any{
			"orderId": order.ID,
			"method":  string(order.Payment.Method),
			"error":   err.Error(),
		})
		return PaymentInstructions{}, fmt.Errorf("%w: %v", ErrPaymentSessionFailed, err)
	}

	transactionID := session.ID
	if order.Payment.Method == domain.PaymentMethodHosted {
		// PayLink callbacks reference the order number.
		transactionID = order.OrderNumber
	}
	if err := s.markProcessing(ctx, order, transactionID); err != nil {
		return PaymentInstructions{}, err
	}

	return PaymentInstructions{
		Method:      order.Payment.Method,
		RedirectURL: session.RedirectURL,
		ExpiresAt:   session.ExpiresAt,
	}, nil
}

func (s *paymentService) initiateBankTransfer(ctx context.Context, order Order, locale string) (PaymentInstructions, error) {
	currency := strings.ToUpper(strings.TrimSpace(order.Currency))
	account := strings.TrimSpace(s.bank.Accounts[currency])
	if account == "" {
		return PaymentInstructions{}, fmt.Errorf("%w: %s", ErrPaymentMissingBankAccount, currency)
	}

	if err := s.markProcessing(ctx, order, order.OrderNumber); err != nil {
		return PaymentInstructions{}, err
	}

	tag, index := language.MatchStrings(bankInstructionMatcher, locale)
	now := s.now()
	return PaymentInstructions{
		Method: domain.PaymentMethodBankTransfer,
		BankTransfer: &BankTransferInstructions{
			Account:   account,
			Currency:  currency,
			Reference: order.OrderNumber,
			Amount:    order.Total,
			Deadline:  now.Add(s.bank.Deadline),
			Language:  tag.String(),
			Text:      fmt.Sprintf(bankInstructionTexts[index], order.OrderNumber),
		},
	}, nil
}

func (s *paymentService) markProcessing(ctx context.Context, order Order, transactionID string) error {
	result, err := s.orders.TransitionPayment(ctx, order.ID, repositories.PaymentTransition{
		PaymentStatus: domain.PaymentStatusProcessing,
		OrderStatus:   order.Status,
		TransactionID: transactionID,
		Now:           s.now(),
	})
	if err != nil {
		return s.mapRepositoryError(err)
	}
	if !result.Applied {
		return fmt.Errorf("%w: payment already settled", ErrOrderInvalidState)
	}
	return nil
}

func (s *paymentService) findScoped(ctx context.Context, query OrderQuery) (Order, error) {
	orderID := strings.TrimSpace(query.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	if userID := strings.TrimSpace(query.UserID); userID != "" && order.UserID != userID {
		return Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	return order, nil
}

func (s *paymentService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
		}
	}
	return err
}

func sessionLineItems(order Order) []payments.SessionLineItem {
	items := make([]payments.SessionLineItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, payments.SessionLineItem{
			Name:     item.Name,
			SKU:      item.SKU,
			Quantity: int64(item.Quantity),
			Amount:   item.UnitPrice,
			Currency: order.Currency,
		})
	}
	return items
}
