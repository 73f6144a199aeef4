package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/oakmart/api/internal/payments"
	"github.com/oakmart/api/internal/platform/config"
	pfirestore "github.com/oakmart/api/internal/platform/firestore"
	"github.com/oakmart/api/internal/repositories"
	firestoreRepo "github.com/oakmart/api/internal/repositories/firestore"
	"github.com/oakmart/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Pricing    services.PricingService
	Discounts  services.DiscountService
	Orders     services.OrderService
	Payments   services.PaymentService
	Reconciler services.ReconcilerService
	System     services.SystemService
}

// Repositories exposes the constructed data-access layer, mainly for health
// checks and tests.
type Repositories struct {
	Orders   repositories.OrderRepository
	Products repositories.ProductRepository
	Coupons  repositories.CouponRepository
	Usages   repositories.DiscountUsageRepository
}

// Deps carries the externally constructed collaborators the container wires
// into services. The Firestore provider and payment manager are built in main
// because their lifecycles outlive the container.
type Deps struct {
	Provider       *pfirestore.Provider
	PaymentManager *payments.Manager
	Events         services.OrderEventPublisher
	Health         repositories.HealthRepository
	Build          services.BuildInfo
	Logger         *zap.Logger
}

// Container wires repositories and services for runtime use.
type Container struct {
	Config       config.Config
	Repositories Repositories
	Services     Services
}

// NewContainer constructs the runtime dependencies.
func NewContainer(ctx context.Context, cfg config.Config, deps Deps) (*Container, error) {
	if deps.Provider == nil {
		return nil, errors.New("di: firestore provider is required")
	}
	if deps.PaymentManager == nil {
		return nil, errors.New("di: payment manager is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	ordersRepo, err := firestoreRepo.NewOrderRepository(deps.Provider)
	if err != nil {
		return nil, fmt.Errorf("build order repository: %w", err)
	}
	productsRepo, err := firestoreRepo.NewProductRepository(deps.Provider)
	if err != nil {
		return nil, fmt.Errorf("build product repository: %w", err)
	}
	couponsRepo, err := firestoreRepo.NewCouponRepository(deps.Provider)
	if err != nil {
		return nil, fmt.Errorf("build coupon repository: %w", err)
	}
	campaignsRepo, err := firestoreRepo.NewCampaignRepository(deps.Provider)
	if err != nil {
		return nil, fmt.Errorf("build campaign repository: %w", err)
	}
	usagesRepo, err := firestoreRepo.NewDiscountUsageRepository(deps.Provider)
	if err != nil {
		return nil, fmt.Errorf("build discount usage repository: %w", err)
	}

	var svc Services

	discounts, err := services.NewDiscountResolver(services.DiscountResolverDeps{
		Coupons:   couponsRepo,
		Campaigns: campaignsRepo,
		Usages:    usagesRepo,
		Clock:     time.Now,
		Logger:    eventLogger(logger.Named("discounts")),
	})
	if err != nil {
		return nil, fmt.Errorf("build discount resolver: %w", err)
	}
	svc.Discounts = discounts

	pricing, err := services.NewPricingEngine(services.PricingEngineDeps{
		Products:  productsRepo,
		Discounts: discounts,
		Config: services.PricingConfig{
			Currency:         cfg.Checkout.Currency,
			ShippingFee:      cfg.Checkout.ShippingFee,
			FreeShippingOver: cfg.Checkout.FreeShippingOver,
		},
		Logger: eventLogger(logger.Named("pricing")),
	})
	if err != nil {
		return nil, fmt.Errorf("build pricing engine: %w", err)
	}
	svc.Pricing = pricing

	orders, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:            ordersRepo,
		Products:          productsRepo,
		Usages:            usagesRepo,
		Pricing:           pricing,
		Refunds:           deps.PaymentManager,
		Events:            deps.Events,
		TransferTolerance: cfg.Checkout.TransferTolerance,
		Clock:             time.Now,
		Logger:            eventLogger(logger.Named("orders")),
	})
	if err != nil {
		return nil, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orders

	paymentsSvc, err := services.NewPaymentService(services.PaymentServiceDeps{
		Orders:   ordersRepo,
		Sessions: deps.PaymentManager,
		Bank: services.BankTransferConfig{
			Accounts: cfg.Checkout.BankAccounts,
			Deadline: cfg.Checkout.BankTransferDeadline,
		},
		Clock:  time.Now,
		Logger: eventLogger(logger.Named("payments")),
	})
	if err != nil {
		return nil, fmt.Errorf("build payment service: %w", err)
	}
	svc.Payments = paymentsSvc

	reconciler, err := services.NewReconcilerService(services.ReconcilerDeps{
		Orders:   ordersRepo,
		Products: productsRepo,
		Usages:   usagesRepo,
		Events:   deps.Events,
		Secret:   []byte(cfg.PSP.PayLink.Secret),
		Clock:    time.Now,
		Logger:   eventLogger(logger.Named("reconciler")),
	})
	if err != nil {
		return nil, fmt.Errorf("build reconciler: %w", err)
	}
	svc.Reconciler = reconciler

	if deps.Health != nil {
		system, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: deps.Health,
			Clock:            time.Now,
			Build:            deps.Build,
		})
		if err != nil {
			return nil, fmt.Errorf("build system service: %w", err)
		}
		svc.System = system
	}

	return &Container{
		Config: cfg,
		Repositories: Repositories{
			Orders:   ordersRepo,
			Products: productsRepo,
			Coupons:  couponsRepo,
			Usages:   usagesRepo,
		},
		Services: svc,
	}, nil
}

func eventLogger(logger *zap.Logger) func(ctx context.Context, event string, fields map[string]any) {
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields)+1)
		zFields = append(zFields, zap.String("event", event))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		logger.Debug("service event", zFields...)
	}
}
