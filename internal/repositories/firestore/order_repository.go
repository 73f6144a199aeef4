package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/oakmart/api/internal/domain"
	pfirestore "github.com/oakmart/api/internal/platform/firestore"
	"github.com/oakmart/api/internal/platform/pagination"
	"github.com/oakmart/api/internal/repositories"
)

const (
	ordersCollection       = "orders"
	orderNumbersCollection = "orderNumbers"
)

// OrderRepository persists order aggregates in Firestore. Order numbers are
// kept unique through reservation documents created in the same transaction
// as the order itself.
type OrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.BaseRepository[orderDocument]
}

func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	orders := pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil, nil)
	return &OrderRepository{provider: provider, orders: orders}, nil
}

func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.provider == nil {
		return errors.New("order repository not initialised")
	}
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order insert: id is required")
	}
	number := strings.TrimSpace(order.OrderNumber)
	if number == "" {
		return errors.New("order insert: order number is required")
	}

	doc := newOrderDocument(order)
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		client, err := r.provider.Client(ctx)
		if err != nil {
			return err
		}
		numberRef := client.Collection(orderNumbersCollection).Doc(number)
		orderRef, err := r.orders.DocumentRef(ctx, order.ID)
		if err != nil {
			return err
		}
		// Creating the reservation fails with AlreadyExists when another
		// order holds the number, aborting the whole transaction.
		if err := tx.Create(numberRef, orderNumberDocument{
			OrderRef:  order.ID,
			CreatedAt: doc.CreatedAt,
		}); err != nil {
			return err
		}
		return tx.Create(orderRef, doc)
	})
	return pfirestore.WrapError("orders.insert", err)
}

func (r *OrderRepository) Update(ctx context.Context, order domain.Order) (domain.Order, error) {
	if r == nil || r.orders == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	if strings.TrimSpace(order.ID) == "" {
		return domain.Order{}, errors.New("order update: id is required")
	}

	doc := newOrderDocument(order)
	if _, err := r.orders.Set(ctx, order.ID, doc); err != nil {
		return domain.Order{}, err
	}
	return doc.toDomain(order.ID), nil
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.orders == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, errors.New("order find: id is required")
	}

	doc, err := r.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *OrderRepository) FindByNumber(ctx context.Context, orderNumber string) (domain.Order, error) {
	return r.findOne(ctx, "orders.findByNumber", "orderNumber", strings.TrimSpace(orderNumber))
}

func (r *OrderRepository) FindByTransactionID(ctx context.Context, transactionID string) (domain.Order, error) {
	return r.findOne(ctx, "orders.findByTransaction", "payment.transactionId", strings.TrimSpace(transactionID))
}

func (r *OrderRepository) findOne(ctx context.Context, op, field, value string) (domain.Order, error) {
	if r == nil || r.orders == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	if value == "" {
		return domain.Order{}, pfirestore.WrapError(op, status.Error(codes.NotFound, "lookup value is empty"))
	}

	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where(field, "==", value).Limit(1)
	})
	if err != nil {
		return domain.Order{}, err
	}
	if len(docs) == 0 {
		return domain.Order{}, pfirestore.WrapError(op, status.Errorf(codes.NotFound, "no order with %s %q", field, value))
	}
	return docs[0].Data.toDomain(docs[0].ID), nil
}

func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}

	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list", err)
	}

	query := client.Collection(ordersCollection).Query
	if userID := strings.TrimSpace(filter.UserID); userID != "" {
		query = query.Where("userRef", "==", userID)
	}
	if len(filter.Status) > 0 {
		query = query.Where("status", "in", filter.Status)
	}
	if len(filter.PaymentStatus) > 0 {
		query = query.Where("payment.status", "in", filter.PaymentStatus)
	}
	if filter.DateRange.From != nil {
		query = query.Where("createdAt", ">=", filter.DateRange.From.UTC())
	}
	if filter.DateRange.To != nil {
		query = query.Where("createdAt", "<", filter.DateRange.To.UTC())
	}
	query = query.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc).Limit(pageSize + 1)

	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		decoded, err := decodeOrderPageToken(token)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list", err)
		}
		query = query.StartAfter(decoded.CreatedAt, decoded.ID)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var orders []domain.Order
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list", err)
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.Order]{}, fmt.Errorf("decode order %s: %w", snap.Ref.ID, err)
		}
		orders = append(orders, doc.toDomain(snap.Ref.ID))
	}

	hasMore := len(orders) > pageSize
	if hasMore {
		orders = orders[:pageSize]
	}
	var nextToken string
	if hasMore && len(orders) > 0 {
		last := orders[len(orders)-1]
		encoded, err := encodeOrderPageToken(orderPageToken{ID: last.ID, CreatedAt: last.CreatedAt.UTC()})
		if err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list", err)
		}
		nextToken = encoded
	}

	return domain.CursorPage[domain.Order]{Items: orders, NextPageToken: nextToken}, nil
}

// TransitionPayment applies the payment mutation inside a transaction. When
// the order's payment, or the order itself, is already in a terminal state
// nothing is written and the current snapshot is returned with Applied
// false; retried PSP callbacks therefore converge instead of
// double-settling, and a cancelled order stays cancelled.
func (r *OrderRepository) TransitionPayment(ctx context.Context, orderID string, transition repositories.PaymentTransition) (repositories.PaymentTransitionResult, error) {
	if r == nil || r.provider == nil {
		return repositories.PaymentTransitionResult{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return repositories.PaymentTransitionResult{}, errors.New("order transition: id is required")
	}

	now := transition.Now.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var result repositories.PaymentTransitionResult
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef, err := r.orders.DocumentRef(ctx, orderID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(orderRef)
		if err != nil {
			return err
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode order %s: %w", orderID, err)
		}

		// An order the customer already cancelled (or that was fully
		// refunded) must not be resurrected by a late PSP callback.
		if domain.PaymentStatus(doc.Payment.Status).IsTerminal() || domain.OrderStatus(doc.Status).IsTerminal() {
			result = repositories.PaymentTransitionResult{Order: doc.toDomain(orderID), Applied: false}
			return nil
		}

		doc.Payment.Status = string(transition.PaymentStatus)
		if transition.TransactionID != "" {
			doc.Payment.TransactionID = transition.TransactionID
		}
		if transition.PaymentDate != nil {
			date := transition.PaymentDate.UTC()
			doc.Payment.PaymentDate = &date
		}
		if transition.Discrepancy != nil {
			doc.Payment.Discrepancy = newDiscrepancyDocument(*transition.Discrepancy)
		}
		if len(transition.Details) > 0 {
			if doc.Payment.Details == nil {
				doc.Payment.Details = map[string]any{}
			}
			for k, v := range transition.Details {
				doc.Payment.Details[k] = v
			}
		}

		if transition.OrderStatus != "" {
			doc.Status = string(transition.OrderStatus)
			switch transition.OrderStatus {
			case domain.OrderStatusConfirmed:
				if doc.ConfirmedAt == nil {
					doc.ConfirmedAt = &now
				}
			case domain.OrderStatusCancelled:
				if doc.CancelledAt == nil {
					doc.CancelledAt = &now
				}
				if transition.CancelReason != nil {
					doc.CancelReason = transition.CancelReason
				}
			}
		}
		doc.UpdatedAt = now

		if err := tx.Set(orderRef, doc); err != nil {
			return err
		}
		result = repositories.PaymentTransitionResult{Order: doc.toDomain(orderID), Applied: true}
		return nil
	})
	if err != nil {
		return repositories.PaymentTransitionResult{}, pfirestore.WrapError("orders.transitionPayment", err)
	}
	return result, nil
}

// ApplyRefund books the refund inside a transaction. The balance check runs
// against the stored document, not the caller's snapshot, so two concurrent
// refunds cannot both pass it.
func (r *OrderRepository) ApplyRefund(ctx context.Context, orderID string, refund repositories.RefundApplication) (repositories.RefundApplicationResult, error) {
	if r == nil || r.provider == nil {
		return repositories.RefundApplicationResult{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return repositories.RefundApplicationResult{}, errors.New("order refund: id is required")
	}
	if refund.Amount <= 0 {
		return repositories.RefundApplicationResult{}, errors.New("order refund: amount must be positive")
	}
	now := refund.Now.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var result repositories.RefundApplicationResult
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef, err := r.orders.DocumentRef(ctx, orderID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(orderRef)
		if err != nil {
			return err
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode order %s: %w", orderID, err)
		}

		remaining := doc.Total - doc.Payment.RefundAmount
		if doc.Payment.Status != string(domain.PaymentStatusCompleted) || refund.Amount > remaining {
			result = repositories.RefundApplicationResult{Order: doc.toDomain(orderID), Applied: false}
			return nil
		}

		before := doc.Payment.RefundAmount
		doc.Payment.RefundAmount += refund.Amount
		doc.Payment.RefundDate = &now
		if doc.Payment.RefundAmount >= doc.Total {
			doc.Payment.Status = string(domain.PaymentStatusRefunded)
			doc.Status = string(domain.OrderStatusReturned)
		}
		doc.AdminNotes = append(doc.AdminNotes, adminNoteDocument{
			Actor:     refund.Actor,
			Note:      refund.Note,
			Field:     "payment.refundAmount",
			Before:    fmt.Sprintf("%d", before),
			After:     fmt.Sprintf("%d", doc.Payment.RefundAmount),
			CreatedAt: now,
		})
		doc.UpdatedAt = now

		if err := tx.Set(orderRef, doc); err != nil {
			return err
		}
		result = repositories.RefundApplicationResult{Order: doc.toDomain(orderID), Applied: true}
		return nil
	})
	if err != nil {
		return repositories.RefundApplicationResult{}, pfirestore.WrapError("orders.applyRefund", err)
	}
	return result, nil
}

// Document structures -------------------------------------------------------

type orderNumberDocument struct {
	OrderRef  string    `firestore:"orderRef"`
	CreatedAt time.Time `firestore:"createdAt"`
}

type orderDocument struct {
	OrderNumber  string                    `firestore:"orderNumber"`
	UserRef      string                    `firestore:"userRef"`
	CustomerType string                    `firestore:"customerType"`
	Status       string                    `firestore:"status"`
	Currency     string                    `firestore:"currency"`
	Items        []orderItemDocument       `firestore:"items"`
	Subtotal     int64                     `firestore:"subtotal"`
	Discount     int64                     `firestore:"discount"`
	Shipping     int64                     `firestore:"shipping"`
	Total        int64                     `firestore:"total"`
	Payment      paymentInfoDocument       `firestore:"payment"`
	DiscountSrc  *discountSnapshotDocument `firestore:"discountSource,omitempty"`
	ShippingAddr addressDocument           `firestore:"shippingAddress"`
	BillingAddr  addressDocument           `firestore:"billingAddress"`
	Consents     map[string]bool           `firestore:"consents,omitempty"`
	AdminNotes   []adminNoteDocument       `firestore:"adminNotes,omitempty"`
	Tracking     *trackingDocument         `firestore:"tracking,omitempty"`
	Metadata     map[string]any            `firestore:"metadata,omitempty"`
	CreatedAt    time.Time                 `firestore:"createdAt"`
	UpdatedAt    time.Time                 `firestore:"updatedAt"`
	ConfirmedAt  *time.Time                `firestore:"confirmedAt,omitempty"`
	ShippedAt    *time.Time                `firestore:"shippedAt,omitempty"`
	DeliveredAt  *time.Time                `firestore:"deliveredAt,omitempty"`
	CancelledAt  *time.Time                `firestore:"cancelledAt,omitempty"`
	CancelReason *string                   `firestore:"cancelReason,omitempty"`
}

type orderItemDocument struct {
	ProductRef    string               `firestore:"productRef"`
	Name          string               `firestore:"name"`
	SKU           string               `firestore:"sku"`
	ProductType   string               `firestore:"productType,omitempty"`
	UnitPrice     int64                `firestore:"unitPrice"`
	OriginalPrice int64                `firestore:"originalPrice"`
	Quantity      int                  `firestore:"qty"`
	Total         int64                `firestore:"total"`
	BundleItems   []bundleItemDocument `firestore:"bundleItems,omitempty"`
}

type bundleItemDocument struct {
	ProductRef string `firestore:"productRef"`
	Name       string `firestore:"name"`
	SKU        string `firestore:"sku"`
	Quantity   int    `firestore:"qty"`
}

type paymentInfoDocument struct {
	Method        string               `firestore:"method"`
	Status        string               `firestore:"status"`
	TransactionID string               `firestore:"transactionId,omitempty"`
	PaymentDate   *time.Time           `firestore:"paymentDate,omitempty"`
	RefundAmount  int64                `firestore:"refundAmount"`
	RefundDate    *time.Time           `firestore:"refundDate,omitempty"`
	Discrepancy   *discrepancyDocument `firestore:"discrepancy,omitempty"`
	Details       map[string]any       `firestore:"details,omitempty"`
}

type discrepancyDocument struct {
	ExpectedAmount int64     `firestore:"expectedAmount"`
	ActualAmount   int64     `firestore:"actualAmount"`
	RecordedAt     time.Time `firestore:"recordedAt"`
	Note           string    `firestore:"note,omitempty"`
}

type discountSnapshotDocument struct {
	SourceType string `firestore:"sourceType"`
	SourceRef  string `firestore:"sourceRef"`
	Code       string `firestore:"code,omitempty"`
	Name       string `firestore:"name"`
	Type       string `firestore:"type"`
	Value      int64  `firestore:"value"`
	Amount     int64  `firestore:"amount"`
}

type addressDocument struct {
	Recipient   string `firestore:"recipient"`
	Line1       string `firestore:"line1"`
	Line2       string `firestore:"line2,omitempty"`
	City        string `firestore:"city"`
	PostalCode  string `firestore:"postalCode"`
	Country     string `firestore:"country"`
	Phone       string `firestore:"phone,omitempty"`
	CompanyName string `firestore:"companyName,omitempty"`
	TaxNumber   string `firestore:"taxNumber,omitempty"`
}

type adminNoteDocument struct {
	Actor     string    `firestore:"actor"`
	Note      string    `firestore:"note"`
	Field     string    `firestore:"field,omitempty"`
	Before    string    `firestore:"before,omitempty"`
	After     string    `firestore:"after,omitempty"`
	CreatedAt time.Time `firestore:"createdAt"`
}

type trackingDocument struct {
	Carrier        string     `firestore:"carrier"`
	TrackingNumber string     `firestore:"trackingNumber"`
	ShippedAt      *time.Time `firestore:"shippedAt,omitempty"`
}

func newOrderDocument(order domain.Order) orderDocument {
	items := make([]orderItemDocument, len(order.Items))
	for i, item := range order.Items {
		bundle := make([]bundleItemDocument, len(item.BundleItems))
		for j, b := range item.BundleItems {
			bundle[j] = bundleItemDocument{
				ProductRef: b.ProductRef,
				Name:       b.Name,
				SKU:        b.SKU,
				Quantity:   b.Quantity,
			}
		}
		if len(bundle) == 0 {
			bundle = nil
		}
		items[i] = orderItemDocument{
			ProductRef:    item.ProductRef,
			Name:          item.Name,
			SKU:           item.SKU,
			ProductType:   item.ProductType,
			UnitPrice:     item.UnitPrice,
			OriginalPrice: item.OriginalPrice,
			Quantity:      item.Quantity,
			Total:         item.Total,
			BundleItems:   bundle,
		}
	}

	notes := make([]adminNoteDocument, len(order.AdminNotes))
	for i, note := range order.AdminNotes {
		notes[i] = adminNoteDocument{
			Actor:     note.Actor,
			Note:      note.Note,
			Field:     note.Field,
			Before:    note.Before,
			After:     note.After,
			CreatedAt: note.CreatedAt.UTC(),
		}
	}
	if len(notes) == 0 {
		notes = nil
	}

	var tracking *trackingDocument
	if order.Tracking != nil {
		tracking = &trackingDocument{
			Carrier:        order.Tracking.Carrier,
			TrackingNumber: order.Tracking.TrackingNumber,
			ShippedAt:      order.Tracking.ShippedAt,
		}
	}

	var discount *discountSnapshotDocument
	if order.DiscountSrc != nil {
		discount = &discountSnapshotDocument{
			SourceType: string(order.DiscountSrc.SourceType),
			SourceRef:  order.DiscountSrc.SourceRef,
			Code:       order.DiscountSrc.Code,
			Name:       order.DiscountSrc.Name,
			Type:       string(order.DiscountSrc.Type),
			Value:      order.DiscountSrc.Value,
			Amount:     order.DiscountSrc.Amount,
		}
	}

	var discrepancy *discrepancyDocument
	if order.Payment.Discrepancy != nil {
		discrepancy = newDiscrepancyDocument(*order.Payment.Discrepancy)
	}

	return orderDocument{
		OrderNumber:  strings.TrimSpace(order.OrderNumber),
		UserRef:      strings.TrimSpace(order.UserID),
		CustomerType: string(order.CustomerType),
		Status:       string(order.Status),
		Currency:     strings.ToUpper(strings.TrimSpace(order.Currency)),
		Items:        items,
		Subtotal:     order.Subtotal,
		Discount:     order.Discount,
		Shipping:     order.Shipping,
		Total:        order.Total,
		Payment: paymentInfoDocument{
			Method:        string(order.Payment.Method),
			Status:        string(order.Payment.Status),
			TransactionID: order.Payment.TransactionID,
			PaymentDate:   order.Payment.PaymentDate,
			RefundAmount:  order.Payment.RefundAmount,
			RefundDate:    order.Payment.RefundDate,
			Discrepancy:   discrepancy,
			Details:       order.Payment.Details,
		},
		DiscountSrc:  discount,
		ShippingAddr: newAddressDocument(order.ShippingAddr),
		BillingAddr:  newAddressDocument(order.BillingAddr),
		Consents:     order.Consents,
		AdminNotes:   notes,
		Tracking:     tracking,
		Metadata:     order.Metadata,
		CreatedAt:    order.CreatedAt.UTC(),
		UpdatedAt:    order.UpdatedAt.UTC(),
		ConfirmedAt:  order.ConfirmedAt,
		ShippedAt:    order.ShippedAt,
		DeliveredAt:  order.DeliveredAt,
		CancelledAt:  order.CancelledAt,
		CancelReason: order.CancelReason,
	}
}

func newAddressDocument(addr domain.Address) addressDocument {
	return addressDocument{
		Recipient:   strings.TrimSpace(addr.Recipient),
		Line1:       strings.TrimSpace(addr.Line1),
		Line2:       strings.TrimSpace(addr.Line2),
		City:        strings.TrimSpace(addr.City),
		PostalCode:  strings.TrimSpace(addr.PostalCode),
		Country:     strings.ToUpper(strings.TrimSpace(addr.Country)),
		Phone:       strings.TrimSpace(addr.Phone),
		CompanyName: strings.TrimSpace(addr.CompanyName),
		TaxNumber:   strings.TrimSpace(addr.TaxNumber),
	}
}

func newDiscrepancyDocument(d domain.PaymentDiscrepancy) *discrepancyDocument {
	return &discrepancyDocument{
		ExpectedAmount: d.ExpectedAmount,
		ActualAmount:   d.ActualAmount,
		RecordedAt:     d.RecordedAt.UTC(),
		Note:           d.Note,
	}
}

func (d orderDocument) toDomain(id string) domain.Order {
	items := make([]domain.OrderItem, len(d.Items))
	for i, item := range d.Items {
		bundle := make([]domain.BundleItem, len(item.BundleItems))
		for j, b := range item.BundleItems {
			bundle[j] = domain.BundleItem{
				ProductRef: b.ProductRef,
				Name:       b.Name,
				SKU:        b.SKU,
				Quantity:   b.Quantity,
			}
		}
		if len(bundle) == 0 {
			bundle = nil
		}
		items[i] = domain.OrderItem{
			ProductRef:    item.ProductRef,
			Name:          item.Name,
			SKU:           item.SKU,
			ProductType:   item.ProductType,
			UnitPrice:     item.UnitPrice,
			OriginalPrice: item.OriginalPrice,
			Quantity:      item.Quantity,
			Total:         item.Total,
			BundleItems:   bundle,
		}
	}

	notes := make([]domain.AdminNote, len(d.AdminNotes))
	for i, note := range d.AdminNotes {
		notes[i] = domain.AdminNote{
			Actor:     note.Actor,
			Note:      note.Note,
			Field:     note.Field,
			Before:    note.Before,
			After:     note.After,
			CreatedAt: note.CreatedAt,
		}
	}
	if len(notes) == 0 {
		notes = nil
	}

	var tracking *domain.Tracking
	if d.Tracking != nil {
		tracking = &domain.Tracking{
			Carrier:        d.Tracking.Carrier,
			TrackingNumber: d.Tracking.TrackingNumber,
			ShippedAt:      d.Tracking.ShippedAt,
		}
	}

	var discount *domain.DiscountSnapshot
	if d.DiscountSrc != nil {
		discount = &domain.DiscountSnapshot{
			SourceType: domain.DiscountSourceType(d.DiscountSrc.SourceType),
			SourceRef:  d.DiscountSrc.SourceRef,
			Code:       d.DiscountSrc.Code,
			Name:       d.DiscountSrc.Name,
			Type:       domain.DiscountType(d.DiscountSrc.Type),
			Value:      d.DiscountSrc.Value,
			Amount:     d.DiscountSrc.Amount,
		}
	}

	var discrepancy *domain.PaymentDiscrepancy
	if d.Payment.Discrepancy != nil {
		discrepancy = &domain.PaymentDiscrepancy{
			ExpectedAmount: d.Payment.Discrepancy.ExpectedAmount,
			ActualAmount:   d.Payment.Discrepancy.ActualAmount,
			RecordedAt:     d.Payment.Discrepancy.RecordedAt,
			Note:           d.Payment.Discrepancy.Note,
		}
	}

	return domain.Order{
		ID:           id,
		OrderNumber:  d.OrderNumber,
		UserID:       d.UserRef,
		CustomerType: domain.CustomerType(d.CustomerType),
		Status:       domain.OrderStatus(d.Status),
		Currency:     d.Currency,
		Items:        items,
		Subtotal:     d.Subtotal,
		Discount:     d.Discount,
		Shipping:     d.Shipping,
		Total:        d.Total,
		Payment: domain.PaymentInfo{
			Method:        domain.PaymentMethod(d.Payment.Method),
			Status:        domain.PaymentStatus(d.Payment.Status),
			TransactionID: d.Payment.TransactionID,
			PaymentDate:   d.Payment.PaymentDate,
			RefundAmount:  d.Payment.RefundAmount,
			RefundDate:    d.Payment.RefundDate,
			Discrepancy:   discrepancy,
			Details:       d.Payment.Details,
		},
		DiscountSrc:  discount,
		ShippingAddr: d.ShippingAddr.toDomain(),
		BillingAddr:  d.BillingAddr.toDomain(),
		Consents:     d.Consents,
		AdminNotes:   notes,
		Tracking:     tracking,
		Metadata:     d.Metadata,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
		ConfirmedAt:  d.ConfirmedAt,
		ShippedAt:    d.ShippedAt,
		DeliveredAt:  d.DeliveredAt,
		CancelledAt:  d.CancelledAt,
		CancelReason: d.CancelReason,
	}
}

func (a addressDocument) toDomain() domain.Address {
	return domain.Address{
		Recipient:   a.Recipient,
		Line1:       a.Line1,
		Line2:       a.Line2,
		City:        a.City,
		PostalCode:  a.PostalCode,
		Country:     a.Country,
		Phone:       a.Phone,
		CompanyName: a.CompanyName,
		TaxNumber:   a.TaxNumber,
	}
}

type orderPageToken struct {
	ID        string
	CreatedAt time.Time
}

func encodeOrderPageToken(token orderPageToken) (string, error) {
	return pagination.EncodeToken(pagination.Cursor{
		StartAfter: []any{token.CreatedAt.UTC().Format(time.RFC3339Nano), token.ID},
	})
}

func decodeOrderPageToken(encoded string) (*orderPageToken, error) {
	cursor, err := pagination.DecodeToken(encoded)
	if err != nil {
		return nil, err
	}
	createdRaw, okCreated := cursor.StringAt(0)
	id, okID := cursor.StringAt(1)
	if !okCreated || !okID || id == "" {
		return nil, fmt.Errorf("%w: unexpected cursor shape", pagination.ErrInvalidPageToken)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, createdRaw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pagination.ErrInvalidPageToken, err)
	}
	return &orderPageToken{ID: id, CreatedAt: createdAt}, nil
}
