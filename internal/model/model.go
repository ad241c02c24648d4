package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Каталог вторсырья

type Material struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Category    string          `json:"category"`
	Price       decimal.Decimal `json:"price"`
	Unit        string          `json:"unit"`
	MinQuantity decimal.Decimal `json:"min_quantity"`
	Active      bool            `json:"active"`
}

const UnitKg = "kg"

// Заказы на вывоз

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusPicked    OrderStatus = "picked"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

func ParseOrderStatus(s string) (OrderStatus, bool) {
	switch status := OrderStatus(s); status {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusPicked, OrderStatusCompleted, OrderStatusCancelled:
		return status, true
	}
	return "", false
}

type PaymentMethod string

const (
	PaymentMethodUPI          PaymentMethod = "upi"
	PaymentMethodCash         PaymentMethod = "cash"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
)

// ParsePaymentMethod принимает также алиас "bank" из веб-формы
func ParsePaymentMethod(s string) (PaymentMethod, bool) {
	switch s {
	case "upi":
		return PaymentMethodUPI, true
	case "cash":
		return PaymentMethodCash, true
	case "bank_transfer", "bank":
		return PaymentMethodBankTransfer, true
	}
	return "", false
}

type PaymentDetails struct {
	UPIID       string `json:"upi_id,omitempty"`
	BankAccount string `json:"bank_account,omitempty"`
}

type PickupSlot string

var PickupSlots = []PickupSlot{
	"09:00-11:00",
	"11:00-13:00",
	"13:00-15:00",
	"15:00-17:00",
	"17:00-19:00",
}

func (s PickupSlot) Valid() bool {
	for _, slot := range PickupSlots {
		if s == slot {
			return true
		}
	}
	return false
}

const DateLayout = "2006-01-02"

type OrderLineItem struct {
	MaterialID   string          `json:"material_id"`
	MaterialName string          `json:"material_name"`
	Unit         string          `json:"unit"`
	Quantity     decimal.Decimal `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	LineTotal    decimal.Decimal `json:"line_total"`
}

type Order struct {
	Number         string          `json:"number"`
	UserID         string          `json:"user_id"`
	CustomerName   string          `json:"customer_name"`
	Phone          string          `json:"phone"`
	Address        string          `json:"address"`
	Landmark       string          `json:"landmark"`
	Ward           int             `json:"ward"`
	PickupDate     string          `json:"pickup_date"`
	PickupSlot     PickupSlot      `json:"pickup_slot"`
	Items          []OrderLineItem `json:"items"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	PaymentMethod  PaymentMethod   `json:"payment_method"`
	PaymentDetails PaymentDetails  `json:"payment_details"`
	Status         OrderStatus     `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Quantity - суммарное количество по позициям в указанной единице измерения
func (o Order) Quantity(unit string) decimal.Decimal {
	sum := decimal.Zero
	for _, item := range o.Items {
		if item.Unit == unit {
			sum = sum.Add(item.Quantity)
		}
	}
	return sum
}

// Входящий запрос на создание заказа

type OrderRequestItem struct {
	MaterialID string          `json:"material_id"`
	Quantity   decimal.Decimal `json:"quantity"`
}

type OrderRequest struct {
	UserID         string             `json:"-"`
	CustomerName   string             `json:"customer_name"`
	Phone          string             `json:"phone"`
	Address        string             `json:"address"`
	Landmark       string             `json:"landmark"`
	Ward           int                `json:"ward"`
	PickupDate     string             `json:"pickup_date"`
	PickupSlot     string             `json:"pickup_slot"`
	Items          []OrderRequestItem `json:"items"`
	PaymentMethod  string             `json:"payment_method"`
	PaymentDetails PaymentDetails     `json:"payment_details"`
}

// Реферальная программа

type ReferralCode struct {
	Code      string    `json:"code"`
	UserID    string    `json:"user_id"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type ReferralStatus string

const (
	ReferralStatusPending   ReferralStatus = "pending"
	ReferralStatusCompleted ReferralStatus = "completed"
)

type Referral struct {
	ID             string           `json:"id"`
	ReferrerUserID *string          `json:"referrer_user_id"`
	ReferredUserID string           `json:"referred_user_id"`
	Code           string           `json:"code"`
	Status         ReferralStatus   `json:"status"`
	RewardAmount   *decimal.Decimal `json:"reward_amount"`
	CreatedAt      time.Time        `json:"created_at"`
	CompletedAt    *time.Time       `json:"completed_at"`
}

type ResolutionKind string

const (
	ResolutionOwner   ResolutionKind = "owner"
	ResolutionHouse   ResolutionKind = "house"
	ResolutionInvalid ResolutionKind = "invalid"
)

// Результат проверки реферального кода
type Resolution struct {
	Kind        ResolutionKind `json:"kind"`
	Code        string         `json:"code"`
	OwnerUserID string         `json:"owner_user_id,omitempty"`
}

type ReferralSummary struct {
	Code          string          `json:"code"`
	Pending       int             `json:"pending"`
	Successful    int             `json:"successful"`
	TotalEarnings decimal.Decimal `json:"total_earnings"`
	// условия программы: награда и порог в кг
	RewardAmount decimal.Decimal `json:"reward_amount"`
	Threshold    decimal.Decimal `json:"threshold_kg"`
}

// Роли вызывающего

const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

// Caller - аутентифицированный пользователь запроса
type Caller struct {
	UserID string
	Role   string
}

func (c Caller) Admin() bool {
	return c.Role == RoleAdmin
}
