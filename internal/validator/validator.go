package validator

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iurnickita/scrapmart/internal/model"
	"github.com/iurnickita/scrapmart/internal/pricing"
)

var ErrValidation = errors.New("validation failed")

// ValidationError описывает первое найденное нарушение
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func reject(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

const (
	WardMin = 1
	WardMax = 43
)

// MaxQuantity - наибольшее количество по одной позиции
var MaxQuantity = decimal.NewFromInt(100000)

var (
	upiPattern   = regexp.MustCompile(`^[a-zA-Z0-9._-]{2,256}@[a-zA-Z][a-zA-Z0-9]{1,64}$`)
	phonePattern = regexp.MustCompile(`^(\+91)?[0-9]{10}$`)
)

// Draft - заказ, прошедший проверку, но ещё не сохранённый
type Draft struct {
	Request       model.OrderRequest
	Lines         []pricing.Line
	PickupSlot    model.PickupSlot
	PaymentMethod model.PaymentMethod
}

// Validate проверяет заявку по правилам в фиксированном порядке и возвращает первое нарушение.
// Побочных эффектов нет: результат зависит только от заявки, снимка каталога и now.
func Validate(req model.OrderRequest, catalog []model.Material, now time.Time) (Draft, error) {
	materials := make(map[string]model.Material, len(catalog))
	for _, m := range catalog {
		if m.Active {
			materials[m.ID] = m
		}
	}

	// 1. Позиции: хотя бы одна, материал существует и активен, количество > 0 в пределах точности и лимита
	if len(req.Items) == 0 {
		return Draft{}, reject("items", "at least one material is required")
	}
	lines := make([]pricing.Line, 0, len(req.Items))
	seen := make(map[string]bool, len(req.Items))
	for i, item := range req.Items {
		field := fmt.Sprintf("items[%d]", i)
		material, ok := materials[item.MaterialID]
		if !ok {
			return Draft{}, reject(field, "material %q is not available", item.MaterialID)
		}
		if seen[item.MaterialID] {
			return Draft{}, reject(field, "material %s is listed more than once", material.Name)
		}
		seen[item.MaterialID] = true
		if !item.Quantity.IsPositive() {
			return Draft{}, reject(field, "quantity of %s must be greater than zero", material.Name)
		}
		if !item.Quantity.Equal(item.Quantity.Truncate(pricing.QuantityUnits)) {
			return Draft{}, reject(field, "quantity of %s allows at most %d decimal places", material.Name, pricing.QuantityUnits)
		}
		if item.Quantity.GreaterThan(MaxQuantity) {
			return Draft{}, reject(field, "quantity of %s cannot exceed %s %s", material.Name, MaxQuantity.String(), material.Unit)
		}
		lines = append(lines, pricing.Line{Material: material, Quantity: item.Quantity})
	}
	// итог должен поместиться в денежную колонку
	if _, total := pricing.Price(lines); total.GreaterThan(pricing.MaxAmount) {
		return Draft{}, reject("items", "order total exceeds %s", pricing.MaxAmount.String())
	}

	// 2. Минимальное количество по каждому материалу
	for i, line := range lines {
		if line.Quantity.LessThan(line.Material.MinQuantity) {
			return Draft{}, reject(fmt.Sprintf("items[%d]", i), "%s minimum quantity is %s %s",
				line.Material.Name, line.Material.MinQuantity.String(), line.Material.Unit)
		}
	}

	// 3. Номер района
	if req.Ward < WardMin || req.Ward > WardMax {
		return Draft{}, reject("ward", "ward number must be between %d and %d", WardMin, WardMax)
	}

	// 4. Дата не раньше сегодняшней, интервал из списка
	pickup, err := time.ParseInLocation(model.DateLayout, req.PickupDate, now.Location())
	if err != nil {
		return Draft{}, reject("pickup_date", "pickup date must be in YYYY-MM-DD format")
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if pickup.Before(today) {
		return Draft{}, reject("pickup_date", "pickup date cannot be in the past")
	}
	slot := model.PickupSlot(req.PickupSlot)
	if !slot.Valid() {
		return Draft{}, reject("pickup_slot", "pickup time %q is not offered", req.PickupSlot)
	}

	// 5. Способ оплаты и реквизиты
	method, ok := model.ParsePaymentMethod(req.PaymentMethod)
	if !ok {
		return Draft{}, reject("payment_method", "unknown payment method %q", req.PaymentMethod)
	}
	details, err := checkPaymentDetails(method, req.PaymentDetails)
	if err != nil {
		return Draft{}, err
	}

	// Контактные данные
	name := strings.TrimSpace(req.CustomerName)
	if name == "" {
		return Draft{}, reject("customer_name", "customer name is required")
	}
	phone := strings.ReplaceAll(strings.TrimSpace(req.Phone), " ", "")
	if !phonePattern.MatchString(phone) {
		return Draft{}, reject("phone", "phone must be a 10 digit number")
	}
	address := strings.TrimSpace(req.Address)
	if address == "" {
		return Draft{}, reject("address", "address is required")
	}

	normalized := req
	normalized.CustomerName = name
	normalized.Phone = phone
	normalized.Address = address
	normalized.Landmark = strings.TrimSpace(req.Landmark)
	normalized.PaymentDetails = details

	return Draft{
		Request:       normalized,
		Lines:         lines,
		PickupSlot:    slot,
		PaymentMethod: method,
	}, nil
}

// Реквизиты сохраняются только для выбранного способа оплаты
func checkPaymentDetails(method model.PaymentMethod, details model.PaymentDetails) (model.PaymentDetails, error) {
	switch method {
	case model.PaymentMethodUPI:
		upi := strings.TrimSpace(details.UPIID)
		if upi == "" {
			return model.PaymentDetails{}, reject("payment_details.upi_id", "UPI ID is required")
		}
		if !upiPattern.MatchString(upi) {
			return model.PaymentDetails{}, reject("payment_details.upi_id", "UPI ID must look like handle@provider")
		}
		return model.PaymentDetails{UPIID: upi}, nil
	case model.PaymentMethodBankTransfer:
		account := strings.TrimSpace(details.BankAccount)
		if account == "" {
			return model.PaymentDetails{}, reject("payment_details.bank_account", "bank account details are required")
		}
		if len(account) > 512 {
			return model.PaymentDetails{}, reject("payment_details.bank_account", "bank account details are too long")
		}
		return model.PaymentDetails{BankAccount: account}, nil
	default:
		return model.PaymentDetails{}, nil
	}
}
