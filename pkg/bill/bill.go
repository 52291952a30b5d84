package bill

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedBillType is returned for bill types without an extraction schema.
var ErrUnsupportedBillType = errors.New("unsupported bill type")

// Type selects the field schema used for a bill.
type Type string

const (
	Electric Type = "electric"
	Water    Type = "water"
)

// Types lists the bill types with a built-in schema.
var Types = []Type{Electric, Water}

// ParseType validates a user supplied bill type. Empty input defaults to Electric.
func ParseType(s string) (Type, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Electric, nil
	}
	for _, t := range Types {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedBillType, s)
}

// Field is the name of a semantic field on a bill.
type Field string

const (
	CompanyName        Field = "company_name"
	CompanyAddress     Field = "company_address"
	CompanyPhone       Field = "company_phone"
	CompanyTaxCode     Field = "company_tax_code"
	CompanyBankAccount Field = "company_bank_account"

	InvoiceNumber Field = "invoice_number"
	InvoiceDate   Field = "invoice_date"
	InvoiceSymbol Field = "invoice_symbol"

	CustomerName    Field = "customer_name"
	CustomerAddress Field = "customer_address"
	CustomerCode    Field = "customer_code"
	CustomerTaxCode Field = "customer_tax_code"

	ReadingPeriod Field = "reading_period"
	OldReading    Field = "old_reading"
	NewReading    Field = "new_reading"
	Usage         Field = "usage"
	Unit          Field = "unit"

	Subtotal     Field = "subtotal"
	VATRate      Field = "vat_rate"
	VATAmount    Field = "vat_amount"
	EnvFee       Field = "env_fee"
	TotalAmount  Field = "total_amount"
	TotalInWords Field = "total_in_words"

	PaymentMethod  Field = "payment_method"
	PaymentDueDate Field = "payment_due_date"
	Currency       Field = "currency"
)

// Fields is the full set of semantic fields in their canonical column order.
var Fields = []Field{
	CompanyName, CompanyAddress, CompanyPhone, CompanyTaxCode, CompanyBankAccount,
	InvoiceNumber, InvoiceDate, InvoiceSymbol,
	CustomerName, CustomerAddress, CustomerCode, CustomerTaxCode,
	ReadingPeriod, OldReading, NewReading, Usage, Unit,
	Subtotal, VATRate, VATAmount, EnvFee, TotalAmount, TotalInWords,
	PaymentMethod, PaymentDueDate, Currency,
}
