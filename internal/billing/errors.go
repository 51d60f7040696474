package billing

import "errors"

var (
	ErrInvoiceNotFound         = errors.New("invoice not found")
	ErrPaymentNotFound         = errors.New("payment not found")
	ErrDuplicateInvoiceNumber  = errors.New("invoice number already exists")
	ErrInvalidStatusTransition = errors.New("invalid invoice status transition")
	ErrInvalidPaymentStatus    = errors.New("invalid payment status")
	ErrInvalidAmount           = errors.New("amount must be positive")
	ErrMissingInvoiceNumber    = errors.New("invoice number is required")
	ErrCurrencyMismatch        = errors.New("payment currency does not match invoice")
)
