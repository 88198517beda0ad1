package domain

// ValidationError rejects an order before any state is created.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

func invalid(reason string) error { return &ValidationError{Reason: reason} }

var (
	ErrInvalidSide     = invalid("Side must be 'buy' or 'sell'")
	ErrInvalidPrice    = invalid("Price must be positive")
	ErrInvalidQuantity = invalid("Quantity must be positive")

	ErrPriceOutOfRange    = invalid("Price must have at most 18 decimal places and 38 digits")
	ErrQuantityOutOfRange = invalid("Quantity must have at most 18 decimal places and 38 digits")
)
