package store

import (
	"errors"
	"fmt"

	"github.com/ariefcatur/go-cart-orders/internal/domain"
)

// AsNotFound turns ErrNoRecord into domain.ErrNotFound with a caller-facing
// message. Any other error is returned untouched.
func AsNotFound(err error, format string, args ...any) error {
	if errors.Is(err, ErrNoRecord) {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, fmt.Sprintf(format, args...))
	}
	return err
}
