package service

import (
	"errors"
	"net/http"
)

// Messages returned to checkout callers. They never name a specific line.
const (
	MsgCartEmpty         = "Cart is empty."
	MsgInvalidItem       = "Invalid cart item."
	MsgUnavailable       = "One or more items are unavailable."
	MsgAddonNeedsBase    = "Add-ons require a base item."
	MsgInvalidAddon      = "Invalid add-on selection."
	MsgMissingSiteURL    = "Missing site URL configuration."
	MsgPriceLookupFailed = "Failed to load prices."
	MsgAddonLookupFailed = "Failed to validate add-ons."
	MsgNoRedirectURL     = "Checkout session has no redirect URL."
)

// CheckoutError is a checkout failure carrying the HTTP status and the
// message the caller may see. Reason is a stable label for metrics.
type CheckoutError struct {
	Status  int
	Message string
	Reason  string
	Err     error
}

func (e *CheckoutError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *CheckoutError) Unwrap() error {
	return e.Err
}

// ClientError reports whether the failure was caused by the request.
func (e *CheckoutError) ClientError() bool {
	return e.Status >= 400 && e.Status < 500
}

func rejectCheckout(reason, message string) *CheckoutError {
	return &CheckoutError{Status: http.StatusBadRequest, Message: message, Reason: reason}
}

func failCheckout(reason, message string, err error) *CheckoutError {
	return &CheckoutError{Status: http.StatusInternalServerError, Message: message, Reason: reason, Err: err}
}

// AsCheckoutError converts any error into a CheckoutError. Unknown errors
// become server errors whose message is the error text.
func AsCheckoutError(err error) *CheckoutError {
	var ce *CheckoutError
	if errors.As(err, &ce) {
		return ce
	}
	return failCheckout("unexpected", err.Error(), err)
}
