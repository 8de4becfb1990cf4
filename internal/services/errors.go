package services

import (
	"errors"
	"fmt"

	"github.com/hogtech/orderflow/internal/repositories"
)

var (
	// ErrDiscountInvalidCode signals an empty or malformed code.
	ErrDiscountInvalidCode = errors.New("discount: invalid code")
	// ErrDiscountNotFound indicates no discount exists for the code.
	ErrDiscountNotFound = errors.New("discount: not found")
	// ErrDiscountInactive indicates the discount has been switched off.
	ErrDiscountInactive = errors.New("discount: inactive")
	// ErrDiscountNotYetActive indicates valid_from is in the future.
	ErrDiscountNotYetActive = errors.New("discount: not yet active")
	// ErrDiscountExpired indicates valid_until has passed.
	ErrDiscountExpired = errors.New("discount: expired")
	// ErrDiscountUsageLimitReached indicates used_count has reached usage_limit.
	ErrDiscountUsageLimitReached = errors.New("discount: usage limit reached")
	// ErrDiscountBelowMinimum indicates the cart does not reach minimum_amount.
	ErrDiscountBelowMinimum = errors.New("discount: below minimum amount")
	// ErrDiscountZeroBaseAmount indicates there is nothing for the discount to reduce.
	ErrDiscountZeroBaseAmount = errors.New("discount: nothing to discount")
	// ErrDiscountUnsupportedType indicates an unknown discount type.
	ErrDiscountUnsupportedType = errors.New("discount: unsupported type")
)

var discountErrors = []error{
	ErrDiscountInvalidCode,
	ErrDiscountNotFound,
	ErrDiscountInactive,
	ErrDiscountNotYetActive,
	ErrDiscountExpired,
	ErrDiscountUsageLimitReached,
	ErrDiscountBelowMinimum,
	ErrDiscountZeroBaseAmount,
	ErrDiscountUnsupportedType,
}

// IsDiscountError reports whether err is one of the discount evaluation errors.
func IsDiscountError(err error) bool {
	for _, target := range discountErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderMissingItems indicates an order without line items.
	ErrOrderMissingItems = errors.New("order: at least one item is required")
	// ErrOrderMissingAddress indicates an order without a delivery address.
	ErrOrderMissingAddress = errors.New("order: delivery address is required")
	// ErrOrderInvalidDiscount indicates the supplied discount code cannot be applied under the strict policy.
	ErrOrderInvalidDiscount = errors.New("order: invalid discount")
	// ErrOrderInvalidTotal indicates the computed total is not positive.
	ErrOrderInvalidTotal = errors.New("order: invalid total")
	// ErrOrderPersistence indicates the order could not be stored.
	ErrOrderPersistence = errors.New("order: persistence failure")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderForbidden indicates the actor may not access or change the order.
	ErrOrderForbidden = errors.New("order: forbidden")
	// ErrOrderUnauthorized indicates order tracking credentials did not match.
	ErrOrderUnauthorized = errors.New("order: unauthorized")
	// ErrOrderInvalidState indicates an invalid status transition was attempted.
	ErrOrderInvalidState = errors.New("order: invalid status transition")
	// ErrOrderConflict indicates optimistic concurrency conflicts or duplicates.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderAlreadyProcessed indicates the payment reference is already linked to an order.
	ErrOrderAlreadyProcessed = errors.New("order: payment already processed")
	// ErrCustomerLookup indicates the customer directory could not be queried.
	ErrCustomerLookup = errors.New("customer: lookup failed")
)

var (
	// ErrPaymentInvalidInput signals missing or malformed payment parameters.
	ErrPaymentInvalidInput = errors.New("payment: invalid input")
	// ErrPaymentGateway wraps gateway failures.
	ErrPaymentGateway = errors.New("payment: gateway failure")
	// ErrPaymentNotFound indicates the gateway or store has no record of the reference.
	ErrPaymentNotFound = errors.New("payment: not found")
	// ErrPaymentNotSuccessful indicates verification found a charge that did not succeed.
	ErrPaymentNotSuccessful = errors.New("payment: charge not successful")
)

var (
	// ErrWebhookInvalidSignature rejects callbacks whose signature does not match.
	ErrWebhookInvalidSignature = errors.New("webhook: invalid signature")
	// ErrWebhookMalformed rejects bodies that cannot be decoded.
	ErrWebhookMalformed = errors.New("webhook: malformed payload")
	// ErrWebhookMissingReference rejects charge events without a reference.
	ErrWebhookMissingReference = errors.New("webhook: missing reference")
	// ErrWebhookMissingCheckoutData rejects charge events whose checkout snapshot is absent.
	ErrWebhookMissingCheckoutData = errors.New("webhook: missing checkout data")
)

// mapRepositoryError translates repository failures into service sentinels.
func mapRepositoryError(err error, notFound error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			if notFound != nil {
				return fmt.Errorf("%w: %v", notFound, err)
			}
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: repository unavailable: %v", ErrOrderPersistence, err)
		}
	}

	return err
}

func isNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func isConflict(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}
