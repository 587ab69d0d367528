package errs

import "errors"

var ErrInsufficientFunds = errors.New("not enough balance")
var ErrUserNotFound = errors.New("user not found")
var ErrInvalidToken = errors.New("invalid token")
var ErrLoginAlreadyExists = errors.New("login already exists")

var ErrOrderNotFound = errors.New("order not found")
var ErrInvalidOrderStatus = errors.New("order status does not permit this operation")
var ErrForbidden = errors.New("operation not permitted for this user")
var ErrNotParticipant = errors.New("user is not an order participant")
var ErrAlreadyPaid = errors.New("already paid")
var ErrInvalidAmount = errors.New("invalid amount")
var ErrMissingProof = errors.New("utilization proof reference is missing")
var ErrAllocationImpossible = errors.New("total weight is zero")
var ErrUnknownPickupOption = errors.New("unknown pickup option")
