// Package cost prices a collection order. The tariff is a fixed table in
// cents; the returned cost already contains the prepaid utilization fee.
package cost

import (
	"github.com/and161185/ecosbor/internal/errs"
	"github.com/and161185/ecosbor/internal/model"
)

// Utilization fee multiplier: cost = base * 125 / 100. The prepaid fee is
// the difference between cost and base.
const feeMultiplierPercent = 125

const (
	OptionCurbside  = "curbside"
	OptionContainer = "container"
	OptionDropOff   = "dropoff"
)

var basePrice = map[string]int64{
	OptionCurbside:  8000,
	OptionContainer: 12000,
	OptionDropOff:   5000,
}

var containerSurcharge = map[string]int64{
	"small":  0,
	"medium": 2000,
	"large":  4000,
}

const collectingServiceSurcharge = 1500

// Estimate returns the order cost and the prepaid utilization fee, both in
// cents. High-priority pickups cost half the base extra.
func Estimate(params model.PickupParams) (costCents, prepaidCents int64, err error) {
	base, ok := basePrice[params.PickupOption]
	if !ok {
		return 0, 0, errs.ErrUnknownPickupOption
	}

	if params.ContainerSize != nil {
		surcharge, ok := containerSurcharge[*params.ContainerSize]
		if !ok {
			return 0, 0, errs.ErrUnknownPickupOption
		}
		base += surcharge
	}

	if params.HighPriority {
		base += base / 2
	}
	if params.CollectingService {
		base += collectingServiceSurcharge
	}

	costCents = base * feeMultiplierPercent / 100
	return costCents, costCents - base, nil
}

// SplitLegacyCost recovers base and prepaid fee from a stored cost for
// orders persisted before the prepaid fee column existed.
func SplitLegacyCost(costCents int64) (baseCents, prepaidCents int64) {
	baseCents = costCents * 100 / feeMultiplierPercent
	return baseCents, costCents - baseCents
}
