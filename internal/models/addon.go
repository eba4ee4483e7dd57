package models

import (
	"fmt"
	"time"
)

// AddonCategory selects the add-on pricing formula.
type AddonCategory string

const (
	AddonMeal      AddonCategory = "meal"
	AddonFacility  AddonCategory = "facility"
	AddonEquipment AddonCategory = "equipment"
)

func (c AddonCategory) Valid() bool {
	switch c {
	case AddonMeal, AddonFacility, AddonEquipment:
		return true
	}
	return false
}

// FacilityRate prices hourly facility use.
type FacilityRate struct {
	// PersonalFeeTiers are per-guest fees for under 5 hours, up to 10 hours
	// and over 10 hours.
	PersonalFeeTiers [3]float64          `json:"personal_fee_tiers"`
	RoomFee          map[DayType]float64 `json:"room_fee"`
	HourlySurcharge  float64             `json:"hourly_surcharge"`
}

// PersonalFee picks the per-guest tier for the given hours.
func (f FacilityRate) PersonalFee(hours float64) float64 {
	switch {
	case hours < 5:
		return f.PersonalFeeTiers[0]
	case hours <= 10:
		return f.PersonalFeeTiers[1]
	default:
		return f.PersonalFeeTiers[2]
	}
}

// AddonRate is the price definition of one add-on.
type AddonRate struct {
	ID         string               `json:"id"`
	Category   AddonCategory        `json:"category"`
	Name       string               `json:"name"`
	MealPrices map[AgeGroup]float64 `json:"meal_prices,omitempty"`
	Facility   *FacilityRate        `json:"facility,omitempty"`
	UnitPrice  float64              `json:"unit_price,omitempty"`
	Validity
}

// AddonItem is an add-on requested for a stay.
type AddonItem struct {
	AddonID  string        `json:"addon_id" validate:"required"`
	Category AddonCategory `json:"category,omitempty"`
	Quantity int           `json:"quantity,omitempty" validate:"min=0"`
	Hours    float64       `json:"hours,omitempty" validate:"min=0"`
	// Date is the facility usage day; zero means the first night. A non-zero
	// date must be one of the stay's nights.
	Date time.Time `json:"date,omitempty"`
	// Guests overrides the stay's head count for meals.
	Guests *GuestCount `json:"guests,omitempty"`
}

// CheckAddonDates flags add-ons whose usage day is not a night of stay.
func CheckAddonDates(stay Stay, addons []AddonItem) ValidationErrors {
	var errs ValidationErrors
	for i, a := range addons {
		if a.Date.IsZero() || stay.Contains(a.Date) {
			continue
		}
		errs = append(errs, ValidationError{
			Field:   fmt.Sprintf("Addons[%d].Date", i),
			Message: fmt.Sprintf("add-on %s date %s is outside the stay %s", a.AddonID, a.Date.Format(DateLayout), stay),
		})
	}
	return errs
}
