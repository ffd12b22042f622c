package relay

import (
	"context"
	"errors"

	"github.com/iliyamo/event-booking/internal/repository"
)

// RoomAccess decides whether a customer may join a booking room.
type RoomAccess interface {
	CanJoinBooking(ctx context.Context, userID, bookingID uint64) (bool, error)
}

// BookingOwners resolves the owner of a booking.
type BookingOwners interface {
	OwnerOf(ctx context.Context, bookingID uint64) (uint64, error)
}

// OwnerAccess admits a customer only to the rooms of their own bookings.
func OwnerAccess(owners BookingOwners) RoomAccess { return ownerAccess{owners: owners} }

type ownerAccess struct{ owners BookingOwners }

func (a ownerAccess) CanJoinBooking(ctx context.Context, userID, bookingID uint64) (bool, error) {
	owner, err := a.owners.OwnerOf(ctx, bookingID)
	if errors.Is(err, repository.ErrBookingNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return owner == userID, nil
}
