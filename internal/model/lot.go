package model

import "time"

// Lot represents a physical parking facility as stored in the
// `parking_lots` table. A lot owns a fixed number of spots that are
// created in the same transaction as the lot itself, so NoOfSpots
// always equals the count of parking_spots rows referencing the lot.
//
// Fields:
//  ID            – primary key identifier of the lot.
//  PrimeLocation – short human readable location name.
//  Address       – full street address.
//  Pincode       – postal code of the lot.
//  PricePerHour  – hourly parking rate. Stored as DECIMAL(10,2).
//  NoOfSpots     – number of spots owned by this lot.
//  CreatedAt     – timestamp of creation.
//  UpdatedAt     – timestamp of last update.
type Lot struct {
	ID            uint64    // parking_lots.id
	PrimeLocation string    // parking_lots.prime_location
	Address       string    // parking_lots.address
	Pincode       string    // parking_lots.pincode
	PricePerHour  float64   // parking_lots.price_per_hour
	NoOfSpots     uint32    // parking_lots.no_of_spots
	CreatedAt     time.Time // parking_lots.created_at
	UpdatedAt     time.Time // parking_lots.updated_at
}
