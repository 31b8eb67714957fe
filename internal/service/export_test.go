package service

import "time"

// SetListingClock replaces the listing service clock in tests
func SetListingClock(s *ListingService, now func() time.Time) {
	s.now = now
}

// SetWalletClock replaces the wallet service clock in tests
func SetWalletClock(s *WalletService, now func() time.Time) {
	s.now = now
}
