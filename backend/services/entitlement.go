package services

import "coursegate/backend/models"

// HasAccess is the single access rule for paid content: admins always pass,
// free courses are open, otherwise the latest payment must be approved.
//
// It is a pure function and is re-evaluated on every access-sensitive request;
// callers must hand in the payment status as read inside that request, never a
// cached one, so an approval or revocation takes effect immediately.
func HasAccess(role string, coursePrice int64, latestPaymentStatus string) bool {
	if role == models.RoleAdmin {
		return true
	}
	if coursePrice == 0 {
		return true
	}
	return latestPaymentStatus == models.PaymentApproved
}
