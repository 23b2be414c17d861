package messaging

import "fmt"

// ConfirmationSMSBody renders the booking confirmation text sent after a
// call wraps up.
func ConfirmationSMSBody(appointmentTime, issue string) string {
	return fmt.Sprintf(
		"Thanks for booking with us! Your appointment is scheduled for %s. Issue: %s. We'll see you soon!",
		appointmentTime, issue,
	)
}
