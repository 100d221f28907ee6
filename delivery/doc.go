// Package delivery provides goOTP.Deliverer implementations that turn a
// verification code into an email.
//
// [Postmark] sends through the Postmark transactional API. [DevSender]
// writes each message to a directory instead, for local development.
package delivery
