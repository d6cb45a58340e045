// Package channels lists the device channels a user can target with a
// schedule, in presentation order.
//
// Channels of different functions are ordered by the slug of the function's
// display name; channels of the same function by the slug of their caption,
// with captionless channels last.
package channels
