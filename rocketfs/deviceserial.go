package rocketfs

import "github.com/google/uuid"

// newDeviceSerial mints a correlation id for a Device() call that didn't
// supply one, so multi-device hosts can still tell instances apart in
// logs.
func newDeviceSerial() string {
	return uuid.New().String()
}
