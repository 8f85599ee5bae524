package notify

import (
	"context"
	"log"
)

// LogNotifier renders alerts into the process log, for hosts that have
// no notification-presentation service attached.
type LogNotifier struct {
	Granted bool
}

func (n LogNotifier) PermissionGranted() bool { return n.Granted }

func (n LogNotifier) RequestPermission(context.Context) (bool, error) {
	return n.Granted, nil
}

func (n LogNotifier) Show(title, body, tag string) error {
	log.Printf("notification [%s] %s: %s", tag, title, body)
	return nil
}
