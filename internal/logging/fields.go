package logging

import "github.com/sirupsen/logrus"

// BaseFields builds the action and config path fields shared by every
// command.
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// StoreFields describes the cache a command runs against.
func StoreFields(scheme, backend string, compressed bool) logrus.Fields {
	return logrus.Fields{
		"scheme":     scheme,
		"backend":    backend,
		"compressed": compressed,
	}
}
