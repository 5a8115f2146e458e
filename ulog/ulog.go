// Package ulog centralizes the logrus conventions used across uvrpc's
// components: every log line is keyed by "component" and, where
// applicable, "transport" and "peer", so operators can grep a single
// engine's activity out of a process that hosts several.
package ulog

import "github.com/sirupsen/logrus"

// For returns a logger scoped to component (e.g. "client", "server",
// "tcp", "inproc"). Callers chain WithField for transport/peer/msgid.
func For(component string) *logrus.Entry {
	return logrus.WithField("component", component)
}
