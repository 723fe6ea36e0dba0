// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package pkg

import "github.com/sirupsen/logrus"

// log is the package-level logger. Callers that want their own sink can
// replace it wholesale; the library itself only logs at the points spec'd
// as recoverable-but-worth-surfacing (malformed keys.txt lines, per-archive
// open failures during index build, cache rebuild reasons).
var log logrus.FieldLogger = logrus.New()

// SetLogger replaces the package-level logger.
func SetLogger(l logrus.FieldLogger) {
	if l != nil {
		log = l
	}
}
