// Copyright 2025 The NexaDB Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0

package nexadb

import (
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/posthog/posthog-go"
)

const (
	posthogAPIKey = "phc_kQx4PjDqT2oVrBm97Wc01yNhLgUe5AsiZ3Jf8vHnR6d"
	posthogHost   = "https://us.i.posthog.com"
)

var (
	analyticsClient      posthog.Client
	analyticsOnce        sync.Once
	analyticsEnabled     = true
	analyticsInitialized = false
	analyticsDistinctID  string
)

// initAnalytics initializes the PostHog client (lazy, called once).
func initAnalytics() {
	analyticsOnce.Do(func() {
		// Check if analytics is disabled via environment variable
		if os.Getenv("NEXADB_DISABLE_ANALYTICS") == "true" {
			analyticsEnabled = false
			return
		}

		client, err := posthog.NewWithConfig(
			posthogAPIKey,
			posthog.Config{
				Endpoint: posthogHost,
			},
		)
		if err != nil {
			// Failed to initialize, disable analytics
			analyticsEnabled = false
			return
		}

		// Anonymous per-process ID; no user identity is ever attached.
		analyticsDistinctID = uuid.NewString()
		analyticsClient = client
		analyticsInitialized = true
	})
}

// trackEvent sends an event to PostHog with static metadata only.
func trackEvent(eventName string, properties map[string]interface{}) {
	initAnalytics()

	if !analyticsEnabled || !analyticsInitialized {
		return
	}

	// Add SDK metadata to all events
	if properties == nil {
		properties = make(map[string]interface{})
	}
	properties["sdk_version"] = Version
	properties["sdk_language"] = "go"

	// Enqueue event (non-blocking)
	_ = analyticsClient.Enqueue(posthog.Capture{
		DistinctId: analyticsDistinctID,
		Event:      eventName,
		Properties: properties,
	})
}

// trackClientConnected tracks a successful connection handshake.
func trackClientConnected() {
	trackEvent("client_connected", nil)
}

// trackError tracks error events with error type and location.
func trackError(errorType, location string) {
	trackEvent(errorType, map[string]interface{}{
		"error_type": errorType,
		"location":   location,
	})
}

// The PostHog client is shared by every Client in the process and lives
// for the process lifetime; closing an individual Client must not tear it
// down. Delivery is fire-and-forget: events are batched and sent on
// PostHog's flush interval, and anything still queued at process exit is
// dropped.
