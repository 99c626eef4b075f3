package analysis

import (
	"fmt"
	"sync"
	"time"

	"harvester/internal/eap"
	"harvester/internal/harvestlog"
)

// AlertType classifies an alert.
type AlertType string

const (
	AlertCredential AlertType = "CREDENTIAL"
	AlertNewDevice  AlertType = "NEW_DEVICE"
	AlertQueryBurst AlertType = "QUERY_BURST"
	AlertNoIdentity AlertType = "NO_IDENTITY"
)

// Config holds alert thresholds.
type Config struct {
	QueryBurstThreshold int           // queries per second per source
	DeviceRetention     time.Duration // how long a device stays known
	CleanupInterval     time.Duration
}

// DefaultConfig returns the default thresholds.
func DefaultConfig() Config {
	return Config{
		QueryBurstThreshold: 20,
		DeviceRetention:     30 * time.Minute,
		CleanupInterval:     time.Minute,
	}
}

// Alert is a notable harvest event.
type Alert struct {
	Type      AlertType
	Source    string
	Message   string
	Timestamp time.Time
}

// AlertDetector turns harvested entries into operator alerts.
type AlertDetector struct {
	mu sync.Mutex

	config Config

	devices map[string]time.Time // probe source -> last seen

	queryCount  map[string]int
	queryWindow map[string]time.Time

	alerts    []Alert
	maxAlerts int

	lastCleanup time.Time
}

// NewAlertDetector creates a detector.
func NewAlertDetector(cfg Config) *AlertDetector {
	return &AlertDetector{
		config:      cfg,
		devices:     make(map[string]time.Time),
		queryCount:  make(map[string]int),
		queryWindow: make(map[string]time.Time),
		alerts:      make([]Alert, 0),
		maxAlerts:   20,
	}
}

// Process inspects one entry.
func (ad *AlertDetector) Process(e Entry) {
	ad.mu.Lock()
	defer ad.mu.Unlock()

	now := e.Timestamp
	if now.Sub(ad.lastCleanup) > ad.config.CleanupInterval {
		ad.cleanup(now)
		ad.lastCleanup = now
	}

	switch e.Log {
	case harvestlog.CredentialLog:
		ad.detectCredential(e)
	case harvestlog.ProbeLog:
		ad.detectNewDevice(e)
	case harvestlog.QueryLog:
		ad.detectQueryBurst(e)
	}
}

func (ad *AlertDetector) cleanup(now time.Time) {
	for src, seen := range ad.devices {
		if now.Sub(seen) > ad.config.DeviceRetention {
			delete(ad.devices, src)
		}
	}
	for src, start := range ad.queryWindow {
		if now.Sub(start) > ad.config.DeviceRetention {
			delete(ad.queryWindow, src)
			delete(ad.queryCount, src)
		}
	}
}

func (ad *AlertDetector) detectCredential(e Entry) {
	if e.Value == eap.UnknownIdentity {
		ad.addAlert(Alert{
			Type:      AlertNoIdentity,
			Source:    e.Source,
			Message:   fmt.Sprintf("MD5 response from %s without a tracked identity", e.Source),
			Timestamp: e.Timestamp,
		})
		return
	}
	ad.addAlert(Alert{
		Type:      AlertCredential,
		Source:    e.Source,
		Message:   fmt.Sprintf("Captured challenge response for %q from %s", e.Value, e.Source),
		Timestamp: e.Timestamp,
	})
}

func (ad *AlertDetector) detectNewDevice(e Entry) {
	if e.Source == "" {
		return
	}
	_, known := ad.devices[e.Source]
	ad.devices[e.Source] = e.Timestamp
	if known {
		return
	}
	ad.addAlert(Alert{
		Type:      AlertNewDevice,
		Source:    e.Source,
		Message:   fmt.Sprintf("%s probing for %q", e.Source, e.Value),
		Timestamp: e.Timestamp,
	})
}

func (ad *AlertDetector) detectQueryBurst(e Entry) {
	src := e.Source
	if src == "" {
		return
	}
	if start, ok := ad.queryWindow[src]; !ok || e.Timestamp.Sub(start) > time.Second {
		ad.queryCount[src] = 0
		ad.queryWindow[src] = e.Timestamp
	}
	ad.queryCount[src]++

	if ad.queryCount[src] > ad.config.QueryBurstThreshold {
		ad.addAlert(Alert{
			Type:      AlertQueryBurst,
			Source:    src,
			Message:   fmt.Sprintf("%s sent %d queries in 1 second", src, ad.queryCount[src]),
			Timestamp: e.Timestamp,
		})
		ad.queryCount[src] = 0
		ad.queryWindow[src] = e.Timestamp
	}
}

func (ad *AlertDetector) addAlert(alert Alert) {
	ad.alerts = append(ad.alerts, alert)
	if len(ad.alerts) > ad.maxAlerts {
		ad.alerts = ad.alerts[len(ad.alerts)-ad.maxAlerts:]
	}
}

// GetRecentAlerts returns up to limit alerts, newest last.
func (ad *AlertDetector) GetRecentAlerts(limit int) []Alert {
	ad.mu.Lock()
	defer ad.mu.Unlock()

	start := 0
	if limit > 0 && len(ad.alerts) > limit {
		start = len(ad.alerts) - limit
	}
	result := make([]Alert, len(ad.alerts)-start)
	copy(result, ad.alerts[start:])
	return result
}
