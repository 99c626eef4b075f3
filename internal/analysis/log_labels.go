package analysis

import "harvester/internal/harvestlog"

var logLabels = map[string]string{
	harvestlog.ProbeLog:      "Probe requests",
	harvestlog.QueryLog:      "Name queries",
	harvestlog.CredentialLog: "EAP-MD5 credentials",
}

// GetLogLabel returns a display name for a harvest log, or the file name.
func GetLogLabel(logName string) string {
	if label, ok := logLabels[logName]; ok {
		return label
	}
	return logName
}
