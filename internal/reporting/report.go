package reporting

import (
	"fmt"
	"html"
	"os"
	"path/filepath"
	"time"

	"harvester/internal/analysis"
	"harvester/internal/harvestlog"
)

// GenerateSessionReport writes a report of the harvested data into dir and
// returns the file path. Currently supports "html" format.
func GenerateSessionReport(stats *analysis.HarvestStats, dir, format string) (string, error) {
	if format != "html" {
		return "", fmt.Errorf("unsupported format: %s", format)
	}

	timestamp := time.Now().Format("20060102_150405")
	filename := filepath.Join(dir, fmt.Sprintf("report_%s.html", timestamp))

	file, err := os.Create(filename)
	if err != nil {
		return "", err
	}
	defer file.Close()

	logs := stats.GetLogStats()
	alerts := stats.GetAlerts(0)
	recent := stats.GetRecent()

	out := fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Harvest Session Report - %s</title>
    <style>
        body { font-family: sans-serif; margin: 20px; color: #333; }
        h1, h2 { color: #2c3e50; }
        table { width: 100%%; border-collapse: collapse; margin-bottom: 20px; }
        th, td { border: 1px solid #ddd; padding: 8px; text-align: left; }
        th { background-color: #f2f2f2; }
        tr:nth-child(even) { background-color: #f9f9f9; }
        .summary { background: #eef; padding: 15px; border-radius: 5px; margin-bottom: 20px; }
        .alert { color: #d9534f; font-weight: bold; }
    </style>
</head>
<body>
    <h1>Harvest Session Report</h1>
    <div class="summary">
        <p><strong>Date:</strong> %s</p>
        <p><strong>Total Entries:</strong> %d</p>
        <p><strong>Unique Probing Devices:</strong> %d</p>
        <p><strong>Unique SSIDs:</strong> %d</p>
        <p><strong>Unique Hostnames:</strong> %d</p>
    </div>

    <h2>Harvest Logs</h2>
    <table>
        <thead>
            <tr>
                <th>Log</th>
                <th>File</th>
                <th>Entries</th>
            </tr>
        </thead>
        <tbody>
`, timestamp, time.Now().Format(time.RFC1123), stats.Total(),
		stats.UniqueSources(harvestlog.ProbeLog),
		stats.UniqueValues(harvestlog.ProbeLog),
		stats.UniqueValues(harvestlog.QueryLog))

	if len(logs) == 0 {
		out += "            <tr><td colspan=\"3\">Nothing harvested.</td></tr>\n"
	}
	for _, l := range logs {
		out += fmt.Sprintf("            <tr><td>%s</td><td>%s</td><td>%d</td></tr>\n",
			analysis.GetLogLabel(l.Log), html.EscapeString(l.Log), l.Count)
	}

	out += valueTable("Top SSIDs", "SSID", stats.GetTopValues(harvestlog.ProbeLog, 10))
	out += valueTable("Top Queried Names", "Hostname", stats.GetTopValues(harvestlog.QueryLog, 10))
	out += valueTable("Identities", "Identity", stats.GetTopValues(harvestlog.CredentialLog, 0))

	out += `        </tbody>
    </table>

    <h2>Alerts</h2>
    <table>
        <thead>
            <tr>
                <th>Time</th>
                <th>Type</th>
                <th>Source</th>
                <th>Message</th>
            </tr>
        </thead>
        <tbody>
`
	if len(alerts) == 0 {
		out += "            <tr><td colspan=\"4\">No alerts raised during this session.</td></tr>\n"
	} else {
		for _, alert := range alerts {
			out += fmt.Sprintf("            <tr><td>%s</td><td class=\"alert\">%s</td><td>%s</td><td>%s</td></tr>\n",
				alert.Timestamp.Format("15:04:05"), alert.Type,
				html.EscapeString(alert.Source), html.EscapeString(alert.Message))
		}
	}

	out += `        </tbody>
    </table>

    <h2>Recent Entries</h2>
    <table>
        <thead>
            <tr>
                <th>Time</th>
                <th>Log</th>
                <th>Line</th>
            </tr>
        </thead>
        <tbody>
`
	if len(recent) == 0 {
		out += "            <tr><td colspan=\"3\">No entries.</td></tr>\n"
	} else {
		for _, e := range recent {
			out += fmt.Sprintf("            <tr><td>%s</td><td>%s</td><td>%s</td></tr>\n",
				e.Timestamp.Format("15:04:05"), analysis.GetLogLabel(e.Log), html.EscapeString(e.Line))
		}
	}

	out += `        </tbody>
    </table>
</body>
</html>`

	if _, err := file.WriteString(out); err != nil {
		return "", err
	}
	return filename, nil
}

func valueTable(title, column string, values []analysis.ValueStat) string {
	out := fmt.Sprintf(`        </tbody>
    </table>

    <h2>%s</h2>
    <table>
        <thead>
            <tr>
                <th>%s</th>
                <th>Seen</th>
            </tr>
        </thead>
        <tbody>
`, title, column)
	if len(values) == 0 {
		return out + "            <tr><td colspan=\"2\">None.</td></tr>\n"
	}
	for _, v := range values {
		out += fmt.Sprintf("            <tr><td>%s</td><td>%d</td></tr>\n", html.EscapeString(displayValue(v.Value)), v.Count)
	}
	return out
}

func displayValue(v string) string {
	if v == "" {
		return "(empty)"
	}
	return v
}
