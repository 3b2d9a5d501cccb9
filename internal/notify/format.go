package notify

import (
	"fmt"
	"strings"
	"time"

	"bikewatch/internal/history"
)

var jst = time.FixedZone("JST", 9*60*60)

// FormatRecord renders one rental record as a chat message.
// It must never panic, whatever the upstream API returned; unparseable
// values are passed through as-is.
func FormatRecord(r history.Record) string {
	name := r.Name
	if name == "" {
		name = "不明"
	}
	port := r.Port
	if port == "" {
		port = "不明"
	}
	start := formatTimestamp(r.ScheduledStart)
	end := formatTimestamp(r.EndDate)

	statusTitle := "🚲 **レンタルが開始されました**"
	if r.Returned() {
		statusTitle = "✅ **自転車が返却されました**"
	}

	featureText := ""
	if features := featureTags(r.Name); len(features) > 0 {
		featureText = " (" + strings.Join(features, ", ") + ")"
	}

	mapLink := ""
	if loc := r.EndLocation; loc != nil {
		// y is latitude, x is longitude.
		mapLink = fmt.Sprintf("\n📍 **返却場所地図:** [Google Mapsで表示](https://www.google.com/maps/search/?api=1&query=%v,%v)", loc.Y, loc.X)
	}

	return statusTitle + "\n" +
		"--------------------------------\n" +
		"**自転車:** " + name + featureText + "\n" +
		"**ポート:** " + port + "\n" +
		"**開始:** " + start + "\n" +
		"**返却:** " + end + mapLink + "\n" +
		"--------------------------------"
}

// formatTimestamp converts an upstream ISO 8601 timestamp (UTC) to a short
// JST display form. The "-" sentinel and unparseable input come back unchanged.
func formatTimestamp(iso string) string {
	if iso == "" || iso == history.NoValue {
		return history.NoValue
	}
	t, err := time.Parse(time.RFC3339Nano, iso)
	if err != nil {
		// Some responses drop the zone marker entirely.
		t, err = time.Parse("2006-01-02T15:04:05.999999999", iso)
		if err != nil {
			return iso
		}
		t = t.UTC()
	}
	return t.In(jst).Format("2006/01/02 15:04")
}

func featureTags(name string) []string {
	var features []string
	if strings.Contains(name, "トレイラー") {
		features = append(features, "🚛 トレイラー付")
	}
	if strings.Contains(name, "子供") || strings.Contains(name, "チャイルド") {
		features = append(features, "👶 子供椅子付")
	}
	if strings.Contains(name, "電動") {
		features = append(features, "⚡ 電動アシスト")
	}
	return features
}
