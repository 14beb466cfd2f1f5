package telegram

import "regexp"

// webhookURLPattern accepts an https URL or a bare www. host, with an
// optional port and path.
var webhookURLPattern = regexp.MustCompile(`(?i)^((https://)|(www\.))([a-z0-9-].?)+(:[0-9]+)?(/.*)?$`)

// ValidWebhookURL reports whether url has an acceptable webhook shape.
// The check runs locally; no remote call is involved.
func ValidWebhookURL(url string) bool {
	return webhookURLPattern.MatchString(url)
}
