// Package config loads the brandlens server configuration from the `server:`
// section of config.yaml.
//
// Config fields:
//   - HTTPPort            : port for the REST API (default 8080)
//   - Auth.Mode           : "apikey" or "none"
//   - Auth.KeyEnv         : environment variable holding the expected API key
//   - Auth.Header         : HTTP header name (default "x-api-key")
//   - Storage.Driver      : "sqlite" (default) or "memory"
//   - Storage.Path        : SQLite file (default "brandlens.db")
//   - Evaluation.Window   : comparison window and alert dedup window (default 24h)
//   - Evaluation.Interval : background evaluation period, 0 disables (default 15m)
//   - Alerts.Webhooks     : slack | teams | pagerduty | http targets, URL from env
//   - Log.Level           : debug | info | warn | error (default info)
//
// Load(path) applies defaults before unmarshalling, then validates. Watch
// reloads the file on change so webhook targets and log level can be updated
// without a restart.
package config
