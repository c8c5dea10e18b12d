// Package report composes run reports and delivers them.
//
// A Report is a subject, a plain-text body, an optional attachment (the
// attempt error log) and a severity. Delivery goes through the Service
// interface; NewService fans out to every configured channel (ntfy push
// and email through sendmail or SMTP) and degrades to a no-op when none is
// configured. Which attempts produce a report at all is decided by the
// orchestrator.
package report
