// Package status serves read-only scheduler statistics over HTTP.
package status
