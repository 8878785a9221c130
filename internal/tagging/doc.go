// Package tagging asks the ML tagging service to predict tags for staged
// media, keeping only predictions above the configured confidence floor.
package tagging
