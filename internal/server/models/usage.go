package models

import "time"

// AccessType enumerates the kinds of access recorded against a data record.
type AccessType string

const (
	AccessRead   AccessType = "READ"
	AccessQuery  AccessType = "QUERY"
	AccessStream AccessType = "STREAM"
)

// ParseAccessType validates s against the known access types.
func ParseAccessType(s string) (AccessType, bool) {
	switch a := AccessType(s); a {
	case AccessRead, AccessQuery, AccessStream:
		return a, true
	}
	return "", false
}

// Usage is an append-only audit entry for one access event against a data
// record. Usage rows are never updated or deleted.
type Usage struct {
	ID         string         `json:"id"`
	DataID     string         `json:"dataId"`
	UserID     string         `json:"userId"`
	AccessType AccessType     `json:"accessType"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"timestamp"`
}
