// Package models defines the persistent record types of the vault server.
package models

import "time"

// DataType enumerates the supported payload categories.
type DataType string

const (
	DataTypeLocation      DataType = "LOCATION"
	DataTypeSensor        DataType = "SENSOR"
	DataTypeActivity      DataType = "ACTIVITY"
	DataTypeEnvironmental DataType = "ENVIRONMENTAL"
	DataTypeCustom        DataType = "CUSTOM"
)

// ParseDataType validates s against the known data types.
func ParseDataType(s string) (DataType, bool) {
	switch t := DataType(s); t {
	case DataTypeLocation, DataTypeSensor, DataTypeActivity, DataTypeEnvironmental, DataTypeCustom:
		return t, true
	}
	return "", false
}

// PermissionLevel controls who may read a data record.
type PermissionLevel string

const (
	PermissionPrivate PermissionLevel = "PRIVATE"
	PermissionPublic  PermissionLevel = "PUBLIC"
	PermissionShared  PermissionLevel = "SHARED"
)

// ParsePermissionLevel validates s against the known permission levels.
func ParsePermissionLevel(s string) (PermissionLevel, bool) {
	switch p := PermissionLevel(s); p {
	case PermissionPrivate, PermissionPublic, PermissionShared:
		return p, true
	}
	return "", false
}

// Tag is a name/value annotation attached to the ledger transaction and
// mirrored in the metadata index.
type Tag struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// EncryptionMeta describes how a ledger payload was encrypted. All fields
// are hex-encoded.
//
// The symmetric key is stored inline with the record, matching the upstream
// system. This defeats encryption-at-rest against an attacker who reads the
// metadata index; a dedicated key-management boundary is the production fix.
type EncryptionMeta struct {
	IV  string `json:"iv"`
	Tag string `json:"tag"`
	Key string `json:"key"`
}

// DataMetadata is the free-form metadata document stored with each record.
type DataMetadata struct {
	Size       int64           `json:"size"`
	Hash       string          `json:"hash"`
	Tags       []Tag           `json:"tags,omitempty"`
	Extra      map[string]any  `json:"extra,omitempty"`
	Encryption *EncryptionMeta `json:"encryptionMeta,omitempty"`
}

// Data is a metadata record describing one immutable ledger payload. Its ID
// is the ledger content identifier assigned at write time. Seq is a local
// monotonically increasing insertion counter used for stable pagination.
type Data struct {
	ID              string          `json:"id"`
	Seq             int64           `json:"-"`
	Creator         string          `json:"creator"`
	Type            DataType        `json:"type"`
	PermissionLevel PermissionLevel `json:"permissionLevel"`
	AllowedUsers    []string        `json:"allowedUsers,omitempty"`
	Metadata        DataMetadata    `json:"metadata"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// CanRead reports whether userID may read this record: PUBLIC is open to
// all, PRIVATE to the creator only, SHARED to the creator and the allow-list.
func (d *Data) CanRead(userID string) bool {
	switch d.PermissionLevel {
	case PermissionPublic:
		return true
	case PermissionPrivate:
		return d.Creator == userID
	case PermissionShared:
		if d.Creator == userID {
			return true
		}
		for _, u := range d.AllowedUsers {
			if u == userID {
				return true
			}
		}
	}
	return false
}
