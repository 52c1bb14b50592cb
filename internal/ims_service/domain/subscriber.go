package domain

import (
	"encoding/json"
)

// Subscriber is the IMS subscriber profile, keyed by phone number.
// Nullable columns are pointers so that values never written stay absent in responses.
type Subscriber struct {
	PhoneNumber string          `json:"phoneNumber" db:"phone_number"`
	Username    *string         `json:"username,omitempty" db:"username"`
	Password    *string         `json:"password,omitempty" db:"password"`
	Domain      *string         `json:"domain,omitempty" db:"domain"`
	Status      *bool           `json:"status,omitempty" db:"status"`
	Features    json.RawMessage `json:"features,omitempty" db:"features"`
}

// SubscriberPatch is an incoming write. A nil field was absent from the payload
// and must keep its stored value.
type SubscriberPatch struct {
	PhoneNumber *string         `json:"phoneNumber,omitempty" validate:"omitnil,len=11,number"`
	Username    *string         `json:"username,omitempty" validate:"omitnil,min=1"`
	Password    *string         `json:"password,omitempty" validate:"omitnil,min=1"`
	Domain      *string         `json:"domain,omitempty" validate:"omitnil,fqdn"`
	Status      *bool           `json:"status,omitempty"`
	Features    json.RawMessage `json:"features,omitempty"`
}

// Field maps an API (camelCase) name to its storage (snake_case) column.
type Field struct {
	JSON   string
	Column string
}

// Fields is the complete, ordered field table of the ims table.
var Fields = []Field{
	{JSON: "phoneNumber", Column: "phone_number"},
	{JSON: "username", Column: "username"},
	{JSON: "password", Column: "password"},
	{JSON: "domain", Column: "domain"},
	{JSON: "status", Column: "status"},
	{JSON: "features", Column: "features"},
}

const (
	// TableName is the relation subscribers are stored in.
	TableName = "ims"
	// KeyColumn is the unique key the upsert resolves conflicts on.
	KeyColumn = "phone_number"
)

// ColumnNames returns every column of the field table in order.
func ColumnNames() []string {
	cols := make([]string, len(Fields))
	for i, f := range Fields {
		cols[i] = f.Column
	}
	return cols
}

// ColumnValue is one present, non-key column of a patch.
type ColumnValue struct {
	Column string
	Value  any
}

// Columns returns the non-key columns present in the patch, in field table order.
// Features are passed as JSON text for the jsonb column.
func (p *SubscriberPatch) Columns() []ColumnValue {
	var out []ColumnValue
	for _, f := range Fields {
		switch f.Column {
		case "username":
			if p.Username != nil {
				out = append(out, ColumnValue{Column: f.Column, Value: *p.Username})
			}
		case "password":
			if p.Password != nil {
				out = append(out, ColumnValue{Column: f.Column, Value: *p.Password})
			}
		case "domain":
			if p.Domain != nil {
				out = append(out, ColumnValue{Column: f.Column, Value: *p.Domain})
			}
		case "status":
			if p.Status != nil {
				out = append(out, ColumnValue{Column: f.Column, Value: *p.Status})
			}
		case "features":
			if p.Features != nil {
				out = append(out, ColumnValue{Column: f.Column, Value: string(p.Features)})
			}
		}
	}
	return out
}

// RenameTarget reports the number the record should end up under, and whether
// that differs from currentPhoneNumber.
func (p *SubscriberPatch) RenameTarget(currentPhoneNumber string) (string, bool) {
	if p.PhoneNumber == nil || *p.PhoneNumber == currentPhoneNumber {
		return currentPhoneNumber, false
	}
	return *p.PhoneNumber, true
}

// Subscriber echoes the patch as the written logical record.
func (p *SubscriberPatch) Subscriber(currentPhoneNumber string) *Subscriber {
	number, _ := p.RenameTarget(currentPhoneNumber)
	return &Subscriber{
		PhoneNumber: number,
		Username:    p.Username,
		Password:    p.Password,
		Domain:      p.Domain,
		Status:      p.Status,
		Features:    p.Features,
	}
}
