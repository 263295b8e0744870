package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// IdentifyRequest represents the incoming request body
type IdentifyRequest struct {
	Email       *string `json:"email"`
	PhoneNumber *string `json:"phoneNumber"`
}

// UnmarshalJSON accepts phoneNumber as either a string or a bare JSON number.
func (r *IdentifyRequest) UnmarshalJSON(data []byte) error {
	var raw struct {
		Email       *string         `json:"email"`
		PhoneNumber json.RawMessage `json:"phoneNumber"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.Email = raw.Email
	r.PhoneNumber = nil

	phone := bytes.TrimSpace(raw.PhoneNumber)
	if len(phone) == 0 || bytes.Equal(phone, []byte("null")) {
		return nil
	}
	if phone[0] == '"' {
		var s string
		if err := json.Unmarshal(phone, &s); err != nil {
			return err
		}
		r.PhoneNumber = &s
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(phone))
	dec.UseNumber()
	var n json.Number
	if err := dec.Decode(&n); err != nil {
		return fmt.Errorf("phoneNumber must be a string or number: %w", err)
	}
	s := n.String()
	r.PhoneNumber = &s
	return nil
}

// Normalized returns the request with empty strings treated as absent.
func (r IdentifyRequest) Normalized() IdentifyRequest {
	return IdentifyRequest{
		Email:       nonEmpty(r.Email),
		PhoneNumber: nonEmpty(r.PhoneNumber),
	}
}

func nonEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	v := *s
	return &v
}

// ContactResponse represents the contact data in the response
type ContactResponse struct {
	PrimaryContactID    int64    `json:"primaryContactId"`
	Emails              []string `json:"emails"`
	PhoneNumbers        []string `json:"phoneNumbers"`
	SecondaryContactIDs []int64  `json:"secondaryContactIds"`
}

// IdentifyResponse represents the response body
type IdentifyResponse struct {
	Contact ContactResponse `json:"contact"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}
