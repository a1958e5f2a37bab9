package model

import "time"

// Patient is a medical-record subject owned by an account owner.
type Patient struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"ownerId"`
	Name         string    `json:"name"`
	Relationship string    `json:"relationship,omitempty"`
	Type         string    `json:"type,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// AccountOwner is the root identity of a family unit.
type AccountOwner struct {
	UserID            string    `json:"userId"`
	Name              string    `json:"name"`
	AccountOwnerSince time.Time `json:"accountOwnerSince"`
}
