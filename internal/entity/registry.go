package entity

import "github.com/google/uuid"

// DefaultRegistryStatus is assigned to every customer created by an import.
const DefaultRegistryStatus = "lead"

// RegistryCustomer is one row inserted into the external registry.
type RegistryCustomer struct {
	Name     string
	Locality string
	Category string
	Website  string
	Phone    string
	Status   string
	JobID    uuid.UUID
}
