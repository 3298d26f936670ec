// Package tenant holds per-business configuration and routing-key resolution.
package tenant

import "strings"

// Booking field names understood by the slot-filling flow.
const (
	FieldService = "service"
	FieldDate    = "date"
	FieldTime    = "time"
	FieldName    = "name"
)

// Config is the static business configuration of one tenant.
type Config struct {
	ID               string `yaml:"id" validate:"required"`
	PhoneNumberID    string `yaml:"phone_number_id"` // WhatsApp phone_number_id used as routing key
	Name             string `yaml:"name" validate:"required"`
	ShortDescription string `yaml:"short_description"`
	Address          string `yaml:"address"`
	AddressLink      string `yaml:"address_link" validate:"omitempty,url"`
	Hours            string `yaml:"hours"`

	Policies Policies `yaml:"policies"`
	Handoff  Handoff  `yaml:"handoff"`
	Catalog  Catalog  `yaml:"catalog"`
	Booking  Booking  `yaml:"booking"`

	// NotifyEmails receive booking requests and handoff alerts.
	NotifyEmails []string `yaml:"notify_emails" validate:"omitempty,dive,email"`
}

// Policies are canned answers to recurring questions.
type Policies struct {
	EarlyOpen string `yaml:"early_open"`
	Weekend   string `yaml:"weekend"`
}

// Handoff controls the human takeover mode.
type Handoff struct {
	Enabled bool   `yaml:"enabled"`
	Message string `yaml:"message" validate:"required_if=Enabled true"`
}

// Catalog lists the services the business offers.
type Catalog struct {
	Services []Service `yaml:"services" validate:"dive"`
	Notes    string    `yaml:"notes"`
}

// Service is a single catalog entry. Price is empty when the business
// prefers not to quote it.
type Service struct {
	Key   string `yaml:"key" validate:"required"`
	Name  string `yaml:"name" validate:"required"`
	Price string `yaml:"price"`
}

// HasPrice reports whether the entry carries a quotable price.
func (s Service) HasPrice() bool {
	return strings.TrimSpace(s.Price) != ""
}

// Booking configures the appointment request flow.
type Booking struct {
	Enabled     bool     `yaml:"enabled"`
	Require     []string `yaml:"require" validate:"required_if=Enabled true,dive,required"`
	ConfirmText string   `yaml:"confirm_text"`
}

// RoutingKey returns the inbound routing key bound to the tenant.
func (c Config) RoutingKey() string {
	return strings.TrimSpace(c.PhoneNumberID)
}

// ServiceNames returns the display names of every catalog entry in order.
func (c Config) ServiceNames() []string {
	names := make([]string, 0, len(c.Catalog.Services))
	for _, s := range c.Catalog.Services {
		names = append(names, s.Name)
	}
	return names
}

// ServiceKeys returns the catalog keys in order.
func (c Config) ServiceKeys() []string {
	keys := make([]string, 0, len(c.Catalog.Services))
	for _, s := range c.Catalog.Services {
		keys = append(keys, s.Key)
	}
	return keys
}
