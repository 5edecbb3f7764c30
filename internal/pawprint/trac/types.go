package trac

import "time"

// Ticket is a Trac ticket with its standard fields. Custom fields end up in
// Custom.
type Ticket struct {
	ID          int            `json:"id" mapstructure:"id"`
	Created     time.Time      `json:"created" mapstructure:"time"`
	Changed     time.Time      `json:"changed" mapstructure:"changetime"`
	Summary     string         `json:"summary" mapstructure:"summary"`
	Description string         `json:"description" mapstructure:"description"`
	Type        string         `json:"type" mapstructure:"type"`
	Status      string         `json:"status" mapstructure:"status"`
	Resolution  string         `json:"resolution" mapstructure:"resolution"`
	Priority    string         `json:"priority" mapstructure:"priority"`
	Severity    string         `json:"severity,omitempty" mapstructure:"severity"`
	Component   string         `json:"component" mapstructure:"component"`
	Milestone   string         `json:"milestone" mapstructure:"milestone"`
	Version     string         `json:"version" mapstructure:"version"`
	Owner       string         `json:"owner" mapstructure:"owner"`
	Reporter    string         `json:"reporter" mapstructure:"reporter"`
	CC          string         `json:"cc" mapstructure:"cc"`
	Keywords    string         `json:"keywords" mapstructure:"keywords"`
	Custom      map[string]any `json:"custom,omitempty" mapstructure:",remain"`
}

type Milestone struct {
	Name        string     `json:"name" mapstructure:"name"`
	Due         *time.Time `json:"due,omitempty" mapstructure:"due"`
	Completed   *time.Time `json:"completed,omitempty" mapstructure:"completed"`
	Description string     `json:"description" mapstructure:"description"`
}

type Component struct {
	Name        string `json:"name" mapstructure:"name"`
	Owner       string `json:"owner" mapstructure:"owner"`
	Description string `json:"description" mapstructure:"description"`
}

// Field describes a ticket field as reported by ticket.getTicketFields.
type Field struct {
	Name     string   `json:"name" mapstructure:"name"`
	Label    string   `json:"label" mapstructure:"label"`
	Type     string   `json:"type" mapstructure:"type"`
	Value    string   `json:"value,omitempty" mapstructure:"value"`
	Options  []string `json:"options,omitempty" mapstructure:"options"`
	Optional bool     `json:"optional,omitempty" mapstructure:"optional"`
	Custom   bool     `json:"custom,omitempty" mapstructure:"custom"`
	Order    int      `json:"order,omitempty" mapstructure:"order"`
}
