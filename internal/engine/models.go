package engine

// REST API models for the HTTP facade. These mirror the service-layer
// structs with wire-friendly JSON shapes; timestamps are epoch
// milliseconds throughout.

// Status represents the status of an operation
type Status string

const (
	StatusHealthy Status = "healthy"
	StatusSuccess Status = "success"
	StatusDeleted Status = "deleted"
	StatusError   Status = "error"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Status  Status `json:"status"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status        Status `json:"status"`
	SchemaVersion int    `json:"schema_version"`
}

// User is the wire shape of a synced user profile
type User struct {
	UserID            string         `json:"user_id"`
	Username          *string        `json:"username"`
	FirstName         *string        `json:"first_name"`
	LastName          *string        `json:"last_name"`
	PhoneNumber       *string        `json:"phone_number"`
	ImageURL          string         `json:"image_url"`
	Languages         []string       `json:"languages"`
	PasswordEnabled   bool           `json:"password_enabled"`
	TwoFactorEnabled  bool           `json:"two_factor_enabled"`
	BackupCodeEnabled bool           `json:"backup_code_enabled"`
	EmailAddresses    []EmailAddress `json:"email_addresses"`
	Address           *Address       `json:"address,omitempty"`
	CreatedAt         int64          `json:"created_at"`
	UpdatedAt         int64          `json:"updated_at"`
}

// EmailAddress is the wire shape of an email address record
type EmailAddress struct {
	EmailAddressID string `json:"email_address_id"`
	EmailAddress   string `json:"email_address"`
}

// Address is the wire shape of a structured address
type Address struct {
	AddressID  string   `json:"address_id"`
	PlaceID    *string  `json:"place_id"`
	Name       *string  `json:"name"`
	UnitNumber *string  `json:"unit_number"`
	City       *string  `json:"city"`
	Province   *string  `json:"province"`
	PostalCode *string  `json:"postal_code"`
	Country    *string  `json:"country"`
	Lat        *float64 `json:"lat"`
	Lng        *float64 `json:"lng"`
}

// ListUsersResponse represents the list users response
type ListUsersResponse struct {
	Users []User `json:"users"`
	Total int    `json:"total"`
}

// Provider is the wire shape of a synced provider profile
type Provider struct {
	ProviderID         string         `json:"provider_id"`
	ProviderName       *string        `json:"provider_name"`
	FirstName          *string        `json:"first_name"`
	LastName           *string        `json:"last_name"`
	PhoneNumber        *string        `json:"phone_number"`
	ImageURL           string         `json:"image_url"`
	BusinessName       *string        `json:"business_name"`
	ServiceRadius      float64        `json:"service_radius"`
	CanVisitClientHome bool           `json:"can_visit_client_home"`
	VirtualHelpOffered bool           `json:"virtual_help_offered"`
	EmailAddresses     []EmailAddress `json:"email_addresses"`
	Address            *Address       `json:"address,omitempty"`
	CreatedAt          int64          `json:"created_at"`
	UpdatedAt          int64          `json:"updated_at"`
}

// ListProvidersResponse represents the list providers response
type ListProvidersResponse struct {
	Providers []Provider `json:"providers"`
	Total     int        `json:"total"`
}

// CreateRequestRequest is the payload for creating a connection request
type CreateRequestRequest struct {
	RequesterID  string  `json:"requester_id"`
	ReceiverID   string  `json:"receiver_id"`
	GreetingText *string `json:"greeting_text,omitempty"`
}

// RespondRequestRequest identifies the actor for a lifecycle transition
type RespondRequestRequest struct {
	UserID string `json:"user_id"`
}

// ConnectionRequest is the wire shape of a connection request
type ConnectionRequest struct {
	RequestID          int64   `json:"request_id"`
	RequesterID        string  `json:"requester_id"`
	RequesterUsername  *string `json:"requester_username"`
	RequesterFirstName *string `json:"requester_first_name"`
	RequesterLastName  *string `json:"requester_last_name"`
	RequesterImageURL  *string `json:"requester_image_url"`
	ReceiverID         string  `json:"receiver_id"`
	ReceiverUsername   *string `json:"receiver_username"`
	ReceiverFirstName  *string `json:"receiver_first_name"`
	ReceiverLastName   *string `json:"receiver_last_name"`
	ReceiverImageURL   *string `json:"receiver_image_url"`
	GreetingText       *string `json:"greeting_text"`
	Status             string  `json:"status"`
	CreatedAt          int64   `json:"created_at"`
	RespondedAt        *int64  `json:"responded_at"`
}

// ListRequestsResponse represents the list connection requests response
type ListRequestsResponse struct {
	Requests []ConnectionRequest `json:"requests"`
}

// Connection is the wire shape of an established connection
type Connection struct {
	ConnectionID     int64   `json:"connection_id"`
	UserID1          string  `json:"user_id1"`
	UserID1Username  *string `json:"user_id1_username"`
	UserID1FirstName *string `json:"user_id1_first_name"`
	UserID1LastName  *string `json:"user_id1_last_name"`
	UserID1ImageURL  *string `json:"user_id1_image_url"`
	UserID2          string  `json:"user_id2"`
	UserID2Username  *string `json:"user_id2_username"`
	UserID2FirstName *string `json:"user_id2_first_name"`
	UserID2LastName  *string `json:"user_id2_last_name"`
	UserID2ImageURL  *string `json:"user_id2_image_url"`
	ConnectedAt      int64   `json:"connected_at"`
}

// ListConnectionsResponse represents the list connections response
type ListConnectionsResponse struct {
	Connections []Connection `json:"connections"`
}

// SyncResponse reports the outcome of a sync run
type SyncResponse struct {
	RecordsApplied int    `json:"records_applied"`
	Status         Status `json:"status"`
}

// DeleteResponse confirms a hard delete
type DeleteResponse struct {
	Status Status `json:"status"`
}
