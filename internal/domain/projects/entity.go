package projects

import "time"

// Owner is the account that owns projects. Authentication is handled
// upstream; the service only maps an API key to an owner.
type Owner struct {
	ID                        string    `json:"id"`
	Name                      string    `json:"name"`
	Email                     string    `json:"email"`
	APIKey                    string    `json:"-"`
	NotificationEmail         string    `json:"notification_email,omitempty"`
	ReceiveEmailNotifications bool      `json:"receive_email_notifications"`
	NotifyOnScanComplete      bool      `json:"notify_on_scan_complete"`
	NotifyOnScanError         bool      `json:"notify_on_scan_error"`
	NotifyOnScheduledScan     bool      `json:"notify_on_scheduled_scan"`
	CreatedAt                 time.Time `json:"created_at"`
}

// Recipient is where notifications for this owner go.
func (o *Owner) Recipient() string {
	if o.NotificationEmail != "" {
		return o.NotificationEmail
	}
	return o.Email
}

// Project groups targets under one owner.
type Project struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
