package settings

// System setting keys and defaults.
const (
	// ChannelAccessTokenKey holds the Messaging API channel access token.
	ChannelAccessTokenKey = "LINE_CHANNEL_ACCESS_TOKEN"
	// ChannelSecretKey holds the Messaging API channel secret used for webhook signatures.
	ChannelSecretKey = "LINE_CHANNEL_SECRET"
	// SystemNameKey is the display name of the installation.
	SystemNameKey = "SYSTEM_NAME"
	// VersionKey is the schema/application version recorded at bootstrap.
	VersionKey = "VERSION"
	// MaintenanceModeKey blocks write endpoints when "true".
	MaintenanceModeKey = "MAINTENANCE_MODE"
	// InitializedKey marks a completed bootstrap.
	InitializedKey = "INITIALIZED"

	// DefaultSystemName is the fallback system name.
	DefaultSystemName = "LINE CRM"
	// DefaultVersion is the version seeded on first start.
	DefaultVersion = "1.0.0"
)

// Default is one seeded setting row.
type Default struct {
	Key         string
	Value       string
	Description string
}

// DefaultSettings returns the rows seeded when the settings table is empty.
func DefaultSettings() []Default {
	return []Default{
		{Key: ChannelAccessTokenKey, Value: "", Description: "LINE Bot Channel Access Token"},
		{Key: ChannelSecretKey, Value: "", Description: "LINE Bot Channel Secret"},
		{Key: SystemNameKey, Value: DefaultSystemName, Description: "System name"},
		{Key: VersionKey, Value: DefaultVersion, Description: "System version"},
		{Key: MaintenanceModeKey, Value: "false", Description: "Maintenance mode"},
		{Key: InitializedKey, Value: "true", Description: "Database initialization marker"},
	}
}
