package settings

// DB-backed setting keys and defaults.
const (
	// AfternoonCutoffKey stores the global afternoon cutoff as minutes after midnight.
	AfternoonCutoffKey = "AFTERNOON_CUTOFF_MINUTES"
	// DefaultAfternoonCutoffMinutes is 17:00.
	DefaultAfternoonCutoffMinutes = 17 * 60
	// ResetTokenTTLHoursKey controls how long portal reset tokens stay valid.
	ResetTokenTTLHoursKey = "PORTAL_RESET_TOKEN_TTL_HOURS"
	// DefaultResetTokenTTLHours is one day.
	DefaultResetTokenTTLHours = 24
)
