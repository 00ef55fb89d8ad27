package localstore

const (
	KeyUser            = "mental_health_user"
	KeySession         = "auth_session"
	KeyRememberMe      = "remember_me"
	KeyGeminiAPIKey    = "gemini_api_key"
	KeyUserPreferences = "user_preferences"
	KeyAdminSettings   = "admin_settings"
)

func StatsKey(userID string) string { return "mental_health_stats_" + userID }

func MoodsKey(userID string) string { return "mental_health_moods_" + userID }
