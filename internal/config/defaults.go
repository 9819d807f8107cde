package config

import "time"

// Default returns the built-in configuration. Files loaded by Load overlay it.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:          "postgres",
			Host:            "localhost",
			Port:            5432,
			User:            "stackgate",
			Name:            "stackgate",
			SSLMode:         "disable",
			MaxIdleConns:    5,
			MaxOpenConns:    20,
			ConnMaxLifetime: time.Hour,
		},
		Logger: LoggerConfig{
			Level:            "info",
			Encoding:         "console",
			OutputPaths:      []string{"stdout"},
			ErrorOutputPaths: []string{"stderr"},
		},
		Auth: AuthConfig{
			JWTIssuer:    "stackgate",
			AdminRoles:   []string{"admin"},
			ManagerRoles: []string{"admin", "project_admin", "project_mod"},
		},
		Features: FeaturesConfig{
			EnableLocks:          true,
			RequestIDHeader:      "X-Request-ID",
			EnableRequestLogging: true,
			EnableMetrics:        true,
			PublicRateLimit:      30,
			PublicRateWindow:     time.Minute,
		},
		Identity: IdentityConfig{
			Driver:        "database",
			DefaultDomain: "default",
			PasswordCost:  10,
			Breaker: BreakerConfig{
				Enabled:          true,
				MaxRequests:      1,
				Interval:         time.Minute,
				Timeout:          30 * time.Second,
				FailureThreshold: 5,
			},
		},
		Email: EmailConfig{
			Backend: "log",
			Port:    25,
			From:    "no-reply@example.com",
		},
		Tokens: TokenConfig{
			DefaultTTL: 24 * time.Hour,
			Length:     32,
		},
		Tasks: map[string]TaskConfig{
			"create_project": {
				Actions: []string{"new_project_with_user"},
				Emails: TaskEmails{
					Initial:   &EmailTemplate{Subject: "Your signup is in our queue", Template: "initial"},
					Token:     &EmailTemplate{Subject: "Your signup has been approved", Template: "token"},
					Completed: &EmailTemplate{Subject: "Your project is ready", Template: "completed"},
				},
			},
			"invite_user": {
				Actions:     []string{"new_user"},
				AutoApprove: true,
				Emails: TaskEmails{
					Token:     &EmailTemplate{Subject: "You have been invited to a project", Template: "token"},
					Completed: &EmailTemplate{Subject: "Invitation accepted", Template: "completed"},
				},
			},
			"reset_password": {
				Actions:       []string{"reset_user_password"},
				AutoApprove:   true,
				TokenTTL:      12 * time.Hour,
				ResponseNotes: []string{"If user with email exists, reset token will be issued."},
				Emails: TaskEmails{
					Token:     &EmailTemplate{Subject: "Password reset requested", Template: "token"},
					Completed: &EmailTemplate{Subject: "Your password has been changed", Template: "completed"},
				},
			},
			"edit_user": {
				Actions:     []string{"edit_user_roles"},
				AutoApprove: true,
			},
		},
		Actions: map[string]ActionConfig{
			"new_user": {
				AllowedRoles: []string{"admin", "project_admin", "project_mod"},
			},
			"new_project_with_user": {
				DefaultRoles: []string{"_member_", "project_admin", "project_mod", "heat_stack_owner"},
			},
			"edit_user_roles": {
				AllowedRoles: []string{"admin", "project_admin", "project_mod"},
			},
		},
	}
}
