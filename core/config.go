package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Host                string
		Address             string
		DebugHost           string
		ShutdownTimeout     time.Duration
		SessionTTL          time.Duration
		SessionCookie       string
		CSRFCookie          string
		SecureCookies       bool
		DisableReqLogs      bool
		AllowedOrigins      []string
		MaxUploadBytes      int64
		VerificationTTL     time.Duration
		VerificationCodeLen int
	}

	DatabaseConfig struct {
		Engine        string // postgres | sqlite3
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	StorageConfig struct {
		Backend      string // http | b2 | memory
		URL          string
		APIKey       string
		Bucket       string
		SignedURLTTL time.Duration
		B2AccountID  string
		B2AppKey     string
	}

	EmailConfig struct {
		Backend        string // console | smtp | sendgrid
		SMTPHost       string
		SMTPPort       int
		SMTPUser       string
		SMTPPassword   string
		SendgridAPIKey string
	}

	Config struct {
		AppName          string
		Env              string
		Build            string
		Debug            bool
		TestMode         bool
		SecretKey        string
		DefaultFromEmail mail.Address
		FrontendBaseURL  string
		WorkDir          string
		RollbarToken     string

		Server   ServerConfig
		Database DatabaseConfig
		Storage  StorageConfig
		Email    EmailConfig
	}
)

// Address returns the database "host:port".
func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// NewConfig reads the configuration from environment variables prefixed with the current ENV
// (DEV by default), optionally loaded from config/.env.<env>.
func NewConfig() *Config {
	conf := viper.New()

	// defaults
	conf.SetTypeByDefaultValue(true)
	conf.SetDefault("debug", true)
	conf.SetDefault("testMode", false)
	conf.SetDefault("appName", "Aula")
	conf.SetDefault("build", "dev")
	conf.SetDefault("secretKey", "k1x2-ae)q9u$+f3=zs&hnm8(t!p)#*w4(#rv6^$lad7xo")
	conf.SetDefault("defaultFromEmail", "Aula <noreply@localhost>")
	conf.SetDefault("frontendBaseURL", "http://localhost:3000")
	conf.SetDefault("rollbarToken", "")

	conf.SetDefault("serverHost", "localhost")
	conf.SetDefault("serverAddress", ":8000")
	conf.SetDefault("serverDebugHost", ":4000")
	conf.SetDefault("serverShutdownTimeout", 5*time.Second)
	conf.SetDefault("sessionTTL", 8*time.Hour)
	conf.SetDefault("sessionCookie", "aula_session")
	conf.SetDefault("csrfCookie", "_csrf")
	conf.SetDefault("secureCookies", false)
	conf.SetDefault("disableReqLogs", false)
	conf.SetDefault("allowedOrigins", []string{"http://localhost:3000"})
	conf.SetDefault("maxUploadBytes", int64(210<<20))
	conf.SetDefault("verificationTTL", 15*time.Minute)
	conf.SetDefault("verificationCodeLen", 6)

	conf.SetDefault("dbEngine", "postgres")
	conf.SetDefault("dbHost", "localhost")
	conf.SetDefault("dbPort", "5432")
	conf.SetDefault("dbName", "aula")
	conf.SetDefault("dbUser", "aula")
	conf.SetDefault("dbPassword", "aula")
	conf.SetDefault("dbAdminUser", "postgres")
	conf.SetDefault("dbAdminPassword", "")
	conf.SetDefault("dbDisableTLS", true)

	conf.SetDefault("storageBackend", "memory")
	conf.SetDefault("storageURL", "")
	conf.SetDefault("storageAPIKey", "")
	conf.SetDefault("storageBucket", "aula")
	conf.SetDefault("storageSignedURLTTL", 3600*time.Second)
	conf.SetDefault("b2AccountID", "")
	conf.SetDefault("b2AppKey", "")

	conf.SetDefault("emailBackend", "console")
	conf.SetDefault("smtpHost", "localhost")
	conf.SetDefault("smtpPort", 25)
	conf.SetDefault("smtpUser", "")
	conf.SetDefault("smtpPassword", "")
	conf.SetDefault("sendgridAPIKey", "")

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		conf.SetDefault("testMode", true)
	}
	conf.SetEnvPrefix(env)

	wd := Getwd()

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	conf.AutomaticEnv()

	fromEmail, err := mail.ParseAddress(conf.GetString("defaultFromEmail"))
	if err != nil {
		log.Fatalf("config.defaultFromEmail: %v", err)
	}

	return &Config{
		AppName:          conf.GetString("appName"),
		Env:              env,
		Build:            conf.GetString("build"),
		Debug:            conf.GetBool("debug"),
		TestMode:         conf.GetBool("testMode"),
		SecretKey:        conf.GetString("secretKey"),
		DefaultFromEmail: *fromEmail,
		FrontendBaseURL:  conf.GetString("frontendBaseURL"),
		WorkDir:          wd,
		RollbarToken:     conf.GetString("rollbarToken"),
		Server: ServerConfig{
			Host:                conf.GetString("serverHost"),
			Address:             conf.GetString("serverAddress"),
			DebugHost:           conf.GetString("serverDebugHost"),
			ShutdownTimeout:     conf.GetDuration("serverShutdownTimeout"),
			SessionTTL:          conf.GetDuration("sessionTTL"),
			SessionCookie:       conf.GetString("sessionCookie"),
			CSRFCookie:          conf.GetString("csrfCookie"),
			SecureCookies:       conf.GetBool("secureCookies"),
			DisableReqLogs:      conf.GetBool("disableReqLogs"),
			AllowedOrigins:      conf.GetStringSlice("allowedOrigins"),
			MaxUploadBytes:      conf.GetInt64("maxUploadBytes"),
			VerificationTTL:     conf.GetDuration("verificationTTL"),
			VerificationCodeLen: conf.GetInt("verificationCodeLen"),
		},
		Database: DatabaseConfig{
			Engine:        conf.GetString("dbEngine"),
			Host:          conf.GetString("dbHost"),
			Port:          conf.GetString("dbPort"),
			Name:          conf.GetString("dbName"),
			User:          conf.GetString("dbUser"),
			Password:      conf.GetString("dbPassword"),
			AdminUser:     conf.GetString("dbAdminUser"),
			AdminPassword: conf.GetString("dbAdminPassword"),
			DisableTLS:    conf.GetBool("dbDisableTLS"),
		},
		Storage: StorageConfig{
			Backend:      conf.GetString("storageBackend"),
			URL:          conf.GetString("storageURL"),
			APIKey:       conf.GetString("storageAPIKey"),
			Bucket:       conf.GetString("storageBucket"),
			SignedURLTTL: conf.GetDuration("storageSignedURLTTL"),
			B2AccountID:  conf.GetString("b2AccountID"),
			B2AppKey:     conf.GetString("b2AppKey"),
		},
		Email: EmailConfig{
			Backend:        conf.GetString("emailBackend"),
			SMTPHost:       conf.GetString("smtpHost"),
			SMTPPort:       conf.GetInt("smtpPort"),
			SMTPUser:       conf.GetString("smtpUser"),
			SMTPPassword:   conf.GetString("smtpPassword"),
			SendgridAPIKey: conf.GetString("sendgridAPIKey"),
		},
	}
}
