package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	DatabaseConfig struct {
		Engine        string `validate:"oneof=postgres sqlite3"`
		Host          string
		Port          int
		Name          string `validate:"required"`
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	ServerConfig struct {
		Host            string
		Port            int
		DebugHost       string
		ShutdownTimeout time.Duration
	}

	ReconcileConfig struct {
		Deadline            time.Duration `validate:"gt=0"`
		LocationConcurrency int           `validate:"min=1"`
		WriteConcurrency    int           `validate:"min=1"`
		WriteRetries        int           `validate:"min=0,max=10"`
		RetryBackoff        time.Duration
		WritesPerSecond     float64 `validate:"gte=0"`
		HeaderScanRows      int     `validate:"min=1,max=100"`
	}

	NotifyConfig struct {
		FromEmail      string
		Reviewers      []string `validate:"dive,email"` // anomaly digest recipients
		DigestLimit    int      `validate:"min=1"`      // anomalies listed per digest
		SendgridApiKey string
	}

	Config struct {
		Env          string
		Debug        bool
		TestMode     bool
		AppName      string
		Build        string
		RollbarToken string
		Database     DatabaseConfig
		Server       ServerConfig
		Reconcile    ReconcileConfig
		Notify       NotifyConfig
	}
)

// Address returns the host:port the database listens on.
func (c DatabaseConfig) Address() string {
	if c.Port == 0 {
		return c.Host
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// From returns the sender of outgoing emails.
func (c NotifyConfig) From(appName string) mail.Address {
	if addr, err := mail.ParseAddress(c.FromEmail); err == nil {
		return *addr
	}
	return mail.Address{Name: appName, Address: "noreply@carematrix.local"}
}

// ReviewerAddresses returns the recipients of anomaly digests.
func (c NotifyConfig) ReviewerAddresses() []mail.Address {
	addrs := make([]mail.Address, 0, len(c.Reviewers))
	for _, r := range c.Reviewers {
		if addr, err := mail.ParseAddress(r); err == nil {
			addrs = append(addrs, *addr)
		}
	}
	return addrs
}

// Address returns the host:port the API server binds to.
func (c ServerConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("appName", "CareMatrix")
	v.SetDefault("build", "dev")
	v.SetDefault("rollbarToken", "")

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "carematrix")
	v.SetDefault("database.user", "carematrix")
	v.SetDefault("database.password", "carematrix")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "postgres")
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.debugHost", "localhost:4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)

	v.SetDefault("reconcile.deadline", 5*time.Minute)
	v.SetDefault("reconcile.locationConcurrency", 4)
	v.SetDefault("reconcile.writeConcurrency", 8)
	v.SetDefault("reconcile.writeRetries", 3)
	v.SetDefault("reconcile.retryBackoff", 200*time.Millisecond)
	v.SetDefault("reconcile.writesPerSecond", 200.0)
	v.SetDefault("reconcile.headerScanRows", 15)

	v.SetDefault("notify.fromEmail", "CareMatrix <noreply@carematrix.local>")
	v.SetDefault("notify.reviewers", []string{})
	v.SetDefault("notify.digestLimit", 50)
	v.SetDefault("notify.sendgridApiKey", "")

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
		v.SetDefault("database.engine", "sqlite3")
		v.SetDefault("database.name", ":memory:")
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(Getwd(), "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	return &Config{
		Env:          env,
		Debug:        v.GetBool("debug"),
		TestMode:     v.GetBool("testMode"),
		AppName:      v.GetString("appName"),
		Build:        v.GetString("build"),
		RollbarToken: v.GetString("rollbarToken"),
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetInt("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
		},
		Server: ServerConfig{
			Host:            v.GetString("server.host"),
			Port:            v.GetInt("server.port"),
			DebugHost:       v.GetString("server.debugHost"),
			ShutdownTimeout: v.GetDuration("server.shutdownTimeout"),
		},
		Reconcile: ReconcileConfig{
			Deadline:            v.GetDuration("reconcile.deadline"),
			LocationConcurrency: v.GetInt("reconcile.locationConcurrency"),
			WriteConcurrency:    v.GetInt("reconcile.writeConcurrency"),
			WriteRetries:        v.GetInt("reconcile.writeRetries"),
			RetryBackoff:        v.GetDuration("reconcile.retryBackoff"),
			WritesPerSecond:     v.GetFloat64("reconcile.writesPerSecond"),
			HeaderScanRows:      v.GetInt("reconcile.headerScanRows"),
		},
		Notify: NotifyConfig{
			FromEmail:      v.GetString("notify.fromEmail"),
			Reviewers:      v.GetStringSlice("notify.reviewers"),
			DigestLimit:    v.GetInt("notify.digestLimit"),
			SendgridApiKey: v.GetString("notify.sendgridApiKey"),
		},
	}
}
