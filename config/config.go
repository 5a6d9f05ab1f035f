package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port      string
	JWTKey    string
	LogLevel  string
	LogFormat string

	// Database
	DBDriver   string // postgres or sqlite
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string

	// Payment gateways
	PaymentProvider     string // mpesa or midtrans
	MpesaBaseURL        string
	MpesaConsumerKey    string
	MpesaConsumerSecret string
	MpesaShortCode      string
	MpesaPassKey        string
	MpesaCallbackURL    string
	MpesaCallbackToken  string
	MidtransServerKey   string
	MidtransProduction  bool
	// PaymentCallbackSecret keys the HMAC on the generic callback route.
	PaymentCallbackSecret string

	// Notifications
	SendgridAPIKey string
	EmailSender    string
	AppName        string
	AppBaseURL     string

	// Completion outbox
	DispatchRetrySpec   string
	DispatchMaxAttempts int
}

// AppConfig is a global variable to access configuration
var AppConfig *Config

// LoadConfig initializes configuration from environment variables or defaults
func LoadConfig() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found. Using system environment variables.")
	}

	AppConfig = &Config{
		Port:      getEnv("PORT", "3000"),
		JWTKey:    getEnv("JWT_SECRET_KEY", "defaultSecret"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		DBDriver:   getEnv("DB_DRIVER", "postgres"),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "lms"),
		DBPort:     getEnv("DB_PORT", "5432"),

		PaymentProvider:     getEnv("PAYMENT_PROVIDER", "mpesa"),
		MpesaBaseURL:        getEnv("MPESA_BASE_URL", "https://sandbox.safaricom.co.ke"),
		MpesaConsumerKey:    getEnv("MPESA_CONSUMER_KEY", ""),
		MpesaConsumerSecret: getEnv("MPESA_CONSUMER_SECRET", ""),
		MpesaShortCode:      getEnv("MPESA_SHORTCODE", "174379"),
		MpesaPassKey:        getEnv("MPESA_PASSKEY", ""),
		MpesaCallbackURL:    getEnv("MPESA_CALLBACK_URL", "http://localhost:3000/payments/callback/mpesa"),
		MidtransServerKey:   getEnv("MIDTRANS_SERVER_KEY", ""),
		MidtransProduction:  getEnvBool("MIDTRANS_PRODUCTION", false),
		MpesaCallbackToken:  getEnv("MPESA_CALLBACK_TOKEN", ""),

		PaymentCallbackSecret: getEnv("PAYMENT_CALLBACK_SECRET", ""),

		SendgridAPIKey: getEnv("SENDGRID_API_KEY", ""),
		EmailSender:    getEnv("EMAIL_SENDER", "no-reply@example.com"),
		AppName:        getEnv("APP_NAME", "Classia Academy"),
		AppBaseURL:     getEnv("APP_BASE_URL", "http://localhost:3000"),

		DispatchRetrySpec:   getEnv("DISPATCH_RETRY_SPEC", "@every 1m"),
		DispatchMaxAttempts: getEnvInt("DISPATCH_MAX_ATTEMPTS", 8),
	}

	// Validate critical configuration
	if AppConfig.JWTKey == "defaultSecret" {
		log.Println("Warning: Using default JWT_SECRET_KEY. Update it in your environment.")
	}
	if AppConfig.PaymentProvider == "midtrans" && AppConfig.MidtransServerKey == "" {
		log.Println("Warning: MIDTRANS_SERVER_KEY is empty; Midtrans callbacks will be rejected.")
	}
	if AppConfig.PaymentProvider == "mpesa" && AppConfig.MpesaCallbackToken == "" {
		log.Println("Warning: MPESA_CALLBACK_TOKEN is empty; M-Pesa callbacks will be rejected.")
	}
	if AppConfig.PaymentCallbackSecret == "" {
		log.Println("Warning: PAYMENT_CALLBACK_SECRET is empty; generic payment callbacks will be rejected.")
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvInt retrieves an environment variable as an integer or returns the default integer value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Error converting environment variable %s to int: %v", key, err)
		return defaultValue
	}
	return intValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		log.Printf("Error converting environment variable %s to bool: %v", key, err)
		return defaultValue
	}
	return b
}
